package twigx

import (
	"regexp"
	"strings"
)

// Callable is a host function or filter implementation.
type Callable func(args []Value) (Value, error)

// FilterDef pairs a filter implementation with whether the engine must
// prepend the current environment as the filter's first argument.
type FilterDef struct {
	Fn               Callable
	NeedsEnvironment bool
}

// Registry resolves function and filter names to host callables, per
// the engine's `get_function`/`get_filter` accessors.
type Registry interface {
	GetFunction(name string) (Callable, error)
	GetFilter(name string) (FilterDef, error)
}

// MapRegistry is the bare-bones Registry a host can populate directly.
type MapRegistry struct {
	Functions map[string]Callable
	Filters   map[string]FilterDef
}

func NewMapRegistry() *MapRegistry {
	return &MapRegistry{Functions: map[string]Callable{}, Filters: map[string]FilterDef{}}
}

func (r *MapRegistry) GetFunction(name string) (Callable, error) {
	if fn, ok := r.Functions[name]; ok {
		return fn, nil
	}
	return nil, callErrorf("unknown function %q", name)
}

func (r *MapRegistry) GetFilter(name string) (FilterDef, error) {
	if fd, ok := r.Filters[name]; ok {
		return fd, nil
	}
	return FilterDef{}, callErrorf("unknown filter %q", name)
}

// layeredRegistry tries a host-supplied Registry first, falling back to
// the builtin filters/tests table so a host can shadow any builtin by
// name without having to re-register the rest.
type layeredRegistry struct {
	host Registry
	base Registry
}

// WithBuiltins wraps host so lookups fall back to the builtin filter
// table (filters.go) when host doesn't define a name. Pass nil for host
// to get the builtins alone.
func WithBuiltins(host Registry) Registry {
	return &layeredRegistry{host: host, base: builtinRegistry()}
}

func (r *layeredRegistry) GetFunction(name string) (Callable, error) {
	if r.host != nil {
		if fn, err := r.host.GetFunction(name); err == nil {
			return fn, nil
		}
	}
	return r.base.GetFunction(name)
}

func (r *layeredRegistry) GetFilter(name string) (FilterDef, error) {
	if r.host != nil {
		if fd, err := r.host.GetFilter(name); err == nil {
			return fd, nil
		}
	}
	return r.base.GetFilter(name)
}

// Environment is the scope stack + globals + callable registry that
// backs a single render.
type Environment struct {
	globals  *OrderedMap
	stack    []*OrderedMap
	registry Registry
	strict   bool
	regexes  map[string]*regexp.Regexp
}

func NewEnvironment(globals *OrderedMap, registry Registry, strict bool) *Environment {
	if globals == nil {
		globals = NewOrderedMap()
	}
	return &Environment{
		globals:  globals,
		stack:    []*OrderedMap{NewOrderedMap()},
		registry: registry,
		strict:   strict,
		regexes:  map[string]*regexp.Regexp{},
	}
}

// PushScope enters a new, empty scope.
func (e *Environment) PushScope() {
	e.stack = append(e.stack, NewOrderedMap())
}

// PopScope exits the top scope. Popping the single remaining scope is
// an invariant violation: the scope stack must never go empty.
func (e *Environment) PopScope() error {
	if len(e.stack) <= 1 {
		return resolveErrorf("", "cannot pop the environment's last remaining scope")
	}
	e.stack = e.stack[:len(e.stack)-1]
	return nil
}

func (e *Environment) top() *OrderedMap { return e.stack[len(e.stack)-1] }

// Bind sets name directly in the current top scope, used for loop and
// for-key/value bindings that always shadow in the freshly pushed scope.
func (e *Environment) Bind(name string, v Value) {
	e.top().Set(name, v)
}

// Lookup resolves a dotted path: the head segment is
// searched top-down through the scope stack, falling back to globals;
// the remainder resolves by repeated member access. A path that can't
// be resolved is a LookupError, recovered as an empty Value unless the
// Environment is strict.
func (e *Environment) Lookup(path string) (Value, error) {
	val, found, err := e.lookupInternal(path)
	if err != nil {
		return Null(), err
	}
	if !found {
		if e.strict {
			return Null(), lookupErrorf("undefined variable %q", path)
		}
		return Null(), nil
	}
	return val, nil
}

// Defined reports whether path resolves to something, regardless of
// the Environment's strict setting. Backs the `defined`/`undefined`
// builtin tests, which must distinguish "not found" from "found and
// Null" even when lax lookup would otherwise mask the difference.
func (e *Environment) Defined(path string) bool {
	_, found, err := e.lookupInternal(path)
	return err == nil && found
}

func (e *Environment) lookupInternal(path string) (Value, bool, error) {
	head, rest := splitHead(path)
	if head == "" {
		return Null(), false, nil
	}

	var val Value
	found := false
	for i := len(e.stack) - 1; i >= 0; i-- {
		if v, ok := e.stack[i].Get(head); ok {
			val, found = v, true
			break
		}
	}
	if !found {
		if v, ok := e.globals.Get(head); ok {
			val, found = v, true
		}
	}
	if !found {
		return Null(), false, nil
	}

	for rest != "" {
		var seg string
		seg, rest = splitHead(rest)
		v, err := e.memberAccess(val, seg)
		if err != nil {
			if kind, ok := KindOf(err); ok && kind == KindLookup {
				return Null(), false, nil
			}
			return Null(), false, err
		}
		val = v
	}
	return val, true, nil
}

func (e *Environment) memberAccess(v Value, key string) (Value, error) {
	switch v.Tag {
	case TagMap:
		m := v.AsMap()
		if m == nil {
			return Null(), lookupErrorf("member %q not found", key)
		}
		if mv, ok := m.Get(key); ok {
			return mv, nil
		}
		return Null(), lookupErrorf("member %q not found", key)
	case TagArray:
		idx, ok := parseArrayIndex(key)
		if !ok {
			return Null(), lookupErrorf("array index %q is not an integer", key)
		}
		arr := v.AsArray()
		if idx < 0 || idx >= len(arr) {
			return Null(), lookupErrorf("array index %d out of range", idx)
		}
		return arr[idx], nil
	case TagOpaque:
		if ha, ok := v.AsHost().(HostAccessor); ok {
			return ha.GetMember(key)
		}
		return Null(), lookupErrorf("opaque value has no member accessor for %q", key)
	default:
		return Null(), lookupErrorf("cannot access member %q of a scalar value", key)
	}
}

func parseArrayIndex(s string) (int, bool) {
	n := 0
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// Set resolves path's head: the topmost scope already
// binding the head is reused, else the current (top) scope. A dotted
// path beyond the head navigates/creates nested maps.
func (e *Environment) Set(path string, val Value) error {
	head, rest := splitHead(path)
	if head == "" {
		return resolveErrorf("", "empty assignment target")
	}
	if rest == "" {
		e.scopeFor(head).Set(head, val)
		return nil
	}

	scope := e.scopeFor(head)
	container, ok := scope.Get(head)
	if !ok || container.Tag != TagMap {
		container = Map(NewOrderedMap())
		scope.Set(head, container)
	}
	return setNested(container.AsMap(), rest, val)
}

func setNested(m *OrderedMap, path string, val Value) error {
	head, rest := splitHead(path)
	if head == "" {
		return resolveErrorf("", "empty assignment target")
	}
	if rest == "" {
		m.Set(head, val)
		return nil
	}
	child, ok := m.Get(head)
	if !ok || child.Tag != TagMap {
		child = Map(NewOrderedMap())
		m.Set(head, child)
	}
	return setNested(child.AsMap(), rest, val)
}

// scopeFor finds the topmost scope already binding head, defaulting to
// the current top scope.
func (e *Environment) scopeFor(head string) *OrderedMap {
	for i := len(e.stack) - 1; i >= 0; i-- {
		if _, ok := e.stack[i].Get(head); ok {
			return e.stack[i]
		}
	}
	return e.top()
}

func splitHead(path string) (head, rest string) {
	idx := strings.IndexByte(path, '.')
	if idx == -1 {
		return path, ""
	}
	return path[:idx], path[idx+1:]
}

// GetFunction/GetFilter route through the Environment's registry.
func (e *Environment) GetFunction(name string) (Callable, error) { return e.registry.GetFunction(name) }
func (e *Environment) GetFilter(name string) (FilterDef, error)  { return e.registry.GetFilter(name) }

// MatchRegex implements the Matches operator with a per-Environment
// compiled-pattern cache.
func (e *Environment) MatchRegex(pattern, subject string) (bool, error) {
	re, ok := e.regexes[pattern]
	if !ok {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return false, typeErrorf("invalid regular expression %q: %v", pattern, err)
		}
		re = compiled
		e.regexes[pattern] = re
	}
	return re.MatchString(subject), nil
}
