package twigx

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Tag identifies which field of a Value is live.
type Tag int

const (
	TagNull Tag = iota
	TagStr
	TagInt
	TagFloat
	TagBool
	TagArray
	TagMap
	TagOpaque
)

// HostAccessor lets an Opaque value answer member-access lookups from
// the evaluator without the engine needing to understand its Go type.
type HostAccessor interface {
	GetMember(path string) (Value, error)
}

// Value is the engine's dynamically typed, tagged-union runtime value.
type Value struct {
	Tag   Tag
	str   string
	i     int64
	f     float64
	b     bool
	arr   []Value
	m     *OrderedMap
	host  any
}

func Null() Value                 { return Value{Tag: TagNull} }
func Str(s string) Value          { return Value{Tag: TagStr, str: s} }
func Int(i int64) Value           { return Value{Tag: TagInt, i: i} }
func Float(f float64) Value       { return Value{Tag: TagFloat, f: f} }
func Bool(b bool) Value           { return Value{Tag: TagBool, b: b} }
func Array(items []Value) Value   { return Value{Tag: TagArray, arr: items} }
func Map(m *OrderedMap) Value     { return Value{Tag: TagMap, m: m} }
func Opaque(host any) Value       { return Value{Tag: TagOpaque, host: host} }

func (v Value) AsStr() string      { return v.str }
func (v Value) AsInt() int64       { return v.i }
func (v Value) AsFloat() float64   { return v.f }
func (v Value) AsBool() bool       { return v.b }
func (v Value) AsArray() []Value   { return v.arr }
func (v Value) AsMap() *OrderedMap { return v.m }
func (v Value) AsHost() any        { return v.host }

func (v Value) IsNull() bool { return v.Tag == TagNull }

// OrderedMap is an insertion-ordered string-keyed map, used so that
// `for k,v in m` iterates in the order the host (or a {...} literal)
// declared its keys.
type OrderedMap struct {
	keys   []string
	values map[string]Value
}

func NewOrderedMap() *OrderedMap {
	return &OrderedMap{values: make(map[string]Value)}
}

func (m *OrderedMap) Set(key string, val Value) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = val
}

func (m *OrderedMap) Get(key string) (Value, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *OrderedMap) Keys() []string { return m.keys }
func (m *OrderedMap) Len() int       { return len(m.keys) }

// Truthy implements the engine's truthiness rules.
func (v Value) Truthy() bool {
	switch v.Tag {
	case TagBool:
		return v.b
	case TagNull:
		return false
	case TagStr:
		return v.str != ""
	case TagInt:
		return v.i != 0
	case TagFloat:
		return v.f != 0
	case TagArray:
		return len(v.arr) > 0
	case TagMap:
		return v.m != nil && v.m.Len() > 0
	case TagOpaque:
		if tb, ok := v.host.(interface{ Truthy() bool }); ok {
			return tb.Truthy()
		}
		return v.host != nil
	default:
		return false
	}
}

// AsNumber returns the Value's numeric reading and whether it is numeric.
// Int and Float both count; a numeric-looking string parses as a
// float, and Bool reads as 1 or 0. Arithmetic operators coerce their
// operands through this method.
func (v Value) AsNumber() (float64, bool) {
	switch v.Tag {
	case TagInt:
		return float64(v.i), true
	case TagFloat:
		return v.f, true
	case TagStr:
		if f, err := strconv.ParseFloat(v.str, 64); err == nil {
			return f, true
		}
		return 0, false
	case TagBool:
		if v.b {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// IsIntLike reports whether the value is an Int (for Divi's requirement
// that both operands be Int).
func (v Value) IsIntLike() bool { return v.Tag == TagInt }

// Display renders a Value for {{ print }} output.
func (v Value) Display() string {
	switch v.Tag {
	case TagStr:
		return v.str
	case TagInt:
		return strconv.FormatInt(v.i, 10)
	case TagBool:
		// Twig compatibility: true -> "1", false -> "".
		if v.b {
			return "1"
		}
		return ""
	case TagFloat:
		return formatFloat(v.f)
	case TagNull:
		return ""
	case TagArray:
		parts := make([]string, len(v.arr))
		for i, item := range v.arr {
			parts[i] = item.Display()
		}
		return strings.Join(parts, ", ")
	case TagMap:
		if v.m == nil {
			return ""
		}
		parts := make([]string, 0, v.m.Len())
		for _, k := range v.m.Keys() {
			val, _ := v.m.Get(k)
			parts = append(parts, k+": "+val.Display())
		}
		return strings.Join(parts, ", ")
	case TagOpaque:
		if s, ok := v.host.(fmt.Stringer); ok {
			return s.String()
		}
		return fmt.Sprintf("%v", v.host)
	default:
		return ""
	}
}

// formatFloat normalizes a float to at most six decimal places with
// trailing zeros stripped, using shopspring/decimal rather than
// strconv.FormatFloat so that the rounding mode is explicit and stable
// (see DESIGN.md's value.go entry).
func formatFloat(f float64) string {
	d := decimal.NewFromFloat(f).Round(6)
	s := d.String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "" || s == "-0" {
		s = "0"
	}
	return s
}

// Equal implements the Eq operator's equality semantics: numeric values
// compare by number regardless of Int/Float tag, everything else by
// display-independent structural comparison where possible.
func Equal(a, b Value) bool {
	if an, aok := a.AsNumber(); aok {
		if bn, bok := b.AsNumber(); bok && a.Tag != TagStr && b.Tag != TagStr {
			return an == bn
		}
	}
	if a.Tag != b.Tag {
		return false
	}
	switch a.Tag {
	case TagNull:
		return true
	case TagStr:
		return a.str == b.str
	case TagBool:
		return a.b == b.b
	case TagArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case TagMap:
		if a.m.Len() != b.m.Len() {
			return false
		}
		for _, k := range a.m.Keys() {
			av, _ := a.m.Get(k)
			bv, ok := b.m.Get(k)
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Compare implements the Starship (<=>) operator and backs Lt/Lte/Gt/Gte.
// Numeric values compare numerically; otherwise values fall back to
// string comparison.
func Compare(a, b Value) int {
	an, aok := a.AsNumber()
	bn, bok := b.AsNumber()
	if aok && bok && a.Tag != TagStr && b.Tag != TagStr {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}
	as, bs := a.Display(), b.Display()
	return strings.Compare(as, bs)
}

// DataFromJSON decodes a JSON object into an *OrderedMap suitable for a
// Render call's data argument, preserving source key order via gjson's
// ForEach rather than encoding/json's map[string]any (which randomizes
// iteration order) — see DESIGN.md's value.go entry.
func DataFromJSON(raw []byte) (*OrderedMap, error) {
	result := gjson.ParseBytes(raw)
	if !result.IsObject() {
		return nil, typeErrorf("top-level JSON data must be an object, got %s", result.Type)
	}
	return gjsonObjectToMap(result), nil
}

func gjsonToValue(r gjson.Result) Value {
	switch r.Type {
	case gjson.Null:
		return Null()
	case gjson.False:
		return Bool(false)
	case gjson.True:
		return Bool(true)
	case gjson.String:
		return Str(r.String())
	case gjson.Number:
		if r.Num == float64(int64(r.Num)) && !strings.ContainsAny(r.Raw, ".eE") {
			return Int(int64(r.Num))
		}
		return Float(r.Num)
	case gjson.JSON:
		if r.IsArray() {
			items := []Value{}
			r.ForEach(func(_, v gjson.Result) bool {
				items = append(items, gjsonToValue(v))
				return true
			})
			return Array(items)
		}
		return Map(gjsonObjectToMap(r))
	default:
		return Null()
	}
}

func gjsonObjectToMap(r gjson.Result) *OrderedMap {
	m := NewOrderedMap()
	r.ForEach(func(k, v gjson.Result) bool {
		m.Set(k.String(), gjsonToValue(v))
		return true
	})
	return m
}
