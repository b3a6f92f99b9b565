package twigx

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"
)

// builtinRegistry returns the Registry backing twigx's builtin filters,
// retargeted from an `any`-based filter table onto Value, and
// retargeted from `any` onto Value. None of these need the environment.
func builtinRegistry() Registry {
	r := NewMapRegistry()
	for name, fn := range builtinFilters {
		r.Filters[name] = FilterDef{Fn: fn}
	}
	return r
}

var builtinFilters = map[string]Callable{
	"abs":            filterAbs,
	"attr":           filterAttr,
	"capitalize":     filterCapitalize,
	"default":        filterDefault,
	"filesizeformat": filterFileSizeFormat,
	"first":          filterFirst,
	"sprintf":        filterSprintf,
	"join":           filterJoin,
	"split":          filterSplit,
	"last":           filterLast,
	"length":         filterLength,
	"count":          filterLength,
	"lower":          filterLower,
	"debug":          filterDebug,
	"d":              filterDebug,
	"replace":        filterReplace,
	"reverse":        filterReverse,
	"round":          filterRound,
	"sum":            filterSum,
	"title":          filterTitle,
	"trim":           filterTrim,
	"truncate":       filterTruncate,
	"upper":          filterUpper,
	"urlencode":      filterURLEncode,
	"raw":            filterRaw,
}

func arg(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return Null()
}

func filterRaw(args []Value) (Value, error) {
	return Str(arg(args, 0).Display()), nil
}

func filterAbs(args []Value) (Value, error) {
	v := arg(args, 0)
	n, ok := v.AsNumber()
	if !ok {
		return v, nil
	}
	if v.Tag == TagInt {
		if v.AsInt() < 0 {
			return Int(-v.AsInt()), nil
		}
		return v, nil
	}
	return Float(math.Abs(n)), nil
}

func filterAttr(args []Value) (Value, error) {
	obj, name := arg(args, 0), arg(args, 1)
	if obj.Tag == TagMap {
		if m := obj.AsMap(); m != nil {
			if v, ok := m.Get(name.Display()); ok {
				return v, nil
			}
		}
		return Null(), nil
	}
	if obj.Tag == TagOpaque {
		if ha, ok := obj.AsHost().(HostAccessor); ok {
			v, err := ha.GetMember(name.Display())
			if err != nil {
				return Null(), nil
			}
			return v, nil
		}
	}
	return Null(), nil
}

func filterCapitalize(args []Value) (Value, error) {
	s := arg(args, 0).Display()
	if s == "" {
		return Str(s), nil
	}
	return Str(strings.ToUpper(s[:1]) + s[1:]), nil
}

func filterDefault(args []Value) (Value, error) {
	v := arg(args, 0)
	strict := len(args) > 2 && arg(args, 2).Truthy()
	if strict {
		if !v.Truthy() {
			return arg(args, 1), nil
		}
		return v, nil
	}
	if v.IsNull() {
		return arg(args, 1), nil
	}
	return v, nil
}

func filterFileSizeFormat(args []Value) (Value, error) {
	v := arg(args, 0)
	num, ok := v.AsNumber()
	if !ok {
		return Str(v.Display()), nil
	}
	binary := arg(args, 1).Truthy()

	base := 1000.0
	units := []string{"Bytes", "kB", "MB", "GB", "TB", "PB"}
	if binary {
		base = 1024
		units = []string{"Bytes", "KiB", "MiB", "GiB", "TiB", "PiB"}
	}
	if num < base {
		return Str(fmt.Sprintf("%.0f %s", num, units[0])), nil
	}
	exp := int(math.Log(num) / math.Log(base))
	if exp >= len(units) {
		exp = len(units) - 1
	}
	scaled := num / math.Pow(base, float64(exp))
	return Str(fmt.Sprintf("%.1f %s", scaled, units[exp])), nil
}

func filterFirst(args []Value) (Value, error) {
	v := arg(args, 0)
	n := 1
	if len(args) > 1 {
		if f, ok := arg(args, 1).AsNumber(); ok {
			n = int(f)
		}
	}
	arr := sliceOf(v)
	if arr == nil {
		return v, nil
	}
	if n >= len(arr) {
		return Array(arr), nil
	}
	if n == 1 && len(arr) > 0 {
		return arr[0], nil
	}
	return Array(arr[:n]), nil
}

func filterLast(args []Value) (Value, error) {
	v := arg(args, 0)
	n := 1
	if len(args) > 1 {
		if f, ok := arg(args, 1).AsNumber(); ok {
			n = int(f)
		}
	}
	arr := sliceOf(v)
	if arr == nil {
		return v, nil
	}
	if n >= len(arr) {
		return Array(arr), nil
	}
	if n == 1 && len(arr) > 0 {
		return arr[len(arr)-1], nil
	}
	return Array(arr[len(arr)-n:]), nil
}

func filterSprintf(args []Value) (Value, error) {
	v := arg(args, 0)
	if len(args) < 2 {
		return Str(v.Display()), nil
	}
	format := arg(args, 1).Display()
	return Str(fmt.Sprintf(format, displayArg(v))), nil
}

func displayArg(v Value) any {
	switch v.Tag {
	case TagInt:
		return v.AsInt()
	case TagFloat:
		return v.AsFloat()
	case TagBool:
		return v.AsBool()
	default:
		return v.Display()
	}
}

func filterJoin(args []Value) (Value, error) {
	v := arg(args, 0)
	sep := ""
	if len(args) > 1 {
		sep = arg(args, 1).Display()
	}
	attribute := ""
	if len(args) > 2 {
		attribute = arg(args, 2).Display()
	}
	arr := sliceOf(v)
	if arr == nil {
		return Str(v.Display()), nil
	}
	parts := make([]string, len(arr))
	for i, item := range arr {
		if attribute != "" {
			av, _ := filterAttr([]Value{item, Str(attribute)})
			item = av
		}
		parts[i] = item.Display()
	}
	return Str(strings.Join(parts, sep)), nil
}

func filterSplit(args []Value) (Value, error) {
	s := arg(args, 0).Display()
	sep := ""
	if len(args) > 1 {
		sep = arg(args, 1).Display()
	}
	if sep == "" {
		items := make([]Value, 0, len(s))
		for _, r := range s {
			items = append(items, Str(string(r)))
		}
		return Array(items), nil
	}
	parts := strings.Split(s, sep)
	items := make([]Value, len(parts))
	for i, p := range parts {
		items[i] = Str(p)
	}
	return Array(items), nil
}

func filterLength(args []Value) (Value, error) {
	v := arg(args, 0)
	switch v.Tag {
	case TagArray:
		return Int(int64(len(v.AsArray()))), nil
	case TagMap:
		if m := v.AsMap(); m != nil {
			return Int(int64(m.Len())), nil
		}
		return Int(0), nil
	case TagStr:
		return Int(int64(len(v.AsStr()))), nil
	default:
		return Int(0), nil
	}
}

func filterLower(args []Value) (Value, error) {
	return Str(strings.ToLower(arg(args, 0).Display())), nil
}

func filterUpper(args []Value) (Value, error) {
	return Str(strings.ToUpper(arg(args, 0).Display())), nil
}

func filterDebug(args []Value) (Value, error) {
	b, err := json.MarshalIndent(valueToAny(arg(args, 0)), "", "  ")
	if err != nil {
		return Str(arg(args, 0).Display()), nil
	}
	return Str(string(b)), nil
}

func valueToAny(v Value) any {
	switch v.Tag {
	case TagStr:
		return v.AsStr()
	case TagInt:
		return v.AsInt()
	case TagFloat:
		return v.AsFloat()
	case TagBool:
		return v.AsBool()
	case TagNull:
		return nil
	case TagArray:
		out := make([]any, len(v.AsArray()))
		for i, it := range v.AsArray() {
			out[i] = valueToAny(it)
		}
		return out
	case TagMap:
		out := map[string]any{}
		if m := v.AsMap(); m != nil {
			for _, k := range m.Keys() {
				mv, _ := m.Get(k)
				out[k] = valueToAny(mv)
			}
		}
		return out
	default:
		return v.Display()
	}
}

func filterReplace(args []Value) (Value, error) {
	s := arg(args, 0).Display()
	if len(args) < 3 {
		return Str(s), nil
	}
	old := arg(args, 1).Display()
	new := arg(args, 2).Display()
	count := -1
	if len(args) > 3 {
		if n, ok := arg(args, 3).AsNumber(); ok {
			count = int(n)
		}
	}
	if count < 0 {
		return Str(strings.ReplaceAll(s, old, new)), nil
	}
	return Str(strings.Replace(s, old, new, count)), nil
}

func filterReverse(args []Value) (Value, error) {
	v := arg(args, 0)
	if v.Tag == TagArray {
		arr := v.AsArray()
		out := make([]Value, len(arr))
		for i, item := range arr {
			out[len(arr)-1-i] = item
		}
		return Array(out), nil
	}
	if v.Tag == TagStr {
		runes := []rune(v.AsStr())
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return Str(string(runes)), nil
	}
	return v, nil
}

func filterRound(args []Value) (Value, error) {
	v := arg(args, 0)
	num, ok := v.AsNumber()
	if !ok {
		return Float(0), nil
	}
	precision := 0
	if len(args) > 1 {
		if p, ok := arg(args, 1).AsNumber(); ok {
			precision = int(p)
		}
	}
	method := "common"
	if len(args) > 2 {
		method = arg(args, 2).Display()
	}

	multiplier := math.Pow(10, float64(precision))
	scaled := num * multiplier
	var rounded float64
	switch method {
	case "ceil":
		rounded = math.Ceil(scaled)
	case "floor":
		rounded = math.Floor(scaled)
	case "down":
		if scaled >= 0 {
			rounded = math.Ceil(scaled - 0.5)
		} else {
			rounded = math.Floor(scaled + 0.5)
		}
	case "even", "banker":
		rounded = math.RoundToEven(scaled)
	default: // "up", "common", or anything unrecognized — round half away from zero
		if scaled >= 0 {
			rounded = math.Floor(scaled + 0.5)
		} else {
			rounded = math.Ceil(scaled - 0.5)
		}
	}
	return Float(rounded / multiplier), nil
}

func filterSum(args []Value) (Value, error) {
	v := arg(args, 0)
	attribute := ""
	if len(args) > 1 {
		attribute = arg(args, 1).Display()
	}
	arr := sliceOf(v)
	sum := 0.0
	for _, item := range arr {
		if attribute != "" {
			av, _ := filterAttr([]Value{item, Str(attribute)})
			item = av
		}
		if n, ok := item.AsNumber(); ok {
			sum += n
		}
	}
	return Float(sum), nil
}

func filterTitle(args []Value) (Value, error) {
	s := arg(args, 0).Display()
	return Str(strings.Title(s)), nil
}

func filterTrim(args []Value) (Value, error) {
	return Str(strings.TrimSpace(arg(args, 0).Display())), nil
}

func filterTruncate(args []Value) (Value, error) {
	s := arg(args, 0).Display()
	length := 255
	if len(args) > 1 {
		if l, ok := arg(args, 1).AsNumber(); ok {
			length = int(l)
		}
	}
	end := "..."
	if len(args) > 2 {
		end = arg(args, 2).Display()
	}
	if len(s) <= length {
		return Str(s), nil
	}
	cut := length - len(end)
	if cut < 0 {
		cut = 0
	}
	return Str(s[:cut] + end), nil
}

func filterURLEncode(args []Value) (Value, error) {
	v := arg(args, 0)
	if v.Tag == TagMap {
		values := url.Values{}
		if m := v.AsMap(); m != nil {
			for _, k := range m.Keys() {
				mv, _ := m.Get(k)
				values.Add(k, mv.Display())
			}
		}
		return Str(values.Encode()), nil
	}
	return Str(url.QueryEscape(v.Display())), nil
}

// sliceOf returns v's elements as a []Value if v is an Array, or nil
// otherwise (no reflection path is needed, unlike a generic toSlice,
// since Value already carries a single array representation).
func sliceOf(v Value) []Value {
	if v.Tag != TagArray {
		return nil
	}
	return v.AsArray()
}
