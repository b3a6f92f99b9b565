package twigx

import "testing"

func evalSrc(t *testing.T, src string, env *Environment) Value {
	t.Helper()
	expr, err := parseExpressionSrc(src)
	if err != nil {
		t.Fatalf("parseExpressionSrc(%q): %v", src, err)
	}
	v, err := evalExpr(expr, env)
	if err != nil {
		t.Fatalf("evalExpr(%q): %v", src, err)
	}
	return v
}

func TestExprParserArithmeticPrecedence(t *testing.T) {
	env := NewEnvironment(nil, NewMapRegistry(), false)
	if got := evalSrc(t, "2 + 3 * 4", env); got.AsInt() != 14 {
		t.Errorf("expected 14, got %v", got.AsInt())
	}
	if got := evalSrc(t, "(2 + 3) * 4", env); got.AsInt() != 20 {
		t.Errorf("expected 20, got %v", got.AsInt())
	}
}

func TestExprParserLeftAssociativity(t *testing.T) {
	env := NewEnvironment(nil, NewMapRegistry(), false)
	// 10 - 3 - 2 must parse as (10 - 3) - 2 = 5, not 10 - (3 - 2) = 9.
	if got := evalSrc(t, "10 - 3 - 2", env); got.AsInt() != 5 {
		t.Errorf("expected left-associative 5, got %v", got.AsInt())
	}
}

func TestExprParserNotBindsTighterThanAnd(t *testing.T) {
	globals := NewOrderedMap()
	globals.Set("a", Bool(false))
	globals.Set("b", Bool(true))
	env := NewEnvironment(globals, NewMapRegistry(), false)
	// "not a and b" must parse as "(not a) and b", not "not (a and b)".
	if got := evalSrc(t, "not a and b", env); !got.AsBool() {
		t.Errorf("expected true")
	}
}

func TestExprParserFilterChainsLeftToRight(t *testing.T) {
	env := NewEnvironment(nil, WithBuiltins(NewMapRegistry()), false)
	got := evalSrc(t, `"  HeLLo  " | trim | lower`, env)
	if got.AsStr() != "hello" {
		t.Errorf("expected 'hello', got %q", got.AsStr())
	}
}

func TestExprParserFilterCallWithArgs(t *testing.T) {
	env := NewEnvironment(nil, WithBuiltins(NewMapRegistry()), false)
	got := evalSrc(t, `"a,b,c" | split(",") | join("-")`, env)
	if got.AsStr() != "a-b-c" {
		t.Errorf("expected 'a-b-c', got %q", got.AsStr())
	}
}

func TestExprParserComparisonChainAndLogical(t *testing.T) {
	env := NewEnvironment(nil, NewMapRegistry(), false)
	got := evalSrc(t, `2 + 3 * 4 == 14 and 'foo' in ['foo', 'bar']`, env)
	if !got.AsBool() {
		t.Errorf("expected true")
	}
}

func TestExprParserRangeLiteral(t *testing.T) {
	env := NewEnvironment(nil, NewMapRegistry(), false)
	got := evalSrc(t, "1..3", env)
	if got.Tag != TagArray || len(got.AsArray()) != 3 {
		t.Fatalf("expected a 3-element array, got %v", got)
	}
	if got.AsArray()[0].AsInt() != 1 || got.AsArray()[2].AsInt() != 3 {
		t.Errorf("expected [1,2,3], got %v", got.AsArray())
	}
}

func TestExprParserArrayLiteralIndexAccessViaMemberPath(t *testing.T) {
	globals := NewOrderedMap()
	globals.Set("arr", Array([]Value{Str("x"), Str("y")}))
	env := NewEnvironment(globals, NewMapRegistry(), false)
	v, err := env.Lookup("arr.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.AsStr() != "y" {
		t.Errorf("expected 'y', got %q", v.AsStr())
	}
}

func TestExprParserUnterminatedExpressionIsError(t *testing.T) {
	if _, err := parseExpressionSrc("5 +"); err == nil {
		t.Errorf("expected a parse error for a dangling binary operator")
	}
}

func TestExprParserTrailingGarbageIsError(t *testing.T) {
	if _, err := parseExpressionSrc("5 5"); err == nil {
		t.Errorf("expected a parse error for two adjacent atoms")
	}
}

func TestExprParserHashMapLiteral(t *testing.T) {
	env := NewEnvironment(nil, NewMapRegistry(), false)
	got := evalSrc(t, `{name: "ada", age: 30}`, env)
	if got.Tag != TagMap {
		t.Fatalf("expected a Map")
	}
	name, _ := got.AsMap().Get("name")
	if name.AsStr() != "ada" {
		t.Errorf("expected name 'ada', got %q", name.AsStr())
	}
}
