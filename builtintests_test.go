package twigx

import "testing"

func TestRunBuiltinTestDivisibleBy(t *testing.T) {
	ok, err := runBuiltinTest("divisibleby", Int(10), []Value{Int(5)})
	if err != nil || !ok {
		t.Errorf("expected 10 divisibleby 5 to be true, got %v, %v", ok, err)
	}
	ok, _ = runBuiltinTest("divisibleby", Int(10), []Value{Int(3)})
	if ok {
		t.Errorf("expected 10 divisibleby 3 to be false")
	}
}

func TestRunBuiltinTestDivisibleByZeroIsFalse(t *testing.T) {
	ok, err := runBuiltinTest("divisibleby", Int(10), []Value{Int(0)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Errorf("expected divisibleby 0 to be false, not an error")
	}
}

func TestRunBuiltinTestEvenOdd(t *testing.T) {
	if ok, _ := runBuiltinTest("even", Int(4), nil); !ok {
		t.Errorf("expected 4 to be even")
	}
	if ok, _ := runBuiltinTest("odd", Int(4), nil); ok {
		t.Errorf("expected 4 to not be odd")
	}
	if ok, _ := runBuiltinTest("odd", Int(3), nil); !ok {
		t.Errorf("expected 3 to be odd")
	}
}

func TestRunBuiltinTestIterable(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Array([]Value{Int(1)}), true},
		{Map(NewOrderedMap()), true},
		{Str("x"), true},
		{Int(1), false},
		{Null(), false},
	}
	for _, c := range cases {
		got, _ := runBuiltinTest("iterable", c.v, nil)
		if got != c.want {
			t.Errorf("iterable(%v): expected %v, got %v", c.v, c.want, got)
		}
	}
}

func TestRunBuiltinTestNull(t *testing.T) {
	if ok, _ := runBuiltinTest("null", Null(), nil); !ok {
		t.Errorf("expected Null() to satisfy 'null'")
	}
	if ok, _ := runBuiltinTest("null", Int(0), nil); ok {
		t.Errorf("expected Int(0) to not satisfy 'null'")
	}
}

func TestRunBuiltinTestNumberExcludesStrings(t *testing.T) {
	if ok, _ := runBuiltinTest("number", Int(1), nil); !ok {
		t.Errorf("expected Int to satisfy 'number'")
	}
	if ok, _ := runBuiltinTest("number", Str("1"), nil); ok {
		t.Errorf("expected a numeric-looking string to not satisfy 'number'")
	}
}

func TestRunBuiltinTestString(t *testing.T) {
	if ok, _ := runBuiltinTest("string", Str("x"), nil); !ok {
		t.Errorf("expected Str to satisfy 'string'")
	}
	if ok, _ := runBuiltinTest("string", Int(1), nil); ok {
		t.Errorf("expected Int to not satisfy 'string'")
	}
}

func TestRunBuiltinTestUnknownNameIsCallError(t *testing.T) {
	_, err := runBuiltinTest("bogus", Int(1), nil)
	if err == nil {
		t.Fatalf("expected an error for an unknown test name")
	}
	if kind, ok := KindOf(err); !ok || kind != KindCall {
		t.Errorf("expected KindCall, got %v", err)
	}
}
