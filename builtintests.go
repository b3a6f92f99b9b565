package twigx

// runBuiltinTest dispatches the right-hand side of the Is operator,
// which is a first-class operator rather than a regex-driven rewrite
// into synthetic filter calls — see DESIGN.md's builtintests.go entry. "defined"/"undefined" are handled
// by the caller (evalIs in evaluator.go) since they need to observe
// whether lookup succeeded, not a Value.
func runBuiltinTest(name string, subject Value, args []Value) (bool, error) {
	switch name {
	case "divisibleby":
		return testDivisibleBy(subject, args), nil
	case "even":
		return testEven(subject), nil
	case "odd":
		return testOdd(subject), nil
	case "iterable":
		return testIterable(subject), nil
	case "null":
		return subject.IsNull(), nil
	case "number":
		_, ok := subject.AsNumber()
		return ok && subject.Tag != TagStr, nil
	case "string":
		return subject.Tag == TagStr, nil
	default:
		return false, callErrorf("unknown test %q", name)
	}
}

func testDivisibleBy(subject Value, args []Value) bool {
	if len(args) == 0 {
		return false
	}
	num, ok := subject.AsNumber()
	if !ok {
		return false
	}
	divisor, ok := args[0].AsNumber()
	if !ok || divisor == 0 {
		return false
	}
	return int64(num)%int64(divisor) == 0
}

func testEven(subject Value) bool {
	num, ok := subject.AsNumber()
	if !ok {
		return false
	}
	return int64(num)%2 == 0
}

func testOdd(subject Value) bool {
	num, ok := subject.AsNumber()
	if !ok {
		return false
	}
	return int64(num)%2 != 0
}

func testIterable(subject Value) bool {
	switch subject.Tag {
	case TagArray, TagMap, TagStr:
		return true
	default:
		return false
	}
}
