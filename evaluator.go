package twigx

import (
	"math"
	"strings"
)

// renderContents walks a Content sequence, appending each item's
// rendering in document order.
// renderChildren (a switch over node types accumulating into a result
// string), generalized to the typed Content/Block tree.
func renderContents(contents []Content, env *Environment) (string, error) {
	var sb strings.Builder
	for _, c := range contents {
		out, err := renderContent(c, env)
		if err != nil {
			return "", err
		}
		sb.WriteString(out)
	}
	return sb.String(), nil
}

func renderContent(c Content, env *Environment) (string, error) {
	switch c.Kind {
	case ContentText:
		return c.Text, nil
	case ContentPrint:
		v, err := evalExpr(c.Expr, env)
		if err != nil {
			return "", err
		}
		return v.Display(), nil
	case ContentStatement:
		return renderStmt(c.Stmt, env)
	case ContentBlock:
		return renderBlock(c.Blk, env)
	default:
		return "", nil
	}
}

func renderStmt(s *Stmt, env *Environment) (string, error) {
	switch s.Kind {
	case StmtSet:
		v, err := evalExpr(s.SetValue, env)
		if err != nil {
			return "", err
		}
		if err := env.Set(s.SetTarget, v); err != nil {
			return "", err
		}
		return "", nil
	case StmtInclude:
		// The Loader inlines every include before a Module reaches the
		// evaluator; reaching this means a Module bypassed Loader.Load.
		return "", resolveErrorf("", "unresolved include %q", s.IncludeName)
	default:
		return "", nil
	}
}

func renderBlock(b *Block, env *Environment) (string, error) {
	switch b.Kind {
	case BlockNamed:
		env.PushScope()
		out, err := renderContents(b.Contents, env)
		if popErr := env.PopScope(); popErr != nil && err == nil {
			err = popErr
		}
		if err != nil {
			return "", err
		}
		return out, nil
	case BlockLoop:
		return renderLoop(b, env)
	case BlockIf:
		return renderIf(b, env)
	default:
		return "", nil
	}
}

func renderLoop(b *Block, env *Environment) (string, error) {
	iter, err := evalExpr(b.LoopIter, env)
	if err != nil {
		return "", err
	}

	type entry struct {
		key Value
		val Value
	}
	var items []entry
	switch iter.Tag {
	case TagArray:
		for i, v := range iter.AsArray() {
			items = append(items, entry{key: Int(int64(i)), val: v})
		}
	case TagMap:
		if m := iter.AsMap(); m != nil {
			for _, k := range m.Keys() {
				v, _ := m.Get(k)
				items = append(items, entry{key: Str(k), val: v})
			}
		}
	default:
		return "", typeErrorf("'for' requires an Array or Map, got %v", iter.Tag)
	}

	env.PushScope()
	var sb strings.Builder
	n := len(items)
	for i, it := range items {
		if b.LoopKeyVar != "" {
			env.Bind(b.LoopKeyVar, it.key)
		}
		env.Bind(b.LoopValVar, it.val)
		env.Bind("loop", Map(loopContext(i, n)))

		out, err := renderContents(b.Contents, env)
		if err != nil {
			env.PopScope()
			return "", err
		}
		sb.WriteString(out)
	}
	if err := env.PopScope(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// loopContext builds the implicit `loop` variable exposed inside a
// for-body.
func loopContext(i, n int) *OrderedMap {
	m := NewOrderedMap()
	m.Set("index", Int(int64(i+1)))
	m.Set("index0", Int(int64(i)))
	m.Set("first", Bool(i == 0))
	m.Set("last", Bool(i == n-1))
	m.Set("length", Int(int64(n)))
	return m
}

func renderIf(b *Block, env *Environment) (string, error) {
	cond, err := evalExpr(b.IfCond, env)
	if err != nil {
		return "", err
	}
	if cond.Truthy() {
		return renderContents(b.Contents, env)
	}
	if b.Else != nil {
		return renderContents(b.Else, env)
	}
	return "", nil
}

// evalExpr evaluates an Expression against env.
func evalExpr(e *Expression, env *Environment) (Value, error) {
	switch e.Kind {
	case ExprStr:
		return Str(e.StrVal), nil
	case ExprNumber:
		return Int(e.IntVal), nil
	case ExprFloat:
		return Float(e.FloatVal), nil
	case ExprBool:
		return Bool(e.BoolVal), nil
	case ExprNull:
		return Null(), nil
	case ExprVar:
		return env.Lookup(e.VarPath)
	case ExprParent:
		// Should have been rewritten to a Block during inheritance
		// resolution; reaching this means Parent had no enclosing block.
		return Null(), nil
	case ExprArray:
		items := make([]Value, len(e.Items))
		for i, it := range e.Items {
			v, err := evalExpr(it, env)
			if err != nil {
				return Null(), err
			}
			items[i] = v
		}
		return Array(items), nil
	case ExprHashMap:
		m := NewOrderedMap()
		for _, pr := range e.Pairs {
			k, err := evalExpr(pr.Key, env)
			if err != nil {
				return Null(), err
			}
			v, err := evalExpr(pr.Val, env)
			if err != nil {
				return Null(), err
			}
			m.Set(k.Display(), v)
		}
		return Map(m), nil
	case ExprFuncCall:
		return evalFuncCall(e, env)
	case ExprFilterCall:
		return evalFilterCall(e, env)
	case ExprTerm:
		return evalTerm(e, env)
	default:
		return Null(), typeErrorf("unknown expression kind")
	}
}

func evalFuncCall(e *Expression, env *Environment) (Value, error) {
	fn, err := env.GetFunction(e.Name)
	if err != nil {
		return Null(), err
	}
	args := make([]Value, len(e.Params))
	for i, p := range e.Params {
		v, err := evalExpr(p, env)
		if err != nil {
			return Null(), err
		}
		args[i] = v
	}
	v, err := fn(args)
	if err != nil {
		return Null(), callErrorf("function %q: %v", e.Name, err)
	}
	return v, nil
}

func evalFilterCall(e *Expression, env *Environment) (Value, error) {
	fd, err := env.GetFilter(e.Name)
	if err != nil {
		return Null(), err
	}
	args := make([]Value, 0, len(e.Params)+1)
	if fd.NeedsEnvironment {
		args = append(args, Opaque(env))
	}
	for _, p := range e.Params {
		v, err := evalExpr(p, env)
		if err != nil {
			return Null(), err
		}
		args = append(args, v)
	}
	v, err := fd.Fn(args)
	if err != nil {
		return Null(), callErrorf("filter %q: %v", e.Name, err)
	}
	return v, nil
}

func evalTerm(e *Expression, env *Environment) (Value, error) {
	switch e.Op {
	case OpNot:
		v, err := evalExpr(e.Params[0], env)
		if err != nil {
			return Null(), err
		}
		if v.Tag != TagBool {
			return Null(), typeErrorf("'not' requires a Bool operand, got %v", v.Tag)
		}
		return Bool(!v.AsBool()), nil
	case OpAnd, OpOr:
		return evalAndOr(e, env)
	case OpIs:
		return evalIs(e.Params[0], e.Params[1], env)
	}

	lhs, err := evalExpr(e.Params[0], env)
	if err != nil {
		return Null(), err
	}
	rhs, err := evalExpr(e.Params[1], env)
	if err != nil {
		return Null(), err
	}

	switch e.Op {
	case OpAdd, OpSub, OpMul:
		return arith(e.Op, lhs, rhs)
	case OpDiv:
		return arithDiv(lhs, rhs)
	case OpDivi:
		return arithDivi(lhs, rhs)
	case OpModulo:
		return arithModulo(lhs, rhs)
	case OpExp:
		return arithExp(lhs, rhs)
	case OpStrConcat:
		return Str(lhs.Display() + rhs.Display()), nil
	case OpRange:
		return rangeValue(lhs, rhs)
	case OpEq:
		return Bool(Equal(lhs, rhs)), nil
	case OpNeq:
		return Bool(!Equal(lhs, rhs)), nil
	case OpLt:
		return Bool(Compare(lhs, rhs) < 0), nil
	case OpLte:
		return Bool(Compare(lhs, rhs) <= 0), nil
	case OpGt:
		return Bool(Compare(lhs, rhs) > 0), nil
	case OpGte:
		return Bool(Compare(lhs, rhs) >= 0), nil
	case OpStarship:
		return Int(int64(Compare(lhs, rhs))), nil
	case OpBAnd:
		return bitwise(lhs, rhs, func(a, b int64) int64 { return a & b })
	case OpBOr:
		return bitwise(lhs, rhs, func(a, b int64) int64 { return a | b })
	case OpBXor:
		return bitwise(lhs, rhs, func(a, b int64) int64 { return a ^ b })
	case OpIn:
		return inOp(lhs, rhs)
	case OpMatches:
		return matchesOp(lhs, rhs, env)
	case OpStartsWith:
		return Bool(strings.HasPrefix(lhs.Display(), rhs.Display())), nil
	case OpEndsWith:
		return Bool(strings.HasSuffix(lhs.Display(), rhs.Display())), nil
	case OpNullCoal:
		if !lhs.IsNull() {
			return lhs, nil
		}
		return rhs, nil
	case OpArrayIndex, OpTernary, OpGet:
		// Reserved by the precedence table but never produced by the
		// parser today; TODOs, not panics.
		return Null(), typeErrorf("operator %v is reserved and not yet implemented", e.Op)
	default:
		return Null(), typeErrorf("unsupported operator %v", e.Op)
	}
}

func evalAndOr(e *Expression, env *Environment) (Value, error) {
	l, err := evalExpr(e.Params[0], env)
	if err != nil {
		return Null(), err
	}
	if l.Tag != TagBool {
		return Null(), typeErrorf("%v requires Bool operands, got %v", e.Op, l.Tag)
	}
	if e.Op == OpAnd && !l.AsBool() {
		return Bool(false), nil
	}
	if e.Op == OpOr && l.AsBool() {
		return Bool(true), nil
	}
	r, err := evalExpr(e.Params[1], env)
	if err != nil {
		return Null(), err
	}
	if r.Tag != TagBool {
		return Null(), typeErrorf("%v requires Bool operands, got %v", e.Op, r.Tag)
	}
	return r, nil
}

// evalIs implements the Is operator. Its right-hand side is a test
// name (bare Var) or test call (FuncCall), optionally wrapped in one or
// more prefix Not nodes for "is not" negation.
func evalIs(lhsExpr, rhsExpr *Expression, env *Environment) (Value, error) {
	negate := false
	te := rhsExpr
	for te.Kind == ExprTerm && te.Op == OpNot {
		negate = !negate
		te = te.Params[0]
	}

	var testName string
	var argExprs []*Expression
	switch te.Kind {
	case ExprVar:
		testName = te.VarPath
	case ExprFuncCall:
		testName = te.Name
		argExprs = te.Params
	default:
		return Null(), typeErrorf("'is' right-hand side must be a test name")
	}

	if testName == "defined" || testName == "undefined" {
		isDefined, err := exprIsDefined(lhsExpr, env)
		if err != nil {
			return Null(), err
		}
		result := isDefined
		if testName == "undefined" {
			result = !isDefined
		}
		if negate {
			result = !result
		}
		return Bool(result), nil
	}

	lhsVal, err := evalExpr(lhsExpr, env)
	if err != nil {
		return Null(), err
	}
	args := make([]Value, len(argExprs))
	for i, a := range argExprs {
		v, err := evalExpr(a, env)
		if err != nil {
			return Null(), err
		}
		args[i] = v
	}
	result, err := runBuiltinTest(testName, lhsVal, args)
	if err != nil {
		return Null(), err
	}
	if negate {
		result = !result
	}
	return Bool(result), nil
}

func exprIsDefined(lhsExpr *Expression, env *Environment) (bool, error) {
	if lhsExpr.Kind == ExprVar {
		return env.Defined(lhsExpr.VarPath), nil
	}
	_, err := evalExpr(lhsExpr, env)
	if err == nil {
		return true, nil
	}
	if kind, ok := KindOf(err); ok && kind == KindLookup {
		return false, nil
	}
	return false, err
}

// numericOperands centralizes numeric coercion so every arithmetic
// operator shares identical promotion rules.
func numericOperands(lhs, rhs Value) (ln, rn float64, bothInt, ok bool) {
	ln, lok := lhs.AsNumber()
	rn, rok := rhs.AsNumber()
	if !lok || !rok {
		return 0, 0, false, false
	}
	return ln, rn, lhs.Tag == TagInt && rhs.Tag == TagInt, true
}

func arith(op Operator, lhs, rhs Value) (Value, error) {
	ln, rn, bothInt, ok := numericOperands(lhs, rhs)
	if !ok {
		return Null(), typeErrorf("%v requires numeric operands", op)
	}
	if bothInt {
		switch op {
		case OpAdd:
			return Int(lhs.AsInt() + rhs.AsInt()), nil
		case OpSub:
			return Int(lhs.AsInt() - rhs.AsInt()), nil
		case OpMul:
			return Int(lhs.AsInt() * rhs.AsInt()), nil
		}
	}
	switch op {
	case OpAdd:
		return Float(ln + rn), nil
	case OpSub:
		return Float(ln - rn), nil
	default:
		return Float(ln * rn), nil
	}
}

func arithDiv(lhs, rhs Value) (Value, error) {
	ln, rn, _, ok := numericOperands(lhs, rhs)
	if !ok {
		return Null(), typeErrorf("'/' requires numeric operands")
	}
	if rn == 0 {
		return Null(), typeErrorf("division by zero")
	}
	return Float(ln / rn), nil
}

func arithDivi(lhs, rhs Value) (Value, error) {
	if lhs.Tag != TagInt || rhs.Tag != TagInt {
		return Null(), typeErrorf("'//' requires both operands to be Int")
	}
	if rhs.AsInt() == 0 {
		return Null(), typeErrorf("integer division by zero")
	}
	return Int(lhs.AsInt() / rhs.AsInt()), nil
}

func arithModulo(lhs, rhs Value) (Value, error) {
	ln, rn, bothInt, ok := numericOperands(lhs, rhs)
	if !ok {
		return Null(), typeErrorf("'%%' requires numeric operands")
	}
	if bothInt {
		if rhs.AsInt() == 0 {
			return Null(), typeErrorf("modulo by zero")
		}
		return Int(lhs.AsInt() % rhs.AsInt()), nil
	}
	if rn == 0 {
		return Null(), typeErrorf("modulo by zero")
	}
	return Float(math.Mod(ln, rn)), nil
}

func arithExp(lhs, rhs Value) (Value, error) {
	ln, rn, bothInt, ok := numericOperands(lhs, rhs)
	if !ok {
		return Null(), typeErrorf("'**' requires numeric operands")
	}
	res := math.Pow(ln, rn)
	if bothInt && rn >= 0 {
		return Int(int64(res)), nil
	}
	return Float(res), nil
}

func rangeValue(lhs, rhs Value) (Value, error) {
	if lhs.Tag != TagInt || rhs.Tag != TagInt {
		return Null(), typeErrorf("'..' requires Int operands")
	}
	a, b := lhs.AsInt(), rhs.AsInt()
	var items []Value
	if a <= b {
		for i := a; i <= b; i++ {
			items = append(items, Int(i))
		}
	} else {
		for i := a; i >= b; i-- {
			items = append(items, Int(i))
		}
	}
	return Array(items), nil
}

func bitwise(lhs, rhs Value, f func(int64, int64) int64) (Value, error) {
	if lhs.Tag != TagInt || rhs.Tag != TagInt {
		return Null(), typeErrorf("bitwise operator requires Int operands")
	}
	return Int(f(lhs.AsInt(), rhs.AsInt())), nil
}

func inOp(lhs, rhs Value) (Value, error) {
	switch rhs.Tag {
	case TagArray:
		for _, v := range rhs.AsArray() {
			if Equal(lhs, v) {
				return Bool(true), nil
			}
		}
		return Bool(false), nil
	case TagMap:
		m := rhs.AsMap()
		if m == nil {
			return Bool(false), nil
		}
		_, ok := m.Get(lhs.Display())
		return Bool(ok), nil
	case TagStr:
		return Bool(strings.Contains(rhs.AsStr(), lhs.Display())), nil
	default:
		return Null(), typeErrorf("'in' requires an Array, Map, or Str right-hand side")
	}
}

func matchesOp(lhs, rhs Value, env *Environment) (Value, error) {
	ok, err := env.MatchRegex(rhs.Display(), lhs.Display())
	if err != nil {
		return Null(), err
	}
	return Bool(ok), nil
}
