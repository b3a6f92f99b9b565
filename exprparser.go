package twigx

// bindingPower holds {leftBP, rightBP} for each infix/postfix operator
// driving the Pratt parser. All are left-associative
// (rightBP = leftBP - 1).
var bindingPower = map[Operator][2]int{
	OpGet:        {63, 62},
	OpFilter:     {61, 60},
	OpNullCoal:   {59, 58},
	OpExp:        {57, 56},
	OpIs:         {55, 54},
	OpModulo:     {53, 52},
	OpDivi:       {51, 50},
	OpDiv:        {49, 48},
	OpMul:        {47, 46},
	OpStrConcat:  {45, 44},
	OpSub:        {43, 42},
	OpAdd:        {41, 40},
	OpRange:      {39, 38},
	OpEndsWith:   {37, 36},
	OpStartsWith: {35, 34},
	OpMatches:    {33, 32},
	OpIn:         {31, 30},
	OpLte:        {27, 26},
	OpGte:        {25, 24},
	OpGt:         {23, 22},
	OpLt:         {21, 20},
	OpStarship:   {19, 18},
	OpNeq:        {15, 14},
	OpEq:         {13, 12},
	OpAnd:        {11, 10},
	OpOr:         {9, 8},
	OpBOr:        {7, 6},
	OpBXor:       {5, 4},
	OpBAnd:       {3, 2},
}

const notPrefixBP = 16

// parseExpressionSrc lexes and Pratt-parses a raw expression substring.
func parseExpressionSrc(src string) (*Expression, error) {
	toks, err := lexExpression(src)
	if err != nil {
		return nil, err
	}
	return parseExpression(toks)
}

func parseExpression(toks []Token) (*Expression, error) {
	if len(toks) == 0 {
		return nil, parseErrorf("", "empty expression")
	}
	p := &exprParser{toks: toks}
	expr, err := p.parseBP(0)
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, parseErrorf("", "unexpected token after expression")
	}
	return expr, nil
}

type exprParser struct {
	toks []Token
	pos  int
}

func (p *exprParser) peek() (Token, bool) {
	if p.pos < len(p.toks) {
		return p.toks[p.pos], true
	}
	return Token{}, false
}

func (p *exprParser) next() Token {
	t := p.toks[p.pos]
	p.pos++
	return t
}

func (p *exprParser) parseBP(minBP int) (*Expression, error) {
	lhs, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.Kind != TokOp {
			break
		}
		bp, exists := bindingPower[tok.Op]
		if !exists {
			break
		}
		leftBP, rightBP := bp[0], bp[1]
		if rightBP < minBP {
			break
		}
		p.next()

		if tok.Op == OpFilter {
			lhs, err = p.parseFilterRHS(lhs)
			if err != nil {
				return nil, err
			}
			continue
		}

		rhs, err := p.parseBP(leftBP)
		if err != nil {
			return nil, err
		}
		lhs = &Expression{Kind: ExprTerm, Op: tok.Op, Params: []*Expression{lhs, rhs}}
	}
	return lhs, nil
}

func (p *exprParser) parsePrefix() (*Expression, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, parseErrorf("", "empty expression")
	}
	if tok.Kind == TokOp {
		if tok.Op == OpNot {
			p.next()
			operand, err := p.parseBP(notPrefixBP)
			if err != nil {
				return nil, err
			}
			return &Expression{Kind: ExprTerm, Op: OpNot, Params: []*Expression{operand}}, nil
		}
		return nil, parseErrorf("", "operator used in prefix position where a value was expected")
	}
	p.next()
	return atomToExpr(tok)
}

func (p *exprParser) parseFilterRHS(lhs *Expression) (*Expression, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, parseErrorf("", "expected filter name after '|'")
	}
	switch tok.Kind {
	case TokVar:
		p.next()
		return &Expression{Kind: ExprFilterCall, Name: tok.Str, Params: []*Expression{lhs}}, nil
	case TokFuncCall:
		p.next()
		params := make([]*Expression, 0, len(tok.Items)+1)
		params = append(params, lhs)
		for _, it := range tok.Items {
			e, err := parseExpression(it)
			if err != nil {
				return nil, err
			}
			params = append(params, e)
		}
		return &Expression{Kind: ExprFilterCall, Name: tok.Str, Params: params}, nil
	default:
		return nil, parseErrorf("", "right-hand side of '|' must be a filter name or call")
	}
}

func atomToExpr(tok Token) (*Expression, error) {
	switch tok.Kind {
	case TokStr:
		return &Expression{Kind: ExprStr, StrVal: tok.Str}, nil
	case TokNumber:
		return &Expression{Kind: ExprNumber, IntVal: tok.IntVal}, nil
	case TokFloat:
		return &Expression{Kind: ExprFloat, FloatVal: tok.FloatVal}, nil
	case TokBool:
		return &Expression{Kind: ExprBool, BoolVal: tok.BoolVal}, nil
	case TokNull:
		return &Expression{Kind: ExprNull}, nil
	case TokVar:
		return &Expression{Kind: ExprVar, VarPath: tok.Str}, nil
	case TokParent:
		return &Expression{Kind: ExprParent}, nil
	case TokParens:
		return parseExpression(tok.Sub)
	case TokArray:
		items := make([]*Expression, 0, len(tok.Items))
		for _, it := range tok.Items {
			e, err := parseExpression(it)
			if err != nil {
				return nil, err
			}
			items = append(items, e)
		}
		return &Expression{Kind: ExprArray, Items: items}, nil
	case TokHashMap:
		entries := make([]HashEntry, 0, len(tok.Pairs))
		for _, pr := range tok.Pairs {
			k, err := parseExpression(pr.Key)
			if err != nil {
				return nil, err
			}
			v, err := parseExpression(pr.Val)
			if err != nil {
				return nil, err
			}
			entries = append(entries, HashEntry{Key: k, Val: v})
		}
		return &Expression{Kind: ExprHashMap, Pairs: entries}, nil
	case TokFuncCall:
		params := make([]*Expression, 0, len(tok.Items))
		for _, it := range tok.Items {
			e, err := parseExpression(it)
			if err != nil {
				return nil, err
			}
			params = append(params, e)
		}
		return &Expression{Kind: ExprFuncCall, Name: tok.Str, Params: params}, nil
	default:
		return nil, parseErrorf("", "unexpected token in expression")
	}
}
