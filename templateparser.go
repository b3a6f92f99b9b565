package twigx

import "strings"

// rawToken is a scanned template chunk: literal text, a {{ print }}
// expression, or a {% control %} tag (comments are stripped and never
// produce a token).
type rawToken struct {
	kind string // "text", "print", "control"
	text string
}

// scanRaw splits template source into rawTokens.
func scanRaw(src string) ([]rawToken, error) {
	var toks []rawToken
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			toks = append(toks, rawToken{kind: "text", text: text.String()})
			text.Reset()
		}
	}

	i, n := 0, len(src)
	for i < n {
		if i+1 < n && src[i] == '{' && src[i+1] == '#' {
			flush()
			j := i + 2
			for j+1 < n && !(src[j] == '#' && src[j+1] == '}') {
				j++
			}
			if j+1 >= n {
				return nil, parseErrorf("", "unterminated '{#' comment")
			}
			i = j + 2
			continue
		}
		if i+1 < n && src[i] == '{' && src[i+1] == '%' {
			flush()
			end, err := scanTagBody(src, i+2, "%}")
			if err != nil {
				return nil, err
			}
			toks = append(toks, rawToken{kind: "control", text: strings.TrimSpace(src[i+2 : end])})
			i = end + 2
			continue
		}
		if i+1 < n && src[i] == '{' && src[i+1] == '{' {
			flush()
			end, err := scanTagBody(src, i+2, "}}")
			if err != nil {
				return nil, err
			}
			toks = append(toks, rawToken{kind: "print", text: strings.TrimSpace(src[i+2 : end])})
			i = end + 2
			continue
		}
		text.WriteByte(src[i])
		i++
	}
	flush()
	return toks, nil
}

// scanTagBody finds the index where close ("%}" or "}}") begins,
// skipping over quoted substrings so a `%}`/`}}` inside a string
// literal doesn't end the tag early.
func scanTagBody(src string, start int, close string) (int, error) {
	i := start
	n := len(src)
	for i < n {
		c := src[i]
		if c == '"' || c == '\'' {
			end, err := scanQuoted(src, i)
			if err != nil {
				return 0, parseErrorf("", "unterminated string literal in tag")
			}
			i = end + 1
			continue
		}
		if i+len(close) <= n && src[i:i+len(close)] == close {
			return i, nil
		}
		i++
	}
	return 0, parseErrorf("", "unterminated tag, expected %q", close)
}

func splitKeyword(text string) (kw, arg string) {
	idx := strings.IndexAny(text, " \t\n\r")
	if idx == -1 {
		return text, ""
	}
	return text[:idx], strings.TrimSpace(text[idx+1:])
}

func unquoteName(s string) string {
	return strings.Trim(strings.TrimSpace(s), "'\"")
}

// ParseTemplate parses template source into a Module.
func ParseTemplate(name, src string) (*Module, error) {
	toks, err := scanRaw(src)
	if err != nil {
		return nil, withTemplateName(err, name)
	}
	tp := &tplParser{toks: toks, name: name}

	if kw, arg, ok := tp.peekLeadingExtends(); ok {
		tp.consumeLeadingExtends()
		_ = kw
		body, _, _, err := tp.parseSequence(nil)
		if err != nil {
			return nil, withTemplateName(err, name)
		}
		mod := &Module{
			Name:        name,
			IsExtension: true,
			Parent:      unquoteName(arg),
			Blocks:      map[string]*Block{},
		}
		collectNamedBlocks(body, mod.Blocks)
		return mod, nil
	}

	body, _, _, err := tp.parseSequence(nil)
	if err != nil {
		return nil, withTemplateName(err, name)
	}
	return &Module{Name: name, Content: body}, nil
}

func withTemplateName(err error, name string) error {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	} else {
		return err
	}
	if e.Template == "" {
		e.Template = name
	}
	return e
}

// collectNamedBlocks walks content recursively gathering every Named
// block, walking
// all descendants, not just top-level siblings).
func collectNamedBlocks(contents []Content, out map[string]*Block) {
	for _, c := range contents {
		if c.Kind != ContentBlock || c.Blk == nil {
			continue
		}
		if c.Blk.Kind == BlockNamed {
			out[c.Blk.Name] = c.Blk
		}
		collectNamedBlocks(c.Blk.Contents, out)
		collectNamedBlocks(c.Blk.Else, out)
	}
}

type tplParser struct {
	toks []rawToken
	pos  int
	name string
}

func (tp *tplParser) peek() (rawToken, bool) {
	if tp.pos < len(tp.toks) {
		return tp.toks[tp.pos], true
	}
	return rawToken{}, false
}

func (tp *tplParser) next() rawToken {
	t := tp.toks[tp.pos]
	tp.pos++
	return t
}

// peekLeadingExtends reports whether the first non-whitespace-only
// text token is an `extends "name"` control tag.
func (tp *tplParser) peekLeadingExtends() (kw, arg string, ok bool) {
	pos := tp.pos
	for pos < len(tp.toks) {
		t := tp.toks[pos]
		if t.kind == "text" {
			if strings.TrimSpace(t.text) == "" {
				pos++
				continue
			}
			return "", "", false
		}
		if t.kind != "control" {
			return "", "", false
		}
		kw, arg = splitKeyword(t.text)
		return kw, arg, kw == "extends"
	}
	return "", "", false
}

func (tp *tplParser) consumeLeadingExtends() {
	for {
		t, ok := tp.peek()
		if !ok {
			return
		}
		if t.kind == "text" {
			tp.next()
			continue
		}
		tp.next()
		return
	}
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// parseSequence consumes content until it hits a control tag whose
// keyword is in stopWords (which it consumes), or EOF if stopWords is
// nil. It returns the matched stop keyword and its argument.
func (tp *tplParser) parseSequence(stopWords []string) ([]Content, string, string, error) {
	var contents []Content
	for {
		tok, ok := tp.peek()
		if !ok {
			if stopWords != nil {
				return contents, "", "", parseErrorf(tp.name, "unexpected end of template, expected one of %v", stopWords)
			}
			return contents, "", "", nil
		}

		switch tok.kind {
		case "text":
			tp.next()
			contents = append(contents, Content{Kind: ContentText, Text: tok.text})

		case "print":
			tp.next()
			expr, err := parseExpressionSrc(tok.text)
			if err != nil {
				return nil, "", "", withTemplateName(err, tp.name)
			}
			contents = append(contents, Content{Kind: ContentPrint, Expr: expr})

		case "control":
			kw, arg := splitKeyword(tok.text)
			if contains(stopWords, kw) {
				tp.next()
				return contents, kw, arg, nil
			}
			c, err := tp.parseControl(kw, arg)
			if err != nil {
				return nil, "", "", err
			}
			contents = append(contents, c)
		}
	}
}

func (tp *tplParser) parseControl(kw, arg string) (Content, error) {
	tp.next() // consume the opening tag
	switch kw {
	case "set":
		target, exprSrc, err := splitSetArg(arg)
		if err != nil {
			return Content{}, withTemplateName(err, tp.name)
		}
		expr, err := parseExpressionSrc(exprSrc)
		if err != nil {
			return Content{}, withTemplateName(err, tp.name)
		}
		return Content{Kind: ContentStatement, Stmt: &Stmt{Kind: StmtSet, SetTarget: target, SetValue: expr}}, nil

	case "include":
		return Content{Kind: ContentStatement, Stmt: &Stmt{Kind: StmtInclude, IncludeName: unquoteName(arg)}}, nil

	case "block":
		inner, _, _, err := tp.parseSequence([]string{"endblock"})
		if err != nil {
			return Content{}, err
		}
		return Content{Kind: ContentBlock, Blk: &Block{Kind: BlockNamed, Name: strings.TrimSpace(arg), Contents: inner}}, nil

	case "for":
		keyVar, valVar, iterSrc, err := splitForArg(arg)
		if err != nil {
			return Content{}, withTemplateName(err, tp.name)
		}
		iterExpr, err := parseExpressionSrc(iterSrc)
		if err != nil {
			return Content{}, withTemplateName(err, tp.name)
		}
		inner, _, _, err := tp.parseSequence([]string{"endfor"})
		if err != nil {
			return Content{}, err
		}
		return Content{Kind: ContentBlock, Blk: &Block{
			Kind:       BlockLoop,
			LoopKeyVar: keyVar,
			LoopValVar: valVar,
			LoopIter:   iterExpr,
			Contents:   inner,
		}}, nil

	case "if":
		blk, err := tp.parseIf(arg)
		if err != nil {
			return Content{}, err
		}
		return Content{Kind: ContentBlock, Blk: blk}, nil

	case "extends":
		return Content{}, parseErrorf(tp.name, "'extends' must be the first tag in the template")

	default:
		return Content{}, parseErrorf(tp.name, "unknown tag %q", kw)
	}
}

func (tp *tplParser) parseIf(condSrc string) (*Block, error) {
	cond, err := parseExpressionSrc(condSrc)
	if err != nil {
		return nil, withTemplateName(err, tp.name)
	}
	thenContent, stopKw, stopArg, err := tp.parseSequence([]string{"elseif", "else", "endif"})
	if err != nil {
		return nil, err
	}
	blk := &Block{Kind: BlockIf, IfCond: cond, Contents: thenContent}

	switch stopKw {
	case "endif":
		// no else branch
	case "else":
		elseContent, _, _, err := tp.parseSequence([]string{"endif"})
		if err != nil {
			return nil, err
		}
		blk.Else = elseContent
	case "elseif":
		nested, err := tp.parseIf(stopArg)
		if err != nil {
			return nil, err
		}
		blk.Else = []Content{{Kind: ContentBlock, Blk: nested}}
	}
	return blk, nil
}

// splitSetArg splits "target = expr" on the first '=' that is not part
// of a comparison operator (==, !=, <=, >=) and not inside a string.
func splitSetArg(arg string) (target, expr string, err error) {
	i := 0
	inQuote := false
	var qch byte
	for i < len(arg) {
		c := arg[i]
		if inQuote {
			if c == qch {
				inQuote = false
			}
			i++
			continue
		}
		if c == '"' || c == '\'' {
			inQuote = true
			qch = c
			i++
			continue
		}
		if c == '=' {
			prevIsCompare := i > 0 && (arg[i-1] == '=' || arg[i-1] == '!' || arg[i-1] == '<' || arg[i-1] == '>')
			nextIsEq := i+1 < len(arg) && arg[i+1] == '='
			if !prevIsCompare && !nextIsEq {
				return strings.TrimSpace(arg[:i]), strings.TrimSpace(arg[i+1:]), nil
			}
		}
		i++
	}
	return "", "", parseErrorf("", "malformed 'set' statement, expected \"name = expr\"")
}

// splitForArg splits "k, v in expr" or "v in expr" into its parts.
func splitForArg(arg string) (keyVar, valVar, iterSrc string, err error) {
	idx := findTopLevelInKeyword(arg)
	if idx == -1 {
		return "", "", "", parseErrorf("", "malformed 'for' statement, expected \"v in expr\" or \"k, v in expr\"")
	}
	varsPart := strings.TrimSpace(arg[:idx])
	iterSrc = strings.TrimSpace(arg[idx+4:])
	if strings.Contains(varsPart, ",") {
		parts := strings.SplitN(varsPart, ",", 2)
		keyVar = strings.TrimSpace(parts[0])
		valVar = strings.TrimSpace(parts[1])
	} else {
		valVar = varsPart
	}
	if valVar == "" {
		return "", "", "", parseErrorf("", "malformed 'for' statement, missing loop variable")
	}
	return keyVar, valVar, iterSrc, nil
}

func findTopLevelInKeyword(s string) int {
	depth := 0
	i := 0
	for i+4 <= len(s) {
		c := s[i]
		if c == '"' || c == '\'' {
			if end, err := scanQuoted(s, i); err == nil {
				i = end + 1
				continue
			}
		}
		switch c {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		}
		if depth == 0 && s[i:i+4] == " in " {
			return i
		}
		i++
	}
	return -1
}
