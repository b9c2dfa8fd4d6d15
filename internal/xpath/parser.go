package xpath

import (
	"fmt"
	"strconv"
)

// Parse parses expression text into an expression tree.
// Malformed input yields a *ParseError carrying the offending position.
func Parse(src string) (Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.unexpected()
	}
	if err := p.checkCalls(e); err != nil {
		return nil, err
	}
	return e, nil
}

// checkCalls rejects calls to functions outside the library so that a
// misspelled name fails when the form loads rather than on every evaluation.
func (p *parser) checkCalls(e Expr) error {
	var err error
	Walk(e, func(x Expr) bool {
		if c, ok := x.(*Call); ok && err == nil && !IsFunction(c.Name) {
			err = p.errorAt(c.Pos, "unknown function %s()", c.Name)
		}
		return err == nil
	})
	return err
}

// MustParse is like Parse but panics on error.
// Use only in tests or for expressions known to be valid.
func MustParse(src string) Expr {
	e, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return e
}

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekAt(off int) token {
	if p.pos+off < len(p.toks) {
		return p.toks[p.pos+off]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorAt(pos int, format string, args ...any) *ParseError {
	return &ParseError{Expr: p.src, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) unexpected() *ParseError {
	t := p.peek()
	if t.kind == tokEOF {
		return p.errorAt(t.pos, "unexpected end of expression")
	}
	return p.errorAt(t.pos, "unexpected %s %q", t.kind, t.text)
}

func (p *parser) expect(k tokenKind) (token, error) {
	if p.peek().kind != k {
		t := p.peek()
		if t.kind == tokEOF {
			return t, p.errorAt(t.pos, "expected %s, got end of expression", k)
		}
		return t, p.errorAt(t.pos, "expected %s, got %q", k, t.text)
	}
	return p.advance(), nil
}

// binaryLevel parses a left-associative chain of operators.
func (p *parser) binaryLevel(next func() (Expr, error), ops map[tokenKind]Op) (Expr, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := ops[p.peek().kind]
		if !ok {
			return left, nil
		}
		p.advance()
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
}

var (
	orOps    = map[tokenKind]Op{tokOr: OpOr}
	andOps   = map[tokenKind]Op{tokAnd: OpAnd}
	eqOps    = map[tokenKind]Op{tokEq: OpEq, tokNeq: OpNeq}
	relOps   = map[tokenKind]Op{tokLt: OpLt, tokLte: OpLte, tokGt: OpGt, tokGte: OpGte}
	addOps   = map[tokenKind]Op{tokPlus: OpAdd, tokMinus: OpSub}
	multOps  = map[tokenKind]Op{tokMul: OpMul, tokDiv: OpDiv, tokMod: OpMod}
	unionOps = map[tokenKind]Op{tokPipe: OpUnion}
)

func (p *parser) parseOr() (Expr, error)  { return p.binaryLevel(p.parseAnd, orOps) }
func (p *parser) parseAnd() (Expr, error) { return p.binaryLevel(p.parseEquality, andOps) }
func (p *parser) parseEquality() (Expr, error) {
	return p.binaryLevel(p.parseRelational, eqOps)
}
func (p *parser) parseRelational() (Expr, error) {
	return p.binaryLevel(p.parseAdditive, relOps)
}
func (p *parser) parseAdditive() (Expr, error) {
	return p.binaryLevel(p.parseMultiplicative, addOps)
}
func (p *parser) parseMultiplicative() (Expr, error) {
	return p.binaryLevel(p.parseUnary, multOps)
}

func (p *parser) parseUnary() (Expr, error) {
	if p.peek().kind == tokMinus {
		p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &NegExpr{X: x}, nil
	}
	return p.parseUnion()
}

func (p *parser) parseUnion() (Expr, error) {
	return p.binaryLevel(p.parsePath, unionOps)
}

// nodeTypes are the names that look like function calls but are node tests.
var nodeTypes = map[string]bool{
	"node": true, "text": true, "comment": true, "processing-instruction": true,
}

func (p *parser) startsFilter() bool {
	t := p.peek()
	switch t.kind {
	case tokNumber, tokString, tokLParen:
		return true
	case tokName:
		return p.peekAt(1).kind == tokLParen && !nodeTypes[t.text]
	}
	return false
}

func (p *parser) parsePath() (Expr, error) {
	if !p.startsFilter() {
		return p.parseLocationPath()
	}

	primary, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	var filter Expr = primary
	if p.peek().kind == tokLBracket {
		preds, err := p.parsePredicates()
		if err != nil {
			return nil, err
		}
		filter = &FilterExpr{Primary: primary, Predicates: preds}
	}

	switch p.peek().kind {
	case tokSlash, tokDoubleSlash:
	default:
		return filter, nil
	}

	path := &PathExpr{Filter: filter}
	if err := p.parseRelativeSteps(path, true); err != nil {
		return nil, err
	}
	return path, nil
}

func (p *parser) parseLocationPath() (Expr, error) {
	path := &PathExpr{}
	switch p.peek().kind {
	case tokSlash:
		path.Absolute = true
		p.advance()
		if !p.startsStep() {
			return path, nil
		}
	case tokDoubleSlash:
		path.Absolute = true
		p.advance()
		path.Steps = append(path.Steps, descendantOrSelfStep())
	default:
		if !p.startsStep() {
			return nil, p.unexpected()
		}
	}
	if err := p.parseRelativeSteps(path, false); err != nil {
		return nil, err
	}
	return path, nil
}

func descendantOrSelfStep() Step {
	return Step{Axis: AxisDescendantOrSelf, Test: NodeTest{Kind: TestNode}}
}

func (p *parser) startsStep() bool {
	switch p.peek().kind {
	case tokName, tokStar, tokDot, tokDotDot, tokAt:
		return true
	}
	return false
}

// parseRelativeSteps parses Step (('/' | '//') Step)*. With leadingSep the
// first step must be preceded by a separator.
func (p *parser) parseRelativeSteps(path *PathExpr, leadingSep bool) error {
	needSep := leadingSep
	for {
		if needSep {
			switch p.peek().kind {
			case tokSlash:
				p.advance()
			case tokDoubleSlash:
				p.advance()
				path.Steps = append(path.Steps, descendantOrSelfStep())
			default:
				return nil
			}
		}
		step, err := p.parseStep()
		if err != nil {
			return err
		}
		path.Steps = append(path.Steps, step)
		needSep = true
	}
}

func (p *parser) parseStep() (Step, error) {
	switch p.peek().kind {
	case tokDot:
		p.advance()
		return Step{Axis: AxisSelf, Test: NodeTest{Kind: TestNode}}, nil
	case tokDotDot:
		p.advance()
		return Step{Axis: AxisParent, Test: NodeTest{Kind: TestNode}}, nil
	}

	step := Step{Axis: AxisChild}
	if p.peek().kind == tokAt {
		p.advance()
		step.Axis = AxisAttribute
	} else if p.peek().kind == tokName && p.peekAt(1).kind == tokColonColon {
		t := p.advance()
		axis, ok := lookupAxis(t.text)
		if !ok {
			return step, p.errorAt(t.pos, "unsupported axis %q", t.text)
		}
		step.Axis = axis
		p.advance()
	}

	test, err := p.parseNodeTest()
	if err != nil {
		return step, err
	}
	step.Test = test

	if p.peek().kind == tokLBracket {
		step.Predicates, err = p.parsePredicates()
		if err != nil {
			return step, err
		}
	}
	return step, nil
}

func (p *parser) parseNodeTest() (NodeTest, error) {
	t := p.peek()
	switch t.kind {
	case tokStar:
		p.advance()
		return NodeTest{Kind: TestWildcard}, nil
	case tokName:
		p.advance()
		if p.peek().kind == tokLParen && nodeTypes[t.text] {
			if t.text != "node" {
				return NodeTest{}, p.errorAt(t.pos, "unsupported node test %s()", t.text)
			}
			p.advance()
			if _, err := p.expect(tokRParen); err != nil {
				return NodeTest{}, err
			}
			return NodeTest{Kind: TestNode}, nil
		}
		if n := len(t.text); n > 2 && t.text[n-2:] == ":*" {
			return NodeTest{Kind: TestPrefix, Name: t.text[:n-2]}, nil
		}
		return NodeTest{Kind: TestName, Name: t.text}, nil
	}
	return NodeTest{}, p.unexpected()
}

func (p *parser) parsePredicates() ([]Expr, error) {
	var preds []Expr
	for p.peek().kind == tokLBracket {
		p.advance()
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRBracket); err != nil {
			return nil, err
		}
		preds = append(preds, e)
	}
	return preds, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.advance()
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, p.errorAt(t.pos, "invalid number %q", t.text)
		}
		return &NumberLit{Value: v}, nil
	case tokString:
		p.advance()
		return &StringLit{Value: t.text}, nil
	case tokLParen:
		p.advance()
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return e, nil
	case tokName:
		p.advance()
		return p.parseCall(t)
	}
	return nil, p.unexpected()
}

func (p *parser) parseCall(name token) (Expr, error) {
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	call := &Call{Name: name.text, Pos: name.pos}
	if p.peek().kind == tokRParen {
		p.advance()
		return call, nil
	}
	for {
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		if p.peek().kind == tokComma {
			p.advance()
			continue
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return call, nil
	}
}
