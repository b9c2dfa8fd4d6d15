package xpath

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokName // NCName, QName or prefix:*
	tokStar // name test wildcard
	tokSlash
	tokDoubleSlash
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokDot
	tokDotDot
	tokAt
	tokComma
	tokColonColon
	tokPipe
	tokPlus
	tokMinus
	tokEq
	tokNeq
	tokLt
	tokLte
	tokGt
	tokGte
	tokMul
	tokAnd
	tokOr
	tokDiv
	tokMod
)

var tokenNames = map[tokenKind]string{
	tokEOF: "end of expression", tokNumber: "number", tokString: "string literal",
	tokName: "name", tokStar: "'*'", tokSlash: "'/'", tokDoubleSlash: "'//'",
	tokLParen: "'('", tokRParen: "')'", tokLBracket: "'['", tokRBracket: "']'",
	tokDot: "'.'", tokDotDot: "'..'", tokAt: "'@'", tokComma: "','",
	tokColonColon: "'::'", tokPipe: "'|'", tokPlus: "'+'", tokMinus: "'-'",
	tokEq: "'='", tokNeq: "'!='", tokLt: "'<'", tokLte: "'<='", tokGt: "'>'",
	tokGte: "'>='", tokMul: "'*'", tokAnd: "'and'", tokOr: "'or'",
	tokDiv: "'div'", tokMod: "'mod'",
}

func (k tokenKind) String() string { return tokenNames[k] }

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex tokenizes src, applying the XPath 1.0 lexical disambiguation rules:
// when a preceding token exists and is not one of @ :: ( [ , or an operator,
// then * is the multiply operator and an NCName is an operator name.
func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	var toks []token
	for {
		tok, err := l.next(toks)
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks, nil
		}
	}
}

type lexer struct {
	src string
	pos int
}

func (l *lexer) errorf(pos int, msg string) *ParseError {
	return &ParseError{Expr: l.src, Pos: pos, Message: msg}
}

func (l *lexer) peekByte(off int) byte {
	if l.pos+off < len(l.src) {
		return l.src[l.pos+off]
	}
	return 0
}

func (l *lexer) next(prev []token) (token, error) {
	for l.pos < len(l.src) && isSpace(l.src[l.pos]) {
		l.pos++
	}
	start := l.pos
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: start}, nil
	}

	operatorContext := len(prev) == 0 || precedesOperand(prev[len(prev)-1].kind)
	simple := func(k tokenKind, n int) (token, error) {
		l.pos += n
		return token{kind: k, text: l.src[start:l.pos], pos: start}, nil
	}

	c := l.src[l.pos]
	switch c {
	case '(':
		return simple(tokLParen, 1)
	case ')':
		return simple(tokRParen, 1)
	case '[':
		return simple(tokLBracket, 1)
	case ']':
		return simple(tokRBracket, 1)
	case '@':
		return simple(tokAt, 1)
	case ',':
		return simple(tokComma, 1)
	case '|':
		return simple(tokPipe, 1)
	case '+':
		return simple(tokPlus, 1)
	case '-':
		return simple(tokMinus, 1)
	case '=':
		return simple(tokEq, 1)
	case '!':
		if l.peekByte(1) == '=' {
			return simple(tokNeq, 2)
		}
		return token{}, l.errorf(start, "unexpected '!'")
	case '<':
		if l.peekByte(1) == '=' {
			return simple(tokLte, 2)
		}
		return simple(tokLt, 1)
	case '>':
		if l.peekByte(1) == '=' {
			return simple(tokGte, 2)
		}
		return simple(tokGt, 1)
	case '/':
		if l.peekByte(1) == '/' {
			return simple(tokDoubleSlash, 2)
		}
		return simple(tokSlash, 1)
	case ':':
		if l.peekByte(1) == ':' {
			return simple(tokColonColon, 2)
		}
		return token{}, l.errorf(start, "unexpected ':'")
	case '*':
		if operatorContext {
			return simple(tokStar, 1)
		}
		return simple(tokMul, 1)
	case '$':
		return token{}, l.errorf(start, "variable references are not supported")
	case '"', '\'':
		end := strings.IndexByte(l.src[l.pos+1:], c)
		if end < 0 {
			return token{}, l.errorf(start, "unterminated string literal")
		}
		l.pos += end + 2
		return token{kind: tokString, text: l.src[start+1 : l.pos-1], pos: start}, nil
	case '.':
		if l.peekByte(1) == '.' {
			return simple(tokDotDot, 2)
		}
		if isDigit(l.peekByte(1)) {
			return l.number(start), nil
		}
		return simple(tokDot, 1)
	}

	if isDigit(c) {
		return l.number(start), nil
	}

	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	if !isNameStart(r) {
		return token{}, l.errorf(start, "unexpected character "+strconv.QuoteRune(r))
	}
	l.scanNCName()
	// QName or prefix:* (but not the :: axis separator)
	if l.peekByte(0) == ':' && l.peekByte(1) != ':' {
		if l.peekByte(1) == '*' {
			l.pos += 2
			return token{kind: tokName, text: l.src[start:l.pos], pos: start}, nil
		}
		r2, _ := utf8.DecodeRuneInString(l.src[l.pos+1:])
		if isNameStart(r2) {
			l.pos++
			l.scanNCName()
		}
	}
	text := l.src[start:l.pos]
	if !operatorContext {
		switch text {
		case "and":
			return token{kind: tokAnd, text: text, pos: start}, nil
		case "or":
			return token{kind: tokOr, text: text, pos: start}, nil
		case "div":
			return token{kind: tokDiv, text: text, pos: start}, nil
		case "mod":
			return token{kind: tokMod, text: text, pos: start}, nil
		}
	}
	return token{kind: tokName, text: text, pos: start}, nil
}

func (l *lexer) number(start int) token {
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	return token{kind: tokNumber, text: l.src[start:l.pos], pos: start}
}

func (l *lexer) scanNCName() {
	first := true
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if first && !isNameStart(r) || !first && !isNameChar(r) {
			return
		}
		first = false
		l.pos += size
	}
}

// precedesOperand reports whether a token of kind k leaves the lexer
// expecting an operand rather than an operator.
func precedesOperand(k tokenKind) bool {
	switch k {
	case tokAt, tokColonColon, tokLParen, tokLBracket, tokComma,
		tokAnd, tokOr, tokDiv, tokMod, tokMul, tokSlash, tokDoubleSlash,
		tokPipe, tokPlus, tokMinus, tokEq, tokNeq, tokLt, tokLte, tokGt, tokGte:
		return true
	}
	return false
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isNameStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isNameChar(r rune) bool {
	return isNameStart(r) || r == '-' || r == '.' || unicode.IsDigit(r) ||
		unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r)
}
