// Package calc evaluates the arithmetic the agent derives from retrieved
// figures. Only numbers, + - * / %, unary signs and parentheses are accepted;
// anything else is a syntax error, so model output is never executed.
package calc

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrSyntax         = errors.New("invalid expression")
	ErrDivisionByZero = errors.New("division by zero")
)

// maxDepth bounds parenthesis and unary-sign nesting.
const maxDepth = 64

// Calculator evaluates expr and formats the result with the shortest decimal
// representation ("4", "0.2"). Failures come back as "Error: <reason>".
func Calculator(expr string) string {
	value, err := Evaluate(expr)
	if err != nil {
		return "Error: " + err.Error()
	}
	return Format(value)
}

// Format renders v without exponent and without trailing zeros.
func Format(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Evaluate parses and evaluates expr.
//
//	expr    := term {('+' | '-') term}
//	term    := unary {('*' | '/' | '%') unary}
//	unary   := ('+' | '-') unary | primary
//	primary := number | '(' expr ')'
//
// '%' is the floored modulo, so the result takes the sign of the divisor.
func Evaluate(expr string) (float64, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return 0, err
	}
	if len(tokens) == 0 {
		return 0, fmt.Errorf("%w: empty expression", ErrSyntax)
	}

	p := &parser{tokens: tokens}
	value, err := p.expr(0)
	if err != nil {
		return 0, err
	}
	if p.pos < len(p.tokens) {
		return 0, fmt.Errorf("%w: unexpected %q at position %d", ErrSyntax, p.tokens[p.pos].text, p.tokens[p.pos].offset)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: result is not a finite number", ErrSyntax)
	}
	return value, nil
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind   tokenKind
	text   string
	value  float64
	offset int
}

func tokenize(expr string) ([]token, error) {
	tokens := make([]token, 0, len(expr)/2)
	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '+' || c == '-' || c == '*' || c == '/' || c == '%':
			tokens = append(tokens, token{kind: tokOp, text: string(c), offset: i})
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", offset: i})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", offset: i})
			i++
		case isDigit(c) || c == '.':
			end := scanNumber(expr, i)
			text := expr[i:end]
			value, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad number %q", ErrSyntax, text)
			}
			tokens = append(tokens, token{kind: tokNumber, text: text, value: value, offset: i})
			i = end
		default:
			return nil, fmt.Errorf("%w: character %q is not allowed", ErrSyntax, c)
		}
	}
	return tokens, nil
}

// scanNumber returns the end of the number starting at i: digits, an optional
// fraction and an optional exponent.
func scanNumber(s string, i int) int {
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
		}
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && isDigit(s[j]) {
			for j < len(s) && isDigit(s[j]) {
				j++
			}
			i = j
		}
	}
	return i
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) peekOp(ops string) (string, bool) {
	tok, ok := p.peek()
	if !ok || tok.kind != tokOp || !strings.Contains(ops, tok.text) {
		return "", false
	}
	return tok.text, true
}

func (p *parser) expr(depth int) (float64, error) {
	left, err := p.term(depth)
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peekOp("+-")
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.term(depth)
		if err != nil {
			return 0, err
		}
		if op == "+" {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *parser) term(depth int) (float64, error) {
	left, err := p.unary(depth)
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peekOp("*/%")
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.unary(depth)
		if err != nil {
			return 0, err
		}
		switch op {
		case "*":
			left *= right
		case "/":
			if right == 0 {
				return 0, ErrDivisionByZero
			}
			left /= right
		case "%":
			if right == 0 {
				return 0, ErrDivisionByZero
			}
			left = floorMod(left, right)
		}
	}
}

func (p *parser) unary(depth int) (float64, error) {
	if depth > maxDepth {
		return 0, fmt.Errorf("%w: expression nested too deeply", ErrSyntax)
	}
	if op, ok := p.peekOp("+-"); ok {
		p.pos++
		value, err := p.unary(depth + 1)
		if err != nil {
			return 0, err
		}
		if op == "-" {
			return -value, nil
		}
		return value, nil
	}
	return p.primary(depth)
}

func (p *parser) primary(depth int) (float64, error) {
	tok, ok := p.peek()
	if !ok {
		return 0, fmt.Errorf("%w: unexpected end of expression", ErrSyntax)
	}
	switch tok.kind {
	case tokNumber:
		p.pos++
		return tok.value, nil
	case tokLParen:
		p.pos++
		value, err := p.expr(depth + 1)
		if err != nil {
			return 0, err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != tokRParen {
			return 0, fmt.Errorf("%w: missing closing parenthesis", ErrSyntax)
		}
		p.pos++
		return value, nil
	default:
		return 0, fmt.Errorf("%w: unexpected %q at position %d", ErrSyntax, tok.text, tok.offset)
	}
}

func floorMod(a, b float64) float64 {
	m := math.Mod(a, b)
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}
