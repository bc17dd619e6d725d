package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"cyclegc/pkg/ast"
)

// Parser parses S-expressions into Values
type Parser struct {
	input string
	pos   int
	line  int
}

// SyntaxError reports where parsing stopped.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// New creates a new parser for the given input
func New(input string) *Parser {
	return &Parser{input: input, pos: 0, line: 1}
}

// Parse parses a single S-expression
func (p *Parser) Parse() (*ast.Value, error) {
	p.skipWhitespace()
	if p.pos >= len(p.input) {
		return nil, nil
	}
	return p.parseExpr()
}

// ParseAll parses all S-expressions in the input
func (p *Parser) ParseAll() ([]*ast.Value, error) {
	var results []*ast.Value
	for {
		p.skipWhitespace()
		if p.pos >= len(p.input) {
			break
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if expr != nil {
			results = append(results, expr)
		}
	}
	return results, nil
}

func (p *Parser) errorf(format string, args ...any) error {
	return &SyntaxError{Line: p.line, Msg: fmt.Sprintf(format, args...)}
}

func (p *Parser) skipWhitespace() {
	for p.pos < len(p.input) {
		ch := p.input[p.pos]
		if ch == ';' {
			// Skip comment to end of line
			for p.pos < len(p.input) && p.input[p.pos] != '\n' {
				p.pos++
			}
		} else if unicode.IsSpace(rune(ch)) {
			if ch == '\n' {
				p.line++
			}
			p.pos++
		} else {
			break
		}
	}
}

func (p *Parser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *Parser) advance() byte {
	ch := p.peek()
	if ch != 0 {
		if ch == '\n' {
			p.line++
		}
		p.pos++
	}
	return ch
}

func (p *Parser) parseExpr() (*ast.Value, error) {
	p.skipWhitespace()
	if p.pos >= len(p.input) {
		return nil, nil
	}

	switch p.peek() {
	case '(':
		return p.parseList()
	case ')':
		return nil, p.errorf("unexpected ')'")
	case '"':
		return p.parseString()
	default:
		return p.parseAtom()
	}
}

func (p *Parser) parseList() (*ast.Value, error) {
	line := p.line
	p.advance() // consume '('
	var items []*ast.Value

	for {
		p.skipWhitespace()
		if p.pos >= len(p.input) {
			return nil, &SyntaxError{Line: line, Msg: "unclosed list"}
		}
		if p.peek() == ')' {
			p.advance()
			break
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, expr)
	}

	return ast.SliceToList(items).At(line), nil
}

func (p *Parser) parseString() (*ast.Value, error) {
	line := p.line
	p.advance() // consume opening '"'
	var sb strings.Builder

	for p.pos < len(p.input) {
		ch := p.advance()
		if ch == '"' {
			return ast.NewStr(sb.String()).At(line), nil
		}
		if ch == '\\' && p.pos < len(p.input) {
			next := p.advance()
			switch next {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(next)
			}
		} else {
			sb.WriteByte(ch)
		}
	}
	return nil, &SyntaxError{Line: line, Msg: "unclosed string"}
}

func (p *Parser) parseAtom() (*ast.Value, error) {
	start := p.pos

	// Check for negative number
	if p.peek() == '-' && p.pos+1 < len(p.input) && isDigit(p.input[p.pos+1]) {
		p.advance()
	}

	if isDigit(p.peek()) {
		for p.pos < len(p.input) && isDigit(p.input[p.pos]) {
			p.pos++
		}
		numStr := p.input[start:p.pos]
		if p.pos < len(p.input) && !isDelimiter(p.input[p.pos]) {
			return nil, p.errorf("invalid integer: %s%c", numStr, p.input[p.pos])
		}
		n, err := strconv.ParseInt(numStr, 10, 64)
		if err != nil {
			return nil, p.errorf("invalid integer: %s", numStr)
		}
		return ast.NewInt(n).At(p.line), nil
	}

	// It's a symbol
	for p.pos < len(p.input) && !isDelimiter(p.input[p.pos]) {
		p.pos++
	}

	if p.pos == start {
		return nil, p.errorf("unexpected character: %c", p.peek())
	}

	return ast.NewSym(p.input[start:p.pos]).At(p.line), nil
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isDelimiter(ch byte) bool {
	return unicode.IsSpace(rune(ch)) || ch == '(' || ch == ')' || ch == '"' || ch == ';'
}

// ParseString is a convenience function to parse a string
func ParseString(input string) (*ast.Value, error) {
	p := New(input)
	return p.Parse()
}

// ParseAllString parses all expressions in a string
func ParseAllString(input string) ([]*ast.Value, error) {
	p := New(input)
	return p.ParseAll()
}
