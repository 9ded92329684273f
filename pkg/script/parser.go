package script

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/psaab/bessctl/pkg/literal"
)

// Suffix is the file extension of configuration scripts.
const Suffix = ".bess"

type parser struct {
	file string
	lex  *literal.Lexer
	lit  *literal.Parser
}

// Parse parses a script. file is used in error messages only.
func Parse(file, src string) (*Program, error) {
	p := &parser{file: file, lex: literal.NewScriptLexer(src)}
	p.lit = literal.NewParser(p.lex)
	p.lit.AllowRefs = true

	prog := &Program{File: file, Lines: strings.Split(src, "\n")}
	for {
		switch p.lex.Peek().Type {
		case literal.TokenEOF:
			return prog, nil
		case literal.TokenNewline, literal.TokenSemicolon:
			p.lex.Next()
			continue
		}
		n, err := p.statement()
		if err != nil {
			return nil, err
		}
		prog.Nodes = append(prog.Nodes, n)

		switch tok := p.lex.Peek(); tok.Type {
		case literal.TokenNewline, literal.TokenSemicolon, literal.TokenEOF:
		default:
			return nil, p.errorf(tok, "unexpected %s at end of statement", tok.Type)
		}
	}
}

func (p *parser) statement() (Node, error) {
	tok := p.lex.Peek()
	if tok.Type == literal.TokenIdent {
		probe := *p.lex
		probe.Next()
		if probe.Next().Type == literal.TokenEquals {
			p.lex.Next()
			p.lex.Next()
			call, err := p.call()
			if err != nil {
				return nil, err
			}
			return &Assign{Pos: pos(tok), Name: tok.Value, Call: call}, nil
		}
	}
	return p.chain()
}

func (p *parser) chain() (*Chain, error) {
	c := &Chain{Pos: pos(p.lex.Peek())}
	for {
		e, err := p.elem()
		if err != nil {
			return nil, err
		}
		c.Elems = append(c.Elems, e)
		if p.lex.Peek().Type != literal.TokenArrow {
			return c, nil
		}
		p.lex.Next()
		for p.lex.Peek().Type == literal.TokenNewline {
			p.lex.Next()
		}
	}
}

func (p *parser) elem() (Elem, error) {
	var e Elem
	tok := p.lex.Peek()
	e.Pos = pos(tok)
	if tok.Type == literal.TokenNumber {
		g, err := p.gate()
		if err != nil {
			return e, err
		}
		e.IGate, e.HasIGate = g, true
		if err := p.expect(literal.TokenColon); err != nil {
			return e, err
		}
	}

	id := p.lex.Next()
	if id.Type != literal.TokenIdent {
		return e, p.errorf(id, "expected a name or a constructor, got %s", id.Type)
	}
	switch p.lex.Peek().Type {
	case literal.TokenDoubleColon:
		p.lex.Next()
		call, err := p.call()
		if err != nil {
			return e, err
		}
		e.Name, e.Call = id.Value, call
	case literal.TokenLParen:
		args, err := p.args()
		if err != nil {
			return e, err
		}
		e.Call = &Call{Pos: pos(id), Func: id.Value, Args: args}
	default:
		e.Name = id.Value
	}

	if p.lex.Peek().Type == literal.TokenColon {
		p.lex.Next()
		g, err := p.gate()
		if err != nil {
			return e, err
		}
		e.OGate, e.HasOGate = g, true
	}
	return e, nil
}

func (p *parser) call() (*Call, error) {
	id := p.lex.Next()
	if id.Type != literal.TokenIdent {
		return nil, p.errorf(id, "expected a constructor, got %s", id.Type)
	}
	if p.lex.Peek().Type != literal.TokenLParen {
		return nil, p.errorf(p.lex.Peek(), "expected '(' after %q", id.Value)
	}
	args, err := p.args()
	if err != nil {
		return nil, err
	}
	return &Call{Pos: pos(id), Func: id.Value, Args: args}, nil
}

// args parses "( ... )". The opening parenthesis is next.
func (p *parser) args() (Args, error) {
	var a Args
	p.lex.SetNewlines(false)
	p.lex.Next()

	// key=value, ... when the first two tokens are an identifier and '='.
	probe := *p.lex
	first, second := probe.Next(), probe.Next()
	switch {
	case first.Type == literal.TokenRParen:
	case first.Type == literal.TokenIdent && second.Type == literal.TokenEquals:
		kw, err := p.lit.Keywords(literal.TokenRParen)
		if err != nil {
			return a, p.wrap(err)
		}
		a.Keywords = kw
	default:
		v, err := p.lit.Value()
		if err != nil {
			return a, p.wrap(err)
		}
		a.Positional, a.HasPositional = v, true
	}

	tok := p.lex.Peek()
	if tok.Type != literal.TokenRParen {
		return a, p.errorf(tok, "expected ')', got %s", tok.Type)
	}
	p.lex.Next()
	p.lex.SetNewlines(true)
	return a, nil
}

func (p *parser) gate() (int, error) {
	tok := p.lex.Next()
	if tok.Type != literal.TokenNumber {
		return 0, p.errorf(tok, "expected a gate number, got %s", tok.Type)
	}
	g, err := strconv.Atoi(tok.Value)
	if err != nil || g < 0 {
		return 0, p.errorf(tok, "invalid gate %q", tok.Value)
	}
	return g, nil
}

func (p *parser) expect(t literal.TokenType) error {
	if tok := p.lex.Next(); tok.Type != t {
		return p.errorf(tok, "expected %s, got %s", t, tok.Type)
	}
	return nil
}

func (p *parser) errorf(tok literal.Token, format string, args ...any) error {
	return &SyntaxError{File: p.file, Line: tok.Line, Column: tok.Column, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) wrap(err error) error {
	var se *literal.SyntaxError
	if errors.As(err, &se) {
		return &SyntaxError{File: p.file, Line: se.Line, Column: se.Column, Msg: se.Msg}
	}
	return err
}

func pos(tok literal.Token) Pos {
	return Pos{Line: tok.Line, Column: tok.Column}
}
