package literal

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Ref is a bare identifier accepted in place of a value when the parser
// runs with AllowRefs. The script executor resolves it to an entity name.
type Ref struct {
	Name string
}

// EnvRef is an unexpanded ${...} environment reference, accepted only
// with AllowRefs.
type EnvRef struct {
	Expr string
}

// SyntaxError describes malformed literal text.
type SyntaxError struct {
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d:%d: %s", e.Line, e.Column, e.Msg)
}

// Parser reads literal values from a Lexer. Script parsing shares the
// same lexer and calls Value for argument lists.
type Parser struct {
	lex *Lexer

	// AllowRefs accepts bare identifiers (Ref) and ${...} (EnvRef).
	AllowRefs bool
}

// NewParser returns a Parser reading from lex.
func NewParser(lex *Lexer) *Parser {
	return &Parser{lex: lex}
}

// Parse parses exactly one literal value from s.
func Parse(s string) (any, error) {
	p := NewParser(NewLexer(s))
	v, err := p.Value()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return v, nil
}

// ParseKeywords parses "key=value, key=value, ..." into a map. Empty
// input yields an empty map.
func ParseKeywords(s string) (map[string]any, error) {
	p := NewParser(NewLexer(s))
	kw, err := p.Keywords(TokenEOF)
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return kw, nil
}

// Value parses a single value.
func (p *Parser) Value() (any, error) {
	tok := p.lex.Next()
	switch tok.Type {
	case TokenNumber:
		return parseNumber(tok)
	case TokenString:
		return tok.Value, nil
	case TokenIdent:
		switch tok.Value {
		case "true", "True":
			return true, nil
		case "false", "False":
			return false, nil
		case "None", "null":
			return nil, nil
		}
		if p.AllowRefs {
			return Ref{Name: tok.Value}, nil
		}
		return nil, p.errorf(tok, "unexpected name %q (strings must be quoted)", tok.Value)
	case TokenEnv:
		if p.AllowRefs {
			return EnvRef{Expr: tok.Value}, nil
		}
		return nil, p.errorf(tok, "environment references are not allowed here")
	case TokenLBracket:
		return p.list()
	case TokenLBrace:
		return p.dict()
	case TokenError:
		return nil, p.errorf(tok, "%s", tok.Value)
	}
	return nil, p.errorf(tok, "unexpected %s", tok.Type)
}

// Keywords parses key=value pairs until the closing token (not consumed).
func (p *Parser) Keywords(closing TokenType) (map[string]any, error) {
	kw := make(map[string]any)
	for p.lex.Peek().Type != closing {
		key := p.lex.Next()
		if key.Type != TokenIdent {
			return nil, p.errorf(key, "expected keyword name, got %s", key.Type)
		}
		if _, dup := kw[key.Value]; dup {
			return nil, p.errorf(key, "keyword %q repeated", key.Value)
		}
		if eq := p.lex.Next(); eq.Type != TokenEquals {
			return nil, p.errorf(eq, "expected '=' after %q, got %s", key.Value, eq.Type)
		}
		v, err := p.Value()
		if err != nil {
			return nil, err
		}
		kw[key.Value] = v
		if !p.comma(closing) {
			return nil, p.errorf(p.lex.Peek(), "expected ',' or %s, got %s", closing, p.lex.Peek().Type)
		}
	}
	return kw, nil
}

func (p *Parser) list() ([]any, error) {
	items := []any{}
	for p.lex.Peek().Type != TokenRBracket {
		v, err := p.Value()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
		if !p.comma(TokenRBracket) {
			return nil, p.errorf(p.lex.Peek(), "expected ',' or ']', got %s", p.lex.Peek().Type)
		}
	}
	p.lex.Next()
	return items, nil
}

func (p *Parser) dict() (map[string]any, error) {
	m := make(map[string]any)
	for p.lex.Peek().Type != TokenRBrace {
		key := p.lex.Next()
		if key.Type != TokenString {
			return nil, p.errorf(key, "map keys must be quoted strings, got %s", key.Type)
		}
		if colon := p.lex.Next(); colon.Type != TokenColon {
			return nil, p.errorf(colon, "expected ':' after map key, got %s", colon.Type)
		}
		v, err := p.Value()
		if err != nil {
			return nil, err
		}
		m[key.Value] = v
		if !p.comma(TokenRBrace) {
			return nil, p.errorf(p.lex.Peek(), "expected ',' or '}', got %s", p.lex.Peek().Type)
		}
	}
	p.lex.Next()
	return m, nil
}

// comma consumes a separating comma. It reports false when neither a
// comma nor the closing token follows.
func (p *Parser) comma(closing TokenType) bool {
	switch p.lex.Peek().Type {
	case TokenComma:
		p.lex.Next()
		return true
	case closing:
		return true
	}
	return false
}

func (p *Parser) expectEOF() error {
	if tok := p.lex.Next(); tok.Type != TokenEOF {
		return p.errorf(tok, "unexpected %s after value", tok.Type)
	}
	return nil
}

func (p *Parser) errorf(tok Token, format string, args ...any) error {
	return &SyntaxError{Line: tok.Line, Column: tok.Column, Msg: fmt.Sprintf(format, args...)}
}

func parseNumber(tok Token) (any, error) {
	s := strings.ReplaceAll(tok.Value, "_", "")
	if i, err := strconv.ParseInt(s, 0, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return nil, &SyntaxError{Line: tok.Line, Column: tok.Column, Msg: fmt.Sprintf("invalid number %q", tok.Value)}
	}
	return f, nil
}

// Format renders v back into literal syntax. Map keys are sorted so the
// output is stable.
func Format(v any) string {
	var b strings.Builder
	format(&b, v)
	return b.String()
}

// FormatKeywords renders a keyword map as "k=v, k=v" with sorted keys.
func FormatKeywords(kw map[string]any) string {
	keys := make([]string, 0, len(kw))
	for k := range kw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + Format(kw[k])
	}
	return strings.Join(parts, ", ")
}

func format(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteString("None")
	case string:
		b.WriteString(strconv.Quote(x))
	case bool:
		if x {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case int:
		b.WriteString(strconv.Itoa(x))
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
	case uint64:
		b.WriteString(strconv.FormatUint(x, 10))
	case float64:
		s := strconv.FormatFloat(x, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEn") {
			s += ".0"
		}
		b.WriteString(s)
	case []any:
		b.WriteByte('[')
		for i, item := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			format(b, item)
		}
		b.WriteByte(']')
	case []string:
		b.WriteByte('[')
		for i, item := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.Quote(item))
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.Quote(k))
			b.WriteString(": ")
			format(b, x[k])
		}
		b.WriteByte('}')
	case Ref:
		b.WriteString(x.Name)
	case EnvRef:
		b.WriteString(x.Expr)
	default:
		fmt.Fprintf(b, "%v", x)
	}
}
