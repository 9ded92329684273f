// Package literal implements the restricted literal syntax shared by the
// shell's argument types and the configuration script language.
//
// Only data is accepted: numbers, strings, booleans, lists and maps.
// Nothing is ever evaluated.
package literal

import (
	"fmt"
	"strings"
)

// TokenType represents the type of a lexer token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenError
	TokenIdent       // bare word
	TokenString      // "quoted" or 'quoted'
	TokenNumber      // 42, -1.5, 0x10
	TokenEnv         // ${VAR} or ${VAR:-default}
	TokenLBracket    // [
	TokenRBracket    // ]
	TokenLBrace      // {
	TokenRBrace      // }
	TokenLParen      // (
	TokenRParen      // )
	TokenComma       // ,
	TokenColon       // :
	TokenDoubleColon // ::
	TokenEquals      // =
	TokenArrow       // ->
	TokenSemicolon   // ;
	TokenNewline
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "end of input"
	case TokenError:
		return "error"
	case TokenIdent:
		return "identifier"
	case TokenString:
		return "string"
	case TokenNumber:
		return "number"
	case TokenEnv:
		return "environment reference"
	case TokenLBracket:
		return "'['"
	case TokenRBracket:
		return "']'"
	case TokenLBrace:
		return "'{'"
	case TokenRBrace:
		return "'}'"
	case TokenLParen:
		return "'('"
	case TokenRParen:
		return "')'"
	case TokenComma:
		return "','"
	case TokenColon:
		return "':'"
	case TokenDoubleColon:
		return "'::'"
	case TokenEquals:
		return "'='"
	case TokenArrow:
		return "'->'"
	case TokenSemicolon:
		return "';'"
	case TokenNewline:
		return "newline"
	default:
		return "unknown"
	}
}

// Token is a single lexer token.
type Token struct {
	Type   TokenType
	Value  string
	Line   int
	Column int
}

func (t Token) String() string {
	switch t.Type {
	case TokenIdent, TokenString, TokenNumber, TokenEnv:
		return fmt.Sprintf("%s(%q)", t.Type, t.Value)
	}
	return t.Type.String()
}

// Lexer tokenizes literal and script text.
type Lexer struct {
	input    string
	pos      int
	line     int
	column   int
	newlines bool
}

// NewLexer creates a new Lexer for the given input string. Newlines are
// treated as whitespace.
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:  input,
		line:   1,
		column: 1,
	}
}

// NewScriptLexer creates a Lexer that reports newlines as TokenNewline,
// for line-oriented statement parsing.
func NewScriptLexer(input string) *Lexer {
	l := NewLexer(input)
	l.newlines = true
	return l
}

// SetNewlines switches newline reporting on or off. Script parsing turns
// it off inside parentheses so argument lists may span lines.
func (l *Lexer) SetNewlines(report bool) {
	l.newlines = report
}

// Next returns the next token, advancing the position.
func (l *Lexer) Next() Token {
	l.skipWhitespaceAndComments()

	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Line: l.line, Column: l.column}
	}

	ch := l.input[l.pos]
	line, col := l.line, l.column

	single := func(t TokenType) Token {
		l.advance()
		return Token{Type: t, Value: string(ch), Line: line, Column: col}
	}

	switch ch {
	case '\n':
		return single(TokenNewline)
	case '[':
		return single(TokenLBracket)
	case ']':
		return single(TokenRBracket)
	case '{':
		return single(TokenLBrace)
	case '}':
		return single(TokenRBrace)
	case '(':
		return single(TokenLParen)
	case ')':
		return single(TokenRParen)
	case ',':
		return single(TokenComma)
	case ';':
		return single(TokenSemicolon)
	case '=':
		return single(TokenEquals)
	case ':':
		if l.peekByte(1) == ':' {
			l.advance()
			l.advance()
			return Token{Type: TokenDoubleColon, Value: "::", Line: line, Column: col}
		}
		return single(TokenColon)
	case '"', '\'':
		return l.readString(ch, line, col)
	case '$':
		return l.readEnv(line, col)
	case '-':
		if l.peekByte(1) == '>' {
			l.advance()
			l.advance()
			return Token{Type: TokenArrow, Value: "->", Line: line, Column: col}
		}
		if isDigit(l.peekByte(1)) || l.peekByte(1) == '.' {
			return l.readNumber(line, col)
		}
	case '+', '.':
		if isDigit(l.peekByte(1)) {
			return l.readNumber(line, col)
		}
	default:
		if isDigit(ch) {
			return l.readNumber(line, col)
		}
		if isIdentStart(ch) {
			return l.readIdent(line, col)
		}
	}

	l.advance()
	return Token{
		Type:   TokenError,
		Value:  fmt.Sprintf("unexpected character %q", ch),
		Line:   line,
		Column: col,
	}
}

// Peek returns the next token without advancing.
func (l *Lexer) Peek() Token {
	savedPos := l.pos
	savedLine := l.line
	savedCol := l.column
	tok := l.Next()
	l.pos = savedPos
	l.line = savedLine
	l.column = savedCol
	return tok
}

func (l *Lexer) peekByte(off int) byte {
	if l.pos+off < len(l.input) {
		return l.input[l.pos+off]
	}
	return 0
}

func (l *Lexer) advance() {
	if l.pos < len(l.input) {
		if l.input[l.pos] == '\n' {
			l.line++
			l.column = 1
		} else {
			l.column++
		}
		l.pos++
	}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]

		if ch == '\n' && l.newlines {
			return
		}
		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' {
			l.advance()
			continue
		}

		// Line comment: # ... \n (the newline itself is kept)
		if ch == '#' {
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.advance()
			}
			continue
		}

		break
	}
}

func (l *Lexer) readString(quote byte, line, col int) Token {
	l.advance() // opening quote
	var b strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\\' && l.pos+1 < len(l.input) {
			l.advance()
			switch e := l.input[l.pos]; e {
			case '"', '\'', '\\':
				b.WriteByte(e)
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '0':
				b.WriteByte(0)
			default:
				b.WriteByte('\\')
				b.WriteByte(e)
			}
			l.advance()
			continue
		}
		if ch == '\n' {
			break
		}
		if ch == quote {
			l.advance()
			return Token{Type: TokenString, Value: b.String(), Line: line, Column: col}
		}
		b.WriteByte(ch)
		l.advance()
	}
	return Token{Type: TokenError, Value: "unterminated string", Line: line, Column: col}
}

// readEnv reads a braced parameter expansion, keeping the raw text
// (including "${" and "}") so it can be handed to a shell expander.
func (l *Lexer) readEnv(line, col int) Token {
	start := l.pos
	if l.peekByte(1) != '{' {
		l.advance()
		return Token{Type: TokenError, Value: "expected '{' after '$'", Line: line, Column: col}
	}
	l.advance()
	l.advance()
	depth := 1
	for l.pos < len(l.input) && depth > 0 {
		switch l.input[l.pos] {
		case '{':
			depth++
		case '}':
			depth--
		case '\n':
			return Token{Type: TokenError, Value: "unterminated environment reference", Line: line, Column: col}
		}
		l.advance()
	}
	if depth > 0 {
		return Token{Type: TokenError, Value: "unterminated environment reference", Line: line, Column: col}
	}
	return Token{Type: TokenEnv, Value: l.input[start:l.pos], Line: line, Column: col}
}

func (l *Lexer) readNumber(line, col int) Token {
	start := l.pos
	if ch := l.input[l.pos]; ch == '-' || ch == '+' {
		l.advance()
	}
	var prev byte
	for l.pos < len(l.input) && isNumberChar(l.input[l.pos], prev) {
		prev = l.input[l.pos]
		l.advance()
	}
	return Token{Type: TokenNumber, Value: l.input[start:l.pos], Line: line, Column: col}
}

func (l *Lexer) readIdent(line, col int) Token {
	start := l.pos
	for l.pos < len(l.input) && isIdentChar(l.input[l.pos]) {
		l.pos++
		l.column++
	}
	return Token{Type: TokenIdent, Value: l.input[start:l.pos], Line: line, Column: col}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isIdentChar(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

// isNumberChar accepts digits, hex digits, '.', '_' and exponent signs.
// strconv has the final word on validity.
func isNumberChar(ch, prev byte) bool {
	switch {
	case isDigit(ch), ch == '.', ch == '_':
		return true
	case (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F'):
		return true
	case ch == 'x' || ch == 'X' || ch == 'o' || ch == 'O':
		return true
	case (ch == '-' || ch == '+') && (prev == 'e' || prev == 'E'):
		return true
	}
	return false
}

// IsIdentifier reports whether s is a valid bare identifier
// ([_a-zA-Z][_a-zA-Z0-9]*).
func IsIdentifier(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentChar(s[i]) {
			return false
		}
	}
	return true
}
