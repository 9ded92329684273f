package cmdtree

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/psaab/bessctl/pkg/argtype"
	"github.com/psaab/bessctl/pkg/literal"
)

// Var describes a placeholder name used in templates, e.g. PORT or
// CONF_FILE. Variadic placeholders are looked up with a "..." suffix so
// that PORT and PORT... can bind different kinds.
type Var struct {
	Kind   argtype.Kind
	Desc   string
	Source argtype.Source
}

// Vars maps placeholder names to their definitions.
type Vars map[string]Var

// Token is one element of a compiled template: a literal word or a
// typed placeholder.
type Token struct {
	Literal string

	Name     string
	Optional bool
	Variadic bool
	Var      Var
	desc     *argtype.Descriptor
}

// IsLiteral reports whether t is a literal word.
func (t Token) IsLiteral() bool {
	return t.Literal != ""
}

// String renders t the way it appears in a template.
func (t Token) String() string {
	if t.IsLiteral() {
		return t.Literal
	}
	s := t.Name
	if t.Variadic {
		s += "..."
	}
	if t.Optional {
		s = "[" + s + "]"
	}
	return s
}

func (t Token) key() string {
	if t.Variadic {
		return t.Name + "..."
	}
	return t.Name
}

var placeholderRe = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// Compile parses a template such as "add port DRIVER [NEW_PORT] [PORT_ARGS...]".
// Upper-case words are placeholders; [X] is optional and X... variadic.
// A variadic placeholder, or one whose kind claims the rest of the line,
// must come last.
func Compile(syntax string, vars Vars) ([]Token, error) {
	words := strings.Fields(syntax)
	if len(words) == 0 {
		return nil, internalErrorf("empty command template")
	}
	tokens := make([]Token, 0, len(words))
	for i, w := range words {
		tok, err := compileWord(w, vars)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", syntax, err)
		}
		last := i == len(words)-1
		if !tok.IsLiteral() && !last {
			if tok.Variadic {
				return nil, fmt.Errorf("template %q: %w", syntax,
					internalErrorf("variadic %s must be the last token", tok))
			}
			if tok.desc.Rest {
				return nil, fmt.Errorf("template %q: %w", syntax,
					internalErrorf("%s (%s) claims the rest of the line and must be last", tok, tok.Var.Kind))
			}
		}
		tokens = append(tokens, tok)
	}
	if !tokens[0].IsLiteral() {
		return nil, internalErrorf("template %q must start with a literal word", syntax)
	}
	return tokens, nil
}

func compileWord(w string, vars Vars) (Token, error) {
	name := w
	var tok Token
	if strings.HasPrefix(name, "[") && strings.HasSuffix(name, "]") {
		tok.Optional = true
		name = name[1 : len(name)-1]
	}
	if strings.HasSuffix(name, "...") {
		tok.Variadic = true
		name = strings.TrimSuffix(name, "...")
	}
	if !placeholderRe.MatchString(name) {
		if tok.Optional || tok.Variadic {
			return Token{}, internalErrorf("malformed placeholder %q", w)
		}
		return Token{Literal: w}, nil
	}
	tok.Name = name
	v, ok := vars[tok.key()]
	if !ok {
		return Token{}, internalErrorf("unknown placeholder %s", tok.key())
	}
	d, ok := argtype.Lookup(v.Kind)
	if !ok {
		return Token{}, internalErrorf("placeholder %s has unknown type %q", tok.key(), v.Kind)
	}
	if tok.Variadic && !d.Rest {
		return Token{}, internalErrorf("variadic %s needs a rest-of-line type, has %q", tok.key(), v.Kind)
	}
	tok.Var = v
	tok.desc = d
	return tok, nil
}

// FormatValue renders a value bound to kind back into input text that
// binds to the same value.
func FormatValue(kind argtype.Kind, v any) string {
	if v == nil {
		return ""
	}
	if kind == argtype.Literal {
		return literal.Format(v)
	}
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case []string:
		return strings.Join(x, " ")
	case map[string]any:
		return literal.FormatKeywords(x)
	}
	return literal.Format(v)
}
