package cmdtree

import (
	"errors"
	"strings"
	"unicode"

	"github.com/psaab/bessctl/pkg/argtype"
)

// Args holds the values bound to a command's placeholders, in template
// order. An absent optional placeholder holds nil.
type Args struct {
	Values []any
}

// Len returns the number of placeholders.
func (a Args) Len() int {
	return len(a.Values)
}

// Get returns the i'th value, or nil when out of range.
func (a Args) Get(i int) any {
	if i < 0 || i >= len(a.Values) {
		return nil
	}
	return a.Values[i]
}

// String returns the i'th value as a string, or def when absent.
func (a Args) String(i int, def string) string {
	if s, ok := a.Get(i).(string); ok {
		return s
	}
	return def
}

// Int returns the i'th value as an int, or def when absent.
func (a Args) Int(i int, def int) int {
	if n, ok := a.Get(i).(int); ok {
		return n
	}
	return def
}

// Strings returns the i'th value as a string list (name+ and opts kinds).
func (a Args) Strings(i int) []string {
	ss, _ := a.Get(i).([]string)
	return ss
}

// Map returns the i'th value as a keyword map, or nil when absent.
func (a Args) Map(i int) map[string]any {
	m, _ := a.Get(i).(map[string]any)
	return m
}

// matchResult is the structural outcome of walking one spec's tokens
// over a line with Consume only.
type matchResult struct {
	// literals counts matched literal tokens.
	literals int
	// allLiterals is set when every literal token of the spec matched.
	allLiterals bool
	// exhausted is set when input ended while the literal at token
	// index at was expected.
	exhausted bool
	at        int
	raws      []string
	present   []bool
	err       *UserError
}

func (r *matchResult) ok() bool {
	return r.allLiterals && r.err == nil
}

// nextWord splits off the first whitespace-delimited word of line.
func nextWord(line string) (word, rest string) {
	line = strings.TrimLeftFunc(line, unicode.IsSpace)
	if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
		return line[:i], line[i:]
	}
	return line, ""
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// walk matches line against tokens structurally: literals must be equal,
// placeholders consume their share of the line without validation.
func walk(tokens []Token, line string) *matchResult {
	r := &matchResult{allLiterals: true}
	rest := line
	for i, tok := range tokens {
		if tok.IsLiteral() {
			word, next := nextWord(rest)
			if word != tok.Literal {
				r.allLiterals = false
				r.exhausted = word == ""
				r.at = i
				return r
			}
			r.literals++
			rest = next
			continue
		}
		head, next := tok.desc.Consume(rest)
		if head == "" {
			if !tok.Optional && r.err == nil {
				r.err = userErrorf("missing argument %s", tok.Name)
			}
			r.raws = append(r.raws, "")
			r.present = append(r.present, false)
			continue
		}
		r.raws = append(r.raws, head)
		r.present = append(r.present, true)
		rest = next
	}
	if !blank(rest) && r.err == nil {
		r.err = userErrorf("trailing characters: %q", strings.TrimSpace(rest))
	}
	return r
}

// Bind matches line against tokens and binds every placeholder. It is
// Resolve for a single candidate.
func Bind(tokens []Token, line string) (Args, error) {
	r := walk(tokens, line)
	if !r.allLiterals {
		return Args{}, userErrorf("unknown command")
	}
	if r.err != nil {
		return Args{}, r.err
	}
	return bindValues(tokens, r)
}

func bindValues(tokens []Token, r *matchResult) (Args, error) {
	var args Args
	i := 0
	for _, tok := range tokens {
		if tok.IsLiteral() {
			continue
		}
		if !r.present[i] {
			args.Values = append(args.Values, nil)
			i++
			continue
		}
		v, err := tok.desc.Bind(r.raws[i])
		if err != nil {
			var be *argtype.BindError
			if errors.As(err, &be) {
				return Args{}, &UserError{Msg: be.Reason, Err: be}
			}
			return Args{}, err
		}
		args.Values = append(args.Values, v)
		i++
	}
	return args, nil
}
