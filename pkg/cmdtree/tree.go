// Package cmdtree compiles declarative command templates and matches
// operator input against them.
//
// A command is registered once with a template such as
//
//	add connection MODULE MODULE [OGATE] [IGATE]
//
// and from then on the registry resolves input lines to it, binds the
// placeholders into typed values and offers completions for partial
// lines. The same compiled tokens drive matching, completion and help,
// so every registered command automatically appears in all three.
package cmdtree

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Outcome tells the shell loop what to do after a command.
type Outcome int

const (
	Continue Outcome = iota
	Cancelled
	Terminate
)

func (o Outcome) String() string {
	switch o {
	case Continue:
		return "continue"
	case Cancelled:
		return "cancelled"
	case Terminate:
		return "terminate"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Handler runs a bound command.
type Handler func(ctx context.Context, args Args) (Outcome, error)

// Spec is a registered command. It is immutable after registration.
type Spec struct {
	Syntax  string
	Desc    string
	Handler Handler

	// Confirm, when set, is the warning shown before the handler runs
	// in an interactive session.
	Confirm string

	Tokens []Token
}

// Literals returns the leading literal words of the template.
func (s *Spec) Literals() []string {
	var words []string
	for _, t := range s.Tokens {
		if !t.IsLiteral() {
			break
		}
		words = append(words, t.Literal)
	}
	return words
}

// Format renders a line that binds to values under this spec.
func (s *Spec) Format(values []any) string {
	var parts []string
	i := 0
	for _, t := range s.Tokens {
		if t.IsLiteral() {
			parts = append(parts, t.Literal)
			continue
		}
		var v any
		if i < len(values) {
			v = values[i]
		}
		i++
		if text := FormatValue(t.Var.Kind, v); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// wordRange returns the minimum and maximum number of words a matching
// line can have. max is math.MaxInt for rest-of-line templates.
func (s *Spec) wordRange() (min, max int) {
	for _, t := range s.Tokens {
		switch {
		case t.IsLiteral():
			min++
			max++
		case t.desc.Rest:
			if !t.Optional {
				min++
			}
			max = math.MaxInt
		default:
			if !t.Optional {
				min++
			}
			if max != math.MaxInt {
				max++
			}
		}
	}
	return min, max
}

// Registry holds commands in registration order.
type Registry struct {
	vars  Vars
	specs []*Spec
}

// NewRegistry returns an empty registry whose templates resolve
// placeholders through vars.
func NewRegistry(vars Vars) *Registry {
	return &Registry{vars: vars}
}

// Vars returns the placeholder table.
func (r *Registry) Vars() Vars {
	return r.vars
}

// Register compiles syntax and appends the command. It fails with an
// InternalError when the template is malformed.
func (r *Registry) Register(syntax, desc string, h Handler) (*Spec, error) {
	tokens, err := Compile(syntax, r.vars)
	if err != nil {
		return nil, err
	}
	s := &Spec{
		Syntax:  strings.Join(strings.Fields(syntax), " "),
		Desc:    desc,
		Handler: h,
		Tokens:  tokens,
	}
	r.specs = append(r.specs, s)
	return s, nil
}

// MustRegister is Register for static command tables.
func (r *Registry) MustRegister(syntax, desc string, h Handler) *Spec {
	s, err := r.Register(syntax, desc, h)
	if err != nil {
		panic(err)
	}
	return s
}

// Commands returns the registered commands in registration order.
func (r *Registry) Commands() []*Spec {
	return append([]*Spec(nil), r.specs...)
}

// Check reports the first pair of commands that some line could match
// equally well: identical literal words at identical positions and an
// overlapping word count.
func (r *Registry) Check() error {
	for i, a := range r.specs {
		for _, b := range r.specs[i+1:] {
			if !sameLiterals(a, b) {
				continue
			}
			amin, amax := a.wordRange()
			bmin, bmax := b.wordRange()
			if amin <= bmax && bmin <= amax {
				return internalErrorf("ambiguous commands %q and %q", a.Syntax, b.Syntax)
			}
		}
	}
	return nil
}

func sameLiterals(a, b *Spec) bool {
	la, lb := literalPositions(a), literalPositions(b)
	if len(la) != len(lb) {
		return false
	}
	for pos, w := range la {
		if lb[pos] != w {
			return false
		}
	}
	return true
}

func literalPositions(s *Spec) map[int]string {
	m := make(map[int]string)
	for i, t := range s.Tokens {
		if t.IsLiteral() {
			m[i] = t.Literal
		}
	}
	return m
}

// Resolve finds the command for line and binds its arguments.
//
// Every command whose literals match and whose placeholders consume the
// whole line is a candidate; the one with the most literal words wins
// and ties go to the earliest registered. The winner's arguments are
// then validated, and a validation failure is returned as is instead of
// trying other commands.
func (r *Registry) Resolve(line string) (*Spec, Args, error) {
	var (
		best      *Spec
		bestMatch *matchResult
		partial   *matchResult
		nextWords []string
	)
	for _, s := range r.specs {
		m := walk(s.Tokens, line)
		switch {
		case m.ok():
			if best == nil || m.literals > bestMatch.literals {
				best, bestMatch = s, m
			}
		case m.allLiterals:
			if partial == nil || m.literals > partial.literals {
				partial = m
			}
		case m.exhausted && m.literals == len(strings.Fields(line)):
			nextWords = append(nextWords, s.Tokens[m.at].Literal)
		}
	}
	if best != nil {
		args, err := bindValues(best.Tokens, bestMatch)
		if err != nil {
			return best, Args{}, err
		}
		return best, args, nil
	}
	if partial != nil {
		return nil, Args{}, partial.err
	}
	if len(nextWords) > 0 {
		return nil, Args{}, userErrorf("incomplete command, expected one of: %s",
			strings.Join(dedupeSorted(nextWords), ", "))
	}
	return nil, Args{}, r.unknown(line)
}

// unknown builds the "unknown command" error with close matches from
// the command listing.
func (r *Registry) unknown(line string) *UserError {
	input := strings.Join(strings.Fields(line), " ")
	var syntaxes []string
	for _, s := range r.specs {
		syntaxes = append(syntaxes, strings.Join(s.Literals(), " "))
	}
	syntaxes = dedupeSorted(syntaxes)

	ranks := fuzzy.RankFindFold(input, syntaxes)
	sort.Sort(ranks)
	var suggest []string
	for _, rk := range ranks {
		suggest = append(suggest, rk.Target)
		if len(suggest) == 3 {
			break
		}
	}
	if len(suggest) == 0 {
		first, _ := nextWord(line)
		for _, w := range r.firstWords() {
			if fuzzy.LevenshteinDistance(first, w) <= 2 {
				suggest = append(suggest, w)
			}
		}
	}
	if len(suggest) == 0 {
		return userErrorf("unknown command: %q", input)
	}
	return userErrorf("unknown command: %q (did you mean %s?)", input, strings.Join(suggest, ", "))
}

func (r *Registry) firstWords() []string {
	var words []string
	for _, s := range r.specs {
		words = append(words, s.Tokens[0].Literal)
	}
	return dedupeSorted(words)
}

func dedupeSorted(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, it := range items {
		if !seen[it] {
			seen[it] = true
			out = append(out, it)
		}
	}
	sort.Strings(out)
	return out
}

// Candidate holds a completion and its description for display.
type Candidate struct {
	Name string
	Desc string
}

// WriteUsage prints every command with its description in registration
// order.
func WriteUsage(w io.Writer, specs []*Spec) {
	width := 30
	for _, s := range specs {
		if len(s.Syntax)+2 > width {
			width = len(s.Syntax) + 2
		}
	}
	var sb strings.Builder
	for _, s := range specs {
		fmt.Fprintf(&sb, "  %-*s %s\n", width, s.Syntax, s.Desc)
	}
	io.WriteString(w, sb.String())
}

// WriteHelp prints aligned completion candidates to w.
// The entire output is built as a single string and written in one call
// so that readline's wrapWriter triggers only one Refresh cycle.
func WriteHelp(w io.Writer, candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })
	maxWidth := 20
	for _, c := range candidates {
		if len(c.Name)+2 > maxWidth {
			maxWidth = len(c.Name) + 2
		}
	}
	var sb strings.Builder
	sb.WriteString("Possible completions:\n")
	for _, c := range candidates {
		if c.Desc != "" {
			fmt.Fprintf(&sb, "  %-*s %s\n", maxWidth, c.Name, c.Desc)
		} else {
			fmt.Fprintf(&sb, "  %s\n", c.Name)
		}
	}
	io.WriteString(w, sb.String())
}

// CommonPrefix returns the longest shared prefix among the given strings.
func CommonPrefix(items []string) string {
	if len(items) == 0 {
		return ""
	}
	prefix := items[0]
	for _, s := range items[1:] {
		for !strings.HasPrefix(s, prefix) {
			prefix = prefix[:len(prefix)-1]
			if prefix == "" {
				return ""
			}
		}
	}
	return prefix
}

// FilterPrefix returns only items that start with the given prefix.
func FilterPrefix(items []string, prefix string) []string {
	if prefix == "" {
		return items
	}
	var result []string
	for _, item := range items {
		if strings.HasPrefix(item, prefix) {
			result = append(result, item)
		}
	}
	return result
}
