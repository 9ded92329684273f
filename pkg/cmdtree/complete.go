package cmdtree

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/psaab/bessctl/pkg/engine"
)

// Env is the session state completion depends on.
type Env interface {
	// Disconnect drops the engine connection after a candidate source
	// found the engine unreachable.
	Disconnect()
}

// PartialWord returns the word under the cursor at the end of line, or
// "" when line ends in whitespace.
func PartialWord(line string) string {
	if line == "" || unicode.IsSpace(rune(line[len(line)-1])) {
		return ""
	}
	i := strings.LastIndexFunc(line, unicode.IsSpace)
	return line[i+1:]
}

// Complete returns candidates for the word being typed at the end of
// line. The committed part of the line is re-derived with the same
// Consume logic Resolve uses, without validating values. Candidate
// sources run fresh on every call.
//
// When a source reports that the engine is unreachable, env is
// disconnected and no candidates are returned. Other source errors are
// returned to the caller.
func (r *Registry) Complete(ctx context.Context, line string, env Env) ([]Candidate, error) {
	partial := PartialWord(line)
	committed := line[:len(line)-len(partial)]

	var out []Candidate
	seen := make(map[string]bool)
	asked := make(map[string]bool)
	add := func(name, desc string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, Candidate{Name: name, Desc: desc})
		}
	}

	for _, s := range r.specs {
		tok, ok := cursorToken(s.Tokens, committed)
		if !ok {
			continue
		}
		if tok.IsLiteral() {
			if strings.HasPrefix(tok.Literal, partial) {
				add(tok.Literal, literalDesc(s, tok))
			}
			continue
		}
		if tok.Var.Source == nil || asked[tok.key()] {
			continue
		}
		asked[tok.key()] = true
		names, err := tok.desc.Complete(ctx, partial, tok.Var.Source)
		if err != nil {
			if engine.IsConnectivity(err) {
				if env != nil {
					env.Disconnect()
				}
				return nil, nil
			}
			return nil, err
		}
		for _, n := range names {
			add(n, tok.Var.Desc)
		}
	}

	if len(out) == 0 && blank(committed) {
		for _, w := range FilterPrefix(r.firstWords(), partial) {
			add(w, "")
		}
	}
	sortCandidates(out)
	return out, nil
}

// CompleteNames is Complete without descriptions.
func (r *Registry) CompleteNames(ctx context.Context, line string, env Env) ([]string, error) {
	cands, err := r.Complete(ctx, line, env)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, c := range cands {
		names = append(names, c.Name)
	}
	return names, nil
}

// cursorToken finds the token that the next word after committed would
// fill. A rest-of-line placeholder stays under the cursor once reached.
func cursorToken(tokens []Token, committed string) (Token, bool) {
	rest := committed
	for _, tok := range tokens {
		if blank(rest) {
			return tok, true
		}
		if tok.IsLiteral() {
			word, next := nextWord(rest)
			if word != tok.Literal {
				return Token{}, false
			}
			rest = next
			continue
		}
		if tok.desc.Rest {
			return tok, true
		}
		_, rest = tok.desc.Consume(rest)
	}
	return Token{}, false
}

// literalDesc returns the command description when tok is the command's
// last literal word.
func literalDesc(s *Spec, tok Token) string {
	lits := s.Literals()
	if len(lits) > 0 && lits[len(lits)-1] == tok.Literal {
		return s.Desc
	}
	return ""
}

func sortCandidates(c []Candidate) {
	sort.Slice(c, func(i, j int) bool { return c[i].Name < c[j].Name })
}
