package script

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"

	"github.com/psaab/bessctl/pkg/literal"
)

// environ is a map-backed expand.Environ.
type environ map[string]string

func (e environ) Get(name string) expand.Variable {
	v, ok := e[name]
	if !ok {
		return expand.Variable{}
	}
	return expand.Variable{Set: true, Exported: true, Kind: expand.String, Str: v}
}

func (e environ) Each(fn func(name string, vr expand.Variable) bool) {
	for name := range e {
		if !fn(name, e.Get(name)) {
			return
		}
	}
}

var errCmdSubst = errors.New("command substitution is not allowed in scripts")

// expandEnv expands one ${...} reference against env. An unset
// variable without a default yields nil. A result that reads as a
// number becomes that number.
func expandEnv(env map[string]string, expr string) (any, error) {
	word, err := syntax.NewParser().Document(strings.NewReader(expr))
	if err != nil {
		return nil, fmt.Errorf("environment reference %s: %w", expr, err)
	}
	cfg := &expand.Config{
		Env:     environ(env),
		NoUnset: true,
		CmdSubst: func(io.Writer, *syntax.CmdSubst) error {
			return errCmdSubst
		},
	}
	s, err := expand.Document(cfg, word)
	if err != nil {
		var unset expand.UnsetParameterError
		if errors.As(err, &unset) {
			return nil, nil
		}
		return nil, fmt.Errorf("environment reference %s: %w", expr, err)
	}
	if v, err := literal.Parse(s); err == nil {
		switch v.(type) {
		case int64, float64:
			return v, nil
		}
	}
	return s, nil
}

// parseEnviron turns KEY=VALUE pairs into a map; later pairs win.
func parseEnviron(pairs []string) map[string]string {
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if ok && k != "" {
			env[k] = v
		}
	}
	return env
}
