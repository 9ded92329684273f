// Package script runs configuration scripts against an engine.
//
// A script declares ports and modules and wires them together:
//
//	p0 = VPort()
//	out::PortOut(port=p0)
//	src::Source(rate=${RATE:-1000000})
//	src -> Bypass() -> out
//
// Scripts are parsed in full before the engine is touched, and run with
// all workers paused.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"sync"

	"github.com/spf13/afero"

	"github.com/psaab/bessctl/pkg/engine"
	"github.com/psaab/bessctl/pkg/literal"
)

const loaderFile = "(loader)"

// Sandbox executes scripts. It owns the environment that ${VAR}
// references read; per-run overrides never leak into later runs.
type Sandbox struct {
	eng engine.Engine
	fs  afero.Fs

	mu  sync.Mutex
	env map[string]string
}

// NewSandbox returns a sandbox whose environment starts as environ
// (KEY=VALUE pairs, as from os.Environ).
func NewSandbox(eng engine.Engine, fs afero.Fs, environ []string) *Sandbox {
	return &Sandbox{eng: eng, fs: fs, env: parseEnviron(environ)}
}

// Env returns a copy of the sandbox environment.
func (s *Sandbox) Env() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.env)
}

// RunFile reads path from the sandbox filesystem and runs it.
func (s *Sandbox) RunFile(ctx context.Context, path string, overrides map[string]string) error {
	src, err := afero.ReadFile(s.fs, path)
	if err != nil {
		slog.Debug("script open failed", "path", path, "err", err)
		return configErrorf("Cannot open file %q", path)
	}
	return s.Run(ctx, path, string(src), overrides)
}

// Run parses and executes src. overrides are set in the environment
// for the duration of the run only.
//
// Errors are a *SyntaxError before anything ran, a *ConfigError, an
// engine error unchanged, or a *ScriptError for anything unexpected.
func (s *Sandbox) Run(ctx context.Context, file, src string, overrides map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.env
	s.env = maps.Clone(saved)
	maps.Copy(s.env, overrides)
	defer func() { s.env = saved }()

	prog, err := Parse(file, src)
	if err != nil {
		return err
	}
	stmts, err := Desugar(prog)
	if err != nil {
		return err
	}
	ns, err := LoadNamespace(ctx, s.eng)
	if err != nil {
		return err
	}

	r := &run{
		eng:   s.eng,
		ns:    ns,
		env:   s.env,
		prog:  prog,
		vars:  make(map[string]entity),
		stack: []Frame{{File: loaderFile, Func: "run"}},
	}
	slog.Debug("running script", "file", file, "statements", len(stmts))
	return engine.WithPause(ctx, s.eng, func(ctx context.Context) error {
		return r.exec(ctx, stmts)
	})
}

type entity struct {
	name string
	kind Kind
}

type run struct {
	eng   engine.Engine
	ns    *Namespace
	env   map[string]string
	prog  *Program
	vars  map[string]entity
	stack []Frame
}

func (r *run) exec(ctx context.Context, stmts []Stmt) (err error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("script panicked", "file", r.prog.File, "panic", p, "stack", string(debug.Stack()))
			err = &ScriptError{Trace: trimTrace(r.stack, r.prog.File), Err: fmt.Errorf("internal error: %v", p)}
		}
	}()
	for _, st := range stmts {
		r.push(st.Position(), "<script>")
		if err := r.stmt(ctx, st); err != nil {
			return r.classify(err)
		}
		r.pop()
	}
	return nil
}

func (r *run) stmt(ctx context.Context, st Stmt) error {
	switch st := st.(type) {
	case *Build:
		return r.build(ctx, st)
	case *Connect:
		return r.connect(ctx, st)
	case *Fail:
		msg, err := r.resolve(st.Msg)
		if err != nil {
			return err
		}
		if s, ok := msg.(string); ok {
			return &ConfigError{Msg: s}
		}
		return &ConfigError{Msg: literal.Format(msg)}
	}
	return fmt.Errorf("unknown statement %T", st)
}

func (r *run) build(ctx context.Context, b *Build) error {
	ctor, ok := r.ns.Lookup(b.Class)
	if !ok {
		if r.ns.Taken(b.Class) {
			return configErrorf("%s is not a port driver or module class", b.Class)
		}
		return configErrorf("Module class or port driver %s does not exist", b.Class)
	}
	if b.Name != "" {
		if r.ns.Taken(b.Name) {
			return configErrorf("Name %s is reserved", b.Name)
		}
		if _, dup := r.vars[b.Var]; dup {
			return configErrorf("Name %s already exists", b.Name)
		}
	}

	r.push(b.Pos, b.Class)
	kw, err := r.resolveKeywords(b.Args.Keywords)
	if err != nil {
		return err
	}
	var name string
	switch ctor.Kind {
	case PortConstructor:
		if b.Args.HasPositional {
			return configErrorf("%s takes keyword arguments only", b.Class)
		}
		name, err = r.eng.CreatePort(ctx, b.Class, b.Name, kw)
	default:
		var arg any
		if kw != nil {
			arg = kw
		} else if b.Args.HasPositional {
			if arg, err = r.resolve(b.Args.Positional); err != nil {
				return err
			}
		}
		name, err = r.eng.CreateModule(ctx, b.Class, b.Name, arg)
	}
	if err != nil {
		return err
	}
	r.pop()

	r.vars[b.Var] = entity{name: name, kind: ctor.Kind}
	slog.Debug("script built", "name", name, "class", b.Class, "kind", ctor.Kind)
	return nil
}

func (r *run) connect(ctx context.Context, c *Connect) error {
	from, err := r.module(c.From)
	if err != nil {
		return err
	}
	to, err := r.module(c.To)
	if err != nil {
		return err
	}
	return r.eng.ConnectModules(ctx, from, c.OGate, to, c.IGate)
}

func (r *run) module(v string) (string, error) {
	ent, ok := r.vars[v]
	if !ok {
		return "", &NameError{Name: v}
	}
	if ent.kind != ModuleConstructor {
		return "", configErrorf("%s is a port; only modules can be connected", ent.name)
	}
	return ent.name, nil
}

func (r *run) resolveKeywords(kw map[string]any) (map[string]any, error) {
	if kw == nil {
		return nil, nil
	}
	out := make(map[string]any, len(kw))
	for k, v := range kw {
		rv, err := r.resolve(v)
		if err != nil {
			return nil, err
		}
		out[k] = rv
	}
	return out, nil
}

// resolve replaces entity references with entity names and expands
// environment references, recursively.
func (r *run) resolve(v any) (any, error) {
	switch x := v.(type) {
	case literal.Ref:
		ent, ok := r.vars[x.Name]
		if !ok {
			return nil, &NameError{Name: x.Name}
		}
		return ent.name, nil
	case literal.EnvRef:
		return expandEnv(r.env, x.Expr)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			rv, err := r.resolve(item)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	case map[string]any:
		return r.resolveKeywords(x)
	}
	return v, nil
}

func (r *run) push(p Pos, fn string) {
	f := Frame{File: r.prog.File, Line: p.Line, Func: fn}
	if p.Line >= 1 && p.Line <= len(r.prog.Lines) {
		f.Source = r.prog.Lines[p.Line-1]
	}
	r.stack = append(r.stack, f)
}

func (r *run) pop() {
	r.stack = r.stack[:len(r.stack)-1]
}

// classify passes through errors the operator is meant to see as is and
// wraps everything else with the script trace.
func (r *run) classify(err error) error {
	var (
		ce  *ConfigError
		ae  *engine.APIError
		cne *engine.ConnectivityError
	)
	switch {
	case errors.As(err, &ce), errors.As(err, &ae), errors.As(err, &cne),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return &ScriptError{Trace: trimTrace(r.stack, r.prog.File), Err: err}
}
