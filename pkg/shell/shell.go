package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/psaab/bessctl/pkg/cmdtree"
	"github.com/psaab/bessctl/pkg/engine"
)

// ReconnectHint is printed after the engine was found unreachable.
const ReconnectHint = `Use "daemon connect" to reconnect`

var (
	errColor      = color.New(color.FgRed)
	internalColor = color.New(color.FgRed, color.Bold)
)

// Shell reads command lines and dispatches them to a registry.
type Shell struct {
	sess *Session
	reg  *cmdtree.Registry

	// Command cancellation: Ctrl-C during a running command cancels it.
	cmdMu         sync.Mutex
	cmdCancel     context.CancelFunc // non-nil while a command is executing
	lastInterrupt time.Time
}

// New returns a shell running commands from reg in sess.
func New(sess *Session, reg *cmdtree.Registry) *Shell {
	return &Shell{sess: sess, reg: reg}
}

// Session returns the shell's session.
func (s *Shell) Session() *Session {
	return s.sess
}

// Dispatch runs one command line. Failures are reported to the session's
// error output and also returned; the outcome is Continue for them, so
// the caller keeps reading. A destructive command the operator declines
// returns Cancelled, and so does a command interrupted through ctx.
func (s *Shell) Dispatch(ctx context.Context, line string) (cmdtree.Outcome, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return cmdtree.Continue, nil
	}

	spec, args, err := s.reg.Resolve(line)
	if err != nil {
		s.report(err)
		return cmdtree.Continue, err
	}

	if spec.Confirm != "" {
		ok, err := s.sess.Confirm(spec.Confirm)
		if err != nil {
			s.report(err)
			return cmdtree.Continue, err
		}
		if !ok {
			return cmdtree.Cancelled, nil
		}
	}

	slog.Debug("dispatch", "command", spec.Syntax, "args", args.Values)
	out, err := spec.Handler(ctx, args)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return cmdtree.Cancelled, nil
		}
		s.report(err)
		return cmdtree.Continue, err
	}
	return out, nil
}

// report prints err as a single failure message. An unreachable engine
// also drops the session.
func (s *Shell) report(err error) {
	w := s.sess.ErrOut
	var ie *cmdtree.InternalError
	switch {
	case engine.IsConnectivity(err):
		s.sess.Disconnect()
		errColor.Fprintf(w, "Error: %v\n", err)
		fmt.Fprintln(w, ReconnectHint)
	case errors.As(err, &ie):
		slog.Error("internal error", "err", err)
		internalColor.Fprintf(w, "*** %v\n", err)
	case strings.Contains(err.Error(), "\n"):
		// Script tracebacks carry their own heading.
		errColor.Fprintln(w, err)
	default:
		errColor.Fprintf(w, "Error: %v\n", err)
	}
}

// Run is the interactive loop. It returns when the operator quits or
// input ends.
func (s *Shell) Run(ctx context.Context) error {
	ed := s.sess.Editor
	if ed == nil {
		return errors.New("interactive shell needs a line editor")
	}
	for {
		line, err := ed.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		s.sess.History.Push(line)

		cmdCtx := s.startCmd(ctx)
		out, _ := s.Dispatch(cmdCtx, line)
		s.endCmd()
		if out == cmdtree.Terminate {
			return nil
		}
	}
}

// RunLines dispatches every line of r, as when commands are piped in.
// It keeps going after failures and returns an error counting them.
func (s *Shell) RunLines(ctx context.Context, r io.Reader) error {
	failed := 0
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		cmdCtx := s.startCmd(ctx)
		out, err := s.Dispatch(cmdCtx, sc.Text())
		s.endCmd()
		if err != nil {
			failed++
		}
		if out == cmdtree.Terminate {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d command(s) failed", failed)
	}
	return nil
}

// startCmd creates a cancellable context for the current command.
// Must call endCmd() when the command finishes.
func (s *Shell) startCmd(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	s.cmdMu.Lock()
	s.cmdCancel = cancel
	s.cmdMu.Unlock()
	return ctx
}

// endCmd clears the per-command context.
func (s *Shell) endCmd() {
	s.cmdMu.Lock()
	if s.cmdCancel != nil {
		s.cmdCancel()
	}
	s.cmdCancel = nil
	s.cmdMu.Unlock()
}

// interrupt handles one SIGINT. A running command is cancelled; with no
// command running, a second interrupt within 2s asks to exit.
func (s *Shell) interrupt(now time.Time) (exit bool) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	if s.cmdCancel != nil {
		s.cmdCancel()
		fmt.Fprintln(s.sess.ErrOut, "\n^C (command cancelled)")
		return false
	}
	if now.Sub(s.lastInterrupt) < 2*time.Second {
		return true
	}
	s.lastInterrupt = now
	fmt.Fprintln(s.sess.ErrOut, "\n^C (press again within 2s to exit)")
	return false
}

// HandleInterrupts routes SIGINT to the running command until stop is
// called. exit runs on a double interrupt at the prompt.
func (s *Shell) HandleInterrupts(exit func()) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-sigCh:
				if s.interrupt(time.Now()) {
					exit()
					return
				}
			}
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
