// Package shell runs the bessctl read-dispatch loop: it owns the session
// with the engine, reads lines from the line editor, resolves them
// against a command registry and reports failures without leaving the
// loop.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/chzyer/readline"
	"github.com/spf13/afero"

	"github.com/psaab/bessctl/pkg/config"
	"github.com/psaab/bessctl/pkg/engine"
)

// Conn is an engine session that can be switched at runtime.
// *engine.Client implements it.
type Conn interface {
	engine.Engine
	Connect(ctx context.Context, host string, port int) error
	Disconnect() error
	IsConnected() bool
	Addr() string
}

// Editor is the line editor of an interactive session.
// *readline.Instance implements it.
type Editor interface {
	Readline() (string, error)
	SetPrompt(prompt string)
	HistoryDisable()
	HistoryEnable()
	Stdout() io.Writer
}

// Session is the state shared by every command of one bessctl run.
type Session struct {
	Conn     Conn
	Settings *config.Settings
	FS       afero.Fs

	// Interactive sessions prompt before destructive commands. Commands
	// read from argv or a pipe run unconditionally.
	Interactive bool
	Editor      Editor

	Out    io.Writer
	ErrOut io.Writer

	History *History

	noComplete atomic.Bool
}

// NewSession returns a non-interactive session writing to stdout and
// stderr.
func NewSession(conn Conn, settings *config.Settings, fs afero.Fs) *Session {
	return &Session{
		Conn:     conn,
		Settings: settings,
		FS:       fs,
		Out:      os.Stdout,
		ErrOut:   os.Stderr,
		History:  NewHistory(settings.HistorySize),
	}
}

// Prompt returns the prompt for the current connection state.
func (s *Session) Prompt() string {
	if s.Conn.IsConnected() {
		return s.Conn.Addr() + " $ "
	}
	return "<disconnected> $ "
}

func (s *Session) refreshPrompt() {
	if s.Editor != nil {
		s.Editor.SetPrompt(s.Prompt())
	}
}

// Connect opens a session to host:port. Empty host and zero port fall
// back to the settings.
func (s *Session) Connect(ctx context.Context, host string, port int) error {
	if host == "" {
		host = s.Settings.Host
	}
	if port == 0 {
		port = s.Settings.Port
	}
	defer s.refreshPrompt()
	return s.Conn.Connect(ctx, host, port)
}

// Disconnect drops the engine session. It is called after the engine
// was found unreachable, so close errors are only logged.
func (s *Session) Disconnect() {
	if err := s.Conn.Disconnect(); err != nil {
		slog.Debug("disconnect", "err", err)
	}
	s.refreshPrompt()
}

// Completing reports whether tab completion is active. It is off while
// a confirmation prompt is shown.
func (s *Session) Completing() bool {
	return !s.noComplete.Load()
}

// Confirm asks the operator to type "yes" before a destructive action.
// Non-interactive sessions always proceed. While the prompt is shown
// completion is disabled and the answer is kept out of the history.
// An interrupt or end of input counts as a refusal.
func (s *Session) Confirm(warning string) (bool, error) {
	if !s.Interactive || s.Editor == nil {
		return true, nil
	}

	s.noComplete.Store(true)
	s.Editor.HistoryDisable()
	defer func() {
		s.Editor.HistoryEnable()
		s.noComplete.Store(false)
		s.refreshPrompt()
	}()

	s.Editor.SetPrompt(fmt.Sprintf(`WARNING: %s Are you sure? (type "yes") `, warning))
	resp, err := s.Editor.Readline()
	switch {
	case err == nil && strings.TrimSpace(resp) == "yes":
		return true, nil
	case err == nil, errors.Is(err, readline.ErrInterrupt), errors.Is(err, io.EOF):
		fmt.Fprintln(s.Out, "Cancelled.")
		return false, nil
	}
	return false, err
}
