// Package logging provides the slog plumbing shared by bessctl and
// bessd-sim: a handler that fans records out to extra sinks, a rotating
// local log file and an RFC 3164 syslog client.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Sink receives formatted log lines. Both LocalLogWriter and
// SyslogClient are sinks.
type Sink interface {
	Send(severity int, msg string) error
	ShouldSend(severity int) bool
	Close() error
}

// FanoutHandler is an slog.Handler that forwards log records to a set of
// sinks in addition to a wrapped base handler.
type FanoutHandler struct {
	base   slog.Handler
	state  *sinkSet
	attrs  []slog.Attr
	groups []string
}

type sinkSet struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewFanoutHandler wraps a base slog.Handler with sink forwarding.
func NewFanoutHandler(base slog.Handler) *FanoutHandler {
	return &FanoutHandler{base: base, state: &sinkSet{}}
}

// NewBaseHandler returns the text handler bessctl and bessd-sim write to
// w. Debug records are kept only when debug is set.
func NewBaseHandler(w io.Writer, debug bool) slog.Handler {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}

// SetSinks replaces the set of sinks. Old sinks are closed. Handlers
// derived with WithAttrs or WithGroup see the new set too.
func (h *FanoutHandler) SetSinks(sinks ...Sink) {
	h.state.mu.Lock()
	old := h.state.sinks
	h.state.sinks = sinks
	h.state.mu.Unlock()

	for _, s := range old {
		s.Close()
	}
}

// Close closes all sinks.
func (h *FanoutHandler) Close() {
	h.SetSinks()
}

// Enabled implements slog.Handler. Sinks do their own severity
// filtering, so a record is enabled when the base handler or any sink
// wants it.
func (h *FanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.base.Enabled(ctx, level) {
		return true
	}
	h.state.mu.RLock()
	defer h.state.mu.RUnlock()
	sev := slogLevelToSyslog(level)
	for _, s := range h.state.sinks {
		if s.ShouldSend(sev) {
			return true
		}
	}
	return false
}

// Handle implements slog.Handler.
func (h *FanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.base.Enabled(ctx, r.Level) {
		err = h.base.Handle(ctx, r)
	}

	h.state.mu.RLock()
	sinks := h.state.sinks
	h.state.mu.RUnlock()

	if len(sinks) > 0 {
		severity := slogLevelToSyslog(r.Level)
		msg := formatRecord(r, h.attrs, h.groups)
		for _, s := range sinks {
			if s.ShouldSend(severity) {
				s.Send(severity, msg)
			}
		}
	}

	return err
}

// WithAttrs implements slog.Handler.
func (h *FanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &FanoutHandler{
		base:   h.base.WithAttrs(attrs),
		state:  h.state,
		attrs:  append(append([]slog.Attr{}, h.attrs...), attrs...),
		groups: h.groups,
	}
}

// WithGroup implements slog.Handler.
func (h *FanoutHandler) WithGroup(name string) slog.Handler {
	return &FanoutHandler{
		base:   h.base.WithGroup(name),
		state:  h.state,
		attrs:  h.attrs,
		groups: append(append([]string{}, h.groups...), name),
	}
}

// slogLevelToSyslog maps slog levels to syslog severity values.
func slogLevelToSyslog(level slog.Level) int {
	switch {
	case level >= slog.LevelError:
		return SyslogError
	case level >= slog.LevelWarn:
		return SyslogWarning
	case level >= slog.LevelInfo:
		return SyslogInfo
	default:
		return SyslogDebug
	}
}

// formatRecord produces a compact text representation of a log record.
func formatRecord(r slog.Record, preAttrs []slog.Attr, groups []string) string {
	var b strings.Builder
	b.WriteString(r.Message)

	for _, a := range preAttrs {
		fmt.Fprintf(&b, " %s=%s", a.Key, a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if len(groups) > 0 {
			key = strings.Join(groups, ".") + "." + key
		}
		fmt.Fprintf(&b, " %s=%s", key, a.Value.String())
		return true
	})

	return b.String()
}
