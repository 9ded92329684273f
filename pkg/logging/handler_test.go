package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

type memSink struct {
	min    int
	lines  []string
	closed bool
}

func (m *memSink) Send(severity int, msg string) error {
	m.lines = append(m.lines, severityTag(severity)+" "+msg)
	return nil
}

func (m *memSink) ShouldSend(severity int) bool {
	return m.min == 0 || severity <= m.min
}

func (m *memSink) Close() error {
	m.closed = true
	return nil
}

func TestFanoutHandler(t *testing.T) {
	var base bytes.Buffer
	h := NewFanoutHandler(NewBaseHandler(&base, false))
	sink := &memSink{min: SyslogDebug}
	h.SetSinks(sink)

	log := slog.New(h).With("session", 1).WithGroup("engine")
	log.Debug("probe", "addr", "localhost:10514")
	log.Warn("connect failed", "err", "refused")

	wantLines := []string{
		"DEBUG probe session=1 engine.addr=localhost:10514",
		"WARNING connect failed session=1 engine.err=refused",
	}
	if len(sink.lines) != len(wantLines) {
		t.Fatalf("sink got %q, want %q", sink.lines, wantLines)
	}
	for i, want := range wantLines {
		if sink.lines[i] != want {
			t.Errorf("line %d = %q, want %q", i, sink.lines[i], want)
		}
	}

	out := base.String()
	if strings.Contains(out, "probe") {
		t.Errorf("base handler logged a debug record: %q", out)
	}
	if !strings.Contains(out, "connect failed") {
		t.Errorf("base handler missing warning: %q", out)
	}

	// Replacing sinks closes the old ones and affects derived handlers.
	next := &memSink{}
	h.SetSinks(next)
	if !sink.closed {
		t.Error("old sink not closed")
	}
	log.Info("after swap")
	if len(next.lines) != 1 || len(sink.lines) != 2 {
		t.Errorf("after swap: old=%d new=%d lines", len(sink.lines), len(next.lines))
	}

	h.Close()
	if !next.closed {
		t.Error("Close did not close sinks")
	}
}

func TestSlogLevelToSyslog(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  int
	}{
		{slog.LevelError, SyslogError},
		{slog.LevelWarn, SyslogWarning},
		{slog.LevelInfo, SyslogInfo},
		{slog.LevelDebug, SyslogDebug},
	}
	for _, tt := range tests {
		if got := slogLevelToSyslog(tt.level); got != tt.want {
			t.Errorf("slogLevelToSyslog(%v) = %d, want %d", tt.level, got, tt.want)
		}
	}
}
