package logging

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

func newTestLog(t *testing.T, maxSize int64) (*LocalLogWriter, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	lw, err := NewLocalLogWriter(LocalLogConfig{Fs: fs, Path: "/logs/bessctl.log", MaxSize: maxSize, MaxFiles: 2})
	if err != nil {
		t.Fatal(err)
	}
	lw.now = func() time.Time { return time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC) }
	t.Cleanup(func() { lw.Close() })
	return lw, fs
}

func readFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestLocalLogWriterSend(t *testing.T) {
	lw, fs := newTestLog(t, 0)
	for _, m := range []struct {
		sev int
		msg string
	}{
		{SyslogInfo, "connected to localhost:10514"},
		{SyslogWarning, "history not loaded"},
		{SyslogError, "pause failed"},
		{SyslogDebug, "dispatch"},
	} {
		if err := lw.Send(m.sev, m.msg); err != nil {
			t.Fatal(err)
		}
	}

	want := strings.Join([]string{
		"2024-03-01T12:30:00.000 [INFO] connected to localhost:10514",
		"2024-03-01T12:30:00.000 [WARNING] history not loaded",
		"2024-03-01T12:30:00.000 [ERROR] pause failed",
		"2024-03-01T12:30:00.000 [DEBUG] dispatch",
	}, "\n") + "\n"
	if diff := cmp.Diff(want, readFile(t, fs, "/logs/bessctl.log")); diff != "" {
		t.Errorf("log content mismatch (-want +got):\n%s", diff)
	}
}

func TestLocalLogWriterAppends(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/l/x.log", []byte("earlier\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	lw, err := NewLocalLogWriter(LocalLogConfig{Fs: fs, Path: "/l/x.log"})
	if err != nil {
		t.Fatal(err)
	}
	lw.Send(SyslogInfo, "later")
	lw.Close()

	got := readFile(t, fs, "/l/x.log")
	if !strings.HasPrefix(got, "earlier\n") || !strings.HasSuffix(got, "[INFO] later\n") {
		t.Errorf("content = %q", got)
	}
	if lw.written != int64(len(got)) {
		t.Errorf("written = %d, want %d", lw.written, len(got))
	}
}

func TestLocalLogWriterRotation(t *testing.T) {
	// Each line is 33 bytes, so every second line triggers a rotation.
	lw, fs := newTestLog(t, 66)
	for _, msg := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		if err := lw.Send(SyslogInfo, msg); err != nil {
			t.Fatalf("Send(%q): %v", msg, err)
		}
	}

	lastMsg := func(path string) string {
		content := strings.TrimSpace(readFile(t, fs, path))
		return content[len(content)-1:]
	}
	got := map[string]string{
		"current": lastMsg("/logs/bessctl.log"),
		"1":       lastMsg("/logs/bessctl.log.1"),
		"2":       lastMsg("/logs/bessctl.log.2"),
	}
	want := map[string]string{"current": "g", "1": "f", "2": "d"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rotation mismatch (-want +got):\n%s", diff)
	}
	if ok, _ := afero.Exists(fs, "/logs/bessctl.log.3"); ok {
		t.Error("more rotated files kept than MaxFiles")
	}
}

func TestLocalLogWriterShouldSend(t *testing.T) {
	tests := []struct {
		min, sev int
		want     bool
	}{
		{0, SyslogInfo, true},
		{0, SyslogDebug, false},
		{SyslogWarning, SyslogError, true},
		{SyslogWarning, SyslogInfo, false},
		{SyslogDebug, SyslogDebug, true},
	}
	for _, tt := range tests {
		lw := &LocalLogWriter{MinSeverity: tt.min}
		if got := lw.ShouldSend(tt.sev); got != tt.want {
			t.Errorf("MinSeverity %d: ShouldSend(%d) = %v, want %v", tt.min, tt.sev, got, tt.want)
		}
	}
}

func TestLocalLogWriterDefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	lw, err := NewLocalLogWriter(LocalLogConfig{Fs: afero.NewMemMapFs()})
	if err != nil {
		t.Fatal(err)
	}
	defer lw.Close()
	if want := filepath.Join(home, ".bessctl", "bessctl.log"); lw.path != want {
		t.Errorf("path = %q, want %q", lw.path, want)
	}
}

func TestLocalLogWriterClosed(t *testing.T) {
	lw, _ := newTestLog(t, 0)
	lw.Close()
	if err := lw.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if err := lw.Send(SyslogInfo, "late"); err != errLogClosed {
		t.Errorf("Send after Close = %v, want %v", err, errLogClosed)
	}
}
