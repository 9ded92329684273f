package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	t.Setenv("BESSCTL_HOST", "")
	t.Setenv("BESSCTL_PORT", "")
	s, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), s); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("BESSCTL_HOST", "")
	t.Setenv("BESSCTL_PORT", "")
	t.Setenv("HOME", "/home/op")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `host: dp1
port: 20514
conf_dir: ~/pipelines
daemon:
  start_command: [bessd, -k]
monitor:
  interval: 2s
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Host != "dp1" || s.Port != 20514 {
		t.Errorf("host:port = %s:%d, want dp1:20514", s.Host, s.Port)
	}
	if s.ConfDir != "/home/op/pipelines" {
		t.Errorf("ConfDir = %q, want /home/op/pipelines", s.ConfDir)
	}
	if diff := cmp.Diff([]string{"bessd", "-k"}, s.Daemon.StartCommand); diff != "" {
		t.Errorf("StartCommand mismatch (-want +got):\n%s", diff)
	}
	if s.Monitor.Interval != 2*time.Second {
		t.Errorf("Interval = %v, want 2s", s.Monitor.Interval)
	}
	if s.Daemon.PIDFile != "/var/run/bessd.pid" {
		t.Errorf("PIDFile = %q, want default", s.Daemon.PIDFile)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BESSCTL_HOST", "10.0.0.1")
	t.Setenv("BESSCTL_PORT", "9000")
	s, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Host != "10.0.0.1" || s.Port != 9000 {
		t.Errorf("host:port = %s:%d, want 10.0.0.1:9000", s.Host, s.Port)
	}

	t.Setenv("BESSCTL_PORT", "x")
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load with BESSCTL_PORT=x succeeded")
	}
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("BESSCTL_HOST", "")
	t.Setenv("BESSCTL_PORT", "")
	tests := []struct {
		data string
		want string
	}{
		{"port: 70000\n", "out of range"},
		{"port: [\n", "failed to parse settings"},
		{"monitor:\n  interval: 1ms\n", "too short"},
		{"history_size: -1\n", "history_size"},
	}
	for _, tt := range tests {
		path := filepath.Join(t.TempDir(), "config.yaml")
		os.WriteFile(path, []byte(tt.data), 0o644)
		_, err := Load(path)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("Load(%q) = %v, want error containing %q", tt.data, err, tt.want)
		}
	}
}
