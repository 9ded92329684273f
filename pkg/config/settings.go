// Package config loads the shell settings file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the contents of ~/.bessctl/config.yaml. Zero fields are
// filled from Default.
type Settings struct {
	Host        string          `yaml:"host"`
	Port        int             `yaml:"port"`
	ConfDir     string          `yaml:"conf_dir"`
	HistoryFile string          `yaml:"history_file"`
	HistorySize int             `yaml:"history_size"`
	LogFile     string          `yaml:"log_file"`
	Daemon      DaemonSettings  `yaml:"daemon"`
	Monitor     MonitorSettings `yaml:"monitor"`
}

// DaemonSettings controls "daemon start".
type DaemonSettings struct {
	// StartCommand is run to launch the engine, argv style.
	StartCommand []string `yaml:"start_command"`
	// PIDFile is locked by a running engine.
	PIDFile string `yaml:"pid_file"`
}

// MonitorSettings controls the monitor commands.
type MonitorSettings struct {
	Interval time.Duration `yaml:"interval"`
}

// Dir returns the per-user settings directory.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bessctl"
	}
	return filepath.Join(home, ".bessctl")
}

// DefaultPath returns the default settings file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns the built-in settings.
func Default() *Settings {
	dir := Dir()
	return &Settings{
		Host:        "localhost",
		Port:        10514,
		ConfDir:     filepath.Join(dir, "conf"),
		HistoryFile: filepath.Join(dir, "history"),
		HistorySize: 1000,
		LogFile:     filepath.Join(dir, "bessctl.log"),
		Daemon: DaemonSettings{
			StartCommand: []string{"bessd-sim", "-k"},
			PIDFile:      "/var/run/bessd.pid",
		},
		Monitor: MonitorSettings{
			Interval: time.Second,
		},
	}
}

// Load reads path. A missing file yields the defaults. BESSCTL_HOST and
// BESSCTL_PORT override the file.
func Load(path string) (*Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
		}
	}

	if err := s.applyEnvOverrides(); err != nil {
		return nil, err
	}
	s.fillDefaults()
	s.ConfDir = ExpandHome(s.ConfDir)
	s.HistoryFile = ExpandHome(s.HistoryFile)
	s.LogFile = ExpandHome(s.LogFile)
	s.Daemon.PIDFile = ExpandHome(s.Daemon.PIDFile)
	return s, s.Validate()
}

// Validate checks field ranges.
func (s *Settings) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("port %d out of range", s.Port)
	}
	if s.HistorySize < 0 {
		return fmt.Errorf("history_size must not be negative")
	}
	if s.Monitor.Interval < 100*time.Millisecond {
		return fmt.Errorf("monitor interval %v is too short", s.Monitor.Interval)
	}
	return nil
}

func (s *Settings) applyEnvOverrides() error {
	if host := os.Getenv("BESSCTL_HOST"); host != "" {
		s.Host = host
	}
	if port := os.Getenv("BESSCTL_PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("BESSCTL_PORT: %w", err)
		}
		s.Port = n
	}
	return nil
}

// fillDefaults restores fields a settings file explicitly emptied.
func (s *Settings) fillDefaults() {
	d := Default()
	if s.Host == "" {
		s.Host = d.Host
	}
	if s.ConfDir == "" {
		s.ConfDir = d.ConfDir
	}
	if len(s.Daemon.StartCommand) == 0 {
		s.Daemon.StartCommand = d.Daemon.StartCommand
	}
	if s.Daemon.PIDFile == "" {
		s.Daemon.PIDFile = d.Daemon.PIDFile
	}
	if s.Monitor.Interval == 0 {
		s.Monitor.Interval = d.Monitor.Interval
	}
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
