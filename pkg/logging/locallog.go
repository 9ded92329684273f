package logging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

var errLogClosed = errors.New("log file closed")

// LocalLogWriter appends log lines to a file and keeps a bounded set of
// rotated copies next to it (path.1 is the newest). The shell logs here
// so diagnostics never interleave with command output.
type LocalLogWriter struct {
	mu      sync.Mutex
	fs      afero.Fs
	file    afero.File
	path    string
	maxSize int64
	keep    int
	written int64
	now     func() time.Time

	// MinSeverity filters like SyslogClient.MinSeverity.
	MinSeverity int
}

// LocalLogConfig configures a LocalLogWriter. Zero fields take defaults.
type LocalLogConfig struct {
	Fs       afero.Fs // default: the OS filesystem
	Path     string   // default: ~/.bessctl/bessctl.log
	MaxSize  int64    // rotate once the file reaches this many bytes (1 MiB)
	MaxFiles int      // rotated copies to keep (3)
}

// NewLocalLogWriter opens (or creates) the log file for appending.
func NewLocalLogWriter(cfg LocalLogConfig) (*LocalLogWriter, error) {
	lw := &LocalLogWriter{
		fs:      cfg.Fs,
		path:    cfg.Path,
		maxSize: cfg.MaxSize,
		keep:    cfg.MaxFiles,
		now:     time.Now,
	}
	if lw.fs == nil {
		lw.fs = afero.NewOsFs()
	}
	if lw.path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("log path: %w", err)
		}
		lw.path = filepath.Join(home, ".bessctl", "bessctl.log")
	}
	if lw.maxSize <= 0 {
		lw.maxSize = 1 << 20
	}
	if lw.keep <= 0 {
		lw.keep = 3
	}

	if err := lw.fs.MkdirAll(filepath.Dir(lw.path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if err := lw.open(os.O_APPEND); err != nil {
		return nil, err
	}
	if info, err := lw.file.Stat(); err == nil {
		lw.written = info.Size()
	}
	return lw, nil
}

func (lw *LocalLogWriter) open(mode int) error {
	f, err := lw.fs.OpenFile(lw.path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	lw.file = f
	return nil
}

// Send appends one timestamped line.
func (lw *LocalLogWriter) Send(severity int, msg string) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if lw.file == nil {
		return errLogClosed
	}
	line := fmt.Sprintf("%s [%s] %s\n", lw.now().Format("2006-01-02T15:04:05.000"), severityTag(severity), msg)
	n, err := lw.file.WriteString(line)
	lw.written += int64(n)
	if err != nil {
		return err
	}
	if lw.written >= lw.maxSize {
		return lw.rotate()
	}
	return nil
}

// ShouldSend reports whether severity passes MinSeverity. The zero
// value passes everything up to info.
func (lw *LocalLogWriter) ShouldSend(severity int) bool {
	if lw.MinSeverity == 0 {
		return severity <= SyslogInfo
	}
	return severity <= lw.MinSeverity
}

// Close closes the file. Closing twice is not an error.
func (lw *LocalLogWriter) Close() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if lw.file == nil {
		return nil
	}
	err := lw.file.Close()
	lw.file = nil
	return err
}

// rotate shifts path.N to path.N+1, dropping the oldest, then starts a
// fresh file. Called with mu held.
func (lw *LocalLogWriter) rotate() error {
	lw.file.Close()
	lw.file = nil

	if err := lw.fs.Remove(lw.rotated(lw.keep)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("rotate log: %w", err)
	}
	for i := lw.keep - 1; i >= 1; i-- {
		lw.fs.Rename(lw.rotated(i), lw.rotated(i+1))
	}
	if err := lw.fs.Rename(lw.path, lw.rotated(1)); err != nil {
		return fmt.Errorf("rotate log: %w", err)
	}
	lw.written = 0
	return lw.open(os.O_TRUNC)
}

func (lw *LocalLogWriter) rotated(n int) string {
	return fmt.Sprintf("%s.%d", lw.path, n)
}

func severityTag(severity int) string {
	switch severity {
	case SyslogError:
		return "ERROR"
	case SyslogWarning:
		return "WARNING"
	case SyslogDebug:
		return "DEBUG"
	default:
		return "INFO"
	}
}
