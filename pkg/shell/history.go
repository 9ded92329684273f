package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/afero"
)

// History is a ring buffer of the command lines entered in a session.
type History struct {
	entries []string
	maxSize int
}

// NewHistory creates a new History with the given maximum size.
func NewHistory(maxSize int) *History {
	return &History{
		maxSize: maxSize,
	}
}

// LoadHistory reads the history file the line editor writes, keeping the
// last maxSize lines. A missing file yields an empty history.
func LoadHistory(fsys afero.Fs, path string, maxSize int) (*History, error) {
	h := NewHistory(maxSize)
	f, err := fsys.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return h, nil
		}
		return h, fmt.Errorf("history %s: %w", path, err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		h.Push(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return h, fmt.Errorf("history %s: %w", path, err)
	}
	return h, nil
}

// Push adds a line to the history. Blank lines are ignored.
func (h *History) Push(line string) {
	line = strings.TrimSpace(line)
	if line == "" || h.maxSize <= 0 {
		return
	}
	h.entries = append(h.entries, line)
	if len(h.entries) > h.maxSize {
		h.entries = h.entries[1:]
	}
}

// Len returns the number of history entries.
func (h *History) Len() int {
	return len(h.entries)
}

// Get returns the nth most recent entry (0 = most recent).
func (h *History) Get(n int) (string, error) {
	if n < 0 || n >= len(h.entries) {
		return "", fmt.Errorf("history %d: no such entry (have %d entries)", n, len(h.entries))
	}
	return h.entries[len(h.entries)-1-n], nil
}

// Tail returns up to n of the most recent entries, oldest first, and the
// 1-based position of the first one.
func (h *History) Tail(n int) (first int, lines []string) {
	start := len(h.entries) - n
	if start < 0 {
		start = 0
	}
	return start + 1, append([]string(nil), h.entries[start:]...)
}
