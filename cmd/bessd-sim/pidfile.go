package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// pidFile is an exclusively locked file holding the daemon's pid. The
// lock, not the content, tells bessctl that a daemon is running.
type pidFile struct {
	path string
	f    *os.File
}

var errLocked = errors.New("another daemon holds the pid file")

func lockPIDFile(path string) (*pidFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open pid file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", path, errLocked)
		}
		return nil, fmt.Errorf("lock pid file: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		f.Close()
		return nil, err
	}
	return &pidFile{path: path, f: f}, nil
}

// release removes the file and drops the lock.
func (p *pidFile) release() {
	os.Remove(p.path)
	p.f.Close()
}

// killHolder signals the daemon named in path and waits for it to drop
// the lock.
func killHolder(path string, timeout time.Duration) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return fmt.Errorf("pid file %s: bad content %q", path, data)
	}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("kill %d: %w", pid, err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		p, err := lockPIDFile(path)
		if err == nil {
			p.release()
			return nil
		}
		if !errors.Is(err, errLocked) {
			return err
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("daemon %d did not exit within %v", pid, timeout)
}
