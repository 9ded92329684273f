package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/psaab/bessctl/pkg/cmdtree"
	"github.com/psaab/bessctl/pkg/engine"
)

func (c *Commands) daemonConnect(ctx context.Context, args cmdtree.Args) (cmdtree.Outcome, error) {
	return cmdtree.Continue, c.sess.Connect(ctx, args.String(0, ""), args.Int(1, 0))
}

func (c *Commands) daemonDisconnect(context.Context, cmdtree.Args) (cmdtree.Outcome, error) {
	c.sess.Disconnect()
	return cmdtree.Continue, nil
}

// daemonRunning reports whether a daemon holds the lock on pidFile.
func daemonRunning(pidFile string) (bool, error) {
	f, err := os.Open(pidFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	fd := int(f.Fd())
	err = unix.Flock(fd, unix.LOCK_SH|unix.LOCK_NB)
	switch {
	case err == nil:
		unix.Flock(fd, unix.LOCK_UN)
		return false, nil
	case errors.Is(err, unix.EWOULDBLOCK), errors.Is(err, unix.EACCES):
		return true, nil
	}
	return false, fmt.Errorf("lock %s: %w", pidFile, err)
}

func (c *Commands) daemonStart(ctx context.Context, _ cmdtree.Args) (cmdtree.Outcome, error) {
	running, err := daemonRunning(c.sess.Settings.Daemon.PIDFile)
	if err != nil {
		return cmdtree.Continue, err
	}
	if running {
		ok, err := c.sess.Confirm("Existing BESS daemon will be killed.")
		if err != nil || !ok {
			return cmdtree.Cancelled, err
		}
	}
	return cmdtree.Continue, c.startDaemon(ctx)
}

// startDaemon runs the configured start command and connects once the
// engine answers. The command may daemonize and exit, or keep running.
func (c *Commands) startDaemon(ctx context.Context) error {
	c.sess.Disconnect()

	argv := c.sess.Settings.Daemon.StartCommand
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout, cmd.Stderr = c.sess.Out, c.sess.ErrOut
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("Cannot start BESS daemon: %w", err)
	}
	slog.Info("daemon started", "argv", argv, "pid", cmd.Process.Pid)

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	deadline := time.NewTimer(c.startTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(100 * time.Millisecond)
	defer poll.Stop()
	for {
		err := c.sess.Connect(ctx, "", 0)
		if err == nil {
			return nil
		}
		if !engine.IsConnectivity(err) {
			return err
		}
		select {
		case werr := <-exited:
			if werr != nil {
				return fmt.Errorf("Cannot start BESS daemon: %w", werr)
			}
			exited = nil
		case <-deadline.C:
			return fmt.Errorf("BESS daemon did not answer within %v: %w", c.startTimeout, err)
		case <-ctx.Done():
			return ctx.Err()
		case <-poll.C:
		}
	}
}

func (c *Commands) daemonReset(ctx context.Context, _ cmdtree.Args) (cmdtree.Outcome, error) {
	err := c.paused(ctx, c.sess.Conn.ResetAll)
	if err == nil && c.sess.Interactive {
		fmt.Fprintln(c.sess.Out, "Done.")
	}
	return cmdtree.Continue, err
}

// daemonStop kills the engine. Workers stay paused; the process is gone.
// If the engine refuses to die it is resumed.
func (c *Commands) daemonStop(ctx context.Context, _ cmdtree.Args) (cmdtree.Outcome, error) {
	if err := c.sess.Conn.PauseAll(ctx); err != nil {
		return cmdtree.Continue, err
	}
	if err := c.sess.Conn.Kill(ctx); err != nil {
		if !engine.IsConnectivity(err) {
			if rerr := c.sess.Conn.ResumeAll(context.WithoutCancel(ctx)); rerr != nil {
				slog.Warn("resume after failed kill", "err", rerr)
			}
		}
		return cmdtree.Continue, err
	}
	c.sess.Disconnect()
	if c.sess.Interactive {
		fmt.Fprintln(c.sess.Out, "Done.")
	}
	return cmdtree.Continue, nil
}
