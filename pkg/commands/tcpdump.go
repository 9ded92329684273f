package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/psaab/bessctl/pkg/cmdtree"
)

// tcpdump mirrors packets leaving one output gate into a private FIFO and
// runs tcpdump on it until tcpdump exits or the command is interrupted.
func (c *Commands) tcpdump(ctx context.Context, args cmdtree.Args) (cmdtree.Outcome, error) {
	module, ogate, opts := args.String(0, ""), args.Int(1, 0), args.Strings(2)

	fifo := filepath.Join(os.TempDir(), "bessctl-tcpdump-"+uuid.NewString())
	if err := unix.Mkfifo(fifo, 0o600); err != nil {
		return cmdtree.Continue, fmt.Errorf("create fifo: %w", err)
	}
	defer os.Remove(fifo)

	// Holding a read-write descriptor keeps the FIFO from reporting EOF
	// to tcpdump while the engine has not opened it yet.
	hold, err := os.OpenFile(fifo, os.O_RDWR, 0)
	if err != nil {
		return cmdtree.Continue, fmt.Errorf("open fifo: %w", err)
	}
	defer hold.Close()

	argv := append([]string{"-r", fifo}, opts...)
	fmt.Fprintf(c.sess.Out, "  Running: %s %s\n", c.tcpdumpPath, strings.Join(argv, " "))
	cmd := exec.Command(c.tcpdumpPath, argv...)
	cmd.Stdout, cmd.Stderr = c.sess.Out, c.sess.ErrOut
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return cmdtree.Continue, fmt.Errorf("start %s: %w", c.tcpdumpPath, err)
	}
	pid := cmd.Process.Pid
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	err = c.paused(ctx, func(ctx context.Context) error {
		return c.sess.Conn.EnableTcpdump(ctx, fifo, module, ogate)
	})
	if err != nil {
		killGroup(pid)
		<-exited
		return cmdtree.Continue, err
	}
	slog.Debug("tcpdump running", "module", module, "ogate", ogate, "pid", pid)

	select {
	case werr := <-exited:
		if werr != nil {
			slog.Debug("tcpdump exited", "err", werr)
		}
	case <-ctx.Done():
		killGroup(pid)
		<-exited
	}

	// Capture must be switched off even when the command was interrupted.
	err = c.paused(context.WithoutCancel(ctx), func(ctx context.Context) error {
		return c.sess.Conn.DisableTcpdump(ctx, module, ogate)
	})
	return cmdtree.Continue, err
}

// killGroup terminates every process in the group led by pid.
func killGroup(pid int) {
	if err := unix.Kill(-pid, unix.SIGTERM); err != nil && err != unix.ESRCH {
		slog.Warn("kill tcpdump", "pid", pid, "err", err)
	}
}
