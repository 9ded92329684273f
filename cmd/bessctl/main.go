// bessctl is the interactive control shell for the BESS dataplane.
//
// It connects to the engine over gRPC and offers a command line with
// completion, context help and command history. Arguments run a single
// command; commands piped on stdin run one per line.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/psaab/bessctl/pkg/commands"
	"github.com/psaab/bessctl/pkg/config"
	"github.com/psaab/bessctl/pkg/engine"
	"github.com/psaab/bessctl/pkg/logging"
	"github.com/psaab/bessctl/pkg/shell"
)

// errReported marks failures the shell has already printed.
var errReported = errors.New("command failed")

type options struct {
	host       string
	port       int
	configPath string
	confDir    string
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "bessctl: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "bessctl [command...]",
		Short: "Control shell for the BESS dataplane",
		Long: `bessctl connects to a running BESS daemon and manages its ports,
modules and connections.

Without arguments it starts an interactive shell. With arguments it runs
them as one command, e.g. "bessctl show status".`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args)
		},
	}
	// Words after the command, such as tcpdump's "-ne", are not ours.
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVar(&opts.host, "host", engine.DefaultHost, "BESS daemon host")
	cmd.Flags().IntVar(&opts.port, "port", engine.DefaultPort, "BESS daemon gRPC port")
	cmd.Flags().StringVar(&opts.configPath, "config", config.DefaultPath(), "settings file")
	cmd.Flags().StringVar(&opts.confDir, "conf-dir", "", `directory searched by "run"`)
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "log debug messages to stderr")
	return cmd
}

func run(cmd *cobra.Command, opts options, args []string) error {
	settings, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		settings.Host = opts.host
	}
	if cmd.Flags().Changed("port") {
		settings.Port = opts.port
	}
	if opts.confDir != "" {
		settings.ConfDir = opts.confDir
	}

	closeLog := setupLogging(settings, opts.debug)
	defer closeLog()

	client := engine.NewClient()
	defer client.Disconnect()

	fs := afero.NewOsFs()
	sess := shell.NewSession(client, settings, fs)
	cmds, err := commands.New(sess, os.Environ())
	if err != nil {
		return err
	}
	sh := shell.New(sess, cmds.Registry())

	ctx := context.Background()
	if err := sess.Connect(ctx, "", 0); err != nil {
		slog.Debug("initial connect failed", "err", err)
		fmt.Fprintf(sess.ErrOut, "Error: %v\n", err)
		fmt.Fprintln(sess.ErrOut, `Perhaps bessd daemon is not running locally? Try "daemon start".`)
	}

	switch {
	case len(args) > 0:
		stop := sh.HandleInterrupts(func() { os.Exit(130) })
		defer stop()
		if _, err := sh.Dispatch(ctx, strings.Join(args, " ")); err != nil {
			return errReported
		}
		return nil

	case !readline.IsTerminal(int(os.Stdin.Fd())):
		stop := sh.HandleInterrupts(func() { os.Exit(130) })
		defer stop()
		if err := sh.RunLines(ctx, os.Stdin); err != nil {
			slog.Debug("piped commands", "err", err)
			return errReported
		}
		return nil
	}

	return interactive(ctx, sh, cmds, fs)
}

func interactive(ctx context.Context, sh *shell.Shell, cmds *commands.Commands, fs afero.Fs) error {
	sess := sh.Session()
	hist, err := shell.LoadHistory(fs, sess.Settings.HistoryFile, sess.Settings.HistorySize)
	if err != nil {
		slog.Warn("history not loaded", "path", sess.Settings.HistoryFile, "err", err)
	} else {
		sess.History = hist
	}
	if err := fs.MkdirAll(config.Dir(), 0o755); err != nil {
		slog.Debug("settings dir", "err", err)
	}

	rl, err := shell.NewReadlineEditor(sess, cmds.Registry())
	if err != nil {
		return err
	}
	defer rl.Close()
	sess.Editor = rl
	sess.Interactive = true
	sess.Out = rl.Stdout()

	stop := sh.HandleInterrupts(func() {
		rl.Close()
		os.Exit(0)
	})
	defer stop()

	fmt.Fprintln(sess.Out, `Type "help" for a list of commands, "?" for context help.`)
	return sh.Run(ctx)
}

// setupLogging installs the default slog handler. Records always go to
// the log file; stderr gets them only with --debug.
func setupLogging(settings *config.Settings, debug bool) (closeFn func()) {
	var w io.Writer = io.Discard
	if debug {
		w = os.Stderr
	}
	fan := logging.NewFanoutHandler(logging.NewBaseHandler(w, debug))
	slog.SetDefault(slog.New(fan))

	lw, err := logging.NewLocalLogWriter(logging.LocalLogConfig{Path: settings.LogFile})
	if err != nil {
		slog.Debug("log file disabled", "err", err)
		return fan.Close
	}
	if debug {
		lw.MinSeverity = logging.SyslogDebug
	}
	fan.SetSinks(lw)
	return fan.Close
}
