// Package commands is the bessctl command surface: every command the
// shell understands, its placeholders and its handler.
package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/psaab/bessctl/pkg/argtype"
	"github.com/psaab/bessctl/pkg/cmdtree"
	"github.com/psaab/bessctl/pkg/engine"
	"github.com/psaab/bessctl/pkg/script"
	"github.com/psaab/bessctl/pkg/shell"
)

// historyShown is the number of lines the history command prints.
const historyShown = 100

// Commands binds the command table to a session.
type Commands struct {
	sess    *shell.Session
	reg     *cmdtree.Registry
	sandbox *script.Sandbox

	tcpdumpPath  string
	startTimeout time.Duration
}

type command struct {
	syntax  string
	desc    string
	confirm string
	run     cmdtree.Handler
}

// New registers the full command table for sess. environ seeds the
// environment configuration scripts see.
func New(sess *shell.Session, environ []string) (*Commands, error) {
	c := &Commands{
		sess:         sess,
		sandbox:      script.NewSandbox(sess.Conn, sess.FS, environ),
		tcpdumpPath:  "tcpdump",
		startTimeout: 5 * time.Second,
	}
	c.reg = cmdtree.NewRegistry(c.vars())
	for _, cmd := range c.table() {
		spec, err := c.reg.Register(cmd.syntax, cmd.desc, cmd.run)
		if err != nil {
			return nil, err
		}
		spec.Confirm = cmd.confirm
	}
	if err := c.reg.Check(); err != nil {
		return nil, err
	}
	return c, nil
}

// Registry returns the registered commands.
func (c *Commands) Registry() *cmdtree.Registry {
	return c.reg
}

func (c *Commands) table() []command {
	return []command{
		{syntax: "help", desc: "List available commands", run: c.help},
		{syntax: "quit", desc: "Quit CLI", run: c.quit},
		{syntax: "history", desc: "Show command history", run: c.history},

		{syntax: "daemon connect [HOST] [TCP_PORT]", desc: "Connect to BESS daemon", run: c.daemonConnect},
		{syntax: "daemon disconnect", desc: "Disconnect from BESS daemon", run: c.daemonDisconnect},
		{syntax: "daemon start", desc: "Start BESS daemon in the local machine", run: c.daemonStart},
		{syntax: "daemon reset", desc: "Remove all ports and modules in the pipeline",
			confirm: "The entire pipeline will be cleared.", run: c.daemonReset},
		{syntax: "daemon stop", desc: "Stop BESS daemon",
			confirm: "BESS daemon will be killed.", run: c.daemonStop},

		{syntax: "run CONF [ENV_VARS...]", desc: `Run a *.bess configuration in the "conf" directory`, run: c.runConf},
		{syntax: "run file CONF_FILE [ENV_VARS]", desc: "Run a configuration file", run: c.runFile},

		{syntax: "add port DRIVER [NEW_PORT] [PORT_ARGS...]", desc: "Add a new port", run: c.addPort},
		{syntax: "add module MCLASS [NEW_MODULE] [MODULE_ARGS...]", desc: "Add a new module", run: c.addModule},
		{syntax: "add connection MODULE MODULE [OGATE] [IGATE]", desc: "Add a connection between two modules", run: c.addConnection},
		{syntax: "delete port PORT", desc: "Delete a port", run: c.deletePort},
		{syntax: "delete module MODULE", desc: "Delete a module", run: c.deleteModule},
		{syntax: "delete connection MODULE ogate [OGATE]", desc: "Delete a connection between two modules", run: c.deleteConnection},

		{syntax: "show status", desc: "Show the overall status", run: c.showStatus},
		{syntax: "show pipeline", desc: "Show the current datapath pipeline", run: c.showPipeline},
		{syntax: "show port", desc: "Show the status of all ports", run: c.showPorts},
		{syntax: "show port PORT...", desc: "Show the status of specified ports", run: c.showPorts},
		{syntax: "show module", desc: "Show the status of all modules", run: c.showModules},
		{syntax: "show module MODULE...", desc: "Show the status of specified modules", run: c.showModules},

		{syntax: "monitor pipeline", desc: "Monitor the datapath pipeline", run: c.monitorPipeline},
		{syntax: "monitor port", desc: "Monitor the current traffic of all ports", run: c.monitorPorts},
		{syntax: "monitor port PORT...", desc: "Monitor the current traffic of specified ports", run: c.monitorPorts},

		{syntax: "tcpdump MODULE [OGATE] [TCPDUMP_OPTS...]", desc: "Capture packets on a gate", run: c.tcpdump},
	}
}

func (c *Commands) vars() cmdtree.Vars {
	confs := argtype.FileSource(c.sess.FS, func() string { return c.sess.Settings.ConfDir }, script.Suffix)
	files := argtype.FileSource(c.sess.FS, func() string { return "" }, "")
	return cmdtree.Vars{
		"DRIVER":     {Kind: argtype.Name, Desc: "name of a port driver", Source: c.drivers},
		"MCLASS":     {Kind: argtype.Name, Desc: "name of a module class", Source: c.mclasses},
		"NEW_PORT":   {Kind: argtype.Name, Desc: "specify a name of the new port"},
		"PORT":       {Kind: argtype.Name, Desc: "name of a port", Source: c.portNames},
		"PORT...":    {Kind: argtype.Names, Desc: "one or more port names", Source: c.portNames},
		"NEW_MODULE": {Kind: argtype.Name, Desc: "specify a name of the new module instance"},
		"MODULE":     {Kind: argtype.Name, Desc: "name of an existing module instance", Source: c.moduleNames},
		"MODULE...":  {Kind: argtype.Names, Desc: "one or more module names", Source: c.moduleNames},

		"OGATE": {Kind: argtype.Gate, Desc: "output gate of a module (default 0)"},
		"IGATE": {Kind: argtype.Gate, Desc: "input gate of a module (default 0)"},

		"CONF":        {Kind: argtype.ConfName, Desc: `configuration name in the "conf" directory`, Source: confs},
		"CONF_FILE":   {Kind: argtype.FileName, Desc: "configuration filename", Source: files},
		"ENV_VARS":    {Kind: argtype.Map, Desc: "environment variables for configuration"},
		"ENV_VARS...": {Kind: argtype.Map, Desc: "environment variables for configuration"},

		"PORT_ARGS...":    {Kind: argtype.Map, Desc: "initial configuration for port"},
		"MODULE_ARGS...":  {Kind: argtype.Literal, Desc: "initial configuration for module"},
		"TCPDUMP_OPTS...": {Kind: argtype.Opts, Desc: `tcpdump(1) options (e.g., "-ne tcp port 22")`},

		"HOST":     {Kind: argtype.Host, Desc: "host name or address of the daemon"},
		"TCP_PORT": {Kind: argtype.TCPPort, Desc: "TCP port of the daemon"},
	}
}

func (c *Commands) drivers(ctx context.Context, _ string) ([]string, error) {
	return c.sess.Conn.ListDrivers(ctx)
}

func (c *Commands) mclasses(ctx context.Context, _ string) ([]string, error) {
	return c.sess.Conn.ListModuleClasses(ctx)
}

func (c *Commands) portNames(ctx context.Context, _ string) ([]string, error) {
	ports, err := c.sess.Conn.ListPorts(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ports))
	for i, p := range ports {
		names[i] = p.Name
	}
	return names, nil
}

func (c *Commands) moduleNames(ctx context.Context, _ string) ([]string, error) {
	mods, err := c.sess.Conn.ListModules(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(mods))
	for i, m := range mods {
		names[i] = m.Name
	}
	return names, nil
}

func (c *Commands) help(context.Context, cmdtree.Args) (cmdtree.Outcome, error) {
	cmdtree.WriteUsage(c.sess.Out, c.reg.Commands())
	return cmdtree.Continue, nil
}

func (c *Commands) quit(context.Context, cmdtree.Args) (cmdtree.Outcome, error) {
	return cmdtree.Terminate, nil
}

// history prints recent lines, leaving out the history command itself.
func (c *Commands) history(context.Context, cmdtree.Args) (cmdtree.Outcome, error) {
	first, lines := c.sess.History.Tail(historyShown + 1)
	if n := len(lines); n > 0 && lines[n-1] == "history" {
		lines = lines[:n-1]
	}
	if extra := len(lines) - historyShown; extra > 0 {
		first, lines = first+extra, lines[extra:]
	}
	var sb strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&sb, "%5d  %s\n", first+i, line)
	}
	fmt.Fprint(c.sess.Out, sb.String())
	return cmdtree.Continue, nil
}

// paused runs fn with all workers paused.
func (c *Commands) paused(ctx context.Context, fn func(ctx context.Context) error) error {
	return engine.WithPause(ctx, c.sess.Conn, fn)
}

// group formats n with thousands separators.
func group(n uint64) string {
	s := fmt.Sprint(n)
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	return strings.Join(append([]string{s}, parts...), ",")
}

// existing checks that every requested name is in known, in the order
// requested.
func existing(kind string, requested, known []string) error {
	set := make(map[string]bool, len(known))
	for _, k := range known {
		set[k] = true
	}
	for _, r := range requested {
		if !set[r] {
			return fmt.Errorf("%s %q does not exist", kind, r)
		}
	}
	return nil
}

func sortedCopy(ss []string) []string {
	out := append([]string(nil), ss...)
	sort.Strings(out)
	return out
}
