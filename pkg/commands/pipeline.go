package commands

import (
	"context"
	"fmt"

	"github.com/psaab/bessctl/pkg/argtype"
	"github.com/psaab/bessctl/pkg/cmdtree"
	"github.com/psaab/bessctl/pkg/config"
	"github.com/psaab/bessctl/pkg/literal"
	"github.com/psaab/bessctl/pkg/script"
)

func (c *Commands) runConf(ctx context.Context, args cmdtree.Args) (cmdtree.Outcome, error) {
	path := argtype.JoinPath(c.sess.Settings.ConfDir, args.String(0, "")+script.Suffix)
	return c.runScript(ctx, path, args.Map(1))
}

func (c *Commands) runFile(ctx context.Context, args cmdtree.Args) (cmdtree.Outcome, error) {
	return c.runScript(ctx, config.ExpandHome(args.String(0, "")), args.Map(1))
}

func (c *Commands) runScript(ctx context.Context, path string, env map[string]any) (cmdtree.Outcome, error) {
	if err := c.sandbox.RunFile(ctx, path, envOverrides(env)); err != nil {
		return cmdtree.Continue, err
	}
	fmt.Fprintln(c.sess.Out, "Done.")
	return cmdtree.Continue, nil
}

// envOverrides converts bound ENV_VARS values to environment strings.
func envOverrides(env map[string]any) map[string]string {
	if len(env) == 0 {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		out[k] = literal.Format(v)
	}
	return out
}

func (c *Commands) addPort(ctx context.Context, args cmdtree.Args) (cmdtree.Outcome, error) {
	var name string
	err := c.paused(ctx, func(ctx context.Context) error {
		var err error
		name, err = c.sess.Conn.CreatePort(ctx, args.String(0, ""), args.String(1, ""), args.Map(2))
		return err
	})
	if err != nil {
		return cmdtree.Continue, err
	}
	fmt.Fprintf(c.sess.Out, "  The new port %q has been created\n", name)
	return cmdtree.Continue, nil
}

func (c *Commands) addModule(ctx context.Context, args cmdtree.Args) (cmdtree.Outcome, error) {
	var name string
	err := c.paused(ctx, func(ctx context.Context) error {
		var err error
		name, err = c.sess.Conn.CreateModule(ctx, args.String(0, ""), args.String(1, ""), args.Get(2))
		return err
	})
	if err != nil {
		return cmdtree.Continue, err
	}
	fmt.Fprintf(c.sess.Out, "  The new module %q has been created\n", name)
	return cmdtree.Continue, nil
}

func (c *Commands) addConnection(ctx context.Context, args cmdtree.Args) (cmdtree.Outcome, error) {
	from, to := args.String(0, ""), args.String(1, "")
	ogate, igate := args.Int(2, 0), args.Int(3, 0)
	err := c.paused(ctx, func(ctx context.Context) error {
		return c.sess.Conn.ConnectModules(ctx, from, ogate, to, igate)
	})
	if err != nil {
		return cmdtree.Continue, err
	}
	fmt.Fprintf(c.sess.Out, "  The connection %s:%d -> %d:%s has been created\n", from, ogate, igate, to)
	return cmdtree.Continue, nil
}

func (c *Commands) deletePort(ctx context.Context, args cmdtree.Args) (cmdtree.Outcome, error) {
	name := args.String(0, "")
	err := c.paused(ctx, func(ctx context.Context) error {
		return c.sess.Conn.DestroyPort(ctx, name)
	})
	if err != nil {
		return cmdtree.Continue, err
	}
	fmt.Fprintf(c.sess.Out, "  The port %q has been deleted\n", name)
	return cmdtree.Continue, nil
}

func (c *Commands) deleteModule(ctx context.Context, args cmdtree.Args) (cmdtree.Outcome, error) {
	name := args.String(0, "")
	err := c.paused(ctx, func(ctx context.Context) error {
		return c.sess.Conn.DestroyModule(ctx, name)
	})
	if err != nil {
		return cmdtree.Continue, err
	}
	fmt.Fprintf(c.sess.Out, "  The module %q has been deleted\n", name)
	return cmdtree.Continue, nil
}

func (c *Commands) deleteConnection(ctx context.Context, args cmdtree.Args) (cmdtree.Outcome, error) {
	name, ogate := args.String(0, ""), args.Int(1, 0)
	err := c.paused(ctx, func(ctx context.Context) error {
		return c.sess.Conn.DisconnectModules(ctx, name, ogate)
	})
	if err != nil {
		return cmdtree.Continue, err
	}
	fmt.Fprintf(c.sess.Out, "  The connection on %s:%d has been deleted\n", name, ogate)
	return cmdtree.Continue, nil
}
