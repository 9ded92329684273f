package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/psaab/bessctl/pkg/cmdtree"
	"github.com/psaab/bessctl/pkg/engine"
	"github.com/psaab/bessctl/pkg/literal"
)

func (c *Commands) showStatus(ctx context.Context, _ cmdtree.Args) (cmdtree.Outcome, error) {
	e := c.sess.Conn
	drivers, err := e.ListDrivers(ctx)
	if err != nil {
		return cmdtree.Continue, err
	}
	classes, err := e.ListModuleClasses(ctx)
	if err != nil {
		return cmdtree.Continue, err
	}
	ports, err := e.ListPorts(ctx)
	if err != nil {
		return cmdtree.Continue, err
	}
	mods, err := e.ListModules(ctx)
	if err != nil {
		return cmdtree.Continue, err
	}

	portList := make([]string, len(ports))
	for i, p := range ports {
		portList[i] = p.Name + "/" + p.Driver
	}
	modList := make([]string, len(mods))
	for i, m := range mods {
		modList[i] = fmt.Sprintf("%s::%s(%s)", m.Name, m.MClass, m.Desc)
	}

	var sb strings.Builder
	writeList(&sb, "Available drivers", sortedCopy(drivers))
	writeList(&sb, "Available module classes", sortedCopy(classes))
	writeList(&sb, "Active ports", sortedCopy(portList))
	writeList(&sb, "Active modules", sortedCopy(modList))
	fmt.Fprint(c.sess.Out, sb.String())
	return cmdtree.Continue, nil
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		fmt.Fprintf(sb, "  %s: (none)\n", title)
		return
	}
	fmt.Fprintf(sb, "  %s: %s\n", title, strings.Join(items, ", "))
}

// showPipeline prints one line per connected output gate.
func (c *Commands) showPipeline(ctx context.Context, _ cmdtree.Args) (cmdtree.Outcome, error) {
	infos, err := c.moduleInfos(ctx, nil)
	if err != nil {
		return cmdtree.Continue, err
	}
	if len(infos) == 0 {
		fmt.Fprintln(c.sess.Out, "  (empty pipeline)")
		return cmdtree.Continue, nil
	}

	var sb strings.Builder
	for _, info := range infos {
		if len(info.OGates) == 0 && len(info.IGates) == 0 {
			fmt.Fprintf(&sb, "  %s::%s (unconnected)\n", info.Name, info.MClass)
			continue
		}
		for _, g := range info.OGates {
			fmt.Fprintf(&sb, "  %s::%s:%d -> %d:%s\n", info.Name, info.MClass, g.Gate, g.PeerGate, g.Peer)
		}
	}
	fmt.Fprint(c.sess.Out, sb.String())
	return cmdtree.Continue, nil
}

// moduleInfos fetches module details, all modules when names is nil.
func (c *Commands) moduleInfos(ctx context.Context, names []string) ([]*engine.ModuleInfo, error) {
	mods, err := c.sess.Conn.ListModules(ctx)
	if err != nil {
		return nil, err
	}
	known := make([]string, len(mods))
	for i, m := range mods {
		known[i] = m.Name
	}
	if names == nil {
		names = sortedCopy(known)
	} else if err := existing("Module", names, known); err != nil {
		return nil, err
	}

	infos := make([]*engine.ModuleInfo, 0, len(names))
	for _, name := range names {
		info, err := c.sess.Conn.GetModuleInfo(ctx, name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (c *Commands) showPorts(ctx context.Context, args cmdtree.Args) (cmdtree.Outcome, error) {
	ports, err := c.sess.Conn.ListPorts(ctx)
	if err != nil {
		return cmdtree.Continue, err
	}
	if len(ports) == 0 {
		return cmdtree.Continue, errors.New("There is no active port to show.")
	}
	drivers := make(map[string]string, len(ports))
	known := make([]string, len(ports))
	for i, p := range ports {
		drivers[p.Name] = p.Driver
		known[i] = p.Name
	}

	names := args.Strings(0)
	if names == nil {
		names = sortedCopy(known)
	} else if err := existing("Port", names, known); err != nil {
		return cmdtree.Continue, err
	}

	var sb strings.Builder
	for _, name := range names {
		st, err := c.sess.Conn.GetPortStats(ctx, name)
		if err != nil {
			return cmdtree.Continue, err
		}
		fmt.Fprintf(&sb, "  %s/%s\n", name, drivers[name])
		writeCounters(&sb, "Incoming (external -> BESS)", st.Inc)
		writeCounters(&sb, "Outgoing (BESS -> external)", st.Out)
	}
	fmt.Fprint(c.sess.Out, sb.String())
	return cmdtree.Continue, nil
}

func writeCounters(sb *strings.Builder, title string, pc engine.PortCounters) {
	fmt.Fprintf(sb, "    %s:\n", title)
	fmt.Fprintf(sb, "      packets: %-20s dropped: %-20s bytes: %s\n",
		group(pc.Packets), group(pc.Dropped), group(pc.Bytes))
}

func (c *Commands) showModules(ctx context.Context, args cmdtree.Args) (cmdtree.Outcome, error) {
	names := args.Strings(0)
	infos, err := c.moduleInfos(ctx, names)
	if err != nil {
		return cmdtree.Continue, err
	}
	if len(infos) == 0 {
		return cmdtree.Continue, errors.New("There is no active module to show.")
	}

	var sb strings.Builder
	for _, info := range infos {
		writeModule(&sb, info)
	}
	fmt.Fprint(c.sess.Out, sb.String())
	return cmdtree.Continue, nil
}

func writeModule(sb *strings.Builder, info *engine.ModuleInfo) {
	if info.Desc != "" {
		fmt.Fprintf(sb, "  %s::%s (%s)\n", info.Name, info.MClass, info.Desc)
	} else {
		fmt.Fprintf(sb, "  %s::%s\n", info.Name, info.MClass)
	}

	if len(info.IGates) > 0 {
		fmt.Fprintln(sb, "    Input gates:")
		for _, g := range info.IGates {
			fmt.Fprintf(sb, "      %5d: %s:%d ->\n", g.Gate, g.Peer, g.PeerGate)
		}
	}

	if len(info.OGates) == 0 {
		fmt.Fprintln(sb, "    Output gates: (none)")
	} else {
		fmt.Fprintln(sb, "    Output gates:")
		for _, g := range info.OGates {
			fmt.Fprintf(sb, "      %5d: batches %-16d packets %-16d -> %d:%s\n",
				g.Gate, g.Batches, g.Packets, g.PeerGate, g.Peer)
		}
	}

	if info.Dump != nil {
		fmt.Fprintf(sb, "    Dump: %s\n", literal.Format(info.Dump))
	}
}
