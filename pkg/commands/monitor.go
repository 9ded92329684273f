package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/psaab/bessctl/pkg/cmdtree"
	"github.com/psaab/bessctl/pkg/engine"
)

// frameOverhead is the per-packet Ethernet overhead counted in Mbps:
// preamble, SFD, FCS and the inter-frame gap.
const frameOverhead = 24

const rule = "------------------------------------------------------------------------------------------------"

// monitor samples every interval and calls emit with the previous and
// current snapshot until ctx is cancelled. Cancellation is the normal
// way out and is not an error.
func (c *Commands) monitor(ctx context.Context, opts engine.SampleOptions,
	emit func(w io.Writer, prev, cur *engine.StatsSnapshot)) error {
	interval := c.sess.Settings.Monitor.Interval
	if interval <= 0 {
		interval = time.Second
	}

	prev, err := engine.Sample(ctx, c.sess.Conn, opts)
	if err != nil {
		return quietCancel(ctx, err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		cur, err := engine.Sample(ctx, c.sess.Conn, opts)
		if err != nil {
			return quietCancel(ctx, err)
		}
		emit(c.sess.Out, prev, cur)
		prev = cur
	}
}

// quietCancel drops err when it only reports the interrupt.
func quietCancel(ctx context.Context, err error) error {
	if ctx.Err() != nil && (errors.Is(err, ctx.Err()) || engine.IsConnectivity(err)) {
		return nil
	}
	return err
}

func (c *Commands) monitorPorts(ctx context.Context, args cmdtree.Args) (cmdtree.Outcome, error) {
	ports, err := c.sess.Conn.ListPorts(ctx)
	if err != nil {
		return cmdtree.Continue, err
	}
	known := make([]string, len(ports))
	for i, p := range ports {
		known[i] = p.Name
	}
	names := args.Strings(0)
	if names == nil {
		names = sortedCopy(known)
	} else if err := existing("Port", names, known); err != nil {
		return cmdtree.Continue, err
	}
	if len(names) == 0 {
		return cmdtree.Continue, errors.New("No port to monitor")
	}

	fmt.Fprintf(c.sess.Out, "Monitoring ports: %s (Send CTRL + c to stop)\n", strings.Join(names, ", "))
	err = c.monitor(ctx, engine.SampleOptions{Ports: names}, func(w io.Writer, prev, cur *engine.StatsSnapshot) {
		writePortRates(w, names, prev, cur)
	})
	return cmdtree.Continue, err
}

// portRate is the traffic of one direction of a port per second.
type portRate struct {
	mbps, mpps float64
	dropped    float64
}

func (r *portRate) add(o portRate) {
	r.mbps += o.mbps
	r.mpps += o.mpps
	r.dropped += o.dropped
}

func rate(prev, cur engine.PortCounters, dt float64) portRate {
	if dt <= 0 {
		return portRate{}
	}
	pkts := float64(delta(prev.Packets, cur.Packets))
	bytes := float64(delta(prev.Bytes, cur.Bytes))
	return portRate{
		mbps:    (bytes + pkts*frameOverhead) * 8 / 1e6 / dt,
		mpps:    pkts / 1e6 / dt,
		dropped: float64(delta(prev.Dropped, cur.Dropped)) / dt,
	}
}

// delta tolerates counters that went backwards after a reset.
func delta(prev, cur uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}

func writePortRates(w io.Writer, names []string, prev, cur *engine.StatsSnapshot) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n%-20s%14s%10s%10s        %14s%10s%10s\n",
		cur.Timestamp.Format("15:04:05"), "INC     Mbps", "Mpps", "dropped", "OUT     Mbps", "Mpps", "dropped")
	sb.WriteString(rule + "\n")

	var totalInc, totalOut portRate
	for _, name := range names {
		p, c := prev.Ports[name], cur.Ports[name]
		dt := c.Timestamp - p.Timestamp
		inc, out := rate(p.Inc, c.Inc, dt), rate(p.Out, c.Out, dt)
		writeRateRow(&sb, name, inc, out)
		totalInc.add(inc)
		totalOut.add(out)
	}
	if len(names) > 1 {
		sb.WriteString(rule + "\n")
		writeRateRow(&sb, "Total", totalInc, totalOut)
	}
	fmt.Fprint(w, sb.String())
}

func writeRateRow(sb *strings.Builder, name string, inc, out portRate) {
	fmt.Fprintf(sb, "%-20s%14.1f%10.3f%10d        %14.1f%10.3f%10d\n",
		name, inc.mbps, inc.mpps, int64(inc.dropped), out.mbps, out.mpps, int64(out.dropped))
}

func (c *Commands) monitorPipeline(ctx context.Context, _ cmdtree.Args) (cmdtree.Outcome, error) {
	fmt.Fprintln(c.sess.Out, "Monitoring pipeline (Send CTRL + c to stop)")
	err := c.monitor(ctx, engine.SampleOptions{Gates: true}, writeEdgeRates)
	return cmdtree.Continue, err
}

// writeEdgeRates prints packets per second on every edge present in
// both snapshots.
func writeEdgeRates(w io.Writer, prev, cur *engine.StatsSnapshot) {
	keys := make([]engine.GateKey, 0, len(cur.Gates))
	for k := range cur.Gates {
		keys = append(keys, k)
	}
	sortGateKeys(keys)

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n%s\n%s\n", cur.Timestamp.Format("15:04:05"), rule)
	if len(keys) == 0 {
		sb.WriteString("  (no connections)\n")
	}
	for _, k := range keys {
		g := cur.Gates[k]
		pps := 0.0
		if p, ok := prev.Gates[k]; ok {
			if dt := g.Timestamp - p.Timestamp; dt > 0 {
				pps = float64(delta(p.Packets, g.Packets)) / dt
			}
		}
		edge := fmt.Sprintf("%s:%d -> %d:%s", k.Module, k.OGate, g.PeerGate, g.Peer)
		fmt.Fprintf(&sb, "  %-50s%16s pps\n", edge, group(uint64(pps+0.5)))
	}
	fmt.Fprint(w, sb.String())
}

func sortGateKeys(keys []engine.GateKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Module != keys[j].Module {
			return keys[i].Module < keys[j].Module
		}
		return keys[i].OGate < keys[j].OGate
	})
}
