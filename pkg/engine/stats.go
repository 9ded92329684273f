package engine

import (
	"context"
	"time"
)

// GateKey identifies an output gate.
type GateKey struct {
	Module string
	OGate  int
}

// GateStats are the counters of one output gate and the gate it feeds.
type GateStats struct {
	Packets  uint64
	Batches  uint64
	Peer     string
	PeerGate int
	// Timestamp is the engine time of the last update, in seconds.
	Timestamp float64
}

// StatsSnapshot is one sample of pipeline counters. Monitors keep the
// previous snapshot and replace it on every tick; a snapshot is never
// modified after Sample returns it.
type StatsSnapshot struct {
	Timestamp time.Time
	Ports     map[string]PortStats
	Gates     map[GateKey]GateStats
}

// SampleOptions selects what Sample collects.
type SampleOptions struct {
	// Ports to sample; nil means none.
	Ports []string
	// Gates collects every connected output gate of every module.
	Gates bool
}

// Sample reads counters from e. Requests are issued one at a time.
func Sample(ctx context.Context, e Engine, opts SampleOptions) (*StatsSnapshot, error) {
	snap := &StatsSnapshot{
		Timestamp: time.Now(),
		Ports:     make(map[string]PortStats, len(opts.Ports)),
		Gates:     make(map[GateKey]GateStats),
	}
	for _, name := range opts.Ports {
		st, err := e.GetPortStats(ctx, name)
		if err != nil {
			return nil, err
		}
		snap.Ports[name] = *st
	}
	if !opts.Gates {
		return snap, nil
	}
	mods, err := e.ListModules(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range mods {
		info, err := e.GetModuleInfo(ctx, m.Name)
		if err != nil {
			return nil, err
		}
		for _, g := range info.OGates {
			snap.Gates[GateKey{Module: m.Name, OGate: g.Gate}] = GateStats{
				Packets:   g.Packets,
				Batches:   g.Batches,
				Peer:      g.Peer,
				PeerGate:  g.PeerGate,
				Timestamp: g.Timestamp,
			}
		}
	}
	return snap, nil
}

// Elapsed returns the seconds between prev and s.
func (s *StatsSnapshot) Elapsed(prev *StatsSnapshot) float64 {
	return s.Timestamp.Sub(prev.Timestamp).Seconds()
}
