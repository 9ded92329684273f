package memengine

import (
	"context"
	"time"
)

const (
	defaultRate    = 1_000_000 // packets per second per source
	defaultPktSize = 60
	batchSize      = 32
	maxHops        = 16
)

type flow struct {
	packets float64
	size    float64
}

// Tick advances the simulated dataplane by dt. Every source module
// emits packets which are forwarded along connected output gates until
// they reach a module with no connected gates. Nothing moves while
// workers are paused.
func (e *Engine) Tick(dt time.Duration) {
	if dt <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.paused {
		return
	}
	now := e.clock()
	secs := dt.Seconds()
	for _, name := range e.moduleOrder {
		m := e.modules[name]
		if !mclasses[m.class].source {
			continue
		}
		rate, size := sourceParams(m.arg)
		f := flow{packets: rate * secs, size: size}
		if m.port != "" {
			p := e.ports[m.port]
			p.inc.Packets += uint64(f.packets)
			p.inc.Bytes += uint64(f.packets * f.size)
		}
		e.forward(m, f, now, 0)
	}
}

// forward must be called with e.mu held.
func (e *Engine) forward(m *module, f flow, now time.Time, hops int) {
	if m.class == "PortOut" && m.port != "" {
		p := e.ports[m.port]
		p.out.Packets += uint64(f.packets)
		p.out.Bytes += uint64(f.packets * f.size)
		return
	}
	if len(m.ogates) == 0 || f.packets < 1 {
		if m.port != "" && m.class == "PortInc" {
			e.ports[m.port].inc.Dropped += uint64(f.packets)
		}
		return
	}
	if hops >= maxHops {
		return
	}
	share := f.packets / float64(len(m.ogates))
	for _, og := range sortedGates(m.ogates) {
		g := m.ogates[og]
		n := uint64(share)
		g.packets += n
		g.batches += (n + batchSize - 1) / batchSize
		g.timestamp = now
		if next, ok := e.modules[g.peer]; ok {
			e.forward(next, flow{packets: share, size: f.size}, now, hops+1)
		}
	}
}

func sourceParams(arg any) (rate, size float64) {
	rate, size = defaultRate, defaultPktSize
	kw, ok := arg.(map[string]any)
	if !ok {
		return rate, size
	}
	if v, ok := asInt(kw["rate"]); ok && v >= 0 {
		rate = float64(v)
	}
	if v, ok := asInt(kw["pkt_size"]); ok && v > 0 {
		size = float64(v)
	}
	return rate, size
}

// Run calls Tick every interval until ctx is done or the engine is
// killed.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := e.clock()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.killed:
			return
		case <-ticker.C:
			now := e.clock()
			e.Tick(now.Sub(last))
			last = now
		}
	}
}
