package memengine

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/psaab/bessctl/pkg/engine"
)

// Collector implements prometheus.Collector, reading engine counters on
// each scrape.
type Collector struct {
	e *Engine

	// Port counters
	portPacketsTotal *prometheus.Desc
	portBytesTotal   *prometheus.Desc
	portDropsTotal   *prometheus.Desc

	// Gate counters
	gatePacketsTotal *prometheus.Desc
	gateBatchesTotal *prometheus.Desc

	// Gauges
	ports   *prometheus.Desc
	modules *prometheus.Desc
	paused  *prometheus.Desc
	pauses  *prometheus.Desc
}

// NewCollector returns a collector over e.
func NewCollector(e *Engine) *Collector {
	return &Collector{
		e: e,

		portPacketsTotal: prometheus.NewDesc(
			"bess_port_packets_total",
			"Total packets per port.",
			[]string{"port", "direction"}, nil,
		),
		portBytesTotal: prometheus.NewDesc(
			"bess_port_bytes_total",
			"Total bytes per port.",
			[]string{"port", "direction"}, nil,
		),
		portDropsTotal: prometheus.NewDesc(
			"bess_port_dropped_total",
			"Total packets dropped per port.",
			[]string{"port", "direction"}, nil,
		),
		gatePacketsTotal: prometheus.NewDesc(
			"bess_gate_packets_total",
			"Total packets through an output gate.",
			[]string{"module", "ogate", "peer"}, nil,
		),
		gateBatchesTotal: prometheus.NewDesc(
			"bess_gate_batches_total",
			"Total batches through an output gate.",
			[]string{"module", "ogate", "peer"}, nil,
		),
		ports: prometheus.NewDesc(
			"bess_ports",
			"Current number of ports.",
			nil, nil,
		),
		modules: prometheus.NewDesc(
			"bess_modules",
			"Current number of modules.",
			[]string{"mclass"}, nil,
		),
		paused: prometheus.NewDesc(
			"bess_workers_paused",
			"1 when workers are paused.",
			nil, nil,
		),
		pauses: prometheus.NewDesc(
			"bess_pauses_total",
			"Total pause requests.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.portPacketsTotal
	ch <- c.portBytesTotal
	ch <- c.portDropsTotal
	ch <- c.gatePacketsTotal
	ch <- c.gateBatchesTotal
	ch <- c.ports
	ch <- c.modules
	ch <- c.paused
	ch <- c.pauses
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	e := c.e
	e.mu.Lock()
	defer e.mu.Unlock()

	c.collectPortCounters(ch)
	c.collectGateCounters(ch)

	ch <- prometheus.MustNewConstMetric(c.ports, prometheus.GaugeValue, float64(len(e.ports)))
	perClass := make(map[string]int)
	for _, m := range e.modules {
		perClass[m.class]++
	}
	for class, n := range perClass {
		ch <- prometheus.MustNewConstMetric(c.modules, prometheus.GaugeValue, float64(n), class)
	}
	var paused float64
	if e.paused {
		paused = 1
	}
	ch <- prometheus.MustNewConstMetric(c.paused, prometheus.GaugeValue, paused)
	ch <- prometheus.MustNewConstMetric(c.pauses, prometheus.CounterValue, float64(e.pauses))
}

func (c *Collector) collectPortCounters(ch chan<- prometheus.Metric) {
	for _, name := range c.e.portOrder {
		p := c.e.ports[name]
		for dir, ctrs := range map[string]engine.PortCounters{"inc": p.inc, "out": p.out} {
			ch <- prometheus.MustNewConstMetric(c.portPacketsTotal, prometheus.CounterValue,
				float64(ctrs.Packets), name, dir)
			ch <- prometheus.MustNewConstMetric(c.portBytesTotal, prometheus.CounterValue,
				float64(ctrs.Bytes), name, dir)
			ch <- prometheus.MustNewConstMetric(c.portDropsTotal, prometheus.CounterValue,
				float64(ctrs.Dropped), name, dir)
		}
	}
}

func (c *Collector) collectGateCounters(ch chan<- prometheus.Metric) {
	for _, name := range c.e.moduleOrder {
		m := c.e.modules[name]
		for _, og := range sortedGates(m.ogates) {
			g := m.ogates[og]
			gate := strconv.Itoa(og)
			ch <- prometheus.MustNewConstMetric(c.gatePacketsTotal, prometheus.CounterValue,
				float64(g.packets), name, gate, g.peer)
			ch <- prometheus.MustNewConstMetric(c.gateBatchesTotal, prometheus.CounterValue,
				float64(g.batches), name, gate, g.peer)
		}
	}
}
