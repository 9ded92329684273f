package memengine

import (
	"fmt"
	"math"

	"github.com/vishvananda/netlink"
)

// driver validates port arguments for one port driver.
type driver struct {
	help     string
	validate func(e *Engine, args map[string]any) error
}

// mclass describes one module class.
type mclass struct {
	help string
	// source modules generate traffic on every tick.
	source bool
	// portArg names the port a PortInc/PortOut style module attaches to.
	portArg bool
	// maxOGates bounds the output gates; 0 means a sink.
	maxOGates int
}

var drivers = map[string]driver{
	"PMDPort": {
		help: "DPDK poll-mode driver port",
		validate: func(_ *Engine, args map[string]any) error {
			if v, ok := args["port_id"]; ok {
				if _, ok := asInt(v); !ok {
					return fmt.Errorf("'port_id' must be an integer")
				}
			}
			return nil
		},
	},
	"AFPacket": {
		help: "AF_PACKET socket bound to a host interface",
		validate: func(e *Engine, args map[string]any) error {
			ifname, ok := args["ifname"].(string)
			if !ok || ifname == "" {
				return fmt.Errorf("Missing 'ifname' field")
			}
			if err := e.linkLookup(ifname); err != nil {
				return fmt.Errorf("Interface '%s' not found: %v", ifname, err)
			}
			return nil
		},
	},
	"VPort": {
		help:     "virtual port towards a host or container",
		validate: func(*Engine, map[string]any) error { return nil },
	},
}

var mclasses = map[string]mclass{
	"Source":     {help: "infinite packet generator", source: true, maxOGates: 1},
	"Sink":       {help: "discards all packets", maxOGates: 0},
	"PortInc":    {help: "receives packets from a port", source: true, portArg: true, maxOGates: 1},
	"PortOut":    {help: "sends packets to a port", portArg: true, maxOGates: 0},
	"Queue":      {help: "packet buffer", maxOGates: 1},
	"Bypass":     {help: "forwards packets unmodified", maxOGates: 1},
	"Merge":      {help: "merges all input gates", maxOGates: 1},
	"RoundRobin": {help: "splits packets across output gates", maxOGates: 64},
	"Measure":    {help: "measures latency and throughput", maxOGates: 1},
}

func netlinkLookup(name string) error {
	_, err := netlink.LinkByName(name)
	return err
}

// asInt accepts the integer shapes arguments arrive in: int64 from the
// literal parser or the wire, and integral float64 values such as 2.0.
func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		if x != math.Trunc(x) {
			return 0, false
		}
		return int(x), true
	}
	return 0, false
}
