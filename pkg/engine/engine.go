// Package engine is the client side of the packet-processing engine: the
// operations the shell needs, the error taxonomy for engine failures, the
// pause/resume bracket for structural changes and the gRPC transport.
package engine

import "context"

// Engine is the set of operations the shell performs against the
// dataplane. Structural mutations (create/destroy, connect/disconnect,
// reset, tcpdump) require workers to be paused; use WithPause.
type Engine interface {
	ListDrivers(ctx context.Context) ([]string, error)
	ListModuleClasses(ctx context.Context) ([]string, error)
	ListPorts(ctx context.Context) ([]PortInfo, error)
	ListModules(ctx context.Context) ([]ModuleSummary, error)
	GetModuleInfo(ctx context.Context, name string) (*ModuleInfo, error)
	GetPortStats(ctx context.Context, name string) (*PortStats, error)

	// CreatePort creates a port; an empty name lets the engine pick one.
	// The final name is returned.
	CreatePort(ctx context.Context, driver, name string, args map[string]any) (string, error)
	DestroyPort(ctx context.Context, name string) error
	// CreateModule creates a module; arg is a keyword map, a single
	// literal value or nil.
	CreateModule(ctx context.Context, mclass, name string, arg any) (string, error)
	DestroyModule(ctx context.Context, name string) error
	ConnectModules(ctx context.Context, from string, ogate int, to string, igate int) error
	DisconnectModules(ctx context.Context, name string, ogate int) error

	PauseAll(ctx context.Context) error
	ResumeAll(ctx context.Context) error
	ResetAll(ctx context.Context) error

	EnableTcpdump(ctx context.Context, fifo, module string, ogate int) error
	DisableTcpdump(ctx context.Context, module string, ogate int) error

	// Kill terminates the engine process.
	Kill(ctx context.Context) error
}

// PortInfo is one entry of ListPorts.
type PortInfo struct {
	Name   string `json:"name"`
	Driver string `json:"driver"`
}

// ModuleSummary is one entry of ListModules.
type ModuleSummary struct {
	Name   string `json:"name"`
	MClass string `json:"mclass"`
	Desc   string `json:"desc"`
}

// GateInfo describes one connected gate of a module.
type GateInfo struct {
	Gate      int     `json:"gate"`
	Batches   uint64  `json:"cnt"`
	Packets   uint64  `json:"pkts"`
	Timestamp float64 `json:"timestamp"`
	Peer      string  `json:"name"`
	PeerGate  int     `json:"peer_gate"`
}

// ModuleInfo is the detailed view of a module.
type ModuleInfo struct {
	Name   string     `json:"name"`
	MClass string     `json:"mclass"`
	Desc   string     `json:"desc"`
	Dump   any        `json:"dump,omitempty"`
	IGates []GateInfo `json:"igates"`
	OGates []GateInfo `json:"ogates"`
}

// PortCounters are the counters of one direction of a port.
type PortCounters struct {
	Packets uint64 `json:"packets"`
	Dropped uint64 `json:"dropped"`
	Bytes   uint64 `json:"bytes"`
}

// PortStats is a port's counters at Timestamp (seconds since the epoch).
type PortStats struct {
	Inc       PortCounters `json:"inc"`
	Out       PortCounters `json:"out"`
	Timestamp float64      `json:"timestamp"`
}
