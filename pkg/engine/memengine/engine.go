// Package memengine is an in-process packet-processing engine. It keeps
// ports, modules and gate connections in memory, enforces the same
// pause discipline as the real daemon and synthesises traffic so that
// statistics move. bessd-sim serves it over gRPC.
package memengine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc/codes"

	"github.com/psaab/bessctl/pkg/engine"
)

const defaultVersion = "bessd-sim 0.1"

type gate struct {
	peer      string
	peerGate  int
	packets   uint64
	batches   uint64
	timestamp time.Time
}

type module struct {
	name   string
	class  string
	arg    any
	port   string
	ogates map[int]*gate
}

type port struct {
	name   string
	driver string
	args   map[string]any
	inc    engine.PortCounters
	out    engine.PortCounters
}

type gateKey = engine.GateKey

// Options configures an Engine.
type Options struct {
	Version string
	// Clock returns the current time; defaults to time.Now.
	Clock func() time.Time
	// LinkLookup checks that a host interface exists for AFPacket
	// ports; defaults to a netlink lookup.
	LinkLookup func(name string) error
}

// Engine is an in-memory engine.Backend. It is safe for concurrent use.
type Engine struct {
	version    string
	clock      func() time.Time
	linkLookup func(string) error

	mu          sync.Mutex
	paused      bool
	pauses      uint64
	ports       map[string]*port
	portOrder   []string
	modules     map[string]*module
	moduleOrder []string
	tcpdump     map[gateKey]string
	killed      chan struct{}
	killOnce    sync.Once
}

var _ engine.Backend = (*Engine)(nil)

// New returns an empty engine with running workers.
func New(opts Options) *Engine {
	e := &Engine{
		version:    opts.Version,
		clock:      opts.Clock,
		linkLookup: opts.LinkLookup,
		ports:      make(map[string]*port),
		modules:    make(map[string]*module),
		tcpdump:    make(map[gateKey]string),
		killed:     make(chan struct{}),
	}
	if e.version == "" {
		e.version = defaultVersion
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.linkLookup == nil {
		e.linkLookup = netlinkLookup
	}
	return e
}

// Version implements engine.Backend.
func (e *Engine) Version() string {
	return e.version
}

// Done is closed once Kill has been called.
func (e *Engine) Done() <-chan struct{} {
	return e.killed
}

// Paused reports whether workers are paused.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// requirePaused must be called with e.mu held.
func (e *Engine) requirePaused() error {
	if !e.paused {
		return engine.Errorf(codes.FailedPrecondition, "There is a running worker")
	}
	return nil
}

func (e *Engine) ListDrivers(context.Context) ([]string, error) {
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (e *Engine) ListModuleClasses(context.Context) ([]string, error) {
	names := make([]string, 0, len(mclasses))
	for n := range mclasses {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (e *Engine) ListPorts(context.Context) ([]engine.PortInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]engine.PortInfo, 0, len(e.portOrder))
	for _, n := range e.portOrder {
		p := e.ports[n]
		out = append(out, engine.PortInfo{Name: p.name, Driver: p.driver})
	}
	return out, nil
}

func (e *Engine) ListModules(context.Context) ([]engine.ModuleSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]engine.ModuleSummary, 0, len(e.moduleOrder))
	for _, n := range e.moduleOrder {
		m := e.modules[n]
		out = append(out, engine.ModuleSummary{Name: m.name, MClass: m.class, Desc: m.desc()})
	}
	return out, nil
}

func (m *module) desc() string {
	if m.port != "" {
		return m.port
	}
	return mclasses[m.class].help
}

func (e *Engine) GetModuleInfo(_ context.Context, name string) (*engine.ModuleInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.modules[name]
	if !ok {
		return nil, engine.Errorf(codes.NotFound, "No module '%s' found", name)
	}
	info := &engine.ModuleInfo{
		Name:   m.name,
		MClass: m.class,
		Desc:   m.desc(),
		Dump:   m.arg,
	}
	for _, og := range sortedGates(m.ogates) {
		g := m.ogates[og]
		info.OGates = append(info.OGates, engine.GateInfo{
			Gate:      og,
			Batches:   g.batches,
			Packets:   g.packets,
			Timestamp: unixSeconds(g.timestamp),
			Peer:      g.peer,
			PeerGate:  g.peerGate,
		})
	}
	for _, src := range e.moduleOrder {
		from := e.modules[src]
		for _, og := range sortedGates(from.ogates) {
			g := from.ogates[og]
			if g.peer != name {
				continue
			}
			info.IGates = append(info.IGates, engine.GateInfo{
				Gate:      g.peerGate,
				Batches:   g.batches,
				Packets:   g.packets,
				Timestamp: unixSeconds(g.timestamp),
				Peer:      from.name,
				PeerGate:  og,
			})
		}
	}
	sort.SliceStable(info.IGates, func(i, j int) bool { return info.IGates[i].Gate < info.IGates[j].Gate })
	return info, nil
}

func (e *Engine) GetPortStats(_ context.Context, name string) (*engine.PortStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.ports[name]
	if !ok {
		return nil, engine.Errorf(codes.NotFound, "No port `%s' found", name)
	}
	return &engine.PortStats{Inc: p.inc, Out: p.out, Timestamp: unixSeconds(e.clock())}, nil
}

func (e *Engine) CreatePort(_ context.Context, driverName, name string, args map[string]any) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := drivers[driverName]
	if !ok {
		return "", engine.Errorf(codes.NotFound, "No port driver '%s' found", driverName)
	}
	if name == "" {
		name = e.freeName(strings.ToLower(driverName), func(n string) bool { _, ok := e.ports[n]; return ok })
	} else if _, dup := e.ports[name]; dup {
		return "", engine.Errorf(codes.AlreadyExists, "Port '%s' already exists", name)
	}
	if err := d.validate(e, args); err != nil {
		return "", engine.Errorf(codes.InvalidArgument, "%v", err)
	}
	e.ports[name] = &port{name: name, driver: driverName, args: args}
	e.portOrder = append(e.portOrder, name)
	slog.Info("port created", "port", name, "driver", driverName)
	return name, nil
}

func (e *Engine) DestroyPort(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.ports[name]; !ok {
		return engine.Errorf(codes.NotFound, "No port `%s' found", name)
	}
	for _, m := range e.modules {
		if m.port == name {
			return engine.Errorf(codes.FailedPrecondition, "Port '%s' is in use by module '%s'", name, m.name)
		}
	}
	delete(e.ports, name)
	e.portOrder = remove(e.portOrder, name)
	slog.Info("port destroyed", "port", name)
	return nil
}

func (e *Engine) CreateModule(_ context.Context, class, name string, arg any) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requirePaused(); err != nil {
		return "", err
	}
	mc, ok := mclasses[class]
	if !ok {
		return "", engine.Errorf(codes.NotFound, "No mclass '%s' found", class)
	}
	if name == "" {
		name = e.freeName(strings.ToLower(class), func(n string) bool { _, ok := e.modules[n]; return ok })
	} else if _, dup := e.modules[name]; dup {
		return "", engine.Errorf(codes.AlreadyExists, "Module '%s' already exists", name)
	}
	m := &module{name: name, class: class, arg: arg, ogates: make(map[int]*gate)}
	if mc.portArg {
		kw, _ := arg.(map[string]any)
		pname, _ := kw["port"].(string)
		if pname == "" {
			return "", engine.Errorf(codes.InvalidArgument, "Missing 'port' field")
		}
		if _, ok := e.ports[pname]; !ok {
			return "", engine.Errorf(codes.NotFound, "No port `%s' found", pname)
		}
		m.port = pname
	}
	e.modules[name] = m
	e.moduleOrder = append(e.moduleOrder, name)
	slog.Info("module created", "module", name, "mclass", class)
	return name, nil
}

func (e *Engine) DestroyModule(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requirePaused(); err != nil {
		return err
	}
	if _, ok := e.modules[name]; !ok {
		return engine.Errorf(codes.NotFound, "No module '%s' found", name)
	}
	for _, m := range e.modules {
		for og, g := range m.ogates {
			if g.peer == name {
				delete(m.ogates, og)
				delete(e.tcpdump, gateKey{Module: m.name, OGate: og})
			}
		}
	}
	for k := range e.tcpdump {
		if k.Module == name {
			delete(e.tcpdump, k)
		}
	}
	delete(e.modules, name)
	e.moduleOrder = remove(e.moduleOrder, name)
	slog.Info("module destroyed", "module", name)
	return nil
}

func (e *Engine) ConnectModules(_ context.Context, from string, ogate int, to string, igate int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requirePaused(); err != nil {
		return err
	}
	m1, ok := e.modules[from]
	if !ok {
		return engine.Errorf(codes.NotFound, "No module '%s' found", from)
	}
	if _, ok := e.modules[to]; !ok {
		return engine.Errorf(codes.NotFound, "No module '%s' found", to)
	}
	failed := func(format string, args ...any) error {
		return engine.Errorf(codes.InvalidArgument, "Connection '%s'[%d]->'%s' failed: %s",
			from, ogate, to, fmt.Sprintf(format, args...))
	}
	if n := mclasses[m1.class].maxOGates; ogate < 0 || ogate >= n {
		return failed("%s has %d output gates", m1.class, n)
	}
	if igate < 0 {
		return failed("invalid input gate %d", igate)
	}
	if _, busy := m1.ogates[ogate]; busy {
		return failed("output gate %d is already connected", ogate)
	}
	m1.ogates[ogate] = &gate{peer: to, peerGate: igate, timestamp: e.clock()}
	slog.Info("modules connected", "from", from, "ogate", ogate, "to", to, "igate", igate)
	return nil
}

func (e *Engine) DisconnectModules(_ context.Context, name string, ogate int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requirePaused(); err != nil {
		return err
	}
	m, ok := e.modules[name]
	if !ok {
		return engine.Errorf(codes.NotFound, "No module '%s' found", name)
	}
	if _, ok := m.ogates[ogate]; !ok {
		return engine.Errorf(codes.InvalidArgument, "Disconnection '%s'[%d] failed: gate is not connected", name, ogate)
	}
	delete(m.ogates, ogate)
	delete(e.tcpdump, gateKey{Module: name, OGate: ogate})
	slog.Info("modules disconnected", "module", name, "ogate", ogate)
	return nil
}

func (e *Engine) PauseAll(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
	e.pauses++
	return nil
}

func (e *Engine) ResumeAll(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = false
	return nil
}

func (e *Engine) ResetAll(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requirePaused(); err != nil {
		return err
	}
	e.modules = make(map[string]*module)
	e.moduleOrder = nil
	e.ports = make(map[string]*port)
	e.portOrder = nil
	e.tcpdump = make(map[gateKey]string)
	slog.Info("engine reset")
	return nil
}

func (e *Engine) EnableTcpdump(_ context.Context, fifo, name string, ogate int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requirePaused(); err != nil {
		return err
	}
	m, ok := e.modules[name]
	if !ok {
		return engine.Errorf(codes.NotFound, "No module '%s' found", name)
	}
	if _, ok := m.ogates[ogate]; !ok {
		return engine.Errorf(codes.InvalidArgument, "Gate '%d' does not exist", ogate)
	}
	k := gateKey{Module: name, OGate: ogate}
	if _, on := e.tcpdump[k]; on {
		return engine.Errorf(codes.AlreadyExists, "Enabling tcpdump %s[%d] failed: already enabled", name, ogate)
	}
	e.tcpdump[k] = fifo
	slog.Info("tcpdump enabled", "module", name, "ogate", ogate, "fifo", fifo)
	return nil
}

func (e *Engine) DisableTcpdump(_ context.Context, name string, ogate int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requirePaused(); err != nil {
		return err
	}
	m, ok := e.modules[name]
	if !ok {
		return engine.Errorf(codes.NotFound, "No module '%s' found", name)
	}
	if _, ok := m.ogates[ogate]; !ok {
		return engine.Errorf(codes.InvalidArgument, "Gate '%d' does not exist", ogate)
	}
	k := gateKey{Module: name, OGate: ogate}
	if _, on := e.tcpdump[k]; !on {
		return engine.Errorf(codes.InvalidArgument, "Disabling tcpdump %s[%d] failed: not enabled", name, ogate)
	}
	delete(e.tcpdump, k)
	slog.Info("tcpdump disabled", "module", name, "ogate", ogate)
	return nil
}

// Kill marks the engine as terminated; Done is closed.
func (e *Engine) Kill(context.Context) error {
	e.killOnce.Do(func() {
		slog.Info("engine killed")
		close(e.killed)
	})
	return nil
}

// freeName returns prefix followed by the smallest unused number.
func (e *Engine) freeName(prefix string, taken func(string) bool) string {
	for i := 0; ; i++ {
		n := prefix + strconv.Itoa(i)
		if !taken(n) {
			return n
		}
	}
}

func sortedGates(m map[int]*gate) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func remove(list []string, name string) []string {
	out := list[:0]
	for _, n := range list {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}
