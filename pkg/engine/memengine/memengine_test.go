package memengine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc/codes"

	"github.com/psaab/bessctl/pkg/engine"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	now := time.Unix(1700000000, 0)
	return New(Options{
		Clock: func() time.Time { return now },
		LinkLookup: func(name string) error {
			if name == "eth0" {
				return nil
			}
			return errors.New("Link not found")
		},
	})
}

func wantAPIError(t *testing.T, err error, code codes.Code, msg string) {
	t.Helper()
	var ae *engine.APIError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if ae.Code != code || !strings.HasPrefix(ae.Message, msg) {
		t.Errorf("err = %v (%v), want %q (%v)", ae.Message, ae.Code, msg, code)
	}
}

func TestRunningWorkerRejectsMutations(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.CreateModule(ctx, "Source", "src", nil)
	wantAPIError(t, err, codes.FailedPrecondition, "There is a running worker")
	wantAPIError(t, e.ResetAll(ctx), codes.FailedPrecondition, "There is a running worker")

	// Ports do not need paused workers.
	if _, err := e.CreatePort(ctx, "VPort", "v0", nil); err != nil {
		t.Fatalf("CreatePort: %v", err)
	}
}

func TestCreateAndList(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	if err := e.PauseAll(ctx); err != nil {
		t.Fatal(err)
	}

	name, err := e.CreatePort(ctx, "PMDPort", "", map[string]any{"port_id": int64(0)})
	if err != nil {
		t.Fatalf("CreatePort: %v", err)
	}
	if name != "pmdport0" {
		t.Errorf("auto name = %q, want pmdport0", name)
	}
	if _, err := e.CreatePort(ctx, "AFPacket", "af", map[string]any{"ifname": "eth0"}); err != nil {
		t.Fatalf("CreatePort AFPacket: %v", err)
	}
	for _, name := range []string{"src", "inc"} {
		arg := any(nil)
		class := "Source"
		if name == "inc" {
			class, arg = "PortInc", map[string]any{"port": "af"}
		}
		if _, err := e.CreateModule(ctx, class, name, arg); err != nil {
			t.Fatalf("CreateModule %s: %v", name, err)
		}
	}

	ports, _ := e.ListPorts(ctx)
	wantPorts := []engine.PortInfo{{Name: "pmdport0", Driver: "PMDPort"}, {Name: "af", Driver: "AFPacket"}}
	if diff := cmp.Diff(wantPorts, ports); diff != "" {
		t.Errorf("ListPorts mismatch (-want +got):\n%s", diff)
	}
	mods, _ := e.ListModules(ctx)
	wantMods := []engine.ModuleSummary{
		{Name: "src", MClass: "Source", Desc: "infinite packet generator"},
		{Name: "inc", MClass: "PortInc", Desc: "af"},
	}
	if diff := cmp.Diff(wantMods, mods); diff != "" {
		t.Errorf("ListModules mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateErrors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.PauseAll(ctx)

	_, err := e.CreatePort(ctx, "NoSuch", "x", nil)
	wantAPIError(t, err, codes.NotFound, "No port driver 'NoSuch' found")
	_, err = e.CreatePort(ctx, "AFPacket", "x", nil)
	wantAPIError(t, err, codes.InvalidArgument, "Missing 'ifname' field")
	_, err = e.CreatePort(ctx, "AFPacket", "x", map[string]any{"ifname": "nope0"})
	wantAPIError(t, err, codes.InvalidArgument, "Interface 'nope0' not found")
	_, err = e.CreatePort(ctx, "PMDPort", "x", map[string]any{"port_id": "zero"})
	wantAPIError(t, err, codes.InvalidArgument, "'port_id' must be an integer")

	_, err = e.CreateModule(ctx, "Nope", "m", nil)
	wantAPIError(t, err, codes.NotFound, "No mclass 'Nope' found")
	_, err = e.CreateModule(ctx, "PortOut", "m", map[string]any{"port": "ghost"})
	wantAPIError(t, err, codes.NotFound, "No port `ghost' found")

	if _, err := e.CreateModule(ctx, "Sink", "m", nil); err != nil {
		t.Fatal(err)
	}
	_, err = e.CreateModule(ctx, "Sink", "m", nil)
	wantAPIError(t, err, codes.AlreadyExists, "Module 'm' already exists")

	_, err = e.GetModuleInfo(ctx, "ghost")
	wantAPIError(t, err, codes.NotFound, "No module 'ghost' found")
	_, err = e.GetPortStats(ctx, "ghost")
	wantAPIError(t, err, codes.NotFound, "No port `ghost' found")
}

func TestConnectAndGates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.PauseAll(ctx)
	e.CreateModule(ctx, "RoundRobin", "rr", nil)
	e.CreateModule(ctx, "Sink", "a", nil)
	e.CreateModule(ctx, "Sink", "b", nil)

	if err := e.ConnectModules(ctx, "rr", 0, "a", 0); err != nil {
		t.Fatal(err)
	}
	if err := e.ConnectModules(ctx, "rr", 1, "b", 2); err != nil {
		t.Fatal(err)
	}
	err := e.ConnectModules(ctx, "rr", 1, "a", 0)
	wantAPIError(t, err, codes.InvalidArgument, "Connection 'rr'[1]->'a' failed")
	err = e.ConnectModules(ctx, "a", 0, "b", 0)
	wantAPIError(t, err, codes.InvalidArgument, "Connection 'a'[0]->'b' failed")

	info, err := e.GetModuleInfo(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if len(info.IGates) != 1 || info.IGates[0].Gate != 2 || info.IGates[0].Peer != "rr" || info.IGates[0].PeerGate != 1 {
		t.Errorf("b igates = %+v, want one from rr[1] into gate 2", info.IGates)
	}

	err = e.DisconnectModules(ctx, "rr", 5)
	wantAPIError(t, err, codes.InvalidArgument, "Disconnection 'rr'[5] failed")
	if err := e.DisconnectModules(ctx, "rr", 1); err != nil {
		t.Fatal(err)
	}

	// Destroying a module drops the gates that feed it.
	if err := e.DestroyModule(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	info, _ = e.GetModuleInfo(ctx, "rr")
	if len(info.OGates) != 0 {
		t.Errorf("rr ogates after destroy = %+v, want none", info.OGates)
	}
}

func TestDestroyPortInUse(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.PauseAll(ctx)
	e.CreatePort(ctx, "VPort", "v", nil)
	e.CreateModule(ctx, "PortOut", "out", map[string]any{"port": "v"})

	wantAPIError(t, e.DestroyPort(ctx, "v"), codes.FailedPrecondition, "Port 'v' is in use")
	e.DestroyModule(ctx, "out")
	if err := e.DestroyPort(ctx, "v"); err != nil {
		t.Fatalf("DestroyPort: %v", err)
	}
	wantAPIError(t, e.DestroyPort(ctx, "v"), codes.NotFound, "No port `v' found")
}

func TestTcpdump(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.PauseAll(ctx)
	e.CreateModule(ctx, "Source", "src", nil)
	e.CreateModule(ctx, "Sink", "sink", nil)

	wantAPIError(t, e.EnableTcpdump(ctx, "/tmp/f", "src", 0), codes.InvalidArgument, "Gate '0' does not exist")
	e.ConnectModules(ctx, "src", 0, "sink", 0)
	if err := e.EnableTcpdump(ctx, "/tmp/f", "src", 0); err != nil {
		t.Fatal(err)
	}
	wantAPIError(t, e.EnableTcpdump(ctx, "/tmp/f", "src", 0), codes.AlreadyExists, "Enabling tcpdump src[0] failed")
	if err := e.DisableTcpdump(ctx, "src", 0); err != nil {
		t.Fatal(err)
	}
	wantAPIError(t, e.DisableTcpdump(ctx, "src", 0), codes.InvalidArgument, "Disabling tcpdump src[0] failed")

	e.ResumeAll(ctx)
	wantAPIError(t, e.EnableTcpdump(ctx, "/tmp/f", "src", 0), codes.FailedPrecondition, "There is a running worker")
}

func TestTickMovesCounters(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.PauseAll(ctx)
	e.CreatePort(ctx, "VPort", "v", nil)
	e.CreateModule(ctx, "Source", "src", map[string]any{"rate": int64(6400), "pkt_size": int64(100)})
	e.CreateModule(ctx, "RoundRobin", "rr", nil)
	e.CreateModule(ctx, "PortOut", "out", map[string]any{"port": "v"})
	e.CreateModule(ctx, "Sink", "sink", nil)
	e.ConnectModules(ctx, "src", 0, "rr", 0)
	e.ConnectModules(ctx, "rr", 0, "out", 0)
	e.ConnectModules(ctx, "rr", 1, "sink", 0)

	e.Tick(time.Second)
	if st, _ := e.GetPortStats(ctx, "v"); st.Out.Packets != 0 {
		t.Fatalf("paused engine moved %d packets", st.Out.Packets)
	}

	e.ResumeAll(ctx)
	e.Tick(time.Second)

	st, _ := e.GetPortStats(ctx, "v")
	if st.Out.Packets != 3200 || st.Out.Bytes != 320000 {
		t.Errorf("port out = %+v, want 3200 packets, 320000 bytes", st.Out)
	}
	info, _ := e.GetModuleInfo(ctx, "src")
	if got := info.OGates[0]; got.Packets != 6400 || got.Batches != 200 {
		t.Errorf("src ogate 0 = %+v, want 6400 packets in 200 batches", got)
	}

	snap, err := engine.Sample(ctx, e, engine.SampleOptions{Ports: []string{"v"}, Gates: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := snap.Gates[engine.GateKey{Module: "rr", OGate: 1}]; got.Packets != 3200 || got.Peer != "sink" {
		t.Errorf("rr[1] = %+v, want 3200 packets to sink", got)
	}
}

func TestAutoNames(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.PauseAll(ctx)
	var got []string
	for range 3 {
		n, err := e.CreateModule(ctx, "Queue", "", nil)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, n)
	}
	e.DestroyModule(ctx, "queue1")
	n, _ := e.CreateModule(ctx, "Queue", "", nil)
	got = append(got, n)
	if diff := cmp.Diff([]string{"queue0", "queue1", "queue2", "queue1"}, got); diff != "" {
		t.Errorf("auto names mismatch (-want +got):\n%s", diff)
	}
}

func TestResetAndKill(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.PauseAll(ctx)
	e.CreatePort(ctx, "VPort", "v", nil)
	e.CreateModule(ctx, "Sink", "s", nil)
	if err := e.ResetAll(ctx); err != nil {
		t.Fatal(err)
	}
	ports, _ := e.ListPorts(ctx)
	mods, _ := e.ListModules(ctx)
	if len(ports) != 0 || len(mods) != 0 {
		t.Errorf("after reset: ports=%v modules=%v", ports, mods)
	}

	e.Kill(ctx)
	e.Kill(ctx)
	select {
	case <-e.Done():
	default:
		t.Error("Done not closed after Kill")
	}
}

func TestCollector(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.PauseAll(ctx)
	e.CreatePort(ctx, "VPort", "v", nil)
	e.CreateModule(ctx, "Source", "src", nil)
	e.CreateModule(ctx, "Sink", "sink", nil)
	e.ConnectModules(ctx, "src", 0, "sink", 0)

	c := NewCollector(e)
	// 6 port series, 2 gate series, ports, 2 module classes, paused, pauses.
	if n := testutil.CollectAndCount(c); n != 13 {
		t.Errorf("CollectAndCount = %d, want 13", n)
	}
	if n := testutil.CollectAndCount(c, "bess_workers_paused"); n != 1 {
		t.Errorf("paused series = %d, want 1", n)
	}
}
