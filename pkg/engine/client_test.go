package engine_test

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/test/bufconn"

	"github.com/psaab/bessctl/pkg/engine"
	"github.com/psaab/bessctl/pkg/engine/memengine"
)

func startServer(t *testing.T) (*engine.Client, *memengine.Engine, func()) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	mem := memengine.New(memengine.Options{
		Version:    "test-1",
		LinkLookup: func(string) error { return nil },
	})
	engine.RegisterService(srv, mem)
	go srv.Serve(lis)

	c := engine.NewClient(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err := c.Connect(context.Background(), "localhost", 0); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		c.Disconnect()
		srv.Stop()
	})
	return c, mem, srv.Stop
}

func TestClientRoundTrip(t *testing.T) {
	c, _, _ := startServer(t)
	ctx := context.Background()

	if got := c.Version(); got != "test-1" {
		t.Errorf("Version() = %q, want test-1", got)
	}
	if !c.IsConnected() {
		t.Fatal("IsConnected() = false after Connect")
	}

	drivers, err := c.ListDrivers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"AFPacket", "PMDPort", "VPort"}, drivers); diff != "" {
		t.Errorf("ListDrivers mismatch (-want +got):\n%s", diff)
	}

	name, err := c.CreatePort(ctx, "AFPacket", "", map[string]any{"ifname": "eth0"})
	if err != nil {
		t.Fatalf("CreatePort: %v", err)
	}
	if name != "afpacket0" {
		t.Errorf("CreatePort name = %q, want afpacket0", name)
	}

	err = engine.WithPause(ctx, c, func(ctx context.Context) error {
		if _, err := c.CreateModule(ctx, "Source", "src", map[string]any{"rate": int64(10)}); err != nil {
			return err
		}
		if _, err := c.CreateModule(ctx, "PortOut", "out", map[string]any{"port": name}); err != nil {
			return err
		}
		return c.ConnectModules(ctx, "src", 0, "out", 0)
	})
	if err != nil {
		t.Fatalf("build pipeline: %v", err)
	}

	info, err := c.GetModuleInfo(ctx, "src")
	if err != nil {
		t.Fatal(err)
	}
	want := []engine.GateInfo{{Gate: 0, Peer: "out", PeerGate: 0, Timestamp: info.OGates[0].Timestamp}}
	if diff := cmp.Diff(want, info.OGates); diff != "" {
		t.Errorf("OGates mismatch (-want +got):\n%s", diff)
	}
	// Integral numbers come back as int64 despite the double on the wire.
	if diff := cmp.Diff(map[string]any{"rate": int64(10)}, info.Dump); diff != "" {
		t.Errorf("Dump mismatch (-want +got):\n%s", diff)
	}
}

func TestClientAPIError(t *testing.T) {
	c, _, _ := startServer(t)
	ctx := context.Background()

	_, err := c.CreateModule(ctx, "Source", "src", nil)
	var ae *engine.APIError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if ae.Code != codes.FailedPrecondition || ae.Error() != "There is a running worker" {
		t.Errorf("err = %q (%v), want running worker (FailedPrecondition)", ae.Error(), ae.Code)
	}
	if engine.IsConnectivity(err) {
		t.Error("APIError classified as connectivity")
	}
}

func TestClientNotConnected(t *testing.T) {
	c := engine.NewClient()
	_, err := c.ListPorts(context.Background())
	if !engine.IsConnectivity(err) || !errors.Is(err, engine.ErrNotConnected) {
		t.Errorf("ListPorts on fresh client = %v, want not-connected ConnectivityError", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Errorf("Disconnect on fresh client = %v", err)
	}
}

func TestClientServerGone(t *testing.T) {
	c, _, stop := startServer(t)
	stop()
	_, err := c.ListModules(context.Background())
	if !engine.IsConnectivity(err) {
		t.Errorf("ListModules after server stop = %v, want ConnectivityError", err)
	}
}

func TestClientCancelledContext(t *testing.T) {
	c, _, _ := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ListModules(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if engine.IsConnectivity(err) {
		t.Error("cancelled call classified as connectivity")
	}
}

func TestKillTreatsDropAsSuccess(t *testing.T) {
	c, mem, _ := startServer(t)
	if err := c.Kill(context.Background()); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	select {
	case <-mem.Done():
	default:
		t.Error("engine not killed")
	}
}
