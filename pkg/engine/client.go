package engine

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// DefaultHost and DefaultPort locate the engine when nothing else is
// configured.
const (
	DefaultHost = "localhost"
	DefaultPort = 10514
)

// Client is an Engine backed by one gRPC connection. Connect and
// Disconnect switch the session; every other method fails with a
// ConnectivityError while disconnected.
type Client struct {
	dialOpts []grpc.DialOption

	mu      sync.Mutex
	conn    *grpc.ClientConn
	addr    string
	version string
}

var _ Engine = (*Client)(nil)

// NewClient returns a disconnected client. opts are added to every dial.
func NewClient(opts ...grpc.DialOption) *Client {
	return &Client{dialOpts: opts}
}

// Connect opens a session to host:port, replacing any current one, and
// verifies the engine answers.
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	if host == "" {
		host = DefaultHost
	}
	if port == 0 {
		port = DefaultPort
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, c.dialOpts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return &ConnectivityError{Op: "Connect", Err: err}
	}

	var resp versionMsg
	if err := invoke(ctx, conn, methodGetVersion, emptyMsg{}, &resp); err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	old := c.conn
	c.conn, c.addr, c.version = conn, addr, resp.Version
	c.mu.Unlock()
	if old != nil {
		old.Close()
	}
	slog.Debug("engine connected", "addr", addr, "version", resp.Version)
	return nil
}

// Disconnect closes the session. It is a no-op when not connected.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn, c.addr, c.version = nil, "", ""
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	slog.Debug("engine disconnected")
	return conn.Close()
}

// IsConnected reports whether a session is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Addr returns the address of the current session, or "".
func (c *Client) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

// Version returns the engine version reported at connect time.
func (c *Client) Version() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return &ConnectivityError{Op: method, Err: ErrNotConnected}
	}
	return invoke(ctx, conn, method, req, resp)
}

func invoke(ctx context.Context, conn *grpc.ClientConn, method string, req, resp any) error {
	in, err := encode(req)
	if err != nil {
		return err
	}
	out := &structpb.Struct{}
	if err := conn.Invoke(ctx, fullMethod(method), in, out); err != nil {
		return classify(ctx, method, err)
	}
	if resp == nil {
		return nil
	}
	return decode(out, resp)
}

// classify maps a gRPC failure onto the error taxonomy. A cancelled
// caller context is returned as is so interrupting a command does not
// look like a lost engine.
func classify(ctx context.Context, method string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	st, ok := status.FromError(err)
	if !ok {
		return &ConnectivityError{Op: method, Err: err}
	}
	switch st.Code() {
	case codes.Unavailable, codes.Canceled, codes.DeadlineExceeded:
		return &ConnectivityError{Op: method, Err: errors.New(st.Message())}
	}
	return &APIError{Op: method, Code: st.Code(), Message: st.Message()}
}

func (c *Client) ListDrivers(ctx context.Context) ([]string, error) {
	var resp driversMsg
	if err := c.call(ctx, methodListDrivers, emptyMsg{}, &resp); err != nil {
		return nil, err
	}
	return resp.Drivers, nil
}

func (c *Client) ListModuleClasses(ctx context.Context) ([]string, error) {
	var resp classesMsg
	if err := c.call(ctx, methodListMclass, emptyMsg{}, &resp); err != nil {
		return nil, err
	}
	return resp.Classes, nil
}

func (c *Client) ListPorts(ctx context.Context) ([]PortInfo, error) {
	var resp portsMsg
	if err := c.call(ctx, methodListPorts, emptyMsg{}, &resp); err != nil {
		return nil, err
	}
	return resp.Ports, nil
}

func (c *Client) ListModules(ctx context.Context) ([]ModuleSummary, error) {
	var resp modulesMsg
	if err := c.call(ctx, methodListModules, emptyMsg{}, &resp); err != nil {
		return nil, err
	}
	return resp.Modules, nil
}

func (c *Client) GetModuleInfo(ctx context.Context, name string) (*ModuleInfo, error) {
	var resp ModuleInfo
	if err := c.call(ctx, methodGetModuleInfo, nameMsg{Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetPortStats(ctx context.Context, name string) (*PortStats, error) {
	var resp PortStats
	if err := c.call(ctx, methodGetPortStats, nameMsg{Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CreatePort(ctx context.Context, driver, name string, args map[string]any) (string, error) {
	var resp nameMsg
	req := createPortReq{Driver: driver, Name: name, Args: args}
	if err := c.call(ctx, methodCreatePort, req, &resp); err != nil {
		return "", err
	}
	return resp.Name, nil
}

func (c *Client) DestroyPort(ctx context.Context, name string) error {
	return c.call(ctx, methodDestroyPort, nameMsg{Name: name}, nil)
}

func (c *Client) CreateModule(ctx context.Context, mclass, name string, arg any) (string, error) {
	var resp nameMsg
	req := createModuleReq{MClass: mclass, Name: name, Arg: arg}
	if err := c.call(ctx, methodCreateModule, req, &resp); err != nil {
		return "", err
	}
	return resp.Name, nil
}

func (c *Client) DestroyModule(ctx context.Context, name string) error {
	return c.call(ctx, methodDestroyModule, nameMsg{Name: name}, nil)
}

func (c *Client) ConnectModules(ctx context.Context, from string, ogate int, to string, igate int) error {
	return c.call(ctx, methodConnectModules, connectReq{M1: from, OGate: ogate, M2: to, IGate: igate}, nil)
}

func (c *Client) DisconnectModules(ctx context.Context, name string, ogate int) error {
	return c.call(ctx, methodDisconnectModules, gateReq{Name: name, OGate: ogate}, nil)
}

func (c *Client) PauseAll(ctx context.Context) error {
	return c.call(ctx, methodPauseAll, emptyMsg{}, nil)
}

func (c *Client) ResumeAll(ctx context.Context) error {
	return c.call(ctx, methodResumeAll, emptyMsg{}, nil)
}

func (c *Client) ResetAll(ctx context.Context) error {
	return c.call(ctx, methodResetAll, emptyMsg{}, nil)
}

func (c *Client) EnableTcpdump(ctx context.Context, fifo, module string, ogate int) error {
	return c.call(ctx, methodEnableTcpdump, gateReq{Name: module, OGate: ogate, Fifo: fifo}, nil)
}

func (c *Client) DisableTcpdump(ctx context.Context, module string, ogate int) error {
	return c.call(ctx, methodDisableTcpdump, gateReq{Name: module, OGate: ogate}, nil)
}

// Kill asks the engine to exit. The engine may drop the connection
// before answering, so a connectivity failure here counts as success.
func (c *Client) Kill(ctx context.Context) error {
	err := c.call(ctx, methodKillBess, emptyMsg{}, nil)
	if IsConnectivity(err) && !errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}
