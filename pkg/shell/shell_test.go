package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/psaab/bessctl/pkg/argtype"
	"github.com/psaab/bessctl/pkg/cmdtree"
	"github.com/psaab/bessctl/pkg/config"
	"github.com/psaab/bessctl/pkg/engine"
	"github.com/psaab/bessctl/pkg/engine/memengine"
)

type fakeConn struct {
	*memengine.Engine
	connected   bool
	addr        string
	disconnects int
}

func (c *fakeConn) Connect(_ context.Context, host string, port int) error {
	c.connected = true
	c.addr = net.JoinHostPort(host, strconv.Itoa(port))
	return nil
}

func (c *fakeConn) Disconnect() error {
	c.connected = false
	c.addr = ""
	c.disconnects++
	return nil
}

func (c *fakeConn) IsConnected() bool { return c.connected }
func (c *fakeConn) Addr() string      { return c.addr }

type unreachableConn struct {
	*fakeConn
}

func (c *unreachableConn) ListPorts(context.Context) ([]engine.PortInfo, error) {
	return nil, &engine.ConnectivityError{Op: "ListPorts", Err: errors.New("connection refused")}
}

// fakeEditor replays scripted replies. onRead runs before each reply is
// returned, while the session is still in the reading state.
type fakeEditor struct {
	replies []reply
	prompt  string
	prompts []string
	history bool
	out     bytes.Buffer
	onRead  func()
}

type reply struct {
	line string
	err  error
}

func (e *fakeEditor) Readline() (string, error) {
	e.prompts = append(e.prompts, e.prompt)
	if e.onRead != nil {
		e.onRead()
	}
	if len(e.replies) == 0 {
		return "", io.EOF
	}
	r := e.replies[0]
	e.replies = e.replies[1:]
	return r.line, r.err
}

func (e *fakeEditor) SetPrompt(p string) { e.prompt = p }
func (e *fakeEditor) HistoryDisable()    { e.history = false }
func (e *fakeEditor) HistoryEnable()     { e.history = true }
func (e *fakeEditor) Stdout() io.Writer  { return &e.out }

type harness struct {
	sess  *Session
	conn  *fakeConn
	ed    *fakeEditor
	out   *bytes.Buffer
	errw  *bytes.Buffer
	shell *Shell
	ran   map[string]int
}

func newHarness(t *testing.T, interactive bool, replies ...reply) *harness {
	t.Helper()
	h := &harness{
		conn: &fakeConn{Engine: memengine.New(memengine.Options{}), connected: true, addr: "localhost:10514"},
		ed:   &fakeEditor{replies: replies, history: true},
		out:  &bytes.Buffer{},
		errw: &bytes.Buffer{},
		ran:  make(map[string]int),
	}
	h.sess = NewSession(h.conn, config.Default(), afero.NewMemMapFs())
	h.sess.Out, h.sess.ErrOut = h.out, h.errw
	h.sess.Interactive = interactive
	if interactive {
		h.sess.Editor = h.ed
		h.ed.SetPrompt(h.sess.Prompt())
	}

	reg := cmdtree.NewRegistry(cmdtree.Vars{
		"PORT": {Kind: argtype.Name, Desc: "name of a port", Source: func(ctx context.Context, _ string) ([]string, error) {
			ports, err := h.sess.Conn.ListPorts(ctx)
			var names []string
			for _, p := range ports {
				names = append(names, p.Name)
			}
			return names, err
		}},
	})
	record := func(name string, out cmdtree.Outcome, err error) cmdtree.Handler {
		return func(context.Context, cmdtree.Args) (cmdtree.Outcome, error) {
			h.ran[name]++
			return out, err
		}
	}
	reg.MustRegister("noop", "Do nothing", record("noop", cmdtree.Continue, nil))
	reg.MustRegister("quit", "Quit CLI", record("quit", cmdtree.Terminate, nil))
	reg.MustRegister("show port PORT", "Show a port", record("show port", cmdtree.Continue, nil))
	reg.MustRegister("show status", "Show the overall status", record("show status", cmdtree.Continue, nil))
	reg.MustRegister("daemon reset", "Remove all ports and modules", record("daemon reset", cmdtree.Continue, nil)).
		Confirm = "The entire pipeline will be cleared."
	reg.MustRegister("lost", "Lose the engine", record("lost", cmdtree.Continue,
		&engine.ConnectivityError{Op: "ListPorts", Err: errors.New("connection reset")}))
	reg.MustRegister("bug", "Contract violation", record("bug", cmdtree.Continue,
		&cmdtree.InternalError{Msg: "invalid module class name: fail"}))
	reg.MustRegister("block", "Wait for cancellation", func(ctx context.Context, _ cmdtree.Args) (cmdtree.Outcome, error) {
		<-ctx.Done()
		return cmdtree.Continue, ctx.Err()
	})
	h.shell = New(h.sess, reg)
	return h
}

func TestConfirmNonInteractive(t *testing.T) {
	h := newHarness(t, false)
	out, err := h.shell.Dispatch(context.Background(), "daemon reset")
	if err != nil || out != cmdtree.Continue {
		t.Fatalf("Dispatch = %v, %v; want continue, nil", out, err)
	}
	if h.ran["daemon reset"] != 1 {
		t.Errorf("handler ran %d times, want 1", h.ran["daemon reset"])
	}
	if len(h.ed.prompts) != 0 {
		t.Errorf("non-interactive session prompted: %q", h.ed.prompts)
	}
}

func TestConfirmInteractive(t *testing.T) {
	tests := []struct {
		name    string
		reply   reply
		want    cmdtree.Outcome
		wantRan int
	}{
		{"yes", reply{line: "yes"}, cmdtree.Continue, 1},
		{"yes with spaces", reply{line: "  yes "}, cmdtree.Continue, 1},
		{"no", reply{line: "no"}, cmdtree.Cancelled, 0},
		{"YES", reply{line: "YES"}, cmdtree.Cancelled, 0},
		{"empty", reply{line: ""}, cmdtree.Cancelled, 0},
		{"interrupt", reply{err: readline.ErrInterrupt}, cmdtree.Cancelled, 0},
		{"eof", reply{err: io.EOF}, cmdtree.Cancelled, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, true, tt.reply)
			var completing, history bool
			h.ed.onRead = func() {
				completing, history = h.sess.Completing(), h.ed.history
			}

			out, err := h.shell.Dispatch(context.Background(), "daemon reset")
			if err != nil {
				t.Fatalf("Dispatch error: %v", err)
			}
			if out != tt.want {
				t.Errorf("outcome = %v, want %v", out, tt.want)
			}
			if h.ran["daemon reset"] != tt.wantRan {
				t.Errorf("handler ran %d times, want %d", h.ran["daemon reset"], tt.wantRan)
			}

			wantPrompt := `WARNING: The entire pipeline will be cleared. Are you sure? (type "yes") `
			if diff := cmp.Diff([]string{wantPrompt}, h.ed.prompts); diff != "" {
				t.Errorf("prompts mismatch (-want +got):\n%s", diff)
			}
			if completing || history {
				t.Errorf("during prompt: completing=%v history=%v, want both off", completing, history)
			}
			if !h.sess.Completing() || !h.ed.history {
				t.Error("completion or history not restored")
			}
			if h.ed.prompt != "localhost:10514 $ " {
				t.Errorf("prompt after confirm = %q", h.ed.prompt)
			}
			cancelled := strings.Contains(h.out.String(), "Cancelled.")
			if cancelled != (tt.wantRan == 0) {
				t.Errorf("output %q, cancelled=%v", h.out.String(), cancelled)
			}
		})
	}
}

func TestConfirmEditorError(t *testing.T) {
	h := newHarness(t, true, reply{err: errors.New("tty gone")})
	out, err := h.shell.Dispatch(context.Background(), "daemon reset")
	if err == nil || out != cmdtree.Continue {
		t.Fatalf("Dispatch = %v, %v; want continue and an error", out, err)
	}
	if h.ran["daemon reset"] != 0 {
		t.Error("handler ran after editor failure")
	}
	if !h.ed.history || !h.sess.Completing() {
		t.Error("completion or history not restored")
	}
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		line     string
		want     cmdtree.Outcome
		wantErr  bool
		wantErrw string
	}{
		{"", cmdtree.Continue, false, ""},
		{"# comment", cmdtree.Continue, false, ""},
		{"noop", cmdtree.Continue, false, ""},
		{"quit", cmdtree.Terminate, false, ""},
		{"show port 1p", cmdtree.Continue, true, `Error: "name" must be [_a-zA-Z][_a-zA-Z0-9]*`},
		{"show port p0 p1", cmdtree.Continue, true, `Error: trailing characters: "p1"`},
		{"shw status", cmdtree.Continue, true, `Error: unknown command: "shw status" (did you mean`},
		{"bug", cmdtree.Continue, true, "*** internal error: invalid module class name: fail"},
	}
	for _, tt := range tests {
		h := newHarness(t, false)
		out, err := h.shell.Dispatch(context.Background(), tt.line)
		if out != tt.want || (err != nil) != tt.wantErr {
			t.Errorf("Dispatch(%q) = %v, %v; want %v, err=%v", tt.line, out, err, tt.want, tt.wantErr)
		}
		if !strings.Contains(h.errw.String(), tt.wantErrw) {
			t.Errorf("Dispatch(%q) printed %q, want %q", tt.line, h.errw.String(), tt.wantErrw)
		}
		if tt.wantErrw == "" && h.errw.Len() != 0 {
			t.Errorf("Dispatch(%q) printed %q, want nothing", tt.line, h.errw.String())
		}
	}
}

func TestDispatchConnectivityDisconnects(t *testing.T) {
	h := newHarness(t, true)
	out, err := h.shell.Dispatch(context.Background(), "lost")
	if !engine.IsConnectivity(err) || out != cmdtree.Continue {
		t.Fatalf("Dispatch = %v, %v; want continue and a connectivity error", out, err)
	}
	if h.conn.connected || h.conn.disconnects != 1 {
		t.Errorf("connected=%v disconnects=%d, want disconnected once", h.conn.connected, h.conn.disconnects)
	}
	if !strings.Contains(h.errw.String(), ReconnectHint) {
		t.Errorf("missing reconnect hint in %q", h.errw.String())
	}
	if h.ed.prompt != "<disconnected> $ " {
		t.Errorf("prompt = %q, want <disconnected> $ ", h.ed.prompt)
	}
}

func TestDispatchCancelled(t *testing.T) {
	h := newHarness(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	out, err := h.shell.Dispatch(ctx, "block")
	if err != nil || out != cmdtree.Cancelled {
		t.Errorf("Dispatch = %v, %v; want cancelled, nil", out, err)
	}
	if h.errw.Len() != 0 {
		t.Errorf("cancelled command printed %q", h.errw.String())
	}
}

func TestRun(t *testing.T) {
	h := newHarness(t, true,
		reply{line: ""},
		reply{err: readline.ErrInterrupt},
		reply{line: "noop"},
		reply{line: "quit"},
		reply{line: "noop"},
	)
	if err := h.shell.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.ran["noop"] != 1 || h.ran["quit"] != 1 {
		t.Errorf("ran = %v, want noop and quit once", h.ran)
	}
	_, lines := h.sess.History.Tail(10)
	if diff := cmp.Diff([]string{"noop", "quit"}, lines); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}

	// End of input also ends the loop.
	h = newHarness(t, true, reply{line: "noop"})
	if err := h.shell.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunLines(t *testing.T) {
	h := newHarness(t, false)
	err := h.shell.RunLines(context.Background(), strings.NewReader("noop\nbogus\n\nnoop\nquit\nnoop\n"))
	if err == nil || err.Error() != "1 command(s) failed" {
		t.Errorf("RunLines = %v, want 1 failure", err)
	}
	if h.ran["noop"] != 2 {
		t.Errorf("noop ran %d times, want 2", h.ran["noop"])
	}
}

func TestInterrupt(t *testing.T) {
	h := newHarness(t, false)
	now := time.Now()

	ctx := h.shell.startCmd(context.Background())
	if h.shell.interrupt(now) {
		t.Error("interrupt during a command asked to exit")
	}
	if ctx.Err() == nil {
		t.Error("running command not cancelled")
	}
	h.shell.endCmd()

	if h.shell.interrupt(now) {
		t.Error("first interrupt at the prompt asked to exit")
	}
	if !h.shell.interrupt(now.Add(time.Second)) {
		t.Error("second interrupt within 2s did not ask to exit")
	}
	if h.shell.interrupt(now.Add(10 * time.Second)) {
		t.Error("interrupt long after the previous one asked to exit")
	}
}

func TestSessionConnect(t *testing.T) {
	h := newHarness(t, true)
	h.sess.Disconnect()
	if h.ed.prompt != "<disconnected> $ " {
		t.Errorf("prompt = %q", h.ed.prompt)
	}
	if err := h.sess.Connect(context.Background(), "", 0); err != nil {
		t.Fatal(err)
	}
	if h.conn.addr != "localhost:10514" || h.ed.prompt != "localhost:10514 $ " {
		t.Errorf("addr=%q prompt=%q, want settings defaults", h.conn.addr, h.ed.prompt)
	}
	if err := h.sess.Connect(context.Background(), "10.0.0.1", 9000); err != nil {
		t.Fatal(err)
	}
	if h.conn.addr != "10.0.0.1:9000" {
		t.Errorf("addr = %q, want 10.0.0.1:9000", h.conn.addr)
	}
}
