package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/psaab/bessctl/pkg/engine"
	"github.com/psaab/bessctl/pkg/engine/memengine"
)

func newTestServer(t *testing.T, auth *AuthConfig) (*Server, *memengine.Engine) {
	t.Helper()
	mem := memengine.New(memengine.Options{LinkLookup: func(string) error { return nil }})
	ctx := context.Background()
	err := engine.WithPause(ctx, mem, func(ctx context.Context) error {
		if _, err := mem.CreatePort(ctx, "VPort", "p0", nil); err != nil {
			return err
		}
		if _, err := mem.CreateModule(ctx, "PortInc", "inc0", map[string]any{"port": "p0"}); err != nil {
			return err
		}
		if _, err := mem.CreateModule(ctx, "Sink", "snk", nil); err != nil {
			return err
		}
		return mem.ConnectModules(ctx, "inc0", 0, "snk", 0)
	})
	if err != nil {
		t.Fatal(err)
	}
	return NewServer(Config{Engine: mem, Collector: memengine.NewCollector(mem), Auth: auth}), mem
}

func get(t *testing.T, h http.Handler, path string, header map[string]string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var resp Response
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s: decode: %v", path, err)
		}
	}
	return w, resp
}

func TestHandlers(t *testing.T) {
	s, mem := newTestServer(t, nil)
	mem.Tick(time.Second)
	h := s.Handler()

	tests := []struct {
		path   string
		status int
		want   string
	}{
		{"/health", http.StatusOK, `"status":"ok"`},
		{"/api/v1/status", http.StatusOK, `"port_count":1,"module_count":2`},
		{"/api/v1/ports", http.StatusOK, `{"name":"p0","driver":"VPort"}`},
		{"/api/v1/ports/p0", http.StatusOK, `"inc":{"packets":1000000,"dropped":0,"bytes":60000000}`},
		{"/api/v1/ports/nope", http.StatusNotFound, "No port `nope' found"},
		{"/api/v1/modules", http.StatusOK, `"name":"snk","mclass":"Sink"`},
		{"/api/v1/modules/inc0", http.StatusOK, `"name":"snk","peer_gate":0`},
		{"/api/v1/modules/ghost", http.StatusNotFound, "No module 'ghost' found"},
	}
	for _, tt := range tests {
		w, _ := get(t, h, tt.path, nil)
		if w.Code != tt.status {
			t.Errorf("GET %s = %d, want %d", tt.path, w.Code, tt.status)
		}
		if !strings.Contains(w.Body.String(), tt.want) {
			t.Errorf("GET %s body %s, want it to contain %s", tt.path, w.Body.String(), tt.want)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, mem := newTestServer(t, nil)
	mem.Tick(time.Second)

	w, _ := get(t, s.Handler(), "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`bess_port_packets_total{direction="inc",port="p0"} 1e+06`,
		"bess_ports 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	s, _ := newTestServer(t, &AuthConfig{APIKeys: []string{"tok-abc-123"}})
	h := s.Handler()

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{name: "health bypass", path: "/health", want: http.StatusOK},
		{name: "metrics bypass", path: "/metrics", want: http.StatusOK},
		{name: "no auth", path: "/api/v1/status", want: http.StatusUnauthorized},
		{
			name:   "bearer",
			path:   "/api/v1/status",
			header: map[string]string{"Authorization": "Bearer tok-abc-123"},
			want:   http.StatusOK,
		},
		{
			name:   "bad bearer",
			path:   "/api/v1/status",
			header: map[string]string{"Authorization": "Bearer nope"},
			want:   http.StatusUnauthorized,
		},
		{
			name:   "api key header",
			path:   "/api/v1/ports",
			header: map[string]string{"X-API-Key": "tok-abc-123"},
			want:   http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := get(t, h, tt.path, tt.header)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized {
				want := Response{Error: "authentication required"}
				if diff := cmp.Diff(want, resp); diff != "" {
					t.Errorf("response mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}
