package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"google.golang.org/grpc/codes"

	"github.com/psaab/bessctl/pkg/engine"
)

// Response is the standard JSON response envelope.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StatusResponse summarises the engine.
type StatusResponse struct {
	Uptime        string   `json:"uptime"`
	Drivers       []string `json:"drivers"`
	ModuleClasses []string `json:"module_classes"`
	PortCount     int      `json:"port_count"`
	ModuleCount   int      `json:"module_count"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{Success: false, Error: msg})
}

// writeEngineError maps an engine rejection to an HTTP status.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var ae *engine.APIError
	if errors.As(err, &ae) {
		switch ae.Code {
		case codes.NotFound:
			status = http.StatusNotFound
		case codes.InvalidArgument:
			status = http.StatusBadRequest
		}
	}
	writeError(w, status, err.Error())
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, map[string]string{"status": "ok"})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := StatusResponse{Uptime: time.Since(s.startTime).Truncate(time.Second).String()}

	var err error
	if resp.Drivers, err = s.eng.ListDrivers(ctx); err != nil {
		writeEngineError(w, err)
		return
	}
	if resp.ModuleClasses, err = s.eng.ListModuleClasses(ctx); err != nil {
		writeEngineError(w, err)
		return
	}
	ports, err := s.eng.ListPorts(ctx)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	mods, err := s.eng.ListModules(ctx)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	resp.PortCount, resp.ModuleCount = len(ports), len(mods)
	writeOK(w, resp)
}

func (s *Server) portsHandler(w http.ResponseWriter, r *http.Request) {
	ports, err := s.eng.ListPorts(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeOK(w, ports)
}

func (s *Server) portStatsHandler(w http.ResponseWriter, r *http.Request) {
	st, err := s.eng.GetPortStats(r.Context(), r.PathValue("name"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeOK(w, st)
}

func (s *Server) modulesHandler(w http.ResponseWriter, r *http.Request) {
	mods, err := s.eng.ListModules(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeOK(w, mods)
}

func (s *Server) moduleInfoHandler(w http.ResponseWriter, r *http.Request) {
	info, err := s.eng.GetModuleInfo(r.Context(), r.PathValue("name"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeOK(w, info)
}
