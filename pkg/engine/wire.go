package engine

import (
	"bytes"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the gRPC service the engine exposes. Every method is
// unary and carries a google.protobuf.Struct each way.
const ServiceName = "bess.Engine"

const (
	methodGetVersion        = "GetVersion"
	methodListDrivers       = "ListDrivers"
	methodListMclass        = "ListMclass"
	methodListPorts         = "ListPorts"
	methodListModules       = "ListModules"
	methodGetModuleInfo     = "GetModuleInfo"
	methodGetPortStats      = "GetPortStats"
	methodCreatePort        = "CreatePort"
	methodDestroyPort       = "DestroyPort"
	methodCreateModule      = "CreateModule"
	methodDestroyModule     = "DestroyModule"
	methodConnectModules    = "ConnectModules"
	methodDisconnectModules = "DisconnectModules"
	methodPauseAll          = "PauseAll"
	methodResumeAll         = "ResumeAll"
	methodResetAll          = "ResetAll"
	methodEnableTcpdump     = "EnableTcpdump"
	methodDisableTcpdump    = "DisableTcpdump"
	methodKillBess          = "KillBess"
)

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

type emptyMsg struct{}

type nameMsg struct {
	Name string `json:"name"`
}

type versionMsg struct {
	Version string `json:"version"`
}

type driversMsg struct {
	Drivers []string `json:"drivers"`
}

type classesMsg struct {
	Classes []string `json:"classes"`
}

type portsMsg struct {
	Ports []PortInfo `json:"ports"`
}

type modulesMsg struct {
	Modules []ModuleSummary `json:"modules"`
}

type createPortReq struct {
	Driver string         `json:"driver"`
	Name   string         `json:"name,omitempty"`
	Args   map[string]any `json:"arg,omitempty"`
}

type createModuleReq struct {
	MClass string `json:"mclass"`
	Name   string `json:"name,omitempty"`
	Arg    any    `json:"arg,omitempty"`
}

type connectReq struct {
	M1    string `json:"m1"`
	OGate int    `json:"ogate"`
	M2    string `json:"m2"`
	IGate int    `json:"igate"`
}

type gateReq struct {
	Name  string `json:"name"`
	OGate int    `json:"ogate"`
	Fifo  string `json:"fifo,omitempty"`
}

// encode converts a JSON-shaped Go value into a Struct message.
func encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return s, nil
}

// decode fills v from a Struct message. Struct carries every number as
// a double; untyped fields get integral values back as int64.
func decode(s *structpb.Struct, v any) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	d := json.NewDecoder(bytes.NewReader(b))
	d.UseNumber()
	if err := d.Decode(v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	switch m := v.(type) {
	case *createPortReq:
		for k, a := range m.Args {
			m.Args[k] = fromNumber(a)
		}
	case *createModuleReq:
		m.Arg = fromNumber(m.Arg)
	case *ModuleInfo:
		m.Dump = fromNumber(m.Dump)
	}
	return nil
}

// fromNumber replaces json.Number values inside v, recursively.
func fromNumber(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = fromNumber(x[i])
		}
	case map[string]any:
		for k, e := range x {
			x[k] = fromNumber(e)
		}
	}
	return v
}
