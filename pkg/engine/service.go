package engine

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Backend is an Engine served over gRPC. Version is reported to clients
// when they connect.
type Backend interface {
	Engine
	Version() string
}

// RegisterService exposes b on s as the bess.Engine service.
func RegisterService(s grpc.ServiceRegistrar, b Backend) {
	s.RegisterService(&serviceDesc, b)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Backend)(nil),
	Methods: []grpc.MethodDesc{
		unary(methodGetVersion, func(_ context.Context, b Backend, _ *emptyMsg) (any, error) {
			return versionMsg{Version: b.Version()}, nil
		}),
		unary(methodListDrivers, func(ctx context.Context, b Backend, _ *emptyMsg) (any, error) {
			drivers, err := b.ListDrivers(ctx)
			return driversMsg{Drivers: drivers}, err
		}),
		unary(methodListMclass, func(ctx context.Context, b Backend, _ *emptyMsg) (any, error) {
			classes, err := b.ListModuleClasses(ctx)
			return classesMsg{Classes: classes}, err
		}),
		unary(methodListPorts, func(ctx context.Context, b Backend, _ *emptyMsg) (any, error) {
			ports, err := b.ListPorts(ctx)
			return portsMsg{Ports: ports}, err
		}),
		unary(methodListModules, func(ctx context.Context, b Backend, _ *emptyMsg) (any, error) {
			mods, err := b.ListModules(ctx)
			return modulesMsg{Modules: mods}, err
		}),
		unary(methodGetModuleInfo, func(ctx context.Context, b Backend, req *nameMsg) (any, error) {
			return b.GetModuleInfo(ctx, req.Name)
		}),
		unary(methodGetPortStats, func(ctx context.Context, b Backend, req *nameMsg) (any, error) {
			return b.GetPortStats(ctx, req.Name)
		}),
		unary(methodCreatePort, func(ctx context.Context, b Backend, req *createPortReq) (any, error) {
			name, err := b.CreatePort(ctx, req.Driver, req.Name, req.Args)
			return nameMsg{Name: name}, err
		}),
		unary(methodDestroyPort, func(ctx context.Context, b Backend, req *nameMsg) (any, error) {
			return emptyMsg{}, b.DestroyPort(ctx, req.Name)
		}),
		unary(methodCreateModule, func(ctx context.Context, b Backend, req *createModuleReq) (any, error) {
			name, err := b.CreateModule(ctx, req.MClass, req.Name, req.Arg)
			return nameMsg{Name: name}, err
		}),
		unary(methodDestroyModule, func(ctx context.Context, b Backend, req *nameMsg) (any, error) {
			return emptyMsg{}, b.DestroyModule(ctx, req.Name)
		}),
		unary(methodConnectModules, func(ctx context.Context, b Backend, req *connectReq) (any, error) {
			return emptyMsg{}, b.ConnectModules(ctx, req.M1, req.OGate, req.M2, req.IGate)
		}),
		unary(methodDisconnectModules, func(ctx context.Context, b Backend, req *gateReq) (any, error) {
			return emptyMsg{}, b.DisconnectModules(ctx, req.Name, req.OGate)
		}),
		unary(methodPauseAll, func(ctx context.Context, b Backend, _ *emptyMsg) (any, error) {
			return emptyMsg{}, b.PauseAll(ctx)
		}),
		unary(methodResumeAll, func(ctx context.Context, b Backend, _ *emptyMsg) (any, error) {
			return emptyMsg{}, b.ResumeAll(ctx)
		}),
		unary(methodResetAll, func(ctx context.Context, b Backend, _ *emptyMsg) (any, error) {
			return emptyMsg{}, b.ResetAll(ctx)
		}),
		unary(methodEnableTcpdump, func(ctx context.Context, b Backend, req *gateReq) (any, error) {
			return emptyMsg{}, b.EnableTcpdump(ctx, req.Fifo, req.Name, req.OGate)
		}),
		unary(methodDisableTcpdump, func(ctx context.Context, b Backend, req *gateReq) (any, error) {
			return emptyMsg{}, b.DisableTcpdump(ctx, req.Name, req.OGate)
		}),
		unary(methodKillBess, func(ctx context.Context, b Backend, _ *emptyMsg) (any, error) {
			return emptyMsg{}, b.Kill(ctx)
		}),
	},
	Metadata: "bess/engine",
}

// unary adapts a typed handler to a Struct-in, Struct-out gRPC method.
func unary[Req any](name string, fn func(context.Context, Backend, *Req) (any, error)) grpc.MethodDesc {
	full := fullMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := &structpb.Struct{}
			if err := dec(in); err != nil {
				return nil, err
			}
			handle := func(ctx context.Context, req any) (any, error) {
				var r Req
				if err := decode(req.(*structpb.Struct), &r); err != nil {
					return nil, status.Errorf(codes.InvalidArgument, "%v", err)
				}
				resp, err := fn(ctx, srv.(Backend), &r)
				if err != nil {
					slog.Debug("engine request failed", "method", name, "err", err)
					return nil, toStatus(err)
				}
				return encode(resp)
			}
			if interceptor == nil {
				return handle(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: full}, handle)
		},
	}
}

func toStatus(err error) error {
	var ae *APIError
	if errors.As(err, &ae) {
		return status.Error(ae.Code, ae.Message)
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Errorf(codes.Unknown, "%v", err)
}
