// bessd-sim is a stand-in for the BESS daemon.
//
// It serves the engine gRPC API from an in-memory pipeline that
// synthesises traffic, so bessctl can be used and tested without a
// DPDK host. Pipeline counters are exported on /metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/psaab/bessctl/pkg/api"
	"github.com/psaab/bessctl/pkg/engine"
	"github.com/psaab/bessctl/pkg/engine/memengine"
	"github.com/psaab/bessctl/pkg/logging"
)

type options struct {
	grpcAddr string
	apiAddr  string
	apiKeys  []string
	pidPath  string
	kill     bool
	syslog   string
	tick     time.Duration
	debug    bool
}

func main() {
	var opts options
	cmd := &cobra.Command{
		Use:          "bessd-sim",
		Short:        "Simulated BESS daemon",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.grpcAddr, "grpc-addr", fmt.Sprintf("localhost:%d", engine.DefaultPort), "gRPC listen address")
	f.StringVar(&opts.apiAddr, "api-addr", "127.0.0.1:9514", "HTTP API and metrics listen address (empty to disable)")
	f.StringSliceVar(&opts.apiKeys, "api-key", nil, "API key required on /api/v1 (repeatable)")
	f.StringVar(&opts.pidPath, "pid-file", "/var/run/bessd.pid", "pid file locked while running")
	f.BoolVarP(&opts.kill, "kill", "k", false, "stop a running daemon before starting")
	f.StringVar(&opts.syslog, "syslog", "", "also send logs to this syslog server (host:port)")
	f.DurationVar(&opts.tick, "tick", 100*time.Millisecond, "traffic simulation interval")
	f.BoolVar(&opts.debug, "debug", false, "enable debug logging")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	// Set up structured logging
	fan := logging.NewFanoutHandler(logging.NewBaseHandler(os.Stderr, opts.debug))
	slog.SetDefault(slog.New(fan))
	defer fan.Close()
	if opts.syslog != "" {
		sc, err := logging.NewSyslogClient(opts.syslog, "bessd-sim")
		if err != nil {
			return err
		}
		if opts.debug {
			sc.MinSeverity = logging.SyslogDebug
		}
		fan.SetSinks(sc)
	}

	if opts.kill {
		if err := killHolder(opts.pidPath, 5*time.Second); err != nil {
			return err
		}
	}
	pid, err := lockPIDFile(opts.pidPath)
	if err != nil {
		return err
	}
	defer pid.release()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	mem := memengine.New(memengine.Options{})

	lis, err := net.Listen("tcp", opts.grpcAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", opts.grpcAddr, err)
	}
	srv := grpc.NewServer()
	engine.RegisterService(srv, mem)

	errCh := make(chan error, 2)
	go func() {
		slog.Info("gRPC server listening", "addr", lis.Addr().String(), "version", mem.Version())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
	}()

	if opts.apiAddr != "" {
		apiLis, err := net.Listen("tcp", opts.apiAddr)
		if err != nil {
			srv.Stop()
			return fmt.Errorf("listen %s: %w", opts.apiAddr, err)
		}
		cfg := api.Config{Engine: mem, Collector: memengine.NewCollector(mem)}
		if len(opts.apiKeys) > 0 {
			cfg.Auth = &api.AuthConfig{APIKeys: opts.apiKeys}
		}
		apiSrv := api.NewServer(cfg)
		go func() {
			if err := apiSrv.Run(ctx, apiLis); err != nil {
				errCh <- err
			}
		}()
	}

	go mem.Run(ctx, opts.tick)

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case <-mem.Done():
		slog.Info("killed by client")
	case err = <-errCh:
		slog.Error("server failed", "err", err)
	}
	stop()
	srv.GracefulStop()
	return err
}
