package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"xdao.co/tokenreg/internal/config"
	"xdao.co/tokenreg/internal/logging"
	"xdao.co/tokenreg/internal/telemetry"
	"xdao.co/tokenreg/mint"
	"xdao.co/tokenreg/registry"
	"xdao.co/tokenreg/registry/grpcapi"
	"xdao.co/tokenreg/storage/backend"
	"xdao.co/tokenreg/storage/storeconfig"

	_ "xdao.co/tokenreg/storage/localfs"
	_ "xdao.co/tokenreg/storage/memory"
	_ "xdao.co/tokenreg/storage/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr, nil))
}

// run serves until ctx is cancelled. When ready is non-nil it receives the
// bound listen address once the server accepts connections.
func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer, ready chan<- string) int {
	cfg, err := config.LoadDaemon()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	fs := flag.NewFlagSet("tokenregd", flag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", cfg.Listen, "listen address (env TOKENREG_LISTEN)")
	backendName := fs.String("backend", cfg.Backend, "storage backend name (env TOKENREG_BACKEND)")
	storeConfig := fs.String("store-config", cfg.StoreConfig, "backend config file, JSON or YAML (env TOKENREG_STORE_CONFIG)")
	verbosity := fs.Int("v", cfg.LogVerbosity, "log verbosity (env TOKENREG_LOG_VERBOSITY)")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")

	bindings := backend.RegisterFlags(fs, backend.UsageDaemon)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *listBackends {
		for _, b := range backend.List(backend.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	logger, err := logging.New(logging.Options{Verbosity: *verbosity, Development: cfg.LogDevelopment})
	if err != nil {
		fmt.Fprintf(errOut, "logger: %v\n", err)
		return 1
	}
	setupLog := logger.WithName("setup")

	shutdownTracing, err := telemetry.Setup(ctx, "tokenregd")
	if err != nil {
		setupLog.Error(err, "Failed to set up tracing")
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			setupLog.Error(err, "Failed to flush traces")
		}
	}()

	program, err := cfg.ProgramID()
	if err != nil {
		setupLog.Error(err, "Invalid program id")
		return 2
	}
	tokenProgram, err := cfg.TokenProgramID()
	if err != nil {
		setupLog.Error(err, "Invalid token program id")
		return 2
	}

	store, err := storeconfig.Select(*storeConfig, *backendName, bindings, backend.UsageDaemon)
	if err != nil {
		setupLog.Error(err, "Failed to open store", "backend", *backendName, "storeConfig", *storeConfig)
		return 2
	}
	defer store.Close()

	svc, err := registry.New(store, program, mint.NewProgram(tokenProgram))
	if err != nil {
		setupLog.Error(err, "Failed to create registry")
		return 1
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		setupLog.Error(err, "Failed to listen", "address", *listen)
		return 1
	}
	defer lis.Close()

	var serverOpts []grpc.ServerOption
	if cfg.MaxMsgBytes > 0 {
		serverOpts = append(serverOpts, grpc.MaxRecvMsgSize(cfg.MaxMsgBytes), grpc.MaxSendMsgSize(cfg.MaxMsgBytes))
	}
	srv, hs := grpcapi.NewGRPCServer(svc, logger.WithName("rpc"), serverOpts...)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(lis) }()

	setupLog.Info("tokenregd listening",
		"address", lis.Addr().String(),
		"program", svc.Program().String(),
		"manager", svc.ManagerAddress().String(),
		"backend", *backendName)
	if ready != nil {
		ready <- lis.Addr().String()
	}

	select {
	case err := <-serveErr:
		if err != nil {
			setupLog.Error(err, "Server stopped")
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	setupLog.Info("Shutting down")
	hs.Shutdown()
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(cfg.ShutdownTimeout):
		setupLog.Info("Graceful stop timed out, forcing")
		srv.Stop()
	}
	return 0
}
