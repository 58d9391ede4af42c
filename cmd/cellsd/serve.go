package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/cellsys/cellsd/internal/cell"
	"github.com/cellsys/cellsd/internal/cellname"
	"github.com/cellsys/cellsd/internal/config"
	"github.com/cellsys/cellsd/internal/nesteddaemon"
	"github.com/cellsys/cellsd/internal/observe"
	"github.com/cellsys/cellsd/internal/pod"
	"github.com/cellsys/cellsd/internal/rpc"
	"github.com/cellsys/cellsd/internal/transport"
	"github.com/cellsys/cellsd/internal/wire"
)

// serveCommand implements subcommands.Command for the top-level "serve"
// command: the normal way to start cellsd.
type serveCommand struct {
	configPath string
	imageRoot  string
}

func (*serveCommand) Name() string     { return "serve" }
func (*serveCommand) Synopsis() string { return "run the cellsd daemon" }
func (*serveCommand) Usage() string {
	return "serve [--config=path] [--image-root=path]\n"
}

func (s *serveCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.configPath, "config", "", "path to the TOML config file (default: search the standard locations)")
	f.StringVar(&s.imageRoot, "image-root", "/var/lib/cellsd/images", "root directory LocalStore resolves pod bundles under")
}

func (s *serveCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	var searchPaths []string
	if s.configPath != "" {
		searchPaths = []string{s.configPath}
	}
	cfg, err := config.Load(searchPaths...)
	if err != nil {
		logrus.WithError(err).Error("cellsd: failed to load config")
		return subcommands.ExitFailure
	}

	resolver := &pod.LocalStore{Root: s.imageRoot}
	if err := runServer(ctx, cfg, resolver); err != nil {
		logrus.WithError(err).Error("cellsd: server exited with error")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// runServer is shared between the top-level "serve" command and the
// "nested" command: both build the same registry/pod-table/listener
// stack, differing only in how cfg and auth material were obtained.
func runServer(ctx context.Context, cfg *config.Config, resolver pod.Resolver) error {
	ln, err := transport.Listen(cfg)
	if err != nil {
		return err
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	newDeps := func(name cellname.CellName) cell.Deps {
		return cell.Deps{
			BinaryPath: cfg.System.BinaryPath,
			SocketDir:  cfg.System.SocketDir,
			Auth: nesteddaemon.ClientConfig{
				CACert:     cfg.Auth.CACertPath,
				ClientCert: cfg.Auth.ServerCertPath,
				ClientKey:  cfg.Auth.ServerKeyPath,
				ServerName: cfg.System.ServerName,
			},
		}
	}
	registry := cell.NewRegistry(newDeps, rpc.DialForwarder{})
	pods := pod.NewTable()
	signals := observe.NewBus[wire.PosixSignal](observe.DefaultCapacity)
	surface := rpc.NewSurface(registry, pods, signals)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		logrus.Info("cellsd: shutting down")
		cancel()
		surface.Shutdown()
		ln.Close()
	}()

	logrus.WithField("socket", cfg.System.SocketPath).Info("cellsd: listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-sigc:
				return nil
			default:
			}
			return err
		}
		go acceptConn(ctx, surface, conn, resolver)
	}
}

func acceptConn(ctx context.Context, surface *rpc.Surface, conn net.Conn, resolver pod.Resolver) {
	surface.Serve(ctx, conn, rpc.Deps{Resolver: resolver})
}
