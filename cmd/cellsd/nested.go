package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/cellsys/cellsd/internal/config"
	"github.com/cellsys/cellsd/internal/nesteddaemon"
	"github.com/cellsys/cellsd/internal/pod"
)

// nestedCommand implements subcommands.Command for the hidden "nested"
// command a parent cellsd re-execs itself as inside a cell's freshly
// unshared namespaces, per nesteddaemon.Launch.
type nestedCommand struct {
	cell       string
	socket     string
	caCert     string
	clientCert string
	clientKey  string
	mountProc  bool
	hostname   string
	imageRoot  string
}

func (*nestedCommand) Name() string     { return nesteddaemon.NestedSubcommand }
func (*nestedCommand) Synopsis() string { return "run as a cell's nested daemon (internal)" }
func (*nestedCommand) Usage() string {
	return "nested --cell=name --socket=path --ca-cert=path --client-cert=path --client-key=path [--mount-proc] [--hostname=name]\n"
}

func (n *nestedCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&n.cell, "cell", "", "name of the cell this instance belongs to")
	f.StringVar(&n.socket, "socket", "", "unix socket path to serve on")
	f.StringVar(&n.caCert, "ca-cert", "", "path to the shared CA certificate")
	f.StringVar(&n.clientCert, "client-cert", "", "path to this instance's leaf certificate")
	f.StringVar(&n.clientKey, "client-key", "", "path to this instance's leaf private key")
	f.BoolVar(&n.mountProc, "mount-proc", false, "mount a fresh /proc before serving (pid+mount namespaces were unshared)")
	f.StringVar(&n.hostname, "hostname", "", "hostname to set before serving (uts namespace was unshared)")
	f.StringVar(&n.imageRoot, "image-root", "/var/lib/cellsd/images", "root directory LocalStore resolves pod bundles under")
}

func (n *nestedCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if n.cell == "" || n.socket == "" {
		f.Usage()
		return subcommands.ExitUsageError
	}

	if err := nesteddaemon.RunNestedSetup(n.mountProc, n.hostname); err != nil {
		logrus.WithError(err).Error("cellsd nested: setup failed")
		return subcommands.ExitFailure
	}

	binaryPath, _ := os.Executable()
	cfg := &config.Config{
		Auth: config.Auth{
			CACertPath:     n.caCert,
			ServerCertPath: n.clientCert,
			ServerKeyPath:  n.clientKey,
		},
		System: config.System{
			SocketPath: n.socket,
			ServerName: config.DefaultServerName,
			SocketDir:  n.socket + ".d",
			BinaryPath: binaryPath,
		},
	}

	resolver := &pod.LocalStore{Root: n.imageRoot}
	if err := runServer(ctx, cfg, resolver); err != nil {
		logrus.WithError(err).WithField("cell", n.cell).Error("cellsd nested: server exited with error")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
