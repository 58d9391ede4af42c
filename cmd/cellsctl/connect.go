package main

import (
	"flag"

	"github.com/cellsys/cellsd/internal/config"
	"github.com/cellsys/cellsd/internal/rpc"
	"github.com/cellsys/cellsd/internal/transport"
)

// dialFlags are the mTLS dialing flags every cellsctl subcommand shares.
type dialFlags struct {
	socket     string
	caCert     string
	clientCert string
	clientKey  string
	serverName string
}

func (d *dialFlags) register(f *flag.FlagSet) {
	f.StringVar(&d.socket, "socket", config.DefaultSocketPath, "daemon unix socket path")
	f.StringVar(&d.caCert, "ca-cert", "", "path to the CA certificate")
	f.StringVar(&d.clientCert, "client-cert", "", "path to this client's certificate")
	f.StringVar(&d.clientKey, "client-key", "", "path to this client's private key")
	f.StringVar(&d.serverName, "server-name", config.DefaultServerName, "expected server certificate CN/SNI")
}

func (d *dialFlags) dial() (*rpc.Client, error) {
	return rpc.Dial(d.socket, transport.DialerConfig{
		CACertPath:     d.caCert,
		ClientCertPath: d.clientCert,
		ClientKeyPath:  d.clientKey,
		ServerName:     d.serverName,
	})
}
