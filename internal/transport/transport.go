// Package transport builds the mTLS-over-unix-socket listener every
// cellsd instance (top-level or nested) serves its RPC surface on.
package transport

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/sirupsen/logrus"

	"github.com/cellsys/cellsd/internal/config"
	"github.com/cellsys/cellsd/internal/rpcerr"
)

// Listen binds the unix listener cellsd serves its RPC surface on,
// wrapped in a tls.Listener requiring and verifying client certificates
// against cfg.Auth.CACertPath. When cellsd was started under systemd
// socket activation (LISTEN_FDS/LISTEN_PID set), the first inherited fd
// is reused instead of binding cfg.System.SocketPath fresh.
func Listen(cfg *config.Config) (net.Listener, error) {
	tlsCfg, err := buildTLSConfig(cfg)
	if err != nil {
		return nil, err
	}

	ln, err := activatedListener()
	if err != nil {
		return nil, err
	}
	if ln == nil {
		_ = os.Remove(cfg.System.SocketPath)
		ln, err = net.Listen("unix", cfg.System.SocketPath)
		if err != nil {
			return nil, rpcerr.Internalf(err, "listen on unix socket %q", cfg.System.SocketPath)
		}
	} else {
		logrus.Info("transport: reusing systemd-activated listener")
	}

	return tls.NewListener(ln, tlsCfg), nil
}

// activatedListener returns the listener systemd handed off via
// socket activation, or nil if this process was not activated that
// way. Only the first inherited fd is used; cellsd never expects more
// than one activation socket.
func activatedListener() (net.Listener, error) {
	listeners, err := activation.Listeners()
	if err != nil {
		return nil, rpcerr.Internalf(err, "inspect systemd activation listeners")
	}
	if len(listeners) == 0 || listeners[0] == nil {
		return nil, nil
	}
	return listeners[0], nil
}

func buildTLSConfig(cfg *config.Config) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.Auth.ServerCertPath, cfg.Auth.ServerKeyPath)
	if err != nil {
		return nil, rpcerr.Internalf(err, "load server keypair (%q, %q)", cfg.Auth.ServerCertPath, cfg.Auth.ServerKeyPath)
	}

	caPEM, err := os.ReadFile(cfg.Auth.CACertPath)
	if err != nil {
		return nil, rpcerr.Internalf(err, "read CA certificate %q", cfg.Auth.CACertPath)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, rpcerr.Internalf(nil, "no certificates parsed from CA bundle %q", cfg.Auth.CACertPath)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ServerName:   cfg.System.ServerName,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// DialerConfig builds a client-side tls.Config from nesteddaemon's
// ClientConfig-shaped material, used to dial a cell's nested daemon.
type DialerConfig struct {
	CACertPath     string
	ClientCertPath string
	ClientKeyPath  string
	ServerName     string
}

// Dial connects to a unix socket and performs the mTLS handshake using
// cfg's client material.
func Dial(socketPath string, cfg DialerConfig) (net.Conn, error) {
	cert, err := tls.LoadX509KeyPair(cfg.ClientCertPath, cfg.ClientKeyPath)
	if err != nil {
		return nil, rpcerr.Internalf(err, "load client keypair (%q, %q)", cfg.ClientCertPath, cfg.ClientKeyPath)
	}

	caPEM, err := os.ReadFile(cfg.CACertPath)
	if err != nil {
		return nil, rpcerr.Internalf(err, "read CA certificate %q", cfg.CACertPath)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, rpcerr.Internalf(nil, "no certificates parsed from CA bundle %q", cfg.CACertPath)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		ServerName:   cfg.ServerName,
		MinVersion:   tls.VersionTLS12,
	}

	conn, err := tls.Dial("unix", socketPath, tlsCfg)
	if err != nil {
		return nil, rpcerr.Internalf(err, "dial %q", socketPath)
	}
	return conn, nil
}
