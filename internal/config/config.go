// Package config loads the daemon's on-disk TOML configuration.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/cellsys/cellsd/internal/rpcerr"
)

// DefaultSocketPath is used when no socket path is configured.
const DefaultSocketPath = "/var/run/cellsd/cellsd.sock"

// DefaultServerName is the SNI/CN the server certificate is expected to
// carry when none is configured.
const DefaultServerName = "server.unsafe.cellsd.io"

// Auth carries the mTLS material paths.
type Auth struct {
	CACertPath     string `toml:"ca_crt"`
	ServerCertPath string `toml:"server_crt"`
	ServerKeyPath  string `toml:"server_key"`
}

// System carries daemon-wide settings.
type System struct {
	SocketPath string `toml:"socket"`
	ServerName string `toml:"server_name"`
	BinaryPath string `toml:"binary_path"`
	SocketDir  string `toml:"nested_socket_dir"`
}

// Config is the decoded [auth]/[system] TOML document.
type Config struct {
	Auth   Auth   `toml:"auth"`
	System System `toml:"system"`
}

// defaultSearchPaths is consulted, in order, when Load is called with no
// explicit paths. The first file that exists wins.
func defaultSearchPaths() []string {
	paths := []string{"/etc/cellsd/config", "/var/lib/cellsd/config"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append([]string{filepath.Join(home, ".cellsd", "config")}, paths...)
	}
	return paths
}

// Load decodes the first existing file among searchPaths (or
// defaultSearchPaths() when none are given), applying documented
// defaults for any unset field.
func Load(searchPaths ...string) (*Config, error) {
	if len(searchPaths) == 0 {
		searchPaths = defaultSearchPaths()
	}

	var path string
	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			path = p
			break
		}
	}

	cfg := &Config{}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, rpcerr.Internalf(err, "decode config file %q", path)
		}
	}

	if cfg.System.SocketPath == "" {
		cfg.System.SocketPath = DefaultSocketPath
	}
	if cfg.System.ServerName == "" {
		cfg.System.ServerName = DefaultServerName
	}
	if cfg.System.SocketDir == "" {
		cfg.System.SocketDir = filepath.Dir(cfg.System.SocketPath)
	}
	if cfg.System.BinaryPath == "" {
		if exe, err := os.Executable(); err == nil {
			cfg.System.BinaryPath = exe
		}
	}
	return cfg, nil
}
