package config

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// AppName names the per-user configuration and data directories.
const AppName = "clipshare"

// Default configuration values.
const (
	DefaultHost       = "0.0.0.0"
	DefaultPort       = 4243
	DefaultMaxEntries = 100

	DefaultGCInterval = "10m"

	DefaultDiscoveryPort     = 4243
	DefaultDiscoveryInterval = 5 * time.Second

	DefaultQueueSize    = 64
	DefaultWriteTimeout = 5 * time.Second
	DefaultPingInterval = 30 * time.Second

	DefaultMaxBodyBytes      = 16 << 20
	DefaultRateLimit         = 50
	DefaultReadHeaderTimeout = 10 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultShutdownTimeout = 10 * time.Second
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	dataDir := DataDir()
	return &ServerConfig{
		Server: ServerSection{
			Host:       DefaultHost,
			Port:       DefaultPort,
			MaxEntries: DefaultMaxEntries,
			DBPath:     filepath.Join(dataDir, "entries.db"),
			CertDir:    dataDir,
			TLS:        true,
		},
		Storage: StorageSection{
			SyncWrites: true,
			GCInterval: DefaultGCInterval,
		},
		Discovery: DiscoverySection{
			Enabled:  true,
			Port:     DefaultDiscoveryPort,
			Interval: DefaultDiscoveryInterval,
		},
		Peers: PeersSection{
			QueueSize:    DefaultQueueSize,
			WriteTimeout: DefaultWriteTimeout,
			PingInterval: DefaultPingInterval,
		},
		HTTP: HTTPSection{
			MaxBodyBytes:      DefaultMaxBodyBytes,
			RateLimit:         DefaultRateLimit,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Shutdown: ShutdownSection{
			Timeout: DefaultShutdownTimeout,
		},
	}
}

// ConfigDir returns the per-user configuration directory,
// $XDG_CONFIG_HOME/clipshare on Linux.
func ConfigDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", AppName)
	}
	return filepath.Join(base, AppName)
}

// DefaultConfigFile is config.toml inside ConfigDir.
func DefaultConfigFile() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// DataDir returns the per-user data directory, $XDG_DATA_HOME/clipshare
// or ~/.local/share/clipshare.
func DataDir() string {
	if x := os.Getenv("XDG_DATA_HOME"); x != "" {
		return filepath.Join(x, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", AppName)
	}
	return filepath.Join(home, ".local", "share", AppName)
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
