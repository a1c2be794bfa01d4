package config

import "time"

// ServerConfig is the root configuration for clipshare server.
type ServerConfig struct {
	Server    ServerSection    `koanf:"server"`
	Storage   StorageSection   `koanf:"storage"`
	Discovery DiscoverySection `koanf:"discovery"`
	Peers     PeersSection     `koanf:"peers"`
	HTTP      HTTPSection      `koanf:"http"`
	Log       LogSection       `koanf:"log"`
	Shutdown  ShutdownSection  `koanf:"shutdown"`
}

// ServerSection configures the listener and the entry store.
type ServerSection struct {
	// Host is the bind address.
	Host string `koanf:"host"`

	// Port is both the bind port and the advertised port.
	Port int `koanf:"port"`

	// MaxEntries caps the number of stored entries.
	MaxEntries int `koanf:"max_entries"`

	// DBPath is the Badger directory.
	DBPath string `koanf:"db_path"`

	// CertDir holds cert.pem and key.pem.
	CertDir string `koanf:"cert_dir"`

	// TLS serves HTTPS with a self-signed certificate. When false the
	// server speaks plain HTTP and advertises "http".
	TLS bool `koanf:"tls"`
}

// StorageSection tunes the Badger engine.
type StorageSection struct {
	SyncWrites bool   `koanf:"sync_writes"`
	GCInterval string `koanf:"gc_interval"`
}

// DiscoverySection configures the LAN advertiser.
type DiscoverySection struct {
	Enabled  bool          `koanf:"enabled"`
	Port     int           `koanf:"port"`
	Interval time.Duration `koanf:"interval"`
}

// PeersSection configures push channels.
type PeersSection struct {
	QueueSize    int           `koanf:"queue_size"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	PingInterval time.Duration `koanf:"ping_interval"`
}

// HTTPSection configures request handling limits.
type HTTPSection struct {
	MaxBodyBytes      int64         `koanf:"max_body_bytes"`
	RateLimit         float64       `koanf:"rate_limit"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ShutdownSection configures graceful shutdown.
type ShutdownSection struct {
	Timeout time.Duration `koanf:"timeout"`
}

// Addr returns host:port for the listener.
func (s ServerSection) Addr() string {
	return joinHostPort(s.Host, s.Port)
}

// Protocol returns the advertised scheme.
func (s ServerSection) Protocol() string {
	if s.TLS {
		return "https"
	}
	return "http"
}
