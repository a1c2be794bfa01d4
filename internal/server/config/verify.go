package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/distsystem/clipshare/internal/telemetry/logger"
)

// Verify validates the configuration and creates data directories.
func Verify(cfg *ServerConfig) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyDiscovery(&cfg.Discovery); err != nil {
		return err
	}
	if err := verifyPeers(&cfg.Peers); err != nil {
		return err
	}
	if err := verifyHTTP(&cfg.HTTP); err != nil {
		return err
	}
	if err := verifyLog(&cfg.Log); err != nil {
		return err
	}
	if cfg.Shutdown.Timeout <= 0 {
		return errors.New("shutdown.timeout must be positive")
	}
	return nil
}

func verifyServer(cfg *ServerSection) error {
	if cfg.Host != "" && net.ParseIP(cfg.Host) == nil && cfg.Host != "localhost" {
		return fmt.Errorf("server.host %q is not an IP address", cfg.Host)
	}
	if !validPort(cfg.Port) {
		return fmt.Errorf("server.port %d out of range 1-65535", cfg.Port)
	}
	if cfg.MaxEntries < 1 {
		return errors.New("server.max_entries must be at least 1")
	}
	if cfg.DBPath == "" {
		return errors.New("server.db_path is required")
	}
	if err := os.MkdirAll(cfg.DBPath, 0750); err != nil {
		return errors.New("cannot create database directory: " + err.Error())
	}
	if cfg.TLS {
		if cfg.CertDir == "" {
			return errors.New("server.cert_dir is required when tls is enabled")
		}
		if err := os.MkdirAll(cfg.CertDir, 0750); err != nil {
			return errors.New("cannot create certificate directory: " + err.Error())
		}
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	switch cfg.GCInterval {
	case "", "0":
		return nil
	}
	d, err := time.ParseDuration(cfg.GCInterval)
	if err != nil || d < 0 {
		return fmt.Errorf("storage.gc_interval %q is not a valid duration", cfg.GCInterval)
	}
	return nil
}

func verifyDiscovery(cfg *DiscoverySection) error {
	if !cfg.Enabled {
		return nil
	}
	if !validPort(cfg.Port) {
		return fmt.Errorf("discovery.port %d out of range 1-65535", cfg.Port)
	}
	if cfg.Interval <= 0 {
		return errors.New("discovery.interval must be positive")
	}
	return nil
}

func verifyPeers(cfg *PeersSection) error {
	if cfg.QueueSize < 1 {
		return errors.New("peers.queue_size must be at least 1")
	}
	if cfg.WriteTimeout <= 0 {
		return errors.New("peers.write_timeout must be positive")
	}
	if cfg.PingInterval <= 0 {
		return errors.New("peers.ping_interval must be positive")
	}
	return nil
}

func verifyHTTP(cfg *HTTPSection) error {
	if cfg.MaxBodyBytes < 1 {
		return errors.New("http.max_body_bytes must be positive")
	}
	if cfg.RateLimit < 0 {
		return errors.New("http.rate_limit must not be negative")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return errors.New("http.read_header_timeout must be positive")
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if cfg.Level != "" {
		if _, err := logger.ParseLevel(cfg.Level); err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
	}
	switch strings.ToLower(cfg.Format) {
	case "", "json", "text":
		return nil
	default:
		return fmt.Errorf("log.format %q must be json or text", cfg.Format)
	}
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}
