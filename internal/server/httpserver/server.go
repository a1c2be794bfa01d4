package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// DefaultReadHeaderTimeout bounds how long a client may take to send headers.
const DefaultReadHeaderTimeout = 10 * time.Second

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address (host:port).
	Addr string

	// Handler serves every request, normally the result of NewRouter.
	Handler http.Handler

	// TLSConfig enables HTTPS when non-nil. Certificates come from
	// GetCertificate so they can be rotated without a restart.
	TLSConfig *tls.Config

	// ReadHeaderTimeout defaults to DefaultReadHeaderTimeout.
	ReadHeaderTimeout time.Duration

	Logger *slog.Logger
}

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	tls        bool
	logger     *slog.Logger
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           cfg.Handler,
			TLSConfig:         cfg.TLSConfig,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			ErrorLog:          slog.NewLogLogger(cfg.Logger.Handler(), slog.LevelWarn),
		},
		tls:    cfg.TLSConfig != nil,
		logger: cfg.Logger.With("component", "http"),
	}
}

// Listen binds the listen address so bind errors surface before Serve.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Serve accepts connections until Shutdown. It returns nil after a
// graceful shutdown.
func (s *Server) Serve() error {
	if err := s.Listen(); err != nil {
		return err
	}

	scheme := "http"
	if s.tls {
		scheme = "https"
	}
	s.logger.Info("http server listening", "addr", s.Addr(), "scheme", scheme)

	var err error
	if s.tls {
		// Certificates are supplied by TLSConfig.GetCertificate.
		err = s.httpServer.ServeTLS(s.listener, "", "")
	} else {
		err = s.httpServer.Serve(s.listener)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
