package peerserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/distsystem/clipshare/internal/core/domain"
)

// Config configures peer channel endpoints.
type Config struct {
	// QueueSize bounds frames buffered per channel.
	QueueSize int

	// WriteTimeout bounds a single frame write or ping.
	WriteTimeout time.Duration

	// PingInterval is the keepalive period. Zero disables pings.
	PingInterval time.Duration

	// OriginPatterns are extra browser origins allowed to connect.
	// Same-origin and non-browser clients are always accepted.
	OriginPatterns []string
}

// DefaultConfig returns the default peer channel configuration.
func DefaultConfig() Config {
	return Config{
		QueueSize:    64,
		WriteTimeout: 5 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

// Handler upgrades /ws requests into registered peer channels.
type Handler struct {
	registry *Registry
	cfg      Config
	logger   *slog.Logger
}

// NewHandler creates the WebSocket endpoint handler.
func NewHandler(registry *Registry, cfg Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	return &Handler{
		registry: registry,
		cfg:      cfg,
		logger:   logger.With("component", "peer_endpoint"),
	}
}

// ServeHTTP implements http.Handler. It blocks for the life of the channel.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	if host == "" {
		host = domain.UnknownHost
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.OriginPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "host", host, "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.CloseNow()

	id := uuid.NewString()
	sender := newWSSender(conn, h.cfg.QueueSize)
	if _, err := h.registry.Register(id, host, sender); err != nil {
		h.logger.Error("register peer failed", "host", host, "error", err)
		conn.Close(websocket.StatusInternalError, "register failed")
		return
	}
	defer h.registry.Unregister(id)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		if err := sender.run(ctx, h.cfg.WriteTimeout, h.cfg.PingInterval); err != nil && ctx.Err() == nil {
			h.logger.Debug("peer writer stopped", "connection_id", id, "error", err)
		}
	}()

	h.readLoop(ctx, conn, id)

	cancel()
	<-writerDone
}

// readLoop discards inbound frames until the connection fails. Reading is
// required for control frames (pong, close) to be processed.
func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, id string) {
	for {
		_, _, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				h.logger.Debug("peer closed channel", "connection_id", id, "status", status)
			} else if ctx.Err() == nil {
				h.logger.Debug("peer read failed", "connection_id", id, "error", err)
			}
			return
		}
	}
}
