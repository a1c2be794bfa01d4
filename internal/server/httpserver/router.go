package httpserver

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/distsystem/clipshare/internal/core/service"
	"github.com/distsystem/clipshare/internal/server/httpserver/handler"
	"github.com/distsystem/clipshare/internal/telemetry/metric"
)

//go:embed static
var staticFiles embed.FS

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// EntryService handles entry operations.
	EntryService *service.EntryService

	// Peers reports the live peer channel count for /health.
	Peers handler.PeerCounter

	// PeerHandler serves /ws. Nil leaves the route unregistered.
	PeerHandler http.Handler

	// Metrics backs /metrics and request instrumentation. Optional.
	Metrics *metric.Registry

	Version string
	Logger  *slog.Logger

	// RateLimit is requests/second per client IP (0 = unlimited).
	RateLimit float64

	// MaxBodyBytes caps request bodies (0 = unlimited).
	MaxBodyBytes int64
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := handler.New(cfg.EntryService, cfg.Peers, cfg.Version, logger)

	mux := http.NewServeMux()
	// API routes are mounted individually so request metrics carry the
	// matched pattern.
	for _, pattern := range handler.Routes() {
		mux.Handle(pattern, h)
	}

	if cfg.PeerHandler != nil {
		mux.Handle("GET /ws", cfg.PeerHandler)
	}
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics.Handler())
	}

	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/static/index.html", http.StatusFound)
	})

	// Order: Recover -> RequestID -> Audit -> RateLimit -> BodyLimit -> Instrument -> mux
	return Chain(mux,
		Recover(logger),
		RequestID(),
		Audit(logger),
		RateLimit(cfg.RateLimit),
		BodyLimit(cfg.MaxBodyBytes),
		Instrument(cfg.Metrics),
	)
}
