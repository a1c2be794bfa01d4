package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/distsystem/clipshare/internal/core/domain"
	"github.com/distsystem/clipshare/internal/core/service"
	"github.com/distsystem/clipshare/internal/telemetry/logger"
)

// PeerCounter reports the number of live peer channels.
type PeerCounter interface {
	Count() int
}

// Handler is the main HTTP handler that routes requests to appropriate handlers.
type Handler struct {
	entrySvc *service.EntryService
	peers    PeerCounter
	version  string
	logger   *slog.Logger
	mux      *http.ServeMux
}

// New creates a new Handler with the given services. peers may be nil.
func New(entrySvc *service.EntryService, peers PeerCounter, version string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		entrySvc: entrySvc,
		peers:    peers,
		version:  version,
		logger:   logger,
		mux:      http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// registerRoutes registers all HTTP routes.
func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)

	h.mux.HandleFunc("POST /api/entries", h.handleCreateEntry)
	h.mux.HandleFunc("GET /api/entries", h.handleListEntries)
	h.mux.HandleFunc("GET /api/entries/{id}", h.handleGetEntry)
	h.mux.HandleFunc("DELETE /api/entries/{id}", h.handleDeleteEntry)
}

// Routes lists the patterns served by Handler, for mounting on an outer mux.
func Routes() []string {
	return []string{
		"GET /health",
		"POST /api/entries",
		"GET /api/entries",
		"GET /api/entries/{id}",
		"DELETE /api/entries/{id}",
	}
}

// writeJSON writes v as the response body.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// WriteError writes an error response. Middleware uses it too, so every
// error body has the same shape.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Code: code, Message: message})
}

// handleServiceError converts service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.DomainError
	if errors.As(err, &de) {
		status := ErrorCodeToHTTPStatus(de.Code)
		if status >= http.StatusInternalServerError {
			logger.L(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
			// Storage internals stay in the log.
			WriteError(w, status, de.Code, de.Message)
			return
		}
		WriteError(w, status, de.Code, de.Error())
		return
	}

	logger.L(r.Context()).Error("internal error", "path", r.URL.Path, "error", err)
	WriteError(w, http.StatusInternalServerError, domain.ErrInternalServer.Code, "internal server error")
}

// ErrorCodeToHTTPStatus maps error codes to HTTP status codes. The status
// is embedded in the code: CS-<AREA>-<status><seq>.
func ErrorCodeToHTTPStatus(code string) int {
	switch {
	case strings.HasSuffix(code, "-4040"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4090"):
		return http.StatusConflict
	case strings.HasSuffix(code, "-4130"):
		return http.StatusRequestEntityTooLarge
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	case strings.HasSuffix(code, "-5030"):
		return http.StatusServiceUnavailable
	case strings.HasPrefix(code, "CS-ARG-"):
		return http.StatusBadRequest
	case strings.HasSuffix(code, "-4000"), strings.HasSuffix(code, "-4001"):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
