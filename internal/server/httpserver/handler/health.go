package handler

import "net/http"

// handleHealth handles GET /health. A failing store reports "degraded"
// with status 503.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Version: h.version}
	status := http.StatusOK

	n, err := h.entrySvc.CountEntries(r.Context())
	if err != nil {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	resp.Entries = n
	if h.peers != nil {
		resp.Peers = h.peers.Count()
	}

	h.writeJSON(w, status, resp)
}
