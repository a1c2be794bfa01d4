package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/distsystem/clipshare/internal/core/domain"
	"github.com/distsystem/clipshare/internal/core/service"
)

// handleCreateEntry handles POST /api/entries.
func (h *Handler) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, domain.ErrPayloadTooLarge.Code,
				domain.ErrPayloadTooLarge.WithDetails("limit "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes").Error())
			return
		}
		WriteError(w, http.StatusBadRequest, domain.ErrBadRequest.Code, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.entrySvc.CreateEntry(r.Context(), &service.CreateEntryRequest{
		SourceHost: req.SourceHost,
		Contents:   req.Contents,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	if resp.Duplicate {
		h.writeJSON(w, http.StatusOK, DuplicateResponse{OK: true, Duplicate: true})
		return
	}
	h.writeJSON(w, http.StatusCreated, resp.Entry)
}

// handleListEntries handles GET /api/entries.
func (h *Handler) handleListEntries(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", service.DefaultListLimit)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	entries, err := h.entrySvc.ListEntries(r.Context(), limit, offset)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*domain.Entry{}
	}
	h.writeJSON(w, http.StatusOK, entries)
}

// handleGetEntry handles GET /api/entries/{id}.
func (h *Handler) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.entrySvc.GetEntry(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

// handleDeleteEntry handles DELETE /api/entries/{id}.
func (h *Handler) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.entrySvc.DeleteEntry(r.Context(), r.PathValue("id")); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.ErrInvalidArgument.WithDetails(name + " must be an integer")
	}
	return v, nil
}
