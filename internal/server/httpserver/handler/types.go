package handler

import "github.com/distsystem/clipshare/internal/core/domain"

// CreateEntryRequest is the request body for POST /api/entries.
type CreateEntryRequest struct {
	SourceHost string               `json:"source_host"`
	Contents   []domain.MimeContent `json:"contents"`
}

// DuplicateResponse is returned when POST /api/entries matched stored contents.
type DuplicateResponse struct {
	OK        bool `json:"ok"`
	Duplicate bool `json:"duplicate"`
}

// OKResponse acknowledges a mutation.
type OKResponse struct {
	OK bool `json:"ok"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Entries int    `json:"entries"`
	Peers   int    `json:"peers"`
	Version string `json:"version"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
