package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/distsystem/clipshare/internal/core/domain"
)

// Pagination limits for ListEntries.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// EntryRepository defines the storage interface for clipboard entries.
type EntryRepository interface {
	// Add stores d or refreshes the entry with identical contents.
	// The bool reports whether the contents were new.
	Add(ctx context.Context, d domain.Draft) (*domain.Entry, bool, error)

	// List returns entries, most recent first.
	List(ctx context.Context, limit, offset int) ([]*domain.Entry, error)

	// Get returns the entry or domain.ErrEntryNotFound.
	Get(ctx context.Context, id string) (*domain.Entry, error)

	// Delete reports whether an entry existed and was removed.
	Delete(ctx context.Context, id string) (bool, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)
}

// Publisher delivers a new entry to connected peers. It never fails from
// the caller's point of view.
type Publisher interface {
	Publish(ctx context.Context, e *domain.Entry)
}

// EntryService handles clipboard entry operations.
type EntryService struct {
	repo   EntryRepository
	pub    Publisher
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an EntryService.
type Option func(*EntryService)

// WithClock overrides the time source used to stamp new drafts.
func WithClock(now func() time.Time) Option {
	return func(s *EntryService) { s.now = now }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *EntryService) { s.logger = l }
}

// NewEntryService creates a new EntryService. pub may be nil.
func NewEntryService(repo EntryRepository, pub Publisher, opts ...Option) *EntryService {
	s := &EntryService{
		repo:   repo,
		pub:    pub,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ============================================================================
// Create
// ============================================================================

// CreateEntryRequest contains a payload submitted by a client.
type CreateEntryRequest struct {
	SourceHost string
	Contents   []domain.MimeContent
}

// CreateEntryResponse contains the result of CreateEntry.
type CreateEntryResponse struct {
	Entry     *domain.Entry
	Duplicate bool
}

// CreateEntry validates and stores a payload. New contents are published
// to every peer except the source host; a refresh of known contents is
// not published.
func (s *EntryService) CreateEntry(ctx context.Context, req *CreateEntryRequest) (*CreateEntryResponse, error) {
	if req == nil {
		return nil, domain.ErrMissingArgument.WithDetails("request body is required")
	}

	draft := domain.Draft{
		SourceHost: req.SourceHost,
		Contents:   domain.CloneContents(req.Contents),
	}
	draft.Normalize(s.now())
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	entry, isNew, err := s.repo.Add(ctx, draft)
	if err != nil {
		s.logger.Error("store entry failed", "source_host", draft.SourceHost, "error", err)
		return nil, err
	}

	if !isNew {
		s.logger.Debug("duplicate entry refreshed", "id", entry.ID, "source_host", entry.SourceHost)
		return &CreateEntryResponse{Entry: entry, Duplicate: true}, nil
	}

	// At capacity, an entry older than every retained row is evicted by its
	// own insert. Peers are only told about entries that are still stored.
	if _, err := s.repo.Get(ctx, entry.ID); errors.Is(err, domain.ErrEntryNotFound) {
		s.logger.Info("entry evicted on insert, not published", "id", entry.ID, "timestamp_ms", entry.TimestampMs)
		return &CreateEntryResponse{Entry: entry}, nil
	}

	s.logger.Info("entry created", "id", entry.ID, "source_host", entry.SourceHost, "contents", len(entry.Contents))
	if s.pub != nil {
		s.pub.Publish(ctx, entry.Clone())
	}
	return &CreateEntryResponse{Entry: entry}, nil
}

// ============================================================================
// Read / Delete
// ============================================================================

// ListEntries returns a page of entries. A zero limit yields an empty page;
// callers that omit the limit pass DefaultListLimit.
func (s *EntryService) ListEntries(ctx context.Context, limit, offset int) ([]*domain.Entry, error) {
	if limit < 0 || limit > MaxListLimit {
		return nil, domain.ErrInvalidArgument.WithDetails("limit must be between 0 and 500")
	}
	if offset < 0 {
		return nil, domain.ErrInvalidArgument.WithDetails("offset must be non-negative")
	}
	return s.repo.List(ctx, limit, offset)
}

// GetEntry returns a single entry.
func (s *EntryService) GetEntry(ctx context.Context, id string) (*domain.Entry, error) {
	if id == "" {
		return nil, domain.ErrMissingArgument.WithDetails("id is required")
	}
	return s.repo.Get(ctx, id)
}

// DeleteEntry removes an entry. Returns domain.ErrEntryNotFound when no
// entry had the id.
func (s *EntryService) DeleteEntry(ctx context.Context, id string) error {
	if id == "" {
		return domain.ErrMissingArgument.WithDetails("id is required")
	}
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		s.logger.Error("delete entry failed", "id", id, "error", err)
		return err
	}
	if !ok {
		return domain.ErrEntryNotFound.WithDetails(id)
	}
	s.logger.Info("entry deleted", "id", id)
	return nil
}

// CountEntries returns the number of stored entries.
func (s *EntryService) CountEntries(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
