package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/distsystem/clipshare/internal/core/domain"
	"github.com/distsystem/clipshare/internal/core/service"
)

// mockEntryRepo implements service.EntryRepository for testing.
type mockEntryRepo struct {
	mu      sync.Mutex
	entries map[string]*domain.Entry
	byHash  map[string]string
	nextID  int
	failErr error
}

func newMockEntryRepo() *mockEntryRepo {
	return &mockEntryRepo{
		entries: make(map[string]*domain.Entry),
		byHash:  make(map[string]string),
	}
}

func contentsKey(cs []domain.MimeContent) string {
	var b strings.Builder
	for _, c := range cs {
		fmt.Fprintf(&b, "%d:%s%d:%s", len(c.MimeType), c.MimeType, len(c.Data), c.Data)
	}
	return b.String()
}

func (r *mockEntryRepo) Add(_ context.Context, d domain.Draft) (*domain.Entry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return nil, false, r.failErr
	}

	key := contentsKey(d.Contents)
	if id, ok := r.byHash[key]; ok {
		e := r.entries[id]
		e.TimestampMs = d.TimestampMs
		e.SourceHost = d.SourceHost
		return e.Clone(), false, nil
	}

	r.nextID++
	e := &domain.Entry{
		ID:          fmt.Sprintf("id-%03d", r.nextID),
		SourceHost:  d.SourceHost,
		TimestampMs: d.TimestampMs,
		Contents:    domain.CloneContents(d.Contents),
		TextPreview: domain.BuildPreview(d.Contents),
	}
	r.entries[e.ID] = e
	r.byHash[key] = e.ID
	return e.Clone(), true, nil
}

func (r *mockEntryRepo) List(_ context.Context, limit, offset int) ([]*domain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return nil, r.failErr
	}

	all := make([]*domain.Entry, 0, len(r.entries))
	for _, e := range r.entries {
		all = append(all, e.Clone())
	}
	sort.Slice(all, func(i, j int) bool { return all[i].TimestampMs > all[j].TimestampMs })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *mockEntryRepo) Get(_ context.Context, id string) (*domain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e.Clone(), nil
	}
	return nil, domain.ErrEntryNotFound.WithDetails(id)
}

func (r *mockEntryRepo) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false, nil
	}
	delete(r.entries, id)
	delete(r.byHash, contentsKey(e.Contents))
	return true, nil
}

func (r *mockEntryRepo) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return 0, r.failErr
	}
	return len(r.entries), nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	entries []*domain.Entry
}

func (p *recordingPublisher) Publish(_ context.Context, e *domain.Entry) {
	p.mu.Lock()
	p.entries = append(p.entries, e)
	p.mu.Unlock()
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

type fixedPeers int

func (n fixedPeers) Count() int { return int(n) }

type testEnv struct {
	handler *Handler
	repo    *mockEntryRepo
	pub     *recordingPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := newMockEntryRepo()
	pub := &recordingPublisher{}

	ts := int64(1_700_000_000_000)
	clock := func() time.Time {
		ts += 1000
		return time.UnixMilli(ts)
	}

	svc := service.NewEntryService(repo, pub, service.WithClock(clock), service.WithLogger(slog.Default()))
	return &testEnv{
		handler: New(svc, fixedPeers(2), "v1.2.3", slog.Default()),
		repo:    repo,
		pub:     pub,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

const helloBody = `{"source_host":"laptop","contents":[{"mime_type":"text/plain","data":"hello"}]}`

func TestCreateEntry(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/entries", helloBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	entry := decode[domain.Entry](t, rec)
	if entry.ID == "" || entry.SourceHost != "laptop" || entry.TextPreview != "hello" {
		t.Errorf("entry = %+v", entry)
	}
	if len(entry.Contents) != 1 || entry.Contents[0].Data != "hello" {
		t.Errorf("contents = %+v", entry.Contents)
	}
	if strings.Contains(rec.Body.String(), "hash") {
		t.Errorf("response leaks content hash: %s", rec.Body.String())
	}
	if env.pub.count() != 1 {
		t.Errorf("published = %d, want 1", env.pub.count())
	}
}

func TestCreateEntry_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/entries", helloBody)

	rec := env.do(t, http.MethodPost, "/api/entries",
		`{"source_host":"desktop","contents":[{"mime_type":"text/plain","data":"hello"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decode[DuplicateResponse](t, rec)
	if !resp.OK || !resp.Duplicate {
		t.Errorf("response = %+v, want ok duplicate", resp)
	}
	if env.pub.count() != 1 {
		t.Errorf("published = %d, want 1 (refresh is not fanned out)", env.pub.count())
	}

	list := decode[[]domain.Entry](t, env.do(t, http.MethodGet, "/api/entries", ""))
	if len(list) != 1 || list[0].SourceHost != "desktop" {
		t.Errorf("list = %+v, want one entry refreshed to desktop", list)
	}
}

func TestCreateEntry_DefaultHost(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/entries", `{"contents":[{"mime_type":"image/png","data":"iVBORw0KGgo="}]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	entry := decode[domain.Entry](t, rec)
	if entry.SourceHost != domain.UnknownHost {
		t.Errorf("SourceHost = %q, want %q", entry.SourceHost, domain.UnknownHost)
	}
	if entry.TextPreview != "" {
		t.Errorf("TextPreview = %q, want empty", entry.TextPreview)
	}
}

func TestCreateEntry_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"malformed json", `{"contents":`, domain.ErrBadRequest.Code},
		{"empty contents", `{"source_host":"a","contents":[]}`, domain.ErrEntryValidation.Code},
		{"missing contents", `{"source_host":"a"}`, domain.ErrEntryValidation.Code},
		{"bad mime type", `{"contents":[{"mime_type":"text","data":"x"}]}`, domain.ErrEntryValidation.Code},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(t, http.MethodPost, "/api/entries", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if got := rec.Header().Get("X-Error-Code"); got != tt.wantCode {
				t.Errorf("X-Error-Code = %q, want %q", got, tt.wantCode)
			}
			resp := decode[ErrorResponse](t, rec)
			if resp.Code != tt.wantCode || resp.Message == "" {
				t.Errorf("error body = %+v", resp)
			}
			if env.pub.count() != 0 {
				t.Error("rejected payload was published")
			}
		})
	}
}

func TestCreateEntry_TooLarge(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/entries", strings.NewReader(helloBody))
	rec := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(rec, req.Body, 10)
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
	if got := rec.Header().Get("X-Error-Code"); got != domain.ErrPayloadTooLarge.Code {
		t.Errorf("X-Error-Code = %q", got)
	}
}

func TestListEntries(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		body := fmt.Sprintf(`{"source_host":"h","contents":[{"mime_type":"text/plain","data":"item-%d"}]}`, i)
		if rec := env.do(t, http.MethodPost, "/api/entries", body); rec.Code != http.StatusCreated {
			t.Fatalf("create %d: status %d", i, rec.Code)
		}
	}

	t.Run("newest first", func(t *testing.T) {
		list := decode[[]domain.Entry](t, env.do(t, http.MethodGet, "/api/entries", ""))
		if len(list) != 5 {
			t.Fatalf("len = %d, want 5", len(list))
		}
		if list[0].TextPreview != "item-4" || list[4].TextPreview != "item-0" {
			t.Errorf("order = %s .. %s", list[0].TextPreview, list[4].TextPreview)
		}
	})

	t.Run("pagination", func(t *testing.T) {
		page := decode[[]domain.Entry](t, env.do(t, http.MethodGet, "/api/entries?limit=2&offset=1", ""))
		if len(page) != 2 || page[0].TextPreview != "item-3" || page[1].TextPreview != "item-2" {
			t.Errorf("page = %+v", page)
		}
	})

	t.Run("zero limit is empty array", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/entries?limit=0", "")
		if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
			t.Errorf("status = %d, body = %q, want 200 []", rec.Code, rec.Body.String())
		}
	})

	t.Run("past the end is empty array", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/entries?offset=50", "")
		if strings.TrimSpace(rec.Body.String()) != "[]" {
			t.Errorf("body = %q, want []", rec.Body.String())
		}
	})

	for _, q := range []string{"limit=-1", "offset=-3", "limit=abc", "offset=1.5", "limit=501"} {
		t.Run("invalid "+q, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/entries?"+q, "")
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if got := rec.Header().Get("X-Error-Code"); got != domain.ErrInvalidArgument.Code {
				t.Errorf("X-Error-Code = %q, want %q", got, domain.ErrInvalidArgument.Code)
			}
		})
	}
}

func TestGetAndDeleteEntry(t *testing.T) {
	env := newTestEnv(t)
	created := decode[domain.Entry](t, env.do(t, http.MethodPost, "/api/entries", helloBody))

	rec := env.do(t, http.MethodGet, "/api/entries/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if got := decode[domain.Entry](t, rec); got.ID != created.ID {
		t.Errorf("get id = %q, want %q", got.ID, created.ID)
	}

	rec = env.do(t, http.MethodDelete, "/api/entries/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if resp := decode[OKResponse](t, rec); !resp.OK {
		t.Errorf("delete response = %+v", resp)
	}

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec := env.do(t, method, "/api/entries/"+created.ID, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s after delete: status = %d, want 404", method, rec.Code)
		}
		if got := rec.Header().Get("X-Error-Code"); got != domain.ErrEntryNotFound.Code {
			t.Errorf("%s after delete: X-Error-Code = %q", method, got)
		}
	}
}

func TestStorageFailure(t *testing.T) {
	env := newTestEnv(t)
	env.repo.failErr = domain.ErrStorage.WithCause(errors.New("disk on fire"))

	rec := env.do(t, http.MethodPost, "/api/entries", helloBody)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "disk on fire") {
		t.Errorf("response leaks storage cause: %s", rec.Body.String())
	}
	if got := rec.Header().Get("X-Error-Code"); got != domain.ErrStorage.Code {
		t.Errorf("X-Error-Code = %q, want %q", got, domain.ErrStorage.Code)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/entries", helloBody)

	rec := env.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[HealthResponse](t, rec)
	want := HealthResponse{Status: "healthy", Entries: 1, Peers: 2, Version: "v1.2.3"}
	if resp != want {
		t.Errorf("health = %+v, want %+v", resp, want)
	}

	env.repo.failErr = errors.New("closed")
	rec = env.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded status = %d, want 503", rec.Code)
	}
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{"CS-ENTRY-4040", http.StatusNotFound},
		{"CS-ENTRY-4001", http.StatusBadRequest},
		{"CS-ARG-4000", http.StatusBadRequest},
		{"CS-ARG-4001", http.StatusBadRequest},
		{"CS-SYS-4000", http.StatusBadRequest},
		{"CS-SYS-4130", http.StatusRequestEntityTooLarge},
		{"CS-SYS-4290", http.StatusTooManyRequests},
		{"CS-PEER-4090", http.StatusConflict},
		{"CS-STOR-5030", http.StatusServiceUnavailable},
		{"CS-STOR-5000", http.StatusInternalServerError},
		{"CS-SYS-5000", http.StatusInternalServerError},
		{"UNKNOWN", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := ErrorCodeToHTTPStatus(tt.code); got != tt.want {
			t.Errorf("ErrorCodeToHTTPStatus(%q) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
