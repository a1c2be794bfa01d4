package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/distsystem/clipshare/internal/core/domain"
	"github.com/distsystem/clipshare/internal/core/service"
	"github.com/distsystem/clipshare/internal/server/peerserver"
	"github.com/distsystem/clipshare/internal/storage"
	"github.com/distsystem/clipshare/internal/telemetry/metric"
)

type testStack struct {
	server  *httptest.Server
	peers   *peerserver.Registry
	metrics *metric.Registry
}

func newTestStack(t *testing.T, rps float64) *testStack {
	t.Helper()
	log := discardLogger()

	engine, err := storage.NewBadgerEngine(storage.KVConfig{
		InMemory: true,
		Badger:   storage.DefaultBadgerConfig(),
	}, log)
	if err != nil {
		t.Fatalf("NewBadgerEngine() error = %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	store, err := storage.NewEntryStore(engine, storage.StoreConfig{MaxEntries: 10}, log)
	if err != nil {
		t.Fatalf("NewEntryStore() error = %v", err)
	}

	m := metric.NewRegistry()
	peers := peerserver.NewRegistry(log, m)
	svc := service.NewEntryService(store, peerserver.NewBroadcaster(peers, log, m), service.WithLogger(log))

	router := NewRouter(&RouterConfig{
		EntryService: svc,
		Peers:        peers,
		PeerHandler:  peerserver.NewHandler(peers, peerserver.DefaultConfig(), log),
		Metrics:      m,
		Version:      "test",
		Logger:       log,
		RateLimit:    rps,
		MaxBodyBytes: 64 << 10,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		peers.CloseAll("test done")
		srv.Close()
	})
	return &testStack{server: srv, peers: peers, metrics: m}
}

func (s *testStack) post(t *testing.T, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(s.server.URL+"/api/entries", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRouter_EntryRoundTrip(t *testing.T) {
	s := newTestStack(t, 0)

	resp := s.post(t, `{"source_host":"laptop","contents":[{"mime_type":"text/plain","data":"hello"}]}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
	var created domain.Entry
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	get, err := http.Get(s.server.URL + "/api/entries/" + created.ID)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer get.Body.Close()
	if get.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want 200", get.StatusCode)
	}

	again := s.post(t, `{"source_host":"desktop","contents":[{"mime_type":"text/plain","data":"hello"}]}`)
	if again.StatusCode != http.StatusOK {
		t.Errorf("duplicate status = %d, want 200", again.StatusCode)
	}
}

func TestRouter_BodyTooLarge(t *testing.T) {
	s := newTestStack(t, 0)
	big := `{"source_host":"h","contents":[{"mime_type":"text/plain","data":"` + strings.Repeat("a", 128<<10) + `"}]}`

	resp := s.post(t, big)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Error-Code"); got != "CS-SYS-4130" {
		t.Errorf("X-Error-Code = %q, want CS-SYS-4130", got)
	}
}

func TestRouter_RateLimited(t *testing.T) {
	s := newTestStack(t, 1)

	first, err := http.Get(s.server.URL + "/health")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	first.Body.Close()

	second, err := http.Get(s.server.URL + "/health")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	second.Body.Close()
	if second.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", second.StatusCode)
	}
}

func TestRouter_RootRedirectAndStatic(t *testing.T) {
	s := newTestStack(t, 0)
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	resp, err := client.Get(s.server.URL + "/")
	if err != nil {
		t.Fatalf("GET / error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want 302", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/static/index.html" {
		t.Errorf("Location = %q", loc)
	}

	page, err := http.Get(s.server.URL + "/static/index.html")
	if err != nil {
		t.Fatalf("GET static error = %v", err)
	}
	defer page.Body.Close()
	body, _ := io.ReadAll(page.Body)
	if page.StatusCode != http.StatusOK || !strings.Contains(string(body), "<title>clipshare</title>") {
		t.Errorf("static page status = %d", page.StatusCode)
	}

	missing, err := http.Get(s.server.URL + "/nope")
	if err != nil {
		t.Fatalf("GET /nope error = %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", missing.StatusCode)
	}
}

func TestRouter_Metrics(t *testing.T) {
	s := newTestStack(t, 0)
	s.post(t, `{"source_host":"h","contents":[{"mime_type":"text/plain","data":"x"}]}`)

	resp, err := http.Get(s.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `route="POST /api/entries"`) {
		t.Errorf("metrics missing POST /api/entries route sample:\n%s", body)
	}
}

func TestRouter_PeerChannelThroughMiddleware(t *testing.T) {
	s := newTestStack(t, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws?host=phone"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.CloseNow()

	deadline := time.Now().Add(2 * time.Second)
	for s.peers.Count() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("peer channel never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.post(t, `{"source_host":"laptop","contents":[{"mime_type":"text/plain","data":"pushed"}]}`)

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	var msg domain.PeerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if msg.Type != domain.MessageTypeNewEntry || msg.Entry == nil || msg.Entry.TextPreview != "pushed" {
		t.Errorf("frame = %s", data)
	}
}

func TestServer_ListenServeShutdown(t *testing.T) {
	srv := New(Config{
		Addr:    "127.0.0.1:0",
		Handler: okHandler(),
		Logger:  discardLogger(),
	})
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	resp, err := http.Get("http://" + srv.Addr() + "/")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("Serve() after shutdown = %v, want nil", err)
	}
}

func TestServer_ListenError(t *testing.T) {
	first := New(Config{Addr: "127.0.0.1:0", Handler: okHandler(), Logger: discardLogger()})
	if err := first.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer first.Shutdown(context.Background())

	second := New(Config{Addr: first.Addr(), Handler: okHandler(), Logger: discardLogger()})
	if err := second.Listen(); err == nil {
		t.Error("Listen() on a bound port succeeded")
	}
}
