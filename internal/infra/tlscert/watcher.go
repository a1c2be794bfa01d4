package tlscert

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultQuietPeriod is how long the directory must stay unchanged after
// the last write before the pair is reloaded.
const DefaultQuietPeriod = 500 * time.Millisecond

// Watcher serves the cert.pem/key.pem pair of a certificate directory and
// reloads it once writes to either file have settled. A pair that fails
// to load leaves the previous one in service until the next change.
type Watcher struct {
	dir      string
	certFile string
	keyFile  string
	quiet    time.Duration
	logger   *slog.Logger

	current atomic.Pointer[tls.Certificate]

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the watcher logger.
func WithLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// WithQuietPeriod overrides DefaultQuietPeriod.
func WithQuietPeriod(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.quiet = d }
}

// NewWatcher loads the pair EnsureCert maintains in dir.
func NewWatcher(dir string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		dir:      dir,
		certFile: filepath.Join(dir, CertFileName),
		keyFile:  filepath.Join(dir, KeyFileName),
		quiet:    DefaultQuietPeriod,
		logger:   slog.Default(),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.reload(); err != nil {
		return nil, fmt.Errorf("tlscert: initial load: %w", err)
	}
	return w, nil
}

// Start subscribes to dir and reloads in the background until Stop.
// Changes made after Start returns are observed.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return errors.New("tlscert: watcher already started")
	}
	select {
	case <-w.stop:
		return errors.New("tlscert: watcher stopped")
	default:
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tlscert: create watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("tlscert: watch %s: %w", w.dir, err)
	}
	w.fsw = fsw
	w.done = make(chan struct{})
	go w.run()

	w.logger.Info("certificate watcher started", "dir", w.dir)
	return nil
}

// Stop ends watching and waits for the background loop. Safe to call
// more than once, and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		w.mu.Lock()
		fsw, done := w.fsw, w.done
		w.mu.Unlock()
		if fsw == nil {
			return
		}
		<-done
		fsw.Close()
	})
}

// run coalesces every event inside the quiet period into one reload that
// happens after the last of them.
func (w *Watcher) run() {
	defer close(w.done)

	settle := time.NewTimer(w.quiet)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.touchesPair(ev) {
				continue
			}
			w.logger.Debug("certificate file changed", "file", ev.Name, "op", ev.Op.String())
			settle.Reset(w.quiet)

		case <-settle.C:
			if err := w.reload(); err != nil {
				w.logger.Error("certificate reload failed, keeping previous pair", "dir", w.dir, "error", err)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("certificate watcher error", "dir", w.dir, "error", err)

		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) touchesPair(ev fsnotify.Event) bool {
	if base := filepath.Base(ev.Name); base != CertFileName && base != KeyFileName {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (w *Watcher) reload() error {
	cert, err := tls.LoadX509KeyPair(w.certFile, w.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}
	w.current.Store(&cert)
	w.logger.Info("certificate loaded", "cert_file", w.certFile)
	return nil
}

// GetCertificate implements tls.Config.GetCertificate.
func (w *Watcher) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return w.current.Load(), nil
}

// TLSConfig returns a server config that always presents the current pair.
func (w *Watcher) TLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: w.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}
