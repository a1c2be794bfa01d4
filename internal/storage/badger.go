package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/distsystem/clipshare/internal/core/domain"
)

// metricsNamespace prefixes every metric exported by this package.
const metricsNamespace = "clipshare"

// ErrClosed is returned by engine operations after Close.
var ErrClosed = domain.ErrStorageClosed

// BadgerEngine owns the Badger database and its maintenance loops.
type BadgerEngine struct {
	db     *badger.DB
	cfg    BadgerConfig
	logger *slog.Logger
	memory bool
	closed atomic.Bool

	gcInterval time.Duration
	lastGCTime atomic.Int64 // Unix milliseconds
	gcRewrites atomic.Uint64

	metricsOnce      sync.Once
	metricsLSMSize   prometheus.Gauge
	metricsValueLog  prometheus.Gauge
	metricsLastGC    prometheus.Gauge
	metricsGCRewrite prometheus.Counter

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// KVStats contains storage engine statistics.
type KVStats struct {
	TotalSize    uint64
	LSMSize      uint64
	ValueLogSize uint64
	LastGCTime   int64 // Unix milliseconds
	GCRewrites   uint64
}

// NewBadgerEngine opens the Badger database described by cfg.
func NewBadgerEngine(cfg KVConfig, logger *slog.Logger) (*BadgerEngine, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "badger")

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}

	bc := cfg.Badger
	if bc.CacheSize > 0 {
		opts.BlockCacheSize = bc.CacheSize
	}
	if bc.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = bc.ValueLogFileSize
	}
	if bc.NumMemtables > 0 {
		opts.NumMemtables = bc.NumMemtables
	}
	opts.SyncWrites = bc.SyncWrites
	// Writers are serialized by the entry store.
	opts.DetectConflicts = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	interval, err := parseGCInterval(bc.GCInterval)
	if err != nil {
		logger.Warn("invalid gc_interval, using default 10m", "value", bc.GCInterval, "error", err)
		interval = 10 * time.Minute
	}

	engine := &BadgerEngine{
		db:          db,
		cfg:         bc,
		logger:      logger,
		gcInterval: interval,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}

	go engine.gcLoop()

	logger.Info("badger engine started",
		"dir", cfg.Dir,
		"in_memory", cfg.InMemory,
		"sync_writes", bc.SyncWrites,
		"gc_interval", interval)

	return engine, nil
}

func parseGCInterval(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative interval %s", d)
	}
	return d, nil
}

// View runs fn in a read-only snapshot transaction.
func (e *BadgerEngine) View(fn func(txn *badger.Txn) error) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.db.View(fn)
}

// Update runs fn in a read-write transaction and commits it.
func (e *BadgerEngine) Update(fn func(txn *badger.Txn) error) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.db.Update(fn)
}

// GC runs value log GC until Badger reports nothing left to rewrite.
// Returns the number of value log files rewritten.
func (e *BadgerEngine) GC(ctx context.Context) (uint64, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	if e.memory {
		return 0, nil
	}
	start := time.Now()

	var rewrites uint64
	for {
		if err := ctx.Err(); err != nil {
			return rewrites, err
		}
		err := e.db.RunValueLogGC(e.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				break
			}
			return rewrites, fmt.Errorf("gc: %w", err)
		}
		rewrites++
	}

	e.lastGCTime.Store(time.Now().UnixMilli())
	e.gcRewrites.Add(rewrites)
	if e.metricsGCRewrite != nil {
		e.metricsGCRewrite.Add(float64(rewrites))
	}

	e.logger.Debug("gc completed", "rewrites", rewrites, "elapsed", time.Since(start))
	return rewrites, nil
}

// Stats returns storage statistics.
func (e *BadgerEngine) Stats() KVStats {
	lsm, vlog := e.db.Size()
	return KVStats{
		TotalSize:    uint64(lsm + vlog),
		LSMSize:      uint64(lsm),
		ValueLogSize: uint64(vlog),
		LastGCTime:   e.lastGCTime.Load(),
		GCRewrites:   e.gcRewrites.Load(),
	}
}

// Close stops the maintenance loops and closes the database.
func (e *BadgerEngine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.logger.Info("shutting down badger engine")
		close(e.stopCh)
		<-e.doneCh
		e.closed.Store(true)
		if cerr := e.db.Close(); cerr != nil {
			err = fmt.Errorf("close db: %w", cerr)
			return
		}
		e.logger.Info("badger engine shutdown complete")
	})
	return err
}

// RegisterMetrics registers Badger size and GC metrics.
// Safe to call more than once; only the first call registers.
func (e *BadgerEngine) RegisterMetrics(registry prometheus.Registerer) *BadgerEngine {
	e.metricsOnce.Do(func() {
		e.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "badger",
			Name:      "lsm_size_bytes",
			Help:      "Badger LSM tree size in bytes",
		})
		e.metricsValueLog = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "badger",
			Name:      "value_log_size_bytes",
			Help:      "Badger value log size in bytes",
		})
		e.metricsLastGC = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "badger",
			Name:      "last_gc_timestamp_seconds",
			Help:      "Unix timestamp of the last Badger GC run",
		})
		e.metricsGCRewrite = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "badger",
			Name:      "gc_rewrites_total",
			Help:      "Value log files rewritten by Badger garbage collection",
		})
		registry.MustRegister(e.metricsLSMSize, e.metricsValueLog, e.metricsLastGC, e.metricsGCRewrite)
		e.refreshMetrics()
	})
	return e
}

func (e *BadgerEngine) refreshMetrics() {
	if e.metricsLSMSize == nil || e.closed.Load() {
		return
	}
	stats := e.Stats()
	e.metricsLSMSize.Set(float64(stats.LSMSize))
	e.metricsValueLog.Set(float64(stats.ValueLogSize))
	if stats.LastGCTime > 0 {
		e.metricsLastGC.Set(float64(stats.LastGCTime) / 1000.0)
	}
}

// gcLoop runs periodic garbage collection and refreshes size gauges.
func (e *BadgerEngine) gcLoop() {
	defer close(e.doneCh)

	metricsTicker := time.NewTicker(15 * time.Second)
	defer metricsTicker.Stop()

	var gcC <-chan time.Time
	if e.gcInterval > 0 {
		gcTicker := time.NewTicker(e.gcInterval)
		defer gcTicker.Stop()
		gcC = gcTicker.C
	}

	for {
		select {
		case <-gcC:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := e.GC(ctx); err != nil {
				e.logger.Error("auto gc failed", "error", err)
			}
			cancel()

		case <-metricsTicker.C:
			e.refreshMetrics()

		case <-e.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

// Badger is chatty at info level; demote to debug.
func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
