package benchmark

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"testing"

	"github.com/distsystem/clipshare/internal/core/domain"
	"github.com/distsystem/clipshare/internal/storage"
)

// HistorySizes are the max_entries capacities benchmarked.
var HistorySizes = []int{100, 1000, 5000}

// PayloadSizes are text payload sizes in bytes.
var PayloadSizes = []int{64, 4 << 10, 256 << 10}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newStore opens a store on disk so Badger's write path is measured.
func newStore(b *testing.B, maxEntries int) *storage.EntryStore {
	b.Helper()
	cfg := storage.DefaultKVConfig(b.TempDir())
	cfg.Badger.GCInterval = "0"
	cfg.Badger.SyncWrites = false

	engine, err := storage.NewBadgerEngine(cfg, quietLogger())
	if err != nil {
		b.Fatalf("NewBadgerEngine() error = %v", err)
	}
	b.Cleanup(func() { engine.Close() })

	store, err := storage.NewEntryStore(engine, storage.StoreConfig{MaxEntries: maxEntries}, quietLogger())
	if err != nil {
		b.Fatalf("NewEntryStore() error = %v", err)
	}
	return store
}

// draft builds a distinct text payload of roughly size bytes.
func draft(i, size int) domain.Draft {
	prefix := fmt.Sprintf("entry-%d-", i)
	pad := size - len(prefix)
	if pad < 0 {
		pad = 0
	}
	contents := []domain.MimeContent{{
		MimeType: domain.MimeTextPlain,
		Data:     prefix + strings.Repeat("x", pad),
	}}
	return domain.Draft{
		SourceHost:  "bench-host",
		TimestampMs: int64(i + 1),
		Contents:    contents,
	}
}

// prefill stores n distinct drafts.
func prefill(b *testing.B, store *storage.EntryStore, n, size int) {
	b.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		if _, _, err := store.Add(ctx, draft(i, size)); err != nil {
			b.Fatalf("prefill Add() error = %v", err)
		}
	}
}

// reportMemory reports memory usage.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}
