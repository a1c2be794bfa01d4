package storage

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/distsystem/clipshare/internal/core/domain"
)

// Key prefixes.
var (
	prefixEntry = []byte("e/")
	prefixHash  = []byte("h/")
	prefixTime  = []byte("t/")
	keySeq      = []byte("m/seq")
)

// DefaultMaxEntries is the capacity used when none is configured.
const DefaultMaxEntries = 100

// StoreConfig configures an EntryStore.
type StoreConfig struct {
	// MaxEntries bounds the number of stored entries. Must be >= 1.
	MaxEntries int
}

// EntryStore is the deduplicating, capacity-bounded clipboard history.
type EntryStore struct {
	kv         *BadgerEngine
	maxEntries int
	logger     *slog.Logger

	// writeMu serializes every mutation. seq and count only change
	// under it, after the transaction that persisted them committed.
	writeMu sync.Mutex
	seq     uint64
	count   atomic.Int64

	metrics *storeMetrics
}

type storeMetrics struct {
	entries prometheus.Gauge
	created prometheus.Counter
	deduped prometheus.Counter
	evicted prometheus.Counter
}

// NewEntryStore opens the entry store on top of kv. Existing rows beyond
// MaxEntries (after the limit was lowered) are evicted oldest first.
func NewEntryStore(kv *BadgerEngine, cfg StoreConfig, logger *slog.Logger) (*EntryStore, error) {
	if kv == nil {
		return nil, fmt.Errorf("storage: kv engine is required")
	}
	if cfg.MaxEntries < 1 {
		return nil, fmt.Errorf("storage: max_entries must be >= 1, got %d", cfg.MaxEntries)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &EntryStore{
		kv:         kv,
		maxEntries: cfg.MaxEntries,
		logger:     logger.With("component", "store"),
	}

	var count int64
	err := kv.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keySeq)
		switch {
		case err == nil:
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if len(v) != 8 {
				return fmt.Errorf("corrupt sequence value (%d bytes)", len(v))
			}
			s.seq = binary.BigEndian.Uint64(v)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefixEntry
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("open", err)
	}
	s.count.Store(count)

	if count > int64(s.maxEntries) {
		s.writeMu.Lock()
		var evicted int
		err := kv.Update(func(txn *badger.Txn) error {
			var err error
			evicted, err = s.evictTxn(txn, int(count)-s.maxEntries)
			return err
		})
		if err == nil {
			s.count.Add(-int64(evicted))
		}
		s.writeMu.Unlock()
		if err != nil {
			return nil, storageErr("trim", err)
		}
		s.logger.Info("trimmed store to capacity", "evicted", evicted, "max_entries", s.maxEntries)
	}

	s.logger.Info("entry store opened", "entries", s.count.Load(), "max_entries", s.maxEntries)
	return s, nil
}

// RegisterMetrics registers store counters with registry.
func (s *EntryStore) RegisterMetrics(registry prometheus.Registerer) *EntryStore {
	m := &storeMetrics{
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "store",
			Name:      "entries",
			Help:      "Number of clipboard entries currently stored",
		}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "store",
			Name:      "entries_created_total",
			Help:      "Entries stored as new content",
		}),
		deduped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "store",
			Name:      "entries_deduplicated_total",
			Help:      "Inserts that refreshed an existing entry",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "store",
			Name:      "entries_evicted_total",
			Help:      "Entries evicted to stay within max_entries",
		}),
	}
	registry.MustRegister(m.entries, m.created, m.deduped, m.evicted)
	m.entries.Set(float64(s.count.Load()))

	s.writeMu.Lock()
	s.metrics = m
	s.writeMu.Unlock()
	return s
}

// MaxEntries returns the configured capacity.
func (s *EntryStore) MaxEntries() int {
	return s.maxEntries
}

// Add stores d, or refreshes the existing entry with identical contents.
//
// For new contents it returns the stored entry and true, then evicts the
// oldest entries beyond capacity. For known contents only TimestampMs and
// SourceHost of the existing entry change; it returns the refreshed entry
// and false and evicts nothing.
func (s *EntryStore) Add(ctx context.Context, d domain.Draft) (*domain.Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if len(d.Contents) == 0 {
		return nil, false, domain.ErrEntryValidation.WithDetails("contents must not be empty")
	}
	if err := d.ValidateEncoding(); err != nil {
		return nil, false, err
	}

	hash, err := ContentHash(d.Contents)
	if err != nil {
		return nil, false, domain.ErrEntryValidation.WithCause(err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var (
		rec     *record
		isNew   bool
		evicted int
		seq     = s.seq + 1
	)

	err = s.kv.Update(func(txn *badger.Txn) error {
		existing, err := getIndex(txn, hashKey(hash))
		switch {
		case err == nil:
			rec, err = getRecord(txn, existing)
			if err != nil {
				return fmt.Errorf("load %s: %w", existing, err)
			}
			if err := txn.Delete(timeKey(rec.TimestampMs, rec.Seq)); err != nil {
				return err
			}
			rec.TimestampMs = d.TimestampMs
			rec.SourceHost = d.SourceHost
			rec.Seq = seq

		case errors.Is(err, badger.ErrKeyNotFound):
			id, err := domain.GenerateEntryID()
			if err != nil {
				return err
			}
			rec = &record{
				ID:          id,
				SourceHost:  d.SourceHost,
				TimestampMs: d.TimestampMs,
				Seq:         seq,
				Contents:    toContentRecords(d.Contents),
				TextPreview: domain.BuildPreview(d.Contents),
				Hash:        hash,
			}
			if err := txn.Set(hashKey(hash), []byte(rec.ID)); err != nil {
				return err
			}
			isNew = true

		default:
			return err
		}

		if err := putRecord(txn, rec); err != nil {
			return err
		}
		if err := txn.Set(keySeq, seqValue(seq)); err != nil {
			return err
		}

		if isNew {
			over := int(s.count.Load()) + 1 - s.maxEntries
			if over > 0 {
				evicted, err = s.evictTxn(txn, over)
				if err != nil {
					return fmt.Errorf("evict: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		if domain.IsDomainError(err, "") {
			return nil, false, err
		}
		return nil, false, storageErr("add", err)
	}

	s.seq = seq
	if isNew {
		s.count.Add(1 - int64(evicted))
	}
	s.observeAdd(isNew, evicted)

	if isNew {
		s.logger.Debug("entry stored", "id", rec.ID, "source_host", rec.SourceHost, "evicted", evicted)
	} else {
		s.logger.Debug("entry refreshed", "id", rec.ID, "source_host", rec.SourceHost, "hash", hex.EncodeToString(hash[:8]))
	}
	return rec.entry(), isNew, nil
}

func (s *EntryStore) observeAdd(isNew bool, evicted int) {
	if s.metrics == nil {
		return
	}
	if isNew {
		s.metrics.created.Inc()
	} else {
		s.metrics.deduped.Inc()
	}
	if evicted > 0 {
		s.metrics.evicted.Add(float64(evicted))
	}
	s.metrics.entries.Set(float64(s.count.Load()))
}

// evictTxn removes the n oldest entries inside txn and returns how many
// were removed.
func (s *EntryStore) evictTxn(txn *badger.Txn, n int) (int, error) {
	type victim struct {
		timeKey []byte
		id      string
	}
	victims := make([]victim, 0, n)

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefixTime
	it := txn.NewIterator(opts)
	for it.Rewind(); it.Valid() && len(victims) < n; it.Next() {
		item := it.Item()
		id, err := item.ValueCopy(nil)
		if err != nil {
			it.Close()
			return 0, err
		}
		victims = append(victims, victim{timeKey: item.KeyCopy(nil), id: string(id)})
	}
	it.Close()

	for _, v := range victims {
		rec, err := getRecord(txn, v.id)
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return 0, err
		}
		if rec != nil {
			if err := txn.Delete(hashKey(rec.Hash)); err != nil {
				return 0, err
			}
			if err := txn.Delete(entryKey(v.id)); err != nil {
				return 0, err
			}
		}
		if err := txn.Delete(v.timeKey); err != nil {
			return 0, err
		}
		s.logger.Debug("entry evicted", "id", v.id)
	}
	return len(victims), nil
}

// List returns up to limit entries, most recent first, skipping offset.
func (s *EntryStore) List(ctx context.Context, limit, offset int) ([]*domain.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit < 0 || offset < 0 {
		return nil, domain.ErrInvalidArgument.WithDetails("limit and offset must be non-negative")
	}
	entries := make([]*domain.Entry, 0, min(limit, s.maxEntries))
	if limit == 0 {
		return entries, nil
	}

	err := s.kv.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefixTime
		it := txn.NewIterator(opts)
		defer it.Close()

		skipped := 0
		for it.Seek(prefixEnd(prefixTime)); it.ValidForPrefix(prefixTime); it.Next() {
			if skipped < offset {
				skipped++
				continue
			}
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := getRecord(txn, string(id))
			if err != nil {
				return fmt.Errorf("load %s: %w", id, err)
			}
			entries = append(entries, rec.entry())
			if len(entries) == limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("list", err)
	}
	return entries, nil
}

// Get returns the entry with the given id or ErrEntryNotFound.
func (s *EntryStore) Get(ctx context.Context, id string) (*domain.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec *record
	err := s.kv.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getRecord(txn, id)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrEntryNotFound.WithDetails(id)
	}
	if err != nil {
		return nil, storageErr("get", err)
	}
	return rec.entry(), nil
}

// Delete removes the entry with the given id. It reports whether a row
// existed.
func (s *EntryStore) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	found := false
	err := s.kv.Update(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, id)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		for _, k := range [][]byte{entryKey(id), hashKey(rec.Hash), timeKey(rec.TimestampMs, rec.Seq)} {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, storageErr("delete", err)
	}
	if found {
		s.count.Add(-1)
		if s.metrics != nil {
			s.metrics.entries.Set(float64(s.count.Load()))
		}
		s.logger.Debug("entry deleted", "id", id)
	}
	return found, nil
}

// Count returns the number of stored entries.
func (s *EntryStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return int(s.count.Load()), nil
}

func getIndex(txn *badger.Txn, key []byte) (string, error) {
	item, err := txn.Get(key)
	if err != nil {
		return "", err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func getRecord(txn *badger.Txn, id string) (*record, error) {
	item, err := txn.Get(entryKey(id))
	if err != nil {
		return nil, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return decodeRecord(v)
}

func putRecord(txn *badger.Txn, rec *record) error {
	b, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := txn.Set(entryKey(rec.ID), b); err != nil {
		return err
	}
	return txn.Set(timeKey(rec.TimestampMs, rec.Seq), []byte(rec.ID))
}

func entryKey(id string) []byte {
	return append(append([]byte{}, prefixEntry...), id...)
}

func hashKey(hash []byte) []byte {
	return append(append([]byte{}, prefixHash...), hash...)
}

// timeKey orders by timestamp, then by stamp sequence. The sign bit is
// flipped so that negative timestamps sort before positive ones.
func timeKey(ts int64, seq uint64) []byte {
	k := make([]byte, len(prefixTime)+16)
	n := copy(k, prefixTime)
	binary.BigEndian.PutUint64(k[n:], uint64(ts)^(1<<63))
	binary.BigEndian.PutUint64(k[n+8:], seq)
	return k
}

func seqValue(seq uint64) []byte {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, seq)
	return v
}

// prefixEnd returns a key greater than every time key carrying prefix.
func prefixEnd(prefix []byte) []byte {
	k := append([]byte{}, prefix...)
	for i := 0; i < 17; i++ {
		k = append(k, 0xFF)
	}
	return k
}

func storageErr(op string, err error) error {
	if errors.Is(err, ErrClosed) || errors.Is(err, badger.ErrDBClosed) {
		return domain.ErrStorageClosed.WithDetails(op).WithCause(err)
	}
	return domain.ErrStorage.WithDetails(op).WithCause(err)
}
