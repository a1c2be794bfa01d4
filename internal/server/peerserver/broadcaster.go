package peerserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/distsystem/clipshare/internal/core/domain"
	"github.com/distsystem/clipshare/internal/telemetry/metric"
)

// Broadcaster fans new entries out to registered peers.
type Broadcaster struct {
	registry *Registry
	logger   *slog.Logger
	metrics  *metric.Registry

	// mu orders Publish calls so every channel sees frames in publish order.
	mu sync.Mutex
}

// NewBroadcaster creates a broadcaster over registry. metrics may be nil.
func NewBroadcaster(registry *Registry, logger *slog.Logger, metrics *metric.Registry) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		registry: registry,
		logger:   logger.With("component", "broadcaster"),
		metrics:  metrics,
	}
}

// Publish delivers e to every peer whose host differs from e.SourceHost.
// A peer that cannot take the frame is removed and closed; the others are
// unaffected. Publish never fails.
func (b *Broadcaster) Publish(ctx context.Context, e *domain.Entry) {
	if e == nil {
		return
	}

	frame, err := json.Marshal(domain.NewEntryMessage(e))
	if err != nil {
		b.logger.Error("encode peer message failed", "id", e.ID, "error", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	targets := b.registry.Excluding(e.SourceHost)
	delivered := 0
	for _, p := range targets {
		if err := p.sender.TrySend(frame); err != nil {
			b.metrics.ObservePeerDelivery(metric.ResultFailed)
			b.logger.Warn("peer delivery failed, dropping channel",
				"connection_id", p.ID,
				"host", p.Host,
				"entry_id", e.ID,
				"error", err)
			if b.registry.Unregister(p.ID) {
				p.sender.Close("send failed")
			}
			continue
		}
		b.metrics.ObservePeerDelivery(metric.ResultOK)
		delivered++
	}

	b.logger.Debug("entry broadcast",
		"entry_id", e.ID,
		"source_host", e.SourceHost,
		"targets", len(targets),
		"delivered", delivered)
}
