package peerserver

import (
	"log/slog"
	"sync"
	"time"

	"github.com/distsystem/clipshare/internal/core/domain"
	"github.com/distsystem/clipshare/internal/telemetry/metric"
)

// Sender is the delivery side of a peer channel.
type Sender interface {
	// TrySend enqueues one frame without blocking.
	TrySend(frame []byte) error

	// Close tears the channel down. Safe to call more than once.
	Close(reason string)
}

// Peer is one registered channel.
type Peer struct {
	ID          string
	Host        string
	ConnectedAt time.Time

	sender Sender
}

// Registry is the set of live peer channels.
type Registry struct {
	mu    sync.Mutex
	peers map[string]*Peer

	logger  *slog.Logger
	metrics *metric.Registry

	onChange func(count int)
}

// NewRegistry creates an empty registry. metrics may be nil.
func NewRegistry(logger *slog.Logger, metrics *metric.Registry) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		peers:   make(map[string]*Peer),
		logger:  logger.With("component", "peers"),
		metrics: metrics,
	}
}

// OnChange registers a callback invoked with the new peer count after
// every register and unregister. It runs outside the registry lock.
func (r *Registry) OnChange(fn func(count int)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Register adds a channel under connectionID.
func (r *Registry) Register(connectionID, host string, s Sender) (*Peer, error) {
	if connectionID == "" || s == nil {
		return nil, domain.ErrMissingArgument.WithDetails("connection id and sender are required")
	}

	p := &Peer{ID: connectionID, Host: host, ConnectedAt: time.Now(), sender: s}

	r.mu.Lock()
	if _, exists := r.peers[connectionID]; exists {
		r.mu.Unlock()
		return nil, domain.ErrChannelExists.WithDetails(connectionID)
	}
	r.peers[connectionID] = p
	n := len(r.peers)
	fn := r.onChange
	r.mu.Unlock()

	r.logger.Info("peer connected", "connection_id", connectionID, "host", host, "peers", n)
	r.changed(n, fn)
	return p, nil
}

// Unregister removes a channel. It reports whether the channel was still
// registered, so concurrent removals see exactly one true.
func (r *Registry) Unregister(connectionID string) bool {
	r.mu.Lock()
	p, ok := r.peers[connectionID]
	if ok {
		delete(r.peers, connectionID)
	}
	n := len(r.peers)
	fn := r.onChange
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.logger.Info("peer disconnected", "connection_id", connectionID, "host", p.Host, "peers", n)
	r.changed(n, fn)
	return true
}

func (r *Registry) changed(n int, fn func(int)) {
	r.metrics.SetPeers(n)
	if fn != nil {
		fn(n)
	}
}

// Excluding returns the channels whose host is not host.
func (r *Registry) Excluding(host string) []*Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		if p.Host != host {
			out = append(out, p)
		}
	}
	return out
}

// Count returns the number of live channels.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// CloseAll removes and closes every channel.
func (r *Registry) CloseAll(reason string) int {
	r.mu.Lock()
	peers := make([]*Peer, 0, len(r.peers))
	for id, p := range r.peers {
		peers = append(peers, p)
		delete(r.peers, id)
	}
	fn := r.onChange
	r.mu.Unlock()

	for _, p := range peers {
		p.sender.Close(reason)
	}
	if len(peers) > 0 {
		r.logger.Info("closed all peer channels", "count", len(peers), "reason", reason)
		r.changed(0, fn)
	}
	return len(peers)
}
