package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/distsystem/clipshare/internal/core/domain"
)

// DefaultExpiry is how long a server stays listed after its last announcement.
const DefaultExpiry = 30 * time.Second

// Announcements from older servers may omit these.
const (
	fallbackPort     = 8443
	fallbackProtocol = "https"
)

// Server is a clipshare server seen on the network.
type Server struct {
	URL      string    `json:"url"`
	IP       net.IP    `json:"ip" table:"wide"`
	Port     int       `json:"port" table:"wide"`
	Protocol string    `json:"protocol"`
	LastSeen time.Time `json:"last_seen"`
}

// Browser collects announcements.
type Browser struct {
	port   int
	expiry time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	servers map[string]*Server
	onFound func(Server)
}

// NewBrowser creates a browser listening on UDP port.
func NewBrowser(port int, logger *slog.Logger) *Browser {
	if port == 0 {
		port = DefaultPort
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Browser{
		port:    port,
		expiry:  DefaultExpiry,
		logger:  logger.With("component", "browser"),
		now:     time.Now,
		servers: make(map[string]*Server),
	}
}

// OnFound registers a callback for servers seen for the first time.
func (b *Browser) OnFound(fn func(Server)) {
	b.mu.Lock()
	b.onFound = fn
	b.mu.Unlock()
}

// Run listens until ctx ends.
func (b *Browser) Run(ctx context.Context) error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: b.port})
	if err != nil {
		return fmt.Errorf("discovery: listen on %d: %w", b.port, err)
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 1024)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			b.logger.Debug("discovery recv error", "error", err)
			continue
		}
		b.Observe(buf[:n], from.IP)
	}
}

// Observe records one datagram received from ip. Non-clipshare payloads
// are ignored.
func (b *Browser) Observe(payload []byte, ip net.IP) bool {
	var raw struct {
		Service  string `json:"service"`
		Port     *int   `json:"port"`
		Protocol string `json:"protocol"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil || raw.Service != domain.ServiceName {
		return false
	}

	ann := domain.Announcement{Service: raw.Service, Port: fallbackPort, Protocol: raw.Protocol}
	if raw.Port != nil {
		ann.Port = *raw.Port
	}
	if ann.Protocol == "" {
		ann.Protocol = fallbackProtocol
	}
	if !ann.Valid() {
		return false
	}

	url := fmt.Sprintf("%s://%s", ann.Protocol, net.JoinHostPort(ip.String(), strconv.Itoa(ann.Port)))

	b.mu.Lock()
	s, known := b.servers[url]
	if !known {
		s = &Server{URL: url, IP: ip, Port: ann.Port, Protocol: ann.Protocol}
		b.servers[url] = s
	}
	s.LastSeen = b.now()
	found := *s
	fn := b.onFound
	b.mu.Unlock()

	if !known {
		b.logger.Debug("discovered server", "url", url)
		if fn != nil {
			fn(found)
		}
	}
	return true
}

// Servers returns unexpired servers, most recently seen first.
func (b *Browser) Servers() []Server {
	now := b.now()

	b.mu.Lock()
	out := make([]Server, 0, len(b.servers))
	for url, s := range b.servers {
		if now.Sub(s.LastSeen) >= b.expiry {
			delete(b.servers, url)
			continue
		}
		out = append(out, *s)
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out
}

// Browse listens on port until ctx ends, calling fn for every newly seen server.
func Browse(ctx context.Context, port int, logger *slog.Logger, fn func(Server)) error {
	b := NewBrowser(port, logger)
	b.OnFound(fn)
	return b.Run(ctx)
}
