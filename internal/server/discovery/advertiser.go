package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/distsystem/clipshare/internal/core/domain"
	"github.com/distsystem/clipshare/internal/telemetry/metric"
)

// Defaults.
const (
	DefaultPort     = 4243
	DefaultInterval = 5 * time.Second
)

// Config configures an Advertiser.
type Config struct {
	// Port is the UDP destination port listeners bind.
	Port int

	// ServicePort is the HTTP(S) port being advertised.
	ServicePort int

	// Protocol is the advertised scheme, "https" or "http".
	Protocol string

	// Interval between announcements.
	Interval time.Duration
}

// Sender transmits one datagram.
type Sender interface {
	Send(dst *net.UDPAddr, payload []byte) error
	Close() error
}

// udpSender sends from one unbound IPv4 socket. The Go runtime enables
// SO_BROADCAST on UDP sockets.
type udpSender struct {
	conn *net.UDPConn
}

// NewUDPSender opens the socket used for announcements.
func NewUDPSender() (Sender, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return nil, fmt.Errorf("discovery: open udp socket: %w", err)
	}
	return &udpSender{conn: conn}, nil
}

func (s *udpSender) Send(dst *net.UDPAddr, payload []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(time.Second)); err != nil {
		return err
	}
	_, err := s.conn.WriteToUDP(payload, dst)
	return err
}

func (s *udpSender) Close() error {
	return s.conn.Close()
}

// Advertiser periodically announces the server on the LAN.
type Advertiser struct {
	cfg        Config
	payload    []byte
	sender     Sender
	interfaces InterfaceSource
	logger     *slog.Logger
	metrics    *metric.Registry

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures an Advertiser.
type Option func(*Advertiser)

// WithSender replaces the UDP socket.
func WithSender(s Sender) Option {
	return func(a *Advertiser) { a.sender = s }
}

// WithInterfaces replaces the interface source.
func WithInterfaces(src InterfaceSource) Option {
	return func(a *Advertiser) { a.interfaces = src }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Advertiser) { a.logger = l }
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metric.Registry) Option {
	return func(a *Advertiser) { a.metrics = m }
}

// NewAdvertiser builds an advertiser. Without WithSender it opens a UDP socket.
func NewAdvertiser(cfg Config, opts ...Option) (*Advertiser, error) {
	if cfg.ServicePort <= 0 || cfg.ServicePort > 65535 {
		return nil, fmt.Errorf("discovery: invalid service port %d", cfg.ServicePort)
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "https"
	}

	payload, err := json.Marshal(domain.Announcement{
		Service:  domain.ServiceName,
		Port:     cfg.ServicePort,
		Protocol: cfg.Protocol,
	})
	if err != nil {
		return nil, fmt.Errorf("discovery: encode announcement: %w", err)
	}

	a := &Advertiser{
		cfg:        cfg,
		payload:    payload,
		interfaces: SystemInterfaces,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "discovery")

	if a.sender == nil {
		s, err := NewUDPSender()
		if err != nil {
			return nil, err
		}
		a.sender = s
	}
	return a, nil
}

// Start runs the announcement loop on its own goroutine. The first
// announcement is sent before Start returns.
func (a *Advertiser) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done != nil {
		return fmt.Errorf("discovery: advertiser already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	a.Announce()
	go a.loop(ctx, a.done)

	a.logger.Info("discovery advertiser started",
		"port", a.cfg.Port,
		"service_port", a.cfg.ServicePort,
		"protocol", a.cfg.Protocol,
		"interval", a.cfg.Interval)
	return nil
}

func (a *Advertiser) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Announce()
		}
	}
}

// Stop cancels the loop and waits for it to exit, at most until ctx ends.
func (a *Advertiser) Stop(ctx context.Context) error {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("discovery: stop: %w", ctx.Err())
		}
	}

	if err := a.sender.Close(); err != nil {
		a.logger.Debug("close discovery socket", "error", err)
	}
	a.logger.Info("discovery advertiser stopped")
	return nil
}

// Announce sends one round of datagrams and returns how many were sent.
// With no usable interface it announces on loopback so that local clients
// still find the server.
func (a *Advertiser) Announce() int {
	targets := a.targets()

	sent := 0
	for _, ip := range targets {
		dst := &net.UDPAddr{IP: ip, Port: a.cfg.Port}
		if err := a.sender.Send(dst, a.payload); err != nil {
			a.metrics.ObserveAnnouncement(metric.ResultFailed)
			a.logger.Debug("announcement failed", "dst", dst.String(), "error", err)
			continue
		}
		a.metrics.ObserveAnnouncement(metric.ResultOK)
		sent++
	}
	return sent
}

func (a *Advertiser) targets() []net.IP {
	ifaces, err := a.interfaces()
	if err != nil {
		a.logger.Warn("list interfaces failed, announcing on loopback", "error", err)
		return []net.IP{net.IPv4(127, 0, 0, 1)}
	}

	ts := BroadcastTargets(ifaces)
	if len(ts) == 0 {
		return []net.IP{net.IPv4(127, 0, 0, 1)}
	}
	out := make([]net.IP, len(ts))
	for i, t := range ts {
		out[i] = t.Broadcast
	}
	return out
}
