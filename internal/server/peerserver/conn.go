package peerserver

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/distsystem/clipshare/internal/core/domain"
)

// wsSender is a Sender backed by a WebSocket connection. Frames are
// written by run on a single goroutine in queue order.
type wsSender struct {
	conn  *websocket.Conn
	queue chan []byte
	done  chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	reason    string
}

func newWSSender(conn *websocket.Conn, queueSize int) *wsSender {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &wsSender{
		conn:  conn,
		queue: make(chan []byte, queueSize),
		done:  make(chan struct{}),
	}
}

// TrySend implements Sender.
func (s *wsSender) TrySend(frame []byte) error {
	select {
	case <-s.done:
		return domain.ErrChannelSend.WithDetails("channel closed")
	default:
	}
	select {
	case s.queue <- frame:
		return nil
	default:
		return domain.ErrChannelSend.WithDetails("send queue full")
	}
}

// Close implements Sender. The close handshake runs on the writer
// goroutine, so Close returns immediately.
func (s *wsSender) Close(reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *wsSender) closeReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// run drains the queue and keeps the connection alive with pings until
// ctx ends, Close is called, or a write fails.
func (s *wsSender) run(ctx context.Context, writeTimeout, pingInterval time.Duration) error {
	var pingC <-chan time.Time
	if pingInterval > 0 {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		pingC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.done:
			s.conn.Close(websocket.StatusGoingAway, s.closeReason())
			return nil

		case frame := <-s.queue:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := s.conn.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				return err
			}

		case <-pingC:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := s.conn.Ping(pctx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
