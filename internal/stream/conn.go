// Package stream provides real-time distribution of option-chain views:
// per-connection bounded queues, the symbol subscription registry, and
// the periodic broadcast scheduler.
package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"optionstream/internal/errors"
)

// DropPolicy selects which message is discarded when a connection's
// outbound queue is full.
type DropPolicy string

const (
	// DropOldest discards the oldest undelivered message so the client
	// keeps receiving the freshest data. This is the default.
	DropOldest DropPolicy = "oldest"
	// DropNewest discards the message being enqueued.
	DropNewest DropPolicy = "newest"
)

// ConnConfig holds per-connection queue configuration.
type ConnConfig struct {
	// QueueSize bounds the outbound queue.
	QueueSize int
	// Policy selects the overflow drop policy.
	Policy DropPolicy
	// DropThreshold is the number of consecutive drops after which the
	// connection is considered a dead consumer and closed.
	DropThreshold int
}

// DefaultConnConfig returns the default connection configuration.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		QueueSize:     64,
		Policy:        DropOldest,
		DropThreshold: 25,
	}
}

// ClientConn is one live client session. It owns a bounded outbound
// queue that the transport write loop drains; producers enqueue with
// Send and never block. Closing is idempotent and cascades to the
// registry via the OnClose hook.
type ClientConn struct {
	ID         string
	RemoteAddr string
	CreatedAt  time.Time

	cfg   ConnConfig
	queue chan []byte
	log   zerolog.Logger

	mu               sync.Mutex
	closed           bool
	consecutiveDrops int

	dropped atomic.Uint64
	sent    atomic.Uint64

	// OnClose runs exactly once when the connection closes. The
	// connection manager uses it to remove registry subscriptions.
	OnClose func(*ClientConn)
}

// NewClientConn creates a connection with a fresh identity. A client
// that reconnects gets a new ID and must resubscribe.
func NewClientConn(remoteAddr string, cfg ConnConfig, log zerolog.Logger) *ClientConn {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConnConfig().QueueSize
	}
	if cfg.DropThreshold <= 0 {
		cfg.DropThreshold = DefaultConnConfig().DropThreshold
	}
	if cfg.Policy != DropNewest {
		cfg.Policy = DropOldest
	}

	id := uuid.NewString()
	return &ClientConn{
		ID:         id,
		RemoteAddr: remoteAddr,
		CreatedAt:  time.Now(),
		cfg:        cfg,
		queue:      make(chan []byte, cfg.QueueSize),
		log:        log.With().Str("conn_id", id).Logger(),
	}
}

// Send enqueues a message without blocking. On overflow one message is
// dropped per the policy and the drop counters advance; the connection
// survives until DropThreshold consecutive drops, at which point it is
// closed and ErrConnectionClosed is returned.
func (c *ClientConn) Send(msg []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.ErrConnectionClosed
	}

	select {
	case c.queue <- msg:
		c.consecutiveDrops = 0
		c.mu.Unlock()
		c.sent.Add(1)
		return nil
	default:
	}

	// Queue full.
	c.dropped.Add(1)
	c.consecutiveDrops++
	drops := c.consecutiveDrops

	if drops >= c.cfg.DropThreshold {
		c.mu.Unlock()
		c.log.Warn().
			Int("consecutive_drops", drops).
			Msg("slow consumer exceeded drop threshold, closing")
		c.Close()
		return errors.ErrConnectionClosed
	}

	if c.cfg.Policy == DropOldest {
		// Evict the oldest queued message, then retry once. The write
		// loop may have drained concurrently, so the retry can still
		// fail; that counts as a newest-drop.
		select {
		case <-c.queue:
		default:
		}
		select {
		case c.queue <- msg:
			c.mu.Unlock()
			c.sent.Add(1)
			return nil
		default:
		}
	}

	c.mu.Unlock()
	return errors.ErrQueueFull
}

// Outbound returns the queue for the transport write loop. The channel
// is closed when the connection closes.
func (c *ClientConn) Outbound() <-chan []byte {
	return c.queue
}

// Close tears the connection down. Safe to call multiple times and
// from any goroutine.
func (c *ClientConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()

	if c.OnClose != nil {
		c.OnClose(c)
	}
}

// Closed reports whether the connection has been closed.
func (c *ClientConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Dropped returns the total number of messages dropped for this
// connection.
func (c *ClientConn) Dropped() uint64 {
	return c.dropped.Load()
}

// Sent returns the total number of messages enqueued successfully.
func (c *ClientConn) Sent() uint64 {
	return c.sent.Load()
}
