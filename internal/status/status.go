// Package status mirrors the session state into Redis so other services
// can watch it without calling the HTTP API.
package status

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"your.org/whatsapp-rest/internal/log"
	"your.org/whatsapp-rest/internal/session"
)

// Values written under <prefix>status.
const (
	Online  = "online"
	Offline = "offline"
	QR      = "qr"
)

const writeTimeout = 2 * time.Second

// Mirror writes session snapshots to Redis.  Keys:
//
//	<prefix>status  online|offline|qr
//	<prefix>qr      QR code data URL (deleted once connected)
type Mirror struct {
	client *redis.Client
	prefix string

	mu      sync.Mutex
	pending *session.Snapshot // latest unwritten snapshot
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

// New connects to redisURL.  An unreachable server is logged, not fatal;
// writes are retried on every state change.
func New(redisURL, prefix string) (*Mirror, error) {
	opt, err := redis.ParseURL(strings.TrimSpace(redisURL))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		log.Errorf("redis ping failed: %v", err)
	}
	return NewWithClient(c, prefix), nil
}

// NewWithClient wraps an existing client and starts the writer goroutine.
func NewWithClient(c *redis.Client, prefix string) *Mirror {
	m := &Mirror{
		client: c,
		prefix: prefix,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go m.run()
	return m
}

// Value is the status string for snap.
func Value(snap session.Snapshot) string {
	switch {
	case snap.Connected:
		return Online
	case snap.HasQR:
		return QR
	default:
		return Offline
	}
}

// Publish schedules snap for writing.  It never blocks.  A snapshot not
// yet written is replaced, so Redis always converges on the latest state.
// Calls after Close are ignored.
func (m *Mirror) Publish(snap session.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.pending = &snap
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Mirror) run() {
	defer close(m.done)
	for range m.wake {
		m.flush()
	}
	m.flush()
}

func (m *Mirror) flush() {
	m.mu.Lock()
	snap := m.pending
	m.pending = nil
	m.mu.Unlock()
	if snap == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := m.Write(ctx, *snap); err != nil {
		log.Errorf("status mirror write: %v", err)
	}
}

// Write stores snap synchronously.
func (m *Mirror) Write(ctx context.Context, snap session.Snapshot) error {
	pipe := m.client.TxPipeline()
	pipe.Set(ctx, m.prefix+"status", Value(snap), 0)
	if snap.HasQR && !snap.Connected {
		pipe.Set(ctx, m.prefix+"qr", snap.QRCodeDataURL, 0)
	} else {
		pipe.Del(ctx, m.prefix+"qr")
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Close writes the pending snapshot and closes the client.  It is safe
// to call more than once.
func (m *Mirror) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.wake)
	m.mu.Unlock()
	<-m.done
	return m.client.Close()
}
