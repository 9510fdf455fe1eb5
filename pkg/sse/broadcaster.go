// Package sse streams JSON-RPC notifications to browsers over Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danghamo/tourguide/internal/api/jsonrpcx"
	"github.com/danghamo/tourguide/internal/api/middleware"
	"github.com/danghamo/tourguide/pkg/logger"
)

const (
	DefaultHeartbeat = 30 * time.Second
	DefaultBuffer    = 64
)

// SnapshotFunc returns the notification a client receives right after it connects
type SnapshotFunc func(userID string) (jsonrpcx.JSONRPCNotification, bool)

// Client is one open event stream
type Client struct {
	ID     string
	UserID string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(userID string, buffer int) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Option configures a Broadcaster
type Option func(*Broadcaster)

// WithHeartbeat sets the keep-alive interval
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d > 0 {
			b.heartbeat = d
		}
	}
}

// WithBuffer sets how many messages a client may fall behind before it is dropped
func WithBuffer(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithSnapshot sends fn's notification to every new client
func WithSnapshot(fn SnapshotFunc) Option {
	return func(b *Broadcaster) { b.snapshot = fn }
}

// Broadcaster fans notifications out to connected clients. Each client has
// a bounded queue drained by its own request goroutine; a client whose
// queue is full is disconnected.
type Broadcaster struct {
	logger    *logger.Logger
	heartbeat time.Duration
	buffer    int
	snapshot  SnapshotFunc

	mu      sync.RWMutex
	clients map[string]*Client
	byUser  map[string]mapset.Set[string]

	shutdown  chan struct{}
	closeOnce sync.Once
}

// NewBroadcaster creates a broadcaster
func NewBroadcaster(log *logger.Logger, opts ...Option) *Broadcaster {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	b := &Broadcaster{
		logger:    log.WithComponent("sse-broadcaster"),
		heartbeat: DefaultHeartbeat,
		buffer:    DefaultBuffer,
		clients:   make(map[string]*Client),
		byUser:    make(map[string]mapset.Set[string]),
		shutdown:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Connect registers a client for userID. Callers must Disconnect it.
func (b *Broadcaster) Connect(userID string) *Client {
	c := newClient(userID, b.buffer)

	b.mu.Lock()
	b.clients[c.ID] = c
	ids, ok := b.byUser[userID]
	if !ok {
		ids = mapset.NewThreadUnsafeSet[string]()
		b.byUser[userID] = ids
	}
	ids.Add(c.ID)
	b.mu.Unlock()

	b.logger.Debug("SSE client connected", zap.String("client_id", c.ID), zap.String("user_id", userID))
	return c
}

// Disconnect removes a client and closes its stream
func (b *Broadcaster) Disconnect(c *Client) {
	b.mu.Lock()
	if _, ok := b.clients[c.ID]; ok {
		delete(b.clients, c.ID)
		if ids, ok := b.byUser[c.UserID]; ok {
			ids.Remove(c.ID)
			if ids.Cardinality() == 0 {
				delete(b.byUser, c.UserID)
			}
		}
	}
	b.mu.Unlock()

	c.close()
	b.logger.Debug("SSE client disconnected", zap.String("client_id", c.ID), zap.String("user_id", c.UserID))
}

// BroadcastToAll sends a notification to every client
func (b *Broadcaster) BroadcastToAll(notification jsonrpcx.JSONRPCNotification) {
	data, err := json.Marshal(notification)
	if err != nil {
		b.logger.Error("Failed to marshal JSON-RPC notification", zap.Error(err))
		return
	}

	b.mu.RLock()
	targets := make([]*Client, 0, len(b.clients))
	for _, c := range b.clients {
		targets = append(targets, c)
	}
	b.mu.RUnlock()

	b.deliver(targets, data)
}

// BroadcastToUsers sends a notification to the clients of the given users
// connected to this process
func (b *Broadcaster) BroadcastToUsers(targetUsers []string, notification jsonrpcx.JSONRPCNotification) {
	if len(targetUsers) == 0 {
		return
	}

	b.mu.RLock()
	targets := make([]*Client, 0, len(targetUsers))
	for _, userID := range targetUsers {
		if ids, ok := b.byUser[userID]; ok {
			ids.Each(func(id string) bool {
				targets = append(targets, b.clients[id])
				return false
			})
		}
	}
	b.mu.RUnlock()

	if len(targets) == 0 {
		b.logger.Debug("No target users connected", zap.Strings("target_users", targetUsers))
		return
	}

	data, err := json.Marshal(notification)
	if err != nil {
		b.logger.Error("Failed to marshal JSON-RPC notification", zap.Error(err))
		return
	}
	b.deliver(targets, data)
}

func (b *Broadcaster) deliver(targets []*Client, data []byte) {
	for _, c := range targets {
		select {
		case <-c.done:
		case c.send <- data:
		default:
			b.logger.Warn("SSE client too slow, disconnecting",
				zap.String("client_id", c.ID), zap.String("user_id", c.UserID))
			b.Disconnect(c)
		}
	}
}

// ClientCount returns the number of connected clients
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Connected reports whether userID has at least one open stream
func (b *Broadcaster) Connected(userID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.byUser[userID]
	return ok
}

// Close disconnects every client. Active HandleSSE calls return.
func (b *Broadcaster) Close() {
	b.closeOnce.Do(func() {
		close(b.shutdown)

		b.mu.Lock()
		clients := b.clients
		b.clients = make(map[string]*Client)
		b.byUser = make(map[string]mapset.Set[string])
		b.mu.Unlock()

		for _, c := range clients {
			c.close()
		}
		b.logger.Debug("SSE broadcaster shutdown complete", zap.Int("clients", len(clients)))
	})
}

// HandleSSE serves an event stream for the authenticated user
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		b.logger.Error("Streaming not supported by response writer")
		http.Error(w, "Server-Sent Events not supported", http.StatusInternalServerError)
		return
	}

	select {
	case <-b.shutdown:
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	client := b.Connect(userID)
	defer b.Disconnect(client)

	write := func(data []byte) error {
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	hello, _ := json.Marshal(jsonrpcx.NewNotification("stream.connected", map[string]string{
		"client_id": client.ID,
	}))
	if err := write(hello); err != nil {
		return
	}
	if b.snapshot != nil {
		if n, ok := b.snapshot(userID); ok {
			if data, err := json.Marshal(n); err == nil {
				if err := write(data); err != nil {
					return
				}
			}
		}
	}

	heartbeat := time.NewTicker(b.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case data := <-client.send:
			if err := write(data); err != nil {
				b.logger.Warn("Failed to write SSE message", zap.String("client_id", client.ID), zap.Error(err))
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": heartbeat %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
				return
			}
			flusher.Flush()
		case <-client.done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
