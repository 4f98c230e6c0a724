package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pulselabs/pulsevote/internal/setup/config"
	"go.uber.org/zap"
)

// Defaults applied when the realtime config section leaves fields unset.
const (
	defaultPingInterval   = 30 * time.Second
	defaultClientTimeout  = 90 * time.Second
	defaultSendBuffer     = 32
	defaultMaxMessageSize = 4096
)

// Stats is a point-in-time view of the registry for the stats endpoint.
type Stats struct {
	TotalConnections int            `json:"totalConnections"`
	Channels         map[string]int `json:"channels"`
}

// Registry owns every live connection and all channel subscription state.
// Connections never remove themselves from channel sets directly; they hand
// themselves back via Remove and the registry does the bookkeeping.
type Registry struct {
	cfg    *config.Realtime
	logger *zap.Logger

	mu       sync.RWMutex
	channels map[string]map[*Conn]struct{}
	conns    map[*Conn]map[string]struct{}
}

// NewRegistry creates a new connection registry.
func NewRegistry(cfg *config.Realtime, logger *zap.Logger) *Registry {
	return &Registry{
		cfg:      cfg,
		logger:   logger.Named("realtime_registry"),
		channels: make(map[string]map[*Conn]struct{}),
		conns:    make(map[*Conn]map[string]struct{}),
	}
}

// NewConn wraps an upgraded socket in a tracked connection. The connection
// starts with no subscriptions; callers start its pumps with Run.
func (r *Registry) NewConn(ws *websocket.Conn) *Conn {
	conn := &Conn{
		id:       uuid.New(),
		ws:       ws,
		registry: r,
		logger:   r.logger,
		send:     make(chan []byte, r.sendBuffer()),
	}
	conn.Touch()

	r.mu.Lock()
	r.conns[conn] = make(map[string]struct{})
	r.mu.Unlock()

	r.logger.Debug("Connection registered", zap.String("connID", conn.id.String()))

	return conn
}

// Subscribe adds the connection to a channel. Unknown connections are a
// no-op so a subscribe racing a drop cannot resurrect state.
func (r *Registry) Subscribe(conn *Conn, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.conns[conn]
	if !ok {
		return
	}

	subs[channel] = struct{}{}

	if r.channels[channel] == nil {
		r.channels[channel] = make(map[*Conn]struct{})
	}

	r.channels[channel][conn] = struct{}{}
}

// Unsubscribe removes the connection from a channel. Unknown connections and
// channels are a no-op.
func (r *Registry) Unsubscribe(conn *Conn, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.conns[conn]
	if !ok {
		return
	}

	delete(subs, channel)
	r.detachLocked(conn, channel)
}

// Remove detaches the connection from every channel and closes it. Safe to
// call for already-removed connections.
func (r *Registry) Remove(conn *Conn) {
	r.mu.Lock()

	subs, ok := r.conns[conn]
	if ok {
		for channel := range subs {
			r.detachLocked(conn, channel)
		}

		delete(r.conns, conn)
	}

	r.mu.Unlock()

	if ok {
		conn.close()
		r.logger.Debug("Connection removed", zap.String("connID", conn.id.String()))
	}
}

// detachLocked drops the connection from one channel set and prunes empty
// sets. Callers hold the write lock.
func (r *Registry) detachLocked(conn *Conn, channel string) {
	set, ok := r.channels[channel]
	if !ok {
		return
	}

	delete(set, conn)

	if len(set) == 0 {
		delete(r.channels, channel)
	}
}

// SubscribersOf returns a snapshot of the connections subscribed to a
// channel. The snapshot may include connections dropped immediately after.
func (r *Registry) SubscribersOf(channel string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.channels[channel]
	if len(set) == 0 {
		return nil
	}

	conns := make([]*Conn, 0, len(set))
	for conn := range set {
		conns = append(conns, conn)
	}

	return conns
}

// Stats returns current connection and per-channel subscriber counts.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		TotalConnections: len(r.conns),
		Channels:         make(map[string]int, len(r.channels)),
	}

	for channel, set := range r.channels {
		stats.Channels[channel] = len(set)
	}

	return stats
}

// Run reaps connections that have gone silent past the client timeout and,
// when a gauge is supplied, records connection counts on each sweep. Blocks
// until the context is cancelled.
func (r *Registry) Run(ctx context.Context, gauge *Gauge) {
	ticker := time.NewTicker(r.pingInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return
		case <-ticker.C:
			r.reapStale()

			if gauge != nil {
				if err := gauge.Record(ctx, r.Stats()); err != nil {
					r.logger.Warn("Failed to record connection gauge", zap.Error(err))
				}
			}
		}
	}
}

// reapStale drops every connection whose last proof of liveness is older
// than the client timeout.
func (r *Registry) reapStale() {
	deadline := time.Now().Add(-r.clientTimeout())

	r.mu.RLock()
	var stale []*Conn

	for conn := range r.conns {
		if conn.lastSeenTime().Before(deadline) {
			stale = append(stale, conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range stale {
		r.logger.Debug("Reaping stale connection", zap.String("connID", conn.id.String()))
		r.Remove(conn)
	}
}

// closeAll removes every connection during shutdown.
func (r *Registry) closeAll() {
	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.conns))

	for conn := range r.conns {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		r.Remove(conn)
	}
}

func (r *Registry) pingInterval() time.Duration {
	if r.cfg.PingInterval > 0 {
		return time.Duration(r.cfg.PingInterval) * time.Second
	}

	return defaultPingInterval
}

func (r *Registry) clientTimeout() time.Duration {
	if r.cfg.ClientTimeout > 0 {
		return time.Duration(r.cfg.ClientTimeout) * time.Second
	}

	return defaultClientTimeout
}

func (r *Registry) sendBuffer() int {
	if r.cfg.SendBuffer > 0 {
		return r.cfg.SendBuffer
	}

	return defaultSendBuffer
}

func (r *Registry) maxMessageSize() int64 {
	if r.cfg.MaxMessageSize > 0 {
		return r.cfg.MaxMessageSize
	}

	return defaultMaxMessageSize
}
