// Package registry tracks the live connections of a relay.
//
// The registry never sends anything itself. Owners observe membership
// changes through the OnChange hook and decide what to broadcast.
package registry

import (
	"crypto/rand"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-dev/collabcode/internal/clock"
)

// Transport is the send side of a connection as seen by the registry's
// owner. Implementations must not block: Send enqueues or fails.
type Transport interface {
	// Send queues one text frame for delivery.
	Send(frame []byte) error

	// Ping sends a liveness probe.
	Ping() error

	// Close tears down the underlying connection. Safe to call repeatedly.
	Close() error
}

// Connection is one live client of the relay.
type Connection struct {
	// ID is assigned at registration and never changes.
	ID string

	// ConnectedAt is the registration time.
	ConnectedAt time.Time

	transport Transport

	mu       sync.RWMutex
	name     string
	lastSeen time.Time
}

// Name returns the display name, falling back to DefaultName(ID).
func (c *Connection) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.name == "" {
		return DefaultName(c.ID)
	}
	return c.name
}

// LastSeen returns the last time the connection proved it was alive.
func (c *Connection) LastSeen() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeen
}

// Transport returns the connection's transport handle.
func (c *Connection) Transport() Transport {
	return c.transport
}

// DefaultName derives a display name from a connection identifier.
func DefaultName(id string) string {
	if len(id) > 4 {
		id = id[:4]
	}
	return "user-" + id
}

// Registry holds the set of live connections.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection

	clock    clock.Clock
	onChange func(count int)
	logger   *slog.Logger

	totalRegistered atomic.Uint64
	totalRemoved    atomic.Uint64
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the clock used for liveness timestamps.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithOnChange sets a hook invoked after every Register and effective
// Unregister with the new connection count. The hook runs without the
// registry lock held.
func WithOnChange(fn func(count int)) Option {
	return func(r *Registry) { r.onChange = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		conns:  make(map[string]*Connection),
		clock:  clock.Real(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "registry")
	return r
}

// Register stores a new connection for t and returns it. The identifier
// is regenerated on the rare collision with a live connection.
func (r *Registry) Register(t Transport) *Connection {
	now := r.clock.Now()

	r.mu.Lock()
	id := generateID()
	for r.conns[id] != nil {
		id = generateID()
	}
	conn := &Connection{
		ID:          id,
		ConnectedAt: now,
		transport:   t,
		lastSeen:    now,
	}
	r.conns[id] = conn
	count := len(r.conns)
	r.mu.Unlock()

	r.totalRegistered.Add(1)
	r.logger.Debug("connection registered", "conn_id", id, "count", count)
	r.changed(count)
	return conn
}

// Unregister removes a connection. The second call for the same id is a
// no-op and returns false.
func (r *Registry) Unregister(id string) (*Connection, bool) {
	r.mu.Lock()
	conn, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	count := len(r.conns)
	r.mu.Unlock()

	if !ok {
		return nil, false
	}
	r.totalRemoved.Add(1)
	r.logger.Debug("connection unregistered", "conn_id", id, "count", count)
	r.changed(count)
	return conn, true
}

// Get returns the live connection with the given id, or nil.
func (r *Registry) Get(id string) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[id]
}

// SetDisplayName updates a connection's display name. It reports whether
// the connection exists.
func (r *Registry) SetDisplayName(id, name string) bool {
	conn := r.Get(id)
	if conn == nil {
		return false
	}
	conn.mu.Lock()
	conn.name = name
	conn.mu.Unlock()
	return true
}

// Touch records a liveness response for a connection.
func (r *Registry) Touch(id string) bool {
	conn := r.Get(id)
	if conn == nil {
		return false
	}
	now := r.clock.Now()
	conn.mu.Lock()
	conn.lastSeen = now
	conn.mu.Unlock()
	return true
}

// ForEach calls fn for every connection in a snapshot taken at call time,
// ordered by registration time. Iteration stops when fn returns false.
// fn may call back into the registry.
func (r *Registry) ForEach(fn func(*Connection) bool) {
	for _, conn := range r.Snapshot() {
		if !fn(conn) {
			return
		}
	}
}

// Snapshot returns the live connections ordered by registration time.
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	sort.Slice(conns, func(i, j int) bool {
		if conns[i].ConnectedAt.Equal(conns[j].ConnectedAt) {
			return conns[i].ID < conns[j].ID
		}
		return conns[i].ConnectedAt.Before(conns[j].ConnectedAt)
	})
	return conns
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Roster returns the identifier to display name map.
func (r *Registry) Roster() map[string]string {
	roster := make(map[string]string)
	r.ForEach(func(c *Connection) bool {
		roster[c.ID] = c.Name()
		return true
	})
	return roster
}

// Clear removes every connection without invoking OnChange and returns
// them so the caller can close their transports.
func (r *Registry) Clear() []*Connection {
	conns := r.Snapshot()
	r.mu.Lock()
	r.conns = make(map[string]*Connection)
	r.mu.Unlock()
	r.totalRemoved.Add(uint64(len(conns)))
	return conns
}

// Stats reports lifetime counters.
func (r *Registry) Stats() Stats {
	return Stats{
		Active:          r.Count(),
		TotalRegistered: r.totalRegistered.Load(),
		TotalRemoved:    r.totalRemoved.Load(),
	}
}

// Stats holds registry counters.
type Stats struct {
	Active          int
	TotalRegistered uint64
	TotalRemoved    uint64
}

func (r *Registry) changed(count int) {
	if r.onChange != nil {
		r.onChange(count)
	}
}

const (
	idLength   = 9
	idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// generateID returns a random 9 character base36 string. Uniqueness is
// only needed among live connections, which Register enforces.
func generateID() string {
	b := make([]byte, idLength)
	if _, err := rand.Read(b); err != nil {
		panic("registry: crypto/rand failed: " + err.Error())
	}
	for i := range b {
		b[i] = idAlphabet[int(b[i])%len(idAlphabet)]
	}
	return string(b)
}
