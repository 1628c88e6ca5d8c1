package registry

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/homehub-sim/homehub/pkg/persistence"
	"github.com/homehub-sim/homehub/pkg/transport"
)

// Identity names a device.
type Identity struct {
	ID   string
	Type string
}

// Entry is a snapshot of one registry entry.
type Entry struct {
	Identity

	// Conn is the live connection, or nil when the device is offline.
	Conn transport.EnvelopeConn

	// LastSeenAddress is the remote address of the latest handshake.
	LastSeenAddress string

	// LastSeen is the time of the latest handshake.
	LastSeen time.Time
}

// Connected reports whether the entry has a live connection.
func (e Entry) Connected() bool {
	return e.Conn != nil
}

// Store persists registry snapshots.
// Implemented by persistence.RegistryStore.
type Store interface {
	Save(snapshot persistence.RegistrySnapshot) error
	Load() (persistence.RegistrySnapshot, error)
}

// Registry is the hub's device table. It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
	order   []string
	store   Store
	logger  *slog.Logger
}

// New creates an empty registry persisting to store. A nil store keeps the
// registry in memory only.
func New(store Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]*Entry),
		store:   store,
		logger:  logger,
	}
}

// Load creates a registry from the persisted snapshot. A missing or
// unreadable snapshot yields an empty registry.
func Load(store Store, logger *slog.Logger) *Registry {
	r := New(store, logger)
	if store == nil {
		return r
	}

	snapshot, err := store.Load()
	if err != nil {
		r.logger.Warn("could not load device registry, starting empty", "error", err)
		return r
	}

	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		r.entries[id] = &Entry{Identity: Identity{ID: id, Type: snapshot[id].DevType}}
		r.order = append(r.order, id)
	}
	r.logger.Info("loaded device registry", "devices", len(ids))
	return r
}

// Save persists the current snapshot. It reports false on failure.
func (r *Registry) Save() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked()
}

func (r *Registry) saveLocked() bool {
	if r.store == nil {
		return true
	}
	snapshot := make(persistence.RegistrySnapshot, len(r.entries))
	for id, e := range r.entries {
		snapshot[id] = persistence.RegistryRecord{DevType: e.Type}
	}
	if err := r.store.Save(snapshot); err != nil {
		r.logger.Error("could not save device registry", "error", err)
		return false
	}
	return true
}

// Upsert records a completed handshake. The entry's type and connection are
// replaced; a different connection previously held by the entry is closed.
// The registry is saved before Upsert returns. It reports whether the
// identifier was new.
func (r *Registry) Upsert(id, devType string, conn transport.EnvelopeConn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, known := r.entries[id]
	if !known {
		e = &Entry{Identity: Identity{ID: id}}
		r.entries[id] = e
		r.order = append(r.order, id)
	}

	if e.Conn != nil && e.Conn != conn {
		e.Conn.Close()
	}

	e.Type = devType
	e.Conn = conn
	e.LastSeen = time.Now()
	if conn != nil && conn.RemoteAddr() != nil {
		e.LastSeenAddress = conn.RemoteAddr().String()
	}

	r.saveLocked()
	return !known
}

// MarkOffline detaches and closes the entry's connection. It reports
// whether the entry was connected.
func (r *Registry) MarkOffline(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.Conn == nil {
		return false
	}
	e.Conn.Close()
	e.Conn = nil
	return true
}

// MarkOfflineConn is MarkOffline applied only while the entry still holds
// conn, so a late failure on a superseded connection cannot detach its
// replacement.
func (r *Registry) MarkOfflineConn(id string, conn transport.EnvelopeConn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.Conn == nil || e.Conn != conn {
		return false
	}
	e.Conn.Close()
	e.Conn = nil
	return true
}

// Remove forgets a device, closing its connection. It reports whether the
// entry existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return false
	}
	if e.Conn != nil {
		e.Conn.Close()
	}
	delete(r.entries, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })

	r.saveLocked()
	return true
}

// Get returns a snapshot of the entry for id.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Conn returns the live connection of id.
func (r *Registry) Conn(id string) (transport.EnvelopeConn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.Conn == nil {
		return nil, false
	}
	return e.Conn, true
}

// ListAll returns every entry in insertion order.
func (r *Registry) ListAll() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.entries[id])
	}
	return out
}

// ListConnected returns the connected entries in insertion order.
func (r *Registry) ListConnected() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Entry
	for _, id := range r.order {
		if e := r.entries[id]; e.Conn != nil {
			out = append(out, *e)
		}
	}
	return out
}

// ConnectedIDs returns the identifiers of connected entries in insertion
// order.
func (r *Registry) ConnectedIDs() []string {
	entries := r.ListConnected()
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// ConnectedCount returns the number of connected entries.
func (r *Registry) ConnectedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.entries {
		if e.Conn != nil {
			n++
		}
	}
	return n
}

// CloseAll closes every live connection and marks all entries offline.
// It returns the number of connections closed.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	closed := 0
	for _, e := range r.entries {
		if e.Conn != nil {
			e.Conn.Close()
			e.Conn = nil
			closed++
		}
	}
	return closed
}
