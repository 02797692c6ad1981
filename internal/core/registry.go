package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/termrelay/internal/domain"
)

// Conn is a registry entry: connection meta plus its transport endpoint.
type Conn struct {
	Meta   domain.Connection
	Signal SignalConnection
}

// CleanupFunc is run by Unregister for the removed connection.
type CleanupFunc func(id domain.ConnID)

// Registry tracks every live connection.
// Not safe for concurrent use; the hub serializes access.
type Registry struct {
	conns    map[domain.ConnID]*Conn
	cleanups []CleanupFunc

	now   func() time.Time
	newID func() domain.ConnID
}

func NewRegistry(cleanups ...CleanupFunc) *Registry {
	return &Registry{
		conns:    make(map[domain.ConnID]*Conn),
		cleanups: cleanups,
		now:      time.Now,
		newID:    func() domain.ConnID { return domain.ConnID(uuid.NewString()) },
	}
}

// Register allocates a fresh identifier for a newly opened transport session.
func (r *Registry) Register(sig SignalConnection, p domain.Principal) domain.ConnID {
	id := r.newID()
	for _, taken := r.conns[id]; taken; _, taken = r.conns[id] {
		id = r.newID()
	}
	r.conns[id] = &Conn{
		Meta: domain.Connection{
			ID:        id,
			Principal: p,
			CreatedAt: r.now(),
		},
		Signal: sig,
	}
	log.Debug().Str("module", "core.registry").Str("conn", string(id)).Str("user", p.UserID).Msg("registered")
	return id
}

// Unregister removes the connection and runs every cleanup for it.
// Unknown ids are a no-op.
func (r *Registry) Unregister(id domain.ConnID) (*Conn, bool) {
	c, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	delete(r.conns, id)
	for _, fn := range r.cleanups {
		fn(id)
	}
	log.Debug().Str("module", "core.registry").Str("conn", string(id)).Msg("unregistered")
	return c, true
}

func (r *Registry) Get(id domain.ConnID) (*Conn, bool) {
	c, ok := r.conns[id]
	return c, ok
}

// Associate records the role and device identity of the latest join.
func (r *Registry) Associate(id domain.ConnID, device domain.DeviceID, role domain.Role) bool {
	c, ok := r.conns[id]
	if !ok {
		return false
	}
	c.Meta.Device = device
	c.Meta.Role = role
	return true
}

func (r *Registry) Len() int { return len(r.conns) }

// Each calls fn for every live connection in no particular order.
func (r *Registry) Each(fn func(*Conn)) {
	for _, c := range r.conns {
		fn(c)
	}
}
