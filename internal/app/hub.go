package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/termrelay/internal/core"
	"github.com/dkeye/termrelay/internal/domain"
)

var ErrHubClosed = errors.New("hub closed")

// Hub is the relay protocol handler. It exclusively owns the connection
// registry, the room tables and the authority table; one mutex covers all
// three so a teardown is applied as a single unit.
type Hub struct {
	mu        sync.Mutex
	conns     *core.Registry
	rooms     *core.Rooms
	authority *core.Authority
	closed    bool

	policy    Policy
	observers []Observer
}

type Option func(*Hub)

func WithPolicy(p Policy) Option {
	return func(h *Hub) {
		if p != nil {
			h.policy = p
		}
	}
}

func WithObserver(o Observer) Option {
	return func(h *Hub) { h.observers = append(h.observers, o) }
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		rooms:     core.NewRooms(),
		authority: core.NewAuthority(),
		policy:    DropPolicy{},
	}
	h.conns = core.NewRegistry(h.rooms.DropConn, h.releaseAuthority)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// delivery is one frame bound for one subscriber, resolved under the lock
// and sent after it is released.
type delivery struct {
	to    domain.ConnID
	room  domain.RoomKey
	sig   core.SignalConnection
	frame core.Frame
}

// Connect registers a newly opened transport session.
func (h *Hub) Connect(sig core.SignalConnection, p domain.Principal) (domain.ConnID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", ErrHubClosed
	}
	id := h.conns.Register(sig, p)
	log.Info().Str("module", "app.hub").Str("conn", string(id)).Str("user", p.UserID).Msg("terminal client connected")
	return id, nil
}

// Disconnect tears the connection down: registry entry, room memberships and
// any authority it holds go together. Unknown ids are a no-op.
func (h *Hub) Disconnect(id domain.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns.Unregister(id)
	if !ok {
		return
	}
	log.Info().
		Str("module", "app.hub").
		Str("conn", string(id)).
		Str("device", string(c.Meta.Device)).
		Dur("age", time.Since(c.Meta.CreatedAt)).
		Msg("terminal client disconnected")
}

// Dispatch applies one validated event from conn. Events from a connection
// the hub no longer knows are dropped.
func (h *Hub) Dispatch(from domain.ConnID, ev domain.Event) {
	var out []delivery

	h.mu.Lock()
	if _, ok := h.conns.Get(from); !ok {
		h.mu.Unlock()
		log.Debug().Str("module", "app.hub").Str("conn", string(from)).Str("event", ev.Name()).Msg("event from unknown connection")
		return
	}
	switch e := ev.(type) {
	case domain.Join:
		out = h.join(from, e)
	case domain.Leave:
		h.leave(from, e)
	case domain.Input:
		out = h.fanOut(out, from, e.Device, domain.EventInput, domain.DataMessage{Event: domain.EventInput, Data: e.Data},
			domain.RoomDevice, domain.RoomLegacy)
	case domain.Output:
		if !h.authority.Check(e.Device, from) {
			log.Warn().Str("module", "app.hub").Str("conn", string(from)).Str("device", string(e.Device)).
				Msg("ignored output from non-authoritative connection")
			break
		}
		out = h.fanOut(out, from, e.Device, domain.EventOutput, domain.DataMessage{Event: domain.EventOutput, Data: e.Data},
			domain.RoomBrowser, domain.RoomLegacy)
	case domain.Resize:
		out = h.fanOut(out, from, e.Device, domain.EventResize, domain.ResizeMessage{Event: domain.EventResize, Device: e.Device, Cols: e.Cols, Rows: e.Rows},
			domain.RoomDevice, domain.RoomLegacy)
	}
	h.mu.Unlock()

	h.deliver(out)
}

func (h *Hub) join(from domain.ConnID, e domain.Join) []delivery {
	key := domain.RoomKey{Device: e.Device, Kind: domain.RoomKindFor(e.Role)}
	h.conns.Associate(from, e.Device, e.Role)
	h.rooms.Join(from, key)
	log.Info().Str("module", "app.hub").Str("conn", string(from)).Str("room", key.String()).Msg("joined")

	switch e.Role {
	case domain.RoleDevice:
		if h.authority.Check(e.Device, from) {
			return nil
		}
		prev, _ := h.authority.Claim(e.Device, from)
		for _, o := range h.observers {
			o.AuthorityClaimed(e.Device, from, prev)
		}
	case domain.RoleBrowser:
		c, _ := h.conns.Get(from)
		frame, err := encode(domain.EventServerMessage, domain.DataMessage{
			Event: domain.EventServerMessage,
			Data:  fmt.Sprintf("Interested in %s. Waiting for device...", e.Device),
		})
		if err != nil {
			return nil
		}
		return []delivery{{to: from, room: key, sig: c.Signal, frame: frame}}
	}
	return nil
}

func (h *Hub) leave(from domain.ConnID, e domain.Leave) {
	left := h.rooms.Leave(from, e.Device)
	log.Info().Str("module", "app.hub").Str("conn", string(from)).Str("device", string(e.Device)).
		Int("rooms", len(left)).Msg("left terminal rooms")
}

// fanOut resolves every member of the given rooms except the sender. A
// connection in more than one of the rooms gets one copy per room.
func (h *Hub) fanOut(out []delivery, from domain.ConnID, device domain.DeviceID, event string, msg any, kinds ...domain.RoomKind) []delivery {
	frame, err := encode(event, msg)
	if err != nil {
		return out
	}
	var ids []domain.ConnID
	for _, kind := range kinds {
		key := domain.RoomKey{Device: device, Kind: kind}
		ids = h.rooms.Members(ids[:0], key, from)
		for _, id := range ids {
			c, ok := h.conns.Get(id)
			if !ok {
				continue
			}
			out = append(out, delivery{to: id, room: key, sig: c.Signal, frame: frame})
		}
	}
	log.Debug().Str("module", "app.hub").Str("conn", string(from)).Str("device", string(device)).
		Str("event", event).Int("recipients", len(out)).Msg("fan-out")
	return out
}

func (h *Hub) deliver(out []delivery) {
	for _, d := range out {
		err := d.sig.TrySend(d.frame)
		if err == nil || !errors.Is(err, core.ErrBackpressure) {
			continue
		}
		switch h.policy.OnBackPressure(d.room, d.to) {
		case KickMember:
			log.Warn().Str("module", "app.hub").Str("conn", string(d.to)).Str("room", d.room.String()).Msg("kicking slow consumer")
			d.sig.Close()
		case DropFrame:
			log.Debug().Str("module", "app.hub").Str("conn", string(d.to)).Str("room", d.room.String()).Msg("dropped frame for slow consumer")
		}
	}
}

// releaseAuthority runs as a registry cleanup, under the hub lock.
func (h *Hub) releaseAuthority(id domain.ConnID) {
	for _, d := range h.authority.ReleaseConn(id) {
		for _, o := range h.observers {
			o.AuthorityReleased(d, id)
		}
	}
}

// Close refuses new connections and closes every live one; each closure
// runs the normal disconnect path from its adapter.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	sigs := make([]core.SignalConnection, 0, h.conns.Len())
	h.conns.Each(func(c *core.Conn) { sigs = append(sigs, c.Signal) })
	h.mu.Unlock()

	for _, s := range sigs {
		s.Close()
	}
	log.Info().Str("module", "app.hub").Int("closed", len(sigs)).Msg("hub closed")
}

// DeviceState is a read-only view of one device identity.
type DeviceState struct {
	Device    domain.DeviceID `json:"device_id"`
	Authority domain.ConnID   `json:"authority,omitempty"`
	Devices   int             `json:"devices"`
	Browsers  int             `json:"browsers"`
	Legacy    int             `json:"legacy"`
}

// Devices lists every identity with a live room or an authority holder.
func (h *Hub) Devices() []DeviceState {
	h.mu.Lock()
	defer h.mu.Unlock()

	seen := make(map[domain.DeviceID]struct{})
	for _, d := range h.rooms.Devices() {
		seen[d] = struct{}{}
	}
	for _, d := range h.authority.Devices() {
		seen[d] = struct{}{}
	}
	out := make([]DeviceState, 0, len(seen))
	for d := range seen {
		out = append(out, h.stateOf(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Device < out[j].Device })
	return out
}

func (h *Hub) Device(id domain.DeviceID) (DeviceState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.stateOf(id)
	if st.Authority == "" && st.Devices == 0 && st.Browsers == 0 && st.Legacy == 0 {
		return st, false
	}
	return st, true
}

func (h *Hub) ConnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns.Len()
}

func (h *Hub) stateOf(d domain.DeviceID) DeviceState {
	holder, _ := h.authority.Holder(d)
	return DeviceState{
		Device:    d,
		Authority: holder,
		Devices:   h.rooms.Count(domain.RoomKey{Device: d, Kind: domain.RoomDevice}),
		Browsers:  h.rooms.Count(domain.RoomKey{Device: d, Kind: domain.RoomBrowser}),
		Legacy:    h.rooms.Count(domain.RoomKey{Device: d, Kind: domain.RoomLegacy}),
	}
}

func encode(event string, msg any) (core.Frame, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Str("event", event).Msg("encode frame")
		return nil, err
	}
	return core.Frame(b), nil
}
