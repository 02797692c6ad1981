package core

import (
	"github.com/dkeye/termrelay/internal/domain"
)

type connSet map[domain.ConnID]struct{}

// Rooms holds per-device subscriber sets keyed by (device, kind), with a
// reverse index so a closing connection is removed without scanning.
// Not safe for concurrent use; the hub serializes access.
type Rooms struct {
	members map[domain.RoomKey]connSet
	byConn  map[domain.ConnID]map[domain.RoomKey]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[domain.RoomKey]connSet),
		byConn:  make(map[domain.ConnID]map[domain.RoomKey]struct{}),
	}
}

// Join adds conn to the room. Reports whether it was not a member already.
func (r *Rooms) Join(conn domain.ConnID, key domain.RoomKey) bool {
	set, ok := r.members[key]
	if !ok {
		set = make(connSet)
		r.members[key] = set
	}
	if _, in := set[conn]; in {
		return false
	}
	set[conn] = struct{}{}

	keys, ok := r.byConn[conn]
	if !ok {
		keys = make(map[domain.RoomKey]struct{})
		r.byConn[conn] = keys
	}
	keys[key] = struct{}{}
	return true
}

// Leave removes conn from every room kind of device and returns the kinds it left.
func (r *Rooms) Leave(conn domain.ConnID, device domain.DeviceID) []domain.RoomKind {
	var left []domain.RoomKind
	for _, kind := range domain.RoomKinds {
		key := domain.RoomKey{Device: device, Kind: kind}
		if r.remove(conn, key) {
			left = append(left, kind)
		}
	}
	return left
}

// DropConn removes conn from every room it is in.
func (r *Rooms) DropConn(conn domain.ConnID) {
	for key := range r.byConn[conn] {
		r.remove(conn, key)
	}
	delete(r.byConn, conn)
}

func (r *Rooms) remove(conn domain.ConnID, key domain.RoomKey) bool {
	set, ok := r.members[key]
	if !ok {
		return false
	}
	if _, in := set[conn]; !in {
		return false
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(r.members, key)
	}
	if keys, ok := r.byConn[conn]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(r.byConn, conn)
		}
	}
	return true
}

// Members returns the room's members, minus exclude, appended to dst.
func (r *Rooms) Members(dst []domain.ConnID, key domain.RoomKey, exclude domain.ConnID) []domain.ConnID {
	for id := range r.members[key] {
		if id == exclude {
			continue
		}
		dst = append(dst, id)
	}
	return dst
}

func (r *Rooms) IsMember(conn domain.ConnID, key domain.RoomKey) bool {
	_, ok := r.members[key][conn]
	return ok
}

func (r *Rooms) Count(key domain.RoomKey) int { return len(r.members[key]) }

// RoomsOf returns the rooms conn is currently in.
func (r *Rooms) RoomsOf(conn domain.ConnID) []domain.RoomKey {
	out := make([]domain.RoomKey, 0, len(r.byConn[conn]))
	for key := range r.byConn[conn] {
		out = append(out, key)
	}
	return out
}

// Devices returns every device identity with at least one non-empty room.
func (r *Rooms) Devices() []domain.DeviceID {
	seen := make(map[domain.DeviceID]struct{})
	out := make([]domain.DeviceID, 0)
	for key := range r.members {
		if _, ok := seen[key.Device]; ok {
			continue
		}
		seen[key.Device] = struct{}{}
		out = append(out, key.Device)
	}
	return out
}
