package core

import (
	"github.com/dkeye/termrelay/internal/domain"
)

// Authority is the per-device single-writer record: for each device identity
// at most one connection is trusted to emit output. heldBy is the
// back-reference from a connection to the identities it holds.
// Not safe for concurrent use; the hub serializes access.
type Authority struct {
	holder map[domain.DeviceID]domain.ConnID
	heldBy map[domain.ConnID]map[domain.DeviceID]struct{}
}

func NewAuthority() *Authority {
	return &Authority{
		holder: make(map[domain.DeviceID]domain.ConnID),
		heldBy: make(map[domain.ConnID]map[domain.DeviceID]struct{}),
	}
}

// Claim makes conn the holder for device, last writer wins. The previous
// holder, if any and different, is returned; it is not notified.
func (a *Authority) Claim(device domain.DeviceID, conn domain.ConnID) (prev domain.ConnID, superseded bool) {
	prev, held := a.holder[device]
	if held && prev == conn {
		return "", false
	}
	if held {
		a.unlink(prev, device)
	}
	a.holder[device] = conn
	devs, ok := a.heldBy[conn]
	if !ok {
		devs = make(map[domain.DeviceID]struct{})
		a.heldBy[conn] = devs
	}
	devs[device] = struct{}{}
	return prev, held
}

// Check reports whether sender is the current holder for device.
func (a *Authority) Check(device domain.DeviceID, sender domain.ConnID) bool {
	holder, ok := a.holder[device]
	return ok && holder == sender
}

func (a *Authority) Holder(device domain.DeviceID) (domain.ConnID, bool) {
	c, ok := a.holder[device]
	return c, ok
}

// HeldBy returns the device identities conn currently holds.
func (a *Authority) HeldBy(conn domain.ConnID) []domain.DeviceID {
	out := make([]domain.DeviceID, 0, len(a.heldBy[conn]))
	for d := range a.heldBy[conn] {
		out = append(out, d)
	}
	return out
}

// ReleaseConn clears every identity conn holds. Identities it lost to a later
// claim are untouched.
func (a *Authority) ReleaseConn(conn domain.ConnID) []domain.DeviceID {
	devs := a.heldBy[conn]
	released := make([]domain.DeviceID, 0, len(devs))
	for d := range devs {
		delete(a.holder, d)
		released = append(released, d)
	}
	delete(a.heldBy, conn)
	return released
}

func (a *Authority) Len() int { return len(a.holder) }

func (a *Authority) unlink(conn domain.ConnID, device domain.DeviceID) {
	devs, ok := a.heldBy[conn]
	if !ok {
		return
	}
	delete(devs, device)
	if len(devs) == 0 {
		delete(a.heldBy, conn)
	}
}

// Devices returns every identity that currently has a holder.
func (a *Authority) Devices() []domain.DeviceID {
	out := make([]domain.DeviceID, 0, len(a.holder))
	for d := range a.holder {
		out = append(out, d)
	}
	return out
}
