package core

import "errors"

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Frame is one encoded outbound message.
type Frame []byte

// SignalConnection abstracts the full-duplex transport of one client.
// Owned by the adapter; the adapter must Close() it.
// TrySend never blocks: a full buffer yields ErrBackpressure, a closed
// connection ErrConnClosed.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
