package core

import "errors"

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// Frame is a raw encoded message.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
// TrySend must never block.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
