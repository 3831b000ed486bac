package gossip

import (
	"errors"
	"time"
)

var (
	// ErrTimeout indicates no message arrived within the receive timeout.
	ErrTimeout = errors.New("receive timeout")

	// ErrClosed indicates the transport has been closed.
	ErrClosed = errors.New("transport closed")
)

// Transport is the capability set the engine requires to exchange messages
// with peers. Implementations cover a real unreliable network (UDP), one
// in-process queue per node, and a multiplexed dispatch table for
// large-scale simulation.
//
// All implementations are best-effort: Send may fail or silently drop, and
// no ordering or delivery guarantee is provided. The engine tolerates this
// because merges are idempotent and commutative.
type Transport interface {
	// Send delivers the message to the given peer, fire-and-forget.
	Send(peer NodeID, m *Message) error

	// Recv returns the next inbound message. It blocks until a message
	// arrives, the timeout elapses (ErrTimeout) or the transport closes
	// (ErrClosed). A timeout <= 0 polls without blocking.
	Recv(timeout time.Duration) (*Message, error)

	// LocalID returns the node this transport endpoint belongs to.
	LocalID() NodeID

	// Close releases the endpoint. Pending messages are discarded.
	Close() error
}
