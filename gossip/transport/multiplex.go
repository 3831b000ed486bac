package transport

import (
	"fmt"
	"time"

	"go.uber.org/atomic"

	"github.com/pheromesh/pheromesh/gossip"
)

// Mux is the shared dispatch table for large-scale simulation: a dense
// NodeID-indexed table of inbound queues serviced by a fixed worker pool
// (see Pool), so simulating tens of thousands of nodes needs no dedicated
// execution context per node.
//
// The table itself is immutable after construction; per-queue channels
// provide the multi-producer safety, so distinct nodes send and receive
// fully concurrently.
type Mux struct {
	queues []chan *gossip.Message

	closed   *atomic.Bool
	closedCh chan struct{}
}

// NewMux creates the dispatch table for nodes with IDs 0..nodes-1, each
// with an inbound queue holding up to buffer messages.
func NewMux(nodes, buffer int) *Mux {
	queues := make([]chan *gossip.Message, nodes)
	for i := range queues {
		queues[i] = make(chan *gossip.Message, buffer)
	}
	return &Mux{
		queues:   queues,
		closed:   atomic.NewBool(false),
		closedCh: make(chan struct{}),
	}
}

// Transport returns the endpoint for the given node.
func (m *Mux) Transport(id gossip.NodeID) (*MuxTransport, error) {
	if int(id) >= len(m.queues) {
		return nil, fmt.Errorf("node out of range: %d", id)
	}
	return &MuxTransport{
		mux: m,
		id:  id,
	}, nil
}

// Close stops the dispatch table. Pending messages are discarded.
func (m *Mux) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(m.closedCh)
	return nil
}

// MuxTransport is one virtual node's endpoint in a Mux.
type MuxTransport struct {
	mux *Mux
	id  gossip.NodeID
}

func (t *MuxTransport) Send(peer gossip.NodeID, m *gossip.Message) error {
	if t.mux.closed.Load() {
		return gossip.ErrClosed
	}
	if int(peer) >= len(t.mux.queues) {
		return fmt.Errorf("unknown peer: %d", peer)
	}

	select {
	case t.mux.queues[peer] <- m:
	default:
		// Full queue: drop, as an unreliable network would.
	}
	return nil
}

func (t *MuxTransport) Recv(timeout time.Duration) (*gossip.Message, error) {
	return recvQueue(t.mux.queues[t.id], t.mux.closedCh, timeout)
}

func (t *MuxTransport) LocalID() gossip.NodeID {
	return t.id
}

// Close closes the whole dispatch table: endpoints share its lifetime.
func (t *MuxTransport) Close() error {
	return t.mux.Close()
}

var _ gossip.Transport = &MuxTransport{}
