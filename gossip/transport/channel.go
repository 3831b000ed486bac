package transport

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/pheromesh/pheromesh/gossip"
)

// ChannelNetwork routes messages between in-process transports, one
// buffered queue per node. Suitable for small simulations where each node
// owns a goroutine.
//
// Sends to a full queue are dropped silently, mirroring datagram loss.
type ChannelNetwork struct {
	mu sync.RWMutex

	queues map[gossip.NodeID]chan *gossip.Message

	buffer int

	closed   *atomic.Bool
	closedCh chan struct{}
}

// NewChannelNetwork creates a network whose per-node queues hold up to
// buffer messages.
func NewChannelNetwork(buffer int) *ChannelNetwork {
	return &ChannelNetwork{
		queues:   make(map[gossip.NodeID]chan *gossip.Message),
		buffer:   buffer,
		closed:   atomic.NewBool(false),
		closedCh: make(chan struct{}),
	}
}

// Transport registers the node and returns its endpoint.
func (n *ChannelNetwork) Transport(id gossip.NodeID) (*ChannelTransport, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed.Load() {
		return nil, gossip.ErrClosed
	}
	if _, ok := n.queues[id]; ok {
		return nil, fmt.Errorf("node already registered: %d", id)
	}

	queue := make(chan *gossip.Message, n.buffer)
	n.queues[id] = queue
	return &ChannelTransport{
		network: n,
		id:      id,
		queue:   queue,
	}, nil
}

// Close stops the network. Blocked receivers wake with ErrClosed; pending
// messages are discarded.
func (n *ChannelNetwork) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(n.closedCh)
	return nil
}

// ChannelTransport is one node's endpoint in a ChannelNetwork.
type ChannelTransport struct {
	network *ChannelNetwork
	id      gossip.NodeID
	queue   chan *gossip.Message
}

func (t *ChannelTransport) Send(peer gossip.NodeID, m *gossip.Message) error {
	if t.network.closed.Load() {
		return gossip.ErrClosed
	}

	t.network.mu.RLock()
	queue, ok := t.network.queues[peer]
	t.network.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown peer: %d", peer)
	}

	select {
	case queue <- m:
	default:
		// Full queue: drop, as an unreliable network would.
	}
	return nil
}

func (t *ChannelTransport) Recv(timeout time.Duration) (*gossip.Message, error) {
	return recvQueue(t.queue, t.network.closedCh, timeout)
}

func (t *ChannelTransport) LocalID() gossip.NodeID {
	return t.id
}

// Close closes the whole network: endpoints share its lifetime.
func (t *ChannelTransport) Close() error {
	return t.network.Close()
}

var _ gossip.Transport = &ChannelTransport{}

// recvQueue pops the next message from the queue, waiting up to timeout.
// A timeout <= 0 polls without blocking.
func recvQueue(
	queue chan *gossip.Message,
	closedCh chan struct{},
	timeout time.Duration,
) (*gossip.Message, error) {
	if timeout <= 0 {
		select {
		case m := <-queue:
			return m, nil
		case <-closedCh:
			return nil, gossip.ErrClosed
		default:
			return nil, gossip.ErrTimeout
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m := <-queue:
		return m, nil
	case <-closedCh:
		return nil, gossip.ErrClosed
	case <-timer.C:
		return nil, gossip.ErrTimeout
	}
}
