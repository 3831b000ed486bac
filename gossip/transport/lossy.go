package transport

import (
	"math/rand"
	"sync"
	"time"

	"github.com/pheromesh/pheromesh/gossip"
)

// Lossy wraps a transport and silently drops the given fraction of sends,
// forcing the message loss the protocol must tolerate.
type Lossy struct {
	transport gossip.Transport
	rate      float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewLossy(transport gossip.Transport, rate float64, seed int64) *Lossy {
	return &Lossy{
		transport: transport,
		rate:      rate,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

func (t *Lossy) Send(peer gossip.NodeID, m *gossip.Message) error {
	t.mu.Lock()
	drop := t.rng.Float64() < t.rate
	t.mu.Unlock()
	if drop {
		return nil
	}
	return t.transport.Send(peer, m)
}

func (t *Lossy) Recv(timeout time.Duration) (*gossip.Message, error) {
	return t.transport.Recv(timeout)
}

func (t *Lossy) LocalID() gossip.NodeID {
	return t.transport.LocalID()
}

func (t *Lossy) Close() error {
	return t.transport.Close()
}

var _ gossip.Transport = &Lossy{}
