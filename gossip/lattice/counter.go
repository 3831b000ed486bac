package lattice

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
)

type counterDelta struct {
	Replica uint32 `codec:"replica"`
	Total   uint64 `codec:"total"`
}

type counterSnapshot struct {
	Counts map[uint32]uint64 `codec:"counts"`
}

// Counter is a grow-only counter maintained through gossip. Each replica
// owns one slot that only it increments; the counter's value is the sum of
// all slots. Deltas carry the replica's running total, so applying them is
// idempotent and commutative without deduplication.
type Counter struct {
	mu sync.Mutex

	counts map[uint32]uint64
}

func NewCounter() *Counter {
	return &Counter{
		counts: make(map[uint32]uint64),
	}
}

// Inc adds delta to the replica's slot and returns the encoded delta to
// gossip.
func (c *Counter) Inc(replica uint32, delta uint64) []byte {
	c.mu.Lock()
	c.counts[replica] += delta
	d := counterDelta{Replica: replica, Total: c.counts[replica]}
	c.mu.Unlock()

	return marshal(&d)
}

// Value returns the counter's value: the sum over all replica slots.
func (c *Counter) Value() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total uint64
	for _, count := range c.counts {
		total += count
	}
	return total
}

func (c *Counter) apply(d counterDelta) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d.Total > c.counts[d.Replica] {
		c.counts[d.Replica] = d.Total
	}
}

func (c *Counter) ApplyDelta(b []byte) error {
	var d counterDelta
	if err := unmarshal(b, &d); err != nil {
		return fmt.Errorf("decode delta: %w", err)
	}
	c.apply(d)
	return nil
}

func (c *Counter) Merge(other State) error {
	o, ok := other.(*Counter)
	if !ok {
		return fmt.Errorf("cannot merge %T into counter", other)
	}

	o.mu.Lock()
	counts := make(map[uint32]uint64, len(o.counts))
	for replica, count := range o.counts {
		counts[replica] = count
	}
	o.mu.Unlock()

	c.merge(counterSnapshot{Counts: counts})
	return nil
}

func (c *Counter) ApplySnapshot(b []byte) error {
	var snapshot counterSnapshot
	if err := unmarshal(b, &snapshot); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	c.merge(snapshot)
	return nil
}

func (c *Counter) Snapshot() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := counterSnapshot{Counts: c.counts}
	return marshal(&snapshot), nil
}

func (c *Counter) Digest() Digest {
	c.mu.Lock()
	defer c.mu.Unlock()

	var buf [12]byte
	var digest uint64
	for replica, count := range c.counts {
		if count == 0 {
			continue
		}
		binary.BigEndian.PutUint32(buf[0:], replica)
		binary.BigEndian.PutUint64(buf[4:], count)
		digest += xxhash.Sum64(buf[:])
	}
	return Digest(digest)
}

// merge joins the snapshot slot-wise by maximum.
func (c *Counter) merge(snapshot counterSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for replica, count := range snapshot.Counts {
		if count > c.counts[replica] {
			c.counts[replica] = count
		}
	}
}

var _ State = &Counter{}
