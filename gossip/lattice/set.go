package lattice

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
)

type setOp uint8

const (
	setOpAdd setOp = iota + 1
	setOpRemove
)

type setDelta struct {
	Op   setOp  `codec:"op"`
	Item uint64 `codec:"item"`
}

// setEntry counts how many times an item was added and removed. An item is
// present while its add count exceeds its remove count.
type setEntry struct {
	Added   uint64 `codec:"added"`
	Removed uint64 `codec:"removed"`
}

type setSnapshot struct {
	Items map[uint64]setEntry `codec:"items"`
}

// Set is a set of items maintained through gossip, tracking per-item add
// and remove tallies (the engine's deduplication ensures each update is
// applied at most once per node).
//
// Snapshots merge entry-wise by maximum, which preserves presence semantics
// under anti-entropy repair even though exact tallies may be clipped.
type Set struct {
	mu sync.Mutex

	items map[uint64]setEntry
}

func NewSet() *Set {
	return &Set{
		items: make(map[uint64]setEntry),
	}
}

// Add returns the encoded delta recording one addition of the item. Set
// deltas are tally increments, so each must be applied exactly once per
// node through ApplyDelta; the engine does this for the origin too.
func (s *Set) Add(item uint64) []byte {
	return marshal(&setDelta{Op: setOpAdd, Item: item})
}

// Remove returns the encoded delta recording one removal of the item. See
// Add for the application contract.
func (s *Set) Remove(item uint64) []byte {
	return marshal(&setDelta{Op: setOpRemove, Item: item})
}

// Contains reports whether the item is present: added more times than
// removed.
func (s *Set) Contains(item uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[item]
	return ok && entry.Added > entry.Removed
}

// Len returns the number of present items.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, entry := range s.items {
		if entry.Added > entry.Removed {
			n++
		}
	}
	return n
}

func (s *Set) apply(delta setDelta) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.items[delta.Item]
	switch delta.Op {
	case setOpAdd:
		entry.Added++
	case setOpRemove:
		entry.Removed++
	}
	s.items[delta.Item] = entry
}

func (s *Set) ApplyDelta(b []byte) error {
	var delta setDelta
	if err := unmarshal(b, &delta); err != nil {
		return fmt.Errorf("decode delta: %w", err)
	}
	if delta.Op != setOpAdd && delta.Op != setOpRemove {
		return fmt.Errorf("unknown set op: %d", delta.Op)
	}
	s.apply(delta)
	return nil
}

func (s *Set) Merge(other State) error {
	o, ok := other.(*Set)
	if !ok {
		return fmt.Errorf("cannot merge %T into set", other)
	}

	o.mu.Lock()
	snapshot := setSnapshot{Items: make(map[uint64]setEntry, len(o.items))}
	for item, entry := range o.items {
		snapshot.Items[item] = entry
	}
	o.mu.Unlock()

	s.merge(snapshot)
	return nil
}

func (s *Set) ApplySnapshot(b []byte) error {
	var snapshot setSnapshot
	if err := unmarshal(b, &snapshot); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	s.merge(snapshot)
	return nil
}

func (s *Set) Snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := setSnapshot{Items: s.items}
	return marshal(&snapshot), nil
}

func (s *Set) Digest() Digest {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf [24]byte
	var digest uint64
	for item, entry := range s.items {
		if entry.Added == 0 && entry.Removed == 0 {
			continue
		}
		binary.BigEndian.PutUint64(buf[0:], item)
		binary.BigEndian.PutUint64(buf[8:], entry.Added)
		binary.BigEndian.PutUint64(buf[16:], entry.Removed)
		// Summing per-entry hashes keeps the digest independent of map
		// iteration order.
		digest += xxhash.Sum64(buf[:])
	}
	return Digest(digest)
}

// merge joins the snapshot entry-wise by maximum.
func (s *Set) merge(snapshot setSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for item, entry := range snapshot.Items {
		existing := s.items[item]
		if entry.Added > existing.Added {
			existing.Added = entry.Added
		}
		if entry.Removed > existing.Removed {
			existing.Removed = entry.Removed
		}
		s.items[item] = existing
	}
}

var _ State = &Set{}
