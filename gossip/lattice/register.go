package lattice

import (
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// registerValue is a timestamped write. Later timestamps win; ties break on
// writer then value so replicas agree deterministically.
type registerValue struct {
	Value  string `codec:"value"`
	Stamp  int64  `codec:"stamp"`
	Writer uint32 `codec:"writer"`
}

// supersedes reports whether v wins over o.
func (v registerValue) supersedes(o registerValue) bool {
	if v.Stamp != o.Stamp {
		return v.Stamp > o.Stamp
	}
	if v.Writer != o.Writer {
		return v.Writer > o.Writer
	}
	return v.Value > o.Value
}

// Register is a last-writer-wins register maintained through gossip.
// Applying a write is itself idempotent and commutative, so registers need
// no deduplication at all.
type Register struct {
	mu sync.Mutex

	current registerValue
}

func NewRegister() *Register {
	return &Register{}
}

// Set writes the value, stamped with the current time and the writing
// replica, and returns the encoded delta to gossip.
func (r *Register) Set(value string, writer uint32) []byte {
	v := registerValue{
		Value:  value,
		Stamp:  time.Now().UnixMicro(),
		Writer: writer,
	}
	r.apply(v)
	return marshal(&v)
}

// Get returns the register's current value.
func (r *Register) Get() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.current.Value
}

func (r *Register) apply(v registerValue) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v.supersedes(r.current) {
		r.current = v
	}
}

func (r *Register) ApplyDelta(b []byte) error {
	var v registerValue
	if err := unmarshal(b, &v); err != nil {
		return fmt.Errorf("decode delta: %w", err)
	}
	r.apply(v)
	return nil
}

func (r *Register) Merge(other State) error {
	o, ok := other.(*Register)
	if !ok {
		return fmt.Errorf("cannot merge %T into register", other)
	}

	o.mu.Lock()
	v := o.current
	o.mu.Unlock()

	r.apply(v)
	return nil
}

func (r *Register) ApplySnapshot(b []byte) error {
	return r.ApplyDelta(b)
}

func (r *Register) Snapshot() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return marshal(&r.current), nil
}

func (r *Register) Digest() Digest {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Digest(xxhash.Sum64(marshal(&r.current)))
}

var _ State = &Register{}
