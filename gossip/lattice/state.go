// Package lattice provides the mergeable value types maintained through
// gossip.
//
// Every type is a join-semilattice: its merge operation is commutative,
// associative and idempotent, so applying updates in any order, with any
// duplication, yields the same result. That property is what lets the
// gossip engine tolerate message loss, duplication and reordering without
// any delivery guarantee from the transport.
package lattice

import (
	"github.com/ugorji/go/codec"
)

// Digest is a compact order-independent summary of a state. Two replicas
// with equal digests hold the same state (with overwhelming probability),
// letting anti-entropy compare replicas without transferring full state.
type Digest uint64

// State is the capability set the gossip engine depends on. Concrete
// instances (sets, registers, counters) are interchangeable behind this
// contract and selected at construction time.
//
// Implementations are safe for concurrent use: the engine guarantees a
// single round-step in flight per node, but harnesses may inspect state
// while a run executes.
type State interface {
	// Merge joins other into the state. Merge is commutative, associative
	// and idempotent for all reachable states.
	Merge(other State) error

	// ApplyDelta applies one encoded update produced by the state's local
	// operations.
	ApplyDelta(b []byte) error

	// ApplySnapshot merges an encoded full-state snapshot.
	ApplySnapshot(b []byte) error

	// Snapshot returns the encoded full state.
	Snapshot() ([]byte, error)

	// Digest returns the state's compact summary.
	Digest() Digest
}

var msgpackHandle codec.MsgpackHandle

func marshal(v interface{}) []byte {
	var b []byte
	enc := codec.NewEncoderBytes(&b, &msgpackHandle)
	if err := enc.Encode(v); err != nil {
		// Only reachable for unsupported types, which the lattice types
		// never are.
		panic("lattice: encode: " + err.Error())
	}
	return b
}

func unmarshal(b []byte, v interface{}) error {
	dec := codec.NewDecoderBytes(b, &msgpackHandle)
	return dec.Decode(v)
}
