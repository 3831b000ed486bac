package gossip

import (
	"github.com/google/uuid"
)

// NodeID identifies a gossip participant within one run. IDs are assigned
// at construction and immutable for the run's lifetime.
type NodeID uint32

// PriorityClass distinguishes accelerated traffic from regular traffic.
type PriorityClass uint8

const (
	// ClassRegular updates converge at the default rate.
	ClassRegular PriorityClass = iota

	// ClassPriority updates are exchanged through the accelerated policy.
	ClassPriority
)

func (c PriorityClass) String() string {
	switch c {
	case ClassRegular:
		return "regular"
	case ClassPriority:
		return "priority"
	default:
		return "unknown"
	}
}

// Kind describes the payload carried by a message.
type Kind uint8

const (
	// KindDelta carries a single encoded local update.
	KindDelta Kind = iota + 1

	// KindState carries a full state snapshot.
	KindState

	// KindDigest carries a compact state summary for anti-entropy
	// comparison.
	KindDigest
)

func (k Kind) String() string {
	switch k {
	case KindDelta:
		return "delta"
	case KindState:
		return "state"
	case KindDigest:
		return "digest"
	default:
		return "unknown"
	}
}

// Message is one gossip exchange unit. Messages are created by the engine
// each time it gossips and discarded by the receiver after merging.
type Message struct {
	// Sender is the node the message was last forwarded by (not
	// necessarily the update's origin).
	Sender NodeID `codec:"sender"`

	// Round is the sender's round counter when the message was sent.
	Round uint64 `codec:"round"`

	// Class is the message's priority class.
	Class PriorityClass `codec:"class"`

	// Kind describes the payload.
	Kind Kind `codec:"kind"`

	// UpdateID uniquely identifies the update for deduplication and
	// propagation measurement. Only set for KindDelta.
	UpdateID uuid.UUID `codec:"update_id"`

	// Origin is the update's origination time in unix microseconds. Used
	// to classify lost updates; never used for correctness.
	Origin int64 `codec:"origin"`

	// Payload is the encoded delta, snapshot or digest.
	Payload []byte `codec:"payload"`
}
