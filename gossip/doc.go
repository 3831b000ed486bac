// Package gossip implements an epidemic dissemination engine that lets a
// population of nodes converge on a shared mergeable value through periodic,
// partial, peer-to-peer exchanges, without a central coordinator.
//
// Each node owns a mergeable state (gossip/lattice), a static bounded peer
// view and a transport endpoint, all driven by one Engine round loop. Two
// round policies are supported: uniform gossip, where every update is
// disseminated with identical policy, and priority gossip, where a designated
// subset of primary nodes and high-priority updates propagate through an
// accelerated path at the cost of extra messages.
//
// Delivery is push-based and best-effort: a dropped, duplicated or reordered
// message never corrupts state because merges are commutative and idempotent,
// and later rounds repair any loss.
package gossip
