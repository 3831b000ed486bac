// Package transport provides the gossip.Transport implementations: a real
// unreliable UDP datagram transport, an in-process channel transport with
// one queue per node, and a multiplexed dispatch substrate that lets a
// small fixed worker pool service tens of thousands of simulated nodes.
//
// All three are best-effort. Sends may fail or drop and delivery order is
// unspecified, matching the engine's loss-tolerant design.
package transport
