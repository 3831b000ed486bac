package gossip

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pheromesh/pheromesh/gossip/lattice"
	"github.com/pheromesh/pheromesh/pkg/log"
)

const (
	// recvBatch bounds the number of inbound messages drained per
	// round-step so no node holds a multiplex worker indefinitely.
	recvBatch = 64

	// updateBuffer is the capacity of the locally originated update queue.
	updateBuffer = 256

	// seenCap caps the per-update sighting counter. The priority policy
	// only distinguishes first, second and later sightings.
	seenCap = 3
)

type localUpdate struct {
	id    uuid.UUID
	class PriorityClass
	delta []byte
	at    time.Time
}

// Engine drives one node's gossip rounds: it selects peers from the node's
// view, exchanges messages through the transport, and merges incoming data
// into the node's mergeable state.
//
// At most one round-step executes at any instant, so the engine's state,
// view and seen-set need no locking. Locally originated updates are queued
// and applied on the engine's own round-step to preserve that invariant.
type Engine struct {
	id        NodeID
	state     lattice.State
	view      *View
	transport Transport
	policy    Policy

	interval          time.Duration
	antiEntropyRounds int

	// round is the node's monotonically increasing round counter, owned
	// and incremented solely by this engine.
	round uint64

	// seen counts sightings per update ID, capped at seenCap.
	seen map[uuid.UUID]uint8

	updateCh chan localUpdate

	tracker *Tracker
	metrics *Metrics
	logger  log.Logger
}

// NewEngine creates the gossip engine for the node owning the given
// transport endpoint. Configuration inconsistencies are fatal here, before
// any round runs.
func NewEngine(
	state lattice.State,
	view *View,
	transport Transport,
	policy Policy,
	conf *Config,
	tracker *Tracker,
	metrics *Metrics,
	logger log.Logger,
) (*Engine, error) {
	if state == nil {
		return nil, fmt.Errorf("missing state")
	}
	if view == nil {
		return nil, fmt.Errorf("missing view")
	}
	if transport == nil {
		return nil, fmt.Errorf("missing transport")
	}
	if policy == nil {
		return nil, fmt.Errorf("missing policy")
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if metrics == nil {
		return nil, fmt.Errorf("missing metrics")
	}

	return &Engine{
		id:                transport.LocalID(),
		state:             state,
		view:              view,
		transport:         transport,
		policy:            policy,
		interval:          conf.Interval,
		antiEntropyRounds: conf.AntiEntropyRounds,
		seen:              make(map[uuid.UUID]uint8),
		updateCh:          make(chan localUpdate, updateBuffer),
		tracker:           tracker,
		metrics:           metrics,
		logger:            logger.WithSubsystem("gossip"),
	}, nil
}

// ID returns the node's identifier.
func (e *Engine) ID() NodeID {
	return e.id
}

// Round returns the node's current round counter.
func (e *Engine) Round() uint64 {
	return e.round
}

// State returns the node's mergeable state.
func (e *Engine) State() lattice.State {
	return e.state
}

// Update applies a locally originated delta and gossips it. The delta is
// queued and applied on the engine's next round-step. Returns the update's
// unique ID for propagation measurement.
func (e *Engine) Update(delta []byte, class PriorityClass) (uuid.UUID, error) {
	id := uuid.New()
	select {
	case e.updateCh <- localUpdate{
		id:    id,
		class: class,
		delta: delta,
		at:    time.Now(),
	}:
		return id, nil
	default:
		return uuid.Nil, fmt.Errorf("update queue full")
	}
}

// Run executes the round loop until ctx is cancelled. Between rounds the
// engine suspends on the transport waiting for inbound messages. In-flight
// rounds complete before Run returns.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Debug(
		"starting gossip",
		zap.Uint32("node-id", uint32(e.id)),
		zap.Int("peers", e.view.NumPeers()),
	)

	next := time.Now().Add(e.interval)
	for {
		if ctx.Err() != nil {
			e.logger.Debug("stopping gossip", zap.Uint32("node-id", uint32(e.id)))
			return
		}

		timeout := time.Until(next)
		if timeout <= 0 {
			e.Step(time.Now())
			next = next.Add(e.interval)
			continue
		}

		m, err := e.transport.Recv(timeout)
		switch {
		case err == nil:
			e.handleMessage(m, time.Now())
		case errors.Is(err, ErrTimeout):
			// Round boundary; the next iteration runs the step.
		case errors.Is(err, ErrClosed):
			return
		default:
			e.logger.Warn("recv failed", zap.Error(err))
		}
	}
}

// Step executes a single round-step: drain a bounded batch of inbound
// messages, gossip pending local updates, then advance the round counter.
// The multiplex scheduler drives simulated nodes by calling Step directly.
func (e *Engine) Step(now time.Time) {
	e.round++

	for i := 0; i < recvBatch; i++ {
		m, err := e.transport.Recv(0)
		if err != nil {
			break
		}
		e.handleMessage(m, now)
	}

	for {
		select {
		case u := <-e.updateCh:
			e.gossipUpdate(u)
		default:
			e.maybeSendDigest()
			return
		}
	}
}

// gossipUpdate applies a locally originated update and pushes it to the
// policy's targets.
func (e *Engine) gossipUpdate(u localUpdate) {
	if err := e.state.ApplyDelta(u.delta); err != nil {
		e.logger.Warn("apply local delta", zap.Error(err))
		return
	}
	e.seen[u.id] = 1
	e.tracker.Originated(u.id, e.id, u.class, u.at, e.round)
	e.metrics.UpdatesApplied.With(prometheus.Labels{
		"class": u.class.String(),
	}).Inc()

	e.send(e.policy.TargetsLocal(u.class), &Message{
		Sender:   e.id,
		Round:    e.round,
		Class:    u.class,
		Kind:     KindDelta,
		UpdateID: u.id,
		Origin:   u.at.UnixMicro(),
		Payload:  u.delta,
	})
}

func (e *Engine) handleMessage(m *Message, now time.Time) {
	e.metrics.MessagesInbound.With(prometheus.Labels{
		"class": m.Class.String(),
		"kind":  m.Kind.String(),
	}).Inc()

	switch m.Kind {
	case KindDelta:
		e.handleDelta(m, now)
	case KindState:
		if err := e.state.ApplySnapshot(m.Payload); err != nil {
			// Corrupt payloads are dropped; gossip's redundancy absorbs
			// the loss.
			e.metrics.DecodeErrors.Inc()
			e.logger.Debug("drop corrupt snapshot", zap.Error(err))
		}
	case KindDigest:
		e.handleDigest(m)
	default:
		e.metrics.DecodeErrors.Inc()
		e.logger.Debug("drop unknown message kind", zap.Uint8("kind", uint8(m.Kind)))
	}
}

func (e *Engine) handleDelta(m *Message, now time.Time) {
	count := e.seen[m.UpdateID]
	if count == 0 {
		// First sighting: merge into local state. A corrupt copy is
		// dropped without recording the sighting, the same as a lost
		// packet, so a later valid copy is still applied.
		if err := e.state.ApplyDelta(m.Payload); err != nil {
			e.metrics.DecodeErrors.Inc()
			e.logger.Debug("drop corrupt delta", zap.Error(err))
			return
		}

		latency := e.tracker.Observed(m.UpdateID, e.id, e.round, now)
		e.metrics.UpdatesApplied.With(prometheus.Labels{
			"class": m.Class.String(),
		}).Inc()
		if latency > 0 {
			e.metrics.PropagationLatency.With(prometheus.Labels{
				"class": m.Class.String(),
			}).Observe(latency.Seconds())
		}
	}

	if count < seenCap {
		e.seen[m.UpdateID] = count + 1
	}

	targets := e.policy.TargetsForward(m.Class, int(count)+1)
	if len(targets) == 0 {
		return
	}
	fwd := *m
	fwd.Sender = e.id
	fwd.Round = e.round
	e.send(targets, &fwd)
}

// handleDigest compares the sender's digest with the local state and, when
// they diverge, pushes a full snapshot back. Push-only best effort: no
// handshake, no acknowledgement.
func (e *Engine) handleDigest(m *Message) {
	if len(m.Payload) != 8 {
		e.metrics.DecodeErrors.Inc()
		return
	}
	remote := lattice.Digest(binary.BigEndian.Uint64(m.Payload))
	if remote == e.state.Digest() {
		return
	}

	snapshot, err := e.state.Snapshot()
	if err != nil {
		e.logger.Warn("snapshot state", zap.Error(err))
		return
	}
	e.send([]NodeID{m.Sender}, &Message{
		Sender:  e.id,
		Round:   e.round,
		Kind:    KindState,
		Payload: snapshot,
	})
}

// maybeSendDigest sends a digest probe to one random peer on the
// configured anti-entropy cadence.
func (e *Engine) maybeSendDigest() {
	if e.antiEntropyRounds == 0 || e.round%uint64(e.antiEntropyRounds) != 0 {
		return
	}

	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, uint64(e.state.Digest()))
	e.send(e.view.SelectFanout(1), &Message{
		Sender:  e.id,
		Round:   e.round,
		Kind:    KindDigest,
		Payload: payload,
	})
}

// send builds a message per destination and hands it to the transport
// without waiting for a reply. Send failures are non-fatal: the failure is
// logged and the round continues.
func (e *Engine) send(targets []NodeID, m *Message) {
	for _, target := range targets {
		msg := *m
		if err := e.transport.Send(target, &msg); err != nil {
			e.metrics.SendFailures.Inc()
			e.logger.Warn(
				"send failed",
				zap.Uint32("peer", uint32(target)),
				zap.Error(err),
			)
			continue
		}
		e.metrics.MessagesOutbound.With(prometheus.Labels{
			"class": m.Class.String(),
			"kind":  m.Kind.String(),
		}).Inc()
	}
}
