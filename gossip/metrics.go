package gossip

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	// MessagesOutbound is the total number of sent messages, labelled by
	// priority class and message kind.
	MessagesOutbound *prometheus.CounterVec

	// MessagesInbound is the total number of received messages, labelled
	// by priority class and message kind.
	MessagesInbound *prometheus.CounterVec

	// SendFailures is the total number of failed sends. Send failures are
	// non-fatal; the round continues.
	SendFailures prometheus.Counter

	// DecodeErrors is the total number of received messages dropped as
	// malformed.
	DecodeErrors prometheus.Counter

	// UpdatesApplied is the total number of updates merged into local
	// state on their first sighting, labelled by priority class.
	UpdatesApplied *prometheus.CounterVec

	// PropagationLatency is the time from an update's origination to a
	// node merging it, labelled by priority class.
	PropagationLatency *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		MessagesOutbound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pheromesh",
				Subsystem: "gossip",
				Name:      "messages_outbound_total",
				Help:      "Total number of sent messages",
			},
			[]string{"class", "kind"},
		),
		MessagesInbound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pheromesh",
				Subsystem: "gossip",
				Name:      "messages_inbound_total",
				Help:      "Total number of received messages",
			},
			[]string{"class", "kind"},
		),
		SendFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "pheromesh",
				Subsystem: "gossip",
				Name:      "send_failures_total",
				Help:      "Total number of failed sends",
			},
		),
		DecodeErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "pheromesh",
				Subsystem: "gossip",
				Name:      "decode_errors_total",
				Help:      "Total number of messages dropped as malformed",
			},
		),
		UpdatesApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pheromesh",
				Subsystem: "gossip",
				Name:      "updates_applied_total",
				Help:      "Total number of updates merged on first sighting",
			},
			[]string{"class"},
		),
		PropagationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "pheromesh",
				Subsystem: "gossip",
				Name:      "propagation_latency_seconds",
				Help:      "Time from update origination to local merge",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
			},
			[]string{"class"},
		),
	}
}

func (m *Metrics) Register(reg *prometheus.Registry) {
	reg.MustRegister(
		m.MessagesOutbound,
		m.MessagesInbound,
		m.SendFailures,
		m.DecodeErrors,
		m.UpdatesApplied,
		m.PropagationLatency,
	)
}
