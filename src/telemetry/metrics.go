// Package telemetry exposes round metrics to Prometheus.
package telemetry

import (
	"net/http"
	"strconv"

	"github.com/mosaicnetworks/chaos/src/mergecommit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Round outcomes, used as the "outcome" label of RoundsTotal.
const (
	OutcomeCommit     = "commit"
	OutcomeIncomplete = "incomplete"
	OutcomeMerge      = "merge"
)

// Metrics holds the metrics of a swarm. Every series is labeled by node.
type Metrics struct {
	Registry *prometheus.Registry

	RoundsTotal    *prometheus.CounterVec
	CompletionSlot *prometheus.HistogramVec
	OffSlot        *prometheus.HistogramVec
	NodeCount      *prometheus.GaugeVec
	Member         *prometheus.GaugeVec
	Config         *prometheus.GaugeVec
	JoinsTotal     *prometheus.CounterVec
	LeavesTotal    *prometheus.CounterVec
	OverflowsTotal *prometheus.CounterVec

	buildInfo *prometheus.GaugeVec
}

// NewMetrics creates metrics with the given namespace in a fresh registry.
func NewMetrics(namespace string) *Metrics {
	// Slots up to the default round budget of 350.
	slotBuckets := prometheus.LinearBuckets(10, 20, 18)

	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		RoundsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rounds_total",
				Help:      "Total number of rounds by outcome.",
			},
			[]string{"node", "outcome"},
		),
		CompletionSlot: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "completion_slot",
				Help:      "Slot at which a node saw every flag in COMMIT.",
				Buckets:   slotBuckets,
			},
			[]string{"node"},
		),
		OffSlot: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "off_slot",
				Help:      "Slot at which a node switched its radio off.",
				Buckets:   slotBuckets,
			},
			[]string{"node"},
		),
		NodeCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "node_count",
				Help:      "Number of members as seen by a node.",
			},
			[]string{"node"},
		),
		Member: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "member",
				Help:      "1 if the node holds a membership index.",
			},
			[]string{"node"},
		),
		Config: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config",
				Help:      "Membership configuration counter of a node.",
			},
			[]string{"node"},
		),
		JoinsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "joins_total",
				Help:      "Number of times a node obtained an index.",
			},
			[]string{"node"},
		),
		LeavesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "leaves_total",
				Help:      "Number of times a node released its index.",
			},
			[]string{"node"},
		),
		OverflowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "overflows_total",
				Help:      "Join requests dropped because membership was full.",
			},
			[]string{"node"},
		),
		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "build_info",
				Help:      "Build info (constant 1, labeled by version).",
			},
			[]string{"version"},
		),
	}

	m.Registry.MustRegister(
		m.RoundsTotal,
		m.CompletionSlot,
		m.OffSlot,
		m.NodeCount,
		m.Member,
		m.Config,
		m.JoinsTotal,
		m.LeavesTotal,
		m.OverflowsTotal,
		m.buildInfo,
	)

	return m
}

// Handler exposes the registry. Mount it on /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup.
func (m *Metrics) SetBuildInfo(version string) {
	m.buildInfo.WithLabelValues(version).Set(1)
}

// Label formats a node identity as a label value.
func Label(id uint16) string {
	return strconv.Itoa(int(id))
}

// Outcome classifies a round.
func Outcome(o *mergecommit.Outcome) string {
	switch {
	case !o.Committed():
		return OutcomeMerge
	case o.CompletionSlot == 0:
		return OutcomeIncomplete
	default:
		return OutcomeCommit
	}
}

// ObserveRound records the outcome of a round on one node.
func (m *Metrics) ObserveRound(node string, o *mergecommit.Outcome) {
	m.RoundsTotal.WithLabelValues(node, Outcome(o)).Inc()
	if o.CompletionSlot > 0 {
		m.CompletionSlot.WithLabelValues(node).Observe(float64(o.CompletionSlot))
	}
	m.OffSlot.WithLabelValues(node).Observe(float64(o.OffSlot))
	m.NodeCount.WithLabelValues(node).Set(float64(o.NodeCount))
	m.Config.WithLabelValues(node).Set(float64(o.Config))

	member := 0.0
	if o.HasIndex {
		member = 1
	}
	m.Member.WithLabelValues(node).Set(member)

	if o.Joined {
		m.JoinsTotal.WithLabelValues(node).Inc()
	}
	if o.Left {
		m.LeavesTotal.WithLabelValues(node).Inc()
	}
	if n := len(o.Overflowed); n > 0 {
		m.OverflowsTotal.WithLabelValues(node).Add(float64(n))
	}
}
