package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChainReadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "membersonly",
		Subsystem: "chain",
		Name:      "reads_total",
		Help:      "Total contract reads by network, method and status",
	}, []string{"network", "method", "status"})

	ChainReadLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "membersonly",
		Subsystem: "chain",
		Name:      "read_duration_seconds",
		Help:      "Contract read latency",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"network"})

	MembershipChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "membersonly",
		Subsystem: "membership",
		Name:      "checks_total",
		Help:      "Membership evaluations by result (valid/invalid/error)",
	}, []string{"result"})

	WebhookOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "membersonly",
		Subsystem: "webhook",
		Name:      "outcomes_total",
		Help:      "Processed cast webhooks by outcome",
	}, []string{"outcome"})

	WizardStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "membersonly",
		Subsystem: "wizard",
		Name:      "steps_total",
		Help:      "Frame wizard steps rendered by flow and step",
	}, []string{"flow", "step"})
)

// ReadStatus maps a read error to a low-cardinality label.
func ReadStatus(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}
