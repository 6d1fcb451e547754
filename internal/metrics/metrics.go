package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomePersisted labels writes that stored a sample.
	OutcomePersisted = "persisted"
	// OutcomeRejected labels writes rejected at validation.
	OutcomeRejected = "rejected"
	// OutcomeError labels writes that failed against the store.
	OutcomeError = "error"

	// DeliveryOK and DeliveryFailed label notification emission outcomes.
	DeliveryOK     = "delivered"
	DeliveryFailed = "failed"
)

var (
	writesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "writes_total",
			Help:      "Total number of sample writes handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	writeDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sentinel",
			Name:      "write_seconds",
			Help:      "Write pipeline latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "transitions_total",
			Help:      "Health-flag transition classifications per checked write.",
		},
		[]string{"transition"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "notifications_total",
			Help:      "Notification events emitted, partitioned by level and delivery outcome.",
		},
		[]string{"level", "outcome"},
	)

	ingestMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "ingest_messages_total",
			Help:      "Kafka sample envelopes consumed, partitioned by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register attaches sentinel collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		writesTotal,
		writeDurationSeconds,
		transitionsTotal,
		notificationsTotal,
		ingestMessagesTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveWrite records one write's duration and outcome label.
func ObserveWrite(duration time.Duration, outcome string) {
	writesTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	writeDurationSeconds.Observe(duration.Seconds())
}

// CountTransition records one transition classification.
func CountTransition(transition string) {
	transitionsTotal.WithLabelValues(transition).Inc()
}

// CountNotification records one notification emission attempt.
func CountNotification(level, outcome string) {
	notificationsTotal.WithLabelValues(level, outcome).Inc()
}

// CountIngest records one consumed sample envelope.
func CountIngest(outcome string) {
	ingestMessagesTotal.WithLabelValues(outcome).Inc()
}
