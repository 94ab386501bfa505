package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablio",
			Name:      "booking_mutations_total",
			Help:      "Count of committed booking mutations by kind.",
		},
		[]string{"kind"},
	)

	validatorRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablio",
			Name:      "validator_rejections_total",
			Help:      "Count of availability validator rejections by reason.",
		},
		[]string{"reason"},
	)

	tokenFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tablio",
			Name:      "token_verify_failures_total",
			Help:      "Count of capability token verification failures.",
		},
	)

	capsuleFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tablio",
			Name:      "payment_capsule_failures_total",
			Help:      "Count of payment capsule verification failures.",
		},
	)

	changeRequestDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablio",
			Name:      "change_request_decisions_total",
			Help:      "Count of change request resolutions by decision.",
		},
		[]string{"decision"},
	)

	fanoutDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablio",
			Name:      "fanout_delivered_total",
			Help:      "Count of events delivered to live connections.",
		},
		[]string{"event_type"},
	)

	fanoutDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablio",
			Name:      "fanout_dropped_total",
			Help:      "Count of events that failed delivery to a connection.",
		},
		[]string{"event_type"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablio",
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingMutations,
			validatorRejections,
			tokenFailures,
			capsuleFailures,
			changeRequestDecisions,
			fanoutDelivered,
			fanoutDropped,
			httpRequests,
		)
	})
}

func IncBookingMutation(kind string) {
	bookingMutations.WithLabelValues(kind).Inc()
}

func IncValidatorRejection(reason string) {
	validatorRejections.WithLabelValues(reason).Inc()
}

func IncTokenFailure() {
	tokenFailures.Inc()
}

func IncCapsuleFailure() {
	capsuleFailures.Inc()
}

func IncChangeRequestDecision(decision string) {
	changeRequestDecisions.WithLabelValues(decision).Inc()
}

func IncFanoutDelivered(eventType string) {
	fanoutDelivered.WithLabelValues(eventType).Inc()
}

func IncFanoutDropped(eventType string) {
	fanoutDropped.WithLabelValues(eventType).Inc()
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
