package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "volunteer_registrations_total", Help: "Registration attempts by outcome"},
		[]string{"outcome"},
	)
	EventTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "volunteer_event_transitions_total", Help: "Event status changes by target status"},
		[]string{"to"},
	)
	RegistrationTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "volunteer_registration_transitions_total", Help: "Registration status changes by action"},
		[]string{"action"},
	)
	NotifyFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "volunteer_notify_failures_total", Help: "Notifications that could not be enqueued"},
	)
	OutboxDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "volunteer_outbox_delivered_total", Help: "Total delivered outbox messages"},
	)
	OutboxFailed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "volunteer_outbox_failed_total", Help: "Total failed outbox delivery attempts"},
	)
	OutboxDead = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "volunteer_outbox_dead_total", Help: "Total outbox messages moved to dead"},
	)
)

func Register() {
	prometheus.MustRegister(
		Registrations, EventTransitions, RegistrationTransitions,
		NotifyFailures, OutboxDelivered, OutboxFailed, OutboxDead,
	)
}
