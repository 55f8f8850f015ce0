// Package metrics holds the Prometheus collectors shared by the request
// client, the plan pipeline, the chat assistant and the profile sync
// controller. All methods are safe to call on a nil *Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fitness_analyst"

type Metrics struct {
	requestAttempts *prometheus.CounterVec
	requestFailures prometheus.Counter
	planGenerations *prometheus.CounterVec
	chatReplies     *prometheus.CounterVec
	pushEvents      *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_attempts_total",
			Help:      "Outbound request attempts by outcome.",
		}, []string{"outcome"}),
		requestFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_terminal_failures_total",
			Help:      "Logical requests that failed after exhausting all attempts.",
		}),
		planGenerations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_generations_total",
			Help:      "Plan generations by outcome.",
		}, []string{"outcome"}),
		chatReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_replies_total",
			Help:      "Chat turns by outcome.",
		}, []string{"outcome"}),
		pushEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_push_events_total",
			Help:      "Profile change notifications by disposition.",
		}, []string{"disposition"}),
	}
	if reg != nil {
		reg.MustRegister(m.requestAttempts, m.requestFailures, m.planGenerations, m.chatReplies, m.pushEvents)
	}
	return m
}

func (m *Metrics) RequestAttempt(success bool) {
	if m == nil {
		return
	}
	if success {
		m.requestAttempts.WithLabelValues("success").Inc()
		return
	}
	m.requestAttempts.WithLabelValues("failure").Inc()
}

func (m *Metrics) RequestFailed() {
	if m == nil {
		return
	}
	m.requestFailures.Inc()
}

func (m *Metrics) PlanGeneration(outcome string) {
	if m == nil {
		return
	}
	m.planGenerations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ChatReply(outcome string) {
	if m == nil {
		return
	}
	m.chatReplies.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PushEvent(disposition string) {
	if m == nil {
		return
	}
	m.pushEvents.WithLabelValues(disposition).Inc()
}
