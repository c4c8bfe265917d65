package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shipdesk"

// Metrics: счётчики сервиса. Регистрируются в переданном Registerer,
// тесты создают свой prometheus.NewRegistry().
type Metrics struct {
	// уведомления (label kind: status, payment, movement, ticket_reply, ...)
	NotificationsCreated    *prometheus.CounterVec
	NotificationsFailed     *prometheus.CounterVec
	NotificationsSuppressed *prometheus.CounterVec

	// почта
	EmailsQueued     prometheus.Counter
	EmailsSent       prometheus.Counter
	EmailsFailed     *prometheus.CounterVec
	EmailsDropped    prometheus.Counter
	EmailRetries     prometheus.Counter
	EmailQueueLength prometheus.Gauge

	// леджер
	LedgerAppends   prometheus.Counter
	LedgerDedups    prometheus.Counter
	LedgerConflicts prometheus.Counter

	// HTTP
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		NotificationsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "created_total",
			Help:      "In-app notifications written",
		}, []string{"kind"}),
		NotificationsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "failed_total",
			Help:      "In-app notification writes that failed after the primary mutation succeeded",
		}, []string{"kind"}),
		NotificationsSuppressed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "suppressed_total",
			Help:      "Notifications skipped by self-notification suppression",
		}, []string{"kind"}),

		EmailsQueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mailer",
			Name:      "queued_total",
			Help:      "Emails accepted into the mailer queue",
		}),
		EmailsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mailer",
			Name:      "sent_total",
			Help:      "Emails handed to the transport successfully",
		}),
		EmailsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mailer",
			Name:      "failed_total",
			Help:      "Emails given up on",
		}, []string{"reason"}),
		EmailsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mailer",
			Name:      "dropped_total",
			Help:      "Emails dropped because the queue was full",
		}),
		EmailRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mailer",
			Name:      "retries_total",
			Help:      "Email send retries",
		}),
		EmailQueueLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mailer",
			Name:      "queue_length",
			Help:      "Emails waiting in the in-process queue",
		}),

		LedgerAppends: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "appends_total",
			Help:      "History events appended",
		}),
		LedgerDedups: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "dedups_total",
			Help:      "Appends skipped as adjacent duplicates",
		}),
		LedgerConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "conflicts_total",
			Help:      "Conditional history writes that lost a race",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"method", "route", "code"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route"}),
	}
}

// NewDiscard: метрики, которые никуда не экспортируются.
func NewDiscard() *Metrics {
	return New(prometheus.NewRegistry())
}
