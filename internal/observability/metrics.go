package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "crm_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	Dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "crm_dispatch_total", Help: "Campaign dispatch outcomes"},
		[]string{"result"},
	)
	DeliveryOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "crm_delivery_outcomes_total", Help: "Per-message delivery outcomes"},
		[]string{"status"},
	)
	DispatchBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crm_dispatch_batch_size",
			Help:    "Messages per dispatch batch",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)
	AudiencePreviews = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "crm_audience_previews_total", Help: "Audience size computations"},
		[]string{"source"},
	)
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "crm_webhook_events_total", Help: "Delivery channel callback events"},
		[]string{"status"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, Dispatches, DeliveryOutcomes, DispatchBatchSize, AudiencePreviews, WebhookEvents)
}
