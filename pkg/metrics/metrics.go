package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Message outcome labels.
const (
	StatusCompleted = "completed"
	StatusCounted   = "counted"
	StatusInvalid   = "invalid"
	StatusDuplicate = "duplicate"
	StatusFailed    = "failed"
)

// Completion sources.
const (
	SourceIngest    = "ingest"
	SourceReconcile = "reconcile"
)

var (
	CampaignMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_messages_total",
			Help: "Total number of campaign messages processed (count)",
		},
		[]string{"status"},
	)

	CampaignProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campaign_processing_duration_ms",
			Help:    "End-to-end processing duration of a campaign message in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"status"},
	)

	CampaignStageFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_stage_failures_total",
			Help: "Total number of processing failures by stage (count)",
		},
		[]string{"stage"},
	)

	CampaignCompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_completions_total",
			Help: "Total number of campaign completion notifications delivered (count)",
		},
		[]string{"source"},
	)

	CampaignOvercountTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campaign_overcount_total",
			Help: "Total number of increments that pushed a counter past its expected total (count)",
		},
	)

	CampaignCountersPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "campaign_pending_counters",
			Help: "Number of campaign counters observed by the last reconcile sweep (count)",
		},
	)

	ReconcileSweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_sweeps_total",
			Help: "Total number of reconcile sweeps (count)",
		},
		[]string{"status"},
	)

	ReconcileActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_actions_total",
			Help: "Total number of reconcile decisions per counter (count)",
		},
		[]string{"action"},
	)

	BrokerDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_deliveries_total",
			Help: "Total number of broker deliveries by final disposition (count)",
		},
		[]string{"broker", "disposition"},
	)

	MessagesInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "messages_in_flight",
			Help: "Number of deliveries currently being processed (count)",
		},
		[]string{"service"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "stage"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	NotifierRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_requests_total",
			Help: "Total number of completion notification requests (count)",
		},
		[]string{"status"},
	)

	NotifierRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notifier_request_duration_ms",
			Help:    "Duration of completion notification requests in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaReadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_read_duration_ms",
			Help:    "Duration of reading messages from Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)
)

func RegisterCampaignMetrics() {
	prometheus.MustRegister(CampaignMessagesTotal)
	prometheus.MustRegister(CampaignProcessingDuration)
	prometheus.MustRegister(CampaignStageFailuresTotal)
	prometheus.MustRegister(CampaignCompletionsTotal)
	prometheus.MustRegister(CampaignOvercountTotal)
	prometheus.MustRegister(CampaignCountersPending)
	prometheus.MustRegister(ReconcileSweepsTotal)
	prometheus.MustRegister(ReconcileActionsTotal)
	prometheus.MustRegister(NotifierRequestsTotal)
	prometheus.MustRegister(NotifierRequestDuration)
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(BrokerDeliveriesTotal)
	prometheus.MustRegister(MessagesInFlight)
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaReadDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterAdminMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func ObserveProcessingDuration(duration time.Duration, status string) {
	CampaignProcessingDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func IncMessage(status string) {
	CampaignMessagesTotal.WithLabelValues(status).Inc()
}

func IncStageFailure(stage string) {
	CampaignStageFailuresTotal.WithLabelValues(stage).Inc()
}

func IncCompletion(source string) {
	CampaignCompletionsTotal.WithLabelValues(source).Inc()
}

func IncDelivery(broker, disposition string) {
	BrokerDeliveriesTotal.WithLabelValues(broker, disposition).Inc()
}

func IncReconcileAction(action string) {
	ReconcileActionsTotal.WithLabelValues(action).Inc()
}

func ObserveNotifierRequest(status string, duration time.Duration) {
	NotifierRequestsTotal.WithLabelValues(status).Inc()
	NotifierRequestDuration.Observe(float64(duration.Milliseconds()))
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaReadDuration(service, topic string, duration time.Duration) {
	KafkaReadDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func IncDatabaseQuery(service, database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(service, database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(service, database, operation).Observe(float64(duration.Milliseconds()))
}
