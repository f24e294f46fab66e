package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/formly/internal/core/domain"
)

// WorkerMetrics instruments the document pipeline. It implements the
// classification and reconciliation observers of the use case layer.
type WorkerMetrics struct {
	service  string
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec

	gradeScore            *prometheus.HistogramVec
	classificationTotal   *prometheus.CounterVec
	classificationAttempt *prometheus.HistogramVec
	reconcileTotal        *prometheus.CounterVec
	readyTransitions      *prometheus.CounterVec
	recoveredTotal        *prometheus.CounterVec

	externalCalls    *prometheus.CounterVec
	externalDuration *prometheus.HistogramVec
	externalRetries  *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "formly",
			Subsystem: "worker",
			Name:      "document_process_total",
			Help:      "Total processed documents by status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "formly",
			Subsystem: "worker",
			Name:      "document_process_duration_seconds",
			Help:      "Document processing duration in seconds by status.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 180, 300},
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "formly",
			Subsystem: "worker",
			Name:      "document_process_in_flight",
			Help:      "Number of in-flight document processing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "formly",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between document creation and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	gradeScore := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "formly",
			Subsystem: "classification",
			Name:      "grade_score",
			Help:      "Grader score per extraction attempt.",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
		[]string{"service", "pass"},
	)
	classificationTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "formly",
			Subsystem: "classification",
			Name:      "results_total",
			Help:      "Terminal classifications by exit path and review flag.",
		},
		[]string{"service", "termination", "needs_review"},
	)
	classificationAttempt := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "formly",
			Subsystem: "classification",
			Name:      "attempts",
			Help:      "Extraction attempts used per classification.",
			Buckets:   []float64{0, 1, 2, 3},
		},
		[]string{"service"},
	)
	reconcileTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "formly",
			Subsystem: "reconciliation",
			Name:      "runs_total",
			Help:      "Reconciliation runs by trigger and readiness.",
		},
		[]string{"service", "trigger", "ready"},
	)
	readyTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "formly",
			Subsystem: "reconciliation",
			Name:      "ready_transitions_total",
			Help:      "Engagements that became ready.",
		},
		[]string{"service"},
	)
	recoveredTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "formly",
			Subsystem: "worker",
			Name:      "stuck_documents_total",
			Help:      "Stuck documents found by recovery, by outcome.",
		},
		[]string{"service", "outcome"},
	)

	externalCalls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "formly",
			Subsystem: "external",
			Name:      "calls_total",
			Help:      "Guarded backend calls by operation and outcome.",
		},
		[]string{"service", "operation", "outcome"},
	)
	externalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "formly",
			Subsystem: "external",
			Name:      "call_duration_seconds",
			Help:      "Guarded backend call duration including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"service", "operation"},
	)
	externalRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "formly",
			Subsystem: "external",
			Name:      "retries_total",
			Help:      "Retried backend calls by operation.",
		},
		[]string{"service", "operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "formly",
			Subsystem: "external",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per operation: 0 closed, 1 half-open, 2 open.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		processTotal,
		processDuration,
		processInFlight,
		queueLag,
		gradeScore,
		classificationTotal,
		classificationAttempt,
		reconcileTotal,
		readyTransitions,
		recoveredTotal,
		externalCalls,
		externalDuration,
		externalRetries,
		breakerState,
	)

	return &WorkerMetrics{
		service:               service,
		registry:              registry,
		processTotal:          processTotal,
		processDuration:       processDuration,
		processInFlight:       processInFlight,
		queueLag:              queueLag,
		gradeScore:            gradeScore,
		classificationTotal:   classificationTotal,
		classificationAttempt: classificationAttempt,
		reconcileTotal:        reconcileTotal,
		readyTransitions:      readyTransitions,
		recoveredTotal:        recoveredTotal,
		externalCalls:         externalCalls,
		externalDuration:      externalDuration,
		externalRetries:       externalRetries,
		breakerState:          breakerState,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.processTotal.WithLabelValues(m.service, status).Inc()
	m.processDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) ObserveAttempt(_ int, grade domain.GradeResult) {
	m.gradeScore.WithLabelValues(m.service, boolLabel(grade.Pass)).Observe(float64(grade.Score))
}

func (m *WorkerMetrics) ObserveResult(result domain.ClassificationResult) {
	termination := string(result.Termination)
	if termination == "" {
		termination = "unknown"
	}
	m.classificationTotal.WithLabelValues(m.service, termination, boolLabel(result.NeedsHumanReview)).Inc()
	m.classificationAttempt.WithLabelValues(m.service).Observe(float64(result.Attempts))
}

func (m *WorkerMetrics) ObserveReconciliation(trigger domain.TriggerKind, ready, transitioned bool) {
	m.reconcileTotal.WithLabelValues(m.service, string(trigger), boolLabel(ready)).Inc()
	if transitioned {
		m.readyTransitions.WithLabelValues(m.service).Inc()
	}
}

func (m *WorkerMetrics) ObserveRecovery(report domain.RecoveryReport) {
	m.recoveredTotal.WithLabelValues(m.service, "requeued").Add(float64(len(report.Requeued)))
	m.recoveredTotal.WithLabelValues(m.service, "exhausted").Add(float64(len(report.Exhausted)))
	m.recoveredTotal.WithLabelValues(m.service, "failed").Add(float64(len(report.Failed)))
}

func (m *WorkerMetrics) ObserveExternalCall(operation, outcome string, duration time.Duration) {
	m.externalCalls.WithLabelValues(m.service, operation, outcome).Inc()
	m.externalDuration.WithLabelValues(m.service, operation).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveRetry(operation string) {
	m.externalRetries.WithLabelValues(m.service, operation).Inc()
}

func (m *WorkerMetrics) ObserveBreakerState(operation, state string) {
	value := 0.0
	switch state {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
