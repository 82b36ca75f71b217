package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	ReconcileReasonDeadlineExceeded = "deadline_exceeded"
	ReconcileReasonAlreadyRunning   = "already_running"
	ReconcileReasonDB               = "db"
	ReconcileReasonUnknown          = "unknown"
)

// ReconcileMetrics captures reconciliation job health signals.
type ReconcileMetrics struct {
	runs           *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	runErrors      *prometheus.CounterVec
	driftCorrected *prometheus.CounterVec
	rowsScanned    *prometheus.CounterVec
	dbLockWait     prometheus.Observer
}

var (
	reconcileMetricsOnce sync.Once
	reconcileMetrics     *ReconcileMetrics
)

// Reconcile returns the singleton reconciliation metrics registry.
func Reconcile() *ReconcileMetrics {
	return ReconcileWithConfig(Config{})
}

// ReconcileWithConfig returns the singleton using config labels.
func ReconcileWithConfig(cfg Config) *ReconcileMetrics {
	reconcileMetricsOnce.Do(func() {
		reconcileMetrics = newReconcileMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return reconcileMetrics
}

// ResetReconcileMetricsForTest resets the singleton for tests.
func ResetReconcileMetricsForTest() {
	if reconcileMetrics != nil {
		for _, c := range []prometheus.Collector{
			reconcileMetrics.runs,
			reconcileMetrics.runDuration,
			reconcileMetrics.runErrors,
			reconcileMetrics.driftCorrected,
			reconcileMetrics.rowsScanned,
		} {
			prometheus.DefaultRegisterer.Unregister(c)
		}
		if c, ok := reconcileMetrics.dbLockWait.(prometheus.Collector); ok {
			prometheus.DefaultRegisterer.Unregister(c)
		}
	}
	reconcileMetricsOnce = sync.Once{}
	reconcileMetrics = nil
}

func newReconcileMetrics(registerer prometheus.Registerer, cfg Config) *ReconcileMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "certify"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "certify_reconcile_runs_total",
		Help:        "Reconciliation runs by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "certify_reconcile_run_duration_seconds",
		Help:        "Reconciliation run latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		ConstLabels: constLabels,
	}, []string{"scope"})
	runErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "certify_reconcile_run_errors_total",
		Help:        "Reconciliation run errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	driftCorrected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "certify_reconcile_drift_corrected_total",
		Help:        "Aggregate keys whose recomputed count differed from the stored count.",
		ConstLabels: constLabels,
	}, []string{"table"})
	rowsScanned := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "certify_reconcile_rows_scanned_total",
		Help:        "Ground-truth customer rows scanned per reconciliation run.",
		ConstLabels: constLabels,
	}, []string{"scope"})
	dbLockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "certify_reconcile_db_lock_wait_seconds",
		Help:        "Time spent waiting on the aggregate rewrite transaction.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		ConstLabels: constLabels,
	})

	registerer.MustRegister(runs, runDuration, runErrors, driftCorrected, rowsScanned, dbLockWait)

	return &ReconcileMetrics{
		runs:           runs,
		runDuration:    runDuration,
		runErrors:      runErrors,
		driftCorrected: driftCorrected,
		rowsScanned:    rowsScanned,
		dbLockWait:     dbLockWait,
	}
}

// IncRun increments the run counter for an outcome.
func (m *ReconcileMetrics) IncRun(outcome string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

// ObserveRunDuration records run latency in seconds.
func (m *ReconcileMetrics) ObserveRunDuration(scope string, duration time.Duration) {
	if m == nil || m.runDuration == nil {
		return
	}
	m.runDuration.WithLabelValues(scope).Observe(duration.Seconds())
}

// IncRunError increments the error counter with classification.
func (m *ReconcileMetrics) IncRunError(err error) {
	if m == nil || m.runErrors == nil || err == nil {
		return
	}
	m.runErrors.WithLabelValues(ClassifyReconcileReason(err)).Inc()
}

// AddDriftCorrected counts corrected aggregate keys for a table.
func (m *ReconcileMetrics) AddDriftCorrected(table string, count int) {
	if m == nil || m.driftCorrected == nil || count <= 0 {
		return
	}
	m.driftCorrected.WithLabelValues(table).Add(float64(count))
}

// AddRowsScanned counts ground-truth rows scanned.
func (m *ReconcileMetrics) AddRowsScanned(scope string, count int) {
	if m == nil || m.rowsScanned == nil || count <= 0 {
		return
	}
	m.rowsScanned.WithLabelValues(scope).Add(float64(count))
}

// ObserveDBLockWait records rewrite transaction wait time.
func (m *ReconcileMetrics) ObserveDBLockWait(duration time.Duration) {
	if m == nil || m.dbLockWait == nil {
		return
	}
	m.dbLockWait.Observe(duration.Seconds())
}

// ClassifyReconcileReason maps an error to a low-cardinality reason label.
func ClassifyReconcileReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ReconcileReasonDeadlineExceeded
	case errors.Is(err, gorm.ErrInvalidTransaction), errors.Is(err, gorm.ErrInvalidDB):
		return ReconcileReasonDB
	default:
		return ReconcileReasonUnknown
	}
}
