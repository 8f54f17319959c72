package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReconciliationsTotal counts reconciliation loop runs by outcome.
	ReconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radio_reconciliations_total",
		Help: "Total reconciliation runs by outcome (converged, corrected, skipped)",
	}, []string{"outcome"})

	// DriftCorrectionSeconds records the size of drift corrections applied.
	DriftCorrectionSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "radio_drift_correction_seconds",
		Help:    "Absolute drift in seconds at the moment a correction was applied",
		Buckets: []float64{2, 3, 5, 10, 30, 60, 300},
	})

	// SessionsTotal counts broadcast session lifecycle transitions.
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radio_sessions_total",
		Help: "Total broadcast session transitions (started, restarted, ended)",
	}, []string{"transition"})

	// NaturalEndsTotal counts natural end-of-track events by what followed.
	NaturalEndsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radio_natural_ends_total",
		Help: "Total natural end events by follow-up (replay, ended, rotation, stopped)",
	}, []string{"followup"})

	// RotationAdvancesTotal counts 24h-rotation index advances.
	RotationAdvancesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radio_rotation_advances_total",
		Help: "Total 24h-rotation index advances",
	})

	// ListenersGauge is the last observed listener count.
	ListenersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "radio_listeners",
		Help: "Listener count from the presence backend",
	})

	// BackendErrorsTotal counts state-backend errors by operation.
	BackendErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radio_backend_errors_total",
		Help: "Total state backend errors by operation",
	}, []string{"operation"})

	// HistoryAppendsTotal counts history ledger appends by result.
	HistoryAppendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radio_history_appends_total",
		Help: "Total history ledger appends by result (ok, error)",
	}, []string{"result"})
)
