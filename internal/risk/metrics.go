package risk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics.go - Prometheus метрики риск-ядра
//
// Все метрики в namespace riskcore. Регистрация через promauto
// в default registry; /metrics отдаёт promhttp.

var (
	metricChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskcore",
		Subsystem: "pretrade",
		Name:      "checks_total",
		Help:      "Pre-trade checks executed, by check type and outcome",
	}, []string{"check", "outcome"})

	metricOrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskcore",
		Subsystem: "pretrade",
		Name:      "orders_total",
		Help:      "Orders validated, by decision",
	}, []string{"decision"})

	metricValidateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "riskcore",
		Subsystem: "pretrade",
		Name:      "validate_duration_seconds",
		Help:      "Full pre-trade validation latency",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
	})

	metricExecutionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "riskcore",
		Subsystem: "posttrade",
		Name:      "executions_total",
		Help:      "Execution reports processed",
	})

	metricRealizedPnl = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskcore",
		Subsystem: "posttrade",
		Name:      "realized_pnl_total",
		Help:      "Cumulative realized PnL by sign",
	}, []string{"sign"})

	metricRiskEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskcore",
		Name:      "risk_events_total",
		Help:      "Risk events raised, by type and severity",
	}, []string{"event_type", "severity"})

	metricReconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskcore",
		Subsystem: "posttrade",
		Name:      "reconciliations_total",
		Help:      "Position reconciliations, by outcome",
	}, []string{"outcome"})

	metricBreachesFlagged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "riskcore",
		Subsystem: "breach",
		Name:      "flagged_total",
		Help:      "Positions flagged for passive limit breach",
	})

	metricReductionOrders = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskcore",
		Subsystem: "breach",
		Name:      "reduction_orders_total",
		Help:      "Reduction orders, by status",
	}, []string{"status"})

	metricKillSwitchActivations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "riskcore",
		Name:      "kill_switch_activations_total",
		Help:      "Automatic kill switch activations",
	})
)

// observeCheck учитывает исход одной pre-trade проверки
func observeCheck(checkType string, passed bool) {
	outcome := "passed"
	if !passed {
		outcome = "failed"
	}
	metricChecksTotal.WithLabelValues(checkType, outcome).Inc()
}

// observeDecision учитывает решение по ордеру
func observeDecision(approved bool, seconds float64) {
	decision := "approved"
	if !approved {
		decision = "rejected"
	}
	metricOrdersTotal.WithLabelValues(decision).Inc()
	metricValidateDuration.Observe(seconds)
}

// observeRiskEvent учитывает поднятое риск-событие
func observeRiskEvent(eventType, severity string) {
	metricRiskEventsTotal.WithLabelValues(eventType, severity).Inc()
}

// observeRealizedPnl учитывает реализованный PNL
func observeRealizedPnl(pnl float64) {
	metricExecutionsTotal.Inc()
	if pnl >= 0 {
		metricRealizedPnl.WithLabelValues("profit").Add(pnl)
	} else {
		metricRealizedPnl.WithLabelValues("loss").Add(-pnl)
	}
}
