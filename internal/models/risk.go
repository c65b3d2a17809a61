package models

import "time"

// Типы pre-trade проверок (фиксированный порядок выполнения)
const (
	CheckKillSwitch     = "KILL_SWITCH"
	CheckCircuitBreaker = "CIRCUIT_BREAKER"
	CheckPositionLimits = "POSITION_LIMITS"
	CheckDrawdown       = "DRAWDOWN"
	CheckVolatility     = "VOLATILITY"
	CheckCapital        = "CAPITAL"
	CheckLeverage       = "LEVERAGE"
)

// RiskCheckDetail - результат одной проверки
type RiskCheckDetail struct {
	CheckType    string   `json:"check_type"`
	Passed       bool     `json:"passed"`
	Message      string   `json:"message"`
	CurrentValue *float64 `json:"current_value,omitempty"`
	LimitValue   *float64 `json:"limit_value,omitempty"`
}

// RiskCheckResult - итог pre-trade валидации ордера
//
// Approved = true только если ВСЕ проверки пройдены.
// RejectionReason собирается из сообщений проваленных проверок.
type RiskCheckResult struct {
	Approved         bool              `json:"approved"`
	OrderID          string            `json:"order_id"`
	Checks           []RiskCheckDetail `json:"checks"`
	RejectionReason  string            `json:"rejection_reason,omitempty"`
	ProcessingTimeMs float64           `json:"processing_time_ms"`
	Timestamp        time.Time         `json:"timestamp"`
}

// FailedChecks возвращает проваленные проверки в порядке выполнения
func (r *RiskCheckResult) FailedChecks() []RiskCheckDetail {
	var failed []RiskCheckDetail
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c)
		}
	}
	return failed
}

// Типы риск-событий
const (
	EventDrawdownWarning    = "DRAWDOWN_WARNING"
	EventDrawdownBreach     = "DRAWDOWN_BREACH"
	EventKillSwitch         = "KILL_SWITCH_ACTIVATED"
	EventCircuitBreakerTrip = "CIRCUIT_BREAKER_TRIP"
	EventExchangeError      = "EXCHANGE_ERROR"
	EventLimitBreach        = "LIMIT_BREACH"
)

// Важность риск-событий
const (
	SeverityInfo      = "INFO"
	SeverityWarning   = "WARNING"
	SeverityCritical  = "CRITICAL"
	SeverityEmergency = "EMERGENCY"
)

// RiskEvent - событие риска, передаваемое в audit/notification pipeline
//
// Ядро только производит события; доставка (аудит, уведомления) -
// ответственность внешних подсистем через callback.
type RiskEvent struct {
	ID               int                    `json:"id,omitempty" db:"id"`
	TenantID         string                 `json:"tenant_id" db:"tenant_id"`
	EventType        string                 `json:"event_type" db:"event_type"`
	Severity         string                 `json:"severity" db:"severity"`
	StrategyID       string                 `json:"strategy_id,omitempty" db:"strategy_id"`
	AssetID          string                 `json:"asset_id,omitempty" db:"asset_id"`
	Description      string                 `json:"description" db:"description"`
	TriggerCondition string                 `json:"trigger_condition" db:"trigger_condition"`
	ActionTaken      string                 `json:"action_taken" db:"action_taken"`
	Metadata         map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt        time.Time              `json:"created_at" db:"created_at"`
}

// PostTradeResult - итог post-trade обработки исполнения
type PostTradeResult struct {
	Position         *Position             `json:"position"`
	RealizedPnl      float64               `json:"realized_pnl"`
	PortfolioValue   float64               `json:"portfolio_value"`
	Drawdown         *DrawdownUpdate       `json:"drawdown,omitempty"`
	BreakerResult    *CircuitBreakerResult `json:"breaker_result,omitempty"`
	Events           []RiskEvent           `json:"events,omitempty"`
	ProcessingTimeMs float64               `json:"processing_time_ms"`
	Timestamp        time.Time             `json:"timestamp"`
}

// ReconcileResult - результат сверки позиции с данными биржи
//
// При расхождении больше допуска данные биржи побеждают
// (Reconciled = true, внутренняя позиция перезаписана).
type ReconcileResult struct {
	TenantID         string  `json:"tenant_id"`
	AssetID          string  `json:"asset_id"`
	InternalQuantity float64 `json:"internal_quantity"`
	ExchangeQuantity float64 `json:"exchange_quantity"`
	Discrepancy      float64 `json:"discrepancy"`
	Reconciled       bool    `json:"reconciled"`
	AlertGenerated   bool    `json:"alert_generated"`
}
