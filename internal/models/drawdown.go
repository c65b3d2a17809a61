package models

import "time"

// Статусы drawdown
const (
	DrawdownNormal   = "NORMAL"
	DrawdownWarning  = "WARNING"
	DrawdownCritical = "CRITICAL"
)

// DrawdownState - состояние просадки портфеля или стратегии
//
// PeakValue только растёт (монотонный храповик).
// Status - чистая функция от DrawdownPercent и порогов.
type DrawdownState struct {
	TenantID         string  `json:"tenant_id"`
	StrategyID       string  `json:"strategy_id,omitempty"`
	Scope            string  `json:"scope"`
	PeakValue        float64 `json:"peak_value"`
	CurrentValue     float64 `json:"current_value"`
	DrawdownPercent  float64 `json:"drawdown_percent"`
	DrawdownAbsolute float64 `json:"drawdown_absolute"`
	WarningThreshold float64 `json:"warning_threshold"`
	MaxThreshold     float64 `json:"max_threshold"`
	Status           string  `json:"status"`
}

// DrawdownUpdate - результат обновления drawdown трекера
type DrawdownUpdate struct {
	State       *DrawdownState `json:"state"`
	AlertSent   bool           `json:"alert_sent"`
	AlertType   string         `json:"alert_type,omitempty"`
	ActionTaken string         `json:"action_taken,omitempty"`
}

// KillSwitchState - состояние тенантного выключателя торговли
type KillSwitchState struct {
	Active           bool       `json:"active"`
	ActivationReason string     `json:"activation_reason,omitempty"`
	ActivatedAt      *time.Time `json:"activated_at,omitempty"`
}

// Состояния circuit breaker
const (
	BreakerClosed   = "CLOSED"    // торговля разрешена
	BreakerOpen     = "OPEN"      // торговля остановлена
	BreakerHalfOpen = "HALF_OPEN" // пробный режим после cooldown
)

// CircuitBreakerResult - результат запроса состояния breaker'ов тенанта
type CircuitBreakerResult struct {
	AllClosed        bool     `json:"all_closed"`
	OpenBreakers     []string `json:"open_breakers"`
	HalfOpenBreakers []string `json:"half_open_breakers"`
}

// TradingEvent - торговое событие для circuit breaker
type TradingEvent struct {
	EventType  string    `json:"event_type"`
	StrategyID string    `json:"strategy_id,omitempty"`
	AssetID    string    `json:"asset_id,omitempty"`
	Success    bool      `json:"success"`
	LossAmount float64   `json:"loss_amount,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
