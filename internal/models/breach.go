package models

import "time"

// Статусы проверки пассивного пробоя
const (
	BreachStatusNormal  = "NORMAL"
	BreachStatusWarning = "WARNING" // >= 90% потолка
	BreachStatusBreach  = "BREACH"  // > потолка
)

// WarningUtilizationFactor - доля потолка, с которой начинается WARNING
const WarningUtilizationFactor = 0.9

// BreachCheckResult - результат проверки позиции против одного лимита
//
// Пассивный пробой: лимит нарушен движением рыночной цены,
// без новой сделки.
type BreachCheckResult struct {
	TenantID       string  `json:"tenant_id"`
	AssetID        string  `json:"asset_id"`
	StrategyID     string  `json:"strategy_id,omitempty"`
	LimitID        int     `json:"limit_id"`
	Scope          string  `json:"scope"`
	Status         string  `json:"status"`
	CurrentValue   float64 `json:"current_value"`
	EffectiveLimit float64 `json:"effective_limit"`
	BreachAmount   float64 `json:"breach_amount"`
	BreachPercent  float64 `json:"breach_percent"`
}

// FlaggedPosition - позиция, помеченная как нарушившая лимит
//
// Одна живая запись на ключ (tenant, asset, limit); повторное
// обнаружение перезаписывает запись. Снимается явно при разрешении.
type FlaggedPosition struct {
	PositionID           string    `json:"position_id"`
	TenantID             string    `json:"tenant_id"`
	AssetID              string    `json:"asset_id"`
	StrategyID           string    `json:"strategy_id,omitempty"`
	LimitID              int       `json:"limit_id"`
	Status               string    `json:"status"` // всегда BREACH
	CurrentValue         float64   `json:"current_value"`
	MaxValue             float64   `json:"max_value"`
	BreachAmount         float64   `json:"breach_amount"`
	BreachPercent        float64   `json:"breach_percent"`
	FlaggedAt            time.Time `json:"flagged_at"`
	AutoReductionEnabled bool      `json:"auto_reduction_enabled"`
	ReductionOrderQueued bool      `json:"reduction_order_queued"`
	ReductionOrderID     string    `json:"reduction_order_id,omitempty"`
}

// Статусы корректирующего ордера
const (
	ReductionStatusQueued    = "QUEUED"
	ReductionStatusSubmitted = "SUBMITTED"
	ReductionStatusFilled    = "FILLED"
	ReductionStatusCancelled = "CANCELLED"
)

// ReductionOrder - корректирующий SELL-ордер для сокращения позиции
type ReductionOrder struct {
	OrderID    string    `json:"order_id"`
	TenantID   string    `json:"tenant_id"`
	AssetID    string    `json:"asset_id"`
	StrategyID string    `json:"strategy_id,omitempty"`
	LimitID    int       `json:"limit_id"`
	Side       string    `json:"side"` // всегда SELL
	Quantity   float64   `json:"quantity"`
	Reason     string    `json:"reason"`
	QueuedAt   time.Time `json:"queued_at"`
	Status     string    `json:"status"`
}
