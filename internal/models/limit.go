package models

import "time"

// Охват лимита позиции
const (
	ScopeAsset     = "ASSET"     // один инструмент
	ScopeStrategy  = "STRATEGY"  // все позиции одной стратегии
	ScopePortfolio = "PORTFOLIO" // весь портфель тенанта
)

// Тип лимита
const (
	LimitTypeAbsolute   = "ABSOLUTE"   // абсолютный потолок в валюте котировки
	LimitTypePercentage = "PERCENTAGE" // процент от стоимости портфеля
)

// PositionLimit - лимит на размер позиции
//
// PERCENTAGE лимиты разрешаются в абсолютный потолок через
// maxValue/100 × portfolioValue. UtilizationPercent ограничен 100.
type PositionLimit struct {
	ID                 int       `json:"id" db:"id"`
	TenantID           string    `json:"tenant_id" db:"tenant_id"`
	Scope              string    `json:"scope" db:"scope"`
	AssetID            string    `json:"asset_id,omitempty" db:"asset_id"`
	StrategyID         string    `json:"strategy_id,omitempty" db:"strategy_id"`
	LimitType          string    `json:"limit_type" db:"limit_type"`
	MaxValue           float64   `json:"max_value" db:"max_value"`
	CurrentValue       float64   `json:"current_value" db:"current_value"`
	UtilizationPercent float64   `json:"utilization_percent" db:"utilization_percent"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// EffectiveLimit возвращает абсолютный потолок лимита.
//
// Для ABSOLUTE лимитов это MaxValue. Для PERCENTAGE лимитов потолок
// вычисляется от стоимости портфеля: MaxValue/100 × portfolioValue.
//
// Возвращает:
//   - потолок и true, если лимит разрешим
//   - 0 и false для PERCENTAGE лимита без известной стоимости портфеля
func (l *PositionLimit) EffectiveLimit(portfolioValue float64) (float64, bool) {
	if l.LimitType == LimitTypePercentage {
		if portfolioValue <= 0 {
			return 0, false
		}
		return l.MaxValue / 100 * portfolioValue, true
	}
	return l.MaxValue, true
}

// ExchangeLimits - числовые ограничения биржи на параметры ордера
type ExchangeLimits struct {
	MinOrderSize             float64 `json:"min_order_size"`
	MaxOrderSize             float64 `json:"max_order_size"`
	LotSize                  float64 `json:"lot_size"`
	MinPrice                 float64 `json:"min_price"`
	MaxPrice                 float64 `json:"max_price"`
	TickSize                 float64 `json:"tick_size"`
	MaxPriceDeviationPercent float64 `json:"max_price_deviation_percent"`
}

// Коды нарушений лимитов биржи
const (
	ViolationMinOrderSize   = "MIN_ORDER_SIZE"
	ViolationMaxOrderSize   = "MAX_ORDER_SIZE"
	ViolationLotSize        = "LOT_SIZE"
	ViolationPriceBelowMin  = "PRICE_BELOW_MIN"
	ViolationPriceAboveMax  = "PRICE_ABOVE_MAX"
	ViolationTickSize       = "TICK_SIZE"
	ViolationPriceDeviation = "PRICE_DEVIATION"
)

// LimitViolation - одно нарушение ограничений биржи
type LimitViolation struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Value   float64 `json:"value"`
	Limit   float64 `json:"limit"`
}
