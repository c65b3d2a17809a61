package models

import "time"

// Стороны сделки
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Типы ордеров
const (
	OrderTypeMarket = "MARKET"
	OrderTypeLimit  = "LIMIT"
)

// Position представляет позицию тенанта по активу.
//
// Ключ позиции: (tenant_id, asset_id, strategy_id).
// Quantity знаковое: положительное = лонг, отрицательное = шорт.
//
// Инварианты:
// - AveragePrice меняется только при покупках, увеличивающих позицию
//   в том же направлении (средневзвешенная цена)
// - Продажи (уменьшающие сделки) НЕ пересчитывают среднюю цену
// - Позиция с нулевым количеством не удаляется (остаётся записью)
type Position struct {
	TenantID      string    `json:"tenant_id" db:"tenant_id"`
	AssetID       string    `json:"asset_id" db:"asset_id"`
	StrategyID    string    `json:"strategy_id,omitempty" db:"strategy_id"`
	Quantity      float64   `json:"quantity" db:"quantity"`
	AveragePrice  float64   `json:"average_price" db:"average_price"`
	MarketValue   float64   `json:"market_value" db:"market_value"`
	UnrealizedPnl float64   `json:"unrealized_pnl" db:"unrealized_pnl"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Notional возвращает абсолютную стоимость позиции по указанной цене
func (p *Position) Notional(price float64) float64 {
	qty := p.Quantity
	if qty < 0 {
		qty = -qty
	}
	return qty * price
}

// IsFlat возвращает true если позиция закрыта (нулевое количество)
func (p *Position) IsFlat() bool {
	return p.Quantity == 0
}

// ExecutionReport - отчёт об исполнении ордера на бирже
//
// Входные данные для Post-Trade обновления: позиция, PNL, drawdown,
// circuit breaker обновляются на основе этого отчёта.
type ExecutionReport struct {
	OrderID    string    `json:"order_id"`
	TenantID   string    `json:"tenant_id"`
	AssetID    string    `json:"asset_id"`
	StrategyID string    `json:"strategy_id,omitempty"`
	Side       string    `json:"side"` // BUY, SELL
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Commission float64   `json:"commission"`
	ExecutedAt time.Time `json:"executed_at"`
}

// SignedQuantity возвращает знаковое количество сделки (BUY +, SELL -)
func (e *ExecutionReport) SignedQuantity() float64 {
	if e.Side == SideSell {
		return -e.Quantity
	}
	return e.Quantity
}

// OrderRequest - запрос на размещение ордера
//
// Проходит через Pre-Trade Checker до отправки на биржу.
// Price = 0 для рыночных ордеров (цена неизвестна заранее).
type OrderRequest struct {
	OrderID    string  `json:"order_id"`
	TenantID   string  `json:"tenant_id"`
	AssetID    string  `json:"asset_id"`
	StrategyID string  `json:"strategy_id,omitempty"`
	Side       string  `json:"side"` // BUY, SELL
	Type       string  `json:"type"` // MARKET, LIMIT
	Quantity   float64 `json:"quantity"`
	Price      float64 `json:"price,omitempty"`
}

// Value возвращает стоимость ордера: quantity × price
// Для рыночных ордеров без цены возвращает 0.
func (o *OrderRequest) Value() float64 {
	return o.Quantity * o.Price
}

// ExchangePosition - позиция по данным биржи (для сверки)
//
// При расхождении с внутренним учётом данные биржи считаются
// источником истины.
type ExchangePosition struct {
	AssetID  string  `json:"asset_id"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price,omitempty"`
}
