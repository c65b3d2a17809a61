package handlers

import (
	"net/http"

	"riskcore/internal/models"
	"riskcore/internal/risk"
)

// PreTradeValidator - контракт pre-trade проверки для handler'а
type PreTradeValidator interface {
	Validate(order *models.OrderRequest, cfg *risk.ValidateConfig) *models.RiskCheckResult
	IsTradingAllowed(tenantID, strategyID string) bool
}

// RiskHandler отвечает за pre-trade валидацию ордеров
//
// Endpoints:
// - POST /api/v1/risk/check - прогон ордера через все проверки
// - GET /api/v1/risk/allowed - быстрая проверка "можно ли торговать"
type RiskHandler struct {
	checker PreTradeValidator
}

// NewRiskHandler создает новый RiskHandler с внедрением зависимости
func NewRiskHandler(checker PreTradeValidator) *RiskHandler {
	return &RiskHandler{checker: checker}
}

// CheckOrderRequest представляет запрос pre-trade проверки
type CheckOrderRequest struct {
	Order models.OrderRequest `json:"order"`

	// Опциональный контекст проверок: отсутствующие значения
	// отключают соответствующие проверки (capital, leverage)
	AvailableCapital *float64 `json:"available_capital,omitempty"`
	MaxLeverage      *float64 `json:"max_leverage,omitempty"`
	PortfolioValue   *float64 `json:"portfolio_value,omitempty"`
}

// CheckOrder прогоняет ордер через все риск-проверки
//
// POST /api/v1/risk/check
//
// Тело запроса: CheckOrderRequest.
// Ответ всегда 200 с RiskCheckResult - отклонение ордера не ошибка
// HTTP, а нормальный результат проверки (approved=false).
//
// HTTP коды:
// - 200 OK: проверка выполнена (смотреть approved)
// - 400 Bad Request: некорректное тело запроса
func (h *RiskHandler) CheckOrder(w http.ResponseWriter, r *http.Request) {
	var req CheckOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Order.TenantID == "" || req.Order.AssetID == "" {
		respondWithError(w, http.StatusBadRequest, "tenant_id and asset_id are required")
		return
	}
	if req.Order.Side != models.SideBuy && req.Order.Side != models.SideSell {
		respondWithError(w, http.StatusBadRequest, "side must be BUY or SELL")
		return
	}
	if req.Order.Quantity <= 0 {
		respondWithError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}

	cfg := &risk.ValidateConfig{
		AvailableCapital: req.AvailableCapital,
		MaxLeverage:      req.MaxLeverage,
		PortfolioValue:   req.PortfolioValue,
	}

	result := h.checker.Validate(&req.Order, cfg)
	respondWithJSON(w, http.StatusOK, result)
}

// TradingAllowedResponse представляет ответ проверки доступности торговли
type TradingAllowedResponse struct {
	TenantID   string `json:"tenant_id"`
	StrategyID string `json:"strategy_id,omitempty"`
	Allowed    bool   `json:"allowed"`
}

// TradingAllowed быстрая проверка, разрешена ли торговля
//
// GET /api/v1/risk/allowed?tenant_id=X&strategy_id=Y
//
// Проверяет kill switch, просадку и circuit breaker'ы без
// конкретного ордера.
//
// HTTP коды:
// - 200 OK: успешно
// - 400 Bad Request: отсутствует tenant_id
func (h *RiskHandler) TradingAllowed(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		respondWithError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	strategyID := r.URL.Query().Get("strategy_id")

	respondWithJSON(w, http.StatusOK, TradingAllowedResponse{
		TenantID:   tenantID,
		StrategyID: strategyID,
		Allowed:    h.checker.IsTradingAllowed(tenantID, strategyID),
	})
}
