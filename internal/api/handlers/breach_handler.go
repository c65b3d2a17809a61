package handlers

import (
	"net/http"

	"riskcore/internal/models"
	"riskcore/internal/risk"
)

// BreachProcessor - контракт обработчика пассивных пробоев
type BreachProcessor interface {
	ProcessPassiveBreaches(tenantID string, priceMap map[string]float64, portfolioValue float64, cfg *risk.BreachConfig) ([]models.BreachCheckResult, error)
}

// BreachReader - контракт чтения помеченных позиций и ордеров
type BreachReader interface {
	ListFlagged(tenantID string) []models.FlaggedPosition
	ListOrders(tenantID string) []models.ReductionOrder
}

// BreachHandler отвечает за пассивные пробои лимитов
//
// Endpoints:
// - POST /api/v1/breaches/check - прогнать проверку по текущим ценам
// - GET /api/v1/breaches?tenant_id=X - помеченные позиции
// - GET /api/v1/reduction-orders?tenant_id=X - корректирующие ордера
type BreachHandler struct {
	processor BreachProcessor
	store     BreachReader
	cfg       *risk.BreachConfig
}

// NewBreachHandler создает новый BreachHandler
func NewBreachHandler(processor BreachProcessor, store BreachReader, cfg *risk.BreachConfig) *BreachHandler {
	return &BreachHandler{processor: processor, store: store, cfg: cfg}
}

// CheckBreachesRequest представляет запрос проверки пробоев
type CheckBreachesRequest struct {
	TenantID       string             `json:"tenant_id"`
	Prices         map[string]float64 `json:"prices"`
	PortfolioValue float64            `json:"portfolio_value,omitempty"`
}

// CheckBreachesResponse представляет результат проверки
type CheckBreachesResponse struct {
	Results  []models.BreachCheckResult `json:"results"`
	Breaches int                        `json:"breaches"`
	Warnings int                        `json:"warnings"`
}

// CheckBreaches прогоняет все позиции тенанта через проверку
// пассивных пробоев по переданным рыночным ценам
//
// POST /api/v1/breaches/check
//
// HTTP коды:
// - 200 OK: проверка выполнена
// - 400 Bad Request: некорректное тело запроса
// - 500 Internal Server Error: ошибка источника лимитов
func (h *BreachHandler) CheckBreaches(w http.ResponseWriter, r *http.Request) {
	var req CheckBreachesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.TenantID == "" {
		respondWithError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	if len(req.Prices) == 0 {
		respondWithError(w, http.StatusBadRequest, "prices must not be empty")
		return
	}

	results, err := h.processor.ProcessPassiveBreaches(req.TenantID, req.Prices, req.PortfolioValue, h.cfg)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Breach check failed: "+err.Error())
		return
	}

	resp := CheckBreachesResponse{Results: results}
	if resp.Results == nil {
		resp.Results = []models.BreachCheckResult{}
	}
	for _, result := range results {
		switch result.Status {
		case models.BreachStatusBreach:
			resp.Breaches++
		case models.BreachStatusWarning:
			resp.Warnings++
		}
	}

	respondWithJSON(w, http.StatusOK, resp)
}

// GetFlagged возвращает помеченные позиции тенанта
//
// GET /api/v1/breaches?tenant_id=X
func (h *BreachHandler) GetFlagged(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		respondWithError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	flagged := h.store.ListFlagged(tenantID)
	if flagged == nil {
		flagged = []models.FlaggedPosition{}
	}

	respondWithJSON(w, http.StatusOK, flagged)
}

// GetReductionOrders возвращает корректирующие ордера тенанта
//
// GET /api/v1/reduction-orders?tenant_id=X
func (h *BreachHandler) GetReductionOrders(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		respondWithError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	orders := h.store.ListOrders(tenantID)
	if orders == nil {
		orders = []models.ReductionOrder{}
	}

	respondWithJSON(w, http.StatusOK, orders)
}
