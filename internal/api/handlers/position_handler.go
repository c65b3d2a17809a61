package handlers

import (
	"net/http"

	"riskcore/internal/models"
)

// PositionSource - контракт чтения позиций для handler'а
type PositionSource interface {
	GetPositions(tenantID string) ([]models.Position, float64)
	GetPositionsByStrategy(tenantID, strategyID string) []models.Position
	GetPosition(tenantID, assetID, strategyID string) *models.Position
}

// PositionHandler отвечает за чтение позиций
//
// Endpoints:
// - GET /api/v1/positions?tenant_id=X - все позиции тенанта
// - GET /api/v1/positions?tenant_id=X&strategy_id=Y - позиции стратегии
// - GET /api/v1/positions?tenant_id=X&asset_id=Z - одна позиция
type PositionHandler struct {
	store PositionSource
}

// NewPositionHandler создает новый PositionHandler
func NewPositionHandler(store PositionSource) *PositionHandler {
	return &PositionHandler{store: store}
}

// PositionsResponse представляет ответ со списком позиций
type PositionsResponse struct {
	Positions  []models.Position `json:"positions"`
	TotalValue float64           `json:"total_value"`
	Count      int               `json:"count"`
}

// GetPositions возвращает позиции тенанта
//
// GET /api/v1/positions
//
// Query параметры:
// - tenant_id (string, обязательный)
// - strategy_id (string): только позиции стратегии
// - asset_id (string): одна позиция (вместе с strategy_id опционально)
//
// HTTP коды:
// - 200 OK: успешно
// - 400 Bad Request: отсутствует tenant_id
// - 404 Not Found: запрошена конкретная позиция, но её нет
func (h *PositionHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	tenantID := query.Get("tenant_id")
	if tenantID == "" {
		respondWithError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	assetID := query.Get("asset_id")
	strategyID := query.Get("strategy_id")

	// Запрос одной позиции
	if assetID != "" {
		position := h.store.GetPosition(tenantID, assetID, strategyID)
		if position == nil {
			respondWithError(w, http.StatusNotFound, "position not found")
			return
		}
		respondWithJSON(w, http.StatusOK, position)
		return
	}

	var positions []models.Position
	var totalValue float64
	if strategyID != "" {
		positions = h.store.GetPositionsByStrategy(tenantID, strategyID)
		for _, p := range positions {
			totalValue += p.MarketValue
		}
	} else {
		positions, totalValue = h.store.GetPositions(tenantID)
	}

	if positions == nil {
		positions = []models.Position{}
	}

	respondWithJSON(w, http.StatusOK, PositionsResponse{
		Positions:  positions,
		TotalValue: totalValue,
		Count:      len(positions),
	})
}
