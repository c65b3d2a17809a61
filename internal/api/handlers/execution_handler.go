package handlers

import (
	"net/http"

	"riskcore/internal/models"
	"riskcore/internal/risk"
)

// ExecutionProcessor - контракт post-trade обработки для handler'а
type ExecutionProcessor interface {
	ProcessExecution(exec *models.ExecutionReport, cfg *risk.PostTradeConfig, callback risk.RiskEventCallback) *models.PostTradeResult
	BatchReconcile(tenantID, strategyID string, exchangePositions []models.ExchangePosition, callback risk.RiskEventCallback) []models.ReconcileResult
}

// ExecutionHandler отвечает за post-trade обработку исполнений
//
// Endpoints:
// - POST /api/v1/executions - обработать отчёт об исполнении
// - POST /api/v1/reconcile - сверить позиции с данными биржи
type ExecutionHandler struct {
	updater  ExecutionProcessor
	cfg      *risk.PostTradeConfig
	callback risk.RiskEventCallback
}

// NewExecutionHandler создает новый ExecutionHandler.
//
// callback получает все риск-события post-trade обработки
// (доставка в WebSocket hub и журнал БД).
func NewExecutionHandler(updater ExecutionProcessor, cfg *risk.PostTradeConfig, callback risk.RiskEventCallback) *ExecutionHandler {
	return &ExecutionHandler{updater: updater, cfg: cfg, callback: callback}
}

// ProcessExecution обрабатывает отчёт об исполнении ордера
//
// POST /api/v1/executions
//
// Обновляет позицию, считает реализованный PNL, кормит трекер
// просадки и circuit breaker, запускает защитные действия.
//
// HTTP коды:
// - 200 OK: исполнение обработано, возвращает PostTradeResult
// - 400 Bad Request: некорректное тело запроса
func (h *ExecutionHandler) ProcessExecution(w http.ResponseWriter, r *http.Request) {
	var exec models.ExecutionReport
	if err := json.NewDecoder(r.Body).Decode(&exec); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if exec.TenantID == "" || exec.AssetID == "" {
		respondWithError(w, http.StatusBadRequest, "tenant_id and asset_id are required")
		return
	}
	if exec.Side != models.SideBuy && exec.Side != models.SideSell {
		respondWithError(w, http.StatusBadRequest, "side must be BUY or SELL")
		return
	}
	if exec.Quantity <= 0 || exec.Price <= 0 {
		respondWithError(w, http.StatusBadRequest, "quantity and price must be positive")
		return
	}

	result := h.updater.ProcessExecution(&exec, h.cfg, h.callback)
	respondWithJSON(w, http.StatusOK, result)
}

// ReconcileRequest представляет запрос сверки позиций
type ReconcileRequest struct {
	TenantID   string                    `json:"tenant_id"`
	StrategyID string                    `json:"strategy_id,omitempty"`
	Positions  []models.ExchangePosition `json:"positions"`
}

// ReconcileResponse представляет результат сверки
type ReconcileResponse struct {
	Results       []models.ReconcileResult `json:"results"`
	Discrepancies int                      `json:"discrepancies"`
}

// Reconcile сверяет внутренние позиции с данными биржи
//
// POST /api/v1/reconcile
//
// При расхождении больше допуска данные биржи побеждают:
// внутренняя позиция перезаписывается, генерируется алерт.
//
// HTTP коды:
// - 200 OK: сверка выполнена
// - 400 Bad Request: некорректное тело запроса
func (h *ExecutionHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.TenantID == "" {
		respondWithError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	if len(req.Positions) == 0 {
		respondWithError(w, http.StatusBadRequest, "positions must not be empty")
		return
	}

	results := h.updater.BatchReconcile(req.TenantID, req.StrategyID, req.Positions, h.callback)

	discrepancies := 0
	for _, result := range results {
		if result.Reconciled {
			discrepancies++
		}
	}

	respondWithJSON(w, http.StatusOK, ReconcileResponse{
		Results:       results,
		Discrepancies: discrepancies,
	})
}
