package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"riskcore/internal/models"
	"riskcore/internal/repository"
)

// LimitStore - контракт хранилища лимитов для handler'а
type LimitStore interface {
	Create(limit *models.PositionLimit) error
	GetLimit(limitID int) (*models.PositionLimit, error)
	GetByTenant(tenantID string) ([]models.PositionLimit, error)
	UpdateMaxValue(limitID int, maxValue float64) error
	Delete(limitID int) error
}

// LimitHandler отвечает за управление лимитами позиций
//
// Endpoints:
// - GET /api/v1/limits?tenant_id=X - лимиты тенанта
// - POST /api/v1/limits - создать лимит
// - GET /api/v1/limits/{id} - получить лимит
// - PATCH /api/v1/limits/{id} - изменить потолок
// - DELETE /api/v1/limits/{id} - удалить лимит
type LimitHandler struct {
	limits LimitStore
}

// NewLimitHandler создает новый LimitHandler
func NewLimitHandler(limits LimitStore) *LimitHandler {
	return &LimitHandler{limits: limits}
}

// GetLimits возвращает все лимиты тенанта
//
// GET /api/v1/limits?tenant_id=X
func (h *LimitHandler) GetLimits(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		respondWithError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	limits, err := h.limits.GetByTenant(tenantID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get limits: "+err.Error())
		return
	}
	if limits == nil {
		limits = []models.PositionLimit{}
	}

	respondWithJSON(w, http.StatusOK, limits)
}

// CreateLimit создает лимит позиции
//
// POST /api/v1/limits
//
// HTTP коды:
// - 201 Created: лимит создан, возвращает его с присвоенным ID
// - 400 Bad Request: некорректное тело запроса
// - 409 Conflict: лимит для этого охвата уже существует
// - 500 Internal Server Error: ошибка БД
func (h *LimitHandler) CreateLimit(w http.ResponseWriter, r *http.Request) {
	var limit models.PositionLimit
	if err := json.NewDecoder(r.Body).Decode(&limit); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if limit.TenantID == "" {
		respondWithError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	switch limit.Scope {
	case models.ScopeAsset:
		if limit.AssetID == "" {
			respondWithError(w, http.StatusBadRequest, "asset_id is required for ASSET scope")
			return
		}
	case models.ScopeStrategy:
		if limit.StrategyID == "" {
			respondWithError(w, http.StatusBadRequest, "strategy_id is required for STRATEGY scope")
			return
		}
	case models.ScopePortfolio:
	default:
		respondWithError(w, http.StatusBadRequest, "scope must be ASSET, STRATEGY or PORTFOLIO")
		return
	}
	if limit.LimitType != models.LimitTypeAbsolute && limit.LimitType != models.LimitTypePercentage {
		respondWithError(w, http.StatusBadRequest, "limit_type must be ABSOLUTE or PERCENTAGE")
		return
	}
	if limit.MaxValue <= 0 {
		respondWithError(w, http.StatusBadRequest, "max_value must be positive")
		return
	}
	if limit.LimitType == models.LimitTypePercentage && limit.MaxValue > 100 {
		respondWithError(w, http.StatusBadRequest, "percentage limit cannot exceed 100")
		return
	}

	if err := h.limits.Create(&limit); err != nil {
		if errors.Is(err, repository.ErrLimitExists) {
			respondWithError(w, http.StatusConflict, "Limit already exists for this scope")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to create limit: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, limit)
}

// GetLimit возвращает лимит по ID
//
// GET /api/v1/limits/{id}
func (h *LimitHandler) GetLimit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.limitID(w, r)
	if !ok {
		return
	}

	limit, err := h.limits.GetLimit(id)
	if err != nil {
		if errors.Is(err, repository.ErrLimitNotFound) {
			respondWithError(w, http.StatusNotFound, "limit not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to get limit: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, limit)
}

// UpdateLimitRequest представляет запрос изменения потолка лимита
type UpdateLimitRequest struct {
	MaxValue float64 `json:"max_value"`
}

// UpdateLimit изменяет потолок лимита
//
// PATCH /api/v1/limits/{id}
func (h *LimitHandler) UpdateLimit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.limitID(w, r)
	if !ok {
		return
	}

	var req UpdateLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.MaxValue <= 0 {
		respondWithError(w, http.StatusBadRequest, "max_value must be positive")
		return
	}

	if err := h.limits.UpdateMaxValue(id, req.MaxValue); err != nil {
		if errors.Is(err, repository.ErrLimitNotFound) {
			respondWithError(w, http.StatusNotFound, "limit not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to update limit: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Limit updated"})
}

// DeleteLimit удаляет лимит
//
// DELETE /api/v1/limits/{id}
func (h *LimitHandler) DeleteLimit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.limitID(w, r)
	if !ok {
		return
	}

	if err := h.limits.Delete(id); err != nil {
		if errors.Is(err, repository.ErrLimitNotFound) {
			respondWithError(w, http.StatusNotFound, "limit not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to delete limit: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Limit deleted"})
}

// limitID извлекает {id} из пути
func (h *LimitHandler) limitID(w http.ResponseWriter, r *http.Request) (int, bool) {
	idStr := mux.Vars(r)["id"]
	id, err := strconv.Atoi(idStr)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "invalid limit id")
		return 0, false
	}
	return id, true
}
