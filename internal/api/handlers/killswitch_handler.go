package handlers

import (
	"net/http"

	"riskcore/internal/models"
)

// KillSwitchController - контракт управления kill switch'ем
type KillSwitchController interface {
	IsActive(tenantID string) (bool, error)
	GetState(tenantID string) (*models.KillSwitchState, error)
	Activate(tenantID, reason string)
	Deactivate(tenantID string)
}

// KillSwitchHandler отвечает за ручное управление kill switch'ем
//
// Endpoints:
// - GET /api/v1/killswitch?tenant_id=X - состояние выключателя
// - POST /api/v1/killswitch/activate - остановить торговлю
// - POST /api/v1/killswitch/deactivate - возобновить торговлю
type KillSwitchHandler struct {
	killSwitch KillSwitchController

	// onChange уведомляет об изменении состояния (WebSocket hub);
	// nil отключает уведомления
	onChange func(tenantID string, state *models.KillSwitchState)
}

// NewKillSwitchHandler создает новый KillSwitchHandler
func NewKillSwitchHandler(killSwitch KillSwitchController, onChange func(tenantID string, state *models.KillSwitchState)) *KillSwitchHandler {
	return &KillSwitchHandler{killSwitch: killSwitch, onChange: onChange}
}

// GetState возвращает состояние kill switch тенанта
//
// GET /api/v1/killswitch?tenant_id=X
func (h *KillSwitchHandler) GetState(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		respondWithError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	state, err := h.killSwitch.GetState(tenantID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get state: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, state)
}

// KillSwitchRequest представляет запрос активации/деактивации
type KillSwitchRequest struct {
	TenantID string `json:"tenant_id"`
	Reason   string `json:"reason,omitempty"`
}

// Activate останавливает торговлю тенанта
//
// POST /api/v1/killswitch/activate
//
// HTTP коды:
// - 200 OK: выключатель активирован
// - 400 Bad Request: отсутствует tenant_id или reason
func (h *KillSwitchHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req KillSwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.TenantID == "" {
		respondWithError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	if req.Reason == "" {
		respondWithError(w, http.StatusBadRequest, "reason is required for manual activation")
		return
	}

	h.killSwitch.Activate(req.TenantID, req.Reason)
	h.notifyChange(req.TenantID)

	state, _ := h.killSwitch.GetState(req.TenantID)
	respondWithJSON(w, http.StatusOK, state)
}

// Deactivate возобновляет торговлю тенанта
//
// POST /api/v1/killswitch/deactivate
func (h *KillSwitchHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	var req KillSwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.TenantID == "" {
		respondWithError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	h.killSwitch.Deactivate(req.TenantID)
	h.notifyChange(req.TenantID)

	state, _ := h.killSwitch.GetState(req.TenantID)
	respondWithJSON(w, http.StatusOK, state)
}

func (h *KillSwitchHandler) notifyChange(tenantID string) {
	if h.onChange == nil {
		return
	}
	if state, err := h.killSwitch.GetState(tenantID); err == nil {
		h.onChange(tenantID, state)
	}
}
