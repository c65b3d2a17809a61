package handlers

import (
	"net/http"
	"strconv"

	"riskcore/internal/models"
)

// EventSource - контракт чтения журнала риск-событий
type EventSource interface {
	GetRecent(tenantID string, limit int) ([]*models.RiskEvent, error)
	GetBySeverity(tenantID, severity string, limit int) ([]*models.RiskEvent, error)
}

// EventHandler отвечает за чтение журнала риск-событий
//
// Endpoints:
// - GET /api/v1/events?tenant_id=X - последние события
// - GET /api/v1/events?tenant_id=X&severity=CRITICAL - по важности
// - GET /api/v1/events?tenant_id=X&limit=50 - с ограничением
type EventHandler struct {
	events EventSource
}

// NewEventHandler создает новый EventHandler
func NewEventHandler(events EventSource) *EventHandler {
	return &EventHandler{events: events}
}

// EventsResponse представляет ответ со списком событий
type EventsResponse struct {
	Events []*models.RiskEvent `json:"events"`
	Total  int                 `json:"total"`
}

// GetEvents возвращает журнал риск-событий тенанта
//
// GET /api/v1/events
//
// Query параметры:
// - tenant_id (string, обязательный)
// - severity (string): INFO, WARNING, CRITICAL, EMERGENCY
// - limit (int): количество записей (по умолчанию 100, максимум 500)
func (h *EventHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	tenantID := query.Get("tenant_id")
	if tenantID == "" {
		respondWithError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	limit := 100
	if limitParam := query.Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 500 {
		limit = 500
	}

	var events []*models.RiskEvent
	var err error
	if severity := query.Get("severity"); severity != "" {
		events, err = h.events.GetBySeverity(tenantID, severity, limit)
	} else {
		events, err = h.events.GetRecent(tenantID, limit)
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get events: "+err.Error())
		return
	}
	if events == nil {
		events = []*models.RiskEvent{}
	}

	respondWithJSON(w, http.StatusOK, EventsResponse{
		Events: events,
		Total:  len(events),
	})
}
