package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"riskcore/internal/models"
)

func testEvents() []*models.RiskEvent {
	return []*models.RiskEvent{
		{ID: 3, TenantID: "tenant-1", EventType: models.EventKillSwitch, Severity: models.SeverityEmergency},
		{ID: 2, TenantID: "tenant-1", EventType: models.EventLimitBreach, Severity: models.SeverityCritical},
		{ID: 1, TenantID: "tenant-1", EventType: models.EventDrawdownWarning, Severity: models.SeverityWarning},
	}
}

func TestEventHandlerGetEvents(t *testing.T) {
	handler := NewEventHandler(&mockEventSource{events: testEvents()})

	req := httptest.NewRequest("GET", "/api/v1/events?tenant_id=tenant-1", nil)
	rec := httptest.NewRecorder()

	handler.GetEvents(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp EventsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Total != 3 {
		t.Errorf("total = %d, want 3", resp.Total)
	}
}

func TestEventHandlerFilterBySeverity(t *testing.T) {
	handler := NewEventHandler(&mockEventSource{events: testEvents()})

	req := httptest.NewRequest("GET", "/api/v1/events?tenant_id=tenant-1&severity=CRITICAL", nil)
	rec := httptest.NewRecorder()

	handler.GetEvents(rec, req)

	var resp EventsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Total != 1 || resp.Events[0].EventType != models.EventLimitBreach {
		t.Errorf("unexpected events: %+v", resp.Events)
	}
}

func TestEventHandlerLimit(t *testing.T) {
	handler := NewEventHandler(&mockEventSource{events: testEvents()})

	req := httptest.NewRequest("GET", "/api/v1/events?tenant_id=tenant-1&limit=2", nil)
	rec := httptest.NewRecorder()

	handler.GetEvents(rec, req)

	var resp EventsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2", resp.Total)
	}
}

func TestEventHandlerRequiresTenant(t *testing.T) {
	handler := NewEventHandler(&mockEventSource{})

	req := httptest.NewRequest("GET", "/api/v1/events", nil)
	rec := httptest.NewRecorder()

	handler.GetEvents(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestEventHandlerRepositoryError(t *testing.T) {
	handler := NewEventHandler(&mockEventSource{err: errors.New("db down")})

	req := httptest.NewRequest("GET", "/api/v1/events?tenant_id=tenant-1", nil)
	rec := httptest.NewRecorder()

	handler.GetEvents(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
