package risk

import (
	"errors"
	"testing"

	"riskcore/internal/models"
)

func TestDrawdownTracker_NoStateConfigured(t *testing.T) {
	dt := NewDrawdownTracker(nil)

	if _, err := dt.GetState("tenant-1", ""); !errors.Is(err, ErrNoDrawdownState) {
		t.Errorf("GetState err = %v, want ErrNoDrawdownState", err)
	}
	if _, err := dt.MonitorAndUpdate("tenant-1", "", 100000); !errors.Is(err, ErrNoDrawdownState) {
		t.Errorf("MonitorAndUpdate err = %v, want ErrNoDrawdownState", err)
	}

	// Без состояния торговля разрешена
	allowed, err := dt.IsTradingAllowed("tenant-1", "")
	if err != nil || !allowed {
		t.Errorf("IsTradingAllowed = %v, %v; want true, nil", allowed, err)
	}
}

func TestDrawdownTracker_PeakRatchet(t *testing.T) {
	dt := NewDrawdownTracker(nil)
	dt.Configure("tenant-1", "", 10, 20)

	dt.MonitorAndUpdate("tenant-1", "", 100000)
	dt.MonitorAndUpdate("tenant-1", "", 120000)
	update, _ := dt.MonitorAndUpdate("tenant-1", "", 110000)

	state := update.State
	if state.PeakValue != 120000 {
		t.Errorf("PeakValue = %v, want 120000 (ratchet)", state.PeakValue)
	}
	// (120000-110000)/120000 = 8.33%
	if state.DrawdownPercent < 8.3 || state.DrawdownPercent > 8.4 {
		t.Errorf("DrawdownPercent = %v, want ~8.33", state.DrawdownPercent)
	}
	if state.Status != models.DrawdownNormal {
		t.Errorf("Status = %s, want NORMAL below warning threshold", state.Status)
	}
}

func TestDrawdownTracker_StatusTransitions(t *testing.T) {
	dt := NewDrawdownTracker(nil)
	dt.Configure("tenant-1", "momentum", 10, 20)

	dt.MonitorAndUpdate("tenant-1", "momentum", 100000)

	// 12% просадки - WARNING с алертом
	update, _ := dt.MonitorAndUpdate("tenant-1", "momentum", 88000)
	if update.State.Status != models.DrawdownWarning {
		t.Fatalf("Status = %s, want WARNING", update.State.Status)
	}
	if !update.AlertSent || update.AlertType != models.DrawdownWarning {
		t.Errorf("AlertSent = %v, AlertType = %s", update.AlertSent, update.AlertType)
	}

	// Повторное обновление в том же статусе алерт не плодит
	update, _ = dt.MonitorAndUpdate("tenant-1", "momentum", 87000)
	if update.AlertSent {
		t.Error("repeated WARNING must not re-alert")
	}

	// 25% - CRITICAL, торговля запрещена
	update, _ = dt.MonitorAndUpdate("tenant-1", "momentum", 75000)
	if update.State.Status != models.DrawdownCritical {
		t.Fatalf("Status = %s, want CRITICAL", update.State.Status)
	}
	if !update.AlertSent {
		t.Error("transition to CRITICAL must alert")
	}
	if update.ActionTaken == "" {
		t.Error("CRITICAL must record an action")
	}

	allowed, _ := dt.IsTradingAllowed("tenant-1", "momentum")
	if allowed {
		t.Error("CRITICAL drawdown must block trading")
	}

	// Восстановление до NORMAL разрешает торговлю
	dt.MonitorAndUpdate("tenant-1", "momentum", 99000)
	allowed, _ = dt.IsTradingAllowed("tenant-1", "momentum")
	if !allowed {
		t.Error("recovered drawdown must allow trading")
	}
}

func TestDrawdownTracker_ScopeIsolation(t *testing.T) {
	dt := NewDrawdownTracker(nil)
	dt.Configure("tenant-1", "", 10, 20)
	dt.Configure("tenant-1", "momentum", 10, 20)

	dt.MonitorAndUpdate("tenant-1", "momentum", 100000)
	dt.MonitorAndUpdate("tenant-1", "momentum", 70000) // CRITICAL

	allowed, _ := dt.IsTradingAllowed("tenant-1", "")
	if !allowed {
		t.Error("portfolio scope must not be affected by strategy drawdown")
	}
}

func TestVolatilityGuard(t *testing.T) {
	vg := NewVolatilityGuard()

	if _, err := vg.IsThrottled("tenant-1", "BTC-USDT"); !errors.Is(err, ErrNoVolatilityState) {
		t.Errorf("err = %v, want ErrNoVolatilityState", err)
	}

	vg.SetThrottled("tenant-1", "BTC-USDT", true)
	throttled, err := vg.IsThrottled("tenant-1", "BTC-USDT")
	if err != nil || !throttled {
		t.Errorf("IsThrottled = %v, %v; want true, nil", throttled, err)
	}

	vg.SetThrottled("tenant-1", "BTC-USDT", false)
	throttled, err = vg.IsThrottled("tenant-1", "BTC-USDT")
	if err != nil || throttled {
		t.Errorf("IsThrottled = %v, %v; want false, nil", throttled, err)
	}
}
