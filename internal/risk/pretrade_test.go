package risk

import (
	"errors"
	"strings"
	"testing"

	"riskcore/internal/models"
)

func testOrder() *models.OrderRequest {
	return &models.OrderRequest{
		OrderID:    "ord-1",
		TenantID:   "tenant-1",
		AssetID:    "BTC-USDT",
		StrategyID: "momentum",
		Side:       models.SideBuy,
		Type:       models.OrderTypeLimit,
		Quantity:   0.5,
		Price:      25000,
	}
}

func checkByType(result *models.RiskCheckResult, checkType string) *models.RiskCheckDetail {
	for i := range result.Checks {
		if result.Checks[i].CheckType == checkType {
			return &result.Checks[i]
		}
	}
	return nil
}

func TestValidate_AllChecksPass(t *testing.T) {
	result := healthyChecker().Validate(testOrder(), nil)

	if !result.Approved {
		t.Fatalf("expected approval, rejection: %s", result.RejectionReason)
	}
	if len(result.Checks) != 7 {
		t.Fatalf("checks = %d, want 7", len(result.Checks))
	}
	if result.RejectionReason != "" {
		t.Errorf("RejectionReason = %q, want empty", result.RejectionReason)
	}
	if result.OrderID != "ord-1" {
		t.Errorf("OrderID = %q", result.OrderID)
	}
}

func TestValidate_FixedCheckOrder(t *testing.T) {
	result := healthyChecker().Validate(testOrder(), nil)

	expected := []string{
		models.CheckKillSwitch,
		models.CheckCircuitBreaker,
		models.CheckPositionLimits,
		models.CheckDrawdown,
		models.CheckVolatility,
		models.CheckCapital,
		models.CheckLeverage,
	}

	for i, want := range expected {
		if result.Checks[i].CheckType != want {
			t.Errorf("check[%d] = %s, want %s", i, result.Checks[i].CheckType, want)
		}
	}
}

func TestValidate_KillSwitchActive(t *testing.T) {
	pc := NewPreTradeChecker(
		&mockKillSwitch{active: true, reason: "rapid loss"},
		&mockBreaker{},
		&mockLimits{},
		&mockDrawdown{allowed: true},
		&mockVolatility{err: ErrNoVolatilityState},
		nil,
	)

	result := pc.Validate(testOrder(), nil)

	if result.Approved {
		t.Fatal("expected rejection")
	}
	detail := checkByType(result, models.CheckKillSwitch)
	if detail.Passed {
		t.Error("kill switch check must fail")
	}
	// Единственная проваленная проверка - её сообщение дословно
	if result.RejectionReason != detail.Message {
		t.Errorf("RejectionReason = %q, want verbatim %q", result.RejectionReason, detail.Message)
	}
	if !strings.Contains(result.RejectionReason, "rapid loss") {
		t.Errorf("reason should carry activation reason: %q", result.RejectionReason)
	}
}

func TestValidate_CircuitBreakerOpen(t *testing.T) {
	pc := NewPreTradeChecker(
		&mockKillSwitch{},
		&mockBreaker{result: &models.CircuitBreakerResult{
			AllClosed:    false,
			OpenBreakers: []string{"strategy:momentum"},
		}},
		&mockLimits{},
		&mockDrawdown{allowed: true},
		&mockVolatility{err: ErrNoVolatilityState},
		nil,
	)

	result := pc.Validate(testOrder(), nil)

	if result.Approved {
		t.Fatal("expected rejection")
	}
	if !strings.Contains(result.RejectionReason, "strategy:momentum") {
		t.Errorf("reason should name the open breaker: %q", result.RejectionReason)
	}
}

func TestValidate_PositionLimitExceeded(t *testing.T) {
	limits := &mockLimits{limits: []models.PositionLimit{{
		ID:           7,
		TenantID:     "tenant-1",
		Scope:        models.ScopeAsset,
		AssetID:      "BTC-USDT",
		LimitType:    models.LimitTypeAbsolute,
		MaxValue:     10000,
		CurrentValue: 5000,
	}}}
	pc := NewPreTradeChecker(
		&mockKillSwitch{},
		&mockBreaker{},
		limits,
		&mockDrawdown{allowed: true},
		&mockVolatility{err: ErrNoVolatilityState},
		nil,
	)

	// 0.5 × 25000 = 12500; 5000 + 12500 = 17500 > 10000
	result := pc.Validate(testOrder(), nil)

	if result.Approved {
		t.Fatal("expected rejection")
	}
	detail := checkByType(result, models.CheckPositionLimits)
	if detail.Passed {
		t.Fatal("position limits check must fail")
	}
	if detail.CurrentValue == nil || *detail.CurrentValue != 17500 {
		t.Errorf("CurrentValue = %v, want 17500", detail.CurrentValue)
	}
	if detail.LimitValue == nil || *detail.LimitValue != 10000 {
		t.Errorf("LimitValue = %v, want 10000", detail.LimitValue)
	}
	if !strings.Contains(detail.Message, "would exceed by 7500") {
		t.Errorf("message should report overshoot: %q", detail.Message)
	}
}

func TestValidate_SellReducesExposure(t *testing.T) {
	limits := &mockLimits{limits: []models.PositionLimit{{
		ID:           7,
		Scope:        models.ScopeAsset,
		LimitType:    models.LimitTypeAbsolute,
		MaxValue:     10000,
		CurrentValue: 9000,
	}}}
	pc := NewPreTradeChecker(
		&mockKillSwitch{},
		&mockBreaker{},
		limits,
		&mockDrawdown{allowed: true},
		&mockVolatility{err: ErrNoVolatilityState},
		nil,
	)

	order := testOrder()
	order.Side = models.SideSell

	result := pc.Validate(order, nil)
	if !result.Approved {
		t.Errorf("SELL must not breach limits: %s", result.RejectionReason)
	}
}

func TestValidate_PercentageLimitNeedsPortfolioValue(t *testing.T) {
	limits := &mockLimits{limits: []models.PositionLimit{{
		ID:        8,
		Scope:     models.ScopePortfolio,
		LimitType: models.LimitTypePercentage,
		MaxValue:  10, // 10% портфеля
	}}}
	pc := NewPreTradeChecker(
		&mockKillSwitch{},
		&mockBreaker{},
		limits,
		&mockDrawdown{allowed: true},
		&mockVolatility{err: ErrNoVolatilityState},
		nil,
	)

	// Без portfolioValue PERCENTAGE лимит неразрешим - пропускается
	result := pc.Validate(testOrder(), nil)
	if !result.Approved {
		t.Errorf("unresolvable percentage limit must be skipped: %s", result.RejectionReason)
	}

	// С portfolioValue 50000 потолок 5000 < 12500 - отказ
	pv := 50000.0
	result = pc.Validate(testOrder(), &ValidateConfig{PortfolioValue: &pv})
	if result.Approved {
		t.Error("percentage limit must reject once resolvable")
	}
}

func TestValidate_DrawdownNoStatePasses(t *testing.T) {
	pc := NewPreTradeChecker(
		&mockKillSwitch{},
		&mockBreaker{},
		&mockLimits{},
		&mockDrawdown{allowErr: ErrNoDrawdownState},
		&mockVolatility{err: ErrNoVolatilityState},
		nil,
	)

	result := pc.Validate(testOrder(), nil)
	if !result.Approved {
		t.Errorf("no drawdown state must pass, got: %s", result.RejectionReason)
	}
}

func TestValidate_DrawdownCollaboratorErrorFailsClosed(t *testing.T) {
	pc := NewPreTradeChecker(
		&mockKillSwitch{},
		&mockBreaker{},
		&mockLimits{},
		&mockDrawdown{allowErr: errors.New("store unavailable")},
		&mockVolatility{err: ErrNoVolatilityState},
		nil,
	)

	result := pc.Validate(testOrder(), nil)
	if result.Approved {
		t.Fatal("collaborator error must fail closed (reject)")
	}
	detail := checkByType(result, models.CheckDrawdown)
	if detail.Passed {
		t.Error("drawdown check must be marked failed, not skipped")
	}
}

func TestValidate_DrawdownBreached(t *testing.T) {
	pc := NewPreTradeChecker(
		&mockKillSwitch{},
		&mockBreaker{},
		&mockLimits{},
		&mockDrawdown{
			allowed: false,
			state: &models.DrawdownState{
				DrawdownPercent: 22.5,
				MaxThreshold:    20,
			},
		},
		&mockVolatility{err: ErrNoVolatilityState},
		nil,
	)

	result := pc.Validate(testOrder(), nil)
	if result.Approved {
		t.Fatal("expected rejection")
	}
	detail := checkByType(result, models.CheckDrawdown)
	if detail.CurrentValue == nil || *detail.CurrentValue != 22.5 {
		t.Errorf("CurrentValue = %v, want 22.5", detail.CurrentValue)
	}
}

func TestValidate_VolatilityThrottled(t *testing.T) {
	pc := NewPreTradeChecker(
		&mockKillSwitch{},
		&mockBreaker{},
		&mockLimits{},
		&mockDrawdown{allowed: true},
		&mockVolatility{throttled: true},
		nil,
	)

	result := pc.Validate(testOrder(), nil)
	if result.Approved {
		t.Fatal("expected rejection")
	}
	if detail := checkByType(result, models.CheckVolatility); detail.Passed {
		t.Error("volatility check must fail when throttled")
	}
}

func TestValidate_CapitalCheck(t *testing.T) {
	pc := healthyChecker()

	// Без конфигурации - пропуск
	result := pc.Validate(testOrder(), nil)
	if detail := checkByType(result, models.CheckCapital); !detail.Passed {
		t.Error("capital check must pass when not configured")
	}

	// BUY на 12500 при капитале 10000 - отказ
	capital := 10000.0
	result = pc.Validate(testOrder(), &ValidateConfig{AvailableCapital: &capital})
	if result.Approved {
		t.Fatal("expected rejection")
	}
	detail := checkByType(result, models.CheckCapital)
	if detail.Passed {
		t.Error("capital check must fail")
	}

	// SELL не потребляет капитал
	order := testOrder()
	order.Side = models.SideSell
	result = pc.Validate(order, &ValidateConfig{AvailableCapital: &capital})
	if !result.Approved {
		t.Errorf("SELL must pass capital check: %s", result.RejectionReason)
	}
}

func TestValidate_LeverageCheck(t *testing.T) {
	pc := healthyChecker()

	maxLev := 2.0
	pv := 5000.0

	// 12500 / 5000 = 2.5x > 2x
	result := pc.Validate(testOrder(), &ValidateConfig{MaxLeverage: &maxLev, PortfolioValue: &pv})
	if result.Approved {
		t.Fatal("expected rejection")
	}
	detail := checkByType(result, models.CheckLeverage)
	if detail.CurrentValue == nil || *detail.CurrentValue != 2.5 {
		t.Errorf("CurrentValue = %v, want 2.5", detail.CurrentValue)
	}

	// Без portfolioValue проверка пропускается
	result = pc.Validate(testOrder(), &ValidateConfig{MaxLeverage: &maxLev})
	if detail := checkByType(result, models.CheckLeverage); !detail.Passed {
		t.Error("leverage check must pass without portfolio value")
	}
}

func TestValidate_MultipleFailuresReason(t *testing.T) {
	pc := NewPreTradeChecker(
		&mockKillSwitch{active: true},
		&mockBreaker{result: &models.CircuitBreakerResult{
			AllClosed:    false,
			OpenBreakers: []string{"asset:BTC-USDT"},
		}},
		&mockLimits{},
		&mockDrawdown{allowed: true},
		&mockVolatility{err: ErrNoVolatilityState},
		nil,
	)

	result := pc.Validate(testOrder(), nil)

	if result.Approved {
		t.Fatal("expected rejection")
	}
	if !strings.HasPrefix(result.RejectionReason, "Multiple checks failed: ") {
		t.Errorf("RejectionReason = %q", result.RejectionReason)
	}
	// Порядок в сообщении соответствует фиксированному порядку проверок
	killIdx := strings.Index(result.RejectionReason, models.CheckKillSwitch)
	breakerIdx := strings.Index(result.RejectionReason, models.CheckCircuitBreaker)
	if killIdx == -1 || breakerIdx == -1 || killIdx > breakerIdx {
		t.Errorf("checks out of order in reason: %q", result.RejectionReason)
	}
}

func TestValidate_LimitSourceErrorFailsClosed(t *testing.T) {
	pc := NewPreTradeChecker(
		&mockKillSwitch{},
		&mockBreaker{},
		&mockLimits{err: errors.New("db down")},
		&mockDrawdown{allowed: true},
		&mockVolatility{err: ErrNoVolatilityState},
		nil,
	)

	result := pc.Validate(testOrder(), nil)
	if result.Approved {
		t.Fatal("limit source error must reject")
	}
}

func TestValidateOrThrow(t *testing.T) {
	result, err := healthyChecker().ValidateOrThrow(testOrder(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Approved {
		t.Error("expected approval")
	}

	pc := NewPreTradeChecker(
		&mockKillSwitch{active: true},
		&mockBreaker{},
		&mockLimits{},
		&mockDrawdown{allowed: true},
		&mockVolatility{err: ErrNoVolatilityState},
		nil,
	)
	_, err = pc.ValidateOrThrow(testOrder(), nil)

	var rejected *OrderRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("err = %T, want *OrderRejectedError", err)
	}
	if rejected.OrderID != "ord-1" {
		t.Errorf("OrderID = %q", rejected.OrderID)
	}
	if len(rejected.Checks) != 7 {
		t.Errorf("Checks = %d, want full list", len(rejected.Checks))
	}
}

func TestIsTradingAllowed(t *testing.T) {
	if !healthyChecker().IsTradingAllowed("tenant-1", "momentum") {
		t.Error("healthy state must allow trading")
	}

	pc := NewPreTradeChecker(
		&mockKillSwitch{active: true},
		&mockBreaker{},
		&mockLimits{},
		&mockDrawdown{allowed: true},
		&mockVolatility{err: ErrNoVolatilityState},
		nil,
	)
	if pc.IsTradingAllowed("tenant-1", "momentum") {
		t.Error("active kill switch must block trading")
	}

	pc = NewPreTradeChecker(
		&mockKillSwitch{},
		&mockBreaker{},
		&mockLimits{},
		&mockDrawdown{allowed: false},
		&mockVolatility{err: ErrNoVolatilityState},
		nil,
	)
	if pc.IsTradingAllowed("tenant-1", "momentum") {
		t.Error("critical drawdown must block trading")
	}

	// Отсутствие drawdown состояния не блокирует
	pc = NewPreTradeChecker(
		&mockKillSwitch{},
		&mockBreaker{},
		&mockLimits{},
		&mockDrawdown{allowErr: ErrNoDrawdownState},
		&mockVolatility{err: ErrNoVolatilityState},
		nil,
	)
	if !pc.IsTradingAllowed("tenant-1", "momentum") {
		t.Error("missing drawdown state must not block trading")
	}
}
