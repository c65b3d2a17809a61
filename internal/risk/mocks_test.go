package risk

import (
	"sync"

	"riskcore/internal/models"
)

// mocks_test.go - ручные тестовые двойники коллабораторов
//
// Без mock-фреймворков: каждый двойник - маленькая структура с
// настраиваемыми ответами и учётом вызовов.

type mockKillSwitch struct {
	active bool
	reason string
	err    error

	triggered     bool
	triggerCalls  int
	lastLossPct   float64
	triggerResult bool
}

func (m *mockKillSwitch) IsActive(tenantID string) (bool, error) {
	return m.active, m.err
}

func (m *mockKillSwitch) GetState(tenantID string) (*models.KillSwitchState, error) {
	return &models.KillSwitchState{Active: m.active, ActivationReason: m.reason}, m.err
}

func (m *mockKillSwitch) CheckAutoTriggers(tenantID, reason string, lossPercent float64) (bool, error) {
	m.triggerCalls++
	m.lastLossPct = lossPercent
	if m.triggerResult {
		m.triggered = true
		m.active = true
		m.reason = reason
	}
	return m.triggerResult, m.err
}

type mockBreaker struct {
	result *models.CircuitBreakerResult
	err    error

	mu     sync.Mutex
	events []models.TradingEvent
}

func (m *mockBreaker) RecordEvent(tenantID string, event models.TradingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.err
}

func (m *mockBreaker) CheckBreakers(tenantID, strategyID, assetID string) (*models.CircuitBreakerResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return &models.CircuitBreakerResult{AllClosed: true}, nil
	}
	return m.result, nil
}

type mockDrawdown struct {
	allowed   bool
	allowErr  error
	state     *models.DrawdownState
	stateErr  error
	update    *models.DrawdownUpdate
	updateErr error

	mu          sync.Mutex
	updateCalls []float64
}

func (m *mockDrawdown) MonitorAndUpdate(tenantID, strategyID string, newValue float64) (*models.DrawdownUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls = append(m.updateCalls, newValue)
	return m.update, m.updateErr
}

func (m *mockDrawdown) IsTradingAllowed(tenantID, strategyID string) (bool, error) {
	return m.allowed, m.allowErr
}

func (m *mockDrawdown) GetState(tenantID, strategyID string) (*models.DrawdownState, error) {
	return m.state, m.stateErr
}

type mockVolatility struct {
	throttled bool
	err       error
}

func (m *mockVolatility) IsThrottled(tenantID, assetID string) (bool, error) {
	return m.throttled, m.err
}

type mockLimits struct {
	limits []models.PositionLimit
	err    error

	mu      sync.Mutex
	updates map[int]float64
}

func (m *mockLimits) FindApplicableLimits(tenantID, assetID, strategyID string) ([]models.PositionLimit, error) {
	return m.limits, m.err
}

func (m *mockLimits) GetLimit(limitID int) (*models.PositionLimit, error) {
	for i := range m.limits {
		if m.limits[i].ID == limitID {
			return &m.limits[i], nil
		}
	}
	return nil, m.err
}

func (m *mockLimits) UpdateCurrentValue(limitID int, currentValue float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updates == nil {
		m.updates = make(map[int]float64)
	}
	m.updates[limitID] = currentValue
	return m.err
}

type mockSubmitter struct {
	err error

	mu     sync.Mutex
	orders []*models.ReductionOrder
}

func (m *mockSubmitter) SubmitReduction(order *models.ReductionOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, order)
	return m.err
}

// eventCollector собирает риск-события, доставленные через callback
type eventCollector struct {
	mu     sync.Mutex
	events []models.RiskEvent
}

func (c *eventCollector) callback() RiskEventCallback {
	return func(event models.RiskEvent) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.events = append(c.events, event)
	}
}

func (c *eventCollector) byType(eventType string) []models.RiskEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.RiskEvent
	for _, e := range c.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// healthyChecker собирает checker, у которого все проверки проходят
func healthyChecker() *PreTradeChecker {
	return NewPreTradeChecker(
		&mockKillSwitch{},
		&mockBreaker{},
		&mockLimits{},
		&mockDrawdown{allowed: true},
		&mockVolatility{err: ErrNoVolatilityState},
		nil,
	)
}
