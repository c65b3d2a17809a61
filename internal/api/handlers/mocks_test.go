package handlers

import (
	"riskcore/internal/models"
	"riskcore/internal/repository"
	"riskcore/internal/risk"
)

// ============================================================
// Тестовые двойники контрактов handlers
// ============================================================

type mockValidator struct {
	result    *models.RiskCheckResult
	allowed   bool
	lastOrder *models.OrderRequest
	lastCfg   *risk.ValidateConfig
}

func (m *mockValidator) Validate(order *models.OrderRequest, cfg *risk.ValidateConfig) *models.RiskCheckResult {
	m.lastOrder = order
	m.lastCfg = cfg
	return m.result
}

func (m *mockValidator) IsTradingAllowed(tenantID, strategyID string) bool {
	return m.allowed
}

type mockProcessor struct {
	result    *models.PostTradeResult
	reconcile []models.ReconcileResult
	lastExec  *models.ExecutionReport
}

func (m *mockProcessor) ProcessExecution(exec *models.ExecutionReport, cfg *risk.PostTradeConfig, callback risk.RiskEventCallback) *models.PostTradeResult {
	m.lastExec = exec
	return m.result
}

func (m *mockProcessor) BatchReconcile(tenantID, strategyID string, exchangePositions []models.ExchangePosition, callback risk.RiskEventCallback) []models.ReconcileResult {
	return m.reconcile
}

type mockPositionSource struct {
	positions []models.Position
	total     float64
	single    *models.Position
}

func (m *mockPositionSource) GetPositions(tenantID string) ([]models.Position, float64) {
	return m.positions, m.total
}

func (m *mockPositionSource) GetPositionsByStrategy(tenantID, strategyID string) []models.Position {
	return m.positions
}

func (m *mockPositionSource) GetPosition(tenantID, assetID, strategyID string) *models.Position {
	return m.single
}

type mockLimitStore struct {
	limits  map[int]*models.PositionLimit
	nextID  int
	byTen   []models.PositionLimit
	failErr error
}

func newMockLimitStore() *mockLimitStore {
	return &mockLimitStore{limits: make(map[int]*models.PositionLimit), nextID: 1}
}

func (m *mockLimitStore) Create(limit *models.PositionLimit) error {
	if m.failErr != nil {
		return m.failErr
	}
	limit.ID = m.nextID
	m.nextID++
	copy := *limit
	m.limits[limit.ID] = &copy
	return nil
}

func (m *mockLimitStore) GetLimit(limitID int) (*models.PositionLimit, error) {
	if m.failErr != nil {
		return nil, m.failErr
	}
	limit, ok := m.limits[limitID]
	if !ok {
		return nil, repository.ErrLimitNotFound
	}
	return limit, nil
}

func (m *mockLimitStore) GetByTenant(tenantID string) ([]models.PositionLimit, error) {
	if m.failErr != nil {
		return nil, m.failErr
	}
	return m.byTen, nil
}

func (m *mockLimitStore) UpdateMaxValue(limitID int, maxValue float64) error {
	limit, ok := m.limits[limitID]
	if !ok {
		return repository.ErrLimitNotFound
	}
	limit.MaxValue = maxValue
	return nil
}

func (m *mockLimitStore) Delete(limitID int) error {
	if _, ok := m.limits[limitID]; !ok {
		return repository.ErrLimitNotFound
	}
	delete(m.limits, limitID)
	return nil
}

type mockBreachProcessor struct {
	results    []models.BreachCheckResult
	err        error
	lastTenant string
	lastPrices map[string]float64
}

func (m *mockBreachProcessor) ProcessPassiveBreaches(tenantID string, priceMap map[string]float64, portfolioValue float64, cfg *risk.BreachConfig) ([]models.BreachCheckResult, error) {
	m.lastTenant = tenantID
	m.lastPrices = priceMap
	return m.results, m.err
}

type mockBreachReader struct {
	flagged []models.FlaggedPosition
	orders  []models.ReductionOrder
}

func (m *mockBreachReader) ListFlagged(tenantID string) []models.FlaggedPosition {
	return m.flagged
}

func (m *mockBreachReader) ListOrders(tenantID string) []models.ReductionOrder {
	return m.orders
}

type mockKillSwitchCtl struct {
	state       *models.KillSwitchState
	activations []string
	deactivated []string
}

func (m *mockKillSwitchCtl) IsActive(tenantID string) (bool, error) {
	return m.state != nil && m.state.Active, nil
}

func (m *mockKillSwitchCtl) GetState(tenantID string) (*models.KillSwitchState, error) {
	if m.state == nil {
		return &models.KillSwitchState{Active: false}, nil
	}
	return m.state, nil
}

func (m *mockKillSwitchCtl) Activate(tenantID, reason string) {
	m.activations = append(m.activations, reason)
	m.state = &models.KillSwitchState{Active: true, ActivationReason: reason}
}

func (m *mockKillSwitchCtl) Deactivate(tenantID string) {
	m.deactivated = append(m.deactivated, tenantID)
	m.state = &models.KillSwitchState{Active: false}
}

type mockEventSource struct {
	events []*models.RiskEvent
	err    error
}

func (m *mockEventSource) GetRecent(tenantID string, limit int) ([]*models.RiskEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	if limit < len(m.events) {
		return m.events[:limit], nil
	}
	return m.events, nil
}

func (m *mockEventSource) GetBySeverity(tenantID, severity string, limit int) ([]*models.RiskEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	var filtered []*models.RiskEvent
	for _, e := range m.events {
		if e.Severity == severity {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}
