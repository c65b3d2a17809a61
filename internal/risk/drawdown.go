package risk

import (
	"sync"

	"riskcore/internal/models"
	"riskcore/pkg/utils"
)

// drawdown.go - учёт просадки от пика
//
// Состояние ключуется (tenant_id, strategy_id); пустой strategy_id
// означает портфельный уровень. Пик - монотонный храповик: он только
// растёт. Статус - чистая функция процента просадки и порогов.

type drawdownKey struct {
	tenantID   string
	strategyID string
}

// InMemoryDrawdownTracker - реализация DrawdownTracker в памяти
type InMemoryDrawdownTracker struct {
	mu     sync.Mutex
	states map[drawdownKey]*models.DrawdownState
	logger *utils.Logger
}

// NewDrawdownTracker создаёт трекер без настроенных состояний
func NewDrawdownTracker(logger *utils.Logger) *InMemoryDrawdownTracker {
	if logger == nil {
		logger = utils.L()
	}
	return &InMemoryDrawdownTracker{
		states: make(map[drawdownKey]*models.DrawdownState),
		logger: logger.WithComponent("drawdown"),
	}
}

// Configure включает учёт просадки для тенанта/стратегии.
//
// До вызова Configure трекер отвечает ErrNoDrawdownState - это
// сознательный выбор: неотслеживаемая просадка не блокирует торговлю.
func (dt *InMemoryDrawdownTracker) Configure(tenantID, strategyID string, warningThreshold, maxThreshold float64) {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	scope := models.ScopePortfolio
	if strategyID != "" {
		scope = models.ScopeStrategy
	}

	dt.states[drawdownKey{tenantID, strategyID}] = &models.DrawdownState{
		TenantID:         tenantID,
		StrategyID:       strategyID,
		Scope:            scope,
		WarningThreshold: warningThreshold,
		MaxThreshold:     maxThreshold,
		Status:           models.DrawdownNormal,
	}
}

// MonitorAndUpdate записывает новую стоимость и пересчитывает просадку.
//
// AlertSent взводится при переходе статуса вверх (NORMAL→WARNING,
// любой→CRITICAL); повторные обновления в том же статусе алертов
// не плодят.
func (dt *InMemoryDrawdownTracker) MonitorAndUpdate(tenantID, strategyID string, newValue float64) (*models.DrawdownUpdate, error) {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	state, ok := dt.states[drawdownKey{tenantID, strategyID}]
	if !ok {
		return nil, ErrNoDrawdownState
	}

	prevStatus := state.Status

	// Храповик пика
	if newValue > state.PeakValue {
		state.PeakValue = newValue
	}
	state.CurrentValue = newValue

	if state.PeakValue > 0 {
		state.DrawdownAbsolute = state.PeakValue - state.CurrentValue
		state.DrawdownPercent = state.DrawdownAbsolute / state.PeakValue * 100
	} else {
		state.DrawdownAbsolute = 0
		state.DrawdownPercent = 0
	}

	switch {
	case state.MaxThreshold > 0 && state.DrawdownPercent >= state.MaxThreshold:
		state.Status = models.DrawdownCritical
	case state.WarningThreshold > 0 && state.DrawdownPercent >= state.WarningThreshold:
		state.Status = models.DrawdownWarning
	default:
		state.Status = models.DrawdownNormal
	}

	update := &models.DrawdownUpdate{State: cloneDrawdownState(state)}

	if state.Status != prevStatus && state.Status != models.DrawdownNormal {
		update.AlertSent = true
		update.AlertType = state.Status
		if state.Status == models.DrawdownCritical {
			update.ActionTaken = "trading halted for scope"
		}
		dt.logger.Warn("Drawdown status changed",
			utils.TenantID(tenantID),
			utils.Strategy(strategyID),
			utils.String("status", state.Status),
			utils.Float64("drawdown_percent", state.DrawdownPercent),
		)
	}

	return update, nil
}

// IsTradingAllowed возвращает false только при CRITICAL статусе.
//
// Отсутствие состояния означает "просадка не отслеживается" -
// торговля разрешена.
func (dt *InMemoryDrawdownTracker) IsTradingAllowed(tenantID, strategyID string) (bool, error) {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	state, ok := dt.states[drawdownKey{tenantID, strategyID}]
	if !ok {
		return true, nil
	}
	return state.Status != models.DrawdownCritical, nil
}

// GetState возвращает копию состояния просадки
func (dt *InMemoryDrawdownTracker) GetState(tenantID, strategyID string) (*models.DrawdownState, error) {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	state, ok := dt.states[drawdownKey{tenantID, strategyID}]
	if !ok {
		return nil, ErrNoDrawdownState
	}
	return cloneDrawdownState(state), nil
}

func cloneDrawdownState(s *models.DrawdownState) *models.DrawdownState {
	copy := *s
	return &copy
}

// ============================================================
// Волатильность
// ============================================================

// InMemoryVolatilityGuard - реализация VolatilityGuard в памяти.
//
// Состояние троттлинга выставляется внешним наблюдателем рынка;
// ядро его только читает.
type InMemoryVolatilityGuard struct {
	mu        sync.RWMutex
	throttled map[positionKey]bool
}

// NewVolatilityGuard создаёт guard без состояний
func NewVolatilityGuard() *InMemoryVolatilityGuard {
	return &InMemoryVolatilityGuard{
		throttled: make(map[positionKey]bool),
	}
}

// SetThrottled выставляет состояние троттлинга инструмента
func (vg *InMemoryVolatilityGuard) SetThrottled(tenantID, assetID string, throttled bool) {
	vg.mu.Lock()
	defer vg.mu.Unlock()
	vg.throttled[positionKey{tenantID: tenantID, assetID: assetID}] = throttled
}

// IsThrottled возвращает состояние троттлинга.
// ErrNoVolatilityState если наблюдатель ничего не сообщал.
func (vg *InMemoryVolatilityGuard) IsThrottled(tenantID, assetID string) (bool, error) {
	vg.mu.RLock()
	defer vg.mu.RUnlock()

	throttled, ok := vg.throttled[positionKey{tenantID: tenantID, assetID: assetID}]
	if !ok {
		return false, ErrNoVolatilityState
	}
	return throttled, nil
}
