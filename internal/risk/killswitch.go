package risk

import (
	"sync"
	"time"

	"riskcore/internal/models"
	"riskcore/pkg/utils"
)

// killswitch.go - тенантный выключатель торговли
//
// Бинарное состояние per tenant. Активируется вручную (оператором)
// или автоматически триггером быстрого убытка из post-trade
// обработки. Деактивация только ручная.

// InMemoryKillSwitch - реализация KillSwitch в памяти
type InMemoryKillSwitch struct {
	mu     sync.RWMutex
	states map[string]*models.KillSwitchState

	// autoTriggerThreshold - процент быстрого убытка, активирующий
	// выключатель автоматически
	autoTriggerThreshold float64

	logger *utils.Logger
	now    func() time.Time
}

// NewKillSwitch создаёт выключатель.
//
// autoTriggerThreshold <= 0 даёт порог по умолчанию 5%.
func NewKillSwitch(autoTriggerThreshold float64, logger *utils.Logger) *InMemoryKillSwitch {
	if autoTriggerThreshold <= 0 {
		autoTriggerThreshold = 5
	}
	if logger == nil {
		logger = utils.L()
	}
	return &InMemoryKillSwitch{
		states:               make(map[string]*models.KillSwitchState),
		autoTriggerThreshold: autoTriggerThreshold,
		logger:               logger.WithComponent("kill_switch"),
		now:                  time.Now,
	}
}

// Activate останавливает торговлю тенанта
func (ks *InMemoryKillSwitch) Activate(tenantID, reason string) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.activateLocked(tenantID, reason)
}

// activateLocked - тело Activate. ВАЖНО: вызывается под lock'ом
func (ks *InMemoryKillSwitch) activateLocked(tenantID, reason string) {
	now := ks.now().UTC()
	ks.states[tenantID] = &models.KillSwitchState{
		Active:           true,
		ActivationReason: reason,
		ActivatedAt:      &now,
	}
	ks.logger.Error("Kill switch activated",
		utils.TenantID(tenantID),
		utils.String("reason", reason),
	)
}

// Deactivate возобновляет торговлю тенанта
func (ks *InMemoryKillSwitch) Deactivate(tenantID string) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	ks.states[tenantID] = &models.KillSwitchState{Active: false}
	ks.logger.Info("Kill switch deactivated", utils.TenantID(tenantID))
}

// IsActive возвращает true если торговля тенанта остановлена
func (ks *InMemoryKillSwitch) IsActive(tenantID string) (bool, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	state, ok := ks.states[tenantID]
	return ok && state.Active, nil
}

// GetState возвращает состояние выключателя тенанта
func (ks *InMemoryKillSwitch) GetState(tenantID string) (*models.KillSwitchState, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	state, ok := ks.states[tenantID]
	if !ok {
		return &models.KillSwitchState{Active: false}, nil
	}
	copy := *state
	return &copy, nil
}

// CheckAutoTriggers активирует выключатель, если быстрый убыток
// превысил порог.
//
// Возвращает true если выключатель был активирован этим вызовом.
// Уже активный выключатель повторно не активируется.
func (ks *InMemoryKillSwitch) CheckAutoTriggers(tenantID, reason string, lossPercent float64) (bool, error) {
	if lossPercent < ks.autoTriggerThreshold {
		return false, nil
	}

	// Проверка и активация под одним lock'ом: два одновременных
	// триггера не должны активировать выключатель дважды
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if state, ok := ks.states[tenantID]; ok && state.Active {
		return false, nil
	}

	ks.activateLocked(tenantID, reason)
	return true, nil
}
