package risk

import (
	"sync"
	"time"

	"riskcore/internal/models"
	"riskcore/pkg/utils"
)

// circuitbreaker.go - автомат остановки торговли
//
// Breaker ключуется (tenant_id, scope), где scope - стратегия или
// инструмент события. Серия подряд идущих неудач размыкает breaker
// (OPEN); после cooldown'а он приоткрывается (HALF_OPEN); квота
// успешных событий в HALF_OPEN закрывает его обратно.

// Допустимые переходы состояний breaker'а
var validBreakerTransitions = map[string][]string{
	models.BreakerClosed:   {models.BreakerOpen},
	models.BreakerOpen:     {models.BreakerHalfOpen},
	models.BreakerHalfOpen: {models.BreakerClosed, models.BreakerOpen},
}

// isValidBreakerTransition проверяет допустимость перехода
func isValidBreakerTransition(from, to string) bool {
	for _, allowed := range validBreakerTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// BreakerConfig - пороги автомата
type BreakerConfig struct {
	// FailureThreshold - сколько подряд неудач размыкает breaker
	FailureThreshold int

	// Cooldown - сколько держать OPEN до пробного режима
	Cooldown time.Duration

	// SuccessQuota - сколько успехов в HALF_OPEN закрывает breaker
	SuccessQuota int
}

// DefaultBreakerConfig - пороги по умолчанию
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         5 * time.Minute,
		SuccessQuota:     3,
	}
}

// breakerState - состояние одного breaker'а
type breakerState struct {
	name        string
	state       string
	failures    int // подряд идущие неудачи
	successes   int // успехи в HALF_OPEN
	openedAt    time.Time
	lastEventAt time.Time
}

type breakerKey struct {
	tenantID string
	scope    string // strategy:<id> или asset:<id>
}

// InMemoryCircuitBreaker - реализация CircuitBreaker в памяти
type InMemoryCircuitBreaker struct {
	mu       sync.Mutex
	breakers map[breakerKey]*breakerState
	cfg      BreakerConfig
	logger   *utils.Logger

	// now подменяется в тестах
	now func() time.Time
}

// NewCircuitBreaker создаёт breaker с указанными порогами
func NewCircuitBreaker(cfg BreakerConfig, logger *utils.Logger) *InMemoryCircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultBreakerConfig().Cooldown
	}
	if cfg.SuccessQuota <= 0 {
		cfg.SuccessQuota = DefaultBreakerConfig().SuccessQuota
	}
	if logger == nil {
		logger = utils.L()
	}
	return &InMemoryCircuitBreaker{
		breakers: make(map[breakerKey]*breakerState),
		cfg:      cfg,
		logger:   logger.WithComponent("circuit_breaker"),
		now:      time.Now,
	}
}

// scopesOf возвращает ключи breaker'ов, затрагиваемые событием
func scopesOf(event models.TradingEvent) []string {
	var scopes []string
	if event.StrategyID != "" {
		scopes = append(scopes, "strategy:"+event.StrategyID)
	}
	if event.AssetID != "" {
		scopes = append(scopes, "asset:"+event.AssetID)
	}
	if len(scopes) == 0 {
		scopes = append(scopes, "tenant")
	}
	return scopes
}

// RecordEvent записывает торговое событие во все затронутые breaker'ы
func (cb *InMemoryCircuitBreaker) RecordEvent(tenantID string, event models.TradingEvent) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	for _, scope := range scopesOf(event) {
		key := breakerKey{tenantID, scope}
		b := cb.breakers[key]
		if b == nil {
			b = &breakerState{name: scope, state: models.BreakerClosed}
			cb.breakers[key] = b
		}
		cb.applyEvent(tenantID, b, event)
	}
	return nil
}

// applyEvent применяет событие к одному breaker'у
// ВАЖНО: вызывается под lock'ом
func (cb *InMemoryCircuitBreaker) applyEvent(tenantID string, b *breakerState, event models.TradingEvent) {
	now := cb.now()
	b.lastEventAt = now
	cb.maybeHalfOpen(b, now)

	if event.Success {
		b.failures = 0
		if b.state == models.BreakerHalfOpen {
			b.successes++
			if b.successes >= cb.cfg.SuccessQuota {
				cb.transition(tenantID, b, models.BreakerClosed)
			}
		}
		return
	}

	b.successes = 0
	b.failures++

	switch b.state {
	case models.BreakerHalfOpen:
		// Неудача в пробном режиме размыкает немедленно
		cb.transition(tenantID, b, models.BreakerOpen)
		b.openedAt = now
	case models.BreakerClosed:
		if b.failures >= cb.cfg.FailureThreshold {
			cb.transition(tenantID, b, models.BreakerOpen)
			b.openedAt = now
		}
	}
}

// maybeHalfOpen переводит OPEN breaker в HALF_OPEN после cooldown'а
// ВАЖНО: вызывается под lock'ом
func (cb *InMemoryCircuitBreaker) maybeHalfOpen(b *breakerState, now time.Time) {
	if b.state == models.BreakerOpen && now.Sub(b.openedAt) >= cb.cfg.Cooldown {
		b.state = models.BreakerHalfOpen
		b.successes = 0
		b.failures = 0
	}
}

// transition выполняет переход состояния с проверкой допустимости
// ВАЖНО: вызывается под lock'ом
func (cb *InMemoryCircuitBreaker) transition(tenantID string, b *breakerState, to string) {
	if !isValidBreakerTransition(b.state, to) {
		return
	}
	from := b.state
	b.state = to
	if to == models.BreakerClosed {
		b.failures = 0
		b.successes = 0
	}
	cb.logger.Warn("Circuit breaker transition",
		utils.TenantID(tenantID),
		utils.String("breaker", b.name),
		utils.String("from", from),
		utils.String("to", to),
	)
}

// CheckBreakers возвращает состояние breaker'ов тенанта.
//
// strategyID/assetID сужают запрос до конкретных breaker'ов; пустые
// значения означают "все breaker'ы тенанта". OPEN breaker'ы,
// отлежавшие cooldown, приоткрываются прямо в момент запроса.
func (cb *InMemoryCircuitBreaker) CheckBreakers(tenantID, strategyID, assetID string) (*models.CircuitBreakerResult, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	result := &models.CircuitBreakerResult{AllClosed: true}

	for key, b := range cb.breakers {
		if key.tenantID != tenantID {
			continue
		}
		if strategyID != "" || assetID != "" {
			match := (strategyID != "" && key.scope == "strategy:"+strategyID) ||
				(assetID != "" && key.scope == "asset:"+assetID)
			if !match {
				continue
			}
		}

		cb.maybeHalfOpen(b, now)

		switch b.state {
		case models.BreakerOpen:
			result.AllClosed = false
			result.OpenBreakers = append(result.OpenBreakers, b.name)
		case models.BreakerHalfOpen:
			result.HalfOpenBreakers = append(result.HalfOpenBreakers, b.name)
		}
	}

	return result, nil
}
