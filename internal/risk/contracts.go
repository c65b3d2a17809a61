package risk

import (
	"errors"

	"riskcore/internal/models"
)

// contracts.go - контракты коллабораторов риск-ядра
//
// Ядро зависит от трекера просадки, circuit breaker'а, kill switch'а
// и источника лимитов через интерфейсы. Продакшн-реализации живут
// в этом же пакете, тестовые двойники - в mocks_test.go.

// ErrNoDrawdownState - для тенанта/стратегии не настроен учёт просадки.
//
// Pre-Trade проверка трактует эту ошибку как "просадка не отслеживается"
// и пропускает ордер, а не отклоняет его.
var ErrNoDrawdownState = errors.New("no drawdown state configured")

// ErrNoVolatilityState - для инструмента нет состояния волатильности.
//
// Аналогично ErrNoDrawdownState: отсутствие троттлинга - не ошибка.
var ErrNoVolatilityState = errors.New("no volatility throttle state")

// DrawdownTracker отслеживает просадку от пика стоимости
type DrawdownTracker interface {
	// MonitorAndUpdate записывает новую стоимость портфеля/стратегии
	// и возвращает обновлённое состояние просадки
	MonitorAndUpdate(tenantID, strategyID string, newValue float64) (*models.DrawdownUpdate, error)

	// IsTradingAllowed сообщает, разрешена ли торговля по состоянию
	// просадки (false при статусе CRITICAL)
	IsTradingAllowed(tenantID, strategyID string) (bool, error)

	// GetState возвращает текущее состояние просадки.
	// ErrNoDrawdownState если учёт не настроен.
	GetState(tenantID, strategyID string) (*models.DrawdownState, error)
}

// CircuitBreaker - автомат CLOSED/OPEN/HALF_OPEN, останавливающий
// торговлю после серии неудач
type CircuitBreaker interface {
	// RecordEvent записывает торговое событие (успех/неудача, убыток)
	RecordEvent(tenantID string, event models.TradingEvent) error

	// CheckBreakers возвращает состояние breaker'ов тенанта,
	// опционально суженное до стратегии/инструмента
	CheckBreakers(tenantID, strategyID, assetID string) (*models.CircuitBreakerResult, error)
}

// KillSwitch - тенантный выключатель торговли
type KillSwitch interface {
	// IsActive возвращает true если торговля тенанта остановлена
	IsActive(tenantID string) (bool, error)

	// GetState возвращает состояние выключателя с причиной активации
	GetState(tenantID string) (*models.KillSwitchState, error)

	// CheckAutoTriggers проверяет автоматические триггеры
	// (быстрый убыток) и активирует выключатель при срабатывании.
	// Возвращает true если выключатель был активирован.
	CheckAutoTriggers(tenantID, reason string, lossPercent float64) (bool, error)
}

// VolatilityGuard троттлит торговлю инструментом при всплеске
// волатильности
type VolatilityGuard interface {
	// IsThrottled возвращает true если торговля инструментом
	// придержана. ErrNoVolatilityState если состояние не настроено.
	IsThrottled(tenantID, assetID string) (bool, error)
}

// LimitSource - источник лимитов позиций.
//
// Продакшн-реализация - Postgres репозиторий
// (repository.LimitRepository), в тестах - in-memory двойник.
type LimitSource interface {
	// FindApplicableLimits возвращает лимиты, применимые к ордеру:
	// ASSET лимиты инструмента, STRATEGY лимиты стратегии и все
	// PORTFOLIO лимиты тенанта
	FindApplicableLimits(tenantID, assetID, strategyID string) ([]models.PositionLimit, error)

	// GetLimit возвращает лимит по идентификатору
	GetLimit(limitID int) (*models.PositionLimit, error)

	// UpdateCurrentValue обновляет текущее значение и утилизацию
	// лимита (утилизация ограничена 100)
	UpdateCurrentValue(limitID int, currentValue float64) error
}

// RiskEventCallback доставляет риск-события в аудит/нотификации.
//
// Ядро формирует события всегда, доставка - обязанность callback'а:
// nil callback означает "не доставлять".
type RiskEventCallback func(event models.RiskEvent)

// ReductionSubmitter отправляет ордера на сокращение позиции
type ReductionSubmitter interface {
	SubmitReduction(order *models.ReductionOrder) error
}
