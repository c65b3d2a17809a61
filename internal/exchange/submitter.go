package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"riskcore/internal/models"
	"riskcore/pkg/retry"
	"riskcore/pkg/utils"
)

// submitter.go - отправка корректирующих ордеров через предохранитель
//
// Корректирующий ордер - критическая операция: он сокращает позицию,
// которая уже пробила лимит. Поэтому rate limit проверяется без
// резервного буфера (буфер резервируется ИМЕННО под такие операции),
// а отправка повторяется с backoff при временных ошибках биржи.

// reductionBufferPercent - буфер rate limit для корректирующих
// ордеров
const reductionBufferPercent = 1

// OrderGateway отправляет ордер на биржу
type OrderGateway interface {
	PlaceOrder(ctx context.Context, order *models.OrderRequest) error
}

// GuardedSubmitter валидирует и отправляет корректирующие ордера.
//
// nil gateway означает dry-run: ордер проходит валидацию и учёт rate
// limit, но на биржу не уходит - полезно до подключения реального
// транспорта и в тестах.
type GuardedSubmitter struct {
	mu         sync.RWMutex
	safeguard  *Safeguard
	gateway    OrderGateway
	limits     map[string]models.ExchangeLimits
	exchangeID string
	timeout    time.Duration
	logger     *utils.Logger
}

// NewGuardedSubmitter создаёт submitter для одной биржи
func NewGuardedSubmitter(exchangeID string, safeguard *Safeguard, gateway OrderGateway, logger *utils.Logger) *GuardedSubmitter {
	if logger == nil {
		logger = utils.L()
	}
	return &GuardedSubmitter{
		safeguard:  safeguard,
		gateway:    gateway,
		limits:     make(map[string]models.ExchangeLimits),
		exchangeID: exchangeID,
		timeout:    10 * time.Second,
		logger:     logger.WithComponent("submitter"),
	}
}

// SetExchangeLimits задаёт числовые ограничения биржи для актива.
//
// Ордер по активу без известных ограничений отправляется без
// локальной валидации - отклонение решит сама биржа.
func (gs *GuardedSubmitter) SetExchangeLimits(assetID string, limits models.ExchangeLimits) {
	gs.mu.Lock()
	gs.limits[assetID] = limits
	gs.mu.Unlock()
}

// SubmitReduction отправляет корректирующий ордер.
//
// Порядок: учёт rate limit окна → локальная валидация против
// ограничений биржи → отправка с повторами. Исчерпанное окно - ошибка
// временная, проваленная валидация - постоянная.
func (gs *GuardedSubmitter) SubmitReduction(order *models.ReductionOrder) error {
	// Сокращение позиции и есть критическая операция, под которую
	// резервируется буфер: ему доступен почти весь лимит окна.
	// Трекер трактует буфер <= 0 как "применить дефолтный", поэтому
	// передаётся минимальный положительный.
	track := gs.safeguard.TrackRateLimit(gs.exchangeID, 1, reductionBufferPercent)
	if track.ShouldWait {
		return retry.Temporary(fmt.Errorf("rate limit window exhausted on %s, retry in %.0fms", gs.exchangeID, track.WaitMs))
	}

	req := &models.OrderRequest{
		OrderID:    order.OrderID,
		TenantID:   order.TenantID,
		AssetID:    order.AssetID,
		StrategyID: order.StrategyID,
		Side:       order.Side,
		Type:       models.OrderTypeMarket,
		Quantity:   order.Quantity,
	}

	gs.mu.RLock()
	limits, known := gs.limits[order.AssetID]
	gs.mu.RUnlock()
	if known {
		result := gs.safeguard.ValidateOrder(req, limits, 0)
		if !result.Valid {
			return retry.Permanent(fmt.Errorf("reduction order %s rejected by safeguard: %s", order.OrderID, result.Message))
		}
	}

	if gs.gateway == nil {
		gs.logger.Info("Reduction order accepted (dry-run)",
			utils.OrderID(order.OrderID),
			utils.TenantID(order.TenantID),
			utils.Asset(order.AssetID),
			utils.Quantity(order.Quantity),
		)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
	defer cancel()

	// ExchangeError сам знает свою категорию, IsRetryable читает её
	// через интерфейс Retryable()
	cfg := retry.AggressiveConfig()
	cfg.RetryIf = retry.IsRetryable

	err := retry.Do(ctx, func() error {
		return gs.gateway.PlaceOrder(ctx, req)
	}, cfg)

	if err != nil {
		gs.logger.Error("Reduction order submission failed",
			utils.OrderID(order.OrderID),
			utils.Exchange(gs.exchangeID),
			utils.Err(err),
		)
		return err
	}

	gs.logger.Info("Reduction order submitted",
		utils.OrderID(order.OrderID),
		utils.TenantID(order.TenantID),
		utils.Asset(order.AssetID),
		utils.Exchange(gs.exchangeID),
		utils.Quantity(order.Quantity),
	)
	return nil
}
