package risk

import (
	"fmt"
	"sync"

	"riskcore/internal/models"
	"riskcore/pkg/utils"
)

// breach.go - пассивные пробои лимитов
//
// Пассивный пробой - лимит нарушен движением рыночной цены на уже
// открытой позиции, без новой сделки. Обработчик периодически (или по
// тику цены) переоценивает позиции, помечает пробои и при включённом
// авто-сокращении ставит корректирующие SELL-ордера.

// BreachConfig - настройки обработки пассивных пробоев
type BreachConfig struct {
	// AutoReductionEnabled включает постановку корректирующих ордеров
	AutoReductionEnabled bool

	// ReductionTargetPercent - целевая утилизация лимита после
	// сокращения (по умолчанию 80)
	ReductionTargetPercent float64
}

// DefaultBreachConfig - значения по умолчанию
func DefaultBreachConfig() BreachConfig {
	return BreachConfig{
		AutoReductionEnabled:   false,
		ReductionTargetPercent: 80,
	}
}

func (c *BreachConfig) applyDefaults() {
	if c.ReductionTargetPercent <= 0 {
		c.ReductionTargetPercent = 80
	}
}

// flagKey - ключ помеченной позиции: одна живая запись на
// (tenant, asset, limit)
type flagKey struct {
	tenantID string
	assetID  string
	limitID  int
}

// BreachStore хранит помеченные позиции и корректирующие ордера
type BreachStore struct {
	mu      sync.RWMutex
	flagged map[flagKey]*models.FlaggedPosition
	orders  map[string]*models.ReductionOrder
	seq     int
}

// NewBreachStore создаёт пустой store
func NewBreachStore() *BreachStore {
	return &BreachStore{
		flagged: make(map[flagKey]*models.FlaggedPosition),
		orders:  make(map[string]*models.ReductionOrder),
	}
}

// Flag создаёт или перезаписывает помеченную позицию
func (bs *BreachStore) Flag(fp *models.FlaggedPosition) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.flagged[flagKey{fp.TenantID, fp.AssetID, fp.LimitID}] = fp
}

// GetFlagged возвращает помеченную позицию или nil
func (bs *BreachStore) GetFlagged(tenantID, assetID string, limitID int) *models.FlaggedPosition {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	fp := bs.flagged[flagKey{tenantID, assetID, limitID}]
	if fp == nil {
		return nil
	}
	copy := *fp
	return &copy
}

// ListFlagged возвращает все помеченные позиции тенанта
func (bs *BreachStore) ListFlagged(tenantID string) []models.FlaggedPosition {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	var out []models.FlaggedPosition
	for key, fp := range bs.flagged {
		if key.tenantID == tenantID {
			out = append(out, *fp)
		}
	}
	return out
}

// Clear снимает пометку (пробой разрешён)
func (bs *BreachStore) Clear(tenantID, assetID string, limitID int) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	delete(bs.flagged, flagKey{tenantID, assetID, limitID})
}

// AddOrder сохраняет корректирующий ордер
func (bs *BreachStore) AddOrder(order *models.ReductionOrder) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.orders[order.OrderID] = order
}

// ListOrders возвращает корректирующие ордера тенанта
func (bs *BreachStore) ListOrders(tenantID string) []models.ReductionOrder {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	var out []models.ReductionOrder
	for _, o := range bs.orders {
		if o.TenantID == tenantID {
			out = append(out, *o)
		}
	}
	return out
}

// UpdateOrderStatus обновляет статус корректирующего ордера
func (bs *BreachStore) UpdateOrderStatus(orderID, status string) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if o, ok := bs.orders[orderID]; ok {
		o.Status = status
	}
}

// nextOrderID генерирует идентификатор корректирующего ордера
// ВАЖНО: вызывается под lock'ом
func (bs *BreachStore) nextOrderID() string {
	bs.seq++
	return fmt.Sprintf("red-%d", bs.seq)
}

// NextOrderID - потокобезопасная обёртка nextOrderID
func (bs *BreachStore) NextOrderID() string {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.nextOrderID()
}

// ============================================================
// Passive Breach Handler
// ============================================================

// PassiveBreachHandler переоценивает позиции против лимитов по
// текущей цене
type PassiveBreachHandler struct {
	positions *PositionStore
	limits    LimitSource
	store     *BreachStore
	submitter ReductionSubmitter
	callback  RiskEventCallback
	logger    *utils.Logger
}

// NewPassiveBreachHandler создаёт обработчик.
//
// submitter и callback опциональны: nil submitter оставляет
// корректирующие ордера в статусе QUEUED, nil callback отключает
// доставку событий.
func NewPassiveBreachHandler(
	positions *PositionStore,
	limits LimitSource,
	store *BreachStore,
	submitter ReductionSubmitter,
	callback RiskEventCallback,
	logger *utils.Logger,
) *PassiveBreachHandler {
	if logger == nil {
		logger = utils.L()
	}
	return &PassiveBreachHandler{
		positions: positions,
		limits:    limits,
		store:     store,
		submitter: submitter,
		callback:  callback,
		logger:    logger.WithComponent("breach"),
	}
}

// CheckForPassiveBreach проверяет позицию против всех применимых
// лимитов по текущей цене.
//
// valueToCheck по охвату лимита:
//   - ASSET: |quantity| × currentPrice этой позиции
//   - STRATEGY: сумма позиций стратегии, каждая по СВОЕЙ цене из
//     priceMap (при отсутствии - по сохранённой рыночной стоимости)
//   - PORTFOLIO: суммарная стоимость портфеля тенанта
//
// PERCENTAGE лимит без известной стоимости портфеля неразрешим и
// пропускается. Статус: BREACH если value > потолка, WARNING если
// value >= 0.9 × потолка, иначе NORMAL.
func (h *PassiveBreachHandler) CheckForPassiveBreach(tenantID, assetID string, currentPrice, portfolioValue float64, strategyID string, priceMap map[string]float64) ([]models.BreachCheckResult, error) {
	// Позиция ищется со стратегией, затем без неё
	pos := h.positions.GetPosition(tenantID, assetID, strategyID)
	if pos == nil && strategyID != "" {
		pos = h.positions.GetPosition(tenantID, assetID, "")
	}
	if pos == nil {
		return nil, nil
	}

	limits, err := h.limits.FindApplicableLimits(tenantID, assetID, pos.StrategyID)
	if err != nil {
		return nil, err
	}

	var results []models.BreachCheckResult
	for i := range limits {
		limit := &limits[i]

		ceiling, ok := limit.EffectiveLimit(portfolioValue)
		if !ok {
			continue
		}

		valueToCheck := h.valueForScope(limit, pos, currentPrice, portfolioValue, priceMap)

		result := models.BreachCheckResult{
			TenantID:       tenantID,
			AssetID:        assetID,
			StrategyID:     pos.StrategyID,
			LimitID:        limit.ID,
			Scope:          limit.Scope,
			Status:         models.BreachStatusNormal,
			CurrentValue:   valueToCheck,
			EffectiveLimit: ceiling,
		}

		switch {
		case valueToCheck > ceiling:
			result.Status = models.BreachStatusBreach
			result.BreachAmount = valueToCheck - ceiling
			result.BreachPercent = utils.PercentOf(result.BreachAmount, ceiling)
		case valueToCheck >= models.WarningUtilizationFactor*ceiling:
			result.Status = models.BreachStatusWarning
		}

		results = append(results, result)
	}
	return results, nil
}

// valueForScope вычисляет проверяемую стоимость по охвату лимита.
//
// Для STRATEGY охвата каждая позиция стратегии оценивается по своей
// цене из priceMap, а не по цене проверяемого инструмента - оценка
// чужого актива чужой ценой давала бы бессмысленную сумму. При
// отсутствии цены в карте используется сохранённая рыночная стоимость.
func (h *PassiveBreachHandler) valueForScope(limit *models.PositionLimit, pos *models.Position, currentPrice, portfolioValue float64, priceMap map[string]float64) float64 {
	switch limit.Scope {
	case models.ScopeAsset:
		return pos.Notional(currentPrice)

	case models.ScopeStrategy:
		var sum float64
		for _, sp := range h.positions.GetPositionsByStrategy(pos.TenantID, pos.StrategyID) {
			price, ok := priceMap[sp.AssetID]
			if !ok {
				if sp.AssetID == pos.AssetID {
					price = currentPrice
				} else {
					sum += utils.Abs(sp.MarketValue)
					continue
				}
			}
			sum += sp.Notional(price)
		}
		return sum

	case models.ScopePortfolio:
		if portfolioValue > 0 {
			return portfolioValue
		}
		_, total := h.positions.GetPositions(pos.TenantID)
		return utils.Abs(total)
	}
	return 0
}

// FlagPosition создаёт/перезаписывает пометку по результату BREACH
func (h *PassiveBreachHandler) FlagPosition(result models.BreachCheckResult, autoReduction bool) *models.FlaggedPosition {
	fp := &models.FlaggedPosition{
		PositionID:           fmt.Sprintf("%s:%s:%s", result.TenantID, result.AssetID, result.StrategyID),
		TenantID:             result.TenantID,
		AssetID:              result.AssetID,
		StrategyID:           result.StrategyID,
		LimitID:              result.LimitID,
		Status:               models.BreachStatusBreach,
		CurrentValue:         result.CurrentValue,
		MaxValue:             result.EffectiveLimit,
		BreachAmount:         result.BreachAmount,
		BreachPercent:        result.BreachPercent,
		FlaggedAt:            utils.NowUTC(),
		AutoReductionEnabled: autoReduction,
	}
	// Перезапись не теряет уже поставленный корректирующий ордер
	if prev := h.store.GetFlagged(result.TenantID, result.AssetID, result.LimitID); prev != nil {
		fp.ReductionOrderQueued = prev.ReductionOrderQueued
		fp.ReductionOrderID = prev.ReductionOrderID
	}
	h.store.Flag(fp)
	metricBreachesFlagged.Inc()

	h.logger.Warn("Position flagged for passive breach",
		utils.TenantID(result.TenantID),
		utils.Asset(result.AssetID),
		utils.LimitID(result.LimitID),
		utils.Float64("current_value", result.CurrentValue),
		utils.Float64("effective_limit", result.EffectiveLimit),
		utils.Float64("breach_percent", result.BreachPercent),
	)

	if h.callback != nil {
		event := models.RiskEvent{
			TenantID:         result.TenantID,
			EventType:        models.EventLimitBreach,
			Severity:         models.SeverityCritical,
			AssetID:          result.AssetID,
			StrategyID:       result.StrategyID,
			Description:      fmt.Sprintf("Passive breach of limit %d: value %.2f exceeds ceiling %.2f", result.LimitID, result.CurrentValue, result.EffectiveLimit),
			TriggerCondition: "market value exceeded limit ceiling",
			ActionTaken:      "position flagged",
			CreatedAt:        utils.NowUTC(),
		}
		observeRiskEvent(event.EventType, event.Severity)
		h.callback(event)
	}

	return fp
}

// CalculateReductionQuantity возвращает стоимость, которую нужно
// сбросить, чтобы утилизация лимита вернулась к targetPercent.
//
// max(0, currentValue − maxValue × targetPercent / 100); результат
// в валюте котировки, не в единицах актива.
func CalculateReductionQuantity(currentValue, maxValue, targetPercent float64) float64 {
	return utils.Max(0, currentValue-maxValue*targetPercent/100)
}

// QueueReductionOrder создаёт корректирующий SELL-ордер и помечает
// позицию как имеющую ордер в очереди.
//
// quantity - стоимость к сбросу в валюте котировки; пересчёт в
// единицы актива по цене currentPrice.
func (h *PassiveBreachHandler) QueueReductionOrder(fp *models.FlaggedPosition, valueToShed, currentPrice float64) *models.ReductionOrder {
	quantity := valueToShed
	if currentPrice > 0 {
		quantity = valueToShed / currentPrice
	}

	order := &models.ReductionOrder{
		OrderID:    h.store.NextOrderID(),
		TenantID:   fp.TenantID,
		AssetID:    fp.AssetID,
		StrategyID: fp.StrategyID,
		LimitID:    fp.LimitID,
		Side:       models.SideSell,
		Quantity:   quantity,
		Reason:     fmt.Sprintf("passive breach of limit %d by %.2f", fp.LimitID, fp.BreachAmount),
		QueuedAt:   utils.NowUTC(),
		Status:     models.ReductionStatusQueued,
	}
	h.store.AddOrder(order)
	metricReductionOrders.WithLabelValues(models.ReductionStatusQueued).Inc()

	fp.ReductionOrderQueued = true
	fp.ReductionOrderID = order.OrderID
	h.store.Flag(fp)

	h.logger.Warn("Reduction order queued",
		utils.OrderID(order.OrderID),
		utils.TenantID(order.TenantID),
		utils.Asset(order.AssetID),
		utils.Quantity(order.Quantity),
		utils.String("reason", order.Reason),
	)

	// Submitter сам повторяет транзиентные ошибки; постоянный отказ
	// (невалидный ордер) здесь не пересылается
	if h.submitter != nil {
		if err := h.submitter.SubmitReduction(order); err != nil {
			h.logger.Error("Reduction order submission failed",
				utils.OrderID(order.OrderID), utils.Err(err))
		} else {
			h.store.UpdateOrderStatus(order.OrderID, models.ReductionStatusSubmitted)
			order.Status = models.ReductionStatusSubmitted
			metricReductionOrders.WithLabelValues(models.ReductionStatusSubmitted).Inc()
		}
	}

	return order
}

// ProcessPassiveBreaches - пакетный прогон по всем позициям тенанта.
//
// priceMap - снапшот цен: все пары (asset, price) обрабатываются
// атомарно относительно него, рыночные стоимости позиций
// переоцениваются по нему же. Позиции без известной цены пропускаются.
// BREACH результаты помечаются; корректирующие ордера ставятся только
// при cfg.AutoReductionEnabled.
func (h *PassiveBreachHandler) ProcessPassiveBreaches(tenantID string, priceMap map[string]float64, portfolioValue float64, cfg *BreachConfig) ([]models.BreachCheckResult, error) {
	config := DefaultBreachConfig()
	if cfg != nil {
		config = *cfg
	}
	config.applyDefaults()

	positions, _ := h.positions.GetPositions(tenantID)

	// Сперва снапшот цен применяется к рыночным стоимостям: без
	// этого portfolio-итоги и сохранённые значения остаются по
	// ценам прошлой переоценки
	for i := range positions {
		pos := &positions[i]
		price, ok := priceMap[pos.AssetID]
		if !ok {
			continue
		}
		if updated := h.positions.UpdateMarketValue(pos.TenantID, pos.AssetID, pos.StrategyID, price); updated != nil {
			positions[i] = *updated
		}
	}

	var all []models.BreachCheckResult
	for i := range positions {
		pos := &positions[i]
		price, ok := priceMap[pos.AssetID]
		if !ok || pos.IsFlat() {
			continue
		}

		results, err := h.CheckForPassiveBreach(tenantID, pos.AssetID, price, portfolioValue, pos.StrategyID, priceMap)
		if err != nil {
			return all, err
		}

		for _, result := range results {
			all = append(all, result)
			if result.Status != models.BreachStatusBreach {
				continue
			}

			fp := h.FlagPosition(result, config.AutoReductionEnabled)

			if config.AutoReductionEnabled && !fp.ReductionOrderQueued {
				valueToShed := CalculateReductionQuantity(result.CurrentValue, result.EffectiveLimit, config.ReductionTargetPercent)
				if valueToShed > 0 {
					h.QueueReductionOrder(fp, valueToShed, price)
				}
			}
		}
	}
	return all, nil
}
