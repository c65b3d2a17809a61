package risk

import (
	"sort"
	"sync"

	"riskcore/internal/models"
	"riskcore/pkg/utils"
)

// position_store.go - учёт позиций в памяти
//
// Позиции ключуются (tenant_id, asset_id, strategy_id) и живут в
// mutex-защищённой map, принадлежащей экземпляру store - никаких
// process-wide синглтонов, несколько экземпляров (и тестов) не
// делят состояние.

// positionKey - ключ позиции
type positionKey struct {
	tenantID   string
	assetID    string
	strategyID string
}

// PositionStore хранит позиции всех тенантов
//
// Потокобезопасен. Позиция с нулевым количеством не удаляется -
// остаётся записью с историей средней цены.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[positionKey]*models.Position
	logger    *utils.Logger
}

// NewPositionStore создаёт пустой store
func NewPositionStore(logger *utils.Logger) *PositionStore {
	if logger == nil {
		logger = utils.L()
	}
	return &PositionStore{
		positions: make(map[positionKey]*models.Position),
		logger:    logger.WithComponent("position_store"),
	}
}

// ProcessExecution применяет отчёт об исполнении к позиции.
//
// Правила средней цены:
//   - BUY, увеличивающий позицию в том же направлении (или открывающий
//     её): средняя пересчитывается как средневзвешенная
//     (oldQty*oldAvg + qty*price) / (oldQty+qty)
//   - переворот знака (докупили сквозь полный выход): средняя
//     сбрасывается на цену исполнения нового направления
//   - SELL никогда не пересчитывает среднюю - уменьшающие сделки
//     реализуют PNL, а не меняют базу
//
// Возвращает копию позиции после применения.
func (ps *PositionStore) ProcessExecution(exec *models.ExecutionReport) models.Position {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	key := positionKey{exec.TenantID, exec.AssetID, exec.StrategyID}
	pos := ps.positions[key]
	if pos == nil {
		pos = &models.Position{
			TenantID:   exec.TenantID,
			AssetID:    exec.AssetID,
			StrategyID: exec.StrategyID,
		}
		ps.positions[key] = pos
	}

	oldQty := pos.Quantity
	newQty := oldQty + exec.SignedQuantity()

	if exec.Side == models.SideBuy {
		switch {
		case oldQty >= 0 && newQty > 0:
			// Накопление лонга (или открытие с нуля)
			pos.AveragePrice = utils.CalculateWeightedAverage(
				[]float64{pos.AveragePrice, exec.Price},
				[]float64{oldQty, exec.Quantity},
			)
		case oldQty < 0 && newQty > 0:
			// Покупка перевернула шорт в лонг - новая база
			pos.AveragePrice = exec.Price
		}
		// BUY, лишь сокращающий шорт (newQty <= 0), среднюю не трогает
	} else if oldQty >= 0 && newQty < 0 {
		// Продажа перевернула лонг в шорт - база шорта
		pos.AveragePrice = exec.Price
	}

	pos.Quantity = newQty
	pos.UpdatedAt = exec.ExecutedAt

	ps.logger.Debug("Position updated",
		utils.TenantID(exec.TenantID),
		utils.Asset(exec.AssetID),
		utils.Strategy(exec.StrategyID),
		utils.Side(exec.Side),
		utils.Quantity(newQty),
		utils.Price(pos.AveragePrice),
	)

	return *pos
}

// CalculatePositionFromTrades - чистая свёртка знаковых количеств.
//
// Никаких побочных эффектов: используется для верификации store
// и воспроизведения истории. Результат точен в пределах
// utils.QuantityEpsilon.
func CalculatePositionFromTrades(execs []models.ExecutionReport) float64 {
	var qty float64
	for i := range execs {
		qty += execs[i].SignedQuantity()
	}
	return qty
}

// GetPosition возвращает копию позиции или nil если её нет
func (ps *PositionStore) GetPosition(tenantID, assetID, strategyID string) *models.Position {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	pos := ps.positions[positionKey{tenantID, assetID, strategyID}]
	if pos == nil {
		return nil
	}
	copy := *pos
	return &copy
}

// GetPositionsByStrategy возвращает все позиции стратегии тенанта
func (ps *PositionStore) GetPositionsByStrategy(tenantID, strategyID string) []models.Position {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var out []models.Position
	for key, pos := range ps.positions {
		if key.tenantID == tenantID && key.strategyID == strategyID {
			out = append(out, *pos)
		}
	}
	return out
}

// GetPositions возвращает все позиции тенанта и их суммарную
// рыночную стоимость
func (ps *PositionStore) GetPositions(tenantID string) ([]models.Position, float64) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var out []models.Position
	var total float64
	for key, pos := range ps.positions {
		if key.tenantID == tenantID {
			out = append(out, *pos)
			total += pos.MarketValue
		}
	}
	return out, total
}

// Tenants возвращает отсортированный список тенантов с позициями
func (ps *PositionStore) Tenants() []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	seen := make(map[string]struct{})
	for key := range ps.positions {
		seen[key.tenantID] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for tenantID := range seen {
		out = append(out, tenantID)
	}
	sort.Strings(out)
	return out
}

// UpdateMarketValue пересчитывает рыночную стоимость позиции по цене.
//
// marketValue = quantity × price
// unrealizedPnl = quantity × (price − averagePrice)
//
// Возвращает nil если позиции нет - отсутствие позиции при тике цены
// не ошибка.
func (ps *PositionStore) UpdateMarketValue(tenantID, assetID, strategyID string, price float64) *models.Position {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	pos := ps.positions[positionKey{tenantID, assetID, strategyID}]
	if pos == nil {
		return nil
	}

	pos.MarketValue = pos.Quantity * price
	pos.UnrealizedPnl = pos.Quantity * (price - pos.AveragePrice)

	copy := *pos
	return &copy
}

// SetQuantity принудительно выставляет количество позиции.
//
// Используется сверкой: данные биржи - источник истины, позиция
// создаётся если её не было.
func (ps *PositionStore) SetQuantity(tenantID, assetID, strategyID string, quantity float64) models.Position {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	key := positionKey{tenantID, assetID, strategyID}
	pos := ps.positions[key]
	if pos == nil {
		pos = &models.Position{
			TenantID:   tenantID,
			AssetID:    assetID,
			StrategyID: strategyID,
		}
		ps.positions[key] = pos
	}
	pos.Quantity = quantity
	return *pos
}
