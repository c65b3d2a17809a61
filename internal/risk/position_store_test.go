package risk

import (
	"math"
	"sync"
	"testing"
	"time"

	"riskcore/internal/models"
	"riskcore/pkg/utils"
)

func exec(side string, qty, price float64) *models.ExecutionReport {
	return &models.ExecutionReport{
		OrderID:    "ord-1",
		TenantID:   "tenant-1",
		AssetID:    "BTC-USDT",
		StrategyID: "momentum",
		Side:       side,
		Quantity:   qty,
		Price:      price,
		ExecutedAt: time.Now().UTC(),
	}
}

func TestProcessExecution_OpensPosition(t *testing.T) {
	ps := NewPositionStore(nil)

	pos := ps.ProcessExecution(exec(models.SideBuy, 1.0, 25000))

	if pos.Quantity != 1.0 {
		t.Errorf("Quantity = %v, want 1.0", pos.Quantity)
	}
	if pos.AveragePrice != 25000 {
		t.Errorf("AveragePrice = %v, want 25000", pos.AveragePrice)
	}
}

func TestProcessExecution_WeightedAverageOnAccumulation(t *testing.T) {
	ps := NewPositionStore(nil)

	ps.ProcessExecution(exec(models.SideBuy, 1.0, 25000))
	pos := ps.ProcessExecution(exec(models.SideBuy, 1.0, 26000))

	if pos.Quantity != 2.0 {
		t.Errorf("Quantity = %v, want 2.0", pos.Quantity)
	}
	if !utils.AlmostEqual(pos.AveragePrice, 25500, 1e-9) {
		t.Errorf("AveragePrice = %v, want 25500 (weighted average)", pos.AveragePrice)
	}
}

func TestProcessExecution_SellDoesNotRecalcAverage(t *testing.T) {
	ps := NewPositionStore(nil)

	ps.ProcessExecution(exec(models.SideBuy, 2.0, 25000))
	pos := ps.ProcessExecution(exec(models.SideSell, 1.0, 30000))

	if pos.Quantity != 1.0 {
		t.Errorf("Quantity = %v, want 1.0", pos.Quantity)
	}
	if pos.AveragePrice != 25000 {
		t.Errorf("AveragePrice = %v, want 25000 (unchanged by SELL)", pos.AveragePrice)
	}
}

func TestProcessExecution_SellFlipsToShort(t *testing.T) {
	ps := NewPositionStore(nil)

	ps.ProcessExecution(exec(models.SideBuy, 1.0, 25000))
	pos := ps.ProcessExecution(exec(models.SideSell, 3.0, 24000))

	if pos.Quantity != -2.0 {
		t.Errorf("Quantity = %v, want -2.0", pos.Quantity)
	}
	// Переворот в шорт: база нового направления - цена исполнения
	if pos.AveragePrice != 24000 {
		t.Errorf("AveragePrice = %v, want 24000 (reset on sign flip)", pos.AveragePrice)
	}
}

func TestProcessExecution_BuyFlipsShortToLong(t *testing.T) {
	ps := NewPositionStore(nil)

	ps.ProcessExecution(exec(models.SideSell, 2.0, 25000))
	pos := ps.ProcessExecution(exec(models.SideBuy, 5.0, 26000))

	if pos.Quantity != 3.0 {
		t.Errorf("Quantity = %v, want 3.0", pos.Quantity)
	}
	if pos.AveragePrice != 26000 {
		t.Errorf("AveragePrice = %v, want 26000 (reset on sign flip)", pos.AveragePrice)
	}
}

func TestProcessExecution_BuyReducingShortKeepsAverage(t *testing.T) {
	ps := NewPositionStore(nil)

	ps.ProcessExecution(exec(models.SideSell, 3.0, 25000))
	pos := ps.ProcessExecution(exec(models.SideBuy, 1.0, 24000))

	if pos.Quantity != -2.0 {
		t.Errorf("Quantity = %v, want -2.0", pos.Quantity)
	}
	if pos.AveragePrice != 25000 {
		t.Errorf("AveragePrice = %v, want 25000 (BUY reducing a short keeps the base)", pos.AveragePrice)
	}
}

func TestProcessExecution_SellAccumulatingShortKeepsAverage(t *testing.T) {
	ps := NewPositionStore(nil)

	ps.ProcessExecution(exec(models.SideSell, 1.0, 25000))
	pos := ps.ProcessExecution(exec(models.SideSell, 1.0, 20000))

	if pos.Quantity != -2.0 {
		t.Errorf("Quantity = %v, want -2.0", pos.Quantity)
	}
	if pos.AveragePrice != 25000 {
		t.Errorf("AveragePrice = %v, want 25000 (SELL never recalculates)", pos.AveragePrice)
	}
}

func TestProcessExecution_ZeroQuantityPersists(t *testing.T) {
	ps := NewPositionStore(nil)

	ps.ProcessExecution(exec(models.SideBuy, 1.0, 25000))
	ps.ProcessExecution(exec(models.SideSell, 1.0, 26000))

	pos := ps.GetPosition("tenant-1", "BTC-USDT", "momentum")
	if pos == nil {
		t.Fatal("zero-quantity position must persist as a record")
	}
	if !pos.IsFlat() {
		t.Errorf("Quantity = %v, want 0", pos.Quantity)
	}
	if pos.AveragePrice != 25000 {
		t.Errorf("AveragePrice = %v, want 25000 (full close keeps base)", pos.AveragePrice)
	}
}

func TestCalculatePositionFromTrades_ReplayMatchesStore(t *testing.T) {
	ps := NewPositionStore(nil)

	execs := []models.ExecutionReport{
		*exec(models.SideBuy, 0.1, 25000),
		*exec(models.SideBuy, 0.2, 25500),
		*exec(models.SideSell, 0.15, 26000),
		*exec(models.SideBuy, 0.3, 24000),
		*exec(models.SideSell, 0.45, 25000),
	}

	for i := range execs {
		ps.ProcessExecution(&execs[i])
	}

	replayed := CalculatePositionFromTrades(execs)
	pos := ps.GetPosition("tenant-1", "BTC-USDT", "momentum")

	if math.Abs(replayed-pos.Quantity) > utils.QuantityEpsilon {
		t.Errorf("replayed = %v, store = %v, drift exceeds epsilon", replayed, pos.Quantity)
	}
	// Σ(BUY) − Σ(SELL) = 0.6 − 0.6 = 0
	if math.Abs(replayed) > utils.QuantityEpsilon {
		t.Errorf("replayed = %v, want 0", replayed)
	}
}

func TestGetPosition_KeyIsolation(t *testing.T) {
	ps := NewPositionStore(nil)

	e := exec(models.SideBuy, 1.0, 25000)
	ps.ProcessExecution(e)

	other := *e
	other.StrategyID = "arbitrage"
	other.Quantity = 5.0
	ps.ProcessExecution(&other)

	if pos := ps.GetPosition("tenant-1", "BTC-USDT", "momentum"); pos.Quantity != 1.0 {
		t.Errorf("momentum quantity = %v, want 1.0", pos.Quantity)
	}
	if pos := ps.GetPosition("tenant-1", "BTC-USDT", "arbitrage"); pos.Quantity != 5.0 {
		t.Errorf("arbitrage quantity = %v, want 5.0", pos.Quantity)
	}
	if pos := ps.GetPosition("tenant-2", "BTC-USDT", "momentum"); pos != nil {
		t.Error("tenant-2 must not see tenant-1 positions")
	}
}

func TestGetPositionsByStrategy(t *testing.T) {
	ps := NewPositionStore(nil)

	e1 := exec(models.SideBuy, 1.0, 25000)
	ps.ProcessExecution(e1)

	e2 := *e1
	e2.AssetID = "ETH-USDT"
	ps.ProcessExecution(&e2)

	e3 := *e1
	e3.StrategyID = "arbitrage"
	ps.ProcessExecution(&e3)

	positions := ps.GetPositionsByStrategy("tenant-1", "momentum")
	if len(positions) != 2 {
		t.Errorf("positions = %d, want 2", len(positions))
	}
}

func TestGetPositions_AggregatesMarketValue(t *testing.T) {
	ps := NewPositionStore(nil)

	e1 := exec(models.SideBuy, 1.0, 25000)
	ps.ProcessExecution(e1)
	ps.UpdateMarketValue("tenant-1", "BTC-USDT", "momentum", 26000)

	e2 := *e1
	e2.AssetID = "ETH-USDT"
	e2.Quantity = 10
	e2.Price = 1500
	ps.ProcessExecution(&e2)
	ps.UpdateMarketValue("tenant-1", "ETH-USDT", "momentum", 1600)

	positions, total := ps.GetPositions("tenant-1")
	if len(positions) != 2 {
		t.Fatalf("positions = %d, want 2", len(positions))
	}
	// 1×26000 + 10×1600 = 42000
	if !utils.AlmostEqual(total, 42000, 1e-9) {
		t.Errorf("total = %v, want 42000", total)
	}
}

func TestUpdateMarketValue(t *testing.T) {
	ps := NewPositionStore(nil)

	ps.ProcessExecution(exec(models.SideBuy, 2.0, 25000))

	pos := ps.UpdateMarketValue("tenant-1", "BTC-USDT", "momentum", 26000)
	if pos == nil {
		t.Fatal("UpdateMarketValue returned nil for existing position")
	}
	if pos.MarketValue != 52000 {
		t.Errorf("MarketValue = %v, want 52000", pos.MarketValue)
	}
	if pos.UnrealizedPnl != 2000 {
		t.Errorf("UnrealizedPnl = %v, want 2000", pos.UnrealizedPnl)
	}
}

func TestUpdateMarketValue_MissingPosition(t *testing.T) {
	ps := NewPositionStore(nil)

	if pos := ps.UpdateMarketValue("tenant-1", "BTC-USDT", "", 26000); pos != nil {
		t.Error("UpdateMarketValue must return nil for missing position")
	}
}

func TestSetQuantity_Reconciliation(t *testing.T) {
	ps := NewPositionStore(nil)

	ps.ProcessExecution(exec(models.SideBuy, 10, 25000))

	pos := ps.SetQuantity("tenant-1", "BTC-USDT", "momentum", 8)
	if pos.Quantity != 8 {
		t.Errorf("Quantity = %v, want 8 (exchange data wins)", pos.Quantity)
	}

	// Создаёт позицию если её не было
	pos = ps.SetQuantity("tenant-1", "SOL-USDT", "", 3)
	if pos.Quantity != 3 {
		t.Errorf("Quantity = %v, want 3", pos.Quantity)
	}
}

func TestPositionStore_ConcurrentExecutions(t *testing.T) {
	ps := NewPositionStore(nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ps.ProcessExecution(exec(models.SideBuy, 0.01, 25000))
			}
		}()
	}
	wg.Wait()

	pos := ps.GetPosition("tenant-1", "BTC-USDT", "momentum")
	if math.Abs(pos.Quantity-10.0) > 1e-9 {
		t.Errorf("Quantity = %v, want 10.0", pos.Quantity)
	}
}
