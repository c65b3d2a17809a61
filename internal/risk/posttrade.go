package risk

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"riskcore/internal/models"
	"riskcore/pkg/utils"
)

// posttrade.go - обработка исполнений после сделки
//
// Последовательность на каждый отчёт об исполнении:
// позиция → реализованный PNL → портфельный трекер → drawdown →
// circuit breaker → защитные действия. Ни один шаг не пропускается
// из-за частичного сбоя последующих.

// PostTradeConfig - настройки post-trade обработки
type PostTradeConfig struct {
	// EnableProtectiveActions включает шаг защитных действий
	// (события drawdown, автотриггер kill switch, breaker trip)
	EnableProtectiveActions bool

	// RapidLossThresholdPercent - процент быстрого убытка от стоимости
	// портфеля, поднимающий EMERGENCY событие (по умолчанию 5)
	RapidLossThresholdPercent float64

	// RapidLossWindow - окно учёта быстрого убытка (по умолчанию 5 минут)
	RapidLossWindow time.Duration
}

// DefaultPostTradeConfig - значения по умолчанию
func DefaultPostTradeConfig() PostTradeConfig {
	return PostTradeConfig{
		EnableProtectiveActions:   true,
		RapidLossThresholdPercent: 5,
		RapidLossWindow:           5 * time.Minute,
	}
}

func (c *PostTradeConfig) applyDefaults() {
	if c.RapidLossThresholdPercent <= 0 {
		c.RapidLossThresholdPercent = 5
	}
	if c.RapidLossWindow <= 0 {
		c.RapidLossWindow = 5 * time.Minute
	}
}

// ============================================================
// Портфельный трекер
// ============================================================

// pnlEntry - одна запись реализованного PNL
type pnlEntry struct {
	pnl float64
	at  time.Time
}

// PortfolioTracker ведёт стоимость портфеля тенанта и скользящую
// историю реализованного PNL для детектора быстрого убытка
type PortfolioTracker struct {
	mu      sync.Mutex
	values  map[string]float64
	entries map[string][]pnlEntry

	now func() time.Time
}

// NewPortfolioTracker создаёт пустой трекер
func NewPortfolioTracker() *PortfolioTracker {
	return &PortfolioTracker{
		values:  make(map[string]float64),
		entries: make(map[string][]pnlEntry),
		now:     time.Now,
	}
}

// SetValue выставляет стоимость портфеля тенанта (начальный капитал,
// пересчёт по рынку)
func (pt *PortfolioTracker) SetValue(tenantID string, value float64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.values[tenantID] = value
}

// Value возвращает текущую стоимость портфеля тенанта
func (pt *PortfolioTracker) Value(tenantID string) float64 {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.values[tenantID]
}

// RecordPnl применяет реализованный PNL к стоимости портфеля и
// запоминает запись для окна быстрого убытка. Возвращает новую
// стоимость портфеля.
func (pt *PortfolioTracker) RecordPnl(tenantID string, pnl float64) float64 {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	now := pt.now()
	pt.values[tenantID] += pnl
	pt.entries[tenantID] = append(pt.entries[tenantID], pnlEntry{pnl: pnl, at: now})

	return pt.values[tenantID]
}

// RecentLoss возвращает суммарный реализованный убыток (положительным
// числом) за окно window. Прибыльные записи в окне компенсируют убыток.
func (pt *PortfolioTracker) RecentLoss(tenantID string, window time.Duration) float64 {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	now := pt.now()
	var sum float64
	kept := pt.entries[tenantID][:0]
	for _, e := range pt.entries[tenantID] {
		if !utils.WithinWindow(e.at, now, window) {
			continue
		}
		kept = append(kept, e)
		sum += e.pnl
	}
	pt.entries[tenantID] = kept

	if sum >= 0 {
		return 0
	}
	return -sum
}

// ============================================================
// Post-Trade Updater
// ============================================================

// PostTradeUpdater прогоняет отчёты об исполнении через учёт и
// защитные действия
type PostTradeUpdater struct {
	positions  *PositionStore
	portfolio  *PortfolioTracker
	drawdown   DrawdownTracker
	breaker    CircuitBreaker
	killSwitch KillSwitch
	logger     *utils.Logger
}

// NewPostTradeUpdater создаёт updater
func NewPostTradeUpdater(
	positions *PositionStore,
	portfolio *PortfolioTracker,
	drawdown DrawdownTracker,
	breaker CircuitBreaker,
	killSwitch KillSwitch,
	logger *utils.Logger,
) *PostTradeUpdater {
	if logger == nil {
		logger = utils.L()
	}
	return &PostTradeUpdater{
		positions:  positions,
		portfolio:  portfolio,
		drawdown:   drawdown,
		breaker:    breaker,
		killSwitch: killSwitch,
		logger:     logger.WithComponent("posttrade"),
	}
}

// ProcessExecution применяет исполнение ко всем подсистемам учёта.
//
// Реализованный PNL:
//   - SELL: (цена исполнения − средняя цена ДО обновления) × количество
//     − комиссия
//   - BUY: −комиссия (покупка ничего не реализует)
//
// События защитных действий всегда попадают в result.Events;
// доставляются они только через callback - nil callback означает
// "не доставлять".
func (pu *PostTradeUpdater) ProcessExecution(exec *models.ExecutionReport, cfg *PostTradeConfig, callback RiskEventCallback) *models.PostTradeResult {
	start := time.Now()
	config := DefaultPostTradeConfig()
	if cfg != nil {
		config = *cfg
	}
	config.applyDefaults()

	// (1) позиция: среднюю до обновления нужно снять заранее -
	// именно она входит в формулу реализованного PNL
	var avgBefore float64
	if prev := pu.positions.GetPosition(exec.TenantID, exec.AssetID, exec.StrategyID); prev != nil {
		avgBefore = prev.AveragePrice
	}
	position := pu.positions.ProcessExecution(exec)

	// (2) реализованный PNL
	realized := -exec.Commission
	if exec.Side == models.SideSell {
		realized = (exec.Price-avgBefore)*exec.Quantity - exec.Commission
	}
	observeRealizedPnl(realized)

	// (3) портфельный трекер
	portfolioValue := pu.portfolio.RecordPnl(exec.TenantID, realized)

	result := &models.PostTradeResult{
		Position:       &position,
		RealizedPnl:    realized,
		PortfolioValue: portfolioValue,
		Timestamp:      utils.NowUTC(),
	}

	// (4) drawdown: отсутствие состояния не сбой
	drawdownUpdate, err := pu.drawdown.MonitorAndUpdate(exec.TenantID, exec.StrategyID, portfolioValue)
	if err != nil && !errors.Is(err, ErrNoDrawdownState) {
		pu.logger.Error("Drawdown update failed",
			utils.TenantID(exec.TenantID), utils.Err(err))
	}
	result.Drawdown = drawdownUpdate

	// (5) circuit breaker
	lossAmount := 0.0
	if realized < 0 {
		lossAmount = -realized
	}
	if err := pu.breaker.RecordEvent(exec.TenantID, models.TradingEvent{
		EventType:  "EXECUTION",
		StrategyID: exec.StrategyID,
		AssetID:    exec.AssetID,
		Success:    realized >= 0,
		LossAmount: lossAmount,
		Timestamp:  exec.ExecutedAt,
	}); err != nil {
		pu.logger.Error("Circuit breaker record failed",
			utils.TenantID(exec.TenantID), utils.Err(err))
	}

	// (6) защитные действия
	if config.EnableProtectiveActions {
		result.Events = pu.protectiveActions(exec, result, &config)
		for _, event := range result.Events {
			observeRiskEvent(event.EventType, event.Severity)
			if callback != nil {
				callback(event)
			}
		}
	}

	result.ProcessingTimeMs = utils.SinceMs(start)

	pu.logger.Info("Execution processed",
		utils.OrderID(exec.OrderID),
		utils.TenantID(exec.TenantID),
		utils.Asset(exec.AssetID),
		utils.Side(exec.Side),
		utils.Float64("realized_pnl", realized),
		utils.Float64("portfolio_value", portfolioValue),
		utils.Int("events", len(result.Events)),
		utils.Latency(result.ProcessingTimeMs),
	)

	return result
}

// protectiveActions формирует события защитных действий
func (pu *PostTradeUpdater) protectiveActions(exec *models.ExecutionReport, result *models.PostTradeResult, cfg *PostTradeConfig) []models.RiskEvent {
	var events []models.RiskEvent
	now := utils.NowUTC()

	// Просадка
	if result.Drawdown != nil && result.Drawdown.State != nil {
		state := result.Drawdown.State
		switch state.Status {
		case models.DrawdownWarning:
			events = append(events, models.RiskEvent{
				TenantID:         exec.TenantID,
				EventType:        models.EventDrawdownWarning,
				Severity:         models.SeverityWarning,
				StrategyID:       exec.StrategyID,
				Description:      fmt.Sprintf("Drawdown %.2f%% exceeds warning threshold %.2f%%", state.DrawdownPercent, state.WarningThreshold),
				TriggerCondition: fmt.Sprintf("drawdown_percent >= %.2f", state.WarningThreshold),
				ActionTaken:      "alert raised",
				CreatedAt:        now,
			})
		case models.DrawdownCritical:
			events = append(events, models.RiskEvent{
				TenantID:         exec.TenantID,
				EventType:        models.EventDrawdownBreach,
				Severity:         models.SeverityCritical,
				StrategyID:       exec.StrategyID,
				Description:      fmt.Sprintf("Drawdown %.2f%% exceeds maximum threshold %.2f%%", state.DrawdownPercent, state.MaxThreshold),
				TriggerCondition: fmt.Sprintf("drawdown_percent >= %.2f", state.MaxThreshold),
				ActionTaken:      "trading halted for scope",
				CreatedAt:        now,
			})
		}
	}

	// Быстрый убыток
	if result.PortfolioValue > 0 {
		recentLoss := pu.portfolio.RecentLoss(exec.TenantID, cfg.RapidLossWindow)
		lossPercent := utils.PercentOf(recentLoss, result.PortfolioValue)
		if lossPercent >= cfg.RapidLossThresholdPercent {
			reason := fmt.Sprintf("rapid loss %.2f%% over %s", lossPercent, cfg.RapidLossWindow)
			triggered, err := pu.killSwitch.CheckAutoTriggers(exec.TenantID, reason, lossPercent)
			if err != nil {
				pu.logger.Error("Kill switch auto-trigger failed",
					utils.TenantID(exec.TenantID), utils.Err(err))
			}
			if triggered {
				metricKillSwitchActivations.Inc()
				events = append(events, models.RiskEvent{
					TenantID:         exec.TenantID,
					EventType:        models.EventKillSwitch,
					Severity:         models.SeverityEmergency,
					StrategyID:       exec.StrategyID,
					Description:      fmt.Sprintf("Kill switch activated: %s", reason),
					TriggerCondition: fmt.Sprintf("recent_loss_percent >= %.2f", cfg.RapidLossThresholdPercent),
					ActionTaken:      "all trading halted for tenant",
					Metadata: map[string]interface{}{
						"recent_loss":     recentLoss,
						"loss_percent":    lossPercent,
						"portfolio_value": result.PortfolioValue,
					},
					CreatedAt: now,
				})
			}
		}
	}

	// Circuit breaker
	breakerResult, err := pu.breaker.CheckBreakers(exec.TenantID, exec.StrategyID, exec.AssetID)
	if err != nil {
		pu.logger.Error("Circuit breaker check failed",
			utils.TenantID(exec.TenantID), utils.Err(err))
	} else {
		result.BreakerResult = breakerResult
		if !breakerResult.AllClosed {
			events = append(events, models.RiskEvent{
				TenantID:         exec.TenantID,
				EventType:        models.EventCircuitBreakerTrip,
				Severity:         models.SeverityCritical,
				StrategyID:       exec.StrategyID,
				AssetID:          exec.AssetID,
				Description:      fmt.Sprintf("Circuit breaker open: %v", breakerResult.OpenBreakers),
				TriggerCondition: "consecutive failures exceeded threshold",
				ActionTaken:      "trading halted for scope",
				CreatedAt:        now,
			})
		}
	}

	return events
}

// ReconcilePosition сверяет внутреннюю позицию с данными биржи.
//
// Расхождение больше utils.ReconciliationTolerance - не ошибка, а
// обнаруженное и обработанное состояние: данные биржи побеждают
// (внутреннее количество перезаписывается), поднимается
// EXCHANGE_ERROR/WARNING событие.
func (pu *PostTradeUpdater) ReconcilePosition(tenantID, assetID, strategyID string, exchangeData models.ExchangePosition, callback RiskEventCallback) models.ReconcileResult {
	var internalQty float64
	if pos := pu.positions.GetPosition(tenantID, assetID, strategyID); pos != nil {
		internalQty = pos.Quantity
	}

	discrepancy := internalQty - exchangeData.Quantity
	if discrepancy < 0 {
		discrepancy = -discrepancy
	}

	result := models.ReconcileResult{
		TenantID:         tenantID,
		AssetID:          assetID,
		InternalQuantity: internalQty,
		ExchangeQuantity: exchangeData.Quantity,
		Discrepancy:      discrepancy,
	}

	if discrepancy <= utils.ReconciliationTolerance {
		metricReconciliationsTotal.WithLabelValues("match").Inc()
		return result
	}

	// Данные биржи - источник истины
	pu.positions.SetQuantity(tenantID, assetID, strategyID, exchangeData.Quantity)
	result.Reconciled = true
	result.AlertGenerated = true
	metricReconciliationsTotal.WithLabelValues("discrepancy").Inc()

	pu.logger.Warn("Position reconciled against exchange data",
		utils.TenantID(tenantID),
		utils.Asset(assetID),
		utils.Float64("internal_quantity", internalQty),
		utils.Float64("exchange_quantity", exchangeData.Quantity),
		utils.Float64("discrepancy", discrepancy),
	)

	if callback != nil {
		event := models.RiskEvent{
			TenantID:         tenantID,
			EventType:        models.EventExchangeError,
			Severity:         models.SeverityWarning,
			AssetID:          assetID,
			Description:      fmt.Sprintf("Position discrepancy: internal %v, exchange %v", internalQty, exchangeData.Quantity),
			TriggerCondition: fmt.Sprintf("|internal - exchange| > %v", utils.ReconciliationTolerance),
			ActionTaken:      "position overwritten with exchange quantity",
			Metadata: map[string]interface{}{
				"internal_quantity": internalQty,
				"exchange_quantity": exchangeData.Quantity,
			},
			CreatedAt: utils.NowUTC(),
		}
		observeRiskEvent(event.EventType, event.Severity)
		callback(event)
	}

	return result
}

// BatchReconcile применяет ReconcilePosition к списку позиций биржи
func (pu *PostTradeUpdater) BatchReconcile(tenantID, strategyID string, exchangePositions []models.ExchangePosition, callback RiskEventCallback) []models.ReconcileResult {
	results := make([]models.ReconcileResult, 0, len(exchangePositions))
	for _, ep := range exchangePositions {
		results = append(results, pu.ReconcilePosition(tenantID, ep.AssetID, strategyID, ep, callback))
	}
	return results
}
