package risk

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"riskcore/internal/models"
	"riskcore/pkg/utils"
)

// pretrade.go - pre-trade валидация ордеров
//
// Семь проверок в фиксированном порядке: Kill Switch, Circuit Breaker,
// Position Limits, Drawdown, Volatility, Capital, Leverage. Порядок
// важен для читаемости логов, не для решения: ордер одобрен тогда и
// только тогда, когда пройдены ВСЕ проверки.
//
// Каждая проверка fail-safe: ошибка коллаборатора проваливает её
// (отклонение, не пропуск). Два документированных исключения:
// ErrNoDrawdownState и ErrNoVolatilityState означают "не отслеживается"
// и пропускают проверку.

// checkOrder - фиксированный порядок проверок
var checkOrder = []string{
	models.CheckKillSwitch,
	models.CheckCircuitBreaker,
	models.CheckPositionLimits,
	models.CheckDrawdown,
	models.CheckVolatility,
	models.CheckCapital,
	models.CheckLeverage,
}

// ValidateConfig - опциональная конфигурация проверок.
//
// Capital и Leverage проверки активируются только наличием
// соответствующих полей; nil означает "проверка пропускается".
type ValidateConfig struct {
	AvailableCapital *float64 `json:"available_capital,omitempty"`
	MaxLeverage      *float64 `json:"max_leverage,omitempty"`
	PortfolioValue   *float64 `json:"portfolio_value,omitempty"`
}

// OrderRejectedError - структурная ошибка отклонения ордера.
//
// Несёт полный список проверок для программного разбора.
type OrderRejectedError struct {
	OrderID string
	Reason  string
	Checks  []models.RiskCheckDetail
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("order %s rejected: %s", e.OrderID, e.Reason)
}

// PreTradeChecker оркестрирует семь проверок в одно решение
type PreTradeChecker struct {
	killSwitch KillSwitch
	breaker    CircuitBreaker
	limits     LimitSource
	drawdown   DrawdownTracker
	volatility VolatilityGuard
	logger     *utils.Logger
}

// NewPreTradeChecker создаёт checker с инжектированными коллабораторами
func NewPreTradeChecker(
	killSwitch KillSwitch,
	breaker CircuitBreaker,
	limits LimitSource,
	drawdown DrawdownTracker,
	volatility VolatilityGuard,
	logger *utils.Logger,
) *PreTradeChecker {
	if logger == nil {
		logger = utils.L()
	}
	return &PreTradeChecker{
		killSwitch: killSwitch,
		breaker:    breaker,
		limits:     limits,
		drawdown:   drawdown,
		volatility: volatility,
		logger:     logger.WithComponent("pretrade"),
	}
}

// Validate прогоняет ордер через все семь проверок.
//
// Проверки не зависят друг от друга по данным и выполняются
// конкурентно; результаты собираются в фиксированном порядке
// checkOrder, так что вывод детерминирован независимо от порядка
// завершения горутин. Паника внутри проверки локализуется и
// проваливает только её.
//
// Все семь исходов логируются при каждом вызове - требование аудита.
func (pc *PreTradeChecker) Validate(order *models.OrderRequest, cfg *ValidateConfig) *models.RiskCheckResult {
	start := time.Now()
	if cfg == nil {
		cfg = &ValidateConfig{}
	}

	checks := make([]models.RiskCheckDetail, len(checkOrder))

	var wg sync.WaitGroup
	for i, checkType := range checkOrder {
		wg.Add(1)
		go func(i int, checkType string) {
			defer wg.Done()
			checks[i] = pc.runCheck(checkType, order, cfg)
		}(i, checkType)
	}
	wg.Wait()

	result := &models.RiskCheckResult{
		OrderID:   order.OrderID,
		Checks:    checks,
		Approved:  true,
		Timestamp: utils.NowUTC(),
	}

	for _, c := range checks {
		observeCheck(c.CheckType, c.Passed)
		if !c.Passed {
			result.Approved = false
		}
	}

	if !result.Approved {
		result.RejectionReason = buildRejectionReason(result.FailedChecks())
	}
	result.ProcessingTimeMs = utils.SinceMs(start)
	observeDecision(result.Approved, time.Since(start).Seconds())

	pc.logDecision(order, result)
	return result
}

// runCheck выполняет одну проверку с локализацией паники
func (pc *PreTradeChecker) runCheck(checkType string, order *models.OrderRequest, cfg *ValidateConfig) (detail models.RiskCheckDetail) {
	defer func() {
		if r := recover(); r != nil {
			detail = failCheck(checkType, fmt.Sprintf("%s check panicked: %v", checkType, r))
		}
	}()

	switch checkType {
	case models.CheckKillSwitch:
		return pc.checkKillSwitch(order)
	case models.CheckCircuitBreaker:
		return pc.checkCircuitBreaker(order)
	case models.CheckPositionLimits:
		return pc.checkPositionLimits(order, cfg)
	case models.CheckDrawdown:
		return pc.checkDrawdown(order)
	case models.CheckVolatility:
		return pc.checkVolatility(order)
	case models.CheckCapital:
		return pc.checkCapital(order, cfg)
	case models.CheckLeverage:
		return pc.checkLeverage(order, cfg)
	}
	return failCheck(checkType, "unknown check type")
}

func passCheck(checkType, message string) models.RiskCheckDetail {
	return models.RiskCheckDetail{CheckType: checkType, Passed: true, Message: message}
}

func failCheck(checkType, message string) models.RiskCheckDetail {
	return models.RiskCheckDetail{CheckType: checkType, Passed: false, Message: message}
}

// checkKillSwitch отклоняет ордер при активном выключателе тенанта
func (pc *PreTradeChecker) checkKillSwitch(order *models.OrderRequest) models.RiskCheckDetail {
	active, err := pc.killSwitch.IsActive(order.TenantID)
	if err != nil {
		return failCheck(models.CheckKillSwitch, fmt.Sprintf("kill switch check error: %v", err))
	}
	if active {
		reason := ""
		if state, err := pc.killSwitch.GetState(order.TenantID); err == nil && state != nil {
			reason = state.ActivationReason
		}
		msg := "Trading halted: kill switch is active"
		if reason != "" {
			msg = fmt.Sprintf("Trading halted: kill switch is active (%s)", reason)
		}
		return failCheck(models.CheckKillSwitch, msg)
	}
	return passCheck(models.CheckKillSwitch, "kill switch inactive")
}

// checkCircuitBreaker отклоняет ордер при разомкнутом breaker'е
func (pc *PreTradeChecker) checkCircuitBreaker(order *models.OrderRequest) models.RiskCheckDetail {
	result, err := pc.breaker.CheckBreakers(order.TenantID, order.StrategyID, order.AssetID)
	if err != nil {
		return failCheck(models.CheckCircuitBreaker, fmt.Sprintf("circuit breaker check error: %v", err))
	}
	if !result.AllClosed {
		return failCheck(models.CheckCircuitBreaker,
			fmt.Sprintf("Circuit breaker open: %s", strings.Join(result.OpenBreakers, ", ")))
	}
	return passCheck(models.CheckCircuitBreaker, "all circuit breakers closed")
}

// checkPositionLimits сравнивает кандидатную post-trade экспозицию
// с потолком каждого применимого лимита.
//
// Первый превышенный лимит формирует сообщение с currentValue,
// maxValue и wouldExceedBy. PERCENTAGE лимит без известной стоимости
// портфеля неразрешим и пропускается.
func (pc *PreTradeChecker) checkPositionLimits(order *models.OrderRequest, cfg *ValidateConfig) models.RiskCheckDetail {
	limits, err := pc.limits.FindApplicableLimits(order.TenantID, order.AssetID, order.StrategyID)
	if err != nil {
		return failCheck(models.CheckPositionLimits, fmt.Sprintf("position limits check error: %v", err))
	}

	orderValue := order.Value()
	var portfolioValue float64
	if cfg.PortfolioValue != nil {
		portfolioValue = *cfg.PortfolioValue
	}

	for i := range limits {
		limit := &limits[i]

		ceiling, ok := limit.EffectiveLimit(portfolioValue)
		if !ok {
			continue
		}

		candidate := limit.CurrentValue
		if order.Side == models.SideBuy {
			candidate += orderValue
		} else {
			candidate -= orderValue
		}

		if candidate > ceiling {
			wouldExceedBy := candidate - ceiling
			detail := failCheck(models.CheckPositionLimits,
				fmt.Sprintf("Position limit %d (%s) would be exceeded: current %.2f, max %.2f, would exceed by %.2f",
					limit.ID, limit.Scope, candidate, ceiling, wouldExceedBy))
			detail.CurrentValue = &candidate
			detail.LimitValue = &ceiling
			return detail
		}
	}
	return passCheck(models.CheckPositionLimits, "within position limits")
}

// checkDrawdown отклоняет ордер при критической просадке.
//
// Отсутствие настроенного состояния (ErrNoDrawdownState) - пропуск,
// не отказ: неотслеживаемая просадка не блокирует торговлю.
func (pc *PreTradeChecker) checkDrawdown(order *models.OrderRequest) models.RiskCheckDetail {
	allowed, err := pc.drawdown.IsTradingAllowed(order.TenantID, order.StrategyID)
	if err != nil {
		if errors.Is(err, ErrNoDrawdownState) {
			return passCheck(models.CheckDrawdown, "drawdown not tracked for this scope")
		}
		return failCheck(models.CheckDrawdown, fmt.Sprintf("drawdown check error: %v", err))
	}
	if !allowed {
		detail := failCheck(models.CheckDrawdown, "Trading halted: drawdown limit breached")
		if state, err := pc.drawdown.GetState(order.TenantID, order.StrategyID); err == nil && state != nil {
			detail.Message = fmt.Sprintf("Trading halted: drawdown %.2f%% exceeds maximum %.2f%%",
				state.DrawdownPercent, state.MaxThreshold)
			detail.CurrentValue = &state.DrawdownPercent
			detail.LimitValue = &state.MaxThreshold
		}
		return detail
	}
	return passCheck(models.CheckDrawdown, "drawdown within limits")
}

// checkVolatility отклоняет ордер при троттлинге инструмента.
//
// ErrNoVolatilityState - пропуск по той же логике, что и drawdown.
func (pc *PreTradeChecker) checkVolatility(order *models.OrderRequest) models.RiskCheckDetail {
	throttled, err := pc.volatility.IsThrottled(order.TenantID, order.AssetID)
	if err != nil {
		if errors.Is(err, ErrNoVolatilityState) {
			return passCheck(models.CheckVolatility, "volatility not tracked for this asset")
		}
		return failCheck(models.CheckVolatility, fmt.Sprintf("volatility check error: %v", err))
	}
	if throttled {
		return failCheck(models.CheckVolatility,
			fmt.Sprintf("Trading throttled: volatility spike on %s", order.AssetID))
	}
	return passCheck(models.CheckVolatility, "volatility within limits")
}

// checkCapital проверяет достаточность капитала для BUY ордеров.
//
// Проверка опциональна: без cfg.AvailableCapital пропускается.
// SELL освобождает капитал и не проверяется.
func (pc *PreTradeChecker) checkCapital(order *models.OrderRequest, cfg *ValidateConfig) models.RiskCheckDetail {
	if cfg.AvailableCapital == nil {
		return passCheck(models.CheckCapital, "capital check not configured")
	}
	if order.Side != models.SideBuy {
		return passCheck(models.CheckCapital, "capital check applies to BUY orders only")
	}

	orderValue := order.Value()
	available := *cfg.AvailableCapital
	if orderValue > available {
		detail := failCheck(models.CheckCapital,
			fmt.Sprintf("Insufficient capital: order value %.2f exceeds available %.2f", orderValue, available))
		detail.CurrentValue = &orderValue
		detail.LimitValue = &available
		return detail
	}
	return passCheck(models.CheckCapital, "sufficient capital")
}

// checkLeverage проверяет плечо ордера относительно портфеля.
//
// Требует и maxLeverage, и portfolioValue; без любого из них
// пропускается.
func (pc *PreTradeChecker) checkLeverage(order *models.OrderRequest, cfg *ValidateConfig) models.RiskCheckDetail {
	if cfg.MaxLeverage == nil || cfg.PortfolioValue == nil {
		return passCheck(models.CheckLeverage, "leverage check not configured")
	}
	portfolioValue := *cfg.PortfolioValue
	if portfolioValue <= 0 {
		return failCheck(models.CheckLeverage, "leverage check error: portfolio value is not positive")
	}

	leverage := order.Value() / portfolioValue
	maxLeverage := *cfg.MaxLeverage
	if leverage > maxLeverage {
		detail := failCheck(models.CheckLeverage,
			fmt.Sprintf("Leverage %.2fx exceeds maximum %.2fx", leverage, maxLeverage))
		detail.CurrentValue = &leverage
		detail.LimitValue = &maxLeverage
		return detail
	}
	return passCheck(models.CheckLeverage, "leverage within limits")
}

// buildRejectionReason собирает причину отказа из проваленных проверок.
//
// Одна проваленная проверка - её сообщение дословно; несколько -
// "Multiple checks failed: тип: сообщение; ..." в порядке checkOrder.
func buildRejectionReason(failed []models.RiskCheckDetail) string {
	if len(failed) == 0 {
		return ""
	}
	if len(failed) == 1 {
		return failed[0].Message
	}

	parts := make([]string, 0, len(failed))
	for _, c := range failed {
		parts = append(parts, fmt.Sprintf("%s: %s", c.CheckType, c.Message))
	}
	return "Multiple checks failed: " + strings.Join(parts, "; ")
}

// logDecision пишет структурную запись аудита со всеми семью исходами
func (pc *PreTradeChecker) logDecision(order *models.OrderRequest, result *models.RiskCheckResult) {
	logger := pc.logger.With(
		utils.OrderID(order.OrderID),
		utils.TenantID(order.TenantID),
		utils.Asset(order.AssetID),
		utils.Strategy(order.StrategyID),
		utils.Side(order.Side),
		utils.Quantity(order.Quantity),
		utils.Price(order.Price),
		utils.Bool("approved", result.Approved),
		utils.Latency(result.ProcessingTimeMs),
	)

	for _, c := range result.Checks {
		logger = logger.With(utils.Bool("check_"+strings.ToLower(c.CheckType), c.Passed))
	}

	if result.Approved {
		logger.Info("Order approved")
	} else {
		logger.Warn("Order rejected", utils.String("rejection_reason", result.RejectionReason))
	}
}

// ValidateOrThrow оборачивает Validate и возвращает структурную
// ошибку при отказе.
//
// Единственный путь, поднимающий ошибку из pre-trade валидации.
func (pc *PreTradeChecker) ValidateOrThrow(order *models.OrderRequest, cfg *ValidateConfig) (*models.RiskCheckResult, error) {
	result := pc.Validate(order, cfg)
	if !result.Approved {
		return result, &OrderRejectedError{
			OrderID: order.OrderID,
			Reason:  result.RejectionReason,
			Checks:  result.Checks,
		}
	}
	return result, nil
}

// IsTradingAllowed - дешёвый булев композит Kill Switch + Drawdown +
// Circuit Breaker для вызовов вне полного пайплайна ордера.
func (pc *PreTradeChecker) IsTradingAllowed(tenantID, strategyID string) bool {
	if active, err := pc.killSwitch.IsActive(tenantID); err != nil || active {
		return false
	}
	if allowed, err := pc.drawdown.IsTradingAllowed(tenantID, strategyID); err != nil {
		if !errors.Is(err, ErrNoDrawdownState) {
			return false
		}
	} else if !allowed {
		return false
	}
	result, err := pc.breaker.CheckBreakers(tenantID, strategyID, "")
	if err != nil || !result.AllClosed {
		return false
	}
	return true
}
