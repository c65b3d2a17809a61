package exchange

import (
	"fmt"
	"strings"
	"time"

	"riskcore/internal/models"
	"riskcore/pkg/ratelimit"
	"riskcore/pkg/utils"
)

// safeguard.go - предохранитель между ядром и биржей
//
// Две обязанности:
// 1. Валидация параметров ордера против числовых ограничений биржи
//    (min/max размер, lot size, ценовой коридор, tick size, отклонение
//    от рыночной цены) до отправки - отклонённый биржей ордер стоит
//    дороже, чем отклонённый локально.
// 2. Учёт rate limit окон по биржам - решение "слать или ждать".

// ValidationResult - итог валидации ордера
//
// Valid == true тогда и только тогда, когда список нарушений пуст.
// Message - человекочитаемая сводка всех нарушений.
type ValidationResult struct {
	Valid      bool                    `json:"valid"`
	Violations []models.LimitViolation `json:"violations"`
	Message    string                  `json:"message,omitempty"`
}

// Safeguard валидирует ордера и ведёт rate limit окна бирж
type Safeguard struct {
	tracker *ratelimit.WindowTracker
	logger  *utils.Logger
}

// NewSafeguard создаёт предохранитель
func NewSafeguard(logger *utils.Logger) *Safeguard {
	if logger == nil {
		logger = utils.L()
	}
	return &Safeguard{
		tracker: ratelimit.NewWindowTracker(),
		logger:  logger.WithComponent("safeguard"),
	}
}

// ValidateOrder проверяет параметры ордера против ограничений биржи.
//
// Проверки:
//   - quantity >= minOrderSize и <= maxOrderSize
//   - quantity кратно lotSize (относительный допуск utils.RelativeTolerance)
//   - для LIMIT ордеров: цена в коридоре [minPrice, maxPrice],
//     кратна tickSize, и при известной рыночной цене отклонение
//     |price-currentPrice|/currentPrice*100 не превышает
//     maxPriceDeviationPercent
//
// Каждое нарушение записывается в типизированный список; Valid
// вычисляется как отсутствие нарушений. currentPrice <= 0 означает
// "рыночная цена неизвестна" - проверка отклонения пропускается.
func (s *Safeguard) ValidateOrder(order *models.OrderRequest, limits models.ExchangeLimits, currentPrice float64) ValidationResult {
	var violations []models.LimitViolation

	// Ограничения количества
	if limits.MinOrderSize > 0 && order.Quantity < limits.MinOrderSize {
		violations = append(violations, models.LimitViolation{
			Code:    models.ViolationMinOrderSize,
			Message: fmt.Sprintf("quantity %v below minimum order size %v", order.Quantity, limits.MinOrderSize),
			Value:   order.Quantity,
			Limit:   limits.MinOrderSize,
		})
	}
	if limits.MaxOrderSize > 0 && order.Quantity > limits.MaxOrderSize {
		violations = append(violations, models.LimitViolation{
			Code:    models.ViolationMaxOrderSize,
			Message: fmt.Sprintf("quantity %v above maximum order size %v", order.Quantity, limits.MaxOrderSize),
			Value:   order.Quantity,
			Limit:   limits.MaxOrderSize,
		})
	}
	if !utils.IsMultipleOf(order.Quantity, limits.LotSize) {
		violations = append(violations, models.LimitViolation{
			Code:    models.ViolationLotSize,
			Message: fmt.Sprintf("quantity %v is not a multiple of lot size %v", order.Quantity, limits.LotSize),
			Value:   order.Quantity,
			Limit:   limits.LotSize,
		})
	}

	// Ценовые ограничения применяются только к лимитным ордерам:
	// у рыночного ордера цены нет
	if order.Type == models.OrderTypeLimit {
		if limits.MinPrice > 0 && order.Price < limits.MinPrice {
			violations = append(violations, models.LimitViolation{
				Code:    models.ViolationPriceBelowMin,
				Message: fmt.Sprintf("price %v below minimum price %v", order.Price, limits.MinPrice),
				Value:   order.Price,
				Limit:   limits.MinPrice,
			})
		}
		if limits.MaxPrice > 0 && order.Price > limits.MaxPrice {
			violations = append(violations, models.LimitViolation{
				Code:    models.ViolationPriceAboveMax,
				Message: fmt.Sprintf("price %v above maximum price %v", order.Price, limits.MaxPrice),
				Value:   order.Price,
				Limit:   limits.MaxPrice,
			})
		}
		if !utils.IsMultipleOf(order.Price, limits.TickSize) {
			violations = append(violations, models.LimitViolation{
				Code:    models.ViolationTickSize,
				Message: fmt.Sprintf("price %v is not a multiple of tick size %v", order.Price, limits.TickSize),
				Value:   order.Price,
				Limit:   limits.TickSize,
			})
		}
		if currentPrice > 0 && limits.MaxPriceDeviationPercent > 0 {
			deviation := utils.ChangePercent(order.Price, currentPrice)
			if deviation > limits.MaxPriceDeviationPercent {
				violations = append(violations, models.LimitViolation{
					Code:    models.ViolationPriceDeviation,
					Message: fmt.Sprintf("price %v deviates %.2f%% from market price %v (max %.2f%%)", order.Price, deviation, currentPrice, limits.MaxPriceDeviationPercent),
					Value:   deviation,
					Limit:   limits.MaxPriceDeviationPercent,
				})
			}
		}
	}

	result := ValidationResult{
		Valid:      len(violations) == 0,
		Violations: violations,
	}
	if !result.Valid {
		result.Message = summarizeViolations(violations)
		s.logger.Warn("Order failed exchange validation",
			utils.OrderID(order.OrderID),
			utils.TenantID(order.TenantID),
			utils.Asset(order.AssetID),
			utils.Int("violations", len(violations)),
			utils.String("summary", result.Message),
		)
	}
	return result
}

// summarizeViolations собирает человекочитаемую сводку нарушений
func summarizeViolations(violations []models.LimitViolation) string {
	parts := make([]string, 0, len(violations))
	for _, v := range violations {
		parts = append(parts, v.Message)
	}
	return "Order validation failed: " + strings.Join(parts, "; ")
}

// UpdateRateLimitWindow записывает состояние окна, сообщённое биржей
// в заголовках ответа
func (s *Safeguard) UpdateRateLimitWindow(exchangeID string, limit, remaining int, resetAt time.Time) {
	s.tracker.Update(exchangeID, limit, remaining, resetAt)
}

// TrackRateLimit учитывает requestCount предстоящих запросов к бирже
// и возвращает рекомендацию трекера.
//
// Рекомендация advisory: метод никогда не спит, ждать или нет -
// решение вызывающего.
func (s *Safeguard) TrackRateLimit(exchangeID string, requestCount int, bufferPercent float64) ratelimit.TrackResult {
	result := s.tracker.Track(exchangeID, requestCount, bufferPercent)
	if result.ShouldWait {
		s.logger.Warn("Rate limit budget exhausted",
			utils.Exchange(exchangeID),
			utils.Int("request_count", result.State.RequestCount),
			utils.Float64("effective_limit", result.EffectiveLimit),
			utils.Float64("wait_ms", result.WaitMs),
		)
	}
	return result
}

// Tracker даёт прямой доступ к трекеру окон (для main wiring)
func (s *Safeguard) Tracker() *ratelimit.WindowTracker {
	return s.tracker
}
