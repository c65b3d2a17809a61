package ratelimit

import (
	"sync"
	"time"
)

// limiter.go - контроль частоты запросов к API бирж
//
// Два механизма:
//
// 1. WindowTracker - учёт окна rate limit'а, которое объявляет сама биржа
//    (заголовки X-RateLimit-*). Ядро не шлёт запросы само, оно советует
//    вызывающему, нужно ли подождать до сброса окна.
//
// 2. SlidingWindowLimiter - локальный скользящий лимит "N запросов в окно"
//    для случаев, когда биржа не сообщает своё состояние.

// DefaultBufferPercent - запас от объявленного лимита биржи.
// Останавливаемся заранее, не доводя счётчик до верхней границы.
const DefaultBufferPercent = 10

// WindowState - состояние окна rate limit'а одной биржи
type WindowState struct {
	Limit        int       `json:"limit"`         // объявленный лимит окна
	Remaining    int       `json:"remaining"`     // остаток по данным биржи
	ResetAt      time.Time `json:"reset_at"`      // момент сброса окна
	RequestCount int       `json:"request_count"` // накоплено запросов в текущем окне
}

// TrackResult - рекомендация трекера по итогам учёта запроса
type TrackResult struct {
	ShouldWait     bool    `json:"should_wait"`
	WaitMs         float64 `json:"wait_ms"`
	EffectiveLimit float64 `json:"effective_limit"`
	State          WindowState
}

// WindowTracker ведёт окна rate limit'ов по биржам.
//
// Потокобезопасен. Окно создаётся при первом Update по exchangeID
// и сбрасывается, когда текущее время достигает ResetAt.
type WindowTracker struct {
	mu      sync.Mutex
	windows map[string]*WindowState

	// now подменяется в тестах
	now func() time.Time
}

// NewWindowTracker создаёт трекер окон
func NewWindowTracker() *WindowTracker {
	return &WindowTracker{
		windows: make(map[string]*WindowState),
		now:     time.Now,
	}
}

// Update записывает состояние окна, сообщённое биржей
// (обычно из заголовков ответа).
func (wt *WindowTracker) Update(exchangeID string, limit, remaining int, resetAt time.Time) {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	w := wt.windows[exchangeID]
	if w == nil {
		w = &WindowState{}
		wt.windows[exchangeID] = w
	}
	w.Limit = limit
	w.Remaining = remaining
	w.ResetAt = resetAt
}

// Track учитывает requestCount предстоящих запросов и возвращает
// рекомендацию: можно слать сейчас или подождать до сброса окна.
//
// Семантика:
//   - если окно истекло (now >= ResetAt), счётчик обнуляется и Remaining
//     восстанавливается до Limit
//   - effectiveLimit = limit * (1 - bufferPercent/100); запас защищает
//     от расхождения локального счётчика с биржевым
//   - shouldWait = (накоплено с учётом requestCount) >= effectiveLimit
//   - waitMs = время до сброса окна (0 если сброс в прошлом)
//
// При bufferPercent <= 0 применяется DefaultBufferPercent.
func (wt *WindowTracker) Track(exchangeID string, requestCount int, bufferPercent float64) TrackResult {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	if bufferPercent <= 0 {
		bufferPercent = DefaultBufferPercent
	}

	w := wt.windows[exchangeID]
	if w == nil {
		w = &WindowState{}
		wt.windows[exchangeID] = w
	}

	now := wt.now()

	// Сброс истёкшего окна
	if !w.ResetAt.IsZero() && !now.Before(w.ResetAt) {
		w.RequestCount = 0
		w.Remaining = w.Limit
	}

	w.RequestCount += requestCount

	effectiveLimit := float64(w.Limit) * (1 - bufferPercent/100)

	result := TrackResult{
		EffectiveLimit: effectiveLimit,
		State:          *w,
	}

	// Лимит неизвестен (биржа ещё ничего не сообщала) - не тормозим
	if w.Limit <= 0 {
		return result
	}

	if float64(w.RequestCount) >= effectiveLimit {
		result.ShouldWait = true
		if w.ResetAt.After(now) {
			result.WaitMs = float64(w.ResetAt.Sub(now).Microseconds()) / 1000
		}
	}

	return result
}

// GetState возвращает копию состояния окна биржи
func (wt *WindowTracker) GetState(exchangeID string) (WindowState, bool) {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	w, ok := wt.windows[exchangeID]
	if !ok {
		return WindowState{}, false
	}
	return *w, true
}

// ============================================================
// SlidingWindowLimiter
// ============================================================

// SlidingWindowLimiter - локальный лимит "не более maxRequests
// за window" по произвольному ключу (биржа, эндпоинт).
//
// Хранит временные метки запросов; метки старше окна отбрасываются
// при каждой проверке.
type SlidingWindowLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	requests    map[string][]time.Time

	now func() time.Time
}

// NewSlidingWindowLimiter создаёт лимитер
//
// Параметры:
//   - maxRequests: максимум запросов в окне (<=0 даёт 10)
//   - window: длительность окна (<=0 даёт 1 секунду)
func NewSlidingWindowLimiter(maxRequests int, window time.Duration) *SlidingWindowLimiter {
	if maxRequests <= 0 {
		maxRequests = 10
	}
	if window <= 0 {
		window = time.Second
	}
	return &SlidingWindowLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
		now:         time.Now,
	}
}

// prune отбрасывает метки старше окна
// ВАЖНО: вызывается под lock'ом
func (sl *SlidingWindowLimiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-sl.window)
	stamps := sl.requests[key]

	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	sl.requests[key] = kept
	return kept
}

// CanMakeRequest проверяет без записи, влезает ли ещё один запрос в окно
func (sl *SlidingWindowLimiter) CanMakeRequest(key string) bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	return len(sl.prune(key, sl.now())) < sl.maxRequests
}

// Record фиксирует выполненный запрос
func (sl *SlidingWindowLimiter) Record(key string) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.requests[key] = append(sl.prune(key, sl.now()), sl.now())
}

// Allow атомарно проверяет и при успехе фиксирует запрос
//
// Возвращает false если лимит окна исчерпан.
func (sl *SlidingWindowLimiter) Allow(key string) bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	now := sl.now()
	kept := sl.prune(key, now)
	if len(kept) >= sl.maxRequests {
		return false
	}
	sl.requests[key] = append(kept, now)
	return true
}
