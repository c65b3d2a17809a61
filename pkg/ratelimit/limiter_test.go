package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// ============================================================
// Тесты WindowTracker
// ============================================================

func newTestTracker(now time.Time) (*WindowTracker, *time.Time) {
	current := now
	wt := NewWindowTracker()
	wt.now = func() time.Time { return current }
	return wt, &current
}

func TestWindowTracker_UnknownLimit(t *testing.T) {
	wt, _ := newTestTracker(time.Now())

	// Биржа ещё не сообщала лимит - трекер не тормозит
	result := wt.Track("binance", 1, 10)

	if result.ShouldWait {
		t.Error("Track should not wait when limit is unknown")
	}
	if result.State.RequestCount != 1 {
		t.Errorf("RequestCount = %d, want 1", result.State.RequestCount)
	}
}

func TestWindowTracker_EffectiveLimit(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	wt, _ := newTestTracker(now)

	wt.Update("binance", 100, 100, now.Add(time.Minute))

	result := wt.Track("binance", 1, 10)

	if result.EffectiveLimit != 90 {
		t.Errorf("EffectiveLimit = %v, want 90 (limit 100, buffer 10%%)", result.EffectiveLimit)
	}
	if result.ShouldWait {
		t.Error("Should not wait at 1 of 90")
	}
}

func TestWindowTracker_ShouldWaitAtBuffer(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	wt, _ := newTestTracker(now)

	wt.Update("binance", 100, 100, now.Add(time.Minute))

	// Накапливаем 89 запросов - ещё не достигли 90
	result := wt.Track("binance", 89, 10)
	if result.ShouldWait {
		t.Fatal("Should not wait at 89 of 90")
	}

	// Ещё один запрос доводит до 90 - это граница effectiveLimit
	result = wt.Track("binance", 1, 10)
	if !result.ShouldWait {
		t.Fatal("Should wait at 90 of 90 (effective limit reached)")
	}
	if result.WaitMs <= 0 {
		t.Errorf("WaitMs = %v, want > 0", result.WaitMs)
	}
	// До сброса окна ровно минута
	if result.WaitMs != 60000 {
		t.Errorf("WaitMs = %v, want 60000", result.WaitMs)
	}
}

func TestWindowTracker_DefaultBuffer(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	wt, _ := newTestTracker(now)

	wt.Update("okx", 100, 100, now.Add(time.Minute))

	// bufferPercent = 0 применяет DefaultBufferPercent
	result := wt.Track("okx", 1, 0)
	if result.EffectiveLimit != 90 {
		t.Errorf("EffectiveLimit = %v, want 90 with default buffer", result.EffectiveLimit)
	}
}

func TestWindowTracker_WindowReset(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	wt, current := newTestTracker(now)

	wt.Update("bybit", 10, 10, now.Add(time.Minute))

	// Исчерпываем окно
	result := wt.Track("bybit", 9, 10)
	if !result.ShouldWait {
		t.Fatal("Should wait at 9 of 9 (effective limit)")
	}

	// Сдвигаем время за ResetAt - окно сбрасывается
	*current = now.Add(time.Minute + time.Second)

	result = wt.Track("bybit", 1, 10)
	if result.ShouldWait {
		t.Error("Should not wait after window reset")
	}
	if result.State.RequestCount != 1 {
		t.Errorf("RequestCount after reset = %d, want 1", result.State.RequestCount)
	}
	if result.State.Remaining != 10 {
		t.Errorf("Remaining after reset = %d, want 10", result.State.Remaining)
	}
}

func TestWindowTracker_PerExchangeIsolation(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	wt, _ := newTestTracker(now)

	wt.Update("binance", 10, 10, now.Add(time.Minute))
	wt.Update("okx", 100, 100, now.Add(time.Minute))

	// Исчерпываем binance
	result := wt.Track("binance", 9, 10)
	if !result.ShouldWait {
		t.Fatal("binance should wait")
	}

	// okx не затронут
	result = wt.Track("okx", 1, 10)
	if result.ShouldWait {
		t.Error("okx should not wait")
	}
}

func TestWindowTracker_GetState(t *testing.T) {
	now := time.Now()
	wt, _ := newTestTracker(now)

	if _, ok := wt.GetState("unknown"); ok {
		t.Error("GetState should return false for unknown exchange")
	}

	wt.Update("gate", 50, 42, now.Add(time.Minute))

	state, ok := wt.GetState("gate")
	if !ok {
		t.Fatal("GetState should return true")
	}
	if state.Limit != 50 || state.Remaining != 42 {
		t.Errorf("State = %+v", state)
	}
}

func TestWindowTracker_Concurrent(t *testing.T) {
	wt := NewWindowTracker()
	wt.Update("binance", 1000000, 1000000, time.Now().Add(time.Hour))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				wt.Track("binance", 1, 10)
			}
		}()
	}
	wg.Wait()

	state, _ := wt.GetState("binance")
	if state.RequestCount != 1000 {
		t.Errorf("RequestCount = %d, want 1000", state.RequestCount)
	}
}

// ============================================================
// Тесты SlidingWindowLimiter
// ============================================================

func newTestLimiter(maxRequests int, window time.Duration, now time.Time) (*SlidingWindowLimiter, *time.Time) {
	current := now
	sl := NewSlidingWindowLimiter(maxRequests, window)
	sl.now = func() time.Time { return current }
	return sl, &current
}

func TestSlidingWindowLimiter_BlocksAtLimit(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	sl, _ := newTestLimiter(3, time.Second, now)

	for i := 0; i < 3; i++ {
		if !sl.Allow("binance") {
			t.Fatalf("Allow #%d should succeed", i+1)
		}
	}

	if sl.Allow("binance") {
		t.Error("Allow #4 should fail within the window")
	}
	if sl.CanMakeRequest("binance") {
		t.Error("CanMakeRequest should be false at limit")
	}
}

func TestSlidingWindowLimiter_WindowSlides(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	sl, current := newTestLimiter(2, time.Second, now)

	sl.Record("binance")
	*current = now.Add(500 * time.Millisecond)
	sl.Record("binance")

	if sl.CanMakeRequest("binance") {
		t.Fatal("Window full, CanMakeRequest should be false")
	}

	// Через 600мс первая метка выпадает из окна
	*current = now.Add(1100 * time.Millisecond)

	if !sl.CanMakeRequest("binance") {
		t.Error("First timestamp expired, CanMakeRequest should be true")
	}
	if !sl.Allow("binance") {
		t.Error("Allow should succeed after first timestamp expired")
	}
}

func TestSlidingWindowLimiter_KeyIsolation(t *testing.T) {
	now := time.Now()
	sl, _ := newTestLimiter(1, time.Second, now)

	if !sl.Allow("binance") {
		t.Fatal("binance first request should pass")
	}
	if sl.Allow("binance") {
		t.Fatal("binance second request should fail")
	}
	if !sl.Allow("okx") {
		t.Error("okx should not be affected by binance")
	}
}

func TestSlidingWindowLimiter_Defaults(t *testing.T) {
	sl := NewSlidingWindowLimiter(0, 0)

	if sl.maxRequests != 10 {
		t.Errorf("maxRequests = %d, want 10", sl.maxRequests)
	}
	if sl.window != time.Second {
		t.Errorf("window = %v, want 1s", sl.window)
	}
}

func TestSlidingWindowLimiter_Concurrent(t *testing.T) {
	sl := NewSlidingWindowLimiter(50, time.Hour)

	var wg sync.WaitGroup
	allowed := make(chan bool, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- sl.Allow("binance")
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for ok := range allowed {
		if ok {
			count++
		}
	}
	if count != 50 {
		t.Errorf("Allowed %d requests, want exactly 50", count)
	}
}
