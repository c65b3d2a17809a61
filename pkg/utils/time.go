package utils

import (
	"time"
)

// time.go - утилиты для работы со временем
//
// Назначение:
// Все внешние представления времени (wire/storage) - строки ISO-8601
// в UTC. Внутри ядра время хранится как time.Time и сравнивается
// монотонно. Эти функции - единственная точка конвертации.

// ISO8601Format - формат временных меток на проводе и в хранилище
const ISO8601Format = "2006-01-02T15:04:05.000Z07:00"

// FormatISO8601 форматирует время как ISO-8601 строку в UTC
//
// Пример:
//
//	FormatISO8601(t) // "2024-01-15T14:30:45.123Z"
func FormatISO8601(t time.Time) string {
	return t.UTC().Format(ISO8601Format)
}

// ParseISO8601 разбирает ISO-8601 строку во время UTC
//
// Принимает метки с миллисекундами и без них.
func ParseISO8601(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// NowUTC возвращает текущее время в UTC
func NowUTC() time.Time {
	return time.Now().UTC()
}

// SinceMs возвращает прошедшее время в миллисекундах
//
// Используется для заполнения processing_time_ms в результатах проверок.
func SinceMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

// WithinWindow проверяет, попадает ли t в скользящее окно
// [now-window, now].
//
// Используется трекером быстрых убытков и rate limiter'ом.
func WithinWindow(t, now time.Time, window time.Duration) bool {
	if t.After(now) {
		return false
	}
	return now.Sub(t) <= window
}
