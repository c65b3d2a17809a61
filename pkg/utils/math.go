package utils

import (
	"math"
)

// math.go - математические утилиты риск-ядра
//
// Назначение:
// Вспомогательные функции для числовых проверок и расчётов.
// Все функции являются чистыми (pure functions) без побочных эффектов.
//
// Функции:
// - IsMultipleOf: проверка кратности (lot size, tick size) с допуском
// - AlmostEqual: сравнение с абсолютным допуском
// - CalculateWeightedAverage: средневзвешенная цена позиции
// - PercentOf / ChangePercent: процентные расчёты

// Именованные константы допусков.
//
// Семантика допусков поведенчески значима - не менять молча.
const (
	// RelativeTolerance - относительный допуск для проверки кратности
	// lot size / tick size. Поглощает дрейф плавающей точки при
	// накоплении объёмов.
	RelativeTolerance = 1e-6

	// ReconciliationTolerance - абсолютный допуск расхождения количества
	// при сверке внутренней позиции с данными биржи.
	ReconciliationTolerance = 1e-4

	// QuantityEpsilon - допуск точного воспроизведения количества
	// при повторном проигрывании последовательности исполнений.
	QuantityEpsilon = 1e-10
)

// IsMultipleOf проверяет, является ли value целым кратным step
// с относительным допуском RelativeTolerance.
//
// Используется для проверки объёма против lot size и цены против
// tick size. Относительный допуск нужен, потому что накопленные
// объёмы (0.1+0.2) дают дрейф последнего бита.
//
// Параметры:
//   - value: проверяемое значение (объём или цена)
//   - step: шаг биржи (lotSize или tickSize)
//
// Возвращает:
//   - true если value кратно step в пределах допуска
//   - true если step <= 0 (шаг не задан - проверка не применяется)
//
// Примеры:
//   - IsMultipleOf(0.003, 0.001) = true
//   - IsMultipleOf(0.0015, 0.001) = false (на пол-шага мимо)
//   - IsMultipleOf(0.30000000000000004, 0.1) = true (дрейф поглощён)
func IsMultipleOf(value, step float64) bool {
	if step <= 0 {
		return true
	}
	if value == 0 {
		return true
	}
	nearest := math.Round(value/step) * step
	return math.Abs(value-nearest) <= RelativeTolerance*math.Abs(value)
}

// AlmostEqual сравнивает два числа с абсолютным допуском
func AlmostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

// CalculateWeightedAverage вычисляет средневзвешенное значение.
//
// Используется для пересчёта средней цены позиции при докупке:
// новая средняя = Σ(price_i × qty_i) / Σ(qty_i).
//
// Параметры:
//   - values: слайс цен
//   - weights: слайс количеств
//
// Возвращает:
//   - средневзвешенное значение
//   - 0 если входные данные некорректны
func CalculateWeightedAverage(values, weights []float64) float64 {
	if len(values) == 0 || len(values) != len(weights) {
		return 0
	}

	var sumWeighted, sumWeights float64
	for i := range values {
		if weights[i] < 0 {
			continue // пропускаем отрицательные веса
		}
		sumWeighted += values[i] * weights[i]
		sumWeights += weights[i]
	}

	if sumWeights == 0 {
		return 0
	}
	return sumWeighted / sumWeights
}

// PercentOf возвращает долю part от total в процентах.
//
// Возвращает 0 если total <= 0.
func PercentOf(part, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return part / total * 100
}

// ChangePercent возвращает относительное отклонение value от base
// в процентах (по модулю).
//
// Используется для проверки отклонения цены лимитного ордера от
// текущей рыночной цены.
//
// Возвращает 0 если base <= 0.
func ChangePercent(value, base float64) float64 {
	if base <= 0 {
		return 0
	}
	return math.Abs(value-base) / base * 100
}

// Abs возвращает абсолютное значение числа.
func Abs(x float64) float64 {
	return math.Abs(x)
}

// Min возвращает минимум из двух чисел.
func Min(a, b float64) float64 {
	return math.Min(a, b)
}

// Max возвращает максимум из двух чисел.
func Max(a, b float64) float64 {
	return math.Max(a, b)
}

// Clamp ограничивает значение диапазоном [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
