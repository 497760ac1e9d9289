package orientation

import (
	"math"
)

// Quartile - квартиль ранга: 1 = лучшие 25%, 4 = худшие 25%.
type Quartile int

// QuartileBases - базовая вероятность по квартилям Q1..Q4.
type QuartileBases [4]float64

// For возвращает базу для квартиля (0 вне диапазона).
func (b QuartileBases) For(q Quartile) float64 {
	if q < 1 || q > 4 {
		return 0
	}
	return b[q-1]
}

// QuartileOf определяет квартиль ранга в когорте размера total.
// Границы: rank ≤ total·0.25, ≤ total·0.5, ≤ total·0.75.
// Для пустой когорты возвращает 0.
func QuartileOf(rank, total int) Quartile {
	if total <= 0 {
		return 0
	}
	r := float64(rank)
	n := float64(total)
	switch {
	case r <= n*0.25:
		return 1
	case r <= n*0.50:
		return 2
	case r <= n*0.75:
		return 3
	default:
		return 4
	}
}

// DecayFactor - линейное затухание внутри квартиля: 1 на лучшей позиции
// квартиля, к 0 на худшей. Результат в [0, 1].
func DecayFactor(rank, total int) float64 {
	q := QuartileOf(rank, total)
	if q == 0 {
		return 0
	}
	size := float64(total) / 4.0
	position := float64(rank-1) - float64(q-1)*size
	if position < 0 {
		position = 0
	}
	return clamp(1-position/size, 0, 1)
}

// RankFactor - база квартиля с учётом затухания (0..100).
func RankFactor(rank, total int, bases QuartileBases) float64 {
	return bases.For(QuartileOf(rank, total)) * DecayFactor(rank, total)
}

// BenchmarkRatio = min(score/benchmark, 1)·100.
// Нулевой, отрицательный или неопределённый бенчмарк даёт 0.
func BenchmarkRatio(score, benchmark float64) float64 {
	if benchmark <= 0 || math.IsNaN(benchmark) || math.IsNaN(score) {
		return 0
	}
	return math.Min(score/benchmark, 1.0) * 100
}

// RankedEligibility - шансы трека с ранжированием, в [0, 100].
func RankedEligibility(score, benchmark float64, rank, total int, bases QuartileBases) float64 {
	ratio := BenchmarkRatio(score, benchmark)
	if ratio == 0 {
		return 0
	}
	return clamp(ratio*RankFactor(rank, total, bases)/100, 0, 100)
}

// ThresholdRule - правило порогового трека.
type ThresholdRule struct {
	// MinAverage - минимальный mg (включительно).
	MinAverage float64
	// Value - значение шансов при выполнении порога.
	Value float64
}

// DefaultThresholdRule - mg ≥ 10 даёт 90.
func DefaultThresholdRule() ThresholdRule {
	return ThresholdRule{MinAverage: 10.0, Value: 90.0}
}

// Eligibility возвращает Value, если average ≥ MinAverage, иначе 0.
func (r ThresholdRule) Eligibility(average float64) float64 {
	if average >= r.MinAverage {
		return clamp(r.Value, 0, 100)
	}
	return 0
}

// DefaultEligibleCutoff - порог бинарного значка "eligible".
const DefaultEligibleCutoff = 50.0

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(v, hi))
}
