package orientation

import (
	"github.com/mpi-hub/orientation-hub/internal/domain/gradebook"
)

// WeightedAverage - средневзвешенный балл студента:
//
//	Σ(Final × коэффициент) / Σ коэффициент
//
// Суммы берутся только по предметам с выставленной итоговой оценкой.
// Если ни один предмет не вошёл, результат 0. Результат не округляется.
func WeightedAverage(s *gradebook.Student, subjects []gradebook.Subject, overlay *gradebook.Overlay) float64 {
	var weightedSum, totalWeight float64
	for _, subj := range subjects {
		rec, ok := overlay.Resolve(s, subj.Key())
		if !ok || !rec.HasFinal() {
			continue
		}
		weightedSum += *rec.Final * subj.Coefficient
		totalWeight += subj.Coefficient
	}
	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight
}
