package orientation

import (
	"github.com/mpi-hub/orientation-hub/internal/domain/gradebook"
	"github.com/mpi-hub/orientation-hub/internal/domain/ranking"
)

// Checkpoint - контрольная точка ряда "ранг во времени".
type Checkpoint struct {
	Label     string
	Semester  gradebook.Semester
	Component gradebook.Component
}

// Checkpoints - середина и конец каждого семестра.
var Checkpoints = []Checkpoint{
	{Label: "DS1", Semester: gradebook.SemesterOne, Component: gradebook.ComponentDS},
	{Label: "Final1", Semester: gradebook.SemesterOne, Component: gradebook.ComponentFinal},
	{Label: "DS2", Semester: gradebook.SemesterTwo, Component: gradebook.ComponentDS},
	{Label: "Final2", Semester: gradebook.SemesterTwo, Component: gradebook.ComponentFinal},
}

// ProgressPoint - ранг студента в контрольной точке.
type ProgressPoint struct {
	Checkpoint
	Value      float64
	Rank       ranking.Rank
	CohortSize int
}

// ComponentSum - сумма выставленных значений компонента по предметам семестра.
// Без единой оценки возвращает 0.
func ComponentSum(s *gradebook.Student, subjects []gradebook.Subject, component gradebook.Component, overlay *gradebook.Overlay) float64 {
	var total float64
	for _, subj := range subjects {
		rec, ok := overlay.Resolve(s, subj.Key())
		if !ok {
			continue
		}
		if v := rec.Value(component); v != nil {
			total += *v
		}
	}
	return total
}

// RankProgress строит ряд рангов по четырём контрольным точкам.
// Ранжируются сырые суммы компонентов, а не взвешенные итоговые оценки.
// Студент с суммой ≤ 0 получает худший ранг (размер когорты).
func RankProgress(cohort *gradebook.Cohort, studentID string, overlay *gradebook.Overlay) []ProgressPoint {
	points := make([]ProgressPoint, 0, len(Checkpoints))
	students := cohort.Students()

	for _, cp := range Checkpoints {
		subjects := cohort.Catalog.InSemester(cp.Semester)

		r := ranking.New()
		var target float64
		for _, s := range students {
			sum := ComponentSum(s, subjects, cp.Component, overlay)
			if s.ID == studentID {
				target = sum
			}
			_ = r.Add(&ranking.Entry{StudentID: s.ID, DisplayName: s.DisplayName(), Score: sum})
		}
		r.Sort()

		rank, size := r.RankOf(studentID)
		if target <= 0 {
			rank = ranking.Rank(size)
		}
		points = append(points, ProgressPoint{
			Checkpoint: cp,
			Value:      target,
			Rank:       rank,
			CohortSize: size,
		})
	}
	return points
}
