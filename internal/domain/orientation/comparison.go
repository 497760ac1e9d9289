package orientation

import (
	"github.com/mpi-hub/orientation-hub/internal/domain/gradebook"
)

// SubjectComparison - оценка студента против исторической средней трека.
type SubjectComparison struct {
	Subject    string
	Student    *float64
	Historical float64
	Delta      *float64
}

// Compare сопоставляет лучшие итоговые оценки студента с историческими
// средними трека по каждому предмету истории. Порядок - по имени предмета.
func Compare(s *gradebook.Student, catalog *gradebook.Catalog, history TrackHistory, overlay *gradebook.Overlay) []SubjectComparison {
	subjects := history.Subjects()
	out := make([]SubjectComparison, 0, len(subjects))

	for _, name := range subjects {
		c := SubjectComparison{
			Subject:    name,
			Historical: history.SubjectMean(name),
		}
		for _, alias := range namesFor(name) {
			if v, ok := BestFinal(s, catalog, overlay, alias); ok {
				value := v
				delta := v - c.Historical
				c.Student = &value
				c.Delta = &delta
				break
			}
		}
		out = append(out, c)
	}
	return out
}
