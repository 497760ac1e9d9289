package orientation

import (
	"math"

	"github.com/mpi-hub/orientation-hub/internal/domain/gradebook"
	"github.com/mpi-hub/orientation-hub/internal/domain/ranking"
)

// StandingMessage - вид подсказки по отстающим предметам.
type StandingMessage string

const (
	// MessageAllAbove - все предметы не ниже среднего по секции.
	MessageAllAbove StandingMessage = "all_above"
	// MessageConcentrate - больше трёх предметов ниже среднего.
	MessageConcentrate StandingMessage = "concentrate"
	// MessageWorkOn - от одного до трёх предметов ниже среднего.
	MessageWorkOn StandingMessage = "work_on"
)

// maxBelowForWorkOn - сколько отстающих предметов ещё перечисляется поимённо.
const maxBelowForWorkOn = 3

// bestSubjectEpsilon - допуск сравнения с максимальной оценкой.
const bestSubjectEpsilon = 1e-9

// Standing - положение студента в секции.
type Standing struct {
	StudentID  string
	Average    float64
	Rank       ranking.Rank
	CohortSize int

	// TopPercent - rank/size·100 с округлением до 2 знаков; nil без данных.
	TopPercent *float64

	BestSubjects []string
	BestFinal    *float64
	BelowMean    []string
	Message      StandingMessage
}

// ComputeStanding вычисляет положение студента в его секции.
// ok=false, если студента нет в когорте.
func ComputeStanding(cohort *gradebook.Cohort, studentID string) (Standing, bool) {
	student, ok := cohort.Student(studentID)
	if !ok {
		return Standing{}, false
	}
	subjects := cohort.Catalog.All()

	st := Standing{
		StudentID: studentID,
		Average:   WeightedAverage(student, subjects, nil),
	}

	if len(subjects) > 0 && !cohort.IsEmpty() {
		scores := make(map[string]float64, cohort.Size())
		for _, s := range cohort.Students() {
			scores[s.ID] = WeightedAverage(s, subjects, nil)
		}
		r := ranking.FromScores(scores)
		st.Rank, st.CohortSize = r.RankOf(studentID)
		if pct, ok := r.TopPercent(studentID); ok {
			pct = gradebook.Round2(pct)
			st.TopPercent = &pct
		}
	}

	type graded struct {
		subject gradebook.Subject
		final   float64
	}
	var finals []graded
	for _, subj := range subjects {
		rec, ok := student.Grade(subj.Key())
		if ok && rec.HasFinal() {
			finals = append(finals, graded{subject: subj, final: *rec.Final})
		}
	}

	if len(finals) > 0 {
		best := math.Inf(-1)
		for _, g := range finals {
			best = math.Max(best, g.final)
		}
		st.BestFinal = &best
		for _, g := range finals {
			if math.Abs(g.final-best) < bestSubjectEpsilon {
				st.BestSubjects = append(st.BestSubjects, g.subject.Name)
			}
		}
	}

	for _, g := range finals {
		mean, ok := sectionSubjectMean(cohort, g.subject)
		if ok && g.final < mean {
			st.BelowMean = append(st.BelowMean, g.subject.Name)
		}
	}

	switch n := len(st.BelowMean); {
	case n == 0:
		st.Message = MessageAllAbove
	case n > maxBelowForWorkOn:
		st.Message = MessageConcentrate
	default:
		st.Message = MessageWorkOn
	}
	return st, true
}

// sectionSubjectMean - средняя выставленных итоговых оценок предмета по секции.
func sectionSubjectMean(cohort *gradebook.Cohort, subj gradebook.Subject) (float64, bool) {
	var sum float64
	var n int
	for _, s := range cohort.Students() {
		rec, ok := s.Grade(subj.Key())
		if ok && rec.HasFinal() {
			sum += *rec.Final
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
