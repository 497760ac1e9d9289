package orientation

import (
	"math"

	"github.com/mpi-hub/orientation-hub/internal/domain/gradebook"
	"github.com/mpi-hub/orientation-hub/internal/domain/ranking"
	"github.com/mpi-hub/orientation-hub/internal/domain/shared"
)

// verdictMinAverage - в быструю оценку попадают только студенты с mg строго выше.
const verdictMinAverage = 10.0

// Verdict - быстрая оценка OK/No по треку (используется в симуляции).
type Verdict struct {
	Track TrackID
	OK    bool
}

// Verdicts вычисляет быструю оценку по всем трекам.
//
// Трек с ранжированием проходит, если mg > 10 и ранг студента среди
// студентов с mg > 10 не хуже ceil(n·Share). Трек с AcceptIf проходит
// автоматически, если прошёл любой из перечисленных. Пороговый трек
// проходит при mg ≥ порога.
func (e *Engine) Verdicts(cohort *gradebook.Cohort, studentID string, overlay *gradebook.Overlay) ([]Verdict, error) {
	if _, ok := cohort.Student(studentID); !ok {
		return nil, shared.ErrStudentNotFound
	}

	means := e.CohortMeans(cohort, overlay)
	target := means[studentID]

	ok := make(map[TrackID]bool, len(e.tracks))
	for _, track := range e.tracks {
		switch track.Kind {
		case KindThreshold:
			ok[track.ID] = target.Average >= e.threshold.MinAverage
		default:
			ok[track.ID] = e.withinShare(cohort, track, means, studentID)
		}
	}

	out := make([]Verdict, 0, len(e.tracks))
	for _, track := range e.tracks {
		pass := ok[track.ID]
		for _, other := range track.Verdict.AcceptIf {
			pass = pass || ok[other]
		}
		out = append(out, Verdict{Track: track.ID, OK: pass})
	}
	return out, nil
}

func (e *Engine) withinShare(cohort *gradebook.Cohort, track Track, means map[string]Means, studentID string) bool {
	if track.Verdict.Share <= 0 || means[studentID].Average <= verdictMinAverage {
		return false
	}

	r := ranking.New()
	for _, s := range cohort.Students() {
		m := means[s.ID]
		if m.Average <= verdictMinAverage {
			continue
		}
		_ = r.Add(&ranking.Entry{StudentID: s.ID, Score: track.Score(m)})
	}
	r.Sort()

	rank, n := r.RankOf(studentID)
	cutoff := int(math.Ceil(float64(n) * track.Verdict.Share))
	return int(rank) <= cutoff
}
