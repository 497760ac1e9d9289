package orientation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpi-hub/orientation-hub/internal/domain/gradebook"
	"github.com/mpi-hub/orientation-hub/internal/domain/ranking"
	"github.com/mpi-hub/orientation-hub/internal/domain/shared"
)

func TestRankProgress(t *testing.T) {
	algo1 := subject("1", "algo1", gradebook.SemesterOne, 1)
	algo2 := subject("2", "algo2", gradebook.SemesterTwo, 1)

	a := newStudent("a", grades{
		algo1.Key(): {DS: gradebook.Grade(12), Final: gradebook.Grade(14)},
		algo2.Key(): {DS: gradebook.Grade(10)},
	})
	b := newStudent("b", grades{
		algo1.Key(): {DS: gradebook.Grade(15), Final: gradebook.Grade(11)},
		algo2.Key(): {DS: gradebook.Grade(8), Final: gradebook.Grade(9)},
	})
	c := newStudent("c", nil)
	cohort := gradebook.NewCohort("mpi", []*gradebook.Student{a, b, c}, []gradebook.Subject{algo1, algo2})

	points := RankProgress(cohort, "a", nil)
	require.Len(t, points, 4)

	labels := make([]string, 0, 4)
	ranks := make([]ranking.Rank, 0, 4)
	for _, p := range points {
		labels = append(labels, p.Label)
		ranks = append(ranks, p.Rank)
		assert.Equal(t, 3, p.CohortSize)
	}
	assert.Equal(t, []string{"DS1", "Final1", "DS2", "Final2"}, labels)
	assert.Equal(t, []ranking.Rank{2, 1, 1, 3}, ranks)
	assert.Equal(t, 12.0, points[0].Value)
	assert.Equal(t, 0.0, points[3].Value)

	for _, p := range RankProgress(cohort, "c", nil) {
		assert.Equal(t, ranking.Rank(3), p.Rank, p.Label)
	}

	t.Run("overlay moves the simulated checkpoint", func(t *testing.T) {
		overlay := gradebook.NewOverlay()
		overlay.Set("a", algo2.Key(), gradebook.GradeRecord{DS: gradebook.Grade(10), Final: gradebook.Grade(19)})

		points := RankProgress(cohort, "a", overlay)
		assert.Equal(t, ranking.Rank(1), points[3].Rank)
		assert.Equal(t, 19.0, points[3].Value)
	})
}

func TestComputeStanding(t *testing.T) {
	x := subject("x", "analyse1", gradebook.SemesterOne, 1)
	y := subject("y", "algebre1", gradebook.SemesterOne, 1)

	a := newStudent("a", grades{x.Key(): final(16), y.Key(): final(10)})
	b := newStudent("b", grades{x.Key(): final(12), y.Key(): final(14)})
	c := newStudent("c", grades{x.Key(): final(8)})
	cohort := gradebook.NewCohort("mpi", []*gradebook.Student{a, b, c}, []gradebook.Subject{x, y})

	st, ok := ComputeStanding(cohort, "a")
	require.True(t, ok)
	assert.Equal(t, 13.0, st.Average)
	assert.Equal(t, ranking.Rank(1), st.Rank)
	assert.Equal(t, 3, st.CohortSize)
	require.NotNil(t, st.TopPercent)
	assert.Equal(t, 33.33, *st.TopPercent)
	assert.Equal(t, []string{"analyse1"}, st.BestSubjects)
	require.NotNil(t, st.BestFinal)
	assert.Equal(t, 16.0, *st.BestFinal)
	assert.Equal(t, []string{"algebre1"}, st.BelowMean)
	assert.Equal(t, MessageWorkOn, st.Message)

	tied, _ := ComputeStanding(cohort, "b")
	assert.Equal(t, ranking.Rank(1), tied.Rank)
	assert.Empty(t, tied.BelowMean)
	assert.Equal(t, MessageAllAbove, tied.Message)

	last, _ := ComputeStanding(cohort, "c")
	assert.Equal(t, ranking.Rank(3), last.Rank)
	assert.Equal(t, 100.0, *last.TopPercent)

	_, ok = ComputeStanding(cohort, "ghost")
	assert.False(t, ok)
}

func TestComputeStanding_ConcentrateAndTiedBest(t *testing.T) {
	subjects := []gradebook.Subject{
		subject("1", "analyse1", gradebook.SemesterOne, 1),
		subject("2", "algebre1", gradebook.SemesterOne, 1),
		subject("3", "algo1", gradebook.SemesterOne, 1),
		subject("4", "prog1", gradebook.SemesterOne, 1),
	}
	weak := grades{}
	strong := grades{}
	for _, s := range subjects {
		weak[s.Key()] = final(5)
		strong[s.Key()] = final(15)
	}
	cohort := gradebook.NewCohort("mpi",
		[]*gradebook.Student{newStudent("e", weak), newStudent("f", strong)}, subjects)

	e, _ := ComputeStanding(cohort, "e")
	assert.Len(t, e.BelowMean, 4)
	assert.Equal(t, MessageConcentrate, e.Message)

	f, _ := ComputeStanding(cohort, "f")
	assert.Equal(t, []string{"analyse1", "algebre1", "algo1", "prog1"}, f.BestSubjects)
	assert.Equal(t, MessageAllAbove, f.Message)
}

func TestComputeStanding_NoGrades(t *testing.T) {
	x := subject("x", "analyse1", gradebook.SemesterOne, 1)
	cohort := gradebook.NewCohort("mpi", []*gradebook.Student{newStudent("a", nil)}, []gradebook.Subject{x})

	st, ok := ComputeStanding(cohort, "a")
	require.True(t, ok)
	assert.Nil(t, st.BestFinal)
	assert.Empty(t, st.BestSubjects)
	assert.Equal(t, MessageAllAbove, st.Message)
}

func TestVerdicts(t *testing.T) {
	cohort := logicCohort(map[string]float64{"s1": 16, "s2": 14, "s3": 12, "s4": 11, "s5": 9})
	e := newTestEngine(t, nil)

	verdicts := func(id string) map[TrackID]bool {
		t.Helper()
		vs, err := e.Verdicts(cohort, id, nil)
		require.NoError(t, err)
		out := make(map[TrackID]bool, len(vs))
		for _, v := range vs {
			out[v.Track] = v.OK
		}
		return out
	}

	assert.Equal(t, map[TrackID]bool{TrackGL: true, TrackRT: true, TrackIIA: true, TrackIMI: true}, verdicts("s1"))
	assert.Equal(t, map[TrackID]bool{TrackGL: false, TrackRT: true, TrackIIA: true, TrackIMI: true}, verdicts("s2"))
	assert.Equal(t, map[TrackID]bool{TrackGL: false, TrackRT: false, TrackIIA: false, TrackIMI: true}, verdicts("s3"))
	assert.Equal(t, map[TrackID]bool{TrackGL: false, TrackRT: false, TrackIIA: false, TrackIMI: false}, verdicts("s5"))

	_, err := e.Verdicts(cohort, "ghost", nil)
	assert.True(t, shared.IsNotFound(err))
}

func TestVerdicts_TiedAveragesShareTheCutoff(t *testing.T) {
	cohort := logicCohort(map[string]float64{"s1": 16, "s2": 16, "s3": 12, "s4": 11})
	e := newTestEngine(t, nil)

	// GL пропускает четверть из четырёх, но s1 и s2 оба на первом месте.
	for id, want := range map[string]bool{"s1": true, "s2": true, "s3": false} {
		vs, err := e.Verdicts(cohort, id, nil)
		require.NoError(t, err)
		for _, v := range vs {
			if v.Track == TrackGL {
				assert.Equal(t, want, v.OK, id)
			}
		}
	}
}

func TestVerdicts_ExactlyTenDoesNotQualify(t *testing.T) {
	cohort := logicCohort(map[string]float64{"s1": 10})
	e := newTestEngine(t, nil)

	vs, err := e.Verdicts(cohort, "s1", nil)
	require.NoError(t, err)
	for _, v := range vs {
		if v.Track == TrackIMI {
			assert.True(t, v.OK)
			continue
		}
		assert.False(t, v.OK, v.Track)
	}
}

func TestCompare(t *testing.T) {
	an1 := subject("1", "analyse1", gradebook.SemesterOne, 1)
	catalog := gradebook.NewCatalog([]gradebook.Subject{an1})
	st := newStudent("a", grades{an1.Key(): final(15)})

	history := TrackHistory{
		2022: {"analyse1": 12, "programmation": 14},
		2023: {"analyse1": 14, "prog1": 16},
	}

	rows := Compare(st, catalog, history, nil)
	require.Len(t, rows, 2)

	assert.Equal(t, SubjectAnalyse1, rows[0].Subject)
	assert.Equal(t, 13.0, rows[0].Historical)
	require.NotNil(t, rows[0].Student)
	assert.Equal(t, 15.0, *rows[0].Student)
	assert.Equal(t, 2.0, *rows[0].Delta)

	assert.Equal(t, SubjectProg1, rows[1].Subject)
	assert.Equal(t, 15.0, rows[1].Historical)
	assert.Nil(t, rows[1].Student)
	assert.Nil(t, rows[1].Delta)
}

func TestSubjectTable(t *testing.T) {
	algo := subject("1", "algo1", gradebook.SemesterTwo, 1)
	algo.HasTP = true
	logic := subject("2", SubjectLogic, gradebook.SemesterOne, 1)
	lang := subject("3", "anglais", gradebook.SemesterTwo, 1)

	a := newStudent("a", grades{
		algo.Key():  {DS: gradebook.Grade(12), TP: gradebook.Grade(14), Exam: gradebook.Grade(10), Final: gradebook.Grade(11.5)},
		logic.Key(): {DS: gradebook.Grade(9), TP: gradebook.Grade(20), Final: gradebook.Grade(9)},
	})
	b := newStudent("b", grades{
		algo.Key():  {DS: gradebook.Grade(15), Exam: gradebook.Grade(16), Final: gradebook.Grade(15)},
		logic.Key(): final(12),
	})
	c := newStudent("c", grades{
		algo.Key():  {DS: gradebook.Grade(10), TP: gradebook.Grade(11), Final: gradebook.Grade(15)},
		logic.Key(): {DS: gradebook.Grade(7)},
	})
	cohort := gradebook.NewCohort("mpi", []*gradebook.Student{a, b, c}, []gradebook.Subject{algo, logic, lang})

	rows, ok := SubjectTable(cohort, "a")
	require.True(t, ok)
	require.Len(t, rows, 3)

	// первый семестр идёт раньше второго
	assert.Equal(t, "2", rows[0].Subject.ID)
	assert.Equal(t, gradebook.SemesterOne, rows[0].Semester)

	sl := rows[0]
	assert.Nil(t, sl.Own.TP, "TP is hidden for subjects without TP")
	assert.Nil(t, sl.Means.TP)
	require.NotNil(t, sl.Means.DS)
	assert.Equal(t, 8.0, *sl.Means.DS)
	assert.Nil(t, sl.Means.Exam)
	require.NotNil(t, sl.Means.Final)
	assert.Equal(t, 10.5, *sl.Means.Final)
	assert.Equal(t, ranking.Rank(2), sl.Rank)
	assert.Equal(t, 2, sl.Graded)

	al := rows[1]
	require.NotNil(t, al.Own.TP)
	assert.Equal(t, 14.0, *al.Own.TP)
	require.NotNil(t, al.Means.TP)
	assert.Equal(t, 12.5, *al.Means.TP)
	assert.Equal(t, 12.33, *al.Means.DS)
	assert.Equal(t, 13.0, *al.Means.Exam)
	assert.Equal(t, 13.83, *al.Means.Final)
	assert.Equal(t, ranking.Rank(3), al.Rank)
	assert.Equal(t, 3, al.Graded)

	en := rows[2]
	assert.True(t, en.Own.IsEmpty())
	assert.True(t, en.Means.IsEmpty())
	assert.Equal(t, ranking.Rank(0), en.Rank)
	assert.Zero(t, en.Graded)

	t.Run("tied finals share a rank", func(t *testing.T) {
		rows, ok := SubjectTable(cohort, "c")
		require.True(t, ok)
		assert.Equal(t, ranking.Rank(1), rows[1].Rank)
		assert.Equal(t, ranking.Rank(0), rows[0].Rank, "no final, no rank")
	})

	_, ok = SubjectTable(cohort, "zz")
	assert.False(t, ok)
}
