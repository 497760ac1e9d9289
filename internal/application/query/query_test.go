package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpi-hub/orientation-hub/internal/domain/gradebook"
	"github.com/mpi-hub/orientation-hub/internal/domain/orientation"
	"github.com/mpi-hub/orientation-hub/internal/domain/ranking"
	"github.com/mpi-hub/orientation-hub/internal/domain/shared"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeRepo struct {
	students []*gradebook.Student
	subjects []gradebook.Subject
	err      error
}

func (r *fakeRepo) ListStudents(_ context.Context, _ string) ([]*gradebook.Student, error) {
	return r.students, r.err
}

func (r *fakeRepo) ListSubjects(_ context.Context, _ string) ([]gradebook.Subject, error) {
	return r.subjects, r.err
}

type fakeReportCache struct {
	mu   sync.Mutex
	data map[string][]byte
	hits int
}

func newFakeReportCache() *fakeReportCache {
	return &fakeReportCache{data: make(map[string][]byte)}
}

func (c *fakeReportCache) GetReport(_ context.Context, section, fp, id string, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[section+"|"+fp+"|"+id]
	if !ok {
		return errors.New("miss")
	}
	c.hits++
	return json.Unmarshal(raw, dest)
}

func (c *fakeReportCache) SetReport(_ context.Context, section, fp, id string, report any) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[section+"|"+fp+"|"+id] = raw
	return nil
}

type fakeRankingCache struct {
	rankings map[string]*ranking.Ranking
	prints   map[string]string
	stores   int
}

func newFakeRankingCache() *fakeRankingCache {
	return &fakeRankingCache{rankings: map[string]*ranking.Ranking{}, prints: map[string]string{}}
}

func (c *fakeRankingCache) Page(_ context.Context, section, track, fp string, offset, limit int) (*ranking.Page, error) {
	r, ok := c.rankings[section+"|"+track]
	if !ok || c.prints[section+"|"+track] != fp {
		return nil, errors.New("miss")
	}
	return r.Page(offset, limit), nil
}

func (c *fakeRankingCache) Around(_ context.Context, section, track, fp, studentID string, radius int) (*ranking.Page, error) {
	r, ok := c.rankings[section+"|"+track]
	if !ok || c.prints[section+"|"+track] != fp {
		return nil, errors.New("miss")
	}
	p, ok := r.Neighbors(studentID, radius)
	if !ok {
		return nil, errors.New("miss")
	}
	return p, nil
}

func (c *fakeRankingCache) Store(_ context.Context, section, track, fp string, r *ranking.Ranking, _ time.Duration) error {
	c.rankings[section+"|"+track] = r
	c.prints[section+"|"+track] = fp
	c.stores++
	return nil
}

type fakeHistory map[orientation.TrackID]orientation.TrackHistory

func (h fakeHistory) Track(id orientation.TrackID) (orientation.TrackHistory, bool) {
	th, ok := h[id]
	return th, ok
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

var logicSubject = gradebook.Subject{
	ID:          "L",
	Name:        orientation.SubjectLogic,
	Section:     "mpi",
	Semester:    gradebook.SemesterTwo,
	Weights:     gradebook.Weights{DS: 0.4, Exam: 0.6},
	Coefficient: 1,
}

func student(t *testing.T, id string, final float64) *gradebook.Student {
	t.Helper()
	s, err := gradebook.NewStudent(id, "First"+id, "Last"+id, "mpi")
	require.NoError(t, err)
	s.SetGrade(logicSubject.Key(), gradebook.GradeRecord{Final: gradebook.Grade(final)})
	return s
}

// Единственный предмет - логика, поэтому GL = 3 × итоговая оценка.
func newRepo(t *testing.T) *fakeRepo {
	return &fakeRepo{
		students: []*gradebook.Student{
			student(t, "a", 15),
			student(t, "b", 12),
			student(t, "c", 8),
		},
		subjects: []gradebook.Subject{logicSubject},
	}
}

func newEngine(t *testing.T) *orientation.Engine {
	t.Helper()
	e, err := orientation.NewEngine(orientation.Config{
		Tracks: orientation.DefaultTracks(),
		Benchmarks: orientation.Benchmarks{
			orientation.TrackGL:  40,
			orientation.TrackRT:  40,
			orientation.TrackIIA: 40,
		},
		EligibleCutoff: orientation.DefaultEligibleCutoff,
	})
	require.NoError(t, err)
	return e
}

// ─────────────────────────────────────────────────────────────────────────────
// Fingerprint
// ─────────────────────────────────────────────────────────────────────────────

func TestFingerprint(t *testing.T) {
	repo := newRepo(t)
	c1 := gradebook.NewCohort("mpi", repo.students, repo.subjects)
	c2 := gradebook.NewCohort("mpi", []*gradebook.Student{repo.students[2], repo.students[0], repo.students[1]}, repo.subjects)

	fp := Fingerprint(c1)
	assert.Len(t, fp, 32)
	assert.Equal(t, fp, Fingerprint(c2), "order of input must not matter")

	changed := student(t, "c", 8.5)
	c3 := gradebook.NewCohort("mpi", []*gradebook.Student{repo.students[0], repo.students[1], changed}, repo.subjects)
	assert.NotEqual(t, fp, Fingerprint(c3))
}

func TestFingerprint_AbsentDiffersFromZero(t *testing.T) {
	s1, _ := gradebook.NewStudent("x", "", "", "mpi")
	s1.SetGrade(logicSubject.Key(), gradebook.GradeRecord{DS: gradebook.Grade(0)})
	s2, _ := gradebook.NewStudent("x", "", "", "mpi")
	s2.SetGrade(logicSubject.Key(), gradebook.GradeRecord{TP: gradebook.Grade(0)})

	subjects := []gradebook.Subject{logicSubject}
	assert.NotEqual(t,
		Fingerprint(gradebook.NewCohort("mpi", []*gradebook.Student{s1}, subjects)),
		Fingerprint(gradebook.NewCohort("mpi", []*gradebook.Student{s2}, subjects)))
}

func TestCohortLoader(t *testing.T) {
	ctx := context.Background()

	t.Run("empty section", func(t *testing.T) {
		_, err := NewCohortLoader(&fakeRepo{}).Load(ctx, "mpi")
		assert.ErrorIs(t, err, shared.ErrSectionEmpty)
		assert.True(t, shared.IsNotFound(err))
	})

	t.Run("repository failure", func(t *testing.T) {
		_, err := NewCohortLoader(&fakeRepo{err: errors.New("boom")}).Load(ctx, "mpi")
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Orientation
// ─────────────────────────────────────────────────────────────────────────────

func TestGetOrientation(t *testing.T) {
	ctx := context.Background()
	cache := newFakeReportCache()
	h := NewGetOrientationHandler(NewCohortLoader(newRepo(t)), newEngine(t), cache, nil)

	dto, err := h.Handle(ctx, GetOrientationQuery{Section: "mpi", StudentID: "a"})
	require.NoError(t, err)
	assert.Equal(t, "a", dto.StudentID)
	assert.Equal(t, "Firsta Lasta", dto.DisplayName)
	assert.False(t, dto.Simulated)
	require.Len(t, dto.Tracks, 4)

	gl := dto.Tracks[0]
	assert.Equal(t, "GL", gl.Track)
	assert.Equal(t, "ranked", gl.Kind)
	assert.InDelta(t, 45.0, gl.Score, 1e-9)
	assert.Equal(t, 1, gl.Rank)
	assert.Equal(t, 3, gl.CohortSize)

	imi := dto.Tracks[3]
	assert.Equal(t, "threshold", imi.Kind)
	assert.True(t, imi.Eligible)

	assert.Equal(t, 0, cache.hits)
	again, err := h.Handle(ctx, GetOrientationQuery{Section: "mpi", StudentID: "a"})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, dto, again)
}

func TestGetOrientation_Errors(t *testing.T) {
	ctx := context.Background()
	h := NewGetOrientationHandler(NewCohortLoader(newRepo(t)), newEngine(t), nil, nil)

	_, err := h.Handle(ctx, GetOrientationQuery{Section: " ", StudentID: "a"})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(ctx, GetOrientationQuery{Section: "mpi", StudentID: "zz"})
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)
	assert.True(t, shared.IsNotFound(err))
}

// ─────────────────────────────────────────────────────────────────────────────
// Simulation
// ─────────────────────────────────────────────────────────────────────────────

func TestSimulate(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	h := NewSimulateHandler(NewCohortLoader(repo), newEngine(t))

	res, err := h.Handle(ctx, SimulateQuery{
		Section:   "mpi",
		StudentID: "c",
		Grades: []SimulatedGrade{
			{SubjectID: "L", Semester: 2, DS: "20", TP: "15", Exam: "25,5"},
		},
	})
	require.NoError(t, err)

	require.Len(t, res.Applied, 1)
	applied := res.Applied[0]
	assert.Equal(t, 20.0, applied.Final)
	assert.Nil(t, applied.TP, "subject has no TP")
	require.NotNil(t, applied.Exam)
	assert.Equal(t, 20.0, *applied.Exam, "clamped to 20")

	assert.True(t, res.Assessment.Simulated)
	gl := res.Assessment.Tracks[0]
	assert.Equal(t, 1, gl.Rank)

	require.NotEmpty(t, res.Verdicts)
	assert.Equal(t, VerdictDTO{Track: "GL", OK: true}, res.Verdicts[0])

	// Реальные данные не тронуты.
	rec, _ := repo.students[2].Grade(logicSubject.Key())
	assert.Equal(t, 8.0, *rec.Final)
}

func TestSimulate_MalformedInputIsAbsent(t *testing.T) {
	h := NewSimulateHandler(NewCohortLoader(newRepo(t)), newEngine(t))

	res, err := h.Handle(context.Background(), SimulateQuery{
		Section:   "mpi",
		StudentID: "a",
		Grades:    []SimulatedGrade{{SubjectID: "L", DS: "abc", Exam: "10"}},
	})
	require.NoError(t, err)
	assert.Nil(t, res.Applied[0].DS)
	assert.Equal(t, 6.0, res.Applied[0].Final)
}

func TestSimulate_Errors(t *testing.T) {
	ctx := context.Background()
	h := NewSimulateHandler(NewCohortLoader(newRepo(t)), newEngine(t))

	tests := []struct {
		name  string
		query SimulateQuery
		check func(error) bool
	}{
		{"no grades", SimulateQuery{Section: "mpi", StudentID: "a"}, shared.IsValidation},
		{"bad semester", SimulateQuery{Section: "mpi", StudentID: "a", Grades: []SimulatedGrade{{SubjectID: "L", Semester: 3}}}, shared.IsValidation},
		{"empty subject", SimulateQuery{Section: "mpi", StudentID: "a", Grades: []SimulatedGrade{{Semester: 1}}}, shared.IsValidation},
		{"unknown subject", SimulateQuery{Section: "mpi", StudentID: "a", Grades: []SimulatedGrade{{SubjectID: "X", Semester: 1}}}, shared.IsNotFound},
		{"unknown student", SimulateQuery{Section: "mpi", StudentID: "zz", Grades: []SimulatedGrade{{SubjectID: "L"}}}, shared.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Handle(ctx, tt.query)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
}

func TestGradeText_UnmarshalJSON(t *testing.T) {
	var g struct {
		A GradeText `json:"a"`
		B GradeText `json:"b"`
		C GradeText `json:"c"`
		D GradeText `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"12,5","b":14.25,"c":null,"d":true}`), &g))
	assert.Equal(t, GradeText("12,5"), g.A)
	assert.Equal(t, GradeText("14.25"), g.B)
	assert.Equal(t, GradeText(""), g.C)
	assert.Equal(t, GradeText(""), g.D)
}

// ─────────────────────────────────────────────────────────────────────────────
// Ranking
// ─────────────────────────────────────────────────────────────────────────────

func TestGetTrackRanking(t *testing.T) {
	ctx := context.Background()
	cache := newFakeRankingCache()
	h := NewGetTrackRankingHandler(NewCohortLoader(newRepo(t)), newEngine(t), cache, time.Minute, nil)

	res, err := h.Handle(ctx, GetTrackRankingQuery{Section: "mpi", Track: "gl", Limit: 2})
	require.NoError(t, err)
	first := res
	assert.False(t, res.FromCache)
	assert.Equal(t, "GL", res.Track)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 40.0, res.Benchmark)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, "a", res.Entries[0].StudentID)
	assert.Equal(t, 1, res.Entries[0].Rank)
	assert.Equal(t, 1, cache.stores)

	res, err = h.Handle(ctx, GetTrackRankingQuery{Section: "mpi", Track: "GL", Offset: 2, Limit: 2})
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "c", res.Entries[0].StudentID)
	assert.Equal(t, 3, res.Entries[0].Rank)
	assert.Equal(t, res.Mean, first.Mean)
	assert.Equal(t, res.Median, first.Median)
}

func TestGetTrackRanking_AroundStudent(t *testing.T) {
	ctx := context.Background()

	for _, cached := range []bool{false, true} {
		t.Run(fmt.Sprintf("cached=%v", cached), func(t *testing.T) {
			var cache RankingCache
			if cached {
				fc := newFakeRankingCache()
				cache = fc
			}
			h := NewGetTrackRankingHandler(NewCohortLoader(newRepo(t)), newEngine(t), cache, time.Minute, nil)
			if cached {
				_, err := h.Handle(ctx, GetTrackRankingQuery{Section: "mpi", Track: "gl"})
				require.NoError(t, err)
			}

			res, err := h.Handle(ctx, GetTrackRankingQuery{Section: "mpi", Track: "gl", Around: "c", Window: 1})
			require.NoError(t, err)
			assert.Equal(t, cached, res.FromCache)
			assert.Equal(t, "c", res.Around)
			assert.Equal(t, 3, res.Total)
			assert.Equal(t, 1, res.Offset)
			assert.Equal(t, 2, res.Limit)
			require.Len(t, res.Entries, 2)
			assert.Equal(t, "b", res.Entries[0].StudentID)
			assert.Equal(t, "c", res.Entries[1].StudentID)

			_, err = h.Handle(ctx, GetTrackRankingQuery{Section: "mpi", Track: "gl", Around: "zz"})
			assert.ErrorIs(t, err, shared.ErrStudentNotFound)
		})
	}
}

func TestGetTrackRankingQuery_Validate(t *testing.T) {
	q := GetTrackRankingQuery{Section: "mpi", Track: "rt"}
	require.NoError(t, q.Validate())
	assert.Equal(t, defaultRankingLimit, q.Limit)

	q = GetTrackRankingQuery{Section: "mpi", Track: "rt", Limit: 10000}
	require.NoError(t, q.Validate())
	assert.Equal(t, maxRankingLimit, q.Limit)

	q = GetTrackRankingQuery{Section: "mpi", Track: "xx"}
	assert.ErrorIs(t, q.Validate(), shared.ErrUnknownTrack)

	q = GetTrackRankingQuery{Section: "mpi", Track: "gl", Offset: -1}
	assert.Error(t, q.Validate())

	q = GetTrackRankingQuery{Section: "mpi", Track: "gl", Around: "a"}
	require.NoError(t, q.Validate())
	assert.Equal(t, defaultAroundWindow, q.Window)

	q = GetTrackRankingQuery{Section: "mpi", Track: "gl", Around: "a", Window: 1000}
	require.NoError(t, q.Validate())
	assert.Equal(t, maxAroundWindow, q.Window)

	q = GetTrackRankingQuery{Section: "mpi", Track: "gl", Window: -1}
	assert.Error(t, q.Validate())
}

// ─────────────────────────────────────────────────────────────────────────────
// Progress, standing, comparison
// ─────────────────────────────────────────────────────────────────────────────

func TestGetProgress(t *testing.T) {
	h := NewGetProgressHandler(NewCohortLoader(newRepo(t)))

	res, err := h.Handle(context.Background(), GetProgressQuery{Section: "mpi", StudentID: "a"})
	require.NoError(t, err)
	require.Len(t, res.Points, 4)
	assert.Equal(t, []string{"DS1", "Final1", "DS2", "Final2"},
		[]string{res.Points[0].Label, res.Points[1].Label, res.Points[2].Label, res.Points[3].Label})

	// Нет оценок в первом семестре - худший ранг.
	assert.Equal(t, 3, res.Points[0].Rank)
	assert.Equal(t, 15.0, res.Points[3].Value)
	assert.Equal(t, 1, res.Points[3].Rank)

	_, err = h.Handle(context.Background(), GetProgressQuery{Section: "mpi", StudentID: "zz"})
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)
}

func TestGetStanding(t *testing.T) {
	h := NewGetStandingHandler(NewCohortLoader(newRepo(t)))

	res, err := h.Handle(context.Background(), GetStandingQuery{Section: "mpi", StudentID: "b"})
	require.NoError(t, err)
	assert.Equal(t, 12.0, res.Average)
	assert.Equal(t, 2, res.Rank)
	assert.Equal(t, 3, res.CohortSize)
	require.NotNil(t, res.TopPercent)
	assert.Equal(t, 66.67, *res.TopPercent)
	assert.Equal(t, []string{orientation.SubjectLogic}, res.BestSubjects)
	assert.NotNil(t, res.BelowMean)

	_, err = h.Handle(context.Background(), GetStandingQuery{Section: "mpi", StudentID: "zz"})
	assert.True(t, shared.IsNotFound(err))
}

func TestGetSubjectTable(t *testing.T) {
	h := NewGetSubjectTableHandler(NewCohortLoader(newRepo(t)))

	res, err := h.Handle(context.Background(), GetSubjectTableQuery{Section: "mpi", StudentID: "b"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.CohortSize)
	require.Len(t, res.Subjects, 1)

	row := res.Subjects[0]
	assert.Equal(t, "L", row.SubjectID)
	assert.Equal(t, 2, row.Semester)
	require.NotNil(t, row.Student.Final)
	assert.Equal(t, 12.0, *row.Student.Final)
	assert.Nil(t, row.Student.DS)
	require.NotNil(t, row.Section.Final)
	assert.Equal(t, 11.67, *row.Section.Final)
	require.NotNil(t, row.Rank)
	assert.Equal(t, 2, *row.Rank)
	assert.Equal(t, 3, row.Graded)

	_, err = h.Handle(context.Background(), GetSubjectTableQuery{Section: "mpi", StudentID: "zz"})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.Handle(context.Background(), GetSubjectTableQuery{Section: "mpi"})
	assert.True(t, shared.IsValidation(err))
}

func TestGetComparison(t *testing.T) {
	history := fakeHistory{
		orientation.TrackGL: {2023: {"sys logique": 14}, 2024: {"sys logique": 16, "algo1": 12}},
	}
	h := NewGetComparisonHandler(NewCohortLoader(newRepo(t)), history)
	ctx := context.Background()

	res, err := h.Handle(ctx, GetComparisonQuery{Track: "gl", Section: "mpi", StudentID: "a"})
	require.NoError(t, err)
	assert.Equal(t, "GL", res.Track)
	assert.Equal(t, []int{2023, 2024}, res.Years)
	require.Len(t, res.Subjects, 2)

	algo := res.Subjects[0]
	assert.Equal(t, "algo1", algo.Subject)
	assert.Nil(t, algo.Student)
	assert.Equal(t, 6.0, algo.Historical)

	logic := res.Subjects[1]
	assert.Equal(t, orientation.SubjectLogic, logic.Subject)
	require.NotNil(t, logic.Delta)
	assert.InDelta(t, 0.0, *logic.Delta, 1e-9)

	_, err = h.Handle(ctx, GetComparisonQuery{Track: "rt", Section: "mpi", StudentID: "a"})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.Handle(ctx, GetComparisonQuery{Track: "zz", Section: "mpi", StudentID: "a"})
	assert.True(t, shared.IsValidation(err))
}
