package orientation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpi-hub/orientation-hub/internal/domain/gradebook"
	"github.com/mpi-hub/orientation-hub/internal/domain/ranking"
	"github.com/mpi-hub/orientation-hub/internal/domain/shared"
)

func TestQuartileOf(t *testing.T) {
	tests := []struct {
		rank, total int
		want        Quartile
	}{
		{1, 100, 1},
		{25, 100, 1},
		{26, 100, 2},
		{50, 100, 2},
		{75, 100, 3},
		{76, 100, 4},
		{1, 4, 1},
		{2, 4, 2},
		{3, 4, 3},
		{4, 4, 4},
		{1, 1, 4},
		{1, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, QuartileOf(tt.rank, tt.total), "rank %d of %d", tt.rank, tt.total)
	}
}

func TestDecayFactor(t *testing.T) {
	assert.Equal(t, 1.0, DecayFactor(1, 100))
	assert.InDelta(t, 0.04, DecayFactor(25, 100), 1e-9)
	assert.Equal(t, 1.0, DecayFactor(26, 100))
	assert.InDelta(t, 0.04, DecayFactor(50, 100), 1e-9)
	assert.InDelta(t, 0.04, DecayFactor(100, 100), 1e-9)
	assert.Equal(t, 1.0, DecayFactor(2, 4))
	assert.Equal(t, 1.0, DecayFactor(1, 1))
	assert.Equal(t, 0.0, DecayFactor(1, 0))

	for rank := 1; rank <= 37; rank++ {
		f := DecayFactor(rank, 37)
		assert.GreaterOrEqual(t, f, 0.0)
		assert.LessOrEqual(t, f, 1.0)
	}
}

func TestRankedEligibility(t *testing.T) {
	gl := QuartileBases{100, 25, 0, 0}

	t.Run("zero benchmark yields zero", func(t *testing.T) {
		assert.Equal(t, 0.0, RankedEligibility(75, 0, 1, 10, gl))
		assert.Equal(t, 0.0, RankedEligibility(75, -3, 1, 10, gl))
		assert.Equal(t, 0.0, RankedEligibility(75, math.NaN(), 1, 10, gl))
	})

	t.Run("rank one of a hundred gets no decay", func(t *testing.T) {
		assert.Equal(t, 100.0, RankedEligibility(90, 80, 1, 100, gl))
		assert.InDelta(t, 50.0, RankedEligibility(40, 80, 1, 100, gl), 1e-9)
	})

	t.Run("empty cohort yields zero", func(t *testing.T) {
		assert.Equal(t, 0.0, RankedEligibility(90, 80, 0, 0, gl))
	})

	t.Run("bounded to 0..100", func(t *testing.T) {
		for rank := 1; rank <= 20; rank++ {
			v := RankedEligibility(1000, 1, rank, 20, QuartileBases{100, 75, 50, 0})
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 100.0)
		}
	})
}

func TestScenario_FourStudentTieBoundary(t *testing.T) {
	r := ranking.FromScores(map[string]float64{"s1": 18, "s2": 15, "s3": 15, "s4": 10})
	bases := QuartileBases{100, 75, 50, 0}

	var ranks []ranking.Rank
	for _, id := range []string{"s1", "s2", "s3", "s4"} {
		rank, _ := r.RankOf(id)
		ranks = append(ranks, rank)
	}
	require.Equal(t, []ranking.Rank{1, 2, 2, 4}, ranks)

	// With four students Q1 holds exactly one rank, so rank 2 lands in Q2.
	assert.Equal(t, Quartile(2), QuartileOf(2, 4))
	assert.Equal(t, 75.0, RankFactor(2, 4, bases))
	assert.Equal(t, 100.0, RankFactor(1, 4, bases))
}

func TestThresholdRule(t *testing.T) {
	rule := ThresholdRule{MinAverage: 10.0, Value: 90}

	assert.Equal(t, 0.0, rule.Eligibility(9.99))
	assert.Equal(t, 90.0, rule.Eligibility(10.0))
	assert.Equal(t, 90.0, rule.Eligibility(17))
	assert.Equal(t, DefaultThresholdRule(), rule)
}

func newTestEngine(t *testing.T, benchmarks Benchmarks) *Engine {
	t.Helper()
	e, err := NewEngine(Config{Benchmarks: benchmarks})
	require.NoError(t, err)
	return e
}

func TestEngine_Evaluate(t *testing.T) {
	cohort := logicCohort(map[string]float64{"s1": 6, "s2": 5, "s3": 5, "s4": 4})
	e := newTestEngine(t, Benchmarks{TrackGL: 18, TrackRT: 18, TrackIIA: 18})

	top, err := e.Evaluate(cohort, "s1", nil)
	require.NoError(t, err)
	assert.Equal(t, 6.0, top.Means.Average)
	assert.False(t, top.Simulated)
	require.Len(t, top.Tracks, 4)

	gl, ok := top.Track(TrackGL)
	require.True(t, ok)
	assert.Equal(t, 18.0, gl.Score)
	assert.Equal(t, ranking.Rank(1), gl.Rank)
	assert.Equal(t, 4, gl.CohortSize)
	assert.Equal(t, 100.0, gl.Eligibility)
	assert.True(t, gl.Eligible)

	tied, err := e.Evaluate(cohort, "s2", nil)
	require.NoError(t, err)
	gl, _ = tied.Track(TrackGL)
	assert.Equal(t, ranking.Rank(2), gl.Rank)
	assert.Equal(t, Quartile(2), gl.Quartile)
	assert.InDelta(t, 15.0/18.0*100*25/100, gl.Eligibility, 1e-9)
	assert.False(t, gl.Eligible)

	rt, _ := tied.Track(TrackRT)
	assert.InDelta(t, 15.0/18.0*100*75/100, rt.Eligibility, 1e-9)
	assert.True(t, rt.Eligible)

	imi, _ := tied.Track(TrackIMI)
	assert.Equal(t, KindThreshold, imi.Kind)
	assert.Equal(t, 0.0, imi.Eligibility)
	assert.Equal(t, 5.0, imi.Score)
}

func TestEngine_EvaluateSingleStudentCohort(t *testing.T) {
	cohort := logicCohort(map[string]float64{"solo": 15})
	e := newTestEngine(t, Benchmarks{TrackGL: 18, TrackRT: 18, TrackIIA: 18})

	res, err := e.Evaluate(cohort, "solo", nil)
	require.NoError(t, err)
	for _, id := range []TrackID{TrackGL, TrackRT, TrackIIA} {
		tr, ok := res.Track(id)
		require.True(t, ok, id)
		assert.Equal(t, ranking.Rank(1), tr.Rank, id)
		assert.Equal(t, 1, tr.CohortSize, id)
		// 1 > 0.75·1, поэтому единственный студент попадает в Q4 с базой 0.
		assert.Equal(t, Quartile(4), tr.Quartile, id)
		assert.Equal(t, 0.0, tr.Eligibility, id)
		assert.False(t, tr.Eligible, id)
	}

	imi, ok := res.Track(TrackIMI)
	require.True(t, ok)
	assert.Equal(t, 90.0, imi.Eligibility)
}

func TestEngine_EvaluateMissingBenchmark(t *testing.T) {
	cohort := logicCohort(map[string]float64{"s1": 16, "s2": 5})
	e := newTestEngine(t, nil)

	a, err := e.Evaluate(cohort, "s1", nil)
	require.NoError(t, err)
	gl, _ := a.Track(TrackGL)
	assert.Equal(t, 0.0, gl.Eligibility)

	imi, _ := a.Track(TrackIMI)
	assert.Equal(t, 90.0, imi.Eligibility)
	assert.True(t, imi.Eligible)
}

func TestEngine_EvaluateWithOverlay(t *testing.T) {
	cohort := logicCohort(map[string]float64{"s1": 6, "s2": 5})
	e := newTestEngine(t, Benchmarks{TrackGL: 30})

	logic := cohort.Catalog.All()[0]
	overlay := gradebook.NewOverlay()
	overlay.Set("s2", logic.Key(), final(12))

	a, err := e.Evaluate(cohort, "s2", overlay)
	require.NoError(t, err)
	assert.True(t, a.Simulated)
	gl, _ := a.Track(TrackGL)
	assert.Equal(t, 36.0, gl.Score)
	assert.Equal(t, ranking.Rank(1), gl.Rank)

	// The overlay never leaks into the repository snapshot.
	baseline, _ := e.Evaluate(cohort, "s2", nil)
	gl, _ = baseline.Track(TrackGL)
	assert.Equal(t, ranking.Rank(2), gl.Rank)
}

func TestEngine_UnknownStudentAndTrack(t *testing.T) {
	cohort := logicCohort(map[string]float64{"s1": 6})
	e := newTestEngine(t, nil)

	_, err := e.Evaluate(cohort, "ghost", nil)
	assert.True(t, shared.IsNotFound(err))

	_, err = e.RankTrack(cohort, TrackID("XYZ"), nil)
	assert.ErrorIs(t, err, shared.ErrUnknownTrack)
	assert.True(t, shared.IsValidation(err))
}

func TestEngine_EmptyCohort(t *testing.T) {
	cohort := gradebook.NewCohort("mpi", nil, nil)
	e := newTestEngine(t, Benchmarks{TrackGL: 10})

	r, err := e.RankTrack(cohort, TrackGL, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Count())
}

func TestEngine_RankTrack(t *testing.T) {
	cohort := logicCohort(map[string]float64{"a": 10, "b": 12, "c": 10})
	e := newTestEngine(t, nil)

	r, err := e.RankTrack(cohort, TrackRT, nil)
	require.NoError(t, err)

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, "b", all[0].StudentID)
	assert.Equal(t, "Firstb Lastb", all[0].DisplayName)
	assert.Equal(t, ranking.Rank(2), all[1].Rank)
	assert.Equal(t, ranking.Rank(2), all[2].Rank)
}

func TestNewEngine_Validation(t *testing.T) {
	_, err := NewEngine(Config{Tracks: []Track{{ID: TrackGL, Kind: KindRanked}}})
	assert.Error(t, err)

	_, err = NewEngine(Config{Tracks: []Track{{ID: TrackIMI, Kind: KindThreshold}, {ID: TrackIMI, Kind: KindThreshold}}})
	assert.Error(t, err)

	e, err := NewEngine(Config{})
	require.NoError(t, err)
	assert.Len(t, e.Tracks(), 4)
	assert.Equal(t, DefaultThresholdRule(), e.Threshold())
}

func TestDeriveBenchmarks(t *testing.T) {
	history := History{
		TrackGL: TrackHistory{
			2022: {"analyse1": 13.72, "algebre1": 15.87, "algo1": 13.09, "programmation": 16.01, "analyse2": 12.65, "algebre2": 14.74, "algo2": 15.36, "prog2": 16.71, "sys logique": 14.83},
			2023: {"analyse1": 16.30, "algebre1": 12.96, "algo1": 14.84, "programmation": 15.42, "analyse2": 13.22, "algebre2": 16.29, "algo2": 16.17, "prog2": 15.80, "sys logique": 15.05},
		},
		TrackRT: TrackHistory{
			2022: {"analyse1": 10.47, "algebre1": 13.19, "algo1": 10.87, "programmation": 14.89, "analyse2": 9.02, "algebre2": 12.01, "algo2": 12.29, "prog2": 15.68, "sys logique": 13.46},
			2023: {"analyse1": 13.02, "algebre1": 11.02, "algo1": 12.27, "programmation": 14.23, "analyse2": 10.01, "algebre2": 13.95, "algo2": 14.14, "prog2": 14.87, "sys logique": 13.05},
		},
		TrackIMI: TrackHistory{
			2022: {"analyse1": 5.78},
		},
	}

	b := DeriveBenchmarks(DefaultTracks(), history, DefaultTargetAverage)

	assert.InDelta(t, 79.88541666666667, b.For(TrackGL), 1e-9)
	assert.InDelta(t, 58.07541666666667, b.For(TrackRT), 1e-9)
	_, hasIIA := b[TrackIIA]
	assert.False(t, hasIIA)
	_, hasIMI := b[TrackIMI]
	assert.False(t, hasIMI)
}

func TestTrackHistory_SubjectMeanCountsMissingAsZero(t *testing.T) {
	h := TrackHistory{
		2022: {"circuits": 9.52},
		2023: {"electronique": 11.66},
	}
	assert.InDelta(t, 4.76, h.SubjectMean(SubjectCircuits), 1e-12)
	assert.InDelta(t, 5.83, h.SubjectMean(SubjectElectronics), 1e-12)
	assert.Equal(t, []int{2022, 2023}, h.Years())
	assert.Equal(t, []string{SubjectCircuits, SubjectElectronics}, h.Subjects())
}
