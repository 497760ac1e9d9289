package orientation

import (
	"errors"
	"fmt"

	"github.com/mpi-hub/orientation-hub/internal/domain/gradebook"
	"github.com/mpi-hub/orientation-hub/internal/domain/ranking"
	"github.com/mpi-hub/orientation-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESULTS
// ══════════════════════════════════════════════════════════════════════════════

// TrackResult - итог по одному треку для одного студента.
type TrackResult struct {
	Track       TrackID
	Kind        Kind
	Score       float64
	Rank        ranking.Rank
	CohortSize  int
	Quartile    Quartile
	Benchmark   float64
	Eligibility float64
	Eligible    bool
}

// Assessment - полный результат оценки студента.
type Assessment struct {
	StudentID   string
	DisplayName string
	Section     string
	Means       Means
	Tracks      []TrackResult
	Simulated   bool
}

// Track возвращает результат по треку.
func (a *Assessment) Track(id TrackID) (TrackResult, bool) {
	for _, t := range a.Tracks {
		if t.Track == id {
			return t, true
		}
	}
	return TrackResult{}, false
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Config - параметры движка. Бенчмарки передаются как данные конфигурации.
type Config struct {
	Tracks         []Track
	Benchmarks     Benchmarks
	Threshold      ThresholdRule
	EligibleCutoff float64
}

// Engine - единый конвейер "балл → ранг → шансы" для всех треков.
// Engine не хранит изменяемого состояния и безопасен для конкурентного использования.
type Engine struct {
	tracks     []Track
	byID       map[TrackID]int
	benchmarks Benchmarks
	threshold  ThresholdRule
	cutoff     float64
}

// NewEngine создаёт движок с валидацией конфигурации.
func NewEngine(cfg Config) (*Engine, error) {
	if len(cfg.Tracks) == 0 {
		cfg.Tracks = DefaultTracks()
	}
	if cfg.EligibleCutoff <= 0 {
		cfg.EligibleCutoff = DefaultEligibleCutoff
	}
	if cfg.Threshold == (ThresholdRule{}) {
		cfg.Threshold = DefaultThresholdRule()
	}

	e := &Engine{
		tracks:     make([]Track, len(cfg.Tracks)),
		byID:       make(map[TrackID]int, len(cfg.Tracks)),
		benchmarks: make(Benchmarks, len(cfg.Benchmarks)),
		threshold:  cfg.Threshold,
		cutoff:     cfg.EligibleCutoff,
	}
	copy(e.tracks, cfg.Tracks)
	for id, v := range cfg.Benchmarks {
		e.benchmarks[id] = v
	}

	for i, t := range e.tracks {
		if t.ID == "" {
			return nil, errors.New("orientation: track with empty id")
		}
		if _, dup := e.byID[t.ID]; dup {
			return nil, fmt.Errorf("orientation: duplicate track %s", t.ID)
		}
		if t.Kind == KindRanked && t.Formula == nil {
			return nil, fmt.Errorf("orientation: ranked track %s has no formula", t.ID)
		}
		e.byID[t.ID] = i
	}
	return e, nil
}

// Tracks возвращает треки в порядке конфигурации.
func (e *Engine) Tracks() []Track {
	out := make([]Track, len(e.tracks))
	copy(out, e.tracks)
	return out
}

// Track возвращает дескриптор трека или ErrUnknownTrack.
func (e *Engine) Track(id TrackID) (Track, error) {
	idx, ok := e.byID[id]
	if !ok {
		return Track{}, fmt.Errorf("%w: %q", shared.ErrUnknownTrack, id)
	}
	return e.tracks[idx], nil
}

// Benchmark возвращает бенчмарк трека.
func (e *Engine) Benchmark(id TrackID) float64 {
	return e.benchmarks.For(id)
}

// Threshold возвращает правило порогового трека.
func (e *Engine) Threshold() ThresholdRule {
	return e.threshold
}

// CohortMeans вычисляет средние для каждого студента когорты.
func (e *Engine) CohortMeans(cohort *gradebook.Cohort, overlay *gradebook.Overlay) map[string]Means {
	out := make(map[string]Means, cohort.Size())
	for _, s := range cohort.Students() {
		out[s.ID] = ComputeMeans(s, cohort.Catalog, overlay)
	}
	return out
}

// RankTrack строит ранжирование когорты по треку.
func (e *Engine) RankTrack(cohort *gradebook.Cohort, id TrackID, overlay *gradebook.Overlay) (*ranking.Ranking, error) {
	track, err := e.Track(id)
	if err != nil {
		return nil, err
	}
	return e.rank(cohort, track, e.CohortMeans(cohort, overlay)), nil
}

func (e *Engine) rank(cohort *gradebook.Cohort, track Track, means map[string]Means) *ranking.Ranking {
	r := ranking.New()
	for _, s := range cohort.Students() {
		_ = r.Add(&ranking.Entry{
			StudentID:   s.ID,
			DisplayName: s.DisplayName(),
			Score:       track.Score(means[s.ID]),
		})
	}
	r.Sort()
	return r
}

// Evaluate оценивает студента по всем трекам.
// overlay применяется ко всем студентам когорты; обычно он затрагивает только целевого.
func (e *Engine) Evaluate(cohort *gradebook.Cohort, studentID string, overlay *gradebook.Overlay) (*Assessment, error) {
	student, ok := cohort.Student(studentID)
	if !ok {
		return nil, shared.ErrStudentNotFound
	}

	means := e.CohortMeans(cohort, overlay)
	target := means[studentID]

	a := &Assessment{
		StudentID:   student.ID,
		DisplayName: student.DisplayName(),
		Section:     cohort.Section,
		Means:       target,
		Tracks:      make([]TrackResult, 0, len(e.tracks)),
		Simulated:   overlay.Touches(studentID),
	}

	for _, track := range e.tracks {
		r := e.rank(cohort, track, means)
		a.Tracks = append(a.Tracks, e.assess(track, target, r, studentID))
	}
	return a, nil
}

// assess превращает ранг студента в шансы по правилу трека.
func (e *Engine) assess(track Track, m Means, r *ranking.Ranking, studentID string) TrackResult {
	score := track.Score(m)
	rank, size := r.RankOf(studentID)

	res := TrackResult{
		Track:      track.ID,
		Kind:       track.Kind,
		Score:      score,
		Rank:       rank,
		CohortSize: size,
		Quartile:   QuartileOf(int(rank), size),
	}

	switch track.Kind {
	case KindThreshold:
		res.Eligibility = e.threshold.Eligibility(m.Average)
	default:
		res.Benchmark = e.benchmarks.For(track.ID)
		res.Eligibility = RankedEligibility(score, res.Benchmark, int(rank), size, track.Bases)
	}
	res.Eligible = res.Eligibility >= e.cutoff
	return res
}
