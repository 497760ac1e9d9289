package query

import (
	"context"
	"errors"
	"time"

	"github.com/mpi-hub/orientation-hub/internal/domain/orientation"
	"github.com/mpi-hub/orientation-hub/internal/domain/ranking"
	"github.com/mpi-hub/orientation-hub/internal/domain/shared"
	"github.com/mpi-hub/orientation-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET TRACK RANKING QUERY
// Страница ранжирования секции по баллу трека.
// ══════════════════════════════════════════════════════════════════════════════

const (
	defaultRankingLimit = 50
	maxRankingLimit     = 500

	defaultAroundWindow = 5
	maxAroundWindow     = 50
)

// GetTrackRankingQuery содержит параметры запроса ранжирования.
type GetTrackRankingQuery struct {
	Section string
	Track   string
	Limit   int
	Offset  int

	// Around - ID студента: вместо страницы возвращается окно ±Window
	// позиций вокруг него. Limit и Offset тогда игнорируются.
	Around string
	Window int

	track orientation.TrackID
}

// Validate проверяет корректность параметров запроса.
func (q *GetTrackRankingQuery) Validate() error {
	if q.Section == "" {
		return errors.New("section is required")
	}
	id, err := orientation.ParseTrackID(q.Track)
	if err != nil {
		return err
	}
	q.track = id
	if q.Offset < 0 {
		return errors.New("offset cannot be negative")
	}
	if q.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = defaultRankingLimit
	}
	if q.Limit > maxRankingLimit {
		q.Limit = maxRankingLimit
	}
	if q.Window < 0 {
		return errors.New("window cannot be negative")
	}
	if q.Around != "" {
		if q.Window == 0 {
			q.Window = defaultAroundWindow
		}
		q.Window = min(q.Window, maxAroundWindow)
	}
	return nil
}

// TrackRankingDTO - страница ранжирования трека.
type TrackRankingDTO struct {
	Section     string            `json:"section"`
	Track       string            `json:"track"`
	Kind        string            `json:"kind"`
	Benchmark   float64           `json:"benchmark,omitempty"`
	Fingerprint string            `json:"fingerprint"`
	Total       int               `json:"total"`
	Offset      int               `json:"offset"`
	Limit       int               `json:"limit"`
	Around      string            `json:"around,omitempty"`
	Entries     []RankingEntryDTO `json:"entries"`
	FromCache   bool              `json:"from_cache"`

	// Mean и Median - по всей секции, а не по странице.
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// RankingCache хранит предрасчитанные ранжирования треков.
type RankingCache interface {
	Page(ctx context.Context, section, track, fingerprint string, offset, limit int) (*ranking.Page, error)
	Around(ctx context.Context, section, track, fingerprint, studentID string, radius int) (*ranking.Page, error)
	Store(ctx context.Context, section, track, fingerprint string, r *ranking.Ranking, ttl time.Duration) error
}

// GetTrackRankingHandler обрабатывает запрос ранжирования.
type GetTrackRankingHandler struct {
	loader *CohortLoader
	engine *orientation.Engine
	cache  RankingCache
	ttl    time.Duration
	log    *logger.Logger
}

// NewGetTrackRankingHandler создаёт обработчик. cache может быть nil.
func NewGetTrackRankingHandler(
	loader *CohortLoader,
	engine *orientation.Engine,
	cache RankingCache,
	ttl time.Duration,
	log *logger.Logger,
) *GetTrackRankingHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetTrackRankingHandler{
		loader: loader,
		engine: engine,
		cache:  cache,
		ttl:    ttl,
		log:    log.With(logger.Component("query.ranking")),
	}
}

// Handle выполняет запрос.
func (h *GetTrackRankingHandler) Handle(ctx context.Context, query GetTrackRankingQuery) (*TrackRankingDTO, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetTrackRanking", shared.ErrValidation, err.Error(), err)
	}

	track, err := h.engine.Track(query.track)
	if err != nil {
		return nil, err
	}

	snap, err := h.loader.Load(ctx, query.Section)
	if err != nil {
		return nil, err
	}
	section := snap.Cohort.Section

	result := &TrackRankingDTO{
		Section:     section,
		Track:       string(track.ID),
		Kind:        track.Kind.String(),
		Benchmark:   h.engine.Benchmark(track.ID),
		Fingerprint: snap.Fingerprint,
		Offset:      query.Offset,
		Limit:       query.Limit,
		Around:      query.Around,
	}

	if query.Around != "" {
		if _, ok := snap.Cohort.Student(query.Around); !ok {
			return nil, shared.ErrStudentNotFound
		}
	}

	if h.cache != nil {
		var page *ranking.Page
		var err error
		if query.Around != "" {
			page, err = h.cache.Around(ctx, section, string(track.ID), snap.Fingerprint, query.Around, query.Window)
		} else {
			page, err = h.cache.Page(ctx, section, string(track.ID), snap.Fingerprint, query.Offset, query.Limit)
		}
		if err == nil {
			result.fill(page, query)
			result.FromCache = true
			return result, nil
		}
	}

	r, err := h.engine.RankTrack(snap.Cohort, track.ID, nil)
	if err != nil {
		return nil, err
	}
	page := r.Page(query.Offset, query.Limit)
	if query.Around != "" {
		p, ok := r.Neighbors(query.Around, query.Window)
		if !ok {
			return nil, shared.ErrStudentNotFound
		}
		page = p
	}
	result.fill(page, query)

	if h.cache != nil {
		if err := h.cache.Store(ctx, section, string(track.ID), snap.Fingerprint, r, h.ttl); err != nil {
			h.log.Warn("failed to cache ranking",
				logger.Section(section),
				logger.Track(string(track.ID)),
				logger.Err(err))
		}
	}
	return result, nil
}

// fill переносит страницу в DTO. Для окна Offset и Limit описывают
// фактически возвращённый диапазон.
func (d *TrackRankingDTO) fill(page *ranking.Page, query GetTrackRankingQuery) {
	d.Total = page.Total
	d.Mean = page.Mean
	d.Median = page.Median
	d.Entries = toRankingEntries(page.Entries)
	if query.Around != "" {
		d.Offset = page.Offset
		d.Limit = len(page.Entries)
	}
}
