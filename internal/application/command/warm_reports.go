package command

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mpi-hub/orientation-hub/internal/application/query"
	"github.com/mpi-hub/orientation-hub/internal/domain/orientation"
	"github.com/mpi-hub/orientation-hub/internal/domain/shared"
	"github.com/mpi-hub/orientation-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// WARM REPORTS COMMAND
// Precomputes track rankings and, optionally, every student's report, so the
// first request after a sync is served from the cache.
// ══════════════════════════════════════════════════════════════════════════════

// WarmReportsCommand contains the data needed to warm a section.
type WarmReportsCommand struct {
	Section string

	// IncludeReports also caches one orientation report per student.
	IncludeReports bool
}

// Validate validates the command.
func (c WarmReportsCommand) Validate() error {
	if strings.TrimSpace(c.Section) == "" {
		return errors.New("warm_reports: section is required")
	}
	return nil
}

// WarmReportsResult contains the result of the warm-up.
type WarmReportsResult struct {
	Fingerprint string
	Tracks      int
	Reports     int
	Duration    time.Duration
}

// WarmReportsHandler handles the WarmReportsCommand.
type WarmReportsHandler struct {
	loader   *query.CohortLoader
	engine   *orientation.Engine
	rankings query.RankingCache
	reports  query.ReportCache
	ttl      time.Duration
	log      *logger.Logger
}

// NewWarmReportsHandler creates a new WarmReportsHandler. reports may be nil.
func NewWarmReportsHandler(
	loader *query.CohortLoader,
	engine *orientation.Engine,
	rankings query.RankingCache,
	reports query.ReportCache,
	ttl time.Duration,
	log *logger.Logger,
) *WarmReportsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &WarmReportsHandler{
		loader:   loader,
		engine:   engine,
		rankings: rankings,
		reports:  reports,
		ttl:      ttl,
		log:      log.With(logger.Component("command.warm_reports")),
	}
}

// Handle executes the warm-up.
func (h *WarmReportsHandler) Handle(ctx context.Context, cmd WarmReportsCommand) (*WarmReportsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("command", "WarmReports", shared.ErrValidation, err.Error(), err)
	}
	start := time.Now()

	snap, err := h.loader.Load(ctx, cmd.Section)
	if err != nil {
		return nil, err
	}
	section := snap.Cohort.Section
	result := &WarmReportsResult{Fingerprint: snap.Fingerprint}

	for _, track := range h.engine.Tracks() {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		r, err := h.engine.RankTrack(snap.Cohort, track.ID, nil)
		if err != nil {
			return result, err
		}
		if err := h.rankings.Store(ctx, section, string(track.ID), snap.Fingerprint, r, h.ttl); err != nil {
			return result, shared.WrapError("command", "WarmReports", shared.ErrServiceUnavailable, "failed to store ranking", err)
		}
		result.Tracks++
	}

	if cmd.IncludeReports && h.reports != nil {
		for _, s := range snap.Cohort.Students() {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			a, err := h.engine.Evaluate(snap.Cohort, s.ID, nil)
			if err != nil {
				return result, err
			}
			if err := h.reports.SetReport(ctx, section, snap.Fingerprint, s.ID, query.NewAssessmentDTO(a, snap.Fingerprint)); err != nil {
				return result, shared.WrapError("command", "WarmReports", shared.ErrServiceUnavailable, "failed to store report", err)
			}
			result.Reports++
		}
	}

	result.Duration = time.Since(start)
	h.log.Info("section warmed",
		logger.Section(section),
		logger.CohortSize(snap.Cohort.Size()),
		logger.Int("tracks", result.Tracks),
		logger.Int("reports", result.Reports),
		logger.Latency(result.Duration))
	return result, nil
}
