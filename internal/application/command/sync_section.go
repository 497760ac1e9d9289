// Package command contains write operations (CQRS - Commands).
// Commands refresh the local gradebook mirror and the precomputed caches.
package command

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mpi-hub/orientation-hub/internal/domain/gradebook"
	"github.com/mpi-hub/orientation-hub/internal/domain/shared"
	"github.com/mpi-hub/orientation-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC SECTION COMMAND
// Pulls a whole section from the upstream grade API into the local mirror.
// ══════════════════════════════════════════════════════════════════════════════

// SyncSectionCommand contains the data needed to sync a section.
type SyncSectionCommand struct {
	// Section is the cohort label, e.g. "mpi".
	Section string

	// CorrelationID for tracing across services.
	CorrelationID string
}

// Validate validates the command.
func (c SyncSectionCommand) Validate() error {
	if strings.TrimSpace(c.Section) == "" {
		return errors.New("sync_section: section is required")
	}
	return nil
}

// SyncSectionResult contains the result of synchronization.
type SyncSectionResult struct {
	Run *gradebook.SyncRun

	// RejectedSubjects were dropped upstream data (invalid weights or semester).
	RejectedSubjects []string

	// FailedStudents kept their previously stored grades.
	FailedStudents []string

	// Invalidated is the number of cache keys dropped after the sync.
	Invalidated int
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// SectionFetcher materializes a section from the upstream source.
type SectionFetcher interface {
	Fetch(ctx context.Context, section string) (*gradebook.Snapshot, error)
}

// CacheInvalidator drops cached reports and rankings of a section.
type CacheInvalidator interface {
	InvalidateSection(ctx context.Context, section string) (int, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SyncSectionHandler handles the SyncSectionCommand.
type SyncSectionHandler struct {
	fetcher SectionFetcher
	writer  gradebook.Writer
	syncLog gradebook.SyncLog
	cache   CacheInvalidator
	log     *logger.Logger
	now     func() time.Time
}

// NewSyncSectionHandler creates a new SyncSectionHandler. cache may be nil.
func NewSyncSectionHandler(
	fetcher SectionFetcher,
	writer gradebook.Writer,
	syncLog gradebook.SyncLog,
	cache CacheInvalidator,
	log *logger.Logger,
) *SyncSectionHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SyncSectionHandler{
		fetcher: fetcher,
		writer:  writer,
		syncLog: syncLog,
		cache:   cache,
		log:     log.With(logger.Component("command.sync_section")),
		now:     time.Now,
	}
}

// Handle executes the sync. The run is recorded in the sync log whether it
// succeeds or not.
func (h *SyncSectionHandler) Handle(ctx context.Context, cmd SyncSectionCommand) (*SyncSectionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("command", "SyncSection", shared.ErrValidation, err.Error(), err)
	}

	log := h.log.With(logger.Section(cmd.Section))
	if cmd.CorrelationID != "" {
		log = log.WithRequestID(cmd.CorrelationID)
	}

	run := gradebook.NewSyncRun(cmd.Section, h.now())
	result := &SyncSectionResult{Run: run}

	err := h.sync(ctx, cmd.Section, run, result)
	run.Finish(h.now(), err)

	// The run must be recorded even when ctx was cancelled mid-sync.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if saveErr := h.syncLog.SaveRun(saveCtx, run); saveErr != nil {
		log.Error("failed to record sync run", logger.Err(saveErr))
		if err == nil {
			err = shared.WrapError("command", "SyncSection", shared.ErrServiceUnavailable, "failed to record sync run", saveErr)
		}
	}
	if err != nil {
		log.Error("section sync failed", logger.Err(err), logger.Latency(run.Duration()))
		return result, err
	}

	if h.cache != nil {
		n, cacheErr := h.cache.InvalidateSection(ctx, cmd.Section)
		if cacheErr != nil {
			log.Warn("failed to invalidate section cache", logger.Err(cacheErr))
		}
		result.Invalidated = n
	}

	log.Info("section synced",
		logger.CohortSize(run.Students),
		logger.Int("subjects", run.Subjects),
		logger.Int("failed_students", run.FailedStudents),
		logger.Int("invalidated", result.Invalidated),
		logger.Latency(run.Duration()))
	return result, nil
}

func (h *SyncSectionHandler) sync(ctx context.Context, section string, run *gradebook.SyncRun, result *SyncSectionResult) error {
	snap, err := h.fetcher.Fetch(ctx, section)
	if err != nil {
		return err
	}
	result.RejectedSubjects = snap.RejectedSubjects
	result.FailedStudents = snap.FailedStudents

	// Grades of a student whose fetch failed would be replaced by an empty
	// book; keep the stored ones instead.
	failed := make(map[string]bool, len(snap.FailedStudents))
	for _, id := range snap.FailedStudents {
		failed[id] = true
	}
	students := make([]*gradebook.Student, 0, len(snap.Students))
	for _, s := range snap.Students {
		if !failed[s.ID] {
			students = append(students, s)
		}
	}

	if err := h.writer.UpsertSubjects(ctx, snap.Subjects); err != nil {
		return shared.WrapError("command", "SyncSection", shared.ErrServiceUnavailable, "failed to store subjects", err)
	}
	if err := h.writer.UpsertStudents(ctx, students); err != nil {
		return shared.WrapError("command", "SyncSection", shared.ErrServiceUnavailable, "failed to store students", err)
	}

	run.Subjects = len(snap.Subjects)
	run.Students = len(students)
	run.FailedStudents = len(snap.FailedStudents)
	return nil
}
