// Package jobs contains the scheduled jobs of the worker. Each job walks the
// configured sections and delegates to an application command.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mpi-hub/orientation-hub/internal/application/command"
	"github.com/mpi-hub/orientation-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC SECTIONS JOB
// ══════════════════════════════════════════════════════════════════════════════

// SectionSyncer is the command the job drives.
type SectionSyncer interface {
	Handle(ctx context.Context, cmd command.SyncSectionCommand) (*command.SyncSectionResult, error)
}

// SyncSectionsJob mirrors every configured section from the grade API.
// A failing section does not stop the others.
type SyncSectionsJob struct {
	syncer   SectionSyncer
	sections []string
	log      *logger.Logger

	// Called with the section name after a successful sync; the worker uses
	// it to chain the cache warm-up.
	afterSync func(ctx context.Context, section string)

	lastStats atomic.Value // *SyncStats
}

// SyncStats contains statistics from a sync run.
type SyncStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Sections  int
	Failed    []string
	Students  int
	Rejected  int
}

// NewSyncSectionsJob creates the job.
func NewSyncSectionsJob(syncer SectionSyncer, sections []string, log *logger.Logger) *SyncSectionsJob {
	if log == nil {
		log = logger.Nop()
	}
	return &SyncSectionsJob{
		syncer:   syncer,
		sections: sections,
		log:      log.With(logger.Component("job.sync_sections")),
	}
}

// AfterSync registers a hook run after each successfully synced section.
func (j *SyncSectionsJob) AfterSync(fn func(ctx context.Context, section string)) *SyncSectionsJob {
	j.afterSync = fn
	return j
}

// Name returns the job name.
func (j *SyncSectionsJob) Name() string { return "sync_sections" }

// Description returns the job description.
func (j *SyncSectionsJob) Description() string {
	return "Mirrors section gradebooks from the grade API"
}

// Run executes the job.
func (j *SyncSectionsJob) Run(ctx context.Context) error {
	stats := &SyncStats{StartedAt: time.Now()}
	correlation := uuid.NewString()

	var errs []error
	for _, section := range j.sections {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := j.syncer.Handle(ctx, command.SyncSectionCommand{
			Section:       section,
			CorrelationID: correlation,
		})
		stats.Sections++
		if err != nil {
			stats.Failed = append(stats.Failed, section)
			errs = append(errs, fmt.Errorf("section %s: %w", section, err))
			continue
		}
		stats.Students += res.Run.Students
		stats.Rejected += len(res.RejectedSubjects)

		if j.afterSync != nil {
			j.afterSync(ctx, section)
		}
	}

	stats.Duration = time.Since(stats.StartedAt)
	j.lastStats.Store(stats)

	j.log.Info("sync round finished",
		logger.String("correlation_id", correlation),
		logger.Int("sections", stats.Sections),
		logger.Int("failed", len(stats.Failed)),
		logger.Int("students", stats.Students),
		logger.Latency(stats.Duration))
	return errors.Join(errs...)
}

// LastStats returns statistics of the last run, or nil before the first one.
func (j *SyncSectionsJob) LastStats() *SyncStats {
	v, _ := j.lastStats.Load().(*SyncStats)
	return v
}
