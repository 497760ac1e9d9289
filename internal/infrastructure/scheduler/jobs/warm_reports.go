package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/mpi-hub/orientation-hub/internal/application/command"
	"github.com/mpi-hub/orientation-hub/internal/domain/shared"
	"github.com/mpi-hub/orientation-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// WARM REPORTS JOB
// ══════════════════════════════════════════════════════════════════════════════

// Warmer is the command the job drives.
type Warmer interface {
	Handle(ctx context.Context, cmd command.WarmReportsCommand) (*command.WarmReportsResult, error)
}

// WarmReportsJob precomputes rankings and reports for every section.
type WarmReportsJob struct {
	warmer         Warmer
	sections       []string
	includeReports bool
	log            *logger.Logger
}

// NewWarmReportsJob creates the job.
func NewWarmReportsJob(warmer Warmer, sections []string, includeReports bool, log *logger.Logger) *WarmReportsJob {
	if log == nil {
		log = logger.Nop()
	}
	return &WarmReportsJob{
		warmer:         warmer,
		sections:       sections,
		includeReports: includeReports,
		log:            log.With(logger.Component("job.warm_reports")),
	}
}

// Name returns the job name.
func (j *WarmReportsJob) Name() string { return "warm_reports" }

// Description returns the job description.
func (j *WarmReportsJob) Description() string {
	return "Precomputes track rankings and orientation reports"
}

// Run executes the job. Sections that have no data yet are skipped.
func (j *WarmReportsJob) Run(ctx context.Context) error {
	var errs []error
	for _, section := range j.sections {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := j.WarmSection(ctx, section); err != nil {
			errs = append(errs, fmt.Errorf("section %s: %w", section, err))
		}
	}
	return errors.Join(errs...)
}

// WarmSection warms a single section.
func (j *WarmReportsJob) WarmSection(ctx context.Context, section string) error {
	_, err := j.warmer.Handle(ctx, command.WarmReportsCommand{
		Section:        section,
		IncludeReports: j.includeReports,
	})
	if errors.Is(err, shared.ErrSectionEmpty) {
		j.log.Debug("section has no data yet", logger.Section(section))
		return nil
	}
	return err
}
