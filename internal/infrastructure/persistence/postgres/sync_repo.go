package postgres

import (
	"context"
	"fmt"

	"github.com/mpi-hub/orientation-hub/internal/domain/gradebook"
	"github.com/mpi-hub/orientation-hub/internal/domain/shared"
)

// SyncRepository implements gradebook.SyncLog for PostgreSQL.
type SyncRepository struct {
	conn *Connection
}

// NewSyncRepository creates a new SyncRepository.
func NewSyncRepository(conn *Connection) *SyncRepository {
	return &SyncRepository{conn: conn}
}

var _ gradebook.SyncLog = (*SyncRepository)(nil)

// SaveRun inserts or updates a run.
func (r *SyncRepository) SaveRun(ctx context.Context, run *gradebook.SyncRun) error {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	var errText *string
	if run.Error != "" {
		errText = &run.Error
	}

	_, err := r.conn.Pool().Exec(ctx, `
		INSERT INTO sync_runs (id, section, started_at, finished_at, students, subjects, failed_students, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			students = EXCLUDED.students,
			subjects = EXCLUDED.subjects,
			failed_students = EXCLUDED.failed_students,
			error = EXCLUDED.error
	`, run.ID, run.Section, run.StartedAt, run.FinishedAt, run.Students, run.Subjects, run.FailedStudents, errText)
	if err != nil {
		return fmt.Errorf("postgres: save sync run: %w", err)
	}
	return nil
}

// LastSuccessful returns the latest finished run without error.
func (r *SyncRepository) LastSuccessful(ctx context.Context, section string) (*gradebook.SyncRun, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	var run gradebook.SyncRun
	var errText *string
	err := r.conn.Pool().QueryRow(ctx, `
		SELECT id, section, started_at, finished_at, students, subjects, failed_students, error
		FROM sync_runs
		WHERE section = $1 AND finished_at IS NOT NULL AND error IS NULL
		ORDER BY started_at DESC
		LIMIT 1
	`, gradebook.NormalizeSection(section)).Scan(
		&run.ID, &run.Section, &run.StartedAt, &run.FinishedAt,
		&run.Students, &run.Subjects, &run.FailedStudents, &errText,
	)
	if IsNoRows(err) {
		return nil, shared.WrapError("gradebook", "LastSuccessful", shared.ErrNotFound, "no successful sync for section "+section, err)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: last sync run: %w", err)
	}
	if errText != nil {
		run.Error = *errText
	}
	return &run, nil
}
