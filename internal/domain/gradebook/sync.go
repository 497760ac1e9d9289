package gradebook

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mpi-hub/orientation-hub/internal/domain/shared"
)

// Snapshot - секция, целиком материализованная из внешнего источника.
type Snapshot struct {
	Section  string
	Subjects []Subject
	Students []*Student

	// FailedStudents - студенты, чьи оценки получить не удалось.
	// Они остаются в Students с пустым журналом.
	FailedStudents []string

	// RejectedSubjects - предметы, отброшенные из-за весов или семестра.
	RejectedSubjects []string

	FetchedAt time.Time
}

// Complete возвращает ErrServiceUnavailable, если оценки части студентов
// не получены. Неполный снимок нельзя ранжировать: пустой журнал
// неотличим от нулевых оценок.
func (s *Snapshot) Complete() error {
	if len(s.FailedStudents) == 0 {
		return nil
	}
	return shared.NewDomainError("gradebook", "Fetch", shared.ErrServiceUnavailable,
		fmt.Sprintf("grades of %d students could not be fetched", len(s.FailedStudents)))
}

// SnapshotSource - источник, отдающий секцию целиком за один проход.
type SnapshotSource interface {
	Fetch(ctx context.Context, section string) (*Snapshot, error)
}

// SyncRun - запись об одном прогоне синхронизации секции с внешним API.
type SyncRun struct {
	ID             uuid.UUID
	Section        string
	StartedAt      time.Time
	FinishedAt     *time.Time
	Students       int
	Subjects       int
	FailedStudents int
	Error          string
}

// NewSyncRun начинает новый прогон.
func NewSyncRun(section string, now time.Time) *SyncRun {
	return &SyncRun{
		ID:        uuid.New(),
		Section:   NormalizeSection(section),
		StartedAt: now.UTC(),
	}
}

// Finish фиксирует итог прогона.
func (r *SyncRun) Finish(now time.Time, err error) {
	t := now.UTC()
	r.FinishedAt = &t
	if err != nil {
		r.Error = err.Error()
	}
}

// Succeeded - прогон завершён без ошибки.
func (r *SyncRun) Succeeded() bool {
	return r.FinishedAt != nil && r.Error == ""
}

// Duration - длительность завершённого прогона.
func (r *SyncRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// SyncLog хранит историю прогонов.
type SyncLog interface {
	SaveRun(ctx context.Context, run *SyncRun) error
	LastSuccessful(ctx context.Context, section string) (*SyncRun, error)
}
