package query

import (
	"context"
	"fmt"

	"github.com/mpi-hub/orientation-hub/internal/domain/orientation"
	"github.com/mpi-hub/orientation-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET COMPARISON QUERY
// Оценки студента против исторических средних поступивших на трек.
// ══════════════════════════════════════════════════════════════════════════════

// HistoryProvider отдаёт историю средних по треку.
type HistoryProvider interface {
	Track(id orientation.TrackID) (orientation.TrackHistory, bool)
}

// GetComparisonQuery содержит параметры запроса.
type GetComparisonQuery struct {
	Track     string
	Section   string
	StudentID string

	track orientation.TrackID
}

// Validate проверяет корректность параметров запроса.
func (q *GetComparisonQuery) Validate() error {
	if err := validateStudentRef(&q.Section, &q.StudentID); err != nil {
		return err
	}
	id, err := orientation.ParseTrackID(q.Track)
	if err != nil {
		return err
	}
	q.track = id
	return nil
}

// SubjectComparisonDTO - один предмет сравнения.
type SubjectComparisonDTO struct {
	Subject    string   `json:"subject"`
	Student    *float64 `json:"student"`
	Historical float64  `json:"historical"`
	Delta      *float64 `json:"delta"`
}

// ComparisonDTO - сравнение по треку.
type ComparisonDTO struct {
	Track     string                 `json:"track"`
	Section   string                 `json:"section"`
	StudentID string                 `json:"student_id"`
	Years     []int                  `json:"years"`
	Subjects  []SubjectComparisonDTO `json:"subjects"`
}

// GetComparisonHandler обрабатывает запрос сравнения.
type GetComparisonHandler struct {
	loader  *CohortLoader
	history HistoryProvider
}

// NewGetComparisonHandler создаёт обработчик.
func NewGetComparisonHandler(loader *CohortLoader, history HistoryProvider) *GetComparisonHandler {
	return &GetComparisonHandler{loader: loader, history: history}
}

// Handle выполняет запрос.
func (h *GetComparisonHandler) Handle(ctx context.Context, query GetComparisonQuery) (*ComparisonDTO, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetComparison", shared.ErrValidation, err.Error(), err)
	}

	history, ok := h.history.Track(query.track)
	if !ok {
		return nil, shared.NewDomainError("query", "GetComparison", shared.ErrNotFound,
			fmt.Sprintf("no historical data for track %s", query.track))
	}

	snap, err := h.loader.Load(ctx, query.Section)
	if err != nil {
		return nil, err
	}
	student, ok := snap.Cohort.Student(query.StudentID)
	if !ok {
		return nil, shared.ErrStudentNotFound
	}

	rows := orientation.Compare(student, snap.Cohort.Catalog, history, nil)
	dto := &ComparisonDTO{
		Track:     string(query.track),
		Section:   snap.Cohort.Section,
		StudentID: student.ID,
		Years:     history.Years(),
		Subjects:  make([]SubjectComparisonDTO, 0, len(rows)),
	}
	for _, r := range rows {
		dto.Subjects = append(dto.Subjects, SubjectComparisonDTO{
			Subject:    r.Subject,
			Student:    r.Student,
			Historical: r.Historical,
			Delta:      r.Delta,
		})
	}
	return dto, nil
}
