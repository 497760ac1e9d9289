package query

import (
	"context"

	"github.com/mpi-hub/orientation-hub/internal/domain/orientation"
	"github.com/mpi-hub/orientation-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS QUERY
// Ряд "ранг во времени" по четырём контрольным точкам года.
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressQuery содержит параметры запроса.
type GetProgressQuery struct {
	Section   string
	StudentID string
}

// Validate проверяет корректность параметров запроса.
func (q *GetProgressQuery) Validate() error {
	return validateStudentRef(&q.Section, &q.StudentID)
}

// ProgressPointDTO - ранг в контрольной точке.
type ProgressPointDTO struct {
	Label      string  `json:"label"`
	Semester   int     `json:"semester"`
	Component  string  `json:"component"`
	Value      float64 `json:"value"`
	Rank       int     `json:"rank"`
	CohortSize int     `json:"cohort_size"`
}

// ProgressDTO - ряд рангов студента.
type ProgressDTO struct {
	StudentID string             `json:"student_id"`
	Section   string             `json:"section"`
	Points    []ProgressPointDTO `json:"points"`
}

// GetProgressHandler обрабатывает запрос ряда рангов.
type GetProgressHandler struct {
	loader *CohortLoader
}

// NewGetProgressHandler создаёт обработчик.
func NewGetProgressHandler(loader *CohortLoader) *GetProgressHandler {
	return &GetProgressHandler{loader: loader}
}

// Handle выполняет запрос.
func (h *GetProgressHandler) Handle(ctx context.Context, query GetProgressQuery) (*ProgressDTO, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetProgress", shared.ErrValidation, err.Error(), err)
	}

	snap, err := h.loader.Load(ctx, query.Section)
	if err != nil {
		return nil, err
	}
	if _, ok := snap.Cohort.Student(query.StudentID); !ok {
		return nil, shared.ErrStudentNotFound
	}

	points := orientation.RankProgress(snap.Cohort, query.StudentID, nil)
	dto := &ProgressDTO{
		StudentID: query.StudentID,
		Section:   snap.Cohort.Section,
		Points:    make([]ProgressPointDTO, 0, len(points)),
	}
	for _, p := range points {
		dto.Points = append(dto.Points, ProgressPointDTO{
			Label:      p.Label,
			Semester:   int(p.Semester),
			Component:  string(p.Component),
			Value:      p.Value,
			Rank:       int(p.Rank),
			CohortSize: p.CohortSize,
		})
	}
	return dto, nil
}
