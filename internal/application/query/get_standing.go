package query

import (
	"context"

	"github.com/mpi-hub/orientation-hub/internal/domain/orientation"
	"github.com/mpi-hub/orientation-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STANDING QUERY
// Положение студента в секции: ранг по mg, лучшие и отстающие предметы.
// ══════════════════════════════════════════════════════════════════════════════

// GetStandingQuery содержит параметры запроса.
type GetStandingQuery struct {
	Section   string
	StudentID string
}

// Validate проверяет корректность параметров запроса.
func (q *GetStandingQuery) Validate() error {
	return validateStudentRef(&q.Section, &q.StudentID)
}

// StandingDTO - положение студента в секции.
type StandingDTO struct {
	StudentID  string   `json:"student_id"`
	Section    string   `json:"section"`
	Average    float64  `json:"average"`
	Rank       int      `json:"rank"`
	CohortSize int      `json:"cohort_size"`
	TopPercent *float64 `json:"top_percent"`

	BestSubjects []string `json:"best_subjects"`
	BestFinal    *float64 `json:"best_final"`
	BelowMean    []string `json:"below_mean"`

	// Message - all_above, work_on или concentrate.
	Message string `json:"message"`
}

// GetStandingHandler обрабатывает запрос положения в секции.
type GetStandingHandler struct {
	loader *CohortLoader
}

// NewGetStandingHandler создаёт обработчик.
func NewGetStandingHandler(loader *CohortLoader) *GetStandingHandler {
	return &GetStandingHandler{loader: loader}
}

// Handle выполняет запрос.
func (h *GetStandingHandler) Handle(ctx context.Context, query GetStandingQuery) (*StandingDTO, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetStanding", shared.ErrValidation, err.Error(), err)
	}

	snap, err := h.loader.Load(ctx, query.Section)
	if err != nil {
		return nil, err
	}

	st, ok := orientation.ComputeStanding(snap.Cohort, query.StudentID)
	if !ok {
		return nil, shared.ErrStudentNotFound
	}

	return &StandingDTO{
		StudentID:    st.StudentID,
		Section:      snap.Cohort.Section,
		Average:      st.Average,
		Rank:         int(st.Rank),
		CohortSize:   st.CohortSize,
		TopPercent:   st.TopPercent,
		BestSubjects: nonNil(st.BestSubjects),
		BestFinal:    st.BestFinal,
		BelowMean:    nonNil(st.BelowMean),
		Message:      string(st.Message),
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
