package query

import (
	"context"

	"github.com/mpi-hub/orientation-hub/internal/domain/gradebook"
	"github.com/mpi-hub/orientation-hub/internal/domain/orientation"
	"github.com/mpi-hub/orientation-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET SUBJECT TABLE QUERY
// Оценки студента по каждому предмету рядом со средними секции.
// ══════════════════════════════════════════════════════════════════════════════

// GetSubjectTableQuery содержит параметры запроса.
type GetSubjectTableQuery struct {
	Section   string
	StudentID string
}

// Validate проверяет корректность параметров запроса.
func (q *GetSubjectTableQuery) Validate() error {
	return validateStudentRef(&q.Section, &q.StudentID)
}

// ComponentsDTO - DS/TP/Exam/Final; null - не выставлено.
type ComponentsDTO struct {
	DS    *float64 `json:"ds"`
	TP    *float64 `json:"tp"`
	Exam  *float64 `json:"exam"`
	Final *float64 `json:"final"`
}

// SubjectRowDTO - строка таблицы предметов.
type SubjectRowDTO struct {
	SubjectID string        `json:"subject_id"`
	Subject   string        `json:"subject"`
	Semester  int           `json:"semester"`
	HasTP     bool          `json:"has_tp"`
	Student   ComponentsDTO `json:"student"`
	Section   ComponentsDTO `json:"section_average"`
	Rank      *int          `json:"rank"`
	Graded    int           `json:"graded"`
}

// SubjectTableDTO - таблица предметов студента.
type SubjectTableDTO struct {
	StudentID  string          `json:"student_id"`
	Section    string          `json:"section"`
	CohortSize int             `json:"cohort_size"`
	Subjects   []SubjectRowDTO `json:"subjects"`
}

// GetSubjectTableHandler обрабатывает запрос таблицы предметов.
type GetSubjectTableHandler struct {
	loader *CohortLoader
}

// NewGetSubjectTableHandler создаёт обработчик.
func NewGetSubjectTableHandler(loader *CohortLoader) *GetSubjectTableHandler {
	return &GetSubjectTableHandler{loader: loader}
}

// Handle выполняет запрос.
func (h *GetSubjectTableHandler) Handle(ctx context.Context, query GetSubjectTableQuery) (*SubjectTableDTO, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetSubjectTable", shared.ErrValidation, err.Error(), err)
	}

	snap, err := h.loader.Load(ctx, query.Section)
	if err != nil {
		return nil, err
	}

	rows, ok := orientation.SubjectTable(snap.Cohort, query.StudentID)
	if !ok {
		return nil, shared.ErrStudentNotFound
	}

	dto := &SubjectTableDTO{
		StudentID:  query.StudentID,
		Section:    snap.Cohort.Section,
		CohortSize: snap.Cohort.Size(),
		Subjects:   make([]SubjectRowDTO, 0, len(rows)),
	}
	for _, r := range rows {
		row := SubjectRowDTO{
			SubjectID: r.Subject.ID,
			Subject:   r.Subject.Name,
			Semester:  int(r.Semester),
			HasTP:     r.Subject.HasTP,
			Student:   toComponents(r.Own),
			Section:   toComponents(r.Means),
			Graded:    r.Graded,
		}
		if r.Rank > 0 {
			rank := int(r.Rank)
			row.Rank = &rank
		}
		dto.Subjects = append(dto.Subjects, row)
	}
	return dto, nil
}

func toComponents(g gradebook.GradeRecord) ComponentsDTO {
	return ComponentsDTO{DS: g.DS, TP: g.TP, Exam: g.Exam, Final: g.Final}
}
