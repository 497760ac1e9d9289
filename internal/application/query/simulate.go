package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mpi-hub/orientation-hub/internal/domain/gradebook"
	"github.com/mpi-hub/orientation-hub/internal/domain/orientation"
	"github.com/mpi-hub/orientation-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SIMULATE QUERY
// "Что если": пересчёт шансов с введёнными оценками студента.
// Оценки остальных студентов секции остаются реальными.
// ══════════════════════════════════════════════════════════════════════════════

// maxSimulatedGrades ограничивает размер одного запроса.
const maxSimulatedGrades = 64

// SimulatedGrade - введённые компоненты одного предмета.
type SimulatedGrade struct {
	SubjectID string    `json:"subject_id"`
	Semester  int       `json:"semester"`
	DS        GradeText `json:"ds"`
	TP        GradeText `json:"tp"`
	Exam      GradeText `json:"exam"`
}

// SimulateQuery содержит параметры симуляции.
type SimulateQuery struct {
	Section   string
	StudentID string
	Grades    []SimulatedGrade
}

// Validate проверяет корректность параметров запроса.
func (q *SimulateQuery) Validate() error {
	if err := validateStudentRef(&q.Section, &q.StudentID); err != nil {
		return err
	}
	if len(q.Grades) == 0 {
		return errors.New("at least one grade is required")
	}
	if len(q.Grades) > maxSimulatedGrades {
		return fmt.Errorf("too many grades: %d > %d", len(q.Grades), maxSimulatedGrades)
	}
	for i := range q.Grades {
		g := &q.Grades[i]
		g.SubjectID = strings.TrimSpace(g.SubjectID)
		if g.SubjectID == "" {
			return fmt.Errorf("grades[%d]: subject_id is required", i)
		}
		// 0 - семестр не указан, предмет ищется по ID.
		if g.Semester != 0 && !gradebook.Semester(g.Semester).IsValid() {
			return fmt.Errorf("grades[%d]: semester must be 1 or 2", i)
		}
	}
	return nil
}

// SimulatedSubjectDTO - пересчитанная итоговая оценка предмета.
type SimulatedSubjectDTO struct {
	SubjectID string   `json:"subject_id"`
	Name      string   `json:"name"`
	Semester  int      `json:"semester"`
	DS        *float64 `json:"ds"`
	TP        *float64 `json:"tp"`
	Exam      *float64 `json:"exam"`
	Final     float64  `json:"final"`
}

// VerdictDTO - быстрая оценка OK/No по треку.
type VerdictDTO struct {
	Track string `json:"track"`
	OK    bool   `json:"ok"`
}

// SimulationDTO - результат симуляции.
type SimulationDTO struct {
	Assessment *AssessmentDTO        `json:"assessment"`
	Verdicts   []VerdictDTO          `json:"verdicts"`
	Applied    []SimulatedSubjectDTO `json:"applied"`
}

// SimulateHandler обрабатывает запрос симуляции. Результаты не кешируются.
type SimulateHandler struct {
	loader *CohortLoader
	engine *orientation.Engine
}

// NewSimulateHandler создаёт обработчик.
func NewSimulateHandler(loader *CohortLoader, engine *orientation.Engine) *SimulateHandler {
	return &SimulateHandler{loader: loader, engine: engine}
}

// Handle выполняет запрос.
func (h *SimulateHandler) Handle(ctx context.Context, query SimulateQuery) (*SimulationDTO, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "Simulate", shared.ErrValidation, err.Error(), err)
	}

	snap, err := h.loader.Load(ctx, query.Section)
	if err != nil {
		return nil, err
	}
	if _, ok := snap.Cohort.Student(query.StudentID); !ok {
		return nil, shared.ErrStudentNotFound
	}

	overlay := gradebook.NewOverlay()
	applied := make([]SimulatedSubjectDTO, 0, len(query.Grades))
	for _, g := range query.Grades {
		subject, ok := findSubject(snap.Cohort.Catalog, g)
		if !ok {
			return nil, shared.WrapError("query", "Simulate", shared.ErrNotFound,
				fmt.Sprintf("subject %q not found in section", g.SubjectID), shared.ErrSubjectNotFound)
		}
		rec := overlay.Simulate(query.StudentID, subject, gradebook.SimulatedInput{
			DS:   gradebook.ParseGrade(string(g.DS)),
			TP:   gradebook.ParseGrade(string(g.TP)),
			Exam: gradebook.ParseGrade(string(g.Exam)),
		})
		applied = append(applied, SimulatedSubjectDTO{
			SubjectID: subject.ID,
			Name:      subject.Name,
			Semester:  int(subject.Semester),
			DS:        rec.DS,
			TP:        rec.TP,
			Exam:      rec.Exam,
			Final:     *rec.Final,
		})
	}

	assessment, err := h.engine.Evaluate(snap.Cohort, query.StudentID, overlay)
	if err != nil {
		return nil, err
	}
	verdicts, err := h.engine.Verdicts(snap.Cohort, query.StudentID, overlay)
	if err != nil {
		return nil, err
	}

	result := &SimulationDTO{
		Assessment: NewAssessmentDTO(assessment, snap.Fingerprint),
		Verdicts:   make([]VerdictDTO, 0, len(verdicts)),
		Applied:    applied,
	}
	for _, v := range verdicts {
		result.Verdicts = append(result.Verdicts, VerdictDTO{Track: string(v.Track), OK: v.OK})
	}
	return result, nil
}

func findSubject(catalog *gradebook.Catalog, g SimulatedGrade) (gradebook.Subject, bool) {
	if g.Semester == 0 {
		return catalog.FindByID(g.SubjectID)
	}
	return catalog.Find(gradebook.SubjectKey{SubjectID: g.SubjectID, Semester: gradebook.Semester(g.Semester)})
}
