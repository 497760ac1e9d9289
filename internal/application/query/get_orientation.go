package query

import (
	"context"
	"errors"
	"strings"

	"github.com/mpi-hub/orientation-hub/internal/domain/orientation"
	"github.com/mpi-hub/orientation-hub/internal/domain/shared"
	"github.com/mpi-hub/orientation-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ORIENTATION QUERY
// Оценка шансов студента по всем трекам на реальных данных секции.
// ══════════════════════════════════════════════════════════════════════════════

// GetOrientationQuery содержит параметры запроса.
type GetOrientationQuery struct {
	Section   string
	StudentID string
}

// Validate проверяет корректность параметров запроса.
func (q *GetOrientationQuery) Validate() error {
	return validateStudentRef(&q.Section, &q.StudentID)
}

// validateStudentRef нормализует пару (секция, студент).
func validateStudentRef(section, studentID *string) error {
	*section = strings.TrimSpace(*section)
	*studentID = strings.TrimSpace(*studentID)
	if *section == "" {
		return errors.New("section is required")
	}
	if *studentID == "" {
		return errors.New("student_id is required")
	}
	return nil
}

// ReportCache хранит готовые отчёты по отпечатку секции.
// Ошибки кеша не прерывают запрос.
type ReportCache interface {
	GetReport(ctx context.Context, section, fingerprint, studentID string, dest any) error
	SetReport(ctx context.Context, section, fingerprint, studentID string, report any) error
}

// GetOrientationHandler обрабатывает запрос оценки шансов.
type GetOrientationHandler struct {
	loader *CohortLoader
	engine *orientation.Engine
	cache  ReportCache
	log    *logger.Logger
}

// NewGetOrientationHandler создаёт обработчик. cache может быть nil.
func NewGetOrientationHandler(
	loader *CohortLoader,
	engine *orientation.Engine,
	cache ReportCache,
	log *logger.Logger,
) *GetOrientationHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetOrientationHandler{
		loader: loader,
		engine: engine,
		cache:  cache,
		log:    log.With(logger.Component("query.orientation")),
	}
}

// Handle выполняет запрос.
func (h *GetOrientationHandler) Handle(ctx context.Context, query GetOrientationQuery) (*AssessmentDTO, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetOrientation", shared.ErrValidation, err.Error(), err)
	}

	snap, err := h.loader.Load(ctx, query.Section)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		var cached AssessmentDTO
		if err := h.cache.GetReport(ctx, snap.Cohort.Section, snap.Fingerprint, query.StudentID, &cached); err == nil {
			return &cached, nil
		}
	}

	assessment, err := h.engine.Evaluate(snap.Cohort, query.StudentID, nil)
	if err != nil {
		return nil, err
	}
	dto := NewAssessmentDTO(assessment, snap.Fingerprint)

	if h.cache != nil {
		if err := h.cache.SetReport(ctx, snap.Cohort.Section, snap.Fingerprint, query.StudentID, dto); err != nil {
			h.log.Warn("failed to cache report",
				logger.Section(snap.Cohort.Section),
				logger.StudentID(query.StudentID),
				logger.Err(err))
		}
	}
	return dto, nil
}
