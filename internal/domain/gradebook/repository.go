package gradebook

import (
	"context"
	"errors"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// COHORT
// ══════════════════════════════════════════════════════════════════════════════

// Cohort - снимок секции в памяти: студенты и каталог предметов.
// Все ранжирования и средние считаются в пределах одной когорты.
type Cohort struct {
	Section  string
	Catalog  *Catalog
	students []*Student
	byID     map[string]*Student
}

// NewCohort собирает когорту. Студенты и предметы других секций отбрасываются.
// Предмет с пустой секцией считается общим.
func NewCohort(section string, students []*Student, subjects []Subject) *Cohort {
	c := &Cohort{
		Section: NormalizeSection(section),
		byID:    make(map[string]*Student, len(students)),
	}

	for _, s := range students {
		if s == nil || !s.InSection(section) {
			continue
		}
		if _, dup := c.byID[s.ID]; dup {
			continue
		}
		c.students = append(c.students, s)
		c.byID[s.ID] = s
	}
	sort.SliceStable(c.students, func(i, j int) bool {
		return c.students[i].ID < c.students[j].ID
	})

	filtered := make([]Subject, 0, len(subjects))
	for _, subj := range subjects {
		if subj.Section == "" || SameSection(subj.Section, section) {
			filtered = append(filtered, subj)
		}
	}
	c.Catalog = NewCatalog(filtered)
	return c
}

// Students возвращает студентов когорты (упорядочены по ID).
func (c *Cohort) Students() []*Student {
	result := make([]*Student, len(c.students))
	copy(result, c.students)
	return result
}

// Student возвращает студента по ID.
func (c *Cohort) Student(id string) (*Student, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Size возвращает размер когорты.
func (c *Cohort) Size() int {
	return len(c.students)
}

// IsEmpty возвращает true для пустой когорты.
func (c *Cohort) IsEmpty() bool {
	return len(c.students) == 0
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence и infrastructure/external.
// ══════════════════════════════════════════════════════════════════════════════

// Repository - источник журнала только на чтение.
type Repository interface {
	// ListStudents возвращает студентов секции вместе с оценками.
	// Пустая секция означает "все секции".
	ListStudents(ctx context.Context, section string) ([]*Student, error)

	// ListSubjects возвращает каталог предметов секции.
	ListSubjects(ctx context.Context, section string) ([]Subject, error)
}

// Writer - запись локального зеркала журнала (используется синхронизацией).
type Writer interface {
	// UpsertSubjects сохраняет каталог предметов.
	UpsertSubjects(ctx context.Context, subjects []Subject) error

	// UpsertStudents сохраняет студентов и их оценки.
	UpsertStudents(ctx context.Context, students []*Student) error
}

// LoadCohort загружает когорту из репозитория. Источник, реализующий
// SnapshotSource, читается за один проход и только целиком.
func LoadCohort(ctx context.Context, repo Repository, section string) (*Cohort, error) {
	if src, ok := repo.(SnapshotSource); ok {
		snap, err := src.Fetch(ctx, section)
		if err != nil {
			return nil, err
		}
		if err := snap.Complete(); err != nil {
			return nil, err
		}
		return NewCohort(section, snap.Students, snap.Subjects), nil
	}

	subjects, err := repo.ListSubjects(ctx, section)
	if err != nil {
		return nil, err
	}
	students, err := repo.ListStudents(ctx, section)
	if err != nil {
		return nil, err
	}
	return NewCohort(section, students, subjects), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEmptyStudentID - пустой ID студента.
	ErrEmptyStudentID = errors.New("invalid student id: cannot be empty")

	// ErrEmptySubjectID - пустой ID предмета.
	ErrEmptySubjectID = errors.New("invalid subject id: cannot be empty")

	// ErrNegativeWeight - отрицательный вес компонента.
	ErrNegativeWeight = errors.New("invalid weights: must be non-negative")

	// ErrNegativeCoefficient - отрицательный коэффициент предмета.
	ErrNegativeCoefficient = errors.New("invalid coefficient: must be non-negative")
)
