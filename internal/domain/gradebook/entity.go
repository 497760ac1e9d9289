package gradebook

import (
	"fmt"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Semester - номер семестра (1 или 2).
type Semester int

const (
	// SemesterOne - первый семестр.
	SemesterOne Semester = 1
	// SemesterTwo - второй семестр.
	SemesterTwo Semester = 2
)

// IsValid проверяет, что семестр равен 1 или 2.
func (s Semester) IsValid() bool {
	return s == SemesterOne || s == SemesterTwo
}

// String возвращает строковое представление семестра.
func (s Semester) String() string {
	return fmt.Sprintf("S%d", int(s))
}

// Semesters - все семестры учебного года по порядку.
var Semesters = []Semester{SemesterOne, SemesterTwo}

// SubjectKey идентифицирует предмет внутри учебного года.
// Один и тот же ID в разных семестрах - это разные ключи.
type SubjectKey struct {
	SubjectID string
	Semester  Semester
}

// String возвращает строковое представление ключа.
func (k SubjectKey) String() string {
	return fmt.Sprintf("%s/%s", k.SubjectID, k.Semester)
}

// Component - компонент оценки.
type Component string

const (
	ComponentDS    Component = "DS"
	ComponentTP    Component = "TP"
	ComponentExam  Component = "Exam"
	ComponentFinal Component = "Final"
)

// Grade bounds.
const (
	MinGrade = 0.0
	MaxGrade = 20.0
)

// GradeRecord - оценки по одному предмету в одном семестре.
// nil означает "ещё не выставлено".
type GradeRecord struct {
	DS    *float64
	TP    *float64
	Exam  *float64
	Final *float64
}

// Value возвращает значение указанного компонента.
func (g GradeRecord) Value(c Component) *float64 {
	switch c {
	case ComponentDS:
		return g.DS
	case ComponentTP:
		return g.TP
	case ComponentExam:
		return g.Exam
	case ComponentFinal:
		return g.Final
	default:
		return nil
	}
}

// HasFinal возвращает true, если итоговая оценка выставлена.
func (g GradeRecord) HasFinal() bool {
	return g.Final != nil
}

// IsEmpty возвращает true, если ни один компонент не выставлен.
func (g GradeRecord) IsEmpty() bool {
	return g.DS == nil && g.TP == nil && g.Exam == nil && g.Final == nil
}

// Clone создаёт независимую копию записи.
func (g GradeRecord) Clone() GradeRecord {
	return GradeRecord{
		DS:    clonePtr(g.DS),
		TP:    clonePtr(g.TP),
		Exam:  clonePtr(g.Exam),
		Final: clonePtr(g.Final),
	}
}

func clonePtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Grade возвращает указатель на значение. Удобно для литералов и тестов.
func Grade(v float64) *float64 {
	return &v
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// Student - студент с оценками за учебный год.
type Student struct {
	// ID - идентификатор студента (national id в исходной системе).
	ID string

	// FirstName / LastName - имя и фамилия (prenom / nom).
	FirstName string
	LastName  string

	// Section - метка секции (когорты), например "mpi".
	Section string

	// Grades - оценки, адресованные ключом (предмет, семестр).
	Grades map[SubjectKey]GradeRecord
}

// NewStudent создаёт студента с пустым журналом.
func NewStudent(id, firstName, lastName, section string) (*Student, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrEmptyStudentID
	}
	return &Student{
		ID:        id,
		FirstName: firstName,
		LastName:  lastName,
		Section:   section,
		Grades:    make(map[SubjectKey]GradeRecord),
	}, nil
}

// DisplayName возвращает отображаемое имя студента.
func (s *Student) DisplayName() string {
	name := strings.TrimSpace(s.FirstName + " " + s.LastName)
	if name == "" {
		return s.ID
	}
	return name
}

// Grade возвращает запись оценок по ключу.
func (s *Student) Grade(key SubjectKey) (GradeRecord, bool) {
	if s == nil || s.Grades == nil {
		return GradeRecord{}, false
	}
	rec, ok := s.Grades[key]
	return rec, ok
}

// SetGrade сохраняет запись оценок по ключу.
func (s *Student) SetGrade(key SubjectKey, rec GradeRecord) {
	if s.Grades == nil {
		s.Grades = make(map[SubjectKey]GradeRecord)
	}
	s.Grades[key] = rec
}

// InSection проверяет принадлежность студента секции.
func (s *Student) InSection(section string) bool {
	return SameSection(s.Section, section)
}

// SameSection сравнивает метки секций без учёта регистра и пробелов.
func SameSection(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// NormalizeSection приводит метку секции к каноническому виду.
func NormalizeSection(section string) string {
	return strings.ToLower(strings.TrimSpace(section))
}
