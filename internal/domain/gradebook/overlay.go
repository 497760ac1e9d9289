package gradebook

import (
	"math"
	"strconv"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRADE OVERLAY
// ══════════════════════════════════════════════════════════════════════════════

// Overlay - набор гипотетических оценок поверх реального журнала.
// Ключ - (студент, предмет). Если переопределения нет, используются реальные данные.
// nil *Overlay допустим и означает "без симуляции".
type Overlay struct {
	records map[string]map[SubjectKey]GradeRecord
}

// NewOverlay создаёт пустой Overlay.
func NewOverlay() *Overlay {
	return &Overlay{records: make(map[string]map[SubjectKey]GradeRecord)}
}

// Set переопределяет запись оценок студента по предмету.
func (o *Overlay) Set(studentID string, key SubjectKey, rec GradeRecord) {
	if o.records == nil {
		o.records = make(map[string]map[SubjectKey]GradeRecord)
	}
	byKey, ok := o.records[studentID]
	if !ok {
		byKey = make(map[SubjectKey]GradeRecord)
		o.records[studentID] = byKey
	}
	byKey[key] = rec.Clone()
}

// Get возвращает переопределение, если оно есть.
func (o *Overlay) Get(studentID string, key SubjectKey) (GradeRecord, bool) {
	if o == nil {
		return GradeRecord{}, false
	}
	rec, ok := o.records[studentID][key]
	return rec, ok
}

// Len возвращает общее число переопределённых записей.
func (o *Overlay) Len() int {
	if o == nil {
		return 0
	}
	n := 0
	for _, byKey := range o.records {
		n += len(byKey)
	}
	return n
}

// IsEmpty возвращает true, если переопределений нет.
func (o *Overlay) IsEmpty() bool {
	return o.Len() == 0
}

// Touches возвращает true, если у студента есть переопределения.
func (o *Overlay) Touches(studentID string) bool {
	if o == nil {
		return false
	}
	return len(o.records[studentID]) > 0
}

// Resolve возвращает запись студента с учётом переопределений.
func (o *Overlay) Resolve(s *Student, key SubjectKey) (GradeRecord, bool) {
	if s == nil {
		return GradeRecord{}, false
	}
	if rec, ok := o.Get(s.ID, key); ok {
		return rec, true
	}
	return s.Grade(key)
}

// SimulatedInput - введённые пользователем компоненты (уже нормализованные).
type SimulatedInput struct {
	DS   *float64
	TP   *float64
	Exam *float64
}

// Simulate пересчитывает итоговую оценку из введённых компонентов и
// сохраняет результат в Overlay. TP игнорируется, если у предмета нет TP.
func (o *Overlay) Simulate(studentID string, subject Subject, in SimulatedInput) GradeRecord {
	tp := in.TP
	if !subject.HasTP {
		tp = nil
	}
	final := subject.ComputeFinal(in.DS, tp, in.Exam)
	rec := GradeRecord{
		DS:    in.DS,
		TP:    tp,
		Exam:  in.Exam,
		Final: &final,
	}
	o.Set(studentID, subject.Key(), rec)
	return rec
}

// ParseGrade нормализует текстовый ввод оценки.
// Запятая заменяется точкой, нечисловой ввод даёт nil,
// значение ограничивается диапазоном [0, 20].
func ParseGrade(text string) *float64 {
	text = strings.TrimSpace(strings.ReplaceAll(text, ",", "."))
	if text == "" {
		return nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) {
		return nil
	}
	return Grade(ClampGrade(v))
}

// ClampGrade ограничивает значение диапазоном [0, 20].
func ClampGrade(v float64) float64 {
	switch {
	case v < MinGrade:
		return MinGrade
	case v > MaxGrade:
		return MaxGrade
	default:
		return v
	}
}
