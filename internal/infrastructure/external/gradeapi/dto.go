package gradeapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENVELOPES
// ══════════════════════════════════════════════════════════════════════════════

// Envelope is the common part of every upstream response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// StudentsResponse is returned by GET /api/students.
type StudentsResponse struct {
	Envelope
	Students []StudentDTO `json:"students"`
}

// SubjectsResponse is returned by GET /api/matieres.
type SubjectsResponse struct {
	Envelope
	Subjects []SubjectDTO `json:"matieres"`
}

// GradesResponse is returned by GET /api/grades.
type GradesResponse struct {
	Envelope
	Grades GradeBookDTO `json:"grades"`
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

// StudentDTO is a student as listed upstream.
type StudentDTO struct {
	ID        FlexString `json:"id"`
	FirstName string     `json:"prenom"`
	LastName  string     `json:"nom"`
	Section   string     `json:"section"`
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// SubjectDTO is a subject (matière). Upstream sends either an object or a
// positional array [id, name, semester, has_tp, weights, overall_weight, section].
type SubjectDTO struct {
	ID            FlexString `json:"id"`
	Name          string     `json:"name"`
	Semester      FlexInt    `json:"semester"`
	HasTP         FlexBool   `json:"has_tp"`
	Weights       WeightsDTO `json:"weights"`
	OverallWeight FlexFloat  `json:"overall_weight"`
	Section       string     `json:"section"`
}

// UnmarshalJSON accepts both the object and the positional array form.
func (s *SubjectDTO) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return s.unmarshalArray(data)
	}

	type plain SubjectDTO
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = SubjectDTO(p)
	return nil
}

func (s *SubjectDTO) unmarshalArray(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	if len(items) < 6 {
		return fmt.Errorf("gradeapi: subject array has %d items, want at least 6", len(items))
	}

	var out SubjectDTO
	if err := json.Unmarshal(items[0], &out.ID); err != nil {
		return fmt.Errorf("gradeapi: subject id: %w", err)
	}
	var name FlexString
	if err := json.Unmarshal(items[1], &name); err != nil {
		return fmt.Errorf("gradeapi: subject name: %w", err)
	}
	out.Name = string(name)
	if err := json.Unmarshal(items[2], &out.Semester); err != nil {
		return fmt.Errorf("gradeapi: subject semester: %w", err)
	}
	if err := json.Unmarshal(items[3], &out.HasTP); err != nil {
		return fmt.Errorf("gradeapi: subject has_tp: %w", err)
	}
	if err := json.Unmarshal(items[4], &out.Weights); err != nil {
		return fmt.Errorf("gradeapi: subject weights: %w", err)
	}
	if err := json.Unmarshal(items[5], &out.OverallWeight); err != nil {
		return fmt.Errorf("gradeapi: subject overall_weight: %w", err)
	}
	if len(items) > 6 {
		var section FlexString
		if err := json.Unmarshal(items[6], &section); err == nil {
			out.Section = string(section)
		}
	}
	*s = out
	return nil
}

// WeightsDTO holds component weights. Upstream sends an object or a JSON
// string encoding that object; an unparseable string yields zero weights.
type WeightsDTO struct {
	DS   float64
	TP   float64
	Exam float64
}

type weightsObject struct {
	DS   FlexFloat `json:"DS"`
	TP   FlexFloat `json:"TP"`
	Exam FlexFloat `json:"Exam"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (w *WeightsDTO) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*w = WeightsDTO{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		data = []byte(s)
	}

	var obj weightsObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}
	w.DS = obj.DS.Value()
	w.TP = obj.TP.Value()
	w.Exam = obj.Exam.Value()
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GRADES
// ══════════════════════════════════════════════════════════════════════════════

// GradeBookDTO holds one student's grades per semester, keyed by subject id.
type GradeBookDTO struct {
	S1 map[string]GradeDTO `json:"grades_s1"`
	S2 map[string]GradeDTO `json:"grades_s2"`
}

// GradeDTO is one subject's grade components. Absent means "not graded".
type GradeDTO struct {
	DS    *FlexFloat `json:"DS"`
	TP    *FlexFloat `json:"TP"`
	Exam  *FlexFloat `json:"Exam"`
	Final *FlexFloat `json:"Final"`
}

// ══════════════════════════════════════════════════════════════════════════════
// FLEXIBLE SCALARS
// ══════════════════════════════════════════════════════════════════════════════

// FlexString accepts a JSON string or number.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("gradeapi: expected string or number, got %s", data)
	}
	*f = FlexString(n.String())
	return nil
}

// FlexInt accepts a JSON number or numeric string.
type FlexInt int

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	var s FlexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(s), 64)
	if err != nil {
		return fmt.Errorf("gradeapi: invalid integer %q", string(s))
	}
	*f = FlexInt(int(v))
	return nil
}

// FlexBool accepts true/false, 0/1 and their string forms.
type FlexBool bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = FlexBool(b)
		return nil
	}
	var s FlexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	switch strings.ToLower(string(s)) {
	case "1", "true", "yes", "oui":
		*f = true
	default:
		*f = false
	}
	return nil
}

// FlexFloat accepts a JSON number or a numeric string; a comma is read as a
// decimal point. Non-numeric text decodes as absent (Valid=false).
type FlexFloat struct {
	V     float64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	*f = FlexFloat{}
	var s FlexString
	if err := s.UnmarshalJSON(data); err != nil {
		return nil
	}
	text := strings.ReplaceAll(string(s), ",", ".")
	if text == "" {
		return nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil
	}
	f.V, f.Valid = v, true
	return nil
}

// Value returns the number or 0 when absent.
func (f FlexFloat) Value() float64 {
	if !f.Valid {
		return 0
	}
	return f.V
}

// Ptr returns a pointer to the number or nil when absent.
func (f *FlexFloat) Ptr() *float64 {
	if f == nil || !f.Valid {
		return nil
	}
	v := f.V
	return &v
}
