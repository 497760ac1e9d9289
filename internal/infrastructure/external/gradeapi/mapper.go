package gradeapi

import (
	"github.com/mpi-hub/orientation-hub/internal/domain/gradebook"
)

// Mapper converts upstream DTOs into gradebook entities.
type Mapper struct{}

// NewMapper creates a Mapper.
func NewMapper() *Mapper {
	return &Mapper{}
}

// ToStudent maps a student. Entries without an id are rejected.
func (m *Mapper) ToStudent(dto StudentDTO) (*gradebook.Student, error) {
	return gradebook.NewStudent(string(dto.ID), dto.FirstName, dto.LastName, dto.Section)
}

// ToSubject maps a subject. HasTP=false forces the TP weight out of the final.
func (m *Mapper) ToSubject(dto SubjectDTO) gradebook.Subject {
	return gradebook.Subject{
		ID:       string(dto.ID),
		Name:     dto.Name,
		Section:  dto.Section,
		Semester: gradebook.Semester(dto.Semester),
		HasTP:    bool(dto.HasTP),
		Weights: gradebook.Weights{
			DS:   dto.Weights.DS,
			TP:   dto.Weights.TP,
			Exam: dto.Weights.Exam,
		},
		Coefficient: dto.OverallWeight.Value(),
	}
}

// ToSubjects maps a catalog, dropping subjects that fail validation.
// The dropped ones are returned so the caller can log them.
func (m *Mapper) ToSubjects(dtos []SubjectDTO) (valid []gradebook.Subject, rejected []gradebook.Subject) {
	for _, dto := range dtos {
		s := m.ToSubject(dto)
		if err := s.Validate(); err != nil {
			rejected = append(rejected, s)
			continue
		}
		valid = append(valid, s)
	}
	return valid, rejected
}

// ToGradeRecord maps one subject's components.
func (m *Mapper) ToGradeRecord(dto GradeDTO) gradebook.GradeRecord {
	return gradebook.GradeRecord{
		DS:    dto.DS.Ptr(),
		TP:    dto.TP.Ptr(),
		Exam:  dto.Exam.Ptr(),
		Final: dto.Final.Ptr(),
	}
}

// ApplyGrades writes a grade book into the student. Grades are keyed by
// subject id; a key matching no id in the semester is tried as a subject name.
// Unknown subjects and empty records are skipped.
func (m *Mapper) ApplyGrades(s *gradebook.Student, book GradeBookDTO, catalog *gradebook.Catalog) int {
	applied := 0
	for _, sem := range gradebook.Semesters {
		grades := book.S1
		if sem == gradebook.SemesterTwo {
			grades = book.S2
		}
		for key, dto := range grades {
			subj, ok := resolveSubject(catalog, key, sem)
			if !ok {
				continue
			}
			rec := m.ToGradeRecord(dto)
			if rec.IsEmpty() {
				continue
			}
			s.SetGrade(subj.Key(), rec)
			applied++
		}
	}
	return applied
}

func resolveSubject(catalog *gradebook.Catalog, key string, sem gradebook.Semester) (gradebook.Subject, bool) {
	if subj, ok := catalog.Find(gradebook.SubjectKey{SubjectID: key, Semester: sem}); ok {
		return subj, true
	}
	for _, subj := range catalog.ByName(key) {
		if subj.Semester == sem {
			return subj, true
		}
	}
	return gradebook.Subject{}, false
}
