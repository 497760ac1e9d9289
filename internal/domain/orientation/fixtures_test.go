package orientation

import (
	"github.com/mpi-hub/orientation-hub/internal/domain/gradebook"
)

func subject(id, name string, sem gradebook.Semester, coef float64) gradebook.Subject {
	return gradebook.Subject{
		ID:          id,
		Name:        name,
		Section:     "mpi",
		Semester:    sem,
		Weights:     gradebook.Weights{DS: 0.4, Exam: 0.6},
		Coefficient: coef,
	}
}

type grades map[gradebook.SubjectKey]gradebook.GradeRecord

func final(v float64) gradebook.GradeRecord {
	return gradebook.GradeRecord{Final: gradebook.Grade(v)}
}

func newStudent(id string, g grades) *gradebook.Student {
	s, err := gradebook.NewStudent(id, "First"+id, "Last"+id, "mpi")
	if err != nil {
		panic(err)
	}
	for k, rec := range g {
		s.SetGrade(k, rec)
	}
	return s
}

// logicCohort builds a cohort whose only subject is "sys logique" with coefficient 1,
// so every ranked track scores 3 × final.
func logicCohort(finals map[string]float64) *gradebook.Cohort {
	logic := subject("L", SubjectLogic, gradebook.SemesterTwo, 1)
	students := make([]*gradebook.Student, 0, len(finals))
	for id, f := range finals {
		students = append(students, newStudent(id, grades{logic.Key(): final(f)}))
	}
	return gradebook.NewCohort("mpi", students, []gradebook.Subject{logic})
}
