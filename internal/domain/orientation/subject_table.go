package orientation

import (
	"github.com/mpi-hub/orientation-hub/internal/domain/gradebook"
	"github.com/mpi-hub/orientation-hub/internal/domain/ranking"
)

// SubjectRow - строка таблицы предметов: оценки студента, средние по
// секции и место студента по итоговой оценке.
type SubjectRow struct {
	Subject  gradebook.Subject
	Semester gradebook.Semester

	// Оценки студента; TP всегда nil для предметов без TP.
	Own gradebook.GradeRecord

	// Средние выставленных оценок секции, округлённые до 2 знаков.
	Means gradebook.GradeRecord

	// Rank - место среди студентов с итоговой оценкой; 0, если у
	// студента её нет.
	Rank   ranking.Rank
	Graded int
}

// SubjectTable строит таблицу по всем предметам каталога: сначала первый
// семестр, затем второй. ok=false, если студента нет в когорте.
func SubjectTable(cohort *gradebook.Cohort, studentID string) ([]SubjectRow, bool) {
	student, ok := cohort.Student(studentID)
	if !ok {
		return nil, false
	}

	first, second := cohort.Catalog.Split()
	rows := make([]SubjectRow, 0, len(first)+len(second))
	for _, subj := range append(first, second...) {
		rows = append(rows, subjectRow(cohort, student, subj))
	}
	return rows, true
}

func subjectRow(cohort *gradebook.Cohort, student *gradebook.Student, subj gradebook.Subject) SubjectRow {
	row := SubjectRow{Subject: subj, Semester: subj.Semester}

	if own, ok := student.Grade(subj.Key()); ok {
		row.Own = own.Clone()
		if !subj.HasTP {
			row.Own.TP = nil
		}
	}

	var ds, tp, exam, fin meanAcc
	finals := make(map[string]float64)
	for _, s := range cohort.Students() {
		rec, ok := s.Grade(subj.Key())
		if !ok {
			continue
		}
		ds.add(rec.DS)
		if subj.HasTP {
			tp.add(rec.TP)
		}
		exam.add(rec.Exam)
		if rec.HasFinal() {
			fin.add(rec.Final)
			finals[s.ID] = *rec.Final
		}
	}
	row.Means = gradebook.GradeRecord{DS: ds.mean(), TP: tp.mean(), Exam: exam.mean(), Final: fin.mean()}
	row.Graded = len(finals)

	if row.Own.HasFinal() {
		row.Rank, _ = ranking.FromScores(finals).RankOf(student.ID)
	}
	return row
}

type meanAcc struct {
	sum float64
	n   int
}

func (a *meanAcc) add(v *float64) {
	if v != nil {
		a.sum += *v
		a.n++
	}
}

func (a *meanAcc) mean() *float64 {
	if a.n == 0 {
		return nil
	}
	m := gradebook.Round2(a.sum / float64(a.n))
	return &m
}
