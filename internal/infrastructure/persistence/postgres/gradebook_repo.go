package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mpi-hub/orientation-hub/internal/domain/gradebook"
)

// GradebookRepository implements gradebook.Repository and gradebook.Writer.
type GradebookRepository struct {
	conn *Connection
}

// NewGradebookRepository creates a new GradebookRepository.
func NewGradebookRepository(conn *Connection) *GradebookRepository {
	return &GradebookRepository{conn: conn}
}

var (
	_ gradebook.Repository = (*GradebookRepository)(nil)
	_ gradebook.Writer     = (*GradebookRepository)(nil)
)

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// ListSubjects returns the section's subjects plus shared ones (empty section).
func (r *GradebookRepository) ListSubjects(ctx context.Context, section string) ([]gradebook.Subject, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, semester, name, section, has_tp, weight_ds, weight_tp, weight_exam, coefficient
		FROM subjects
		WHERE $1 = '' OR section = '' OR lower(section) = $1
		ORDER BY semester, id
	`
	rows, err := r.conn.Pool().Query(ctx, query, gradebook.NormalizeSection(section))
	if err != nil {
		return nil, fmt.Errorf("postgres: list subjects: %w", err)
	}
	defer rows.Close()

	var out []gradebook.Subject
	for rows.Next() {
		var s gradebook.Subject
		var sem int16
		if err := rows.Scan(&s.ID, &sem, &s.Name, &s.Section, &s.HasTP,
			&s.Weights.DS, &s.Weights.TP, &s.Weights.Exam, &s.Coefficient); err != nil {
			return nil, fmt.Errorf("postgres: scan subject: %w", err)
		}
		s.Semester = gradebook.Semester(sem)
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListStudents returns the section's students with all their grades.
func (r *GradebookRepository) ListStudents(ctx context.Context, section string) ([]*gradebook.Student, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	sec := gradebook.NormalizeSection(section)
	rows, err := r.conn.Pool().Query(ctx, `
		SELECT id, first_name, last_name, section
		FROM students
		WHERE $1 = '' OR lower(section) = $1
		ORDER BY id
	`, sec)
	if err != nil {
		return nil, fmt.Errorf("postgres: list students: %w", err)
	}

	var students []*gradebook.Student
	byID := make(map[string]*gradebook.Student)
	for rows.Next() {
		var id, first, last, sect string
		if err := rows.Scan(&id, &first, &last, &sect); err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: scan student: %w", err)
		}
		s, err := gradebook.NewStudent(id, first, last, sect)
		if err != nil {
			continue
		}
		students = append(students, s)
		byID[s.ID] = s
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list students: %w", err)
	}
	if len(students) == 0 {
		return students, nil
	}

	grows, err := r.conn.Pool().Query(ctx, `
		SELECT g.student_id, g.subject_id, g.semester, g.ds, g.tp, g.exam, g.final
		FROM grades g
		JOIN students s ON s.id = g.student_id
		WHERE $1 = '' OR lower(s.section) = $1
	`, sec)
	if err != nil {
		return nil, fmt.Errorf("postgres: list grades: %w", err)
	}
	defer grows.Close()

	for grows.Next() {
		var studentID, subjectID string
		var sem int16
		var rec gradebook.GradeRecord
		if err := grows.Scan(&studentID, &subjectID, &sem, &rec.DS, &rec.TP, &rec.Exam, &rec.Final); err != nil {
			return nil, fmt.Errorf("postgres: scan grade: %w", err)
		}
		if s, ok := byID[studentID]; ok {
			s.SetGrade(gradebook.SubjectKey{SubjectID: subjectID, Semester: gradebook.Semester(sem)}, rec)
		}
	}
	return students, grows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

const upsertSubjectSQL = `
	INSERT INTO subjects (id, semester, name, section, has_tp, weight_ds, weight_tp, weight_exam, coefficient, synced_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	ON CONFLICT (id, semester) DO UPDATE SET
		name = EXCLUDED.name,
		section = EXCLUDED.section,
		has_tp = EXCLUDED.has_tp,
		weight_ds = EXCLUDED.weight_ds,
		weight_tp = EXCLUDED.weight_tp,
		weight_exam = EXCLUDED.weight_exam,
		coefficient = EXCLUDED.coefficient,
		synced_at = NOW()
`

const upsertStudentSQL = `
	INSERT INTO students (id, first_name, last_name, section, synced_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (id) DO UPDATE SET
		first_name = EXCLUDED.first_name,
		last_name = EXCLUDED.last_name,
		section = EXCLUDED.section,
		synced_at = NOW()
`

const upsertGradeSQL = `
	INSERT INTO grades (student_id, subject_id, semester, ds, tp, exam, final, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	ON CONFLICT (student_id, subject_id, semester) DO UPDATE SET
		ds = EXCLUDED.ds,
		tp = EXCLUDED.tp,
		exam = EXCLUDED.exam,
		final = EXCLUDED.final,
		updated_at = NOW()
`

// UpsertSubjects stores the catalog in one transaction.
// Subjects that fail validation are rejected before anything is written.
func (r *GradebookRepository) UpsertSubjects(ctx context.Context, subjects []gradebook.Subject) error {
	for _, s := range subjects {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("postgres: subject %s: %w", s.Key(), err)
		}
	}

	return r.conn.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, s := range subjects {
			batch.Queue(upsertSubjectSQL, s.ID, int16(s.Semester), s.Name, strings.TrimSpace(s.Section),
				s.HasTP, s.Weights.DS, s.Weights.TP, s.Weights.Exam, s.Coefficient)
		}
		return sendBatch(ctx, tx, batch)
	})
}

// UpsertStudents stores students and replaces their grades in one transaction.
// Grades absent from a student's record are removed from the mirror.
func (r *GradebookRepository) UpsertStudents(ctx context.Context, students []*gradebook.Student) error {
	return r.conn.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, s := range students {
			if s == nil {
				continue
			}
			batch.Queue(upsertStudentSQL, s.ID, s.FirstName, s.LastName, gradebook.NormalizeSection(s.Section))
			batch.Queue(`DELETE FROM grades WHERE student_id = $1`, s.ID)
			for key, rec := range s.Grades {
				if rec.IsEmpty() {
					continue
				}
				batch.Queue(upsertGradeSQL, s.ID, key.SubjectID, int16(key.Semester),
					rec.DS, rec.TP, rec.Exam, rec.Final)
			}
		}
		return sendBatch(ctx, tx, batch)
	})
}

func sendBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("postgres: batch statement %d: %w", i, err)
		}
	}
	return results.Close()
}
