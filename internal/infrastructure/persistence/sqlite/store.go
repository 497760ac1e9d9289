// Package sqlite reads and writes an offline gradebook snapshot stored in a
// single SQLite file. It serves as a grade source when neither Postgres nor
// the upstream API is available.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mpi-hub/orientation-hub/internal/domain/gradebook"
)

// ErrEmptyPath is returned when no database file is configured.
var ErrEmptyPath = errors.New("sqlite: database path is empty")

const schema = `
CREATE TABLE IF NOT EXISTS students (
    id TEXT PRIMARY KEY,
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    section TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS subjects (
    id TEXT NOT NULL,
    semester INTEGER NOT NULL,
    name TEXT NOT NULL,
    section TEXT NOT NULL DEFAULT '',
    has_tp INTEGER NOT NULL DEFAULT 0,
    weight_ds REAL NOT NULL DEFAULT 0,
    weight_tp REAL NOT NULL DEFAULT 0,
    weight_exam REAL NOT NULL DEFAULT 0,
    coefficient REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (id, semester)
);

CREATE TABLE IF NOT EXISTS grades (
    student_id TEXT NOT NULL,
    subject_id TEXT NOT NULL,
    semester INTEGER NOT NULL,
    ds REAL,
    tp REAL,
    exam REAL,
    final REAL,
    PRIMARY KEY (student_id, subject_id, semester)
);
`

// Store is a gradebook snapshot backed by database/sql.
type Store struct {
	db *sql.DB
}

var (
	_ gradebook.Repository = (*Store)(nil)
	_ gradebook.Writer     = (*Store)(nil)
)

// Open opens (or creates) the snapshot file and ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// A single writer avoids SQLITE_BUSY on concurrent upserts.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ListSubjects returns the section's subjects plus shared ones.
func (s *Store) ListSubjects(ctx context.Context, section string) ([]gradebook.Subject, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, semester, name, section, has_tp, weight_ds, weight_tp, weight_exam, coefficient
		FROM subjects
		WHERE ?1 = '' OR section = '' OR lower(section) = ?1
		ORDER BY semester, id`, gradebook.NormalizeSection(section))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list subjects: %w", err)
	}
	defer rows.Close()

	var out []gradebook.Subject
	for rows.Next() {
		var subj gradebook.Subject
		var sem int
		var name, sect sql.NullString
		if err := rows.Scan(&subj.ID, &sem, &name, &sect, &subj.HasTP,
			&subj.Weights.DS, &subj.Weights.TP, &subj.Weights.Exam, &subj.Coefficient); err != nil {
			return nil, fmt.Errorf("sqlite: scan subject: %w", err)
		}
		subj.Semester = gradebook.Semester(sem)
		subj.Name = name.String
		subj.Section = sect.String
		out = append(out, subj)
	}
	return out, rows.Err()
}

// ListStudents returns the section's students with their grades.
func (s *Store) ListStudents(ctx context.Context, section string) ([]*gradebook.Student, error) {
	sec := gradebook.NormalizeSection(section)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, first_name, last_name, section
		FROM students
		WHERE ?1 = '' OR lower(section) = ?1
		ORDER BY id`, sec)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list students: %w", err)
	}

	var students []*gradebook.Student
	byID := make(map[string]*gradebook.Student)
	for rows.Next() {
		var id, first, last, sect sql.NullString
		if err := rows.Scan(&id, &first, &last, &sect); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scan student: %w", err)
		}
		st, err := gradebook.NewStudent(id.String, first.String, last.String, sect.String)
		if err != nil {
			continue
		}
		students = append(students, st)
		byID[st.ID] = st
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list students: %w", err)
	}
	if len(students) == 0 {
		return students, nil
	}

	grows, err := s.db.QueryContext(ctx, `
		SELECT g.student_id, g.subject_id, g.semester, g.ds, g.tp, g.exam, g.final
		FROM grades g
		JOIN students s ON s.id = g.student_id
		WHERE ?1 = '' OR lower(s.section) = ?1`, sec)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list grades: %w", err)
	}
	defer grows.Close()

	for grows.Next() {
		var studentID, subjectID string
		var sem int
		var ds, tp, exam, final sql.NullFloat64
		if err := grows.Scan(&studentID, &subjectID, &sem, &ds, &tp, &exam, &final); err != nil {
			return nil, fmt.Errorf("sqlite: scan grade: %w", err)
		}
		st, ok := byID[studentID]
		if !ok {
			continue
		}
		st.SetGrade(gradebook.SubjectKey{SubjectID: subjectID, Semester: gradebook.Semester(sem)}, gradebook.GradeRecord{
			DS:    fromNull(ds),
			TP:    fromNull(tp),
			Exam:  fromNull(exam),
			Final: fromNull(final),
		})
	}
	return students, grows.Err()
}

// UpsertSubjects stores the catalog in one transaction.
func (s *Store) UpsertSubjects(ctx context.Context, subjects []gradebook.Subject) error {
	for _, subj := range subjects {
		if err := subj.Validate(); err != nil {
			return fmt.Errorf("sqlite: subject %s: %w", subj.Key(), err)
		}
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, subj := range subjects {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO subjects (id, semester, name, section, has_tp, weight_ds, weight_tp, weight_exam, coefficient)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (id, semester) DO UPDATE SET
					name = excluded.name, section = excluded.section, has_tp = excluded.has_tp,
					weight_ds = excluded.weight_ds, weight_tp = excluded.weight_tp,
					weight_exam = excluded.weight_exam, coefficient = excluded.coefficient`,
				subj.ID, int(subj.Semester), subj.Name, subj.Section, subj.HasTP,
				subj.Weights.DS, subj.Weights.TP, subj.Weights.Exam, subj.Coefficient)
			if err != nil {
				return fmt.Errorf("sqlite: upsert subject %s: %w", subj.Key(), err)
			}
		}
		return nil
	})
}

// UpsertStudents stores students and replaces their grades.
func (s *Store) UpsertStudents(ctx context.Context, students []*gradebook.Student) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, st := range students {
			if st == nil {
				continue
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO students (id, first_name, last_name, section) VALUES (?, ?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET
					first_name = excluded.first_name, last_name = excluded.last_name, section = excluded.section`,
				st.ID, st.FirstName, st.LastName, gradebook.NormalizeSection(st.Section))
			if err != nil {
				return fmt.Errorf("sqlite: upsert student %s: %w", st.ID, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM grades WHERE student_id = ?`, st.ID); err != nil {
				return fmt.Errorf("sqlite: clear grades %s: %w", st.ID, err)
			}
			for key, rec := range st.Grades {
				if rec.IsEmpty() {
					continue
				}
				_, err := tx.ExecContext(ctx, `
					INSERT INTO grades (student_id, subject_id, semester, ds, tp, exam, final)
					VALUES (?, ?, ?, ?, ?, ?, ?)`,
					st.ID, key.SubjectID, int(key.Semester),
					toNull(rec.DS), toNull(rec.TP), toNull(rec.Exam), toNull(rec.Final))
				if err != nil {
					return fmt.Errorf("sqlite: insert grade %s %s: %w", st.ID, key, err)
				}
			}
		}
		return nil
	})
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return gradebook.Grade(v.Float64)
}

func toNull(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
