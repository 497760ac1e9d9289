package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: GRADEBOOK MIRROR
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS students (
    id TEXT PRIMARY KEY,
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    section TEXT NOT NULL,
    synced_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_students_section ON students(lower(section));

-- Subject ids repeat across semesters, so the semester is part of the key.
CREATE TABLE IF NOT EXISTS subjects (
    id TEXT NOT NULL,
    semester SMALLINT NOT NULL,
    name TEXT NOT NULL,
    section TEXT NOT NULL DEFAULT '',
    has_tp BOOLEAN NOT NULL DEFAULT FALSE,
    weight_ds DOUBLE PRECISION NOT NULL DEFAULT 0,
    weight_tp DOUBLE PRECISION NOT NULL DEFAULT 0,
    weight_exam DOUBLE PRECISION NOT NULL DEFAULT 0,
    coefficient DOUBLE PRECISION NOT NULL DEFAULT 0,
    synced_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    PRIMARY KEY (id, semester),

    CONSTRAINT valid_semester CHECK (semester IN (1, 2)),
    CONSTRAINT valid_weights CHECK (weight_ds >= 0 AND weight_tp >= 0 AND weight_exam >= 0),
    CONSTRAINT valid_coefficient CHECK (coefficient >= 0)
);

CREATE INDEX IF NOT EXISTS idx_subjects_section ON subjects(lower(section));

-- NULL means "not yet graded", which is different from 0.
CREATE TABLE IF NOT EXISTS grades (
    student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    subject_id TEXT NOT NULL,
    semester SMALLINT NOT NULL,
    ds DOUBLE PRECISION,
    tp DOUBLE PRECISION,
    exam DOUBLE PRECISION,
    final DOUBLE PRECISION,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    PRIMARY KEY (student_id, subject_id, semester)
);

CREATE INDEX IF NOT EXISTS idx_grades_subject ON grades(subject_id, semester);
`

const migration001Down = `
DROP TABLE IF EXISTS grades;
DROP TABLE IF EXISTS subjects;
DROP TABLE IF EXISTS students;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: SYNC RUNS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS sync_runs (
    id UUID PRIMARY KEY,
    section TEXT NOT NULL,
    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    finished_at TIMESTAMP WITH TIME ZONE,
    students INTEGER NOT NULL DEFAULT 0,
    subjects INTEGER NOT NULL DEFAULT 0,
    failed_students INTEGER NOT NULL DEFAULT 0,
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_section_started ON sync_runs(section, started_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS sync_runs;
`

// Migrations returns all embedded migrations in order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_gradebook", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_sync_runs", UpSQL: migration002Up, DownSQL: migration002Down},
	}
}
