package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store is the SQLite-backed persistence layer for exams, rosters and results.
type Store struct {
	db *sql.DB
}

// psql builds statements with SQLite's "?" placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serializes every transaction and keeps ":memory:" databases
	// shared across calls.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS students (
		roll TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		parent TEXT NOT NULL DEFAULT '',
		year TEXT NOT NULL,
		branch TEXT NOT NULL,
		section TEXT NOT NULL,
		password_hash TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS students_cohort ON students(year, branch, section);

	CREATE TABLE IF NOT EXISTS exams (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner TEXT NOT NULL,
		year TEXT NOT NULL,
		branch TEXT NOT NULL,
		section TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'DRAFT',
		start_time DATETIME,
		exam_date TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		closed_at DATETIME
	);
	CREATE UNIQUE INDEX IF NOT EXISTS exams_one_active_per_cohort
		ON exams(year, branch, section) WHERE status = 'ACTIVE';

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id INTEGER NOT NULL,
		prompt TEXT NOT NULL,
		option_a TEXT NOT NULL,
		option_b TEXT NOT NULL,
		option_c TEXT NOT NULL,
		option_d TEXT NOT NULL,
		correct_key TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS questions_exam ON questions(exam_id);

	CREATE TABLE IF NOT EXISTS results (
		roll TEXT NOT NULL,
		exam_id INTEGER NOT NULL,
		score INTEGER NOT NULL,
		submitted_at DATETIME NOT NULL,
		PRIMARY KEY (roll, exam_id)
	);

	CREATE TABLE IF NOT EXISTS attendance (
		exam_id INTEGER NOT NULL,
		roll TEXT NOT NULL,
		status TEXT NOT NULL,
		attended_on TEXT NOT NULL,
		PRIMARY KEY (exam_id, roll)
	);

	CREATE TABLE IF NOT EXISTS question_archives (
		exam_id INTEGER PRIMARY KEY,
		year TEXT NOT NULL,
		branch TEXT NOT NULL,
		section TEXT NOT NULL,
		exam_date TEXT NOT NULL,
		archived_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS archived_questions (
		exam_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		prompt TEXT NOT NULL,
		option_a TEXT NOT NULL,
		option_b TEXT NOT NULL,
		option_c TEXT NOT NULL,
		option_d TEXT NOT NULL,
		correct_key TEXT NOT NULL,
		PRIMARY KEY (exam_id, position)
	);

	CREATE TABLE IF NOT EXISTS auth_tokens (
		id TEXT PRIMARY KEY,
		subject TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		sha256 TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// withTx runs fn inside a transaction. Any error, including a cancelled
// context, rolls the whole transaction back.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// isUniqueViolation reports whether err is a SQLite unique or primary key violation.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}
