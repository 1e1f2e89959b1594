package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/examhall/internal/apperrors"
	"github.com/pavelanni/examhall/internal/model"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const examColumns = `id, owner, year, branch, section, duration_minutes, status, start_time, exam_date, created_at, closed_at`

func scanExam(r rowScanner) (model.Exam, error) {
	var e model.Exam
	err := r.Scan(&e.ID, &e.Owner, &e.Cohort.Year, &e.Cohort.Branch, &e.Cohort.Section,
		&e.DurationMinutes, &e.Status, &e.StartTime, &e.ExamDate, &e.CreatedAt, &e.ClosedAt)
	return e, err
}

func getExam(ctx context.Context, q queryer, id int64) (*model.Exam, error) {
	e, err := scanExam(q.QueryRowContext(ctx, `SELECT `+examColumns+` FROM exams WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("exam %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateExam stores a new exam in DRAFT status.
func (s *Store) CreateExam(ctx context.Context, e model.Exam) (int64, error) {
	c := e.Cohort.Normalize()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO exams (owner, year, branch, section, duration_minutes, status, exam_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Owner, c.Year, c.Branch, c.Section, e.DurationMinutes, model.ExamDraft, e.ExamDate, e.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetExam returns an exam by ID.
func (s *Store) GetExam(ctx context.Context, id int64) (*model.Exam, error) {
	return getExam(ctx, s.db, id)
}

// ListExams returns exams newest first with roster and question counts.
// An empty owner lists every exam.
func (s *Store) ListExams(ctx context.Context, owner string) ([]model.ExamSummary, error) {
	q := psql.Select(examColumns,
		`(SELECT COUNT(*) FROM students s WHERE s.year = e.year AND s.branch = e.branch AND s.section = e.section)`,
		`(SELECT COUNT(*) FROM questions q WHERE q.exam_id = e.id)`).
		From("exams e").
		OrderBy("e.id DESC")
	if owner != "" {
		q = q.Where("e.owner = ?", owner)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.ExamSummary
	for rows.Next() {
		var es model.ExamSummary
		e := &es.Exam
		if err := rows.Scan(&e.ID, &e.Owner, &e.Cohort.Year, &e.Cohort.Branch, &e.Cohort.Section,
			&e.DurationMinutes, &e.Status, &e.StartTime, &e.ExamDate, &e.CreatedAt, &e.ClosedAt,
			&es.StudentCount, &es.QuestionCount); err != nil {
			return nil, err
		}
		exams = append(exams, es)
	}
	return exams, rows.Err()
}

// ListExamsByStatus returns every exam in the given status, oldest first.
func (s *Store) ListExamsByStatus(ctx context.Context, status model.ExamStatus) ([]model.Exam, error) {
	return s.listExams(ctx, `SELECT `+examColumns+` FROM exams WHERE status = ? ORDER BY id`, status)
}

// ActiveExamsForCohort returns the ACTIVE exams of a cohort (at most one).
func (s *Store) ActiveExamsForCohort(ctx context.Context, cohort model.Cohort) ([]model.Exam, error) {
	return s.listExams(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE status = 'ACTIVE' AND year = ? AND branch = ? AND section = ? ORDER BY id`,
		cohort.Year, cohort.Branch, cohort.Section)
}

func (s *Store) listExams(ctx context.Context, query string, args ...any) ([]model.Exam, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// ActivateExam moves a DRAFT exam to ACTIVE. The "no other ACTIVE exam for the
// cohort" check and the status flip happen in a single conditional update.
func (s *Store) ActivateExam(ctx context.Context, id int64, startTime time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		e, err := getExam(ctx, tx, id)
		if err != nil {
			return err
		}
		if e.Status != model.ExamDraft {
			return apperrors.Forbidden("exam %d is %s; only DRAFT exams can be activated", id, e.Status)
		}

		var qcount int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE exam_id = ?`, id).Scan(&qcount); err != nil {
			return err
		}
		if qcount == 0 {
			return apperrors.Conflict("exam %d has no questions; import questions before starting", id)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE exams SET status = 'ACTIVE', start_time = ?
			 WHERE id = ? AND status = 'DRAFT'
			   AND NOT EXISTS (
			     SELECT 1 FROM exams o
			     WHERE o.year = exams.year AND o.branch = exams.branch AND o.section = exams.section
			       AND o.status = 'ACTIVE')`,
			startTime, id,
		)
		if isUniqueViolation(err) {
			return apperrors.Conflict("an exam is already ACTIVE for %s", e.Cohort)
		}
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperrors.Conflict("an exam is already ACTIVE for %s", e.Cohort)
		}
		slog.Info("activated exam", "exam_id", id, "cohort", e.Cohort.String(), "questions", qcount)
		return nil
	})
}

// CloseExam moves an ACTIVE exam to CLOSED. Only the caller whose conditional
// update wins archives the question set and purges the live questions; later
// callers see closed == false. Closing an already CLOSED exam is a no-op.
func (s *Store) CloseExam(ctx context.Context, id int64, at time.Time) (closed bool, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE exams SET status = 'CLOSED', closed_at = ? WHERE id = ? AND status = 'ACTIVE'`, at, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			e, err := getExam(ctx, tx, id)
			if err != nil {
				return err
			}
			if e.Status == model.ExamClosed {
				return nil
			}
			return apperrors.Forbidden("exam %d is %s; only ACTIVE exams can be closed", id, e.Status)
		}

		if _, err := archiveTx(ctx, tx, id, at); err != nil {
			return fmt.Errorf("archive exam %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE exam_id = ?`, id); err != nil {
			return fmt.Errorf("purge questions: %w", err)
		}
		closed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return closed, nil
}

// DeleteExam removes a non-ACTIVE exam and everything recorded for it.
func (s *Store) DeleteExam(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		e, err := getExam(ctx, tx, id)
		if err != nil {
			return err
		}
		if e.Status == model.ExamActive {
			return apperrors.Forbidden("exam %d is ACTIVE; stop it before deleting", id)
		}
		for _, stmt := range []string{
			`DELETE FROM questions WHERE exam_id = ?`,
			`DELETE FROM results WHERE exam_id = ?`,
			`DELETE FROM attendance WHERE exam_id = ?`,
			`DELETE FROM archived_questions WHERE exam_id = ?`,
			`DELETE FROM question_archives WHERE exam_id = ?`,
			`DELETE FROM exams WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return err
			}
		}
		return nil
	})
}
