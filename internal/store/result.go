package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pavelanni/examhall/internal/apperrors"
	"github.com/pavelanni/examhall/internal/model"
)

// ScoreFunc scores a submission against the exam's canonical question set.
type ScoreFunc func(questions []model.Question) int

// RecordSubmission scores and stores a student's first submission for an exam.
// The status check, scoring and both inserts share one transaction. A second
// submission returns the stored score together with an AlreadyRecorded error.
func (s *Store) RecordSubmission(ctx context.Context, roll string, examID int64, at time.Time, score ScoreFunc) (model.Submission, error) {
	sub := model.Submission{Roll: roll, ExamID: examID}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stored, err := getResult(ctx, tx, roll, examID)
		if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		if stored != nil {
			sub.Score = stored.Score
			sub.SubmittedAt = stored.SubmittedAt
			sub.AlreadyRecorded = true
			sub.QuestionCount, err = paperSize(ctx, tx, examID)
			if err != nil {
				return err
			}
			return nil
		}

		e, err := getExam(ctx, tx, examID)
		if err != nil {
			return err
		}
		if e.Status != model.ExamActive {
			return apperrors.Forbidden("exam %d is %s; submissions are closed", examID, e.Status)
		}
		questions, err := listQuestions(ctx, tx, examID)
		if err != nil {
			return fmt.Errorf("load questions: %w", err)
		}
		sub.Score = score(questions)
		sub.QuestionCount = len(questions)
		sub.SubmittedAt = at

		res, err := tx.ExecContext(ctx,
			`INSERT INTO results (roll, exam_id, score, submitted_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(roll, exam_id) DO NOTHING`,
			roll, examID, sub.Score, at,
		)
		if err != nil {
			return fmt.Errorf("insert result: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			stored, err := getResult(ctx, tx, roll, examID)
			if err != nil {
				return err
			}
			sub.Score = stored.Score
			sub.SubmittedAt = stored.SubmittedAt
			sub.AlreadyRecorded = true
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO attendance (exam_id, roll, status, attended_on) VALUES (?, ?, ?, ?)
			 ON CONFLICT(exam_id, roll) DO NOTHING`,
			examID, roll, model.AttendancePresent, at.Format(time.DateOnly),
		)
		if err != nil {
			return fmt.Errorf("insert attendance: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Submission{}, err
	}
	if sub.AlreadyRecorded {
		return sub, apperrors.AlreadyRecorded("%s already submitted exam %d", roll, examID)
	}
	return sub, nil
}

// paperSize returns the question count of an exam, reading the archive once
// the live questions have been purged.
func paperSize(ctx context.Context, q queryer, examID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT MAX(
		   (SELECT COUNT(*) FROM questions WHERE exam_id = ?),
		   (SELECT COUNT(*) FROM archived_questions WHERE exam_id = ?))`,
		examID, examID,
	).Scan(&n)
	return n, err
}

func getResult(ctx context.Context, q queryer, roll string, examID int64) (*model.Result, error) {
	var r model.Result
	err := q.QueryRowContext(ctx,
		`SELECT roll, exam_id, score, submitted_at FROM results WHERE roll = ? AND exam_id = ?`, roll, examID,
	).Scan(&r.Roll, &r.ExamID, &r.Score, &r.SubmittedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("no result for %s in exam %d", roll, examID)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetResult returns the stored result of a student for an exam.
func (s *Store) GetResult(ctx context.Context, roll string, examID int64) (*model.Result, error) {
	return getResult(ctx, s.db, roll, examID)
}

// HasResult reports whether the student already submitted the exam.
func (s *Store) HasResult(ctx context.Context, roll string, examID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM results WHERE roll = ? AND exam_id = ?`, roll, examID,
	).Scan(&n)
	return n > 0, err
}

// ResultCount returns how many results are stored for an exam.
func (s *Store) ResultCount(ctx context.Context, examID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM results WHERE exam_id = ?`, examID).Scan(&n)
	return n, err
}

// AttendanceCount returns how many PRESENT rows are stored for an exam.
func (s *Store) AttendanceCount(ctx context.Context, examID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attendance WHERE exam_id = ? AND status = ?`, examID, model.AttendancePresent,
	).Scan(&n)
	return n, err
}
