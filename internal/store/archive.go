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

// ArchiveQuestions snapshots the exam's live questions. Only the first call
// for an exam creates a snapshot; later calls return created == false.
func (s *Store) ArchiveQuestions(ctx context.Context, examID int64, at time.Time) (created bool, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		created, err = archiveTx(ctx, tx, examID, at)
		return err
	})
	return created, err
}

func archiveTx(ctx context.Context, tx *sql.Tx, examID int64, at time.Time) (bool, error) {
	if _, err := getExam(ctx, tx, examID); err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO question_archives (exam_id, year, branch, section, exam_date, archived_at)
		 SELECT id, year, branch, section, exam_date, ? FROM exams WHERE id = ?
		 ON CONFLICT(exam_id) DO NOTHING`,
		at, examID,
	)
	if err != nil {
		return false, fmt.Errorf("insert archive header: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	res, err = tx.ExecContext(ctx,
		`INSERT INTO archived_questions (exam_id, position, prompt, option_a, option_b, option_c, option_d, correct_key)
		 SELECT exam_id, ROW_NUMBER() OVER (ORDER BY id), prompt, option_a, option_b, option_c, option_d, correct_key
		 FROM questions WHERE exam_id = ?`,
		examID,
	)
	if err != nil {
		return false, fmt.Errorf("copy questions: %w", err)
	}
	n, _ := res.RowsAffected()
	slog.Info("archived exam questions", "exam_id", examID, "count", n)
	return true, nil
}

// GetArchive returns the archived question set of an exam.
func (s *Store) GetArchive(ctx context.Context, examID int64) (*model.QuestionArchive, error) {
	var a model.QuestionArchive
	err := s.db.QueryRowContext(ctx,
		`SELECT exam_id, year, branch, section, exam_date, archived_at FROM question_archives WHERE exam_id = ?`, examID,
	).Scan(&a.ExamID, &a.Cohort.Year, &a.Cohort.Branch, &a.Cohort.Section, &a.ExamDate, &a.ArchivedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("no archived paper for exam %d", examID)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT position, prompt, option_a, option_b, option_c, option_d, correct_key
		 FROM archived_questions WHERE exam_id = ? ORDER BY position`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var q model.ArchivedQuestion
		if err := rows.Scan(&q.Position, &q.Prompt, &q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD, &q.CorrectKey); err != nil {
			return nil, err
		}
		a.Questions = append(a.Questions, q)
	}
	return &a, rows.Err()
}

// ListArchives returns archive headers for a cohort, newest exam date first.
// An empty date lists every date.
func (s *Store) ListArchives(ctx context.Context, cohort model.Cohort, date string) ([]model.ArchiveHeader, error) {
	q := psql.Select("exam_id", "year", "branch", "section", "exam_date", "archived_at").
		From("question_archives").
		Where("year = ? AND branch = ? AND section = ?", cohort.Year, cohort.Branch, cohort.Section).
		OrderBy("exam_date DESC", "exam_id DESC")
	if date != "" {
		q = q.Where("exam_date = ?", date)
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
	var headers []model.ArchiveHeader
	for rows.Next() {
		var h model.ArchiveHeader
		if err := rows.Scan(&h.ExamID, &h.Cohort.Year, &h.Cohort.Branch, &h.Cohort.Section, &h.ExamDate, &h.ArchivedAt); err != nil {
			return nil, err
		}
		headers = append(headers, h)
	}
	return headers, rows.Err()
}
