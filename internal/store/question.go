package store

import (
	"context"
	"database/sql"

	"github.com/pavelanni/examhall/internal/apperrors"
	"github.com/pavelanni/examhall/internal/model"
)

// ReplaceQuestions atomically swaps an exam's question set for qs.
// The exam must not be ACTIVE.
func (s *Store) ReplaceQuestions(ctx context.Context, examID int64, qs []model.Question) (int, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		e, err := getExam(ctx, tx, examID)
		if err != nil {
			return err
		}
		if e.Status == model.ExamActive {
			return apperrors.Forbidden("exam %d is ACTIVE; questions cannot be replaced", examID)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE exam_id = ?`, examID); err != nil {
			return err
		}
		for _, q := range qs {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO questions (exam_id, prompt, option_a, option_b, option_c, option_d, correct_key)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				examID, q.Prompt, q.OptionA, q.OptionB, q.OptionC, q.OptionD, q.CorrectKey,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(qs), nil
}

// ListQuestions returns the live questions of an exam in import order.
func (s *Store) ListQuestions(ctx context.Context, examID int64) ([]model.Question, error) {
	return listQuestions(ctx, s.db, examID)
}

func listQuestions(ctx context.Context, q queryer, examID int64) ([]model.Question, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, exam_id, prompt, option_a, option_b, option_c, option_d, correct_key
		 FROM questions WHERE exam_id = ? ORDER BY id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var qu model.Question
		if err := rows.Scan(&qu.ID, &qu.ExamID, &qu.Prompt, &qu.OptionA, &qu.OptionB, &qu.OptionC, &qu.OptionD, &qu.CorrectKey); err != nil {
			return nil, err
		}
		questions = append(questions, qu)
	}
	return questions, rows.Err()
}

// QuestionCount returns the number of live questions for an exam.
func (s *Store) QuestionCount(ctx context.Context, examID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE exam_id = ?`, examID).Scan(&count)
	return count, err
}
