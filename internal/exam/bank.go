package exam

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pavelanni/examhall/internal/apperrors"
	"github.com/pavelanni/examhall/internal/model"
)

// ImportQuestions replaces the question set of a non-ACTIVE exam.
func (s *Service) ImportQuestions(ctx context.Context, actor model.Principal, examID int64, rows []model.QuestionRow) (int, error) {
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return 0, err
	}
	if !isOwner(actor, e) {
		logDenied("import questions", actor, examID)
		return 0, apperrors.Forbidden("only the owner can upload questions for exam %d", examID)
	}
	if e.Status == model.ExamActive {
		return 0, apperrors.Forbidden("exam %d is ACTIVE; questions cannot be replaced", examID)
	}
	rows = trimQuestionRows(rows)
	if err := validateRows("question", rows); err != nil {
		return 0, err
	}

	qs := make([]model.Question, 0, len(rows))
	for _, r := range rows {
		qs = append(qs, model.Question{
			ExamID:     examID,
			Prompt:     r.Prompt,
			OptionA:    r.A,
			OptionB:    r.B,
			OptionC:    r.C,
			OptionD:    r.D,
			CorrectKey: canonicalKey(r.Correct),
		})
	}
	n, err := s.store.ReplaceQuestions(ctx, examID, qs)
	if err != nil {
		return 0, err
	}
	slog.Info("imported questions", "exam_id", examID, "count", n, "by", actor.Subject)
	return n, nil
}

func trimQuestionRows(rows []model.QuestionRow) []model.QuestionRow {
	out := make([]model.QuestionRow, len(rows))
	for i, r := range rows {
		out[i] = model.QuestionRow{
			Prompt:  strings.TrimSpace(r.Prompt),
			A:       strings.TrimSpace(r.A),
			B:       strings.TrimSpace(r.B),
			C:       strings.TrimSpace(r.C),
			D:       strings.TrimSpace(r.D),
			Correct: strings.TrimSpace(r.Correct),
		}
	}
	return out
}

// canonicalKey lowercases option-letter keys and trims text keys.
func canonicalKey(key string) string {
	k := strings.TrimSpace(key)
	if isLetterKey(k) {
		return strings.ToLower(k)
	}
	return k
}

// GetArchive returns the archived paper of a closed exam. Students may only
// read papers of their own cohort.
func (s *Service) GetArchive(ctx context.Context, actor model.Principal, examID int64) (*model.QuestionArchive, error) {
	a, err := s.store.GetArchive(ctx, examID)
	if err != nil {
		return nil, err
	}
	if actor.Role == model.UserRoleStudent {
		st, err := s.store.GetStudent(ctx, actor.Subject)
		if err != nil {
			return nil, err
		}
		if st.Cohort != a.Cohort {
			logDenied("archive", actor, examID)
			return nil, apperrors.Forbidden("paper %d belongs to another cohort", examID)
		}
	}
	return a, nil
}

// ListArchives lists archived papers for a cohort, newest first. Students
// always see their own cohort.
func (s *Service) ListArchives(ctx context.Context, actor model.Principal, cohort model.Cohort, date string) ([]model.ArchiveHeader, error) {
	if actor.Role == model.UserRoleStudent {
		st, err := s.store.GetStudent(ctx, actor.Subject)
		if err != nil {
			return nil, err
		}
		cohort = st.Cohort
	} else {
		cohort = cohort.Normalize()
		if err := validate.Struct(cohort); err != nil {
			return nil, apperrors.Validation("invalid cohort").WithDetails(map[string]any{"fields": fieldErrors(err)})
		}
	}
	return s.store.ListArchives(ctx, cohort, strings.TrimSpace(date))
}

// AnswerKey returns an exam's questions with their keys. While the exam is
// ACTIVE the key stays hidden until every roster member has submitted.
func (s *Service) AnswerKey(ctx context.Context, actor model.Principal, examID int64) ([]model.ArchivedQuestion, error) {
	e, err := s.GetExam(ctx, actor, examID)
	if err != nil {
		return nil, err
	}
	if e.Status == model.ExamClosed {
		a, err := s.store.GetArchive(ctx, examID)
		if err != nil {
			return nil, err
		}
		return a.Questions, nil
	}
	if e.Status == model.ExamActive {
		total, err := s.store.MembershipCount(ctx, e.Cohort)
		if err != nil {
			return nil, err
		}
		done, err := s.store.ResultCount(ctx, examID)
		if err != nil {
			return nil, err
		}
		if done < total {
			return nil, apperrors.Forbidden("answer key for exam %d is available after all %d students submit (%d so far)", examID, total, done)
		}
	}
	qs, err := s.store.ListQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}
	out := make([]model.ArchivedQuestion, 0, len(qs))
	for i, q := range qs {
		out = append(out, model.ArchivedQuestion{
			Position:   i + 1,
			Prompt:     q.Prompt,
			OptionA:    q.OptionA,
			OptionB:    q.OptionB,
			OptionC:    q.OptionC,
			OptionD:    q.OptionD,
			CorrectKey: q.CorrectKey,
		})
	}
	return out, nil
}
