package exam

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examhall/internal/apperrors"
	"github.com/pavelanni/examhall/internal/model"
)

type attemptKey struct {
	roll   string
	examID int64
}

type attempt struct {
	id    string
	order []int64
}

// attemptTable holds the question order of every open attempt. It lives in
// memory only; a restart gives students a fresh order.
type attemptTable struct {
	mu sync.Mutex
	m  map[attemptKey]*attempt
}

func newAttemptTable() *attemptTable {
	return &attemptTable{m: make(map[attemptKey]*attempt)}
}

// getOrCreate returns the existing attempt for key or starts one with a
// shuffled copy of ids.
func (t *attemptTable) getOrCreate(key attemptKey, ids []int64) (*attempt, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.m[key]; ok {
		return a, false
	}
	order := append([]int64(nil), ids...)
	rand.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	a := &attempt{id: uuid.NewString(), order: order}
	t.m[key] = a
	return a, true
}

func (t *attemptTable) discard(key attemptKey) {
	t.mu.Lock()
	delete(t.m, key)
	t.mu.Unlock()
}

func (t *attemptTable) discardExam(examID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.m {
		if k.examID == examID {
			delete(t.m, k)
		}
	}
}

func (t *attemptTable) discardRoll(roll string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.m {
		if k.roll == roll {
			delete(t.m, k)
		}
	}
}

// examIDs returns the distinct exams that have open attempts.
func (t *attemptTable) examIDs() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	seen := make(map[int64]bool)
	var ids []int64
	for k := range t.m {
		if !seen[k.examID] {
			seen[k.examID] = true
			ids = append(ids, k.examID)
		}
	}
	return ids
}

func (t *attemptTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}

// studentExam loads the student and exam and checks the student belongs to
// the exam's cohort.
func (s *Service) studentExam(ctx context.Context, actor model.Principal, examID int64) (*model.Student, *model.Exam, error) {
	if err := requireStudent(actor); err != nil {
		return nil, nil, err
	}
	st, err := s.store.GetStudent(ctx, actor.Subject)
	if err != nil {
		return nil, nil, err
	}
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return nil, nil, err
	}
	if st.Cohort != e.Cohort {
		logDenied("attempt", actor, examID)
		return nil, nil, apperrors.Forbidden("you are not eligible for exam %d", examID)
	}
	return st, e, nil
}

// BeginAttempt opens (or re-opens) the student's attempt and returns the
// questions in the student's order, without keys.
func (s *Service) BeginAttempt(ctx context.Context, actor model.Principal, examID int64) (*model.AttemptView, error) {
	st, e, err := s.studentExam(ctx, actor, examID)
	if err != nil {
		return nil, err
	}
	if e.Status != model.ExamActive {
		return nil, apperrors.Forbidden("exam %d is not active", examID)
	}
	done, err := s.store.HasResult(ctx, st.Roll, examID)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, apperrors.AlreadyRecorded("%s already submitted exam %d", st.Roll, examID)
	}

	questions, err := s.store.ListQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]model.Question, len(questions))
	ids := make([]int64, 0, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
		ids = append(ids, q.ID)
	}

	key := attemptKey{roll: st.Roll, examID: examID}
	a, created := s.attempts.getOrCreate(key, ids)
	if created {
		// A close that committed meanwhile has already cleared the table.
		cur, err := s.store.GetExam(ctx, examID)
		if err != nil || cur.Status != model.ExamActive {
			s.attempts.discard(key)
			if err != nil {
				return nil, err
			}
			return nil, apperrors.Forbidden("exam %d is not active", examID)
		}
		slog.Info("attempt started", "roll", st.Roll, "exam_id", examID, "attempt_id", a.id)
	}

	view := &model.AttemptView{
		AttemptID:        a.id,
		ExamID:           examID,
		Questions:        make([]model.PresentedQuestion, 0, len(a.order)),
		Deadline:         e.Deadline(),
		RemainingSeconds: int64(e.Remaining(s.now()) / time.Second),
	}
	for _, id := range a.order {
		q, ok := byID[id]
		if !ok {
			continue
		}
		view.Questions = append(view.Questions, model.PresentedQuestion{
			ID: q.ID, Prompt: q.Prompt, OptionA: q.OptionA, OptionB: q.OptionB, OptionC: q.OptionC, OptionD: q.OptionD,
		})
	}
	return view, nil
}

// SubmitAttempt scores and records the student's answers. A repeat submission
// returns the stored result with an AlreadyRecorded error and is never
// re-scored. The result event is published only after the result commits.
func (s *Service) SubmitAttempt(ctx context.Context, actor model.Principal, examID int64, answers map[int64]string) (model.Submission, error) {
	st, _, err := s.studentExam(ctx, actor, examID)
	if err != nil {
		return model.Submission{}, err
	}
	key := attemptKey{roll: st.Roll, examID: examID}
	sub, err := s.store.RecordSubmission(ctx, st.Roll, examID, s.now(), func(qs []model.Question) int {
		return Score(qs, answers)
	})
	if apperrors.Is(err, apperrors.ErrAlreadyRecorded) {
		s.attempts.discard(key)
		return sub, err
	}
	if err != nil {
		return model.Submission{}, err
	}
	s.attempts.discard(key)
	slog.Info("submission recorded", "roll", st.Roll, "exam_id", examID, "score", sub.Score, "total", sub.QuestionCount)

	s.events.Publish(model.ResultEvent{
		Roll:   st.Roll,
		Name:   st.Name,
		Parent: st.Parent,
		Cohort: st.Cohort,
		ExamID: examID,
		Score:  sub.Score,
		Total:  sub.QuestionCount,
	})
	return sub, nil
}
