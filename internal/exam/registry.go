package exam

import (
	"context"
	"log/slog"
	"time"

	"github.com/pavelanni/examhall/internal/apperrors"
	"github.com/pavelanni/examhall/internal/model"
)

// NewExam is the input for creating an exam.
type NewExam struct {
	Cohort          model.Cohort `json:"cohort"`
	DurationMinutes int          `json:"duration_minutes" validate:"gt=0,lte=1440"`
}

// CreateExam creates a DRAFT exam owned by actor for a cohort that has a roster.
func (s *Service) CreateExam(ctx context.Context, actor model.Principal, in NewExam) (*model.Exam, error) {
	if !isStaff(actor) {
		return nil, apperrors.Forbidden("only faculty can create exams")
	}
	in.Cohort = in.Cohort.Normalize()
	if err := validate.Struct(in); err != nil {
		return nil, apperrors.Validation("invalid exam").WithDetails(map[string]any{"fields": fieldErrors(err)})
	}
	cohort := in.Cohort
	n, err := s.store.MembershipCount(ctx, cohort)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperrors.NotFound("no students uploaded for %s", cohort)
	}

	now := s.now()
	id, err := s.store.CreateExam(ctx, model.Exam{
		Owner:           actor.Subject,
		Cohort:          cohort,
		DurationMinutes: in.DurationMinutes,
		ExamDate:        now.Format(time.DateOnly),
		CreatedAt:       now,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("created exam", "exam_id", id, "owner", actor.Subject, "cohort", cohort.String(), "duration", in.DurationMinutes)
	return s.store.GetExam(ctx, id)
}

// GetExam returns an exam the actor may manage.
func (s *Service) GetExam(ctx context.Context, actor model.Principal, examID int64) (*model.Exam, error) {
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !canManage(actor, e) {
		logDenied("get", actor, examID)
		return nil, apperrors.Forbidden("exam %d belongs to another faculty member", examID)
	}
	return e, nil
}

// ListExams returns the actor's exams, or every exam for admins.
func (s *Service) ListExams(ctx context.Context, actor model.Principal) ([]model.ExamSummary, error) {
	if !isStaff(actor) {
		return nil, apperrors.Forbidden("only faculty can list exams")
	}
	owner := actor.Subject
	if actor.IsAdmin() {
		owner = ""
	}
	return s.store.ListExams(ctx, owner)
}

// ActivateExam starts a DRAFT exam. Only the owner can start it.
func (s *Service) ActivateExam(ctx context.Context, actor model.Principal, examID int64) (*model.Exam, error) {
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !isOwner(actor, e) {
		logDenied("activate", actor, examID)
		return nil, apperrors.Forbidden("only the owner can start exam %d", examID)
	}
	n, err := s.store.MembershipCount(ctx, e.Cohort)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperrors.NotFound("no students uploaded for %s", e.Cohort)
	}
	if err := s.store.ActivateExam(ctx, examID, s.now()); err != nil {
		return nil, err
	}
	return s.store.GetExam(ctx, examID)
}

// CloseExam stops an ACTIVE exam, archiving its questions exactly once.
// Closing an already CLOSED exam succeeds without doing anything.
func (s *Service) CloseExam(ctx context.Context, actor model.Principal, examID int64) (*model.Exam, error) {
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if actor != model.SystemPrincipal && !canManage(actor, e) {
		logDenied("close", actor, examID)
		return nil, apperrors.Forbidden("only the owner or an admin can stop exam %d", examID)
	}
	closed, err := s.store.CloseExam(ctx, examID, s.now())
	if err != nil {
		return nil, err
	}
	if closed {
		s.attempts.discardExam(examID)
		slog.Info("closed exam", "exam_id", examID, "by", actor.Subject)
	}
	return s.store.GetExam(ctx, examID)
}

// DeleteExam removes a non-ACTIVE exam with its questions, results,
// attendance and archive.
func (s *Service) DeleteExam(ctx context.Context, actor model.Principal, examID int64) error {
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return err
	}
	if !canManage(actor, e) {
		logDenied("delete", actor, examID)
		return apperrors.Forbidden("only the owner or an admin can delete exam %d", examID)
	}
	if err := s.store.DeleteExam(ctx, examID); err != nil {
		return err
	}
	s.attempts.discardExam(examID)
	slog.Info("deleted exam", "exam_id", examID, "by", actor.Subject)
	return nil
}

// Monitor reports live submission progress for an exam.
func (s *Service) Monitor(ctx context.Context, actor model.Principal, examID int64) (*model.MonitorView, error) {
	e, err := s.GetExam(ctx, actor, examID)
	if err != nil {
		return nil, err
	}
	roster, err := s.store.ExamRoster(ctx, examID)
	if err != nil {
		return nil, err
	}
	view := &model.MonitorView{Exam: *e, Total: len(roster), Students: make([]model.MonitorRow, 0, len(roster))}
	for _, r := range roster {
		row := model.MonitorRow{Roll: r.Roll, Name: r.Name, Status: model.MonitorWriting, Score: r.Score}
		if r.Score != nil {
			row.Status = model.MonitorSubmitted
			view.Submitted++
		}
		view.Students = append(view.Students, row)
	}
	view.Writing = view.Total - view.Submitted
	return view, nil
}
