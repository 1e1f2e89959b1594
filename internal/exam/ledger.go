package exam

import (
	"context"
	"strings"

	"github.com/pavelanni/examhall/internal/apperrors"
	"github.com/pavelanni/examhall/internal/model"
)

// Results returns the results ledger. Faculty only see their own exams.
func (s *Service) Results(ctx context.Context, actor model.Principal, f model.LedgerFilter) ([]model.LedgerRow, error) {
	if !isStaff(actor) {
		return nil, apperrors.Forbidden("only faculty can view results")
	}
	if !actor.IsAdmin() {
		f.Owner = actor.Subject
	}
	return s.store.Results(ctx, f)
}

// AttendanceReport lists PRESENT marks across exams. Faculty only see their
// own exams; "all" as a section means any section.
func (s *Service) AttendanceReport(ctx context.Context, actor model.Principal, f model.LedgerFilter) ([]model.AttendanceReportRow, error) {
	if !isStaff(actor) {
		return nil, apperrors.Forbidden("only faculty can view attendance")
	}
	c := trimFilter(model.Cohort{Year: f.Year, Branch: f.Branch, Section: f.Section})
	f.Year, f.Branch, f.Section = c.Year, c.Branch, c.Section
	f.ExamDate = strings.TrimSpace(f.ExamDate)
	f.Owner = ""
	if !actor.IsAdmin() {
		f.Owner = actor.Subject
	}
	return s.store.AttendanceReport(ctx, f)
}

// Attendance lists every roster member of the exam's cohort as PRESENT or
// ABSENT with their score.
func (s *Service) Attendance(ctx context.Context, actor model.Principal, examID int64) ([]model.AttendanceRow, error) {
	if _, err := s.GetExam(ctx, actor, examID); err != nil {
		return nil, err
	}
	return s.store.ExamRoster(ctx, examID)
}

// OpenExams returns the ACTIVE exams of the student's cohort that the student
// has not submitted yet.
func (s *Service) OpenExams(ctx context.Context, actor model.Principal) ([]model.Exam, error) {
	if err := requireStudent(actor); err != nil {
		return nil, err
	}
	st, err := s.store.GetStudent(ctx, actor.Subject)
	if err != nil {
		return nil, err
	}
	active, err := s.store.ActiveExamsForCohort(ctx, st.Cohort)
	if err != nil {
		return nil, err
	}
	open := make([]model.Exam, 0, len(active))
	for _, e := range active {
		done, err := s.store.HasResult(ctx, st.Roll, e.ID)
		if err != nil {
			return nil, err
		}
		if !done {
			open = append(open, e)
		}
	}
	return open, nil
}
