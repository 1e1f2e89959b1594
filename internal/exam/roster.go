package exam

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pavelanni/examhall/internal/apperrors"
	"github.com/pavelanni/examhall/internal/model"
)

// ImportRoster uploads the students of one cohort. Admin only.
func (s *Service) ImportRoster(ctx context.Context, actor model.Principal, cohort model.Cohort, rows []model.RosterRow) (int, error) {
	if !actor.IsAdmin() {
		return 0, apperrors.Forbidden("only admins can upload rosters")
	}
	cohort = cohort.Normalize()
	if err := validate.Struct(cohort); err != nil {
		return 0, apperrors.Validation("invalid cohort").WithDetails(map[string]any{"fields": fieldErrors(err)})
	}
	for i := range rows {
		rows[i].Roll = strings.TrimSpace(rows[i].Roll)
		rows[i].Name = strings.TrimSpace(rows[i].Name)
		rows[i].Parent = strings.TrimSpace(rows[i].Parent)
	}
	if err := validateRows("roster", rows); err != nil {
		return 0, err
	}

	seen := make(map[string]int, len(rows))
	students := make([]model.Student, 0, len(rows))
	for i, r := range rows {
		if first, dup := seen[r.Roll]; dup {
			return 0, apperrors.Validation("roll %s appears twice", r.Roll).
				WithDetails(map[string]any{"rows": []int{first + 1, i + 1}})
		}
		seen[r.Roll] = i
		students = append(students, model.Student{Roll: r.Roll, Name: r.Name, Parent: r.Parent})
	}

	if err := s.store.ImportRoster(ctx, cohort, students); err != nil {
		return 0, err
	}
	return len(students), nil
}

// DeleteRoster removes a cohort's students. An empty section removes the
// whole branch for that year. Admin only.
func (s *Service) DeleteRoster(ctx context.Context, actor model.Principal, cohort model.Cohort) (int64, error) {
	if !actor.IsAdmin() {
		return 0, apperrors.Forbidden("only admins can delete rosters")
	}
	cohort.Year = strings.TrimSpace(cohort.Year)
	cohort.Branch = strings.TrimSpace(cohort.Branch)
	cohort.Section = strings.TrimSpace(cohort.Section)
	if err := validate.Struct(cohort); err != nil {
		return 0, apperrors.Validation("invalid cohort").WithDetails(map[string]any{"fields": fieldErrors(err)})
	}
	n, err := s.store.DeleteCohort(ctx, cohort)
	if err != nil {
		return 0, err
	}
	slog.Info("deleted roster", "year", cohort.Year, "branch", cohort.Branch, "section", cohort.Section, "count", n)
	return n, nil
}

// trimFilter trims cohort filter fields; "all" as a section means any section.
func trimFilter(c model.Cohort) model.Cohort {
	c.Year = strings.TrimSpace(c.Year)
	c.Branch = strings.TrimSpace(c.Branch)
	c.Section = strings.TrimSpace(c.Section)
	if strings.EqualFold(c.Section, "all") {
		c.Section = ""
	}
	return c
}

// ListStudents lists roster members, optionally narrowed by year, branch and
// section. Admin only.
func (s *Service) ListStudents(ctx context.Context, actor model.Principal, filter model.Cohort) ([]model.Student, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("only admins can view rosters")
	}
	return s.store.ListStudents(ctx, trimFilter(filter))
}

// UpdateStudent replaces a student's details, possibly moving them to
// another cohort. Admin only.
func (s *Service) UpdateStudent(ctx context.Context, actor model.Principal, roll string, u model.StudentUpdate) (*model.Student, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("only admins can edit students")
	}
	u.Name = strings.TrimSpace(u.Name)
	u.Parent = strings.TrimSpace(u.Parent)
	u.Cohort = u.Cohort.Normalize()
	if err := validate.Struct(u); err != nil {
		return nil, apperrors.Validation("invalid student").WithDetails(map[string]any{"fields": fieldErrors(err)})
	}
	if err := s.store.UpdateStudent(ctx, roll, u); err != nil {
		return nil, err
	}
	slog.Info("updated student", "roll", roll, "cohort", u.Cohort.String(), "by", actor.Subject)
	return s.store.GetStudent(ctx, roll)
}

// DeleteStudent removes one student with their results and attendance.
// Admin only.
func (s *Service) DeleteStudent(ctx context.Context, actor model.Principal, roll string) error {
	if !actor.IsAdmin() {
		return apperrors.Forbidden("only admins can delete students")
	}
	if err := s.store.DeleteStudent(ctx, roll); err != nil {
		return err
	}
	s.attempts.discardRoll(roll)
	return nil
}
