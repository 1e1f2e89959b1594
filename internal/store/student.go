package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"

	"github.com/pavelanni/examhall/internal/apperrors"
	"github.com/pavelanni/examhall/internal/model"
)

// ImportRoster inserts the students of one cohort. A cohort can only be
// imported once; delete it first to replace it.
func (s *Store) ImportRoster(ctx context.Context, cohort model.Cohort, students []model.Student) error {
	cohort = cohort.Normalize()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var existing int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM students WHERE year = ? AND branch = ? AND section = ?`,
			cohort.Year, cohort.Branch, cohort.Section,
		).Scan(&existing)
		if err != nil {
			return err
		}
		if existing > 0 {
			return apperrors.Conflict("roster for %s already uploaded; delete it first", cohort)
		}

		for _, st := range students {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO students (roll, name, parent, year, branch, section, password_hash)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				st.Roll, st.Name, st.Parent, cohort.Year, cohort.Branch, cohort.Section, st.PasswordHash,
			)
			if isUniqueViolation(err) {
				return apperrors.Conflict("roll %s already belongs to another cohort", st.Roll)
			}
			if err != nil {
				return fmt.Errorf("insert student %s: %w", st.Roll, err)
			}
		}
		slog.Info("imported roster", "cohort", cohort.String(), "count", len(students))
		return nil
	})
}

// DeleteCohort removes every student of a cohort. An empty section deletes
// the whole branch for that year.
func (s *Store) DeleteCohort(ctx context.Context, cohort model.Cohort) (int64, error) {
	q := psql.Delete("students").Where("year = ? AND branch = ?", cohort.Year, cohort.Branch)
	if cohort.Section != "" {
		q = q.Where("section = ?", cohort.Section)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetStudent returns a roster member by roll number.
func (s *Store) GetStudent(ctx context.Context, roll string) (*model.Student, error) {
	var st model.Student
	err := s.db.QueryRowContext(ctx,
		`SELECT roll, name, parent, year, branch, section, password_hash FROM students WHERE roll = ?`, roll,
	).Scan(&st.Roll, &st.Name, &st.Parent, &st.Cohort.Year, &st.Cohort.Branch, &st.Cohort.Section, &st.PasswordHash)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("student %s not found", roll)
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ListStudents returns roster members ordered by cohort and roll number.
// Empty cohort fields do not filter.
func (s *Store) ListStudents(ctx context.Context, cohort model.Cohort) ([]model.Student, error) {
	q := psql.Select("roll", "name", "parent", "year", "branch", "section").
		From("students").
		OrderBy("year", "branch", "section", "roll")
	if cohort.Year != "" {
		q = q.Where(sq.Eq{"year": cohort.Year})
	}
	if cohort.Branch != "" {
		q = q.Where(sq.Eq{"branch": cohort.Branch})
	}
	if cohort.Section != "" {
		q = q.Where(sq.Eq{"section": cohort.Section})
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
	var students []model.Student
	for rows.Next() {
		var st model.Student
		if err := rows.Scan(&st.Roll, &st.Name, &st.Parent, &st.Cohort.Year, &st.Cohort.Branch, &st.Cohort.Section); err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// MembershipCount returns the number of students in a cohort.
func (s *Store) MembershipCount(ctx context.Context, cohort model.Cohort) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM students WHERE year = ? AND branch = ? AND section = ?`,
		cohort.Year, cohort.Branch, cohort.Section,
	).Scan(&count)
	return count, err
}

// SetStudentPassword replaces a student's password hash.
func (s *Store) SetStudentPassword(ctx context.Context, roll, hash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE students SET password_hash = ? WHERE roll = ?`, hash, roll)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("student %s not found", roll)
	}
	return nil
}

// UpdateStudent replaces a student's name, parent number and cohort.
func (s *Store) UpdateStudent(ctx context.Context, roll string, u model.StudentUpdate) error {
	c := u.Cohort.Normalize()
	res, err := s.db.ExecContext(ctx,
		`UPDATE students SET name = ?, parent = ?, year = ?, branch = ?, section = ? WHERE roll = ?`,
		u.Name, u.Parent, c.Year, c.Branch, c.Section, roll,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("student %s not found", roll)
	}
	return nil
}

// DeleteStudent removes a student together with their results and attendance.
func (s *Store) DeleteStudent(ctx context.Context, roll string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM students WHERE roll = ?`, roll)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperrors.NotFound("student %s not found", roll)
		}
		for _, table := range []string{"results", "attendance"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE roll = ?`, roll); err != nil {
				return fmt.Errorf("delete %s of %s: %w", table, roll, err)
			}
		}
		slog.Info("deleted student", "roll", roll)
		return nil
	})
}
