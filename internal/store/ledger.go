package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/pavelanni/examhall/internal/model"
)

// Results returns stored results matching the filter, most recent first.
func (s *Store) Results(ctx context.Context, f model.LedgerFilter) ([]model.LedgerRow, error) {
	q := psql.Select(
		"r.roll", "st.name", "e.year", "e.branch", "e.section", "r.exam_id", "e.exam_date", "e.owner",
		"r.score", "r.submitted_at", "COALESCE(a.status, 'ABSENT')",
	).
		From("results r").
		Join("students st ON st.roll = r.roll").
		Join("exams e ON e.id = r.exam_id").
		LeftJoin("attendance a ON a.exam_id = r.exam_id AND a.roll = r.roll").
		OrderBy("r.submitted_at DESC", "r.roll")

	if f.Year != "" {
		q = q.Where(sq.Eq{"e.year": f.Year})
	}
	if f.Branch != "" {
		q = q.Where(sq.Eq{"e.branch": f.Branch})
	}
	if f.Section != "" {
		q = q.Where(sq.Eq{"e.section": f.Section})
	}
	if f.ExamDate != "" {
		q = q.Where(sq.Eq{"e.exam_date": f.ExamDate})
	}
	if f.ExamID != 0 {
		q = q.Where(sq.Eq{"r.exam_id": f.ExamID})
	}
	if f.Owner != "" {
		q = q.Where(sq.Eq{"e.owner": f.Owner})
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

	var out []model.LedgerRow
	for rows.Next() {
		var r model.LedgerRow
		if err := rows.Scan(&r.Roll, &r.Name, &r.Cohort.Year, &r.Cohort.Branch, &r.Cohort.Section,
			&r.ExamID, &r.ExamDate, &r.Owner, &r.Score, &r.SubmittedAt, &r.Attendance); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ExamRoster returns every roster member of the exam's cohort with their
// attendance and score. Members without an attendance row are ABSENT.
func (s *Store) ExamRoster(ctx context.Context, examID int64) ([]model.AttendanceRow, error) {
	if _, err := getExam(ctx, s.db, examID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT st.roll, st.name, r.score, a.status
		 FROM exams e
		 JOIN students st ON st.year = e.year AND st.branch = e.branch AND st.section = e.section
		 LEFT JOIN results r ON r.exam_id = e.id AND r.roll = st.roll
		 LEFT JOIN attendance a ON a.exam_id = e.id AND a.roll = st.roll
		 WHERE e.id = ?
		 ORDER BY st.roll`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AttendanceRow
	for rows.Next() {
		var (
			row    model.AttendanceRow
			score  sql.NullInt64
			status sql.NullString
		)
		if err := rows.Scan(&row.Roll, &row.Name, &score, &status); err != nil {
			return nil, err
		}
		row.Status = model.AttendanceAbsent
		if status.Valid {
			row.Status = model.AttendanceStatus(status.String)
		}
		if score.Valid {
			v := int(score.Int64)
			row.Score = &v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// AttendanceReport returns PRESENT marks across exams with the score of each,
// filtered like Results, most recent exam first.
func (s *Store) AttendanceReport(ctx context.Context, f model.LedgerFilter) ([]model.AttendanceReportRow, error) {
	q := psql.Select(
		"st.roll", "st.name", "st.year", "st.branch", "st.section", "e.id", "e.exam_date", "r.score", "a.status",
	).
		From("attendance a").
		Join("students st ON st.roll = a.roll").
		Join("exams e ON e.id = a.exam_id").
		LeftJoin("results r ON r.roll = a.roll AND r.exam_id = a.exam_id").
		OrderBy("e.exam_date DESC", "e.id DESC", "st.roll")

	if f.Year != "" {
		q = q.Where(sq.Eq{"st.year": f.Year})
	}
	if f.Branch != "" {
		q = q.Where(sq.Eq{"st.branch": f.Branch})
	}
	if f.Section != "" {
		q = q.Where(sq.Eq{"st.section": f.Section})
	}
	if f.ExamDate != "" {
		q = q.Where(sq.Eq{"e.exam_date": f.ExamDate})
	}
	if f.ExamID != 0 {
		q = q.Where(sq.Eq{"e.id": f.ExamID})
	}
	if f.Owner != "" {
		q = q.Where(sq.Eq{"e.owner": f.Owner})
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

	var out []model.AttendanceReportRow
	for rows.Next() {
		var (
			r     model.AttendanceReportRow
			score sql.NullInt64
		)
		if err := rows.Scan(&r.Roll, &r.Name, &r.Cohort.Year, &r.Cohort.Branch, &r.Cohort.Section,
			&r.ExamID, &r.ExamDate, &score, &r.Status); err != nil {
			return nil, err
		}
		if score.Valid {
			v := int(score.Int64)
			r.Score = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
