// Package report writes results and archived papers as JSON or CSV.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pavelanni/examhall/internal/model"
)

// Format is an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts "json", "csv" or empty (JSON).
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unknown format %q (want json or csv)", s)
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// WriteJSON writes v as indented JSON with a trailing newline.
func WriteJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// Results writes a results export in the given format.
func Results(w io.Writer, f Format, exp model.ResultsExport) error {
	if f == FormatJSON {
		return WriteJSON(w, exp)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(model.ResultsCSVHeader); err != nil {
		return err
	}
	for _, r := range exp.Rows {
		rec := []string{
			r.Roll, r.Name, r.Cohort.Year, r.Cohort.Branch, r.Cohort.Section,
			strconv.FormatInt(r.ExamID, 10), r.ExamDate, strconv.Itoa(r.Score),
			r.SubmittedAt.Format(time.DateTime), string(r.Attendance),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Attendance writes an attendance report in the given format.
func Attendance(w io.Writer, f Format, rows []model.AttendanceReportRow) error {
	if f == FormatJSON {
		return WriteJSON(w, rows)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(model.AttendanceCSVHeader); err != nil {
		return err
	}
	for _, r := range rows {
		marks := ""
		if r.Score != nil {
			marks = strconv.Itoa(*r.Score)
		}
		rec := []string{
			r.Roll, r.Name, r.Cohort.Year, r.Cohort.Branch, r.Cohort.Section,
			strconv.FormatInt(r.ExamID, 10), r.ExamDate, marks, string(r.Status),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Archive writes an archived paper in the given format.
func Archive(w io.Writer, f Format, a *model.QuestionArchive) error {
	if f == FormatJSON {
		return WriteJSON(w, a)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(model.ArchiveCSVHeader); err != nil {
		return err
	}
	for _, q := range a.Questions {
		rec := []string{strconv.Itoa(q.Position), q.Prompt, q.OptionA, q.OptionB, q.OptionC, q.OptionD, q.CorrectKey}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
