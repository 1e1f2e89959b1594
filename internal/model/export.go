package model

import "time"

// ResultsExport is the top-level JSON structure for a results export.
type ResultsExport struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Filter      ExportScope `json:"filter"`
	Count       int         `json:"count"`
	Rows        []LedgerRow `json:"rows"`
}

// ExportScope echoes the filter an export was produced with.
type ExportScope struct {
	Year     string `json:"year,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Section  string `json:"section,omitempty"`
	ExamDate string `json:"exam_date,omitempty"`
	ExamID   int64  `json:"exam_id,omitempty"`
}

// ResultsCSVHeader is the column order of a CSV results export.
var ResultsCSVHeader = []string{"Roll", "Name", "Year", "Branch", "Section", "Exam", "Exam Date", "Marks", "Submitted At", "Attendance"}

// AttendanceCSVHeader is the column order of a CSV attendance report.
var AttendanceCSVHeader = []string{"Roll", "Name", "Year", "Branch", "Section", "Exam", "Exam Date", "Marks", "Status"}

// ArchiveCSVHeader is the column order of a CSV archive export.
var ArchiveCSVHeader = []string{"No", "Question", "A", "B", "C", "D", "Correct"}
