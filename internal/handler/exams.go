package handler

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/pavelanni/examhall/internal/exam"
	appI18n "github.com/pavelanni/examhall/internal/i18n"
	"github.com/pavelanni/examhall/internal/model"
	"github.com/pavelanni/examhall/internal/report"
)

func (h *Handler) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	var in exam.NewExam
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := h.svc.CreateExam(r.Context(), principal(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.svc.ListExams(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if exams == nil {
		exams = []model.ExamSummary{}
	}
	writeJSON(w, http.StatusOK, exams)
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	id, err := examIDParam(r)
	if err != nil {
		writeError(w, r, badRequest("invalid exam id"))
		return
	}
	e, err := h.svc.GetExam(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) handleDeleteExam(w http.ResponseWriter, r *http.Request) {
	id, err := examIDParam(r)
	if err != nil {
		writeError(w, r, badRequest("invalid exam id"))
		return
	}
	if err := h.svc.DeleteExam(r.Context(), principal(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type importResponse struct {
	Imported int    `json:"imported"`
	Message  string `json:"message"`
}

func (h *Handler) handleImportQuestions(w http.ResponseWriter, r *http.Request) {
	id, err := examIDParam(r)
	if err != nil {
		writeError(w, r, badRequest("invalid exam id"))
		return
	}
	var rows []model.QuestionRow
	if err := decodeJSON(w, r, &rows); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := h.svc.ImportQuestions(r.Context(), principal(r), id, rows)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{Imported: n, Message: appI18n.Tp(r.Context(), "QuestionsImported", n)})
}

func (h *Handler) handleActivateExam(w http.ResponseWriter, r *http.Request) {
	id, err := examIDParam(r)
	if err != nil {
		writeError(w, r, badRequest("invalid exam id"))
		return
	}
	e, err := h.svc.ActivateExam(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) handleCloseExam(w http.ResponseWriter, r *http.Request) {
	id, err := examIDParam(r)
	if err != nil {
		writeError(w, r, badRequest("invalid exam id"))
		return
	}
	e, err := h.svc.CloseExam(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) handleMonitor(w http.ResponseWriter, r *http.Request) {
	id, err := examIDParam(r)
	if err != nil {
		writeError(w, r, badRequest("invalid exam id"))
		return
	}
	view, err := h.svc.Monitor(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleAttendance(w http.ResponseWriter, r *http.Request) {
	id, err := examIDParam(r)
	if err != nil {
		writeError(w, r, badRequest("invalid exam id"))
		return
	}
	rows, err := h.svc.Attendance(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []model.AttendanceRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) handleAnswerKey(w http.ResponseWriter, r *http.Request) {
	id, err := examIDParam(r)
	if err != nil {
		writeError(w, r, badRequest("invalid exam id"))
		return
	}
	qs, err := h.svc.AnswerKey(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

// ledgerQuery reads the report format and the year, branch, section, date
// and exam_id filters from the query string.
func ledgerQuery(r *http.Request) (report.Format, model.LedgerFilter, error) {
	q := r.URL.Query()
	format, err := report.ParseFormat(q.Get("format"))
	if err != nil {
		return "", model.LedgerFilter{}, badRequest("%v", err)
	}
	f := model.LedgerFilter{
		Year:     strings.TrimSpace(q.Get("year")),
		Branch:   strings.TrimSpace(q.Get("branch")),
		Section:  strings.TrimSpace(q.Get("section")),
		ExamDate: strings.TrimSpace(q.Get("date")),
	}
	if v := q.Get("exam_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return "", model.LedgerFilter{}, badRequest("invalid exam_id %q", v)
		}
		f.ExamID = id
	}
	return format, f, nil
}

// handleAttendanceReport serves PRESENT marks across exams as JSON or CSV.
func (h *Handler) handleAttendanceReport(w http.ResponseWriter, r *http.Request) {
	format, f, err := ledgerQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := h.svc.AttendanceReport(r.Context(), principal(r), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []model.AttendanceReportRow{}
	}
	if format == report.FormatCSV {
		w.Header().Set("Content-Disposition", `attachment; filename="attendance.csv"`)
	}
	streamReport(w, r, format, func(w io.Writer) error {
		return report.Attendance(w, format, rows)
	})
}

// handleResults serves the results ledger as JSON or, with format=csv, as a
// CSV download.
func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	format, f, err := ledgerQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rows, err := h.svc.Results(r.Context(), principal(r), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []model.LedgerRow{}
	}
	exp := model.ResultsExport{
		GeneratedAt: h.now(),
		Filter: model.ExportScope{
			Year: f.Year, Branch: f.Branch, Section: f.Section, ExamDate: f.ExamDate, ExamID: f.ExamID,
		},
		Count: len(rows),
		Rows:  rows,
	}
	if format == report.FormatCSV {
		w.Header().Set("Content-Disposition", `attachment; filename="results.csv"`)
	}
	streamReport(w, r, format, func(w io.Writer) error {
		return report.Results(w, format, exp)
	})
}

// handleListArchives lists archived papers. Students always see their own
// cohort; staff pass year, branch and section.
func (h *Handler) handleListArchives(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cohort := model.Cohort{Year: q.Get("year"), Branch: q.Get("branch"), Section: q.Get("section")}
	list, err := h.svc.ListArchives(r.Context(), principal(r), cohort, q.Get("date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []model.ArchiveHeader{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	id, err := examIDParam(r)
	if err != nil {
		writeError(w, r, badRequest("invalid exam id"))
		return
	}
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, badRequest("%v", err))
		return
	}
	a, err := h.svc.GetArchive(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	streamReport(w, r, format, func(w io.Writer) error {
		return report.Archive(w, format, a)
	})
}
