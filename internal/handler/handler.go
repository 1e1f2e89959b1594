// Package handler exposes the exam service as a JSON HTTP API.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examhall/internal/auth"
	"github.com/pavelanni/examhall/internal/exam"
	"github.com/pavelanni/examhall/internal/model"
	"github.com/pavelanni/examhall/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	svc    *exam.Service
	store  *store.Store
	tokens *auth.JWTService
	now    func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithClock replaces the wall clock used for token checks.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// New creates a new Handler.
func New(svc *exam.Service, st *store.Store, tokens *auth.JWTService, opts ...Option) *Handler {
	h := &Handler{svc: svc, store: st, tokens: tokens, now: time.Now}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Routes registers all HTTP routes under /api.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/login", h.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Post("/logout", h.handleLogout)
			r.Get("/archives/{examID}", h.handleGetArchive)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.UserRoleFaculty, model.UserRoleAdmin))
				r.Post("/exams", h.handleCreateExam)
				r.Get("/exams", h.handleListExams)
				r.Get("/exams/{examID}", h.handleGetExam)
				r.Delete("/exams/{examID}", h.handleDeleteExam)
				r.Put("/exams/{examID}/questions", h.handleImportQuestions)
				r.Post("/exams/{examID}/activate", h.handleActivateExam)
				r.Post("/exams/{examID}/close", h.handleCloseExam)
				r.Get("/exams/{examID}/monitor", h.handleMonitor)
				r.Get("/exams/{examID}/attendance", h.handleAttendance)
				r.Get("/exams/{examID}/answer-key", h.handleAnswerKey)
				r.Get("/results", h.handleResults)
				r.Get("/attendance", h.handleAttendanceReport)
				r.Get("/archives", h.handleListArchives)
			})

			r.Route("/student", func(r chi.Router) {
				r.Use(requireRole(model.UserRoleStudent))
				r.Get("/exams", h.handleOpenExams)
				r.Post("/exams/{examID}/attempt", h.handleBeginAttempt)
				r.Post("/exams/{examID}/submit", h.handleSubmitAttempt)
				r.Get("/archives", h.handleListArchives)
				r.Post("/password", h.handleChangePassword)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireRole(model.UserRoleAdmin))
				r.Post("/faculty", h.handleCreateFaculty)
				r.Get("/faculty", h.handleListFaculty)
				r.Post("/faculty/{userID}/toggle", h.handleToggleFaculty)
				r.Post("/roster", h.handleImportRoster)
				r.Delete("/roster", h.handleDeleteRoster)
				r.Get("/students", h.handleListStudents)
				r.Put("/students/{roll}", h.handleUpdateStudent)
				r.Delete("/students/{roll}", h.handleDeleteStudent)
				r.Post("/students/{roll}/password", h.handleResetStudentPassword)
			})
		})
	})
}

// examIDParam parses the {examID} URL parameter.
func examIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "examID"), 10, 64)
}

func principal(r *http.Request) model.Principal {
	p, _ := model.PrincipalFromContext(r.Context())
	return p
}
