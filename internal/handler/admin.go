package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examhall/internal/apperrors"
	appI18n "github.com/pavelanni/examhall/internal/i18n"
	"github.com/pavelanni/examhall/internal/model"
)

type facultyRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

func (h *Handler) handleCreateFaculty(w http.ResponseWriter, r *http.Request) {
	var req facultyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.Username == "" || req.Password == "" {
		writeError(w, r, apperrors.Validation("username and password are required"))
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}
	if len(req.Password) < minPasswordLen {
		writeError(w, r, apperrors.Validation("password must be at least %d characters", minPasswordLen))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u := model.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		Role:         model.UserRoleFaculty,
		Active:       true,
	}
	id, err := h.store.CreateUser(r.Context(), u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u.ID = id
	u.CreatedAt = h.now()
	writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) handleListFaculty(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context(), model.UserRoleFaculty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleToggleFaculty(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, r, badRequest("invalid user id"))
		return
	}
	if err := h.store.ToggleUserActive(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("toggled user", "id", id, "by", principal(r).Subject)
	w.WriteHeader(http.StatusNoContent)
}

type rosterRequest struct {
	Cohort   model.Cohort      `json:"cohort"`
	Students []model.RosterRow `json:"students"`
}

func (h *Handler) handleImportRoster(w http.ResponseWriter, r *http.Request) {
	var req rosterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := h.svc.ImportRoster(r.Context(), principal(r), req.Cohort, req.Students)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{Imported: n, Message: appI18n.Tp(r.Context(), "StudentsImported", n)})
}

type deleteResponse struct {
	Deleted int64  `json:"deleted"`
	Message string `json:"message"`
}

// handleDeleteRoster removes a cohort given as year, branch and optional
// section query parameters.
func (h *Handler) handleDeleteRoster(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cohort := model.Cohort{Year: q.Get("year"), Branch: q.Get("branch"), Section: q.Get("section")}
	n, err := h.svc.DeleteRoster(r.Context(), principal(r), cohort)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Deleted: n, Message: appI18n.Tp(r.Context(), "StudentsDeleted", int(n))})
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

// handleResetStudentPassword sets a student's password. An empty password
// clears it so the roll number works again.
func (h *Handler) handleResetStudentPassword(w http.ResponseWriter, r *http.Request) {
	roll := chi.URLParam(r, "roll")
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Password == "" {
		if err := h.store.SetStudentPassword(r.Context(), roll, ""); err != nil {
			writeError(w, r, err)
			return
		}
		slog.Info("student password cleared", "roll", roll, "by", principal(r).Subject)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if len(req.Password) < minPasswordLen {
		writeError(w, r, apperrors.Validation("password must be at least %d characters", minPasswordLen))
		return
	}
	if err := h.setStudentPassword(r.Context(), roll, req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListStudents lists roster members filtered by year, branch and
// section query parameters.
func (h *Handler) handleListStudents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.Cohort{Year: q.Get("year"), Branch: q.Get("branch"), Section: q.Get("section")}
	students, err := h.svc.ListStudents(r.Context(), principal(r), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if students == nil {
		students = []model.Student{}
	}
	writeJSON(w, http.StatusOK, students)
}

func (h *Handler) handleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	var req model.StudentUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	st, err := h.svc.UpdateStudent(r.Context(), principal(r), chi.URLParam(r, "roll"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteStudent(r.Context(), principal(r), chi.URLParam(r, "roll")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
