package handler

import (
	"errors"
	"net/http"

	"github.com/pavelanni/examhall/internal/apperrors"
	"github.com/pavelanni/examhall/internal/model"
)

func (h *Handler) handleOpenExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.svc.OpenExams(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exams)
}

// handleBeginAttempt returns the student's paper. A student who already
// submitted gets their stored result instead.
func (h *Handler) handleBeginAttempt(w http.ResponseWriter, r *http.Request) {
	id, err := examIDParam(r)
	if err != nil {
		writeError(w, r, badRequest("invalid exam id"))
		return
	}
	p := principal(r)
	view, err := h.svc.BeginAttempt(r.Context(), p, id)
	if errors.Is(err, apperrors.ErrAlreadyRecorded) {
		res, err := h.store.GetResult(r.Context(), p.Subject, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, model.Submission{
			Roll:            res.Roll,
			ExamID:          res.ExamID,
			Score:           res.Score,
			SubmittedAt:     res.SubmittedAt,
			AlreadyRecorded: true,
		})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type submitRequest struct {
	Answers map[int64]string `json:"answers"`
}

// handleSubmitAttempt scores the answers. Re-submitting returns the stored
// result with already_recorded set.
func (h *Handler) handleSubmitAttempt(w http.ResponseWriter, r *http.Request) {
	id, err := examIDParam(r)
	if err != nil {
		writeError(w, r, badRequest("invalid exam id"))
		return
	}
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sub, err := h.svc.SubmitAttempt(r.Context(), principal(r), id, req.Answers)
	if err != nil && !errors.Is(err, apperrors.ErrAlreadyRecorded) {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
