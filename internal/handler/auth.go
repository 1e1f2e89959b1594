package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examhall/internal/apperrors"
	"github.com/pavelanni/examhall/internal/auth"
	"github.com/pavelanni/examhall/internal/model"
	"github.com/pavelanni/examhall/internal/store"
)

const minPasswordLen = 4

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	Subject   string         `json:"subject"`
	Role      model.UserRole `json:"role"`
}

// handleLogin authenticates staff by username or students by roll number
// and returns a bearer token.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, r, badRequest("username and password are required"))
		return
	}

	role, err := h.authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	tok, err := h.tokens.Issue(req.Username, role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.store.CreateAuthToken(r.Context(), store.AuthToken{
		ID:        tok.ID,
		Subject:   req.Username,
		Role:      role,
		CreatedAt: tok.IssuedAt,
		ExpiresAt: tok.ExpiresAt,
	}); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user logged in", "subject", req.Username, "role", role)
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     tok.Value,
		ExpiresAt: tok.ExpiresAt,
		Subject:   req.Username,
		Role:      role,
	})
}

// authenticate checks staff accounts first, then the student roster. A
// student who never set a password logs in with their roll number.
func (h *Handler) authenticate(ctx context.Context, username, password string) (model.UserRole, error) {
	user, err := h.store.GetUserByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if user != nil {
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
			slog.Warn("failed login attempt", "username", username)
			return "", unauthorized("invalid username or password")
		}
		if !user.Active {
			slog.Warn("login attempt by inactive user", "username", username)
			return "", unauthorized("account is disabled")
		}
		return user.Role, nil
	}

	st, err := h.store.GetStudent(ctx, username)
	if errors.Is(err, apperrors.ErrNotFound) {
		slog.Warn("failed login attempt", "username", username)
		return "", unauthorized("invalid username or password")
	}
	if err != nil {
		return "", err
	}
	if !studentPasswordMatches(st, password) {
		slog.Warn("failed login attempt", "roll", username)
		return "", unauthorized("invalid username or password")
	}
	return model.UserRoleStudent, nil
}

func studentPasswordMatches(st *model.Student, password string) bool {
	if st.PasswordHash == "" {
		return subtle.ConstantTimeCompare([]byte(st.Roll), []byte(password)) == 1
	}
	return bcrypt.CompareHashAndPassword([]byte(st.PasswordHash), []byte(password)) == nil
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if err := h.store.DeleteAuthToken(r.Context(), p.TokenID); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("user logged out", "subject", p.Subject)
	w.WriteHeader(http.StatusNoContent)
}

// requireAuth validates the bearer token, checks it has not been revoked
// and attaches the principal to the request context.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := auth.ExtractBearerToken(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, r, unauthorized(err.Error()))
			return
		}
		p, err := h.tokens.Validate(raw)
		if err != nil {
			writeError(w, r, unauthorized(err.Error()))
			return
		}
		reg, err := h.store.GetAuthToken(r.Context(), p.TokenID, h.now())
		if err != nil {
			writeError(w, r, err)
			return
		}
		if reg == nil {
			writeError(w, r, unauthorized("token revoked"))
			return
		}
		if p.Role != model.UserRoleStudent {
			user, err := h.store.GetUserByUsername(r.Context(), p.Subject)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if user == nil || !user.Active {
				writeError(w, r, unauthorized("account is disabled"))
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithPrincipal(r.Context(), p)))
	})
}

// requireRole rejects principals whose role is not listed.
func requireRole(roles ...model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := principal(r)
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, r, apperrors.Forbidden("role %s cannot access %s", p.Role, r.URL.Path))
		})
	}
}

type passwordRequest struct {
	Current string `json:"current_password"`
	New     string `json:"new_password"`
}

// handleChangePassword lets a student replace their password.
func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.New) < minPasswordLen {
		writeError(w, r, apperrors.Validation("password must be at least %d characters", minPasswordLen))
		return
	}
	p := principal(r)
	st, err := h.store.GetStudent(r.Context(), p.Subject)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !studentPasswordMatches(st, req.Current) {
		writeError(w, r, unauthorized("current password is wrong"))
		return
	}
	if err := h.setStudentPassword(r.Context(), st.Roll, req.New); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setStudentPassword(ctx context.Context, roll, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := h.store.SetStudentPassword(ctx, roll, string(hash)); err != nil {
		return err
	}
	slog.Info("student password changed", "roll", roll)
	return nil
}
