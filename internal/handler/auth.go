package handler

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/chils-store/internal/domain/user"
	"github.com/xenking/chils-store/internal/session"
	"github.com/xenking/chils-store/internal/validation"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req user.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	u, err := h.users.Register(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.sessions.Start(r.Context(), w, u); err != nil {
		h.fail(w, r, errors.Wrap(err, "start session"))
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Data:    newUserResponse(u),
		Message: "Registration successful",
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		h.fail(w, r, validation.Invalid("email", "and password are required"))
		return
	}

	u, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.sessions.Start(r.Context(), w, u); err != nil {
		h.fail(w, r, errors.Wrap(err, "start session"))
		return
	}
	zctx.From(r.Context()).Info("User logged in",
		zap.String("user_id", u.ID),
		zap.String("role", string(u.Role)),
	)
	writeDataMessage(w, newUserResponse(u), "Login successful")
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.End(w, r); err != nil {
		h.fail(w, r, errors.Wrap(err, "end session"))
		return
	}
	writeMessage(w, http.StatusOK, "Logged out successfully")
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, identityFromSession(caller(r)))
}

// authenticate rejects requests without a live session and stores the
// session in the request context.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := h.sessions.Load(r)
		switch {
		case errors.Is(err, session.ErrNotFound):
			h.fail(w, r, errUnauthenticated)
			return
		case err != nil:
			h.fail(w, r, errors.Wrap(err, "load session"))
			return
		}
		ctx := zctx.With(session.NewContext(r.Context(), s), zap.String("user_id", s.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireRole(roles ...user.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := session.FromContext(r.Context())
			if !ok {
				writeMessage(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !slices.Contains(roles, s.Role) {
				writeMessage(w, http.StatusForbidden, "Access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// caller returns the session set by authenticate.
func caller(r *http.Request) *session.Session {
	s, _ := session.FromContext(r.Context())
	return s
}
