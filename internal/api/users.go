package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/im-zhong/eduagent/internal/auth"
	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/pkg/types"
)

type registerRequest struct {
	Username         string         `json:"username"`
	Email            string         `json:"email"`
	Password         string         `json:"password"`
	Role             types.UserRole `json:"role,omitempty"`
	GradeLevel       string         `json:"grade_level,omitempty"`
	SubjectInterests []string       `json:"subject_interests,omitempty"`
}

// RegisterUser handles POST /api/v1/users/register.
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		h.writeError(w, eduerrors.NewInvalidRequestError("api", "username, email, and password are required"))
		return
	}
	if req.Role == "" {
		req.Role = types.RoleStudent
	}
	switch req.Role {
	case types.RoleStudent, types.RoleTeacher, types.RoleAdmin:
	default:
		h.writeError(w, eduerrors.NewInvalidRequestError("api", "unknown role "+string(req.Role)))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.writeError(w, eduerrors.NewInvalidRequestError("api", err.Error()))
		return
	}

	user := &types.User{
		ID:               uuid.New(),
		Username:         req.Username,
		Email:            req.Email,
		PasswordHash:     hash,
		Role:             req.Role,
		GradeLevel:       req.GradeLevel,
		SubjectInterests: req.SubjectInterests,
		IsActive:         true,
		CreatedAt:        time.Now().UTC(),
	}
	if err := h.gateway.CreateUser(r.Context(), user); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /api/v1/users/login, returning a bearer token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	user, err := h.gateway.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		// A wrong username and a wrong password are indistinguishable to the
		// client.
		h.writeError(w, invalidCredentials())
		return
	}
	if !user.IsActive || !auth.VerifyPassword(user.PasswordHash, req.Password) {
		h.writeError(w, invalidCredentials())
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		h.writeError(w, eduerrors.NewInternalError("api", "token issue failed"))
		return
	}

	now := time.Now().UTC()
	user.LastLogin = &now
	if err := h.gateway.UpdateUser(r.Context(), user); err != nil {
		h.logger.Warn("last login not recorded", "user_id", user.ID, "error", err)
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(h.tokens.TTL().Seconds()),
		"user":       user,
	})
}

func invalidCredentials() error {
	return &eduerrors.Error{
		StatusCode: http.StatusUnauthorized,
		Message:    "invalid username or password",
		Type:       eduerrors.TypeInvalidRequest,
		Component:  "api",
	}
}

// Profile handles GET /api/v1/users/me. It requires a bearer token.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, &eduerrors.Error{
			StatusCode: http.StatusUnauthorized,
			Message:    "authentication required",
			Type:       eduerrors.TypeInvalidRequest,
			Component:  "api",
		})
		return
	}
	user, err := h.gateway.GetUser(r.Context(), claims.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}
