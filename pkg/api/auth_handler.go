package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/karbonuyum/platform/pkg/auth"
	"github.com/karbonuyum/platform/pkg/store"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type userResponse struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	IsActive    bool   `json:"is_active"`
	IsSuperuser bool   `json:"is_superuser"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		WriteBadRequest(w, "a valid email is required")
		return
	}
	// bcrypt refuses input over 72 bytes, so reject it here as a 400 instead
	// of letting the hasher fail.
	if len(req.Password) < 8 || len(req.Password) > 72 {
		WriteBadRequest(w, "password must be between 8 and 72 characters")
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		s.log.Error("password hashing failed", "error", err)
		WriteInternalError(w)
		return
	}
	user, err := s.users.Create(r.Context(), req.Email, hashed)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			WriteConflict(w, "email already registered")
			return
		}
		s.storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, userResponse{
		ID: user.ID, Email: user.Email, IsActive: user.IsActive,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	user, err := s.users.ByEmail(r.Context(), req.Email)
	if err != nil || !user.IsActive || !auth.VerifyPassword(user.HashedPassword, req.Password) {
		// One answer for every failure mode so attackers cannot probe which
		// emails exist.
		WriteUnauthorized(w, "invalid credentials")
		return
	}

	token, err := s.tokens.Issue(user.ID, user.Email, time.Now())
	if err != nil {
		s.log.Error("token issue failed", "error", err)
		WriteInternalError(w)
		return
	}
	WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   s.cfg.JWTExpiryMinutes * 60,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u := CurrentUser(r.Context())
	WriteJSON(w, http.StatusOK, userResponse{
		ID: u.ID, Email: u.Email, IsActive: u.IsActive, IsSuperuser: u.IsSuperuser,
	})
}
