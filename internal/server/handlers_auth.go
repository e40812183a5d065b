package server

import (
	"net/http"
	"strings"

	"motoshop/internal/domain"

	"golang.org/x/crypto/bcrypt"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expiresAt"`
	User      *domain.User `json:"user"`
}

// handleLogin checks staff credentials and returns a bearer token
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := s.repos.Users.GetByEmail(r.Context(), strings.TrimSpace(strings.ToLower(req.Email)))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if user == nil || !checkPasswordHash(req.Password, user.PasswordHash) {
		writeErrorStatus(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Wrong email or password.")
		return
	}

	token, expires, err := s.generateToken(user)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	s.setAuthCookie(w, token, s.config.JWT.ExpirationHours*3600)

	s.requestLog(r).WithField("email", user.Email).Info("user signed in")
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expires.UTC().Format("2006-01-02T15:04:05Z"), User: user})
}

// handleLogout clears the auth cookie; bearer tokens simply expire
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	clearAuthCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleMe returns the signed-in user
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := getUserClaims(r)
	user, err := s.repos.Users.GetByID(r.Context(), claims.UserID)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if user == nil {
		s.writeError(w, r, domain.ErrNotFound, nil)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// checkPasswordHash compares a password with a hash
func checkPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
