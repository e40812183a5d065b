package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"motoshop/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	userContextKey contextKey = "user"
)

// Claims represents JWT claims
type Claims struct {
	UserID   int64  `json:"userId"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	BranchID string `json:"branchId"`
	jwt.RegisteredClaims
}

// authMiddleware rejects requests without a valid bearer token
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		} else if cookie, err := r.Cookie("auth_token"); err == nil {
			// printable pages are opened in a new tab without the header
			tokenString = cookie.Value
		}
		if tokenString == "" {
			writeErrorStatus(w, http.StatusUnauthorized, "UNAUTHORIZED", "Please sign in.")
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(s.config.JWT.Secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			writeErrorStatus(w, http.StatusUnauthorized, "UNAUTHORIZED", "Your session has expired, please sign in again.")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// roleMiddleware restricts access based on user role. Admin always passes.
func (s *Server) roleMiddleware(allowedRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := getUserClaims(r)
			if claims == nil {
				writeErrorStatus(w, http.StatusUnauthorized, "UNAUTHORIZED", "Please sign in.")
				return
			}

			allowed := claims.Role == domain.RoleAdmin
			for _, role := range allowedRoles {
				if claims.Role == role {
					allowed = true
					break
				}
			}

			if !allowed {
				writeErrorStatus(w, http.StatusForbidden, "FORBIDDEN", "You are not allowed to do this.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getUserClaims extracts user claims from request context
func getUserClaims(r *http.Request) *Claims {
	claims, ok := r.Context().Value(userContextKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}

// branchOf returns the branch a request works on: the user's own branch, or
// for admins the ?branch= query parameter when given
func branchOf(r *http.Request) string {
	claims := getUserClaims(r)
	if claims == nil {
		return ""
	}
	if claims.Role == domain.RoleAdmin {
		if b := strings.TrimSpace(r.URL.Query().Get("branch")); b != "" {
			return b
		}
	}
	return claims.BranchID
}

// generateToken creates a new JWT token for a user
func (s *Server) generateToken(user *domain.User) (string, time.Time, error) {
	expirationTime := time.Now().Add(time.Duration(s.config.JWT.ExpirationHours) * time.Hour)

	claims := &Claims{
		UserID:   user.ID,
		Email:    user.Email,
		Role:     user.Role,
		BranchID: user.BranchID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.config.Business.Name,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.JWT.Secret))
	return signed, expirationTime, err
}

// setAuthCookie sets the authentication cookie
func (s *Server) setAuthCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   !s.config.Debug,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearAuthCookie removes the authentication cookie
func clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
