// Package middleware holds the HTTP wrappers shared by every API route.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ukydev/carbuddy/internal/auth"
	"github.com/ukydev/carbuddy/internal/models"
)

type contextKey string

const UserContextKey contextKey = "user"

// Paths served without a token. Subpaths are public too.
var publicPaths = []string{"/health"}

// AuthMiddleware authenticates bearer tokens and enforces roles.
type AuthMiddleware struct {
	authService *auth.Service
}

func NewAuthMiddleware(authService *auth.Service) *AuthMiddleware {
	return &AuthMiddleware{authService: authService}
}

// Authenticate puts the caller's claims into the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSkipAuth(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.claimsFrom(r.Header.Get("Authorization"))
		if err != nil {
			deny(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims)))
	})
}

func (m *AuthMiddleware) claimsFrom(header string) (*models.Claims, error) {
	if header == "" {
		return nil, errors.New("authorization header required")
	}
	token, err := m.authService.ExtractTokenFromHeader(header)
	if err != nil {
		return nil, err
	}
	return m.authService.ValidateToken(token)
}

// RequireRole admits callers holding role. Admins always pass.
func (m *AuthMiddleware) RequireRole(role models.Role) func(http.Handler) http.Handler {
	return guard(func(c *models.Claims) bool {
		return c.Role == role || c.Role == models.RoleAdmin
	})
}

// RequirePermission admits callers whose role grants action.
func (m *AuthMiddleware) RequirePermission(action string) func(http.Handler) http.Handler {
	return guard(func(c *models.Claims) bool {
		return (&models.User{Role: c.Role}).HasPermission(action)
	})
}

func guard(allowed func(*models.Claims) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetUserFromContext(r.Context())
			switch {
			case !ok:
				deny(w, http.StatusUnauthorized, "not authenticated")
			case !allowed(claims):
				deny(w, http.StatusForbidden, "insufficient permissions")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func WithUser(ctx context.Context, claims *models.Claims) context.Context {
	return context.WithValue(ctx, UserContextKey, claims)
}

// GetUserFromContext returns the claims stored by Authenticate.
func GetUserFromContext(ctx context.Context) (*models.Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*models.Claims)
	return claims, ok && claims != nil
}

func shouldSkipAuth(path string) bool {
	for _, p := range publicPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// deny writes the same {"error": ...} body the handlers use.
func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
