package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"workhub/httputil"
	"workhub/identity"
	"workhub/logger"
	"workhub/metrics"
	"workhub/models"

	"gorm.io/gorm"
)

type contextKey string

const UserContextKey contextKey = "user"

// TokenCookie is the cookie carrying the session token.
const TokenCookie = "token"

// Guard authenticates requests from a session token.
type Guard struct {
	tokens *identity.Tokens
	db     *gorm.DB
	log    *logger.Logger
}

func NewGuard(tokens *identity.Tokens, db *gorm.DB, log *logger.Logger) *Guard {
	return &Guard{tokens: tokens, db: db, log: log}
}

// Authenticate rejects requests without a valid session with 401. The user
// is reloaded from the database so role changes and deletions apply to
// tokens that are already issued.
func (g *Guard) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := tokenFromRequest(r)
		if tokenString == "" {
			metrics.GuardRejections.WithLabelValues("missing_token").Inc()
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}

		claims, err := g.tokens.Parse(tokenString)
		if err != nil {
			metrics.GuardRejections.WithLabelValues("invalid_token").Inc()
			ClearTokenCookie(w)
			httputil.WriteUnauthorized(w, "invalid or expired session")
			return
		}

		var user models.User
		err = g.db.WithContext(r.Context()).Where("id = ?", claims.UserID).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.GuardRejections.WithLabelValues("unknown_user").Inc()
			ClearTokenCookie(w)
			httputil.WriteUnauthorized(w, "invalid or expired session")
			return
		}
		if err != nil {
			g.log.WithContext(r.Context()).Error("load session user", "user_id", claims.UserID, "error", err)
			httputil.WriteInternalError(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), &user)))
	})
}

// AdminPaths is the coarse guard: any request under one of the prefixes
// needs an ADMIN session, whatever entity it touches.
func AdminPaths(prefixes []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !matchesPrefix(r.URL.Path, prefixes) {
				next.ServeHTTP(w, r)
				return
			}

			user := GetUserFromContext(r.Context())
			if user == nil {
				metrics.GuardRejections.WithLabelValues("unauthenticated").Inc()
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			if !user.IsAdmin() {
				metrics.GuardRejections.WithLabelValues("admin_path").Inc()
				httputil.WriteForbidden(w, "admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// passwordChangePaths stay reachable while a password change is pending.
var passwordChangePaths = map[string]bool{
	"/api/auth/password": true,
	"/api/auth/logout":   true,
	"/api/me":            true,
}

// RequirePasswordChange blocks sessions flagged for a forced password change
// from everything except changing the password, logging out and reading
// their own profile.
func RequirePasswordChange(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetUserFromContext(r.Context())
		if user != nil && user.MustChangePassword && !passwordChangePaths[r.URL.Path] {
			metrics.GuardRejections.WithLabelValues("password_change").Inc()
			httputil.WriteForbidden(w, "password change required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole lets through sessions whose role ranks at least minimum.
func RequireRole(minimum models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUserFromContext(r.Context())
			if user == nil {
				metrics.GuardRejections.WithLabelValues("unauthenticated").Inc()
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			if !models.HasPermission(user.Role, minimum) {
				metrics.GuardRejections.WithLabelValues("role").Inc()
				httputil.WriteForbidden(w, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

func SetTokenCookie(w http.ResponseWriter, token string, maxAge int, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func ClearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// tokenFromRequest prefers the cookie and falls back to a Bearer header.
func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(TokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return ""
}

func matchesPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		prefix = strings.TrimSuffix(prefix, "/")
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
