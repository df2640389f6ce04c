package handlers

import (
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"mcpanel/auth"
	"mcpanel/internal/errors"
	"mcpanel/internal/validation"

	"go.uber.org/zap"
)

// AuthHandlers handles authentication requests
type AuthHandlers struct {
	container *Container
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(container *Container) *AuthHandlers {
	return &AuthHandlers{container: container}
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Login checks the admin credentials and sets the session cookie.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeBody(r, validation.SchemaLogin, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, LoginResponse{Message: "Invalid request format"})
		return
	}

	session, err := h.container.Sessions.Login(r.Context(), req.Username, req.Password)
	switch {
	case stderrors.Is(err, auth.ErrInvalidCredentials), stderrors.Is(err, auth.ErrNotConfigured):
		writeJSON(w, http.StatusUnauthorized, LoginResponse{Message: "Invalid username or password"})
		return
	case err != nil:
		errors.HandleHTTPError(w, h.container.logger(), errors.NewDatabaseError("login", err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, LoginResponse{
		Success:   true,
		Message:   "Login successful",
		ExpiresAt: &session.ExpiresAt,
	})
}

// Logout drops the session and clears the cookie.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.CookieName); err == nil {
		if err := h.container.Sessions.Logout(r.Context(), cookie.Value); err != nil {
			h.container.logger().Warn("Failed to remove session", zap.Error(err))
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, LoginResponse{Success: true, Message: "Logged out successfully"})
}

// publicPaths are reachable without a session: game clients and launchers
// fetch files anonymously.
var publicPaths = []string{
	"/api/auth/login",
	"/healthz",
	"/metrics",
	"/api/mods/manifest",
}

var publicPrefixes = []string{
	"/api/manifest/",
	"/api/mods/serve/",
	"/api/shaders/serve/",
	"/api/resourcepacks/serve/",
	"/api/resourcepacks/custom/",
}

// IsPublicPath reports whether path skips authentication.
func IsPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// AuthMiddleware rejects requests without a valid session cookie.
func AuthMiddleware(sessions *auth.Manager, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(auth.CookieName)
			if err != nil {
				errors.HandleHTTPError(w, logger, errors.NewAuthenticationError("auth", err))
				return
			}
			session, err := sessions.Validate(r.Context(), cookie.Value)
			if err != nil {
				if !stderrors.Is(err, auth.ErrInvalidSession) {
					errors.HandleHTTPError(w, logger, errors.NewDatabaseError("auth", err))
					return
				}
				errors.HandleHTTPError(w, logger, errors.NewAuthenticationError("auth", err))
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), session)))
		})
	}
}
