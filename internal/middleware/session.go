package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"parcelcli/internal/sessions"
)

// SessionIDKey carries the browser session ID set by SessionManager
const SessionIDKey contextKey = "session-id"

// SessionCookieName is the default cookie that ties a browser to its
// report state; config can override it
const SessionCookieName = "parcel_session"

// SessionManager assigns each browser a session ID cookie and makes it
// available to handlers via the request context. Uploaded tables and
// category selections are keyed by this ID in the session store.
type SessionManager struct {
	store           *sessions.Store
	logger          *slog.Logger
	cookieName      string
	excludePaths    []string
	excludePrefixes []string
}

// NewSessionManager creates the session cookie middleware. An empty
// cookieName falls back to SessionCookieName.
func NewSessionManager(store *sessions.Store, logger *slog.Logger, cookieName string) *SessionManager {
	if cookieName == "" {
		cookieName = SessionCookieName
	}
	return &SessionManager{
		store:      store,
		logger:     logger.With(slog.String("component", "session_middleware")),
		cookieName: cookieName,
		// No point minting cookies for probes and machine endpoints
		excludePaths: []string{
			"/api/health",
			"/api/health/ready",
			"/api/health/live",
			"/api/version",
			"/metrics",
			"/favicon.ico",
			"/robots.txt",
		},
		excludePrefixes: []string{
			"/static/",
		},
	}
}

// Handler returns the middleware handler function
func (sm *SessionManager) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sm.isExcluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		sessionID, minted := sm.sessionID(r)
		if minted {
			// Session cookie, not persistent: report state is per browser
			// session, same as the server-side TTL model
			http.SetCookie(w, &http.Cookie{
				Name:     sm.cookieName,
				Value:    sessionID,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
			sm.logger.DebugContext(ctx, "session created",
				slog.String("session_id", sessionID),
				slog.String("path", r.URL.Path),
			)
		} else {
			sm.store.Touch(sessionID)
		}

		ctx = context.WithValue(ctx, SessionIDKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionID returns the session ID from the request cookie, minting a
// fresh one when the cookie is absent or not a valid UUID.
func (sm *SessionManager) sessionID(r *http.Request) (id string, minted bool) {
	cookie, err := r.Cookie(sm.cookieName)
	if err == nil {
		if _, parseErr := uuid.Parse(cookie.Value); parseErr == nil {
			return cookie.Value, false
		}
		sm.logger.WarnContext(r.Context(), "malformed session cookie replaced",
			slog.String("path", r.URL.Path),
		)
	}
	return uuid.New().String(), true
}

func (sm *SessionManager) isExcluded(path string) bool {
	for _, p := range sm.excludePaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range sm.excludePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// GetSessionID retrieves the session ID from the request context.
// Returns an empty string outside the session middleware.
func GetSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(SessionIDKey).(string); ok {
		return id
	}
	return ""
}
