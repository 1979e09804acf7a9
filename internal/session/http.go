package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// CookieName is the cookie carrying the session token for browser clients.
const CookieName = "legisync_session"

type contextKey struct{}

// WithSession returns ctx carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session stored by WithSession.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok
}

// TokenFromRequest extracts the token from the Authorization bearer header,
// the session cookie, or the access_token query parameter, in that order.
// The query parameter exists for WebSocket clients that cannot set headers.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("access_token")
}

// WantsHTML reports whether the client prefers an HTML response.
func WantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html")
}

// Middleware requires a valid session on every request.
//
// Browser clients (Accept: text/html) without a valid session are redirected
// to loginPath with 303 See Other. Everyone else is passed to unauthorized,
// which writes the API error response.
func (m *Manager) Middleware(loginPath string, unauthorized func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := m.Parse(TokenFromRequest(r))
			if err != nil {
				if WantsHTML(r) {
					http.Redirect(w, r, loginPath, http.StatusSeeOther)
					return
				}
				unauthorized(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}

// IsAuthError reports whether err means the caller must sign in again.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrNoSession) || errors.Is(err, ErrExpired) || errors.Is(err, ErrInvalidToken)
}
