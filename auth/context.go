package auth

import "context"

type sessionKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session stored by WithSession, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}

// Username returns the logged-in user of ctx, or "".
func Username(ctx context.Context) string {
	if s := FromContext(ctx); s != nil {
		return s.Username
	}
	return ""
}
