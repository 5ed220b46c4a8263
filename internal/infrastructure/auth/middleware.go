package auth

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/honeynil/RecycleRewardsAdmin/internal/session"
	pkgerrors "github.com/honeynil/RecycleRewardsAdmin/pkg/errors"
)

type Resumer interface {
	Resume(ctx context.Context, token string) (*session.Session, error)
}

type ctxKey struct{}

func WithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// SessionFrom returns the session attached by AuthMiddleware, or nil.
func SessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(ctxKey{}).(*session.Session)
	return s
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		// websocket clients cannot set headers
		if t := r.URL.Query().Get("access_token"); t != "" {
			return t, true
		}
		return "", false
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func AuthMiddleware(sessions Resumer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := bearerToken(r)
			if !ok {
				http.Error(w, "authorization header missing or invalid", http.StatusUnauthorized)
				return
			}

			s, err := sessions.Resume(r.Context(), tokenStr)
			switch {
			case stderrors.Is(err, pkgerrors.ErrSessionExpired):
				http.Error(w, "session expired", http.StatusUnauthorized)
				return
			case stderrors.Is(err, pkgerrors.ErrInvalidToken):
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			case err != nil:
				slog.Error("failed to resume session", "error", err)
				http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}
