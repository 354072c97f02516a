package httpadapter

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
)

type sessionContextKey struct{}

func sessionFromContext(ctx context.Context) domain.Session {
	session, _ := ctx.Value(sessionContextKey{}).(domain.Session)
	return session
}

// authenticated resolves the bearer token into a session before calling next.
func (rt *Router) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok || rt.services.Sessions == nil {
			rt.writeError(w, r, domain.WrapError(domain.ErrUnauthorized, "authenticate", errors.New("missing bearer token")))
			return
		}

		session, err := rt.services.Sessions.Verify(r.Context(), token)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}

		if scope := scopeFromContext(r.Context()); scope != nil {
			scope.userID = session.UserID
		}
		ctx := context.WithValue(r.Context(), sessionContextKey{}, *session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(headerValue string) (string, bool) {
	headerValue = strings.TrimSpace(headerValue)
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(headerValue, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(headerValue, bearerPrefix))
	return token, token != ""
}
