package httpmw

import (
	"context"
	"net/http"
	"strings"

	"github.com/jamnotes/jam-service/internal/security"
	"github.com/jamnotes/jam-service/pkg/httputil"
)

type ctxKey string

const (
	ctxKeyUserID   ctxKey = "user_id"
	ctxKeyUserName ctxKey = "user_name"
)

// AuthMiddleware verifies the identity provider's Bearer session token and
// stores the caller's identity on the request context.
func AuthMiddleware(tokens *security.Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || len(auth) <= 7 {
				httputil.Error(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			claims, err := tokens.ParseSession(strings.TrimSpace(auth[7:]))
			if err != nil {
				httputil.Error(w, http.StatusUnauthorized, "unauthorized", "invalid session token")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyUserID, claims.Subject)
			ctx = context.WithValue(ctx, ctxKeyUserName, claims.DisplayName)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func UserIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserID).(string); ok {
		return v
	}
	return ""
}

func UserNameFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserName).(string); ok {
		return v
	}
	return ""
}
