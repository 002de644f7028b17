package httpmw

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HeartbeatToucher refreshes lastActive for a (room, user) pair.
type HeartbeatToucher interface {
	Touch(ctx context.Context, roomID, userID string) error
}

// HeartbeatMiddleware refreshes lastActive whenever an authenticated request
// names a room in its path. Best-effort: failures never block the request.
func HeartbeatMiddleware(parts HeartbeatToucher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := UserIDFromCtx(r.Context())
			if userID != "" {
				if roomID := chi.URLParam(r, "roomId"); roomID != "" {
					_ = parts.Touch(r.Context(), roomID, userID)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
