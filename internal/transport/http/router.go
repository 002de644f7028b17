package http

import (
	"net/http"
	"time"

	"github.com/jamnotes/jam-service/internal/metrics"
	"github.com/jamnotes/jam-service/internal/security"
	httpmw "github.com/jamnotes/jam-service/internal/transport/http/middleware"
	"github.com/jamnotes/jam-service/internal/transport/ws"
	"github.com/jamnotes/jam-service/pkg/httputil"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(h *Handler, tokens *security.Tokens, toucher httpmw.HeartbeatToucher, limiter *httpmw.RateLimiter, wsServer *ws.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httputil.MiddlewareRequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// WS endpoint authenticates via the rtm token query param, not the
	// Authorization header, so it sits outside the auth group.
	r.Get("/ws/rooms/{roomId}", wsServer.HandleWS)

	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.AuthMiddleware(tokens))
		pr.Use(limiter.Middleware)
		pr.Use(middlewareChi.Timeout(30 * time.Second))

		pr.Get("/rtm/token", h.RTMToken)
		pr.Get("/tracks", h.ListTracks)

		pr.Route("/rooms", func(rm chi.Router) {
			rm.Post("/", h.CreateRoom)
			rm.Get("/", h.ListRooms)
			rm.Post("/join", h.JoinRoom)

			rm.Route("/{roomId}", func(rr chi.Router) {
				rr.Use(httpmw.HeartbeatMiddleware(toucher))

				rr.Post("/leave", h.LeaveRoom)
				rr.Get("/", h.GetSnapshot)
				rr.Get("/messages", h.GetMessages)
				rr.Post("/messages", h.PostMessage)
				rr.Post("/playback", h.UpdatePlayback)
			})
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
