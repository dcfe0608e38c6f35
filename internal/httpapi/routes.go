package httpapi

import (
	"net/http"
	"time"

	"github.com/DoyleJ11/queue-draft-backend/internal/metrics"
	"github.com/DoyleJ11/queue-draft-backend/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// SetupRoutes mounts the API. ws may be nil.
func SetupRoutes(a *API, ws http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.requestLog)

	r.Get("/healthz", Healthz)
	r.Get("/readyz", a.Readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	if ws != nil {
		r.Method(http.MethodGet, "/ws", ws)
	}

	r.Route("/queues", func(r chi.Router) {
		r.Get("/", a.ListQueues)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.GetQueue)
			r.Get("/history", a.QueueHistory)

			r.Post("/join", a.Event(types.MsgJoin))
			r.Post("/leave", a.Event(types.MsgLeave))
			r.Post("/votes", a.Event(types.MsgVote))
			r.Post("/picks", a.Event(types.MsgPick))
			r.Post("/swap", a.Event(types.MsgRequestSwap))
			r.Post("/swap/answer", a.Event(types.MsgAnswerSwap))
			r.Post("/continue", a.Event(types.MsgContinue))

			// Admin
			r.Post("/winner", a.Event(types.MsgReportWinner))
			r.Post("/reset", a.Event(types.MsgReset))
			r.Post("/retry", a.Event(types.MsgRetryCommit))
		})
	})

	r.Get("/leaderboard", a.Leaderboard)
	r.Get("/players/{id}", a.Player)
	r.Get("/players/{id}/matches", a.PlayerMatches)
	r.Get("/matches/{id}", a.Match)
	return r
}

func (a *API) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
