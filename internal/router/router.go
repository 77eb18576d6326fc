package router

import (
	"net/http"
	"time"

	"freelance/internal/auth"
	"freelance/internal/controller"
	"freelance/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Options struct {
	JWTSecret      string
	AllowedOrigins []string
	RequestTimeout time.Duration
	Users          auth.Authenticator
	Log            *zap.Logger
}

func NewRouter(c *controller.Controller, opts Options) http.Handler {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(opts.Log))
	r.Use(middleware.Recoverer)
	r.Use(corsHandler(opts.AllowedOrigins))
	r.Use(middleware.Timeout(opts.RequestTimeout))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(metrics.Middleware)

		r.Get("/ping", c.Ping)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(opts.JWTSecret, opts.Users, opts.Log))

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", c.GetProjects)
				r.Post("/", c.NewProject)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", c.GetProject)
					r.Patch("/", c.EditProject)
					r.Delete("/", c.DeleteProject)
					r.Post("/submit_bid", c.SubmitBid)
					r.Post("/accept_bid", c.AcceptBid)
					r.Post("/complete_project", c.CompleteProject)
					r.Post("/cancel_project", c.CancelProject)
					r.Get("/bids", c.ProjectBids)
					r.Get("/milestones", c.ProjectMilestones)
					r.Post("/milestones", c.NewMilestone)
				})
			})

			r.Route("/bids", func(r chi.Router) {
				r.Get("/", c.GetBids)
				r.Get("/{id}", c.GetBid)
				r.Post("/{id}/withdraw_bid", c.WithdrawBid)
			})

			r.Route("/milestones/{id}", func(r chi.Router) {
				r.Get("/", c.GetMilestone)
				r.Patch("/", c.EditMilestone)
				r.Delete("/", c.DeleteMilestone)
				r.Post("/start_milestone", c.StartMilestone)
				r.Post("/complete_milestone", c.CompleteMilestone)
				r.Post("/cancel_milestone", c.CancelMilestone)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", c.GetNotifications)
				r.Post("/mark_all_read", c.MarkAllNotificationsRead)
				r.Post("/{id}/mark_read", c.MarkNotificationRead)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("page not found"))
	})

	return r
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}
	if len(origins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return cors.Handler(opts)
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info("request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote", r.RemoteAddr))
		})
	}
}
