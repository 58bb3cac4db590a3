package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"enterprise-chatbot/internal/handlers"
	"enterprise-chatbot/internal/metrics"
	"enterprise-chatbot/internal/middleware"
)

type Options struct {
	RequestTimeout time.Duration // default: 15s
	MaxBodyBytes   int64         // default: 64 KB
}

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, api *handlers.APIHandler, opts Options) {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 64 * 1024
	}

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(middleware.MaxBodySize(opts.MaxBodyBytes))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/query", api.Query)
		r.Get("/history", api.History)
		r.Get("/scaling", api.Scaling)
		r.Get("/stats", api.Stats)

		r.Get("/loadtest", api.LoadTestStatus)
		r.Post("/loadtest", api.StartLoadTest)
		r.Delete("/loadtest", api.StopLoadTest)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}
