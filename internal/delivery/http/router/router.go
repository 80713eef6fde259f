package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/user/bookscan-service/internal/delivery/http/handler"
	"github.com/user/bookscan-service/internal/delivery/http/middleware"
	"github.com/user/bookscan-service/pkg/metrics"
)

func New(h *handler.Handler, m *metrics.Metrics, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics(m))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealthCheck)
		r.Post("/parse", h.HandleSubmitParse)
		r.Get("/search", h.HandleSearch)
		r.Get("/similar", h.HandleSimilar)
		r.Get("/pending", h.HandleGetPending)
		r.Get("/facets", h.HandleFacets)
		r.Get("/parse-logs", h.HandleParseLogs)
		r.Get("/stats", h.HandleStats)
		r.Post("/credential/refresh", h.HandleRefreshCredential)
		r.Post("/presence", h.HandlePresence)
	})

	return r
}
