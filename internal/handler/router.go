package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pesio-ai/be-doc-validations/internal/platform/logger"
	"github.com/pesio-ai/be-doc-validations/internal/platform/middleware"
)

// RouterConfig holds the HTTP settings the router needs.
type RouterConfig struct {
	ServiceName    string
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter mounts the validation API and the health check behind the
// standard middleware chain.
func NewRouter(h *HTTPHandler, log *logger.Logger, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(&log.Logger))
	r.Use(middleware.Recovery(&log.Logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": cfg.ServiceName})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/documents/{documentID}", func(r chi.Router) {
			r.Post("/validation-flow", h.CreateFlow)
			r.Post("/approve", h.Approve)
			r.Post("/reject", h.Reject)
			r.Get("/validation-status", h.GetStatus)
			r.Get("/validation-history", h.GetHistory)
		})
		r.Route("/approvals", func(r chi.Router) {
			r.Get("/pending", h.GetPendingApprovals)
			r.Get("/stats", h.GetApprovalStats)
		})
	})

	return r
}
