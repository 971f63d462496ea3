package audit

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HTTPRecorder records mutations after they have been handled.
type HTTPRecorder struct {
	Service *Service
	OnError func(error)
}

// RouteConfig customises how the audit entry is produced for a route.
type RouteConfig struct {
	Action        string
	Entity        string
	EntityIDParam string
}

// Middleware returns a chi-compatible middleware that records audit entries.
// Safe methods pass through untouched.
func (r HTTPRecorder) Middleware(cfg RouteConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if r.Service == nil || !r.Service.Enabled || req.Method == http.MethodGet || req.Method == http.MethodHead {
				next.ServeHTTP(w, req)
				return
			}

			recorder := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(recorder, req)

			entityID := ""
			if cfg.EntityIDParam != "" {
				entityID = chi.URLParam(req, cfg.EntityIDParam)
			}

			actor := ActorFromContext(req.Context())
			if err := r.Service.Record(req.Context(), actor, cfg.Action, cfg.Entity, entityID, req, recorder.Status()); err != nil && r.OnError != nil {
				r.OnError(err)
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Status() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
