package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cuemby/ember/pkg/metrics"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// instrument records request metrics and logs every request
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		label := r.Method + " " + route
		elapsed := time.Since(start)

		metrics.APIRequestsTotal.WithLabelValues(label, strconv.Itoa(status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(label).Observe(elapsed.Seconds())

		event := s.logger.Debug()
		if status >= http.StatusInternalServerError {
			event = s.logger.Warn()
		}
		event.
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", elapsed).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

// requireCluster answers 404 when the server runs without Raft
func (s *Server) requireCluster(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cluster == nil {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "clustering is not enabled", Kind: "not_found"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
