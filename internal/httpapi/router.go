// Package httpapi exposes the indexer's operational surface over HTTP:
// table statistics, a readiness probe, and Prometheus metrics, routed
// through go-chi/chi.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pragmaxim-com/redbit-sub001/internal/storage"
	"github.com/pragmaxim-com/redbit-sub001/pkg/log"
	"github.com/pragmaxim-com/redbit-sub001/pkg/metrics"
)

// Server is the indexer's HTTP surface: a thin read-only view over the
// storage layer's own bbolt bucket statistics, plus health and metrics.
type Server struct {
	storage *storage.Storage
	ready   func() bool
	router  chi.Router
}

// New builds a Server backed by storage. ready is polled by /healthz;
// pass nil when there is no write context to gate on (readiness always
// reports true). Routes are registered immediately so Server itself
// satisfies http.Handler.
func New(store *storage.Storage, ready func() bool) *Server {
	if ready == nil {
		ready = func() bool { return true }
	}
	s := &Server{storage: store, ready: ready, router: chi.NewRouter()}

	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(requestLogger)

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/stats/tables", s.handleStatsTables)
	s.router.Handle("/metrics", metrics.Handler())

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe runs the server at addr until the process is stopped or
// the listener errors.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	logger := log.WithComponent("httpapi")
	logger.Info().Str("addr", addr).Msg("http server listening")
	return srv.ListenAndServe()
}

type healthzResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !s.ready() {
		writeJSON(w, http.StatusServiceUnavailable, healthzResponse{Status: "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, healthzResponse{Status: "ok"})
}

func (s *Server) handleStatsTables(w http.ResponseWriter, r *http.Request) {
	var all []storage.TableInfo
	for name, db := range s.storage.DBs {
		info, err := storage.CollectTableInfo(name, db)
		if err != nil {
			http.Error(w, err.Error(), storage.HTTPStatus(err))
			return
		}
		all = append(all, info...)
	}
	writeJSON(w, http.StatusOK, all)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func requestLogger(next http.Handler) http.Handler {
	logger := log.WithComponent("httpapi")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
