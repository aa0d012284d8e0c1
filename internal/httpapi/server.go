// Package httpapi exposes the Fever protocol endpoint and the admin API.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/feverd/feverd/internal/fever"
	"github.com/feverd/feverd/internal/logging"
)

// Server is the HTTP front for the Fever endpoint and the admin surface
type Server struct {
	fever    *fever.Handler
	adminAPI *AdminAPI
	logger   *logging.Logger
	server   *http.Server
}

// New creates a server. adminAPI may be nil to run the Fever endpoint alone.
func New(feverHandler *fever.Handler, adminAPI *AdminAPI, logger *logging.Logger) *Server {
	return &Server{
		fever:    feverHandler,
		adminAPI: adminAPI,
		logger:   logger,
	}
}

// Start binds the routes and serves until Shutdown
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	s.logger.Info("HTTP API server starting", logging.WithField("addr", addr))
	return s.server.ListenAndServe()
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	// reader clients append a trailing slash inconsistently
	mux.HandleFunc("/fever", s.corsMiddleware(s.handleFever))
	mux.HandleFunc("/fever/", s.corsMiddleware(s.handleFever))

	if s.adminAPI != nil {
		s.adminAPI.RegisterRoutes(mux, s.corsMiddleware)
	}

	mux.HandleFunc("/health", s.handleHealth)
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// handleFever runs one Fever protocol call. Auth failure and every other
// protocol-level condition still answer 200; only a store failure is a
// transport error.
func (s *Server) handleFever(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	params := mergeParams(r)

	env, err := s.fever.Handle(r.Context(), params)
	if err != nil {
		s.logger.Error("fever request failed", logging.WithField("error", err.Error()))
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	s.writeJSON(w, http.StatusOK, env)
}

// mergeParams flattens query-string and body parameters into one set.
// A key present in both takes the body's value.
func mergeParams(r *http.Request) fever.Params {
	params := make(fever.Params)

	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		} else {
			params[key] = ""
		}
	}

	if err := r.ParseForm(); err == nil {
		for key, values := range r.PostForm {
			if len(values) > 0 {
				params[key] = values[0]
			} else {
				params[key] = ""
			}
		}
	}

	return params
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
