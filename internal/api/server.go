// Package api serves recorded simulation runs over HTTP. Every endpoint is a
// read-only GET against the run database.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/talgya/compute-market/internal/persistence"
)

// Server serves the run archive.
type Server struct {
	DB   *persistence.DB
	Port int

	// DealsPerHour caps full deal listings per client. 0 disables the limit.
	DealsPerHour int
}

// Handler returns the API routes.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/runs", s.handleRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.handleRun)
	mux.HandleFunc("GET /api/v1/runs/{id}/rounds", s.handleRounds)
	mux.HandleFunc("GET /api/v1/runs/{id}/agents/{agent}/reputation", s.handleReputation)

	deals := s.handleDeals
	if s.DealsPerHour > 0 {
		deals = RateLimitMiddleware(NewRateLimiter(ctx, s.DealsPerHour, time.Hour), deals)
	}
	mux.HandleFunc("GET /api/v1/runs/{id}/deals", deals)

	return corsMiddleware(mux)
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", srv.Addr, "deals_per_hour", s.DealsPerHour)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		slog.Info("HTTP API stopping")
		return srv.Shutdown(shutdownCtx)
	}
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of extra allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, _ *http.Request) {
	runs, err := s.DB.Runs()
	if err != nil {
		serverError(w, "list runs", err)
		return
	}
	writeJSON(w, map[string]any{"runs": runs})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	rounds, err := s.DB.Rounds(run.ID)
	if err != nil {
		serverError(w, "load rounds", err)
		return
	}

	var negotiations, completed, defaulted, violations int
	for _, rd := range rounds {
		negotiations += rd.Negotiations
		completed += rd.Completed
		defaulted += rd.Defaulted
		violations += rd.Violations
	}
	writeJSON(w, map[string]any{
		"run":          run,
		"rounds":       len(rounds),
		"negotiations": negotiations,
		"completed":    completed,
		"defaulted":    defaulted,
		"violations":   violations,
	})
}

func (s *Server) handleRounds(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	rounds, err := s.DB.Rounds(run.ID)
	if err != nil {
		serverError(w, "load rounds", err)
		return
	}
	writeJSON(w, map[string]any{"run": run.ID, "rounds": rounds})
}

func (s *Server) handleDeals(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	deals, err := s.DB.Deals(run.ID)
	if err != nil {
		serverError(w, "load deals", err)
		return
	}
	if status := r.URL.Query().Get("status"); status != "" {
		kept := deals[:0]
		for _, d := range deals {
			if d.Status == status {
				kept = append(kept, d)
			}
		}
		deals = kept
	}
	writeJSON(w, map[string]any{"run": run.ID, "deals": deals})
}

func (s *Server) handleReputation(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	agent := r.PathValue("agent")
	scores, err := s.DB.ReputationSeries(run.ID, agent)
	if err != nil {
		serverError(w, "load reputation", err)
		return
	}
	if len(scores) == 0 {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"run": run.ID, "agent": agent, "reputation": scores})
}

func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (persistence.RunRow, bool) {
	run, err := s.DB.Run(r.PathValue("id"))
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "run not found", http.StatusNotFound)
		return run, false
	}
	if err != nil {
		serverError(w, "load run", err)
		return run, false
	}
	return run, true
}

func serverError(w http.ResponseWriter, what string, err error) {
	slog.Error("api query failed", "query", what, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
