package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/snowseason/internal/log"
	"github.com/lox/snowseason/internal/pipeline"
	"github.com/lox/snowseason/internal/render"
	"github.com/lox/snowseason/internal/store"
)

// Server exposes the season table, the enriched daily series and rendered
// strips over HTTP. It only reads from the store.
type Server struct {
	store    *store.Store
	pipeline *pipeline.Pipeline
	addr     string
	strips   *render.Cache
}

func NewServer(st *store.Store, p *pipeline.Pipeline, addr string) *Server {
	return &Server{
		store:    st,
		pipeline: p,
		addr:     addr,
		strips:   render.NewCache(time.Hour, nil),
	}
}

// Invalidate drops cached strips after the season table has been rebuilt.
func (s *Server) Invalidate() {
	s.strips.Purge()
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/seasons", s.handleAPISeasons)
	mux.HandleFunc("GET /api/seasons/{label}", s.handleAPISeason)
	mux.HandleFunc("GET /api/daily", s.handleAPIDaily)
	mux.HandleFunc("GET /api/runs", s.handleAPIRuns)
	mux.HandleFunc("GET /seasons/{file}", s.handleSeasonStrip)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Infof("api: listening on %s", s.addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type HealthStatus struct {
	Status       string     `json:"status"`
	Observations *DateRange `json:"observations,omitempty"`
	Seasons      int        `json:"seasons"`
	LastRun      *RunStatus `json:"last_run,omitempty"`
	Errors       []string   `json:"errors,omitempty"`
}

type DateRange struct {
	First string `json:"first"`
	Last  string `json:"last"`
}

type RunStatus struct {
	ID           string     `json:"id"`
	Command      string     `json:"command"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Observations *int64     `json:"observations,omitempty"`
	Seasons      *int64     `json:"seasons,omitempty"`
	Success      bool       `json:"success"`
	Error        string     `json:"error,omitempty"`
}

func runStatus(r store.Run) RunStatus {
	rs := RunStatus{
		ID:        r.ID,
		Command:   r.Command,
		StartedAt: r.StartedAt,
		Success:   r.Success,
		Error:     r.ErrorMessage.String,
	}
	if r.FinishedAt.Valid {
		rs.FinishedAt = &r.FinishedAt.Time
	}
	if r.Observations.Valid {
		rs.Observations = &r.Observations.Int64
	}
	if r.Seasons.Valid {
		rs.Seasons = &r.Seasons.Int64
	}
	return rs
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{Status: "ok"}

	first, last, ok, err := s.store.ObservationRange()
	if err != nil {
		health.Errors = append(health.Errors, "observations: "+err.Error())
	} else if ok {
		health.Observations = &DateRange{First: dateString(first), Last: dateString(last)}
	}

	if health.Seasons, err = s.store.SeasonCount(); err != nil {
		health.Errors = append(health.Errors, "seasons: "+err.Error())
	}

	runs, err := s.store.RecentRuns(1)
	if err != nil {
		health.Errors = append(health.Errors, "runs: "+err.Error())
	} else if len(runs) > 0 {
		rs := runStatus(runs[0])
		health.LastRun = &rs
	}

	status := http.StatusOK
	if len(health.Errors) > 0 {
		health.Status = "error"
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, health)
}
