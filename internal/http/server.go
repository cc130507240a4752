package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/cartridge/voxel-agent/internal/actions"
	"github.com/cartridge/voxel-agent/internal/agent"
	"github.com/cartridge/voxel-agent/internal/middleware"
	"github.com/cartridge/voxel-agent/internal/persistence"
	"github.com/cartridge/voxel-agent/internal/qtable"
	"github.com/cartridge/voxel-agent/internal/state"
)

// StatusSource reports the agent's progress.
type StatusSource interface {
	Status() agent.Status
}

// Snapshotter writes the table on demand.
type Snapshotter interface {
	Flush(ctx context.Context) error
	LastSaved() (time.Time, error)
}

// StateValues is the response for a single state.
type StateValues struct {
	State      state.Key                  `json:"state"`
	Values     map[actions.Action]float64 `json:"values"`
	BestAction actions.Action             `json:"best_action"`
}

// Server exposes read-only agent status and on-demand snapshots.
type Server struct {
	agent     StatusSource
	store     qtable.Store
	snapshots Snapshotter
	logger    zerolog.Logger
}

// NewServer constructs a Server instance.
func NewServer(source StatusSource, store qtable.Store, snapshots Snapshotter, logger zerolog.Logger) *Server {
	return &Server{
		agent:     source,
		store:     store,
		snapshots: snapshots,
		logger:    logger.With().Str("component", "http").Logger(),
	}
}

// Routes builds the HTTP router for the status API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CorrelationID)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/agent", s.handleAgent)
		r.Get("/qtable", s.handleTable)
		r.Get("/qtable/{state}", s.handleState)
		r.Post("/snapshots", s.handleSnapshot)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	current := s.agent.Status().State
	status := http.StatusOK
	if current == agent.StateStopped {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]string{"state": string(current)})
}

func (s *Server) handleAgent(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.agent.Status())
}

func (s *Server) handleTable(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.Snapshot())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	raw, err := url.PathUnescape(chi.URLParam(r, "state"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid state key")
		return
	}
	key := state.Key(raw)

	best, err := s.store.BestAction(key)
	if errors.Is(err, qtable.ErrUnknownState) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, StateValues{State: key, Values: s.store.Snapshot()[key], BestAction: best})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	err := s.snapshots.Flush(r.Context())
	if errors.Is(err, persistence.ErrNotRestored) {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	saved, _ := s.snapshots.LastSaved()
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"states":   s.store.Len(),
		"saved_at": saved.UTC(),
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}
