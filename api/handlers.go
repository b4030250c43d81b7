// Package api exposes the bidding engine over HTTP and websockets. Bid
// rejections are normal responses carrying the rule messages; only broken
// requests and infrastructure faults map to error statuses.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/splitlease/nightbid/core"
	"github.com/splitlease/nightbid/engine"
	"github.com/splitlease/nightbid/store"
)

// Server wires the engine to HTTP routes.
type Server struct {
	engine *engine.Engine
	auth   *Authenticator
	hub    *Hub
}

// NewServer creates the API server. The hub may be nil when the websocket
// relay is disabled.
func NewServer(e *engine.Engine, auth *Authenticator, hub *Hub) *Server {
	return &Server{engine: e, auth: auth, hub: hub}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Post("/sessions", s.handleOpenSession)
		r.Get("/sessions/{sessionID}", s.handleGetSession)
		r.Post("/sessions/{sessionID}/bids", s.handlePlaceBid)
		r.Put("/sessions/{sessionID}/autobid", s.handleSetMaxAutoBid)
		r.Post("/sessions/{sessionID}/close", s.handleCloseSession)
	})

	if s.hub != nil {
		r.Get("/ws/sessions/{sessionID}", s.handleWatchSession)
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "nightbid",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

type openSessionRequest struct {
	ListingID               string             `json:"listing_id"`
	TargetNight             string             `json:"target_night"`
	Participants            []core.Participant `json:"participants"`
	DurationHours           int                `json:"duration_hours"`
	MaxRounds               int                `json:"max_rounds"`
	MinimumIncrementPercent float64            `json:"minimum_increment_percent"`
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ListingID == "" || req.TargetNight == "" {
		respondError(w, http.StatusBadRequest, "listing_id and target_night are required")
		return
	}
	if len(req.Participants) != 2 {
		respondError(w, http.StatusBadRequest, "exactly two participants are required")
		return
	}
	if req.DurationHours <= 0 {
		respondError(w, http.StatusBadRequest, "duration_hours must be positive")
		return
	}

	session, err := s.engine.OpenSession(r.Context(), engine.OpenSessionRequest{
		ListingID:               req.ListingID,
		TargetNight:             req.TargetNight,
		Participants:            [2]core.Participant{req.Participants[0], req.Participants[1]},
		Duration:                time.Duration(req.DurationHours) * time.Hour,
		MaxRounds:               req.MaxRounds,
		MinimumIncrementPercent: req.MinimumIncrementPercent,
	})
	if err != nil {
		s.respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.engine.Snapshot(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

type amountRequest struct {
	Amount float64 `json:"amount"`
}

func (s *Server) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.engine.PlaceBid(r.Context(),
		chi.URLParam(r, "sessionID"), userIDFromContext(r.Context()), req.Amount)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}

	// Rejection is a normal outcome: the client renders result.Validation.Errors.
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleSetMaxAutoBid(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.engine.SetMaxAutoBid(r.Context(),
		chi.URLParam(r, "sessionID"), userIDFromContext(r.Context()), req.Amount)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"authorized": true})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.CloseSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondEngineError(w, err)
		return
	}

	if result == nil {
		respondJSON(w, http.StatusOK, map[string]string{"outcome": "cancelled", "reason": "no bids placed"})
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleWatchSession(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeSession(w, r, chi.URLParam(r, "sessionID"))
}

func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, engine.ErrUnknownParticipant):
		respondError(w, http.StatusForbidden, "not a participant in this session")
	case errors.Is(err, engine.ErrInvalidAutoBidRange):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrSessionFinalized):
		respondError(w, http.StatusConflict, "session already finalized")
	case errors.Is(err, store.ErrVersionConflict):
		respondError(w, http.StatusConflict, "session was modified concurrently; retry")
	default:
		log.Printf("ERROR: Request failed: %v", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("ERROR: Failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
