// Package api wires the HTTP surface of the telemetry core: the node
// submit socket, the dashboard feed socket, a read-only node listing, and
// the operational endpoints.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	mw "github.com/CYBAI/substrate-telemetry/internal/api/middleware"
	"github.com/CYBAI/substrate-telemetry/internal/registry"
	"github.com/CYBAI/substrate-telemetry/internal/telemetry"
)

type Server struct {
	router   chi.Router
	logger   zerolog.Logger
	registry *registry.Registry
}

// NewServer builds the router. submit terminates node connections and feed
// terminates dashboard connections; both are WebSocket handlers.
func NewServer(logger zerolog.Logger, reg *registry.Registry, submit, feed http.Handler) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		logger:   logger,
		registry: reg,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)

	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleHealthz)

	s.router.Handle("/submit", submit)
	s.router.Handle("/feed", feed)
	s.router.Get("/nodes", s.handleNodes)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// nodeView is the REST projection of a node: named details plus the same
// positional tuples the feed carries.
type nodeView struct {
	ID       uint64                `json:"id"`
	Details  telemetry.NodeDetails `json:"details"`
	Stats    telemetry.Tuple       `json:"stats"`
	IO       telemetry.Tuple       `json:"io"`
	Hardware telemetry.Tuple       `json:"hardware"`
	Location telemetry.Tuple       `json:"location,omitempty"`
	Block    telemetry.Tuple       `json:"block"`
}

func (s *Server) handleNodes(w http.ResponseWriter, _ *http.Request) {
	snaps := s.registry.Encoded()
	views := make([]nodeView, 0, len(snaps))
	for _, snap := range snaps {
		views = append(views, nodeView{
			ID:       snap.ID,
			Details:  snap.Details,
			Stats:    snap.Stats,
			IO:       snap.IO,
			Hardware: snap.Hardware,
			Location: snap.Location,
			Block:    snap.Block,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(views); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode node listing")
	}
}
