package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/agrimesh/agentmesh/core"
)

// Server exposes the registry over HTTP:
//
//	POST   /v1/registry/agents
//	GET    /v1/registry/agents?status=&category=
//	GET    /v1/registry/agents/{agent_id}
//	DELETE /v1/registry/agents/{agent_id}
//	GET    /v1/registry/agents/{agent_id}/health
//	GET    /v1/registry/discover/capability?capability=
//	GET    /v1/registry/discover/skill?skill=
//	POST   /v1/registry/discover/tags
//	GET    /v1/registry/stats
type Server struct {
	registry *Registry
	config   *core.Config
	logger   core.Logger
	server   *http.Server
}

// NewServer builds the HTTP server around a registry
func NewServer(registry *Registry, config *core.Config, logger core.Logger) *Server {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	s := &Server{
		registry: registry,
		config:   config,
		logger:   logger,
	}
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Address, config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  config.HTTP.ReadTimeout,
		WriteTimeout: config.HTTP.WriteTimeout,
		IdleTimeout:  config.HTTP.IdleTimeout,
	}
	return s
}

// Handler returns the routed handler with CORS and panic recovery
// middleware applied
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	v1 := router.PathPrefix("/v1/registry").Subrouter()
	v1.HandleFunc("/agents", s.handleRegister).Methods(http.MethodPost)
	v1.HandleFunc("/agents", s.handleList).Methods(http.MethodGet)
	v1.HandleFunc("/agents/{agent_id}", s.handleGet).Methods(http.MethodGet)
	v1.HandleFunc("/agents/{agent_id}", s.handleDeregister).Methods(http.MethodDelete)
	v1.HandleFunc("/agents/{agent_id}/health", s.handleHealth).Methods(http.MethodGet)
	v1.HandleFunc("/discover/capability", s.handleDiscoverCapability).Methods(http.MethodGet)
	v1.HandleFunc("/discover/skill", s.handleDiscoverSkill).Methods(http.MethodGet)
	v1.HandleFunc("/discover/tags", s.handleDiscoverTags).Methods(http.MethodPost)
	v1.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	var handler http.Handler = router
	handler = handlers.RecoveryHandler()(handler)
	if s.config.HTTP.CORS.Enabled {
		handler = handlers.CORS(
			handlers.AllowedOrigins(s.config.HTTP.CORS.AllowedOrigins),
			handlers.AllowedMethods(s.config.HTTP.CORS.AllowedMethods),
			handlers.AllowedHeaders(s.config.HTTP.CORS.AllowedHeaders),
		)(handler)
	}
	return handler
}

// ListenAndServe starts the HTTP server and blocks until it stops
func (s *Server) ListenAndServe() error {
	s.logger.Info("Registry HTTP server listening", map[string]interface{}{
		"operation": "server_listening",
		"addr":      s.server.Addr,
	})
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type agentsResponse struct {
	Agents []*core.AgentCard `json:"agents"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var card core.AgentCard
	if err := json.NewDecoder(r.Body).Decode(&card); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid card payload: %v", err))
		return
	}
	if err := s.registry.Register(&card); err != nil {
		status := http.StatusInternalServerError
		if core.IsValidationError(err) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	stored, _ := s.registry.Get(card.AgentID)
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	category := r.URL.Query().Get("category")
	agents := s.registry.List(status, category)
	writeJSON(w, http.StatusOK, agentsResponse{Agents: nonNil(agents)})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agent_id"]
	card, ok := s.registry.Get(agentID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("agent %q not found", agentID))
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleDeregister(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agent_id"]
	if !s.registry.Deregister(agentID) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("agent %q not found", agentID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agent_id"]
	if _, ok := s.registry.Get(agentID); !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("agent %q not found", agentID))
		return
	}
	result, ok := s.registry.Health(agentID)
	if !ok {
		// Registered but never probed yet
		result = &core.HealthCheckResult{
			AgentID: agentID,
			Status:  core.HealthUnknown,
		}
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDiscoverCapability(w http.ResponseWriter, r *http.Request) {
	capability := r.URL.Query().Get("capability")
	if capability == "" {
		writeError(w, http.StatusBadRequest, "capability query parameter is required")
		return
	}
	agents := s.registry.DiscoverByCapability(capability)
	writeJSON(w, http.StatusOK, agentsResponse{Agents: nonNil(agents)})
}

func (s *Server) handleDiscoverSkill(w http.ResponseWriter, r *http.Request) {
	skill := r.URL.Query().Get("skill")
	if skill == "" {
		writeError(w, http.StatusBadRequest, "skill query parameter is required")
		return
	}
	agents := s.registry.DiscoverBySkill(skill)
	writeJSON(w, http.StatusOK, agentsResponse{Agents: nonNil(agents)})
}

func (s *Server) handleDiscoverTags(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid tags payload: %v", err))
		return
	}
	agents := s.registry.DiscoverByTags(body.Tags)
	writeJSON(w, http.StatusOK, agentsResponse{Agents: nonNil(agents)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Stats())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func nonNil(agents []*core.AgentCard) []*core.AgentCard {
	if agents == nil {
		return []*core.AgentCard{}
	}
	return agents
}
