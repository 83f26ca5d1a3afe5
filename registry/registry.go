// Package registry provides the in-memory agent directory the platform's
// services publish their capability, skill and tag metadata to, plus the
// background health loop and HTTP surface other services discover
// through.
package registry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agrimesh/agentmesh/core"
)

// Stats summarizes registry contents for the /stats endpoint
type Stats struct {
	TotalAgents       int            `json:"total_agents"`
	ActiveAgents      int            `json:"active_agents"`
	CapabilitiesCount int            `json:"capabilities_count"`
	SkillsCount       int            `json:"skills_count"`
	TagsCount         int            `json:"tags_count"`
	AgentsByStatus    map[string]int `json:"agents_by_status"`
}

// Registry is an in-memory directory of AgentCards with inverted indexes
// for capability, skill and tag discovery. Cards and indexes are mutated
// only by Register/Deregister and read by discovery and the health loop;
// a reader-writer lock keeps probes and registration from racing.
//
// The indexes are maintained as an invariant: they always equal the union
// of the currently registered cards' declared values. Deregistration
// leaves no stale entries behind.
type Registry struct {
	mu           sync.RWMutex
	cards        map[string]*core.AgentCard
	byCapability map[string]map[string]struct{}
	bySkill      map[string]map[string]struct{}
	byTag        map[string]map[string]struct{}

	health    map[string]*core.HealthCheckResult
	healthSeq map[string]uint64 // last applied probe sequence per agent
	probeSeq  atomic.Uint64     // issue-order sequence for probes

	logger core.Logger
	clock  core.Clock

	// health loop state, see health.go
	checker *healthChecker
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithLogger sets the registry logger
func WithLogger(logger core.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// WithRegistryClock injects a time source for deterministic tests
func WithRegistryClock(clock core.Clock) RegistryOption {
	return func(r *Registry) { r.clock = clock }
}

// New creates an empty registry
func New(opts ...RegistryOption) *Registry {
	r := &Registry{
		cards:        make(map[string]*core.AgentCard),
		byCapability: make(map[string]map[string]struct{}),
		bySkill:      make(map[string]map[string]struct{}),
		byTag:        make(map[string]map[string]struct{}),
		health:       make(map[string]*core.HealthCheckResult),
		healthSeq:    make(map[string]uint64),
		logger:       &core.NoOpLogger{},
		clock:        core.RealClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register validates and stores a card by agent_id, rebuilding that id's
// index entries with remove-then-insert so a changed capability, skill or
// tag set never leaves stale entries. Re-registering an id replaces its
// card.
//
// A card registered without an agent_id gets a generated one; it is
// written back to the caller's card so the assigned id is always known
// to the registrant.
func (r *Registry) Register(card *core.AgentCard) error {
	if card == nil {
		return fmt.Errorf("%w: nil card", core.ErrInvalidAgentCard)
	}

	stored := *card
	stored.Normalize()
	if err := stored.Validate(); err != nil {
		return fmt.Errorf("registry.Register: %w", err)
	}
	stored.Metadata.UpdatedAt = r.clock.Now().UTC()
	card.AgentID = stored.AgentID

	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeFromIndexes(stored.AgentID)
	r.cards[stored.AgentID] = &stored
	r.insertIntoIndexes(&stored)

	r.logger.Info("Agent registered", map[string]interface{}{
		"operation":    "agent_registered",
		"agent_id":     stored.AgentID,
		"version":      stored.Version,
		"capabilities": len(stored.Capabilities),
		"skills":       len(stored.Skills),
		"status":       string(stored.Status),
	})
	return nil
}

// Deregister removes the card, purges every index entry referencing it
// and drops its cached health. Returns false for unknown ids.
func (r *Registry) Deregister(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cards[agentID]; !ok {
		return false
	}

	r.removeFromIndexes(agentID)
	delete(r.cards, agentID)
	delete(r.health, agentID)
	delete(r.healthSeq, agentID)

	r.logger.Info("Agent deregistered", map[string]interface{}{
		"operation": "agent_deregistered",
		"agent_id":  agentID,
	})
	return true
}

// Get returns a copy of the card for the given id
func (r *Registry) Get(agentID string) (*core.AgentCard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	card, ok := r.cards[agentID]
	if !ok {
		return nil, false
	}
	cardCopy := *card
	return &cardCopy, true
}

// List returns cards filtered by status and category; empty filters match
// everything
func (r *Registry) List(status, category string) []*core.AgentCard {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*core.AgentCard
	for _, card := range r.cards {
		if status != "" && string(card.Status) != status {
			continue
		}
		if category != "" && card.Metadata.Category != category {
			continue
		}
		cardCopy := *card
		results = append(results, &cardCopy)
	}
	return results
}

// DiscoverByCapability returns every agent declaring the capability
func (r *Registry) DiscoverByCapability(capability string) []*core.AgentCard {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.byCapability[capability])
}

// DiscoverBySkill returns every agent declaring the skill
func (r *Registry) DiscoverBySkill(skillID string) []*core.AgentCard {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.bySkill[skillID])
}

// DiscoverByTags returns the union (OR) of agents across the requested
// tags
func (r *Registry) DiscoverByTags(tags []string) []*core.AgentCard {
	r.mu.RLock()
	defer r.mu.RUnlock()

	union := make(map[string]struct{})
	for _, tag := range tags {
		for id := range r.byTag[tag] {
			union[id] = struct{}{}
		}
	}
	return r.collect(union)
}

// Health returns the cached probe result for an agent, if any
func (r *Registry) Health(agentID string) (*core.HealthCheckResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result, ok := r.health[agentID]
	if !ok {
		return nil, false
	}
	resultCopy := *result
	return &resultCopy, true
}

// Stats returns agent and index counts
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		TotalAgents:       len(r.cards),
		CapabilitiesCount: len(r.byCapability),
		SkillsCount:       len(r.bySkill),
		TagsCount:         len(r.byTag),
		AgentsByStatus:    make(map[string]int),
	}
	for _, card := range r.cards {
		stats.AgentsByStatus[string(card.Status)]++
		if card.Status == core.AgentStatusActive {
			stats.ActiveAgents++
		}
	}
	return stats
}

// collect resolves a set of ids into card copies; callers hold r.mu
func (r *Registry) collect(ids map[string]struct{}) []*core.AgentCard {
	if len(ids) == 0 {
		return nil
	}
	results := make([]*core.AgentCard, 0, len(ids))
	for id := range ids {
		if card, ok := r.cards[id]; ok {
			cardCopy := *card
			results = append(results, &cardCopy)
		}
	}
	return results
}

// insertIntoIndexes adds one card's declared values; callers hold r.mu
func (r *Registry) insertIntoIndexes(card *core.AgentCard) {
	for _, capability := range card.Capabilities {
		addToIndex(r.byCapability, capability.Name, card.AgentID)
	}
	for _, skill := range card.Skills {
		addToIndex(r.bySkill, skill.SkillID, card.AgentID)
	}
	for _, tag := range card.Metadata.Tags {
		addToIndex(r.byTag, tag, card.AgentID)
	}
}

// removeFromIndexes purges every index entry for an id; callers hold r.mu
func (r *Registry) removeFromIndexes(agentID string) {
	removeFromIndex(r.byCapability, agentID)
	removeFromIndex(r.bySkill, agentID)
	removeFromIndex(r.byTag, agentID)
}

func addToIndex(index map[string]map[string]struct{}, key, agentID string) {
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[agentID] = struct{}{}
}

func removeFromIndex(index map[string]map[string]struct{}, agentID string) {
	for key, set := range index {
		delete(set, agentID)
		if len(set) == 0 {
			delete(index, key)
		}
	}
}

// storeHealth applies a probe result if it is not older than one already
// applied for the same agent. Results for deregistered agents are
// dropped.
func (r *Registry) storeHealth(seq uint64, result *core.HealthCheckResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cards[result.AgentID]; !ok {
		return
	}
	if seq < r.healthSeq[result.AgentID] {
		return
	}
	r.healthSeq[result.AgentID] = seq
	r.health[result.AgentID] = result
}

// probeTargets snapshots the agents eligible for health probing: active
// status and a declared health endpoint. Agents without a health endpoint
// are never probed.
func (r *Registry) probeTargets() []probeTarget {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var targets []probeTarget
	for _, card := range r.cards {
		if card.Status != core.AgentStatusActive || card.HealthEndpoint == "" {
			continue
		}
		targets = append(targets, probeTarget{
			agentID:  card.AgentID,
			endpoint: card.HealthEndpoint,
		})
	}
	return targets
}

type probeTarget struct {
	agentID  string
	endpoint string
}

// now is a convenience for timestamping health results
func (r *Registry) now() time.Time {
	return r.clock.Now()
}
