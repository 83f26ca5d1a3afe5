// Package agentmesh provides a lightweight meta-package that re-exports
// from submodules. Users should import specific packages based on their
// needs:
//   - github.com/agrimesh/agentmesh/core - Cards, config, errors, logging
//   - github.com/agrimesh/agentmesh/registry - In-memory registry and HTTP surface
//   - github.com/agrimesh/agentmesh/client - Registry client and capability invocation
//   - github.com/agrimesh/agentmesh/resilience - Circuit breakers, retries, fallbacks
package agentmesh

import (
	"github.com/agrimesh/agentmesh/core"
)

// Re-export core types so simple callers need a single import
type (
	// Card types
	AgentCard         = core.AgentCard
	Capability        = core.Capability
	CapabilityExample = core.CapabilityExample
	Skill             = core.Skill
	Endpoint          = core.Endpoint
	CardMetadata      = core.CardMetadata
	HealthCheckResult = core.HealthCheckResult

	// Configuration types
	Config          = core.Config
	Option          = core.Option
	HTTPConfig      = core.HTTPConfig
	CORSConfig      = core.CORSConfig
	RegistryConfig  = core.RegistryConfig
	ClientConfig    = core.ClientConfig
	TelemetryConfig = core.TelemetryConfig
	LoggingConfig   = core.LoggingConfig

	// Interfaces
	Logger      = core.Logger
	Clock       = core.Clock
	TokenSource = core.TokenSource
)

// Re-export constants
const (
	AgentStatusActive      = core.AgentStatusActive
	AgentStatusInactive    = core.AgentStatusInactive
	AgentStatusDeprecated  = core.AgentStatusDeprecated
	AgentStatusMaintenance = core.AgentStatusMaintenance

	HealthHealthy   = core.HealthHealthy
	HealthUnhealthy = core.HealthUnhealthy
	HealthDegraded  = core.HealthDegraded
	HealthUnknown   = core.HealthUnknown

	SecurityNone   = core.SecurityNone
	SecurityAPIKey = core.SecurityAPIKey
	SecurityBearer = core.SecurityBearer
	SecurityOAuth2 = core.SecurityOAuth2
)

// Re-export constructors
var (
	NewConfig      = core.NewConfig
	LoadConfigFile = core.LoadConfigFile
)
