package core

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AgentStatus describes the lifecycle state of a registered agent
type AgentStatus string

const (
	AgentStatusActive      AgentStatus = "active"
	AgentStatusInactive    AgentStatus = "inactive"
	AgentStatusDeprecated  AgentStatus = "deprecated"
	AgentStatusMaintenance AgentStatus = "maintenance"
)

// SecurityScheme describes how an agent authenticates callers
type SecurityScheme string

const (
	SecurityNone      SecurityScheme = "none"
	SecurityAPIKey    SecurityScheme = "apiKey"
	SecurityBearer    SecurityScheme = "bearer"
	SecurityOAuth2    SecurityScheme = "oauth2"
	SecurityMutualTLS SecurityScheme = "mutualTLS"
)

// HealthState classifies the outcome of a health probe
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnknown   HealthState = "unknown"
)

var agentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Capability is a named, schema-described operation an agent can perform
type Capability struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description,omitempty"`
	InputSchema  map[string]interface{} `json:"input_schema,omitempty"`
	OutputSchema map[string]interface{} `json:"output_schema,omitempty"`
	Examples     []CapabilityExample    `json:"examples,omitempty"`
}

// CapabilityExample provides example usage of a capability
type CapabilityExample struct {
	Description string                 `json:"description,omitempty"`
	Input       map[string]interface{} `json:"input,omitempty"`
	Output      map[string]interface{} `json:"output,omitempty"`
}

// Skill describes a competency an agent advertises for discovery
type Skill struct {
	SkillID     string   `json:"skill_id"`
	Proficiency string   `json:"proficiency,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// Endpoint is the network address a capability invocation is dispatched to
type Endpoint struct {
	URL            string            `json:"url"`
	Method         string            `json:"method,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	TimeoutSeconds float64           `json:"timeout_seconds,omitempty"`
}

// CardMetadata carries organizational metadata used by tag discovery
type CardMetadata struct {
	Tags         []string          `json:"tags,omitempty"`
	Category     string            `json:"category,omitempty"`
	Organization string            `json:"organization,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
	CreatedAt    time.Time         `json:"created_at,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at,omitempty"`
}

// AgentCard is the self-describing manifest an agent publishes to the
// registry: identity, capabilities, skills, endpoint and security
// requirements. AgentID is immutable once registered.
type AgentCard struct {
	AgentID                string         `json:"agent_id"`
	Name                   string         `json:"name"`
	Version                string         `json:"version"`
	Capabilities           []Capability   `json:"capabilities,omitempty"`
	Skills                 []Skill        `json:"skills,omitempty"`
	InputModes             []string       `json:"input_modes,omitempty"`
	OutputModes            []string       `json:"output_modes,omitempty"`
	Endpoint               Endpoint       `json:"endpoint"`
	HealthEndpoint         string         `json:"health_endpoint,omitempty"`
	SecurityScheme         SecurityScheme `json:"security_scheme,omitempty"`
	RequiresAuthentication bool           `json:"requires_authentication,omitempty"`
	Dependencies           []string       `json:"dependencies,omitempty"`
	Metadata               CardMetadata   `json:"metadata,omitempty"`
	Status                 AgentStatus    `json:"status,omitempty"`
}

// HealthCheckResult is the cached outcome of the most recent probe for an
// agent. One result per agent; each probe overwrites the previous one.
type HealthCheckResult struct {
	AgentID        string            `json:"agent_id"`
	Status         HealthState       `json:"status"`
	Timestamp      time.Time         `json:"timestamp"`
	ResponseTimeMS int64             `json:"response_time_ms,omitempty"`
	Error          string            `json:"error,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Validate checks the card against the registration contract
func (c *AgentCard) Validate() error {
	if c.AgentID == "" || !agentIDPattern.MatchString(c.AgentID) {
		return fmt.Errorf("%w: %q", ErrInvalidAgentID, c.AgentID)
	}
	if err := validateSemver(c.Version); err != nil {
		return err
	}
	if c.Endpoint.URL == "" {
		return fmt.Errorf("%w: endpoint url is required", ErrInvalidAgentCard)
	}
	seen := make(map[string]struct{}, len(c.Capabilities))
	for _, cap := range c.Capabilities {
		if cap.Name == "" {
			return fmt.Errorf("%w: capability name is required", ErrInvalidAgentCard)
		}
		if _, dup := seen[cap.Name]; dup {
			return fmt.Errorf("%w: duplicate capability %q", ErrInvalidAgentCard, cap.Name)
		}
		seen[cap.Name] = struct{}{}
	}
	return nil
}

// validateSemver requires exactly three dot-separated parts of unsigned
// digits; signs and prefixes like "v" are rejected
func validateSemver(version string) error {
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("%w: %q", ErrInvalidVersion, version)
		}
		for _, r := range p {
			if r < '0' || r > '9' {
				return fmt.Errorf("%w: %q", ErrInvalidVersion, version)
			}
		}
	}
	return nil
}

// Normalize fills defaults on a card prior to registration
func (c *AgentCard) Normalize() {
	if c.AgentID == "" {
		c.AgentID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = AgentStatusActive
	}
	if c.SecurityScheme == "" {
		c.SecurityScheme = SecurityNone
	}
	if c.Endpoint.Method == "" {
		c.Endpoint.Method = "POST"
	}
	if c.Metadata.CreatedAt.IsZero() {
		c.Metadata.CreatedAt = time.Now().UTC()
	}
}

// HasCapability reports whether the card declares the named capability
func (c *AgentCard) HasCapability(name string) bool {
	for _, cap := range c.Capabilities {
		if cap.Name == name {
			return true
		}
	}
	return false
}

// CapabilityNames returns the declared capability names in card order
func (c *AgentCard) CapabilityNames() []string {
	names := make([]string, 0, len(c.Capabilities))
	for _, cap := range c.Capabilities {
		names = append(names, cap.Name)
	}
	return names
}

// SkillIDs returns the declared skill identifiers in card order
func (c *AgentCard) SkillIDs() []string {
	ids := make([]string, 0, len(c.Skills))
	for _, s := range c.Skills {
		ids = append(ids, s.SkillID)
	}
	return ids
}
