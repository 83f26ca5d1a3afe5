package agentmesh

// Version information for the AgentMesh platform
const (
	// Version is the current release version
	Version = "development"

	// APIVersion is the registry HTTP API version
	APIVersion = "v1"

	// BuildDate is set during build time
	BuildDate = "development"

	// GitCommit is set during build time
	GitCommit = "unknown"
)
