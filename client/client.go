// Package client implements the remote-facing registry client: it
// resolves AgentCards over the registry HTTP surface and performs
// authenticated capability invocation against the resolved endpoints,
// with retry and fallback protection on every network call.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/agrimesh/agentmesh/core"
	"github.com/agrimesh/agentmesh/registry"
	"github.com/agrimesh/agentmesh/resilience"
)

// Config configures a registry client
type Config struct {
	// RegistryURL is the base URL of the registry service
	RegistryURL string

	// HTTPClient performs all HTTP calls; defaults to an
	// otelhttp-instrumented client
	HTTPClient core.HTTPDoer

	// Tokens supplies the default credential used when an invocation
	// carries none of its own
	Tokens core.TokenSource

	// Fallbacks optionally protects registry reads and invocations;
	// nil means unprotected direct calls
	Fallbacks *resilience.FallbackManager

	// Retry optionally retries transient registry read failures
	Retry *resilience.RetryPolicy

	// RequestTimeout bounds calls that specify no timeout of their own
	RequestTimeout time.Duration

	// Logger for client events
	Logger core.Logger
}

// Client talks to the agent registry and invokes agents
type Client struct {
	baseURL   string
	http      core.HTTPDoer
	tokens    core.TokenSource
	fallbacks *resilience.FallbackManager
	retry     *resilience.RetryPolicy
	timeout   time.Duration
	logger    core.Logger
}

// New creates a registry client
func New(cfg Config) (*Client, error) {
	if cfg.RegistryURL == "" {
		return nil, fmt.Errorf("%w: registry URL is required", core.ErrInvalidConfiguration)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	return &Client{
		baseURL:   strings.TrimSuffix(cfg.RegistryURL, "/"),
		http:      httpClient,
		tokens:    cfg.Tokens,
		fallbacks: cfg.Fallbacks,
		retry:     cfg.Retry,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// GetAgent resolves one AgentCard by id. An unknown id returns (nil, nil)
// rather than an error.
func (c *Client) GetAgent(ctx context.Context, agentID string) (*core.AgentCard, error) {
	var card *core.AgentCard
	err := c.registryRead(ctx, "registry_get_agent", func(ctx context.Context) error {
		resp, err := c.get(ctx, "/v1/registry/agents/"+url.PathEscape(agentID), nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil
		}
		if err := checkStatus(resp); err != nil {
			return err
		}
		card = &core.AgentCard{}
		return json.NewDecoder(resp.Body).Decode(card)
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

// ListAgents returns agents filtered by status and category; empty
// filters match everything
func (c *Client) ListAgents(ctx context.Context, status, category string) ([]*core.AgentCard, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	if category != "" {
		query.Set("category", category)
	}
	return c.listAgents(ctx, "registry_list_agents", "/v1/registry/agents", query)
}

// DiscoverByCapability returns agents declaring the capability
func (c *Client) DiscoverByCapability(ctx context.Context, capability string) ([]*core.AgentCard, error) {
	query := url.Values{"capability": {capability}}
	return c.listAgents(ctx, "registry_discover_capability", "/v1/registry/discover/capability", query)
}

// DiscoverBySkill returns agents declaring the skill
func (c *Client) DiscoverBySkill(ctx context.Context, skill string) ([]*core.AgentCard, error) {
	query := url.Values{"skill": {skill}}
	return c.listAgents(ctx, "registry_discover_skill", "/v1/registry/discover/skill", query)
}

// DiscoverByTags returns the union of agents across the requested tags
func (c *Client) DiscoverByTags(ctx context.Context, tags []string) ([]*core.AgentCard, error) {
	body, err := json.Marshal(map[string][]string{"tags": tags})
	if err != nil {
		return nil, err
	}

	var agents []*core.AgentCard
	err = c.registryRead(ctx, "registry_discover_tags", func(ctx context.Context) error {
		resp, err := c.post(ctx, "/v1/registry/discover/tags", body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := checkStatus(resp); err != nil {
			return err
		}
		agents, err = decodeAgents(resp.Body)
		return err
	})
	return agents, err
}

// AgentHealth returns the registry's cached health result for an agent.
// An unknown id returns (nil, nil).
func (c *Client) AgentHealth(ctx context.Context, agentID string) (*core.HealthCheckResult, error) {
	var result *core.HealthCheckResult
	err := c.registryRead(ctx, "registry_agent_health", func(ctx context.Context) error {
		resp, err := c.get(ctx, "/v1/registry/agents/"+url.PathEscape(agentID)+"/health", nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil
		}
		if err := checkStatus(resp); err != nil {
			return err
		}
		result = &core.HealthCheckResult{}
		return json.NewDecoder(resp.Body).Decode(result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Stats returns registry agent and index counts
func (c *Client) Stats(ctx context.Context) (*registry.Stats, error) {
	var stats *registry.Stats
	err := c.registryRead(ctx, "registry_stats", func(ctx context.Context) error {
		resp, err := c.get(ctx, "/v1/registry/stats", nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := checkStatus(resp); err != nil {
			return err
		}
		stats = &registry.Stats{}
		return json.NewDecoder(resp.Body).Decode(stats)
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (c *Client) listAgents(ctx context.Context, op, path string, query url.Values) ([]*core.AgentCard, error) {
	var agents []*core.AgentCard
	err := c.registryRead(ctx, op, func(ctx context.Context) error {
		resp, err := c.get(ctx, path, query)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := checkStatus(resp); err != nil {
			return err
		}
		agents, err = decodeAgents(resp.Body)
		return err
	})
	return agents, err
}

// registryRead runs a registry call through the configured retry policy
// and fallback manager, when present
func (c *Client) registryRead(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	call := fn
	if c.retry != nil {
		call = c.retry.Wrap(call)
	}
	if c.fallbacks != nil {
		_, err := c.fallbacks.Execute(ctx, name, func(ctx context.Context) (interface{}, error) {
			return nil, call(ctx)
		})
		return err
	}
	return call(ctx)
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrConnectionFailed, err)
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrConnectionFailed, err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%w: registry returned status %d: %s", core.ErrRequestFailed, resp.StatusCode, strings.TrimSpace(string(body)))
}

func decodeAgents(r io.Reader) ([]*core.AgentCard, error) {
	var payload struct {
		Agents []*core.AgentCard `json:"agents"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, err
	}
	return payload.Agents, nil
}
