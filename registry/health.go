package registry

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/agrimesh/agentmesh/core"
)

// HealthCheckerConfig controls the background health loop
type HealthCheckerConfig struct {
	// Interval between probe rounds
	Interval time.Duration

	// Timeout bounds each individual probe
	Timeout time.Duration

	// HTTPClient performs probes; defaults to a client with Timeout
	HTTPClient core.HTTPDoer
}

// healthChecker owns the background loop that probes registered agents
// and overwrites their cached health results
type healthChecker struct {
	registry *Registry
	config   HealthCheckerConfig
	client   core.HTTPDoer
	logger   core.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// StartHealthChecks launches the background health loop. Each round
// probes every active agent that declares a health endpoint; probes run
// concurrently and are awaited together before the next round. The
// returned error is non-nil if a loop is already running.
func (r *Registry) StartHealthChecks(ctx context.Context, config HealthCheckerConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.checker != nil {
		return fmt.Errorf("%w: health checks already running", core.ErrInvalidConfiguration)
	}
	if config.Interval <= 0 {
		return fmt.Errorf("%w: health check interval must be positive", core.ErrInvalidConfiguration)
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	checker := &healthChecker{
		registry: r,
		config:   config,
		client:   client,
		logger:   r.logger,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	r.checker = checker

	go checker.run(loopCtx)

	r.logger.Info("Health check loop started", map[string]interface{}{
		"operation":     "health_loop_started",
		"interval":      config.Interval.String(),
		"probe_timeout": config.Timeout.String(),
	})
	return nil
}

// StopHealthChecks cancels the health loop and waits for it to finish.
// No health writes occur after it returns. Safe to call when no loop is
// running.
func (r *Registry) StopHealthChecks() {
	r.mu.Lock()
	checker := r.checker
	r.checker = nil
	r.mu.Unlock()

	if checker == nil {
		return
	}
	checker.cancel()
	<-checker.done

	r.logger.Info("Health check loop stopped", map[string]interface{}{
		"operation": "health_loop_stopped",
	})
}

func (c *healthChecker) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAll(ctx)
		}
	}
}

// checkAll dispatches one probe per eligible agent concurrently and
// waits for the whole round. A failing probe becomes an unhealthy result
// for that agent rather than aborting the round.
func (c *healthChecker) checkAll(ctx context.Context) {
	targets := c.registry.probeTargets()
	if len(targets) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		seq := c.registry.probeSeq.Add(1)
		go func(target probeTarget, seq uint64) {
			defer wg.Done()
			result := c.probe(ctx, target)
			c.registry.storeHealth(seq, result)
		}(target, seq)
	}
	wg.Wait()
}

// probe performs one health request and maps the outcome:
// HTTP 200 healthy, >=500 unhealthy, anything else degraded, transport
// errors unhealthy with the error text attached.
func (c *healthChecker) probe(ctx context.Context, target probeTarget) *core.HealthCheckResult {
	start := c.registry.now()
	result := &core.HealthCheckResult{
		AgentID:   target.agentID,
		Timestamp: start,
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, target.endpoint, nil)
	if err != nil {
		result.Status = core.HealthUnhealthy
		result.Error = err.Error()
		return result
	}

	resp, err := c.client.Do(req)
	result.ResponseTimeMS = c.registry.now().Sub(start).Milliseconds()
	if err != nil {
		result.Status = core.HealthUnhealthy
		result.Error = err.Error()
		c.logger.Debug("Health probe failed", map[string]interface{}{
			"operation": "health_probe_failed",
			"agent_id":  target.agentID,
			"error":     err.Error(),
		})
		return result
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		result.Status = core.HealthHealthy
	case resp.StatusCode >= 500:
		result.Status = core.HealthUnhealthy
		result.Error = fmt.Sprintf("status %d", resp.StatusCode)
	default:
		result.Status = core.HealthDegraded
		result.Metadata = map[string]string{"status_code": fmt.Sprintf("%d", resp.StatusCode)}
	}
	return result
}

// CheckNow runs one probe round synchronously. Exposed for tests and
// operational tooling that cannot wait for the next tick.
func (r *Registry) CheckNow(ctx context.Context, config HealthCheckerConfig) {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	checker := &healthChecker{
		registry: r,
		config:   config,
		client:   client,
		logger:   r.logger,
		done:     make(chan struct{}),
	}
	checker.checkAll(ctx)
}
