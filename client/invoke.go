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

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/agrimesh/agentmesh/core"
)

// InvocationRequest asks an agent to perform one declared capability.
// AuthToken, when set, takes precedence over the client's default token
// source. TimeoutSeconds of zero falls back to the endpoint's declared
// timeout, then the client default.
type InvocationRequest struct {
	Capability     string                 `json:"capability"`
	Input          map[string]interface{} `json:"input,omitempty"`
	Context        map[string]interface{} `json:"context,omitempty"`
	AuthToken      string                 `json:"-"`
	TimeoutSeconds float64                `json:"-"`
}

// InvocationResponse is the typed envelope every invocation returns.
// Status is "success" or "error"; OutputData carries the agent's
// response body verbatim on success and Error the failure text
// otherwise. InvokeAgent never returns a Go error, so fan-out callers
// need no per-call error handling.
type InvocationResponse struct {
	RequestID  string          `json:"request_id"`
	Status     string          `json:"status"`
	AgentID    string          `json:"agent_id"`
	Capability string          `json:"capability"`
	OutputData json.RawMessage `json:"output_data,omitempty"`
	Error      string          `json:"error,omitempty"`
	ElapsedMS  int64           `json:"elapsed_ms"`
}

const (
	invocationSuccess = "success"
	invocationError   = "error"
)

// InvokeAgent resolves the agent's card, validates the requested
// capability against it, builds authentication headers and dispatches
// the capability invocation to the card's endpoint.
//
// Failure modes that never reach the network: unknown agent id,
// capability not declared on the card, and a required credential missing
// from both the request and the client default.
func (c *Client) InvokeAgent(ctx context.Context, agentID string, req InvocationRequest) *InvocationResponse {
	tracer := otel.Tracer("agentmesh/client")
	ctx, span := tracer.Start(ctx, "agent.invoke")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.id", agentID),
		attribute.String("agent.capability", req.Capability),
	)

	start := time.Now()
	resp := &InvocationResponse{
		RequestID:  uuid.New().String(),
		AgentID:    agentID,
		Capability: req.Capability,
	}

	fail := func(err error) *InvocationResponse {
		resp.Status = invocationError
		resp.Error = err.Error()
		resp.ElapsedMS = time.Since(start).Milliseconds()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("Agent invocation failed", map[string]interface{}{
			"operation":  "invoke_agent_failed",
			"request_id": resp.RequestID,
			"agent_id":   agentID,
			"capability": req.Capability,
			"error":      err.Error(),
		})
		return resp
	}

	card, err := c.GetAgent(ctx, agentID)
	if err != nil {
		return fail(fmt.Errorf("resolve agent: %w", err))
	}
	if card == nil {
		return fail(fmt.Errorf("%w: %q", core.ErrAgentNotFound, agentID))
	}

	if !card.HasCapability(req.Capability) {
		return fail(fmt.Errorf("%w: agent %q does not declare capability %q",
			core.ErrCapabilityNotFound, agentID, req.Capability))
	}

	headers, err := c.buildHeaders(card, req)
	if err != nil {
		return fail(err)
	}

	output, err := c.dispatch(ctx, card, req, headers)
	if err != nil {
		return fail(err)
	}

	resp.Status = invocationSuccess
	resp.OutputData = output
	resp.ElapsedMS = time.Since(start).Milliseconds()
	c.logger.Debug("Agent invocation succeeded", map[string]interface{}{
		"operation":  "invoke_agent",
		"request_id": resp.RequestID,
		"agent_id":   agentID,
		"capability": req.Capability,
		"elapsed_ms": resp.ElapsedMS,
	})
	return resp
}

// buildHeaders constructs the outbound header set: Content-Type always,
// the credential header demanded by the card's security scheme, then the
// card's declared default headers merged in without overriding either.
// A scheme with no header representation (mutualTLS, unknown values) is
// an error when the card requires authentication.
func (c *Client) buildHeaders(card *core.AgentCard, req InvocationRequest) (http.Header, error) {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")

	if card.RequiresAuthentication {
		token := req.AuthToken
		if token == "" && c.tokens != nil {
			defaultToken, err := c.tokens.Token()
			if err != nil {
				return nil, fmt.Errorf("%w: token source: %v", core.ErrMissingAuthToken, err)
			}
			token = defaultToken
		}
		if token == "" {
			return nil, fmt.Errorf("%w: agent %q requires %s authentication",
				core.ErrMissingAuthToken, card.AgentID, card.SecurityScheme)
		}

		switch card.SecurityScheme {
		case core.SecurityBearer, core.SecurityOAuth2:
			headers.Set("Authorization", "Bearer "+token)
		case core.SecurityAPIKey:
			headers.Set("X-API-Key", token)
		case core.SecurityNone, "":
			// requires_authentication with no declared scheme falls back
			// to a bearer header
			headers.Set("Authorization", "Bearer "+token)
		default:
			// mutualTLS and anything unrecognized cannot be satisfied
			// with a credential header; refuse rather than send the
			// token in a format the agent never asked for
			return nil, fmt.Errorf("%w: agent %q declares unsupported security scheme %q",
				core.ErrInvalidAgentCard, card.AgentID, card.SecurityScheme)
		}
	}

	for name, value := range card.Endpoint.Headers {
		if headers.Get(name) == "" {
			headers.Set(name, value)
		}
	}
	return headers, nil
}

// dispatch sends the invocation to the card's endpoint. GET encodes the
// input payload as query parameters; every other method posts the JSON
// invocation body. The response body is passed through verbatim.
func (c *Client) dispatch(ctx context.Context, card *core.AgentCard, req InvocationRequest, headers http.Header) (json.RawMessage, error) {
	timeout := c.timeout
	if card.Endpoint.TimeoutSeconds > 0 {
		timeout = time.Duration(card.Endpoint.TimeoutSeconds * float64(time.Second))
	}
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds * float64(time.Second))
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := strings.ToUpper(card.Endpoint.Method)
	if method == "" {
		method = http.MethodPost
	}

	var httpReq *http.Request
	var err error
	if method == http.MethodGet {
		endpoint, buildErr := appendQuery(card.Endpoint.URL, req.Input)
		if buildErr != nil {
			return nil, buildErr
		}
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	} else {
		body, marshalErr := json.Marshal(map[string]interface{}{
			"capability": req.Capability,
			"input":      req.Input,
			"context":    req.Context,
		})
		if marshalErr != nil {
			return nil, marshalErr
		}
		httpReq, err = http.NewRequestWithContext(ctx, method, card.Endpoint.URL, bytes.NewReader(body))
	}
	if err != nil {
		return nil, err
	}
	for name, values := range headers {
		for _, value := range values {
			httpReq.Header.Add(name, value)
		}
	}

	invoke := func(ctx context.Context) (interface{}, error) {
		httpResp, doErr := c.http.Do(httpReq.WithContext(ctx))
		if doErr != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("%w: invoking %q: %v", core.ErrTimeout, card.AgentID, doErr)
			}
			return nil, fmt.Errorf("%w: invoking %q: %v", core.ErrConnectionFailed, card.AgentID, doErr)
		}
		defer httpResp.Body.Close()

		body, readErr := io.ReadAll(httpResp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("%w: reading response from %q: %v", core.ErrRequestFailed, card.AgentID, readErr)
		}
		if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: agent %q returned status %d: %s",
				core.ErrRequestFailed, card.AgentID, httpResp.StatusCode, strings.TrimSpace(string(body)))
		}
		return json.RawMessage(body), nil
	}

	var result interface{}
	if c.fallbacks != nil {
		result, err = c.fallbacks.Execute(ctx, "agent:"+card.AgentID, invoke)
	} else {
		result, err = invoke(ctx)
	}
	if err != nil {
		return nil, err
	}
	output, ok := result.(json.RawMessage)
	if !ok {
		// Fallback functions may return arbitrary values; re-encode them
		encoded, encErr := json.Marshal(result)
		if encErr != nil {
			return nil, encErr
		}
		output = encoded
	}
	return output, nil
}

// appendQuery flattens the input payload into the endpoint URL's query
// string for GET dispatch
func appendQuery(endpoint string, input map[string]interface{}) (string, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: endpoint url: %v", core.ErrInvalidAgentCard, err)
	}
	query := parsed.Query()
	for key, value := range input {
		query.Set(key, fmt.Sprintf("%v", value))
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
