// Package toolexec turns a tool call the model emitted into an HTTP request
// against the configured backend API, using the tool's mcpRouting spec.
package toolexec

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

	"github.com/forgehq/sidecar/internal/registry"
)

// Timeout is the per-call deadline enforced on every tool HTTP request.
const Timeout = 30 * time.Second

const defaultBaseURL = "http://localhost:3000"

var bodyMethods = map[string]bool{"POST": true, "PUT": true, "PATCH": true}

// Result is the outcome of one tool execution. It is never a Go error for
// expected failure modes (tool not found, network failure, non-2xx): those
// are all represented in the result so the ReAct loop can hand them to the
// model as a tool_result and let the verifier runner gate them.
type Result struct {
	Status int
	Body   json.RawMessage
	Error  string
}

// Executor builds and issues tool HTTP calls.
type Executor struct {
	registry   *registry.Store
	httpClient *http.Client
	baseURL    string
}

// New builds an Executor. baseURL is forgeConfig.api.baseUrl; empty defaults
// to http://localhost:3000. A trailing slash is stripped.
func New(reg *registry.Store, baseURL string) *Executor {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Executor{
		registry:   reg,
		httpClient: &http.Client{},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// Execute looks up toolName in the registry, builds the HTTP call per its
// mcpRouting spec, issues it with a 30s timeout, and appends a call log
// entry (non-fatal on failure). userJWT, when non-empty, is forwarded as a
// bearer token.
func (e *Executor) Execute(ctx context.Context, toolName string, args map[string]any, userJWT string) (*Result, error) {
	spec, err := e.registry.GetTool(ctx, toolName)
	if err != nil {
		return nil, fmt.Errorf("toolexec: lookup %q: %w", toolName, err)
	}
	if spec == nil || spec.LifecycleState != registry.LifecyclePromoted {
		return &Result{Status: 404, Error: "Tool not found"}, nil
	}

	req, err := e.buildRequest(ctx, *spec, args, userJWT)
	if err != nil {
		return &Result{Status: 0, Body: errorBody(err.Error()), Error: err.Error()}, nil
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()
	req = req.WithContext(callCtx)

	resp, err := e.httpClient.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		msg := err.Error()
		result := &Result{Status: 0, Body: errorBody(msg), Error: msg}
		e.logCall(ctx, toolName, args, result, latency)
		return result, nil
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	body := parseResponseBody(raw)

	result := &Result{Status: resp.StatusCode, Body: body}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Error = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}
	e.logCall(ctx, toolName, args, result, latency)
	return result, nil
}

func (e *Executor) buildRequest(ctx context.Context, spec registry.ToolSpec, args map[string]any, userJWT string) (*http.Request, error) {
	method := strings.ToUpper(spec.Routing.Method)
	if method == "" {
		method = "GET"
	}
	path := spec.Routing.Endpoint

	query := url.Values{}
	body := map[string]any{}

	for param, mapping := range spec.Routing.ParamMap {
		value, ok := args[param]
		if !ok {
			continue
		}
		if mapping.Path != "" {
			path = strings.ReplaceAll(path, "{"+mapping.Path+"}", url.PathEscape(fmt.Sprint(value)))
		}
		if mapping.Query != "" {
			query.Set(mapping.Query, fmt.Sprint(value))
		}
		if mapping.Body != "" {
			body[mapping.Body] = value
		}
	}

	fullURL := e.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	var bodyReader io.Reader
	if bodyMethods[method] && len(body) > 0 {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userJWT != "" {
		req.Header.Set("Authorization", "Bearer "+userJWT)
	}
	return req, nil
}

func (e *Executor) logCall(ctx context.Context, toolName string, args map[string]any, result *Result, latencyMs int64) {
	if e.registry == nil {
		return
	}
	input, _ := json.Marshal(args)
	e.registry.AppendCallLog(ctx, registry.CallLogEntry{
		ToolName:   toolName,
		Input:      input,
		Output:     result.Body,
		StatusCode: result.Status,
		LatencyMs:  latencyMs,
		Error:      result.Error,
		CalledAt:   time.Now(),
	})
}

func parseResponseBody(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return json.RawMessage(`{}`)
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	fallback, _ := json.Marshal(map[string]string{"text": string(raw)})
	return fallback
}

func errorBody(msg string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return b
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
