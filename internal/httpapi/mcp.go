package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/forgehq/sidecar/internal/apierr"
	"github.com/forgehq/sidecar/internal/auth"
	"github.com/forgehq/sidecar/internal/registry"
)

const (
	mcpServerName    = "forge-sidecar"
	mcpServerVersion = "1.0.0"
)

// handleMCP fails closed per the §4.8 rule: an unset key, a missing or
// malformed Authorization header, a length mismatch, or a failed
// constant-time comparison all answer 401 identically. On success a fresh
// MCP server — one tool handler per currently-promoted tool — is built for
// this request alone and handed to a StreamableHTTP transport; nothing is
// retained once the response completes.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	token, err := auth.ExtractBearer(r.Header.Get("Authorization"))
	mcpAuth := auth.NewAdminVerifier(s.deps.MCPKey)
	if err != nil || !mcpAuth.Verify(token) {
		writeError(w, &apierr.AuthError{Reason: "invalid mcp key"})
		return
	}

	tools, err := s.deps.Registry.PromotedTools(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	mcpServer := server.NewMCPServer(mcpServerName, mcpServerVersion)
	for _, spec := range tools {
		mcpServer.AddTool(mcpToolFromSpec(spec), s.mcpToolHandler(spec))
	}

	server.NewStreamableHTTPServer(mcpServer).ServeHTTP(w, r)
}

// mcpToolFromSpec builds the {type: object, properties, required?} schema
// tools/list advertises from a promoted tool's registry-stored input schema.
func mcpToolFromSpec(spec registry.ToolSpec) mcp.Tool {
	properties := make(map[string]any, len(spec.InputSchema))
	var required []string
	for name, field := range spec.InputSchema {
		prop := map[string]any{"type": field.Type}
		if field.Description != "" {
			prop["description"] = field.Description
		}
		properties[name] = prop
		if !field.Optional {
			required = append(required, name)
		}
	}
	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	raw, _ := json.Marshal(schema)
	return mcp.NewToolWithRawSchema(spec.ToolName, spec.Description, raw)
}

// mcpToolHandler routes a tools/call through the same tool executor the
// chat surface uses, folding a non-2xx result into an MCP error result
// rather than a transport-level error.
func (s *Server) mcpToolHandler(spec registry.ToolSpec) server.ToolHandlerFunc {
	toolName := spec.ToolName
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := s.deps.Executor.Execute(ctx, toolName, request.GetArguments(), "")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if result.Status < 200 || result.Status >= 300 {
			msg := result.Error
			if msg == "" {
				msg = string(result.Body)
			}
			return mcp.NewToolResultError(msg), nil
		}
		return mcp.NewToolResultText(string(result.Body)), nil
	}
}
