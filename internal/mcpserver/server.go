// Package mcpserver exposes the routing engine as MCP tools over stdio, so
// agent hosts can drive the UI router the way a human chat surface would.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dashwise/router-runtime/internal/dispatch"
	"github.com/dashwise/router-runtime/internal/engine"
	"github.com/dashwise/router-runtime/internal/session"
)

type Server struct {
	engine *engine.Engine
	logger *slog.Logger
}

func New(routingEngine *engine.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: routingEngine, logger: logger.With("component", "mcpserver")}
}

// Run serves the tools over stdio until the context ends.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server starting on stdio")
	return s.build().Run(ctx, &sdkmcp.StdioTransport{})
}

func (s *Server) build() *sdkmcp.Server {
	server := sdkmcp.NewServer(&sdkmcp.Implementation{Name: "router-runtime", Version: "1.0.0"}, nil)
	server.AddTool(&sdkmcp.Tool{
		Name:        "route_command",
		Description: "Route a user chat command through the UI routing ladder and return the resulting actions",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"session_id": map[string]any{"type": "string"},
				"input":      map[string]any{"type": "string"},
				"widgets": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"id":    map[string]any{"type": "string"},
							"title": map[string]any{"type": "string"},
						},
					},
				},
				"active_widget_id": map[string]any{"type": "string"},
			},
			"required": []string{"input"},
		},
	}, s.handleRouteCommand)
	server.AddTool(&sdkmcp.Tool{
		Name:        "register_options",
		Description: "Register an option set the host UI has shown, so follow-up commands can select from it",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"session_id":      map[string]any{"type": "string"},
				"original_intent": map[string]any{"type": "string"},
				"options": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"id":    map[string]any{"type": "string"},
							"label": map[string]any{"type": "string"},
						},
					},
				},
			},
			"required": []string{"options"},
		},
	}, s.handleRegisterOptions)
	server.AddTool(&sdkmcp.Tool{
		Name:        "list_sessions",
		Description: "List the live routing sessions and their state",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	}, s.handleListSessions)
	return server
}

func (s *Server) handleRouteCommand(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
	var args struct {
		SessionID      string            `json:"session_id"`
		Input          string            `json:"input"`
		Widgets        []dispatch.Widget `json:"widgets"`
		ActiveWidgetID string            `json:"active_widget_id"`
	}
	if err := decodeArguments(req, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Input) == "" {
		return nil, errors.New("input is required")
	}

	response, err := s.engine.RouteTurn(ctx, engine.TurnRequest{
		SessionID:      args.SessionID,
		Input:          args.Input,
		Widgets:        args.Widgets,
		ActiveWidgetID: args.ActiveWidgetID,
	})
	if err != nil {
		return nil, fmt.Errorf("route turn: %w", err)
	}
	return textResult(response)
}

func (s *Server) handleRegisterOptions(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
	var args struct {
		SessionID      string           `json:"session_id"`
		OriginalIntent string           `json:"original_intent"`
		Options        []session.Option `json:"options"`
	}
	if err := decodeArguments(req, &args); err != nil {
		return nil, err
	}
	if len(args.Options) == 0 {
		return nil, errors.New("options are required")
	}
	s.engine.ShowOptions(args.SessionID, "options", args.OriginalIntent, args.Options)
	return textResult(map[string]string{"status": "registered"})
}

func (s *Server) handleListSessions(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
	return textResult(map[string]any{"sessions": s.engine.Sessions()})
}

func decodeArguments(req *sdkmcp.CallToolRequest, target any) error {
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, target); err != nil {
		return fmt.Errorf("decode tool arguments: %w", err)
	}
	return nil
}

func textResult(payload any) (*sdkmcp.CallToolResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(raw)}},
	}, nil
}
