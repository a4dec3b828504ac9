// Package mcp exposes the engine's read-side calls as Model Context Protocol
// tools, so editor agents can fetch rules, assembled prompts and the memory
// preview over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"

	ctxengine "github.com/flemzord/writenow/internal/context"
	"github.com/flemzord/writenow/internal/engine"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ServerName is reported to MCP clients during initialize.
const ServerName = "writenow"

// Server wraps an MCP server whose tools call into an Engine.
type Server struct {
	engine *engine.Engine
	mcp    *server.MCPServer
	logger *slog.Logger
}

// New builds the MCP server and registers every tool.
func New(eng *engine.Engine, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine: eng,
		logger: logger,
		mcp: server.NewMCPServer(
			ServerName,
			version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
			server.WithInstructions(instructions),
		),
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying server, for in-process transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio speaks JSON-RPC over in and out until ctx is done or in closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(&slogWriter{logger: s.logger}, "", 0))
	s.logger.Info("mcp server listening on stdio", "projects", s.engine.Projects())
	return stdio.Listen(ctx, in, out)
}

// slogWriter forwards the stdio transport's error log lines to slog.
type slogWriter struct {
	logger *slog.Logger
}

func (w *slogWriter) Write(p []byte) (int, error) {
	w.logger.Error("mcp transport error", "detail", string(p))
	return len(p), nil
}

// jsonResult renders v as the tool's text content.
func jsonResult(v any) (*mcpgo.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return mcpgo.NewToolResultText(string(data)), nil
}

// errorResult reports an engine failure to the model as a tool error,
// prefixed with its code so agents can branch on it.
func errorResult(err error) *mcpgo.CallToolResult {
	return mcpgo.NewToolResultError(fmt.Sprintf("%s: %v", ctxengine.CodeOf(err), err))
}

const instructions = `writenow assembles the prompt context for writing skills.
Call rules_get to inspect a project's writing rules, assemble_context to build
the system prompt and user content for a skill run, and memory_preview to see
which user memories would be injected.`
