package mcp

import (
	"context"

	"github.com/flemzord/writenow/internal/engine"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerTools() {
	s.mcp.AddTool(rulesTool(), s.handleRules)
	s.mcp.AddTool(assembleTool(), s.handleAssemble)
	s.mcp.AddTool(memoryPreviewTool(), s.handleMemoryPreview)
}

func projectArg() mcpgo.ToolOption {
	return mcpgo.WithString("projectId",
		mcpgo.Required(),
		mcpgo.Description("Project id as configured in engine.context"),
	)
}

func rulesTool() mcpgo.Tool {
	return mcpgo.NewTool("rules_get",
		mcpgo.WithDescription("Load the project's writing rules (style.md, terminology.json, constraints.json) with per-file errors."),
		mcpgo.WithReadOnlyHintAnnotation(true),
		projectArg(),
		mcpgo.WithBoolean("refresh", mcpgo.Description("Bypass the cache and re-read the files")),
	)
}

func (s *Server) handleRules(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	project, err := req.RequireString("projectId")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	res, err := s.engine.Rules(ctx, project, req.GetBool("refresh", false))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(res)
}

func assembleTool() mcpgo.Tool {
	return mcpgo.NewTool("assemble_context",
		mcpgo.WithDescription("Assemble the layered prompt for one skill run under a token budget. "+
			"Returns systemPrompt, userContent, token stats, budget evidence and the prompt hashes."),
		mcpgo.WithReadOnlyHintAnnotation(true),
		projectArg(),
		mcpgo.WithString("skillId", mcpgo.Description("Skill defined under .writenow/skills/; use skill for an inline one")),
		mcpgo.WithObject("skill",
			mcpgo.Description("Inline skill definition"),
			mcpgo.Properties(map[string]any{
				"id":                map[string]any{"type": "string"},
				"name":              map[string]any{"type": "string"},
				"outputConstraints": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"outputFormat":      map[string]any{"type": "string"},
			}),
		),
		mcpgo.WithString("userInstruction", mcpgo.Required(), mcpgo.Description("What the writer asked for")),
		mcpgo.WithObject("editorContext",
			mcpgo.Description("Text around the cursor"),
			mcpgo.Properties(map[string]any{
				"currentParagraph":  map[string]any{"type": "string"},
				"surroundingBefore": map[string]any{"type": "string"},
				"surroundingAfter":  map[string]any{"type": "string"},
				"selectedText":      map[string]any{"type": "string"},
			}),
		),
		mcpgo.WithArray("settings",
			mcpgo.Description(`Knowledge documents to include, e.g. "characters/Alice.md". Omit to resolve from the editor text.`),
			mcpgo.Items(map[string]any{"type": "string"}),
		),
		mcpgo.WithArray("retrieved",
			mcpgo.Description("Retrieved passages, lowest priority evicted first"),
			mcpgo.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":       map[string]any{"type": "string"},
					"content":  map[string]any{"type": "string"},
					"priority": map[string]any{"type": "integer"},
				},
			}),
		),
		mcpgo.WithObject("budget", mcpgo.Description("Token budget; defaults to the engine's")),
		mcpgo.WithString("model", mcpgo.Description("Target model name, recorded in the audit trail")),
	)
}

func (s *Server) handleAssemble(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	var in engine.AssembleInput
	if err := req.BindArguments(&in); err != nil {
		return mcpgo.NewToolResultError("invalid arguments: " + err.Error()), nil
	}
	out, err := s.engine.AssembleContext(ctx, in)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(out)
}

func memoryPreviewTool() mcpgo.Tool {
	return mcpgo.NewTool("memory_preview",
		mcpgo.WithDescription("Show the memory settings and the items that would be injected into the next assembly."),
		mcpgo.WithReadOnlyHintAnnotation(true),
		projectArg(),
	)
}

func (s *Server) handleMemoryPreview(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	project, err := req.RequireString("projectId")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	p, err := s.engine.MemoryPreview(ctx, project)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(p)
}
