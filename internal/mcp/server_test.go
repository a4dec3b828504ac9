package mcp_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/flemzord/writenow/internal/engine"
	"github.com/flemzord/writenow/internal/knowledge"
	"github.com/flemzord/writenow/internal/mcp"
)

type rpcResponse struct {
	Result struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func newServer(t *testing.T) (*mcp.Server, string) {
	t.Helper()
	root := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(engine.Options{
		Projects: map[string]string{"novel": root},
		Logger:   logger,
	})
	t.Cleanup(eng.Close)
	return mcp.New(eng, "test", logger), root
}

func writeKnowledge(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, knowledge.DirName, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

// call sends one JSON-RPC request through the server.
func call(t *testing.T, s *mcp.Server, id int, method string, params any) rpcResponse {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		t.Fatal(err)
	}
	msg := s.MCPServer().HandleMessage(t.Context(), raw)
	out, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	var resp rpcResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("decode %s: %v", out, err)
	}
	if resp.Error != nil {
		t.Fatalf("%s: rpc error %s", method, resp.Error.Message)
	}
	return resp
}

func initialize(t *testing.T, s *mcp.Server) {
	t.Helper()
	call(t, s, 1, "initialize", map[string]any{
		"protocolVersion": "2025-03-26",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "test", "version": "0"},
	})
}

func callTool(t *testing.T, s *mcp.Server, name string, args map[string]any) (string, bool) {
	t.Helper()
	resp := call(t, s, 2, "tools/call", map[string]any{"name": name, "arguments": args})
	if len(resp.Result.Content) == 0 {
		t.Fatalf("%s returned no content", name)
	}
	return resp.Result.Content[0].Text, resp.Result.IsError
}

func TestServer_ListsTools(t *testing.T) {
	t.Parallel()
	s, _ := newServer(t)
	initialize(t, s)

	resp := call(t, s, 2, "tools/list", map[string]any{})
	var names []string
	for _, tool := range resp.Result.Tools {
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	if want := []string{"assemble_context", "memory_preview", "rules_get"}; !slices.Equal(names, want) {
		t.Errorf("tools = %v, want %v", names, want)
	}
}

func TestServer_RulesGet(t *testing.T) {
	t.Parallel()
	s, root := newServer(t)
	initialize(t, s)
	writeKnowledge(t, root, "rules/style.md", "Past tense.")

	text, isErr := callTool(t, s, "rules_get", map[string]any{"projectId": "novel"})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var res knowledge.Result
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Fragments) != 1 || res.Fragments[0].ID != "rules:style.md" {
		t.Errorf("fragments = %+v", res.Fragments)
	}
}

func TestServer_AssembleContext(t *testing.T) {
	t.Parallel()
	s, root := newServer(t)
	initialize(t, s)
	writeKnowledge(t, root, "rules/style.md", "Write in the past tense.")

	text, isErr := callTool(t, s, "assemble_context", map[string]any{
		"projectId":       "novel",
		"skill":           map[string]any{"id": "polish", "name": "Polish"},
		"userInstruction": "Tighten this.",
		"editorContext":   map[string]any{"currentParagraph": "The rain fell."},
	})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var out struct {
		SystemPrompt string `json:"systemPrompt"`
		UserContent  string `json:"userContent"`
		PromptHash   string `json:"promptHash"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.SystemPrompt, "past tense") || !strings.Contains(out.UserContent, "Tighten this.") || out.PromptHash == "" {
		t.Errorf("assembled = %+v", out)
	}
}

func TestServer_ToolErrors(t *testing.T) {
	t.Parallel()
	s, _ := newServer(t)
	initialize(t, s)

	tests := []struct {
		tool string
		args map[string]any
		want string
	}{
		{"rules_get", map[string]any{}, "projectId"},
		{"rules_get", map[string]any{"projectId": "memoir"}, "NOT_FOUND"},
		{"memory_preview", map[string]any{"projectId": "memoir"}, "NOT_FOUND"},
		{"assemble_context", map[string]any{"projectId": "novel", "userInstruction": "x"}, "INVALID_ARGUMENT"},
		{"assemble_context", map[string]any{"projectId": "novel", "skillId": "polish", "userInstruction": "x"}, "NOT_FOUND"},
		{"assemble_context", map[string]any{
			"projectId":       "novel",
			"skill":           map[string]any{"id": "polish", "name": "Polish"},
			"userInstruction": "x",
			"budget":          map[string]any{"totalLimit": 5},
		}, "ASSEMBLY_BUDGET_IMPOSSIBLE"},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("%d_%s", i, tt.tool), func(t *testing.T) {
			text, isErr := callTool(t, s, tt.tool, tt.args)
			if !isErr || !strings.Contains(text, tt.want) {
				t.Errorf("result = %q (isError %v), want error containing %q", text, isErr, tt.want)
			}
		})
	}
}

func TestServer_MemoryPreview(t *testing.T) {
	t.Parallel()
	s, _ := newServer(t)
	initialize(t, s)

	text, isErr := callTool(t, s, "memory_preview", map[string]any{"projectId": "novel"})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	if !strings.Contains(text, `"injectionEnabled": true`) {
		t.Errorf("preview = %s", text)
	}
}
