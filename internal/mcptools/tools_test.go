package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rapbattles/batalla/internal/chat"
	"github.com/rapbattles/batalla/internal/entities"
	"github.com/rapbattles/batalla/internal/sqlguard"
)

type fakeService struct {
	answer   chat.Answer
	err      error
	requests []chat.Request
}

func (f *fakeService) Ask(_ context.Context, req chat.Request) (chat.Answer, error) {
	f.requests = append(f.requests, req)
	return f.answer, f.err
}

func (f *fakeService) Extract(question string) entities.Result {
	return entities.Result{
		Original:   question,
		Normalized: "aczino vs chuty",
		Entities:   map[string]string{entities.KeyPersonAKA: "aczino"},
	}
}

func TestAskReturnsAnswer(t *testing.T) {
	service := &fakeService{answer: chat.Answer{
		Content:  "Aczino ganó 31 batallas.",
		SQL:      "SELECT count(*) FROM battle_participants",
		Columns:  []string{"count"},
		Rows:     [][]any{{int64(31)}},
		RowCount: 1,
	}}
	tools := &toolset{service: service}

	result, _, err := tools.ask(context.Background(), nil, AskParams{Question: "  ¿cuántas ganó aczino?  "})
	if err != nil {
		t.Fatalf("ask() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %+v", result.Content)
	}
	var payload askResult
	decodeText(t, result, &payload)
	if payload.Answer != "Aczino ganó 31 batallas." || payload.RowCount != 1 {
		t.Fatalf("payload = %+v", payload)
	}
	if service.requests[0].Question != "¿cuántas ganó aczino?" {
		t.Fatalf("question = %q", service.requests[0].Question)
	}
}

func TestAskReportsPipelineErrors(t *testing.T) {
	tools := &toolset{service: &fakeService{err: &chat.StageError{Stage: chat.StageValidateSQL, Err: sqlguard.ErrNotSelect}}}

	result, _, err := tools.ask(context.Background(), nil, AskParams{Question: "borra todo"})
	if err != nil {
		t.Fatalf("ask() error = %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	var payload map[string]string
	decodeText(t, result, &payload)
	if payload["code"] != chat.CodeInvalidSQL {
		t.Fatalf("payload = %+v", payload)
	}

	empty, _, _ := tools.ask(context.Background(), nil, AskParams{})
	if !empty.IsError {
		t.Fatal("expected error for empty question")
	}
}

func TestExtractEntities(t *testing.T) {
	tools := &toolset{service: &fakeService{err: errors.New("unused")}}

	result, _, err := tools.extractEntities(context.Background(), nil, ExtractParams{Question: "Aczino vs Chuty"})
	if err != nil {
		t.Fatalf("extractEntities() error = %v", err)
	}
	var payload struct {
		Normalized string            `json:"normalized"`
		Entities   map[string]string `json:"entities"`
	}
	decodeText(t, result, &payload)
	if payload.Normalized != "aczino vs chuty" || payload.Entities[entities.KeyPersonAKA] != "aczino" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestToolsOverSSE(t *testing.T) {
	service := &fakeService{answer: chat.Answer{Content: "Sí.", RowCount: 1}}
	server := httptest.NewServer(NewHandler(NewServer(service, "test")))
	defer server.Close()

	ctx := context.Background()
	client := mcp.NewClient(&mcp.Implementation{Name: "batalla-test", Version: "v1.0.0"}, nil)
	session, err := client.Connect(ctx, &mcp.SSEClientTransport{Endpoint: server.URL}, nil)
	if err != nil {
		t.Fatalf("connect error = %v", err)
	}
	defer session.Close()

	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("list tools error = %v", err)
	}
	names := map[string]bool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	if !names[ToolAsk] || !names[ToolExtractEntities] {
		t.Fatalf("tools = %v", names)
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      ToolAsk,
		Arguments: map[string]any{"question": "¿ganó aczino la final?"},
	})
	if err != nil {
		t.Fatalf("call tool error = %v", err)
	}
	var payload askResult
	decodeText(t, result, &payload)
	if payload.Answer != "Sí." {
		t.Fatalf("payload = %+v", payload)
	}
}

func decodeText(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	if result == nil || len(result.Content) != 1 {
		t.Fatalf("result = %+v", result)
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T", result.Content[0])
	}
	if err := json.Unmarshal([]byte(text.Text), target); err != nil {
		t.Fatalf("decode %q: %v", text.Text, err)
	}
}
