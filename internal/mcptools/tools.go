package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rapbattles/batalla/internal/chat"
	"github.com/rapbattles/batalla/internal/entities"
)

const (
	ToolAsk             = "ask"
	ToolExtractEntities = "extract_entities"
)

type Service interface {
	Ask(ctx context.Context, req chat.Request) (chat.Answer, error)
	Extract(question string) entities.Result
}

type AskParams struct {
	Question string `json:"question" jsonschema:"Pregunta en español sobre batallas de freestyle, por ejemplo: ¿cuántas batallas ganó Aczino en 2019?"`
}

type ExtractParams struct {
	Question string `json:"question" jsonschema:"Texto libre del que extraer MCs, países, eventos, fases y años."`
}

func NewServer(service Service, version string) *mcp.Server {
	if version == "" {
		version = "dev"
	}
	server := mcp.NewServer(&mcp.Implementation{Name: "batalla", Version: version}, nil)
	tools := &toolset{service: service}

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolAsk,
		Description: "Responde preguntas sobre batallas de rap: genera SQL, la valida, la ejecuta y redacta la respuesta.",
	}, tools.ask)
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolExtractEntities,
		Description: "Normaliza una pregunta y devuelve las entidades reconocidas (MC, país, evento, fase, año).",
	}, tools.extractEntities)
	return server
}

func NewHandler(server *mcp.Server) http.Handler {
	return mcp.NewSSEHandler(func(*http.Request) *mcp.Server {
		return server
	}, &mcp.SSEOptions{})
}

type toolset struct {
	service Service
}

type askResult struct {
	Answer    string            `json:"answer"`
	SQL       string            `json:"sql"`
	Entities  map[string]string `json:"entities"`
	Columns   []string          `json:"columns"`
	Rows      [][]any           `json:"rows"`
	RowCount  int               `json:"row_count"`
	Truncated bool              `json:"truncated"`
}

func (t *toolset) ask(ctx context.Context, _ *mcp.CallToolRequest, params AskParams) (*mcp.CallToolResult, any, error) {
	question := strings.TrimSpace(params.Question)
	if question == "" {
		return errorResult(chat.CodeInvalidRequest, "question is required"), nil, nil
	}

	result, err := t.service.Ask(ctx, chat.Request{Question: question})
	if err != nil {
		return errorResult(chat.Code(err), chat.Message(err)), nil, nil
	}
	return textResult(askResult{
		Answer:    result.Content,
		SQL:       result.SQL,
		Entities:  result.Entities,
		Columns:   result.Columns,
		Rows:      result.Rows,
		RowCount:  result.RowCount,
		Truncated: result.Truncated,
	})
}

func (t *toolset) extractEntities(_ context.Context, _ *mcp.CallToolRequest, params ExtractParams) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(params.Question) == "" {
		return errorResult(chat.CodeInvalidRequest, "question is required"), nil, nil
	}
	result := t.service.Extract(params.Question)
	return textResult(struct {
		Normalized string            `json:"normalized"`
		Entities   map[string]string `json:"entities"`
		Matches    []entities.Match  `json:"matches"`
	}{
		Normalized: result.Normalized,
		Entities:   result.Entities,
		Matches:    result.Matches,
	})
}

func textResult(payload any) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("encode tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func errorResult(code, message string) *mcp.CallToolResult {
	data, _ := json.Marshal(map[string]string{"code": code, "message": message})
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
