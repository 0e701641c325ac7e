package nl2sql

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rapbattles/batalla/internal/llm"
)

type chatServer struct {
	reply    string
	status   int
	requests []openai.ChatCompletionRequest
}

func (s *chatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/chat/completions" {
		http.NotFound(w, r)
		return
	}
	var req openai.ChatCompletionRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	s.requests = append(s.requests, req)
	if s.status != 0 {
		w.WriteHeader(s.status)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream failure","type":"server_error"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  req.Model,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]string{"role": "assistant", "content": s.reply},
		}},
	})
}

func newTestTranslator(t *testing.T, server *chatServer, cfg OpenAIConfig) *OpenAITranslator {
	t.Helper()
	srv := httptest.NewServer(server)
	t.Cleanup(srv.Close)
	client, err := llm.NewClient(llm.Config{BaseURL: srv.URL + "/v1", APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	translator, err := NewOpenAITranslator(client, cfg)
	if err != nil {
		t.Fatalf("NewOpenAITranslator() error = %v", err)
	}
	return translator
}

func TestTranslateReturnsCleanSQL(t *testing.T) {
	server := &chatServer{reply: "```sql\nSELECT aka FROM persons WHERE lower(aka) = 'aczino'\n```"}
	translator := newTestTranslator(t, server, OpenAIConfig{Model: "deepseek-chat"})

	result, err := translator.Translate(context.Background(), Request{
		Question:           "¿Cuántas batallas ganó Aczino?",
		NormalizedQuestion: "¿cuantas batallas gano aczino?",
		Entities:           map[string]string{"person_aka": "aczino"},
	})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if result.SQL != "SELECT aka FROM persons WHERE lower(aka) = 'aczino'" {
		t.Fatalf("SQL = %q", result.SQL)
	}
	if result.Model != "deepseek-chat" {
		t.Fatalf("Model = %q", result.Model)
	}

	if len(server.requests) != 1 {
		t.Fatalf("requests = %d", len(server.requests))
	}
	messages := server.requests[0].Messages
	if messages[0].Role != openai.ChatMessageRoleSystem {
		t.Fatalf("first role = %q", messages[0].Role)
	}
	prompt := messages[len(messages)-1].Content
	for _, want := range []string{`{"person_aka":"aczino"}`, "persons(person_id", "Pregunta normalizada: ¿cuantas batallas gano aczino?"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestTranslateKeepsRecentHistory(t *testing.T) {
	server := &chatServer{reply: "SELECT 1"}
	translator := newTestTranslator(t, server, OpenAIConfig{HistoryMessages: 2})

	_, err := translator.Translate(context.Background(), Request{
		Question: "¿y en 2022?",
		History: []Message{
			{Role: "user", Content: "primera"},
			{Role: "assistant", Content: "segunda"},
			{Role: "user", Content: "tercera"},
		},
	})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	messages := server.requests[0].Messages
	if len(messages) != 4 {
		t.Fatalf("messages = %d, want system + 2 history + question", len(messages))
	}
	if messages[1].Content != "segunda" || messages[1].Role != openai.ChatMessageRoleAssistant {
		t.Fatalf("history[0] = %+v", messages[1])
	}
	if server.requests[0].Model != llm.DefaultModel {
		t.Fatalf("model = %q", server.requests[0].Model)
	}
}

func TestTranslateErrors(t *testing.T) {
	empty := newTestTranslator(t, &chatServer{reply: "```sql\n```"}, OpenAIConfig{})
	if _, err := empty.Translate(context.Background(), Request{Question: "x"}); !errors.Is(err, ErrEmptySQL) {
		t.Fatalf("error = %v, want ErrEmptySQL", err)
	}

	failing := newTestTranslator(t, &chatServer{status: http.StatusBadGateway}, OpenAIConfig{})
	if _, err := failing.Translate(context.Background(), Request{Question: "x"}); err == nil {
		t.Fatal("expected upstream error")
	}

	if _, err := empty.Translate(context.Background(), Request{}); err == nil {
		t.Fatal("expected error for empty question")
	}
	if _, err := NewOpenAITranslator(nil, OpenAIConfig{}); err == nil {
		t.Fatal("expected error for nil client")
	}
}

func TestBuildUserPromptFallsBackToDefaults(t *testing.T) {
	prompt := buildUserPrompt(Request{Question: "hola"})
	if !strings.Contains(prompt, DefaultSchema) {
		t.Fatal("expected default schema in prompt")
	}
	if !strings.Contains(prompt, DefaultExamples[0].SQL) {
		t.Fatal("expected default examples in prompt")
	}
	if strings.Contains(prompt, "Entidades detectadas") {
		t.Fatal("entities section should be omitted when empty")
	}
}
