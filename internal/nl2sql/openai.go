package nl2sql

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rapbattles/batalla/internal/llm"
	"github.com/rapbattles/batalla/internal/sqlguard"
)

type OpenAIConfig struct {
	Model           string
	Temperature     float64
	Timeout         time.Duration
	HistoryMessages int
}

type OpenAITranslator struct {
	client          *openai.Client
	model           string
	temperature     float32
	timeout         time.Duration
	historyMessages int
}

func NewOpenAITranslator(client *openai.Client, cfg OpenAIConfig) (*OpenAITranslator, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = llm.DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAITranslator{
		client:          client,
		model:           model,
		temperature:     llm.Temperature(cfg.Temperature),
		timeout:         timeout,
		historyMessages: cfg.HistoryMessages,
	}, nil
}

func (t *OpenAITranslator) Translate(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Question) == "" {
		return Result{}, fmt.Errorf("question is required")
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       t.model,
		Messages:    t.buildMessages(req),
		Temperature: t.temperature,
	})
	if err != nil {
		return Result{}, fmt.Errorf("request chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("empty chat completion choices")
	}

	sql := sqlguard.Clean(resp.Choices[0].Message.Content)
	if sql == "" {
		return Result{}, ErrEmptySQL
	}
	return Result{
		SQL:      sql,
		Provider: "openai-compatible",
		Model:    t.model,
	}, nil
}

func (t *OpenAITranslator) buildMessages(req Request) []openai.ChatCompletionMessage {
	messages := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: systemPrompt}}
	history := req.History
	if t.historyMessages >= 0 && len(history) > t.historyMessages {
		history = history[len(history)-t.historyMessages:]
	}
	for _, message := range history {
		role := openai.ChatMessageRoleUser
		if message.Role == openai.ChatMessageRoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		if strings.TrimSpace(message.Content) == "" {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: message.Content})
	}
	return append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(req)})
}
