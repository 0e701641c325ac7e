package answer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rapbattles/batalla/internal/llm"
)

const defaultPromptRows = 50

const systemPrompt = `Respondes preguntas sobre batallas de freestyle en español.
Usa solo los datos entregados, sin inventar nombres ni cifras.
Responde en Markdown breve; usa tablas cuando haya varias filas.`

type OpenAIConfig struct {
	Model       string
	Temperature float64
	Timeout     time.Duration
	PromptRows  int
}

type OpenAIFormatter struct {
	client      *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
	promptRows  int
}

func NewOpenAIFormatter(client *openai.Client, cfg OpenAIConfig) (*OpenAIFormatter, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = llm.DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	promptRows := cfg.PromptRows
	if promptRows <= 0 {
		promptRows = defaultPromptRows
	}
	return &OpenAIFormatter{
		client:      client,
		model:       model,
		temperature: llm.Temperature(cfg.Temperature),
		timeout:     timeout,
		promptRows:  promptRows,
	}, nil
}

func (f *OpenAIFormatter) Format(ctx context.Context, req Request, emit EmitFunc) (string, error) {
	if len(req.Rows) == 0 {
		return NoResultsMessage, emitAll(emit, NoResultsMessage)
	}
	userPrompt, err := f.buildPrompt(req)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	stream, err := f.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       f.model,
		Temperature: f.temperature,
		Stream:      true,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("open answer stream: %w", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return full.String(), fmt.Errorf("receive answer stream: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		content := chunk.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		full.WriteString(content)
		if err := emitAll(emit, content); err != nil {
			return full.String(), err
		}
	}
	return full.String(), nil
}

func (f *OpenAIFormatter) buildPrompt(req Request) (string, error) {
	rows := req.Rows
	truncated := req.Truncated
	if len(rows) > f.promptRows {
		rows = rows[:f.promptRows]
		truncated = true
	}
	encoded, err := json.Marshal(map[string]any{"columns": req.Columns, "rows": rows})
	if err != nil {
		return "", fmt.Errorf("encode result rows: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Pregunta: %s\n", strings.TrimSpace(req.Question))
	fmt.Fprintf(&b, "SQL ejecutada: %s\n", req.SQL)
	fmt.Fprintf(&b, "Resultados (%d filas): %s", len(req.Rows), encoded)
	if truncated {
		b.WriteString("\nLos resultados están truncados; acláralo en la respuesta.")
	}
	return b.String(), nil
}
