package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rapbattles/batalla/internal/auth"
	"github.com/rapbattles/batalla/internal/chat"
	"github.com/rapbattles/batalla/internal/nl2sql"
	"github.com/rapbattles/batalla/internal/observability"
)

// statusClientClosedRequest is the nginx convention for a client that went
// away before the answer was ready.
const statusClientClosedRequest = 499

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Message  string        `json:"message"`
	Messages []chatMessage `json:"messages"`
}

// toChatRequest picks the last non-empty user message as the question and
// keeps up to historyLimit earlier turns as conversation history.
func (r chatRequest) toChatRequest(historyLimit int) (chat.Request, error) {
	if len(r.Messages) == 0 {
		question := strings.TrimSpace(r.Message)
		if question == "" {
			return chat.Request{}, errors.New("message is required")
		}
		return chat.Request{Question: question}, nil
	}

	questionIndex := -1
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" && strings.TrimSpace(r.Messages[i].Content) != "" {
			questionIndex = i
			break
		}
	}
	if questionIndex < 0 {
		return chat.Request{}, errors.New("messages must contain a non-empty user message")
	}

	var history []nl2sql.Message
	for _, message := range r.Messages[:questionIndex] {
		content := strings.TrimSpace(message.Content)
		if content == "" {
			continue
		}
		switch message.Role {
		case "user", "assistant":
			history = append(history, nl2sql.Message{Role: message.Role, Content: content})
		}
	}
	if historyLimit >= 0 && len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	return chat.Request{
		Question: strings.TrimSpace(r.Messages[questionIndex].Content),
		History:  history,
	}, nil
}

func decodeChatRequest(deps Dependencies, historyLimit int, w http.ResponseWriter, r *http.Request) (chat.Request, bool) {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat service is not configured", false, nil)
		return chat.Request{}, false
	}
	if err := requireRole(r, auth.RoleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return chat.Request{}, false
	}
	var body chatRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid chat request body", false, map[string]any{"details": err.Error()})
		return chat.Request{}, false
	}
	request, err := body.toChatRequest(historyLimit)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, chat.CodeInvalidRequest, err.Error(), false, nil)
		return chat.Request{}, false
	}
	return request, true
}

func handleChat(deps Dependencies, historyLimit int, w http.ResponseWriter, r *http.Request) {
	request, ok := decodeChatRequest(deps, historyLimit, w, r)
	if !ok {
		return
	}

	stream := newSSEWriter(w)
	err := deps.Chat.Stream(r.Context(), request, func(event chat.Event) error {
		return stream.Send(string(event.Type), event.Data())
	})
	if err != nil {
		deps.Logger.WarnContext(r.Context(), "chat stream ended with error",
			slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
			slog.String("code", chat.Code(err)),
			slog.String("error", err.Error()),
		)
	}
}

func handleQuery(deps Dependencies, historyLimit int, w http.ResponseWriter, r *http.Request) {
	request, ok := decodeChatRequest(deps, historyLimit, w, r)
	if !ok {
		return
	}

	result, err := deps.Chat.Query(r.Context(), request)
	if err != nil {
		code := chat.Code(err)
		status, retryable := errorStatus(code)
		writeError(r.Context(), w, status, code, chat.Message(err), retryable, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func handleEntities(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat service is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid entities request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, chat.CodeInvalidRequest, "message is required", false, nil)
		return
	}

	result := deps.Chat.Extract(body.Message)
	writeJSON(w, http.StatusOK, map[string]any{
		"normalized": result.Normalized,
		"entities":   result.Entities,
		"matches":    result.Matches,
	})
}

func errorStatus(code string) (int, bool) {
	switch code {
	case chat.CodeInvalidRequest, chat.CodeInvalidSQL, chat.CodeQueryExecutionFailed:
		return http.StatusBadRequest, false
	case chat.CodeSQLGenerationFailed, chat.CodeAnswerFailed:
		return http.StatusBadGateway, true
	case chat.CodeRequestCanceled:
		return statusClientClosedRequest, false
	default:
		return http.StatusInternalServerError, false
	}
}
