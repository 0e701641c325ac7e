package nl2sql

import (
	"context"
	"errors"
)

var ErrEmptySQL = errors.New("model returned empty SQL")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Example struct {
	Question string `json:"question"`
	SQL      string `json:"sql"`
}

type Request struct {
	Question           string            `json:"question"`
	NormalizedQuestion string            `json:"normalized_question"`
	Entities           map[string]string `json:"entities"`
	Schema             string            `json:"schema"`
	Examples           []Example         `json:"examples"`
	History            []Message         `json:"history"`
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}
