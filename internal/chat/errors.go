package chat

import (
	"context"
	"errors"
	"fmt"
)

var ErrEmptyQuestion = errors.New("question is required")

const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeInvalidSQL           = "INVALID_SQL"
	CodeSQLGenerationFailed  = "SQL_GENERATION_FAILED"
	CodeQueryExecutionFailed = "QUERY_EXECUTION_FAILED"
	CodeAnswerFailed         = "ANSWER_FAILED"
	CodeRequestCanceled      = "REQUEST_CANCELED"
	CodeInternal             = "INTERNAL"
)

type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

func Code(err error) string {
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		return CodeInternal
	}
	if errors.Is(err, context.Canceled) {
		return CodeRequestCanceled
	}
	switch stageErr.Stage {
	case StagePreprocess:
		if errors.Is(err, ErrEmptyQuestion) {
			return CodeInvalidRequest
		}
		return CodeInternal
	case StageValidateSQL:
		return CodeInvalidSQL
	case StageGenerateSQL:
		return CodeSQLGenerationFailed
	case StageExecuteSQL:
		return CodeQueryExecutionFailed
	case StageFormatAnswer:
		return CodeAnswerFailed
	default:
		return CodeInternal
	}
}

func Message(err error) string {
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		return "Error interno al procesar la pregunta"
	}
	switch Code(err) {
	case CodeInvalidRequest:
		return "La pregunta está vacía"
	case CodeInvalidSQL:
		return fmt.Sprintf("La consulta generada no es válida: %v", stageErr.Err)
	case CodeSQLGenerationFailed:
		return "No se pudo generar la consulta SQL"
	case CodeQueryExecutionFailed:
		return fmt.Sprintf("Error al ejecutar la consulta: %v", stageErr.Err)
	case CodeAnswerFailed:
		return "No se pudo redactar la respuesta"
	case CodeRequestCanceled:
		return "La solicitud fue cancelada"
	default:
		return "Error interno al procesar la pregunta"
	}
}
