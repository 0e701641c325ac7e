package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rapbattles/batalla/internal/answer"
	"github.com/rapbattles/batalla/internal/entities"
	"github.com/rapbattles/batalla/internal/nl2sql"
	"github.com/rapbattles/batalla/internal/observability"
	"github.com/rapbattles/batalla/internal/query"
	"github.com/rapbattles/batalla/internal/reference"
	"github.com/rapbattles/batalla/internal/sqlguard"
)

type ReferenceValues interface {
	Values() reference.Values
}

type SchemaDescriber interface {
	DescribeSchema(ctx context.Context) (string, error)
}

type Request struct {
	Question string
	History  []nl2sql.Message
}

type EmitFunc func(Event) error

type Dependencies struct {
	Extractor  *entities.Extractor
	References ReferenceValues
	Schema     SchemaDescriber
	Translator nl2sql.Translator
	Engine     query.Engine
	Formatter  answer.Formatter
	Examples   []nl2sql.Example
	RowLimit   int
	Logger     *slog.Logger
}

type Service struct {
	extractor  *entities.Extractor
	references ReferenceValues
	describer  SchemaDescriber
	translator nl2sql.Translator
	engine     query.Engine
	formatter  answer.Formatter
	examples   []nl2sql.Example
	rowLimit   int
	logger     *slog.Logger

	schemaMu sync.Mutex
	schema   string
}

func NewService(deps Dependencies) (*Service, error) {
	switch {
	case deps.Extractor == nil:
		return nil, fmt.Errorf("entity extractor is required")
	case deps.References == nil:
		return nil, fmt.Errorf("reference values are required")
	case deps.Translator == nil:
		return nil, fmt.Errorf("translator is required")
	case deps.Engine == nil:
		return nil, fmt.Errorf("query engine is required")
	}
	formatter := deps.Formatter
	if formatter == nil {
		formatter = answer.TableFormatter{MaxRows: deps.RowLimit}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		extractor:  deps.Extractor,
		references: deps.References,
		describer:  deps.Schema,
		translator: deps.Translator,
		engine:     deps.Engine,
		formatter:  formatter,
		examples:   deps.Examples,
		rowLimit:   deps.RowLimit,
		logger:     logger,
	}, nil
}

func (s *Service) Extract(question string) entities.Result {
	return s.extractor.Extract(question, s.references.Values())
}

// Stream runs the whole pipeline and reports it through emit. Exactly one
// terminal event is emitted: result on success, error otherwise.
func (s *Service) Stream(ctx context.Context, req Request, emit EmitFunc) error {
	result, err := s.run(ctx, req, true, emit)
	s.observe("chat", err)
	if err != nil {
		_ = emit(Event{Type: EventError, Code: Code(err), Message: Message(err)})
		return err
	}
	return emit(Event{Type: EventResult, Answer: &result})
}

func (s *Service) Ask(ctx context.Context, req Request) (Answer, error) {
	result, err := s.run(ctx, req, true, nil)
	s.observe("ask", err)
	return result, err
}

func (s *Service) Query(ctx context.Context, req Request) (Answer, error) {
	result, err := s.run(ctx, req, false, nil)
	s.observe("query", err)
	return result, err
}

func (s *Service) InvalidateSchema() {
	s.schemaMu.Lock()
	s.schema = ""
	s.schemaMu.Unlock()
}

func (s *Service) run(ctx context.Context, req Request, withAnswer bool, emit EmitFunc) (Answer, error) {
	start := time.Now()
	if emit == nil {
		emit = func(Event) error { return nil }
	}
	progress := func(stage Stage) error {
		if err := emit(Event{Type: EventProgress, Step: stage, Message: stageMessages[stage]}); err != nil {
			return stageError(stage, err)
		}
		return nil
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return Answer{}, stageError(StagePreprocess, ErrEmptyQuestion)
	}
	if err := progress(StagePreprocess); err != nil {
		return Answer{}, err
	}
	extraction := s.Extract(question)
	for _, match := range extraction.Matches {
		observability.ObserveEntityMatch(match.Entity, string(match.Method))
	}
	s.logger.DebugContext(ctx, "entities extracted",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("normalized", extraction.Normalized),
		slog.Any("entities", extraction.Entities),
	)

	if err := progress(StageGenerateSQL); err != nil {
		return Answer{}, err
	}
	llmStart := time.Now()
	generated, err := s.translator.Translate(ctx, nl2sql.Request{
		Question:           question,
		NormalizedQuestion: extraction.Normalized,
		Entities:           extraction.Entities,
		Schema:             s.describeSchema(ctx),
		Examples:           s.examples,
		History:            req.History,
	})
	observability.ObserveLLMLatency(string(StageGenerateSQL), time.Since(llmStart))
	if err != nil {
		s.logger.ErrorContext(ctx, "sql generation failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("error", err.Error()),
		)
		return Answer{}, stageError(StageGenerateSQL, err)
	}
	s.logger.DebugContext(ctx, "sql generated",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("model", generated.Model),
		slog.String("sql", generated.SQL),
	)

	if err := progress(StageValidateSQL); err != nil {
		return Answer{}, err
	}
	statement, err := sqlguard.Validate(generated.SQL)
	if err != nil {
		reason := sqlguard.Reason(err)
		observability.IncrementSQLRejection(reason)
		s.logger.WarnContext(ctx, "sql rejected",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("reason", reason),
			slog.String("sql", generated.SQL),
		)
		return Answer{}, stageError(StageValidateSQL, err)
	}

	if err := progress(StageExecuteSQL); err != nil {
		return Answer{}, err
	}
	executed, err := s.engine.Execute(ctx, query.Request{SQL: statement, RowLimit: s.rowLimit})
	if err != nil {
		s.logger.ErrorContext(ctx, "sql execution failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("sql", statement),
			slog.String("error", err.Error()),
		)
		return Answer{}, stageError(StageExecuteSQL, err)
	}
	observability.ObserveQueryDuration(executed.Duration)

	result := Answer{
		Question:           question,
		NormalizedQuestion: extraction.Normalized,
		Entities:           extraction.Entities,
		Matches:            extraction.Matches,
		SQL:                statement,
		Columns:            executed.Columns,
		Rows:               executed.Rows,
		RowCount:           len(executed.Rows),
		Truncated:          executed.Truncated,
	}

	if withAnswer {
		if err := progress(StageFormatAnswer); err != nil {
			return Answer{}, err
		}
		formatStart := time.Now()
		content, err := s.formatter.Format(ctx, answer.Request{
			Question:  question,
			SQL:       statement,
			Columns:   executed.Columns,
			Rows:      executed.Rows,
			Truncated: executed.Truncated,
		}, func(chunk string) error {
			return emit(Event{Type: EventChunk, Content: chunk})
		})
		observability.ObserveLLMLatency(string(StageFormatAnswer), time.Since(formatStart))
		if err != nil {
			s.logger.ErrorContext(ctx, "answer formatting failed",
				slog.String("trace_id", observability.TraceIDFromContext(ctx)),
				slog.String("error", err.Error()),
			)
			return Answer{}, stageError(StageFormatAnswer, err)
		}
		result.Content = content
	}

	result.DurationMS = time.Since(start).Milliseconds()
	return result, nil
}

func (s *Service) describeSchema(ctx context.Context) string {
	if s.describer == nil {
		return nl2sql.DefaultSchema
	}
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schema != "" {
		return s.schema
	}
	described, err := s.describer.DescribeSchema(ctx)
	if err != nil || strings.TrimSpace(described) == "" {
		s.logger.WarnContext(ctx, "schema introspection failed, using static schema", slog.Any("error", err))
		return nl2sql.DefaultSchema
	}
	s.schema = described
	return described
}

func (s *Service) observe(endpoint string, err error) {
	outcome := "done"
	if err != nil {
		outcome = "error"
		var stageErr *StageError
		if errors.As(err, &stageErr) {
			outcome = string(stageErr.Stage)
		}
	}
	observability.ObserveChatRequest(endpoint, outcome)
}
