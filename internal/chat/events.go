package chat

import (
	"github.com/rapbattles/batalla/internal/entities"
)

type Stage string

const (
	StagePreprocess   Stage = "preprocess"
	StageGenerateSQL  Stage = "generate_sql"
	StageValidateSQL  Stage = "validate_sql"
	StageExecuteSQL   Stage = "execute_sql"
	StageFormatAnswer Stage = "format_answer"
)

var stageMessages = map[Stage]string{
	StagePreprocess:   "Analizando la pregunta",
	StageGenerateSQL:  "Generando la consulta SQL",
	StageValidateSQL:  "Validando la consulta",
	StageExecuteSQL:   "Consultando la base de datos",
	StageFormatAnswer: "Redactando la respuesta",
}

type EventType string

const (
	EventProgress EventType = "progress"
	EventChunk    EventType = "chunk"
	EventResult   EventType = "result"
	EventError    EventType = "error"
)

type Event struct {
	Type    EventType
	Step    Stage
	Message string
	Content string
	Answer  *Answer
	Code    string
}

type progressData struct {
	Status  string `json:"status"`
	Step    Stage  `json:"step"`
	Message string `json:"message"`
}

type chunkData struct {
	Status  string `json:"status"`
	Content string `json:"content"`
}

type resultData struct {
	Status    string            `json:"status"`
	Content   string            `json:"content"`
	SQL       string            `json:"sql"`
	Entities  map[string]string `json:"entities"`
	RowCount  int               `json:"row_count"`
	Truncated bool              `json:"truncated"`
}

type errorData struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e Event) Data() any {
	switch e.Type {
	case EventProgress:
		return progressData{Status: "progress", Step: e.Step, Message: e.Message}
	case EventChunk:
		return chunkData{Status: "streaming", Content: e.Content}
	case EventResult:
		answer := e.Answer
		if answer == nil {
			answer = &Answer{}
		}
		return resultData{
			Status:    "done",
			Content:   answer.Content,
			SQL:       answer.SQL,
			Entities:  answer.Entities,
			RowCount:  answer.RowCount,
			Truncated: answer.Truncated,
		}
	default:
		return errorData{Status: "error", Code: e.Code, Message: e.Message}
	}
}

type Answer struct {
	Question           string            `json:"question"`
	NormalizedQuestion string            `json:"normalized_question"`
	Entities           map[string]string `json:"entities"`
	Matches            []entities.Match  `json:"matches"`
	SQL                string            `json:"sql"`
	Columns            []string          `json:"columns"`
	Rows               [][]any           `json:"rows"`
	RowCount           int               `json:"row_count"`
	Truncated          bool              `json:"truncated"`
	Content            string            `json:"content,omitempty"`
	DurationMS         int64             `json:"duration_ms"`
}
