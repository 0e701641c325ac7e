package batallactl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type streamOptions struct {
	showSQL bool
	quiet   bool
}

type streamEvent struct {
	Status   string            `json:"status"`
	Step     string            `json:"step"`
	Message  string            `json:"message"`
	Content  string            `json:"content"`
	SQL      string            `json:"sql"`
	Code     string            `json:"code"`
	RowCount int               `json:"row_count"`
	Entities map[string]string `json:"entities"`
}

func streamChat(ctx context.Context, client *http.Client, endpoint, apiKey string, body []byte, opts streamOptions, stdout, stderr io.Writer) int {
	req, err := newRequest(ctx, http.MethodPost, endpoint, apiKey, body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		responseBody, _ := io.ReadAll(resp.Body)
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", resp.StatusCode, strings.TrimSpace(string(responseBody)))
		return 1
	}

	var eventName string
	streamed := false
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			var event streamEvent
			if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &event); err != nil {
				_, _ = fmt.Fprintf(stderr, "invalid event data: %v\n", err)
				return 1
			}
			if eventName == "" {
				eventName = eventFromStatus(event.Status)
			}
			switch eventName {
			case "progress":
				if !opts.quiet {
					_, _ = fmt.Fprintf(stderr, "… %s\n", event.Message)
				}
			case "chunk":
				streamed = true
				_, _ = io.WriteString(stdout, event.Content)
			case "result":
				if !streamed {
					_, _ = io.WriteString(stdout, event.Content)
				}
				_, _ = fmt.Fprintln(stdout)
				if opts.showSQL {
					_, _ = fmt.Fprintf(stdout, "\nSQL (%d filas):\n%s\n", event.RowCount, event.SQL)
				}
				return 0
			case "error":
				if streamed {
					_, _ = fmt.Fprintln(stdout)
				}
				_, _ = fmt.Fprintf(stderr, "error %s: %s\n", event.Code, event.Message)
				return 1
			}
		case line == "":
			eventName = ""
		}
	}
	if err := scanner.Err(); err != nil {
		_, _ = fmt.Fprintf(stderr, "read stream: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stderr, "stream ended without a result")
	return 1
}

func eventFromStatus(status string) string {
	switch status {
	case "progress":
		return "progress"
	case "streaming":
		return "chunk"
	case "done":
		return "result"
	default:
		return "error"
	}
}
