package batallactl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type command struct {
	method   string
	path     string
	question bool
	stream   bool
	usage    string
}

var commands = map[string]command{
	"health":    {method: http.MethodGet, path: "/v1/health", usage: "GET /v1/health"},
	"ready":     {method: http.MethodGet, path: "/v1/ready", usage: "GET /v1/ready"},
	"reference": {method: http.MethodGet, path: "/v1/reference", usage: "GET /v1/reference (-values to include the lists)"},
	"reload":    {method: http.MethodPost, path: "/v1/reference/reload", usage: "POST /v1/reference/reload (admin)"},
	"entities":  {method: http.MethodPost, path: "/v1/entities", question: true, usage: "POST /v1/entities <question>"},
	"query":     {method: http.MethodPost, path: "/v1/query", question: true, usage: "POST /v1/query <question>"},
	"chat":      {method: http.MethodPost, path: "/v1/chat", question: true, stream: true, usage: "POST /v1/chat <question>, streamed"},
}

var commandOrder = []string{"health", "ready", "reference", "reload", "entities", "query", "chat"}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("batallactl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "batalla API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 10*time.Second), "HTTP timeout for non-streaming commands (e.g. 10s)")
	withValues := fs.Bool("values", false, "reference: include the cached values")
	showSQL := fs.Bool("show-sql", false, "chat: print the executed SQL after the answer")
	quiet := fs.Bool("quiet", false, "chat: do not print progress steps")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	name := strings.TrimSpace(fs.Arg(0))
	cmd, ok := commands[name]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		writeUsage(stderr)
		return 2
	}

	var body []byte
	if cmd.question {
		question := strings.TrimSpace(strings.Join(fs.Args()[1:], " "))
		if question == "" {
			_, _ = fmt.Fprintf(stderr, "%s requires a question\n", name)
			return 2
		}
		body = questionBody(name, question)
	}

	path := cmd.path
	if name == "reference" && *withValues {
		path += "?values=true"
	}
	endpoint := strings.TrimRight(*baseURL, "/") + path

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
		if cmd.stream {
			client = &http.Client{}
		}
	}

	if cmd.stream {
		return streamChat(ctx, client, endpoint, *apiKey, body, streamOptions{showSQL: *showSQL, quiet: *quiet}, stdout, stderr)
	}

	code, responseBody, err := doRequest(ctx, client, cmd.method, endpoint, *apiKey, body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func questionBody(name, question string) []byte {
	var payload any = map[string]string{"message": question}
	if name == "chat" {
		payload = map[string]any{"messages": []map[string]string{{"role": "user", "content": question}}}
	}
	encoded, _ := json.Marshal(payload)
	return encoded
}

func newRequest(ctx context.Context, method, url, apiKey string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}
	return req, nil
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey string, body []byte) (int, []byte, error) {
	req, err := newRequest(ctx, method, url, apiKey, body)
	if err != nil {
		return 0, nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: batallactl [flags] <command> [question]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	for _, name := range commandOrder {
		_, _ = fmt.Fprintf(w, "  %-10s %s\n", name, commands[name].usage)
	}
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
