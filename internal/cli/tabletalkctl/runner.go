package tabletalkctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
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

type loadPayload struct {
	Name      string `json:"name,omitempty"`
	CSV       string `json:"csv,omitempty"`
	ObjectKey string `json:"object_key,omitempty"`
	PGTable   string `json:"pg_table,omitempty"`
}

type askPayload struct {
	Question string `json:"question"`
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("tabletalkctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "TableTalk API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 10s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	command := strings.TrimSpace(fs.Arg(0))
	rest := fs.Args()[1:]

	var method, path string
	var body []byte
	switch command {
	case "health":
		method, path = http.MethodGet, "/v1/health"
	case "ready":
		method, path = http.MethodGet, "/v1/ready"
	case "create-session":
		sub := flag.NewFlagSet("create-session", flag.ContinueOnError)
		sub.SetOutput(stderr)
		demo := sub.Bool("demo", false, "preload the bundled demo dataset")
		if err := sub.Parse(rest); err != nil {
			return 2
		}
		method, path = http.MethodPost, "/v1/sessions"
		if *demo {
			body = []byte(`{"demo":true}`)
		}
	case "load":
		sessionID, loadBody, exit := parseLoad(rest, stderr)
		if exit != 0 {
			return exit
		}
		method, path = http.MethodPost, "/v1/sessions/"+sessionID+"/dataset"
		body = loadBody
	case "ask":
		sessionID, ok := sessionArg(command, rest, stderr)
		if !ok {
			return 2
		}
		question := strings.TrimSpace(strings.Join(rest[1:], " "))
		if question == "" {
			_, _ = fmt.Fprintf(stderr, "ask needs a question, e.g. tabletalkctl ask <session> total sales by region\n")
			return 2
		}
		method, path = http.MethodPost, "/v1/sessions/"+sessionID+"/ask"
		body, _ = json.Marshal(askPayload{Question: question})
	case "schema":
		sessionID, ok := sessionArg(command, rest, stderr)
		if !ok {
			return 2
		}
		method, path = http.MethodGet, "/v1/sessions/"+sessionID+"/schema"
	case "summary":
		sessionID, ok := sessionArg(command, rest, stderr)
		if !ok {
			return 2
		}
		method, path = http.MethodGet, "/v1/sessions/"+sessionID+"/summary"
	case "close":
		sessionID, ok := sessionArg(command, rest, stderr)
		if !ok {
			return 2
		}
		method, path = http.MethodDelete, "/v1/sessions/"+sessionID
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	endpoint := strings.TrimRight(*baseURL, "/") + path
	status, responseBody, err := doRequest(ctx, client, method, endpoint, *apiKey, body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if status >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", status, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if trimmed := bytes.TrimSpace(responseBody); len(trimmed) > 0 {
		_, _ = stdout.Write(trimmed)
		_, _ = io.WriteString(stdout, "\n")
	}
	return 0
}

// Load flags come before the session ID; flag parsing stops at the first
// positional argument.
func parseLoad(args []string, stderr io.Writer) (string, []byte, int) {
	sub := flag.NewFlagSet("load", flag.ContinueOnError)
	sub.SetOutput(stderr)
	objectKey := sub.String("object", "", "object store key (.csv or .parquet) to load")
	pgTable := sub.String("pg-table", "", "Postgres table to import, e.g. public.orders")
	name := sub.String("name", "", "dataset name override")
	if err := sub.Parse(args); err != nil {
		return "", nil, 2
	}
	sessionID, ok := sessionArg("load", sub.Args(), stderr)
	if !ok {
		return "", nil, 2
	}

	payload := loadPayload{
		Name:      strings.TrimSpace(*name),
		ObjectKey: strings.TrimSpace(*objectKey),
		PGTable:   strings.TrimSpace(*pgTable),
	}
	sources := 0
	if payload.ObjectKey != "" {
		sources++
	}
	if payload.PGTable != "" {
		sources++
	}
	if sub.NArg() > 1 {
		sources++
	}
	if sources != 1 {
		_, _ = fmt.Fprintln(stderr, "load needs exactly one source: a CSV file, -object or -pg-table")
		return "", nil, 2
	}

	if sub.NArg() > 1 {
		file := sub.Arg(1)
		raw, err := os.ReadFile(file)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "read %s: %v\n", file, err)
			return "", nil, 1
		}
		payload.CSV = string(raw)
		if payload.Name == "" {
			base := filepath.Base(file)
			payload.Name = strings.TrimSuffix(base, filepath.Ext(base))
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "encode request: %v\n", err)
		return "", nil, 1
	}
	return sessionID, body, 0
}

func sessionArg(command string, args []string, stderr io.Writer) (string, bool) {
	if len(args) < 1 || strings.TrimSpace(args[0]) == "" {
		_, _ = fmt.Fprintf(stderr, "%s needs a session ID\n\n", command)
		writeUsage(stderr)
		return "", false
	}
	return strings.TrimSpace(args[0]), true
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
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

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: tabletalkctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                       GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                        GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  create-session [-demo]       POST /v1/sessions")
	_, _ = fmt.Fprintln(w, "  load <session> [file.csv]    POST /v1/sessions/{id}/dataset")
	_, _ = fmt.Fprintln(w, "  ask <session> <question...>  POST /v1/sessions/{id}/ask")
	_, _ = fmt.Fprintln(w, "  schema <session>             GET /v1/sessions/{id}/schema")
	_, _ = fmt.Fprintln(w, "  summary <session>            GET /v1/sessions/{id}/summary")
	_, _ = fmt.Fprintln(w, "  close <session>              DELETE /v1/sessions/{id}")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "load flags (before the session ID):")
	_, _ = fmt.Fprintln(w, "  -object <key>     load a .csv or .parquet object instead of a file")
	_, _ = fmt.Fprintln(w, "  -pg-table <ref>   import a Postgres table instead of a file")
	_, _ = fmt.Fprintln(w, "  -name <name>      override the dataset name")
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
