package aiservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"knowledge-hub/internal/shared/apperr"
	"knowledge-hub/internal/shared/resilience"
	"knowledge-hub/internal/shared/telemetry"
)

const (
	processPath   = "/api/v1/process"
	maxErrorBody  = 512
	maxAnswerBody = 4 << 20

	opProcess = "ai.process"
	opQuery   = "ai.query"
)

// Counter records call outcomes. metrics.Registry implements it.
type Counter interface {
	IncAIRequest(operation, outcome string)
}

// Options configures the AI service client.
type Options struct {
	BaseURL  string
	QueryURL string
	Timeout  time.Duration

	// OAuth2 client credentials. All three must be set to enable the token transport.
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// Client talks to the external processing and query service.
type Client struct {
	processURL string
	queryURL   string
	httpClient *http.Client
	exec       *resilience.Executor
	metrics    Counter
}

// ProcessRequest asks the AI service to ingest one file.
type ProcessRequest struct {
	FileID         string `json:"file_id"`
	UserID         string `json:"user_id"`
	DocumentID     string `json:"document_id"`
	SourceType     string `json:"source_type"`
	SourceLocation string `json:"source_location"`
	WebhookURL     string `json:"webhook_url"`
}

// QueryRequest is a question scoped to a document.
type QueryRequest struct {
	UserID      string   `json:"user_id"`
	DocumentID  string   `json:"document_id"`
	DocumentIDs []string `json:"document_ids"`
	Question    string   `json:"question"`
}

func NewClient(opts Options, exec *resilience.Executor, metrics Counter) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("AI_SERVICE_URL is required")
	}
	queryURL := strings.TrimSpace(opts.QueryURL)
	if queryURL == "" {
		queryURL = base + "/api/v1/query"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultPolicy())
	}

	httpClient := &http.Client{Timeout: timeout}
	if opts.TokenURL != "" && opts.ClientID != "" && opts.ClientSecret != "" {
		cc := clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     opts.TokenURL,
		}
		// The token source caches and refreshes tokens for the life of the client.
		httpClient = cc.Client(context.Background())
		httpClient.Timeout = timeout
	}

	return &Client{
		processURL: base + processPath,
		queryURL:   queryURL,
		httpClient: httpClient,
		exec:       exec,
		metrics:    metrics,
	}, nil
}

// Process submits a file for processing. Only acceptance is awaited.
func (c *Client) Process(ctx context.Context, req ProcessRequest) error {
	_, err := c.call(ctx, opProcess, c.processURL, req)
	return err
}

// Query relays a question and returns the upstream JSON body unchanged.
func (c *Client) Query(ctx context.Context, req QueryRequest) (json.RawMessage, error) {
	if len(req.DocumentIDs) == 0 && req.DocumentID != "" {
		req.DocumentIDs = []string{req.DocumentID}
	}
	body, err := c.call(ctx, opQuery, c.queryURL, req)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		c.count(opQuery, "invalid_body")
		return nil, &apperr.DispatchError{Operation: opQuery, Err: errors.New("upstream returned invalid JSON")}
	}
	return json.RawMessage(body), nil
}

func (c *Client) call(ctx context.Context, operation, url string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", operation, err)
	}

	var body []byte
	err = c.exec.Do(ctx, operation, func(ctx context.Context) error {
		var attemptErr error
		body, attemptErr = c.post(ctx, operation, url, encoded)
		return attemptErr
	}, classify)
	if err != nil {
		if resilience.IsCircuitOpen(err) {
			c.count(operation, "circuit_open")
			return nil, &apperr.DispatchError{Operation: operation, StatusCode: http.StatusServiceUnavailable, Err: err}
		}
		var dispatchErr *apperr.DispatchError
		if !errors.As(err, &dispatchErr) {
			dispatchErr = &apperr.DispatchError{Operation: operation, Err: err}
		}
		c.count(operation, "failed")
		telemetry.Error("ai.request_failed", map[string]any{
			"operation":   operation,
			"status_code": dispatchErr.StatusCode,
			"body":        dispatchErr.Body,
			"error":       err.Error(),
		})
		return nil, dispatchErr
	}
	c.count(operation, "ok")
	return body, nil
}

func (c *Client) post(ctx context.Context, operation, url string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &apperr.DispatchError{Operation: operation, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperr.DispatchError{Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswerBody))
	if err != nil {
		return nil, &apperr.DispatchError{Operation: operation, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apperr.DispatchError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), maxErrorBody),
		}
	}
	return body, nil
}

// classify retries transport failures and gateway-style upstream statuses.
func classify(err error) resilience.Outcome {
	if errors.Is(err, context.Canceled) {
		return resilience.Outcome{}
	}
	var dispatchErr *apperr.DispatchError
	if !errors.As(err, &dispatchErr) {
		return resilience.Outcome{CountFailure: true}
	}
	switch dispatchErr.StatusCode {
	case 0, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return resilience.Outcome{Retry: true, CountFailure: true}
	case http.StatusTooManyRequests, http.StatusInternalServerError:
		return resilience.Outcome{CountFailure: true}
	default:
		// Upstream rejected the request itself; the service is healthy.
		return resilience.Outcome{}
	}
}

func (c *Client) count(operation, outcome string) {
	if c.metrics != nil {
		c.metrics.IncAIRequest(operation, outcome)
	}
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
