package vapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the public Vapi API endpoint
const DefaultBaseURL = "https://api.vapi.ai"

// ErrNotConfigured is returned when no API key is set
var ErrNotConfigured = errors.New("vapi: API key not configured")

// APIError is returned for any non-2xx response
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vapi: %s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a Vapi 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client handles Vapi API interactions
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a new Vapi client. An empty baseURL selects DefaultBaseURL.
func NewClient(apiKey, baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether the client has an API key
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// do makes an HTTP request to the Vapi API and decodes the JSON response into out
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make %s request to %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("[VAPI] request",
		zap.String("method", method),
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Method: method, Path: endpoint, StatusCode: resp.StatusCode, Body: truncate(string(respBody), 512)}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

// ListCalls lists calls, newest first, optionally filtered by assistant and creation time
func (c *Client) ListCalls(ctx context.Context, params ListCallsParams) ([]Call, error) {
	q := url.Values{}
	if params.AssistantID != "" {
		q.Set("assistantId", params.AssistantID)
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.CreatedAtGt != nil {
		q.Set("createdAtGt", params.CreatedAtGt.UTC().Format(time.RFC3339))
	}
	if params.CreatedAtLt != nil {
		q.Set("createdAtLt", params.CreatedAtLt.UTC().Format(time.RFC3339Nano))
	}

	var calls []Call
	if err := c.do(ctx, http.MethodGet, "/call", q, nil, &calls); err != nil {
		return nil, err
	}
	return calls, nil
}

// GetCall fetches a single call by its Vapi ID
func (c *Client) GetCall(ctx context.Context, id string) (*Call, error) {
	var call Call
	if err := c.do(ctx, http.MethodGet, "/call/"+url.PathEscape(id), nil, nil, &call); err != nil {
		return nil, err
	}
	return &call, nil
}

// ListAssistants lists every assistant in the Vapi organization
func (c *Client) ListAssistants(ctx context.Context) ([]Assistant, error) {
	var assistants []Assistant
	if err := c.do(ctx, http.MethodGet, "/assistant", nil, nil, &assistants); err != nil {
		return nil, err
	}
	return assistants, nil
}

// GetAssistant fetches a single assistant by its Vapi ID
func (c *Client) GetAssistant(ctx context.Context, id string) (*Assistant, error) {
	var a Assistant
	if err := c.do(ctx, http.MethodGet, "/assistant/"+url.PathEscape(id), nil, nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAssistant creates an assistant on Vapi
func (c *Client) CreateAssistant(ctx context.Context, req AssistantRequest) (*Assistant, error) {
	var a Assistant
	if err := c.do(ctx, http.MethodPost, "/assistant", nil, req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateAssistant patches an assistant on Vapi
func (c *Client) UpdateAssistant(ctx context.Context, id string, req AssistantRequest) (*Assistant, error) {
	var a Assistant
	if err := c.do(ctx, http.MethodPatch, "/assistant/"+url.PathEscape(id), nil, req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAssistant deletes an assistant on Vapi
func (c *Client) DeleteAssistant(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/assistant/"+url.PathEscape(id), nil, nil, nil)
}

// ListPhoneNumbers lists every phone number in the Vapi organization
func (c *Client) ListPhoneNumbers(ctx context.Context) ([]PhoneNumber, error) {
	var numbers []PhoneNumber
	if err := c.do(ctx, http.MethodGet, "/phone-number", nil, nil, &numbers); err != nil {
		return nil, err
	}
	return numbers, nil
}

// CreatePhoneNumber buys or imports a phone number on Vapi
func (c *Client) CreatePhoneNumber(ctx context.Context, req PhoneNumberRequest) (*PhoneNumber, error) {
	var n PhoneNumber
	if err := c.do(ctx, http.MethodPost, "/phone-number", nil, req, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// UpdatePhoneNumber patches a phone number on Vapi
func (c *Client) UpdatePhoneNumber(ctx context.Context, id string, req PhoneNumberRequest) (*PhoneNumber, error) {
	var n PhoneNumber
	if err := c.do(ctx, http.MethodPatch, "/phone-number/"+url.PathEscape(id), nil, req, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// DeletePhoneNumber releases a phone number on Vapi
func (c *Client) DeletePhoneNumber(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/phone-number/"+url.PathEscape(id), nil, nil, nil)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
