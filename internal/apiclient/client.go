package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/model"
)

// APIError is a non-2xx answer from the backend. Message is the backend's
// own text and is meant to be shown to the user unchanged.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client talks to the job backend over HTTP
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger
}

type Option func(*Client)

// WithToken sends Authorization: Bearer <token> on every request
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for the API rooted at baseURL, e.g. http://localhost:8000/api
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateJob submits an instruction and returns the accepted job
func (c *Client) CreateJob(ctx context.Context, instruction string) (*model.JobAcceptedResponse, error) {
	req := model.GeneratePlanRequest{Instruction: instruction}
	var result model.JobAcceptedResponse
	if err := c.send(ctx, http.MethodPost, "/generate-plan", req, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetJob fetches the authoritative job record
func (c *Client) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	var job model.Job
	if err := c.send(ctx, http.MethodGet, "/status/"+url.PathEscape(jobID), nil, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetPlan fetches the saved plan and its revision
func (c *Client) GetPlan(ctx context.Context, jobID string) (*model.TaskPlan, int, error) {
	var plan model.TaskPlan
	header := http.Header{}
	if err := c.sendWithHeaders(ctx, http.MethodGet, "/task-plan/"+url.PathEscape(jobID), nil, nil, &plan, header); err != nil {
		return nil, 0, err
	}
	rev, _ := ParseRevision(header.Get("ETag"))
	return &plan, rev, nil
}

// SavePlan replaces the job's plan. baseRevision is sent as If-Match; zero
// means the draft was derived from an unversioned plan and no precondition
// is sent.
func (c *Client) SavePlan(ctx context.Context, jobID string, plan model.TaskPlan, baseRevision int) (int, error) {
	headers := map[string]string{}
	if baseRevision > 0 {
		headers["If-Match"] = FormatRevision(baseRevision)
	}
	var result model.PlanUpdateResponse
	if err := c.send(ctx, http.MethodPut, "/task-plan/"+url.PathEscape(jobID), plan, headers, &result); err != nil {
		return 0, err
	}
	if !result.Success {
		return 0, &APIError{StatusCode: http.StatusOK, Message: result.Message}
	}
	return result.PlanRevision, nil
}

// Execute starts recording the saved plan
func (c *Client) Execute(ctx context.Context, jobID string) (*model.JobAcceptedResponse, error) {
	var result model.JobAcceptedResponse
	if err := c.send(ctx, http.MethodPost, "/execute/"+url.PathEscape(jobID), nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Regenerate records the saved plan again, replacing the previous video
func (c *Client) Regenerate(ctx context.Context, jobID string) (*model.JobAcceptedResponse, error) {
	var result model.JobAcceptedResponse
	if err := c.send(ctx, http.MethodPost, "/regenerate/"+url.PathEscape(jobID), nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListJobs returns every job the backend knows, newest first
func (c *Client) ListJobs(ctx context.Context) ([]*model.Job, error) {
	var result model.JobListResponse
	if err := c.send(ctx, http.MethodGet, "/jobs", nil, nil, &result); err != nil {
		return nil, err
	}
	return result.Jobs, nil
}

// DownloadURL is the attachment URL for a finished video
func (c *Client) DownloadURL(filename string) string {
	return c.baseURL + "/download/" + url.PathEscape(filename)
}

// Download streams a finished video into w
func (c *Client) Download(ctx context.Context, filename string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.DownloadURL(filename), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return 0, decodeError(resp.StatusCode, body)
	}
	return io.Copy(w, resp.Body)
}

func (c *Client) send(ctx context.Context, method, endpoint string, body interface{}, headers map[string]string, result interface{}) error {
	return c.sendWithHeaders(ctx, method, endpoint, body, headers, result, nil)
}

// sendWithHeaders performs the request and decodes a JSON answer into result.
// Response headers are copied into respHeader when it is non-nil.
func (c *Client) sendWithHeaders(ctx context.Context, method, endpoint string, body interface{}, headers map[string]string, result interface{}, respHeader http.Header) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	c.authorize(req)

	c.logger.Debug("api request", "method", method, "url", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("api response", "method", method, "url", req.URL.String(), "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, respBody)
	}

	if respHeader != nil {
		for k, v := range resp.Header {
			respHeader[k] = v
		}
	}

	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// decodeError builds an APIError from an error body. Both {"error": "..."}
// and {"detail": "..."} envelopes are understood; anything else is used raw.
func decodeError(status int, body []byte) *APIError {
	var envelope struct {
		Error  json.RawMessage `json:"error"`
		Code   string          `json:"code"`
		Detail json.RawMessage `json:"detail"`
	}
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(body, &envelope); err == nil {
		apiErr.Code = envelope.Code
		if msg := rawText(envelope.Error); msg != "" {
			apiErr.Message = msg
			return apiErr
		}
		if msg := rawText(envelope.Detail); msg != "" {
			apiErr.Message = msg
			return apiErr
		}
	}
	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && nested.Message != "" {
		return nested.Message
	}
	return string(raw)
}

// FormatRevision renders a plan revision as an entity tag
func FormatRevision(rev int) string {
	return strconv.Quote(strconv.Itoa(rev))
}

// ParseRevision reads a revision from an ETag or If-Match value
func ParseRevision(tag string) (int, error) {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimPrefix(tag, "W/")
	tag = strings.Trim(tag, `"`)
	return strconv.Atoi(tag)
}
