package captcha

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/leadscout/internal/lead"
)

const (
	// DefaultBaseURL is the RuCaptcha API v2 endpoint.
	DefaultBaseURL = "https://api.rucaptcha.com"
	defaultTimeout = 30 * time.Second
	taskType       = "CoordinatesTask"
)

// Task is one coordinate-click solve request.
type Task struct {
	// Body is the challenge image.
	Body []byte
	// Instructions is an optional image with the task prompt.
	Instructions []byte
	// Comment is the text shown to the human solver.
	Comment string
}

// TaskResult is the solver's answer for a submitted task.
type TaskResult struct {
	Ready       bool
	Coordinates []lead.Point
}

// Solver is the remote coordinate-solving service.
type Solver interface {
	CreateTask(ctx context.Context, task Task) (int64, error)
	TaskResult(ctx context.Context, taskID int64) (TaskResult, error)
}

// APIError is a non-zero errorId answer from the solving service.
type APIError struct {
	ID          int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("captcha: api error %d %s: %s", e.ID, e.Code, e.Description)
}

// Unwrap classifies every API error as an external API failure.
func (e *APIError) Unwrap() error {
	return lead.ErrExternalAPI
}

// Client talks to a RuCaptcha-compatible createTask/getTaskResult API.
type Client struct {
	baseURL      string
	apiKey       string
	languagePool string
	httpClient   *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLanguagePool sets the worker language pool ("rn" by default).
func WithLanguagePool(pool string) ClientOption {
	return func(c *Client) {
		c.languagePool = pool
	}
}

// NewClient creates a Client for baseURL (DefaultBaseURL when empty).
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		languagePool: "rn",
		httpClient:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type taskPayload struct {
	Type            string `json:"type"`
	Body            string `json:"body"`
	ImgInstructions string `json:"imginstructions,omitempty"`
	Comment         string `json:"comment,omitempty"`
}

type createTaskRequest struct {
	ClientKey    string      `json:"clientKey"`
	Task         taskPayload `json:"task"`
	LanguagePool string      `json:"languagePool,omitempty"`
}

type apiStatus struct {
	ErrorID          *int   `json:"errorId"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
}

func (s apiStatus) err() error {
	if s.ErrorID == nil {
		return fmt.Errorf("captcha: response missing errorId: %w", lead.ErrExternalAPI)
	}
	if *s.ErrorID != 0 {
		return &APIError{ID: *s.ErrorID, Code: s.ErrorCode, Description: s.ErrorDescription}
	}
	return nil
}

type createTaskResponse struct {
	apiStatus
	TaskID int64 `json:"taskId"`
}

type taskResultRequest struct {
	ClientKey string `json:"clientKey"`
	TaskID    int64  `json:"taskId"`
}

type taskResultResponse struct {
	apiStatus
	Status   string `json:"status"`
	Solution struct {
		Coordinates []struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
		} `json:"coordinates"`
	} `json:"solution"`
}

// CreateTask submits a CoordinatesTask and returns its task ID.
func (c *Client) CreateTask(ctx context.Context, task Task) (int64, error) {
	if len(task.Body) == 0 {
		return 0, fmt.Errorf("captcha: empty challenge image: %w", lead.ErrValidationRejected)
	}
	req := createTaskRequest{
		ClientKey: c.apiKey,
		Task: taskPayload{
			Type:    taskType,
			Body:    base64.StdEncoding.EncodeToString(task.Body),
			Comment: task.Comment,
		},
		LanguagePool: c.languagePool,
	}
	if len(task.Instructions) > 0 {
		req.Task.ImgInstructions = base64.StdEncoding.EncodeToString(task.Instructions)
	}

	var resp createTaskResponse
	if err := c.post(ctx, "/createTask", req, &resp); err != nil {
		return 0, err
	}
	if err := resp.err(); err != nil {
		return 0, err
	}
	if resp.TaskID == 0 {
		return 0, fmt.Errorf("captcha: response missing taskId: %w", lead.ErrExternalAPI)
	}
	return resp.TaskID, nil
}

// TaskResult fetches the current state of a task.
func (c *Client) TaskResult(ctx context.Context, taskID int64) (TaskResult, error) {
	var resp taskResultResponse
	if err := c.post(ctx, "/getTaskResult", taskResultRequest{ClientKey: c.apiKey, TaskID: taskID}, &resp); err != nil {
		return TaskResult{}, err
	}
	if err := resp.err(); err != nil {
		return TaskResult{}, err
	}
	switch resp.Status {
	case "processing":
		return TaskResult{}, nil
	case "ready":
		points := make([]lead.Point, 0, len(resp.Solution.Coordinates))
		for _, c := range resp.Solution.Coordinates {
			points = append(points, lead.Point{X: c.X, Y: c.Y})
		}
		if len(points) == 0 {
			return TaskResult{}, fmt.Errorf("captcha: ready without coordinates: %w", lead.ErrExternalAPI)
		}
		return TaskResult{Ready: true, Coordinates: points}, nil
	default:
		return TaskResult{}, fmt.Errorf("captcha: unexpected status %q: %w", resp.Status, lead.ErrExternalAPI)
	}
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("captcha: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("captcha: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("captcha: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("captcha: read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("captcha: %s returned %d: %w", path, resp.StatusCode, lead.ErrExternalAPI)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("captcha: decode %s response: %w: %w", path, lead.ErrExternalAPI, err)
	}
	return nil
}
