// Package apiclient talks to the mock-exam HTTP API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mind-engage/ielts-mock/internal/checkpoint"
	"github.com/mind-engage/ielts-mock/internal/exam"
	"github.com/mind-engage/ielts-mock/internal/notes"
)

// StatusError is a non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.Code, e.Message)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

type Client struct {
	httpClient    *http.Client
	baseURL       string
	beaconTimeout time.Duration

	mu    sync.RWMutex
	token string

	beacons sync.WaitGroup
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

func WithBeaconTimeout(d time.Duration) Option { return func(c *Client) { c.beaconTimeout = d } }

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		beaconTimeout: 2 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) SetToken(tok string) {
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role,omitempty"`
	Username    string `json:"username,omitempty"`
}

// Login authenticates with a password and keeps the token for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp tokenResponse
	body := map[string]string{"username": username, "password": password}
	if err := c.doRequest(ctx, http.MethodPost, "/auth/login", body, &resp); err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	c.SetToken(resp.AccessToken)
	return resp.Role, nil
}

// Guest starts an anonymous candidate session.
func (c *Client) Guest(ctx context.Context) (string, error) {
	var resp tokenResponse
	if err := c.doRequest(ctx, http.MethodPost, "/auth/guest", nil, &resp); err != nil {
		return "", fmt.Errorf("guest login failed: %w", err)
	}
	c.SetToken(resp.AccessToken)
	return resp.Username, nil
}

func (c *Client) GetTest(ctx context.Context, testID string) (exam.Test, error) {
	var t exam.Test
	if err := c.doRequest(ctx, http.MethodGet, "/api/tests/"+url.PathEscape(testID), nil, &t); err != nil {
		return exam.Test{}, fmt.Errorf("get test: %w", err)
	}
	return t, nil
}

func (c *Client) CreateRun(ctx context.Context, module exam.Module, testID string) (exam.Attempt, error) {
	var a exam.Attempt
	err := c.doRequest(ctx, http.MethodPost, "/api/mock/"+string(module)+"/runs",
		map[string]string{"testId": testID}, &a)
	if err != nil {
		return exam.Attempt{}, fmt.Errorf("create run: %w", err)
	}
	return a, nil
}

func attemptPath(module exam.Module, attemptID, op string) string {
	return "/api/mock/" + string(module) + "/attempts/" + url.PathEscape(attemptID) + "/" + op
}

func (c *Client) SaveAnswers(ctx context.Context, module exam.Module, attemptID string, answers exam.Answers) (exam.Attempt, error) {
	var a exam.Attempt
	err := c.doRequest(ctx, http.MethodPost, attemptPath(module, attemptID, "answers"),
		map[string]any{"answers": answers}, &a)
	if err != nil {
		return exam.Attempt{}, fmt.Errorf("save answers: %w", err)
	}
	return a, nil
}

// Submit finalizes an attempt. Listening attempts go through the
// dedicated listening endpoint.
func (c *Client) Submit(ctx context.Context, module exam.Module, attemptID string, answers exam.Answers) (exam.Attempt, error) {
	var (
		a    exam.Attempt
		err  error
		body = map[string]any{"answers": answers}
	)
	if module == exam.ModuleListening {
		body["attemptId"] = attemptID
		err = c.doRequest(ctx, http.MethodPost, "/api/listening/submit", body, &a)
	} else {
		err = c.doRequest(ctx, http.MethodPost, attemptPath(module, attemptID, "submit"), body, &a)
	}
	if err != nil {
		return exam.Attempt{}, fmt.Errorf("submit: %w", err)
	}
	return a, nil
}

func (c *Client) SaveCheckpoint(ctx context.Context, snap checkpoint.Snapshot) error {
	if err := c.doRequest(ctx, http.MethodPost, "/api/mock/checkpoints", snap, nil); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (c *Client) GetCheckpoint(ctx context.Context, attemptID string) (checkpoint.Snapshot, error) {
	var snap checkpoint.Snapshot
	err := c.doRequest(ctx, http.MethodGet, "/api/mock/checkpoints?attemptId="+url.QueryEscape(attemptID), nil, &snap)
	if err != nil {
		return checkpoint.Snapshot{}, fmt.Errorf("get checkpoint: %w", err)
	}
	return snap, nil
}

// Beacon posts snap in the background and returns at once. It reports
// whether the request was queued. The body is text/plain and the token
// travels in the query string, mirroring what a page can do while it is
// being unloaded. Failures are dropped.
func (c *Client) Beacon(snap checkpoint.Snapshot) bool {
	buf, err := json.Marshal(snap)
	if err != nil {
		return false
	}
	target := c.baseURL + "/api/mock/checkpoints"
	if tok := c.Token(); tok != "" {
		target += "?access_token=" + url.QueryEscape(tok)
	}
	c.beacons.Add(1)
	go func() {
		defer c.beacons.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.beaconTimeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(buf))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "text/plain;charset=UTF-8")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	return true
}

// WaitBeacons blocks until queued beacons have finished or timed out.
func (c *Client) WaitBeacons() { c.beacons.Wait() }

func (c *Client) CreateNote(ctx context.Context, in notes.CreateInput) (notes.Note, error) {
	var n notes.Note
	if err := c.doRequest(ctx, http.MethodPost, "/api/mock/reading/notes", in, &n); err != nil {
		return notes.Note{}, fmt.Errorf("create note: %w", err)
	}
	return n, nil
}

func (c *Client) UpdateNote(ctx context.Context, id string, in notes.UpdateInput) (notes.Note, error) {
	body := struct {
		ID string `json:"id"`
		notes.UpdateInput
	}{ID: id, UpdateInput: in}
	var n notes.Note
	if err := c.doRequest(ctx, http.MethodPatch, "/api/mock/reading/notes", body, &n); err != nil {
		return notes.Note{}, fmt.Errorf("update note: %w", err)
	}
	return n, nil
}

func (c *Client) DeleteNote(ctx context.Context, id string) error {
	if err := c.doRequest(ctx, http.MethodDelete, "/api/mock/reading/notes?id="+url.QueryEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

func (c *Client) ListNotes(ctx context.Context, attemptID string) ([]notes.Note, error) {
	var out []notes.Note
	if err := c.doRequest(ctx, http.MethodGet, "/api/mock/reading/notes?attemptId="+url.QueryEscape(attemptID), nil, &out); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return out, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
