// Package client talks to the goals backend over HTTP.
package client

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
	"time"

	"golang.org/x/time/rate"

	"goalbreaker/internal/domain"
	"goalbreaker/internal/domain/models/goal"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultHeaderTimeout  = 60 * time.Second
	defaultRateLimit      = rate.Limit(5)
	defaultBurst          = 10
	maxErrorBodyBytes     = 4 << 10
	contentTypeJSON       = "application/json"
	headerAuthorization   = "Authorization"
	headerContentType     = "Content-Type"
	headerAccept          = "Accept"
	acceptPlainTextStream = "text/plain"
)

// StatusError is a non-2xx backend response
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Body)
}

// Is maps well-known statuses onto the domain sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case domain.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case domain.ErrValidation:
		return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
	case domain.ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case domain.ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case domain.ErrConflict:
		return e.StatusCode == http.StatusConflict
	}
	return false
}

// Options tunes a Client. Zero values fall back to defaults.
type Options struct {
	// Token is sent as a bearer token when set.
	Token     string
	Timeout   time.Duration
	RateLimit rate.Limit
	Burst     int
	Transport http.RoundTripper
}

// Client implements the engine's Backend and Streamer against the goals API.
type Client struct {
	baseURL string
	token   string
	limiter *rate.Limiter

	// api has a request timeout; streams must not, they last as long as the model talks
	api    *http.Client
	stream *http.Client
}

func New(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultRateLimit
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}
	transport := opts.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.ResponseHeaderTimeout = defaultHeaderTimeout
		transport = t
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   opts.Token,
		limiter: rate.NewLimiter(opts.RateLimit, opts.Burst),
		api:     &http.Client{Timeout: opts.Timeout, Transport: transport},
		stream:  &http.Client{Transport: transport},
	}
}

// Models returns the model catalog.
func (c *Client) Models(ctx context.Context) ([]goal.ModelInfo, error) {
	models := []goal.ModelInfo{}
	if err := c.doJSON(ctx, http.MethodGet, "/models", nil, &models); err != nil {
		return nil, err
	}
	return models, nil
}

// StreamGoal opens the plain-text answer stream. The caller closes the body.
func (c *Client) StreamGoal(ctx context.Context, req goal.StreamRequest) (io.ReadCloser, error) {
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/stream-goal", req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set(headerAccept, acceptPlainTextStream)

	resp, err := c.send(c.stream, httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp.Body, nil
}

// CreateGoal stores a new conversation and returns its id.
func (c *Client) CreateGoal(ctx context.Context, userID string, payload goal.SavePayload) (string, error) {
	var created goal.CreatedGoal
	if err := c.doJSON(ctx, http.MethodPost, "/goals/"+url.PathEscape(userID), payload, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", errors.New("backend returned no goal id")
	}
	return created.ID, nil
}

// UpdateGoal overwrites a stored conversation.
func (c *Client) UpdateGoal(ctx context.Context, goalID string, payload goal.SavePayload) error {
	return c.doJSON(ctx, http.MethodPut, "/goals/"+url.PathEscape(goalID), payload, nil)
}

// History lists the user's conversations, newest first.
func (c *Client) History(ctx context.Context, userID string) ([]goal.HistoryItem, error) {
	items := []goal.HistoryItem{}
	if err := c.doJSON(ctx, http.MethodGet, "/history/"+url.PathEscape(userID), nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) DeleteGoal(ctx context.Context, goalID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/goals/"+url.PathEscape(goalID), nil, nil)
}

func (c *Client) ClearHistory(ctx context.Context, userID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/history/"+url.PathEscape(userID), nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set(headerAccept, contentTypeJSON)

	resp, err := c.send(c.api, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s %s request: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set(headerContentType, contentTypeJSON)
	}
	if c.token != "" {
		req.Header.Set(headerAuthorization, "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) send(hc *http.Client, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	return resp, nil
}

// statusError reads a bounded part of the body, preferring an RFC 7807 detail.
func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	body := strings.TrimSpace(string(data))

	var problem struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(data, &problem) == nil && problem.Detail != "" {
		body = problem.Detail
	}
	return &StatusError{StatusCode: resp.StatusCode, Body: body}
}
