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

	"github.com/coder/websocket"
	"github.com/cuemby/ember/pkg/api"
	"github.com/cuemby/ember/pkg/balancer"
	"github.com/cuemby/ember/pkg/dispatcher"
	"github.com/cuemby/ember/pkg/events"
	"github.com/cuemby/ember/pkg/manager"
	"github.com/cuemby/ember/pkg/types"
)

const defaultTimeout = 10 * time.Second

// Client talks to an ember HTTP API
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a client for addr, either host:port or a full URL
func NewClient(addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("address is required")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close releases idle connections
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// Error is a non-2xx API response. It unwraps to the matching scheduler
// sentinel so callers can use errors.Is.
type Error struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	switch e.Kind {
	case "no_worker":
		return balancer.ErrNoWorkerAvailable
	case "duplicate_task":
		return balancer.ErrDuplicateTaskID
	case "duplicate_worker":
		return balancer.ErrDuplicateWorkerID
	case "worker_not_found":
		return balancer.ErrWorkerNotFound
	case "task_not_found":
		return balancer.ErrTaskNotFound
	case "invalid_task":
		return balancer.ErrInvalidTask
	case "invalid_config":
		return balancer.ErrInvalidConfig
	case "not_leader":
		return dispatcher.ErrNotLeader
	case "unauthorized":
		return manager.ErrInvalidToken
	default:
		return nil
	}
}

// Submit places a task
func (c *Client) Submit(ctx context.Context, req api.SubmitRequest) (api.AssignmentResponse, error) {
	var out api.AssignmentResponse
	err := c.do(ctx, http.MethodPost, "/v1/tasks", req, &out)
	return out, err
}

// Complete retires a finished task
func (c *Client) Complete(ctx context.Context, worker, task string) error {
	return c.do(ctx, http.MethodPost, taskPath(worker, task, "complete"), nil, nil)
}

// Cancel retires an abandoned task
func (c *Client) Cancel(ctx context.Context, worker, task string) error {
	return c.do(ctx, http.MethodPost, taskPath(worker, task, "cancel"), nil, nil)
}

// ListWorkers returns the pool in scheduling order
func (c *Client) ListWorkers(ctx context.Context) ([]api.WorkerResponse, error) {
	var out []api.WorkerResponse
	err := c.do(ctx, http.MethodGet, "/v1/workers", nil, &out)
	return out, err
}

// GetWorker returns one worker
func (c *Client) GetWorker(ctx context.Context, id string) (api.WorkerResponse, error) {
	var out api.WorkerResponse
	err := c.do(ctx, http.MethodGet, "/v1/workers/"+url.PathEscape(id), nil, &out)
	return out, err
}

// AddWorker registers a worker
func (c *Client) AddWorker(ctx context.Context, req api.AddWorkerRequest) (api.WorkerResponse, error) {
	var out api.WorkerResponse
	err := c.do(ctx, http.MethodPost, "/v1/workers", req, &out)
	return out, err
}

// RemoveWorker removes a worker and reports where its backlog went
func (c *Client) RemoveWorker(ctx context.Context, id string) (api.ReassignmentResponse, error) {
	var out api.ReassignmentResponse
	err := c.do(ctx, http.MethodDelete, "/v1/workers/"+url.PathEscape(id), nil, &out)
	return out, err
}

// UpdateState replaces a worker's state
func (c *Client) UpdateState(ctx context.Context, id string, state types.StateRef) error {
	return c.do(ctx, http.MethodPut, "/v1/workers/"+url.PathEscape(id)+"/state", state, nil)
}

// History returns the retained request records
func (c *Client) History(ctx context.Context) (api.HistoryResponse, error) {
	var out api.HistoryResponse
	err := c.do(ctx, http.MethodGet, "/v1/history", nil, &out)
	return out, err
}

// ClusterInfo describes the Raft cluster
func (c *Client) ClusterInfo(ctx context.Context) (api.ClusterResponse, error) {
	var out api.ClusterResponse
	err := c.do(ctx, http.MethodGet, "/v1/cluster", nil, &out)
	return out, err
}

// GenerateJoinToken asks the leader for a join token
func (c *Client) GenerateJoinToken(ctx context.Context) (manager.JoinToken, error) {
	var out manager.JoinToken
	err := c.do(ctx, http.MethodPost, "/v1/cluster/tokens", nil, &out)
	return out, err
}

// JoinTokens lists the leader's unexpired join tokens
func (c *Client) JoinTokens(ctx context.Context) ([]manager.JoinToken, error) {
	var out []manager.JoinToken
	err := c.do(ctx, http.MethodGet, "/v1/cluster/tokens", nil, &out)
	return out, err
}

// JoinCluster asks the leader to add nodeID at raftAddr as a voter
func (c *Client) JoinCluster(ctx context.Context, nodeID, raftAddr, token string) error {
	req := api.JoinRequest{NodeID: nodeID, Address: raftAddr, Token: token}
	return c.do(ctx, http.MethodPost, "/v1/cluster/join", req, nil)
}

// RemoveServer asks the leader to drop a voter
func (c *Client) RemoveServer(ctx context.Context, nodeID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/cluster/servers/"+url.PathEscape(nodeID), nil, nil)
}

// Events streams events to fn until ctx ends, fn returns an error or the
// server closes the stream. With no types every event is delivered.
func (c *Client) Events(ctx context.Context, fn func(events.Event) error, filter ...events.EventType) error {
	u := *c.baseURL
	u.Path += "/v1/events"
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	q := url.Values{}
	for _, t := range filter {
		q.Add("type", string(t))
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to open event stream: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return nil
			}
			return fmt.Errorf("event stream: %w", err)
		}

		var e events.Event
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("failed to decode event: %w", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

func taskPath(worker, task, action string) string {
	return "/v1/workers/" + url.PathEscape(worker) + "/tasks/" + url.PathEscape(task) + "/" + action
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var e api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err == nil {
			apiErr.Kind = e.Kind
			apiErr.Message = e.Error
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
