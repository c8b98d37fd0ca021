// Package client is the public Go client for the dispatchr HTTP API. It is
// intended for supervisors and tooling that talk to a running daemon.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Client provides HTTP client functionality to communicate with the
// dispatchr daemon.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8081/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new dispatchr API client
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8081/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/processes?source_id=0", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode != http.StatusNotFound
}

// Create registers a new pending process record.
func (c *Client) Create(ctx context.Context, req CreateRequest) (ProcessRecord, error) {
	var rec ProcessRecord
	body, err := json.Marshal(req)
	if err != nil {
		return rec, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/processes", bytes.NewReader(body))
	if err != nil {
		return rec, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	err = c.do(httpReq, http.StatusCreated, &rec)
	return rec, err
}

// Get fetches a single process record by id.
func (c *Client) Get(ctx context.Context, id string) (ProcessRecord, error) {
	var rec ProcessRecord
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/processes/"+id, nil)
	if err != nil {
		return rec, err
	}
	err = c.do(req, http.StatusOK, &rec)
	return rec, err
}

// SetState applies a state transition to a record.
func (c *Client) SetState(ctx context.Context, id, state string) (ProcessRecord, error) {
	var rec ProcessRecord
	body, err := json.Marshal(map[string]string{"state": state})
	if err != nil {
		return rec, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/processes/"+id+"/state", bytes.NewReader(body))
	if err != nil {
		return rec, err
	}
	req.Header.Set("Content-Type", "application/json")
	err = c.do(req, http.StatusOK, &rec)
	return rec, err
}

// List returns the records of one source, oldest first.
func (c *Client) List(ctx context.Context, sourceID uint32) ([]ProcessRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/processes?source_id=%d", c.baseURL, sourceID), nil)
	if err != nil {
		return nil, err
	}
	var recs []ProcessRecord
	err = c.do(req, http.StatusOK, &recs)
	return recs, err
}

// Delete removes a process record.
func (c *Client) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/processes/"+id, nil)
	if err != nil {
		return err
	}
	return c.do(req, http.StatusOK, nil)
}

// Assign claims the oldest pending process for the given supervisor. A nil
// result means nothing was claimable.
func (c *Client) Assign(ctx context.Context, supervisorID uuid.UUID) (*AssignedProcess, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/assign/"+supervisorID.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var assigned AssignedProcess
	if err := json.NewDecoder(resp.Body).Decode(&assigned); err != nil {
		return nil, err
	}
	return &assigned, nil
}

func (c *Client) do(req *http.Request, want int, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != want {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var er ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Error == "" {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return fmt.Errorf("API error: %s", er.Error)
}
