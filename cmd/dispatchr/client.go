package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// APIClient provides HTTP client functionality to communicate with the
// dispatchr daemon.
type APIClient struct {
	baseURL string
	client  *http.Client
}

// NewAPIClient creates a new API client
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = "http://localhost:8081/api"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateProcess registers a new process record via API
func (c *APIClient) CreateProcess(sourceID uint32, kind uint8) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]any{"source_id": sourceID, "type": kind})
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Post(c.baseURL+"/processes", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeResponse(resp, http.StatusCreated)
}

// GetProcess fetches a process record via API
func (c *APIClient) GetProcess(id string) (json.RawMessage, error) {
	resp, err := c.client.Get(c.baseURL + "/processes/" + id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeResponse(resp, http.StatusOK)
}

// SetState applies a state transition via API
func (c *APIClient) SetState(id, state string) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]string{"state": state})
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Post(c.baseURL+"/processes/"+id+"/state", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeResponse(resp, http.StatusOK)
}

// ListProcesses lists the records of one source via API
func (c *APIClient) ListProcesses(sourceID uint32) (json.RawMessage, error) {
	resp, err := c.client.Get(fmt.Sprintf("%s/processes?source_id=%d", c.baseURL, sourceID))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeResponse(resp, http.StatusOK)
}

// DeleteProcess removes a process record via API
func (c *APIClient) DeleteProcess(id string) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+"/processes/"+id, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, err = decodeResponse(resp, http.StatusOK)
	return err
}

// Assign claims the oldest pending process via API. A nil result with nil
// error means nothing was claimable.
func (c *APIClient) Assign(supervisorID string) (json.RawMessage, error) {
	resp, err := c.client.Post(c.baseURL+"/assign/"+supervisorID, "application/json", nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	return decodeResponse(resp, http.StatusOK)
}

func decodeResponse(resp *http.Response, want int) (json.RawMessage, error) {
	if resp.StatusCode != want {
		var errorResp struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("API error: %s", errorResp.Error)
	}
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}
