package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client provides HTTP access to the remote agent service of one environment
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new agent service client
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// AskRequest is one query sent to the assistant
type AskRequest struct {
	Query          string                 `json:"query"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	Context        map[string]interface{} `json:"context,omitempty"`
	Assistant      string                 `json:"assistant,omitempty"`
	Model          string                 `json:"model,omitempty"`
}

// AskResponse is the assistant's reply with any action metadata
type AskResponse struct {
	ConversationID string                 `json:"conversation_id,omitempty"`
	Message        string                 `json:"message"`
	Actions        []map[string]interface{} `json:"actions,omitempty"`
	Raw            string                 `json:"-"`
}

// Ask sends one query to the agent service. The context carries the per-item
// timeout; a deadline hit surfaces as an ordinary error for the caller to
// record verbatim.
func (c *Client) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	httpReq, err := c.newRequest(ctx, "POST", "/api/v1/ask", req)
	if err != nil {
		return nil, err
	}

	body, err := c.doRequest(httpReq)
	if err != nil {
		return nil, err
	}

	var resp AskResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		// Non-JSON replies are still a usable raw response
		resp.Message = string(body)
	}
	resp.Raw = string(body)

	return &resp, nil
}

// Ping checks the agent service is reachable with the configured credentials
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, "GET", "/health", nil)
	if err != nil {
		return err
	}
	_, err = c.doRequest(req)
	return err
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	return req, nil
}

func (c *Client) doRequest(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("agent API error: %s (status: %d)", string(body), resp.StatusCode)
	}

	return body, nil
}
