package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/me/coopsched/pkg/model"
)

// Client talks to the HTTP surface of a running coopsched server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient creates a coopsched API client.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logger,
	}
}

// apiResponse is the parsed envelope.
type apiResponse struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

// serverHealth is the subset of /health the CLI displays.
type serverHealth struct {
	Board        string `json:"board"`
	Uptime       string `json:"uptime"`
	Tasks        int    `json:"tasks"`
	Capacity     int    `json:"capacity"`
	Ticks        uint64 `json:"ticks"`
	DroppedTicks uint64 `json:"dropped_ticks"`
	Dispatches   uint64 `json:"dispatches"`
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*apiResponse, error) {
	target := c.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
		c.Logger.Debug("HTTP request body", "body", string(data))
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.Logger.Debug("HTTP request", "method", method, "url", target)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.Logger.Debug("HTTP response", "status", resp.StatusCode, "request_id", resp.Header.Get("X-Request-ID"))

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("parse response (status %d): %w\nbody: %s", resp.StatusCode, err, string(respBody))
	}
	if apiResp.Status == "error" && apiResp.Error != nil {
		return &apiResp, apiResp.Error
	}
	return &apiResp, nil
}

// decode runs a request and unmarshals the envelope data into out.
func (c *Client) decode(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// Health fetches the server status and loop counters.
func (c *Client) Health(ctx context.Context) (*serverHealth, error) {
	var h serverHealth
	if err := c.decode(ctx, http.MethodGet, "/api/v1/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Tasks fetches a snapshot of every registered task.
func (c *Client) Tasks(ctx context.Context) ([]model.TaskView, error) {
	var views []model.TaskView
	if err := c.decode(ctx, http.MethodGet, "/api/v1/tasks/", nil, &views); err != nil {
		return nil, err
	}
	return views, nil
}

// SetField overrides state, period or counter of the task ref (an index or
// a name) and returns the task as the server sees it afterwards.
func (c *Client) SetField(ctx context.Context, ref, field string, body any) (*model.TaskView, error) {
	var view model.TaskView
	path := "/api/v1/tasks/" + url.PathEscape(ref) + "/" + field
	if err := c.decode(ctx, http.MethodPut, path, body, &view); err != nil {
		return nil, err
	}
	return &view, nil
}
