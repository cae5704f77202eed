package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cratedig/liner/internal/models"
)

// Client talks to a running server over its HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given server base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 120 * time.Second},
	}
}

// Search runs a search request.
func (c *Client) Search(ctx context.Context, q models.SearchQuery) (*models.SearchResponse, error) {
	var resp models.SearchResponse
	if err := c.post(ctx, "/api/v1/search", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Query runs a query request.
func (c *Client) Query(ctx context.Context, q models.QueryRequest) (*models.QueryResponse, error) {
	var resp models.QueryResponse
	if err := c.post(ctx, "/api/v1/query", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Build triggers an index build.
func (c *Client) Build(ctx context.Context, req models.BuildRequest) (*models.BuildResponse, error) {
	var resp models.BuildResponse
	if err := c.post(ctx, "/api/v1/index/build", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ingest posts a raw batch payload.
func (c *Client) Ingest(ctx context.Context, batch []byte) (map[string]any, error) {
	var resp map[string]any
	if err := c.postRaw(ctx, "/api/v1/ingest", batch, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Status fetches the server status.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/status", nil)
	if err != nil {
		return nil, err
	}
	var resp map[string]any
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.postRaw(ctx, path, payload, out)
}

func (c *Client) postRaw(ctx context.Context, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("server: %s (%d)", e.Error, resp.StatusCode)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}
