package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/fwojciec/pulse"
)

// Interface compliance check.
var _ pulse.Opener = (*Client)(nil)

// Client implements [pulse.Opener] against the orchestrator's HTTP API.
type Client struct {
	tokens     pulse.TokenSource
	baseURL    string
	httpClient *http.Client
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the API base URL. Useful for testing with httptest.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a new orchestrator [Client] authenticating with tokens.
func New(tokens pulse.TokenSource, opts ...Option) *Client {
	c := &Client{
		tokens:     tokens,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Open sends the question to the chat endpoint and returns a [pulse.Stream]
// over the server's event stream. A context cancelled before the call
// returns without issuing a request.
func (c *Client) Open(ctx context.Context, req pulse.ChatRequest) (pulse.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: token: %w", err)
	}

	body, err := json.Marshal(apiRequest{
		SessionID: req.SessionID,
		DatasetID: req.DatasetID,
		Question:  req.Question,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, parseHTTPError(resp)
	}

	return newStream(ctx, resp.Body), nil
}

func parseHTTPError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("orchestrator: HTTP %d (failed to read body: %w)", resp.StatusCode, err)
	}
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Error == "" {
		return fmt.Errorf("orchestrator: HTTP %d: %s", resp.StatusCode, string(body))
	}
	if apiErr.Detail != "" {
		return fmt.Errorf("orchestrator: %s: %s", apiErr.Error, apiErr.Detail)
	}
	return fmt.Errorf("orchestrator: %s", apiErr.Error)
}
