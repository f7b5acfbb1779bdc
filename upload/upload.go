// Package upload implements [pulse.Uploader] against the orchestrator's
// dataset upload API: a slot request that returns a signed URL, then a PUT
// of the raw bytes to that URL.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/fwojciec/pulse"
)

const (
	defaultBaseURL = "http://localhost:8080"
	uploadsPath    = "/api/uploads"

	// MaxFileSize is the service's per-file cap.
	MaxFileSize = 20 << 20
)

// allowedExtensions lists the dataset file types the service accepts.
var allowedExtensions = map[string]string{
	".csv":  "text/csv",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// Validate checks a file against the service's type and size limits before
// any bytes leave the machine. It returns [pulse.ErrUnsupportedFile] or
// [pulse.ErrFileTooLarge].
func Validate(f pulse.UploadFile) error {
	ext := strings.ToLower(filepath.Ext(f.Name))
	if _, ok := allowedExtensions[ext]; !ok {
		return fmt.Errorf("%q: %w", f.Name, pulse.ErrUnsupportedFile)
	}
	if f.Size > MaxFileSize {
		return fmt.Errorf("%q (%d bytes): %w", f.Name, f.Size, pulse.ErrFileTooLarge)
	}
	return nil
}

// ContentTypeFor returns the MIME type the service expects for the file,
// inferred from its extension. Empty for unsupported types.
func ContentTypeFor(name string) string {
	return allowedExtensions[strings.ToLower(filepath.Ext(name))]
}

// Interface compliance check.
var _ pulse.Uploader = (*Client)(nil)

// Client implements [pulse.Uploader] over HTTP.
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

// New creates an upload [Client] authenticating with tokens.
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

// slotRequest is the JSON body sent to the uploads endpoint.
type slotRequest struct {
	SessionID   string `json:"sessionId"`
	FileName    string `json:"fileName"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// slotResponse is the JSON body returned for a granted slot.
type slotResponse struct {
	UploadURL string `json:"uploadUrl"`
	DatasetID string `json:"datasetId"`
}

// RequestSlot validates the file and asks the service for an upload slot.
func (c *Client) RequestSlot(ctx context.Context, f pulse.UploadFile) (pulse.UploadSlot, error) {
	if err := Validate(f); err != nil {
		return pulse.UploadSlot{}, err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return pulse.UploadSlot{}, fmt.Errorf("upload: token: %w", err)
	}

	contentType := f.ContentType
	if contentType == "" {
		contentType = ContentTypeFor(f.Name)
	}
	body, err := json.Marshal(slotRequest{
		SessionID:   f.SessionID,
		FileName:    f.Name,
		Size:        f.Size,
		ContentType: contentType,
	})
	if err != nil {
		return pulse.UploadSlot{}, fmt.Errorf("upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadsPath, bytes.NewReader(body))
	if err != nil {
		return pulse.UploadSlot{}, fmt.Errorf("upload: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pulse.UploadSlot{}, fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return pulse.UploadSlot{}, fmt.Errorf("upload: HTTP %d: %s", resp.StatusCode, string(b))
	}

	var slot slotResponse
	if err := json.NewDecoder(resp.Body).Decode(&slot); err != nil {
		return pulse.UploadSlot{}, fmt.Errorf("upload: decode slot: %w", err)
	}
	if slot.UploadURL == "" || slot.DatasetID == "" {
		return pulse.UploadSlot{}, fmt.Errorf("upload: incomplete slot response")
	}
	return pulse.UploadSlot{URL: slot.UploadURL, DatasetID: slot.DatasetID}, nil
}

// Put streams the file bytes to the signed URL from a granted slot.
func (c *Client) Put(ctx context.Context, url string, r io.Reader, f pulse.UploadFile) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, r)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	req.ContentLength = f.Size
	contentType := f.ContentType
	if contentType == "" {
		contentType = ContentTypeFor(f.Name)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload: HTTP %d: %s", resp.StatusCode, string(b))
	}
	return nil
}
