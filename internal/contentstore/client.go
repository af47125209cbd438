package contentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DerivedRequest registers OCR output against its source content.
type DerivedRequest struct {
	ContentID   string            `json:"content_id"`
	ObjectID    string            `json:"object_id"`
	DerivedType string            `json:"derived_type"`
	MIMEType    string            `json:"mime_type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// DerivedRecord is the content store's handle for registered output. The
// store owns it; the pipeline only reads UploadURL to decide whether an
// upload step is possible.
type DerivedRecord struct {
	DerivedID   string `json:"derived_id"`
	ContentID   string `json:"content_id"`
	ObjectID    string `json:"object_id"`
	UploadURL   string `json:"upload_url,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

// TransportError is a network or HTTP-status failure talking to the content
// store. Always terminal for the job; the pipeline never retries.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("content store %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("content store %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client talks to the simple-content API. Stateless per call; safe for
// concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Download fetches source bytes from a presigned URL.
func (c *Client) Download(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, &TransportError{Op: "download", Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("contentstore.download.failed", "error", err)
		return nil, &TransportError{Op: "download", Err: err}
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("contentstore.download.failed", "status", resp.StatusCode)
		return nil, &TransportError{Op: "download", Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "download", Err: err}
	}
	c.logger.Info("contentstore.download.ok",
		"size_bytes", len(data),
		"content_type", resp.Header.Get("Content-Type"),
	)
	return data, nil
}

// CreateDerived registers a derived-content record and returns the store's
// handle, including an upload target when the store provisions one.
func (c *Client) CreateDerived(ctx context.Context, dr DerivedRequest) (DerivedRecord, error) {
	body, err := json.Marshal(dr)
	if err != nil {
		return DerivedRecord{}, fmt.Errorf("marshal derived request: %w", err)
	}

	url := c.baseURL + "/api/v1/derived-content"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return DerivedRecord{}, &TransportError{Op: "create derived", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("contentstore.derived.failed", "error", err, "content_id", dr.ContentID)
		return DerivedRecord{}, &TransportError{Op: "create derived", Err: err}
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("contentstore.derived.failed", "status", resp.StatusCode, "content_id", dr.ContentID)
		return DerivedRecord{}, &TransportError{Op: "create derived", Status: resp.StatusCode}
	}

	var rec DerivedRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return DerivedRecord{}, fmt.Errorf("decode derived response: %w", err)
	}
	c.logger.Info("contentstore.derived.ok",
		"derived_id", rec.DerivedID,
		"content_id", dr.ContentID,
	)
	return rec, nil
}

// Upload puts bytes to a presigned upload URL with the given content type.
func (c *Client) Upload(ctx context.Context, uploadURL string, data []byte, mimeType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return &TransportError{Op: "upload", Err: err}
	}
	req.Header.Set("Content-Type", mimeType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("contentstore.upload.failed", "error", err, "size_bytes", len(data))
		return &TransportError{Op: "upload", Err: err}
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("contentstore.upload.failed", "status", resp.StatusCode, "size_bytes", len(data))
		return &TransportError{Op: "upload", Status: resp.StatusCode}
	}
	c.logger.Info("contentstore.upload.ok", "size_bytes", len(data), "mime_type", mimeType)
	return nil
}

// Close releases pooled connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		c.logger.Warn("contentstore response body close error", "error", err)
	}
}
