// Package clearing talks to the insurer clearing proxy: invoice uploads,
// status polling, and the download/notification inboxes. The proxy is the
// single upstream for all insurers; routing happens behind it.
package clearing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds the connection settings of one clearing endpoint. Multiple
// clients may coexist (test and production endpoints differ).
type Config struct {
	BaseURL   string
	Username  string
	Password  string
	SenderGLN string
	Timeout   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithLogger attaches a logger for request-level diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(cl *Client) { cl.logger = logger }
}

// Client is a thin HTTP client for the clearing proxy. Safe for concurrent
// use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("clearing: base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("clearing: invalid base URL: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Download is one pending insurer response in the download inbox.
type Download struct {
	TransmissionReference string    `json:"transmissionReference"`
	CorrelationReference  string    `json:"correlationReference"`
	SenderGLN             string    `json:"senderGln"`
	Created               time.Time `json:"created"`
}

// Notification is one entry of the notification inbox (delivery and error
// notices; a distinct message class with its own id namespace).
type Notification struct {
	NotificationID        string    `json:"notificationId"`
	Severity              string    `json:"severity"`
	ErrorCode             string    `json:"errorCode"`
	Message               string    `json:"message"`
	TransmissionReference string    `json:"transmissionReference"`
	Created               time.Time `json:"created"`
}

// StatusResult is the upstream processing state of one uploaded message.
type StatusResult struct {
	Status      string `json:"status"`
	ErrorReason string `json:"errorReason"`
}

// Submit uploads an invoice document and returns the upstream message id
// (transmission reference). One upload yields exactly one id; callers
// persist it before retrying anything.
func (c *Client) Submit(ctx context.Context, document []byte) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/uploads", bytes.NewReader(document))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/xml")

	var out struct {
		TransmissionReference string `json:"transmissionReference"`
	}
	if err := c.do(req, http.StatusCreated, &out); err != nil {
		return "", fmt.Errorf("clearing: submit: %w", err)
	}
	if out.TransmissionReference == "" {
		return "", fmt.Errorf("clearing: submit: upstream returned no transmission reference")
	}

	c.logger.Info().
		Str("transmission_reference", out.TransmissionReference).
		Int("document_bytes", len(document)).
		Msg("document uploaded to clearing proxy")
	return out.TransmissionReference, nil
}

// CheckStatus polls the upstream processing state of an uploaded message.
func (c *Client) CheckStatus(ctx context.Context, messageID string) (StatusResult, error) {
	var out StatusResult
	req, err := c.newRequest(ctx, http.MethodGet, "/uploads/"+url.PathEscape(messageID)+"/status", nil)
	if err != nil {
		return out, err
	}
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return out, fmt.Errorf("clearing: check status %s: %w", messageID, err)
	}
	return out, nil
}

// ListDownloads returns the pending unread insurer responses. Confirmed
// entries no longer appear.
func (c *Client) ListDownloads(ctx context.Context) ([]Download, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/downloads", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Entries []Download `json:"entries"`
	}
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("clearing: list downloads: %w", err)
	}
	return out.Entries, nil
}

// FetchDownload retrieves the raw response document for a transmission
// reference.
func (c *Client) FetchDownload(ctx context.Context, ref string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/downloads/"+url.PathEscape(ref)+"/content", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clearing: fetch download %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("clearing: fetch download %s: read body: %w", ref, err)
	}
	return body, nil
}

// ConfirmDownload acknowledges a download; the entry disappears from the
// inbox. Callers must persist the content BEFORE confirming.
func (c *Client) ConfirmDownload(ctx context.Context, ref string) error {
	req, err := c.newRequest(ctx, http.MethodPut, "/downloads/"+url.PathEscape(ref)+"/confirm", nil)
	if err != nil {
		return err
	}
	if err := c.do(req, http.StatusNoContent, nil); err != nil {
		return fmt.Errorf("clearing: confirm download %s: %w", ref, err)
	}
	return nil
}

// ListNotifications returns the pending entries of the notification inbox.
func (c *Client) ListNotifications(ctx context.Context) ([]Notification, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/notifications", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Entries []Notification `json:"entries"`
	}
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("clearing: list notifications: %w", err)
	}
	return out.Entries, nil
}

// ConfirmNotification acknowledges a notification. Same
// persist-before-confirm contract as downloads.
func (c *Client) ConfirmNotification(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodPut, "/notifications/"+url.PathEscape(id)+"/confirm", nil)
	if err != nil {
		return err
	}
	if err := c.do(req, http.StatusNoContent, nil); err != nil {
		return fmt.Errorf("clearing: confirm notification %s: %w", id, err)
	}
	return nil
}

// maxDocumentBytes bounds response document reads; insurer responses are
// small XML files.
const maxDocumentBytes = 10 << 20

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("clearing: build request: %w", err)
	}
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}
	if c.cfg.SenderGLN != "" {
		req.Header.Set("X-Sender-GLN", c.cfg.SenderGLN)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do executes the request, enforces the expected status, and decodes a
// JSON body into out when non-nil.
func (c *Client) do(req *http.Request, wantStatus int, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return c.statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocumentBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// statusError surfaces a non-expected HTTP status with a bounded excerpt
// of the body.
func (c *Client) statusError(resp *http.Response) error {
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
}
