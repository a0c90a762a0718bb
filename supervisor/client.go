// Package supervisor implements the REST client for the external pipeline
// job supervisor: process status, bounded log tails, start/stop/clear, plus
// a best-effort version handshake.
//
// The client classifies failures into the taxonomy the monitor loop depends
// on: gateway unavailability and timeouts come back wrapping
// errors.ErrServiceUnavailable / errors.ErrTimeout so the polling layer can
// absorb them and keep last-good state, while everything else surfaces as a
// fatal error for the caller to handle.
package supervisor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/loom/errors"
	"github.com/teranos/loom/internal/httpclient"
	"github.com/teranos/loom/pipeline"
	"github.com/teranos/loom/sym"
)

const (
	// DefaultBaseURL is the fallback supervisor address when none is
	// configured. Should match the default in config/defaults.go.
	DefaultBaseURL = "http://localhost:8077"

	// DefaultPollTimeout bounds status polls and refresh requests.
	DefaultPollTimeout = 8 * time.Second

	// DefaultControlTimeout bounds start, stop, and clear-logs requests.
	DefaultControlTimeout = 10 * time.Second

	// DefaultLogFetchTimeout bounds the extended log fetch issued after a
	// terminal transition, when the full run log is captured for history.
	DefaultLogFetchTimeout = 30 * time.Second

	// DefaultLogFallbackTimeout bounds the reduced retry when the extended
	// fetch fails or returns nothing.
	DefaultLogFallbackTimeout = 5 * time.Second
)

// JobStatus is the supervisor's view of the pipeline process. PID is nil
// when no process exists; Returncode is nil while the process is running.
type JobStatus struct {
	Running    bool `json:"running"`
	PID        *int `json:"pid,omitempty"`
	Returncode *int `json:"returncode"`
}

// Config holds supervisor client configuration.
type Config struct {
	BaseURL string // empty = DefaultBaseURL
	Token   string // optional bearer token

	// AllowRemote enables private-IP blocking for off-host supervisors.
	// The default (false) assumes a localhost supervisor, which the
	// hardened client would otherwise refuse to dial.
	AllowRemote bool

	PollTimeout    time.Duration // 0 = DefaultPollTimeout
	ControlTimeout time.Duration // 0 = DefaultControlTimeout

	Logger *zap.SugaredLogger // nil = nop logger
}

// Client talks to the pipeline job supervisor.
type Client struct {
	baseURL        string
	token          string
	httpClient     *httpclient.SaferClient
	logger         *zap.SugaredLogger
	pollTimeout    time.Duration
	controlTimeout time.Duration
}

// NewClient creates a supervisor client with loom defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.ControlTimeout <= 0 {
		cfg.ControlTimeout = DefaultControlTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	// Supervisors live on localhost in the common case, so private-IP
	// blocking stays off unless the operator points loom off-host.
	blockPrivateIP := cfg.AllowRemote
	saferClient := httpclient.NewSaferClientWithOptions(cfg.PollTimeout, httpclient.SaferClientOptions{
		BlockPrivateIP: &blockPrivateIP,
	})

	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		token:          cfg.Token,
		httpClient:     saferClient,
		logger:         logger,
		pollTimeout:    cfg.PollTimeout,
		controlTimeout: cfg.ControlTimeout,
	}
}

// BaseURL returns the normalized supervisor address this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// newRequest builds a request with auth and content headers applied.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// GetStatus fetches the supervisor's current view of the pipeline process.
// Bounded by the poll timeout; the request is cancelled on expiry.
func (c *Client) GetStatus(ctx context.Context) (*JobStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/api/pipeline/status", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err, "status request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read status response")
	}
	if err := classifyResponse(resp.StatusCode, body); err != nil {
		return nil, err
	}

	var status JobStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal status response %q", truncateForError(body))
	}
	return &status, nil
}

// FetchLogs retrieves up to tailLines of raw log text from the supervisor.
// The timeout is applied as the request deadline and also forwarded as the
// timeout_ms query hint so the supervisor gives up before the client does.
// A timeout <= 0 uses the poll timeout.
func (c *Client) FetchLogs(ctx context.Context, tailLines int, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = c.pollTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	q := url.Values{}
	q.Set("tail_lines", strconv.Itoa(tailLines))
	q.Set("timeout_ms", strconv.FormatInt(timeout.Milliseconds(), 10))

	req, err := c.newRequest(ctx, http.MethodGet, "/api/pipeline/logs?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.DoWithTimeout(req, timeout)
	if err != nil {
		return "", classifyTransportError(err, "log fetch failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read log response")
	}
	if err := classifyResponse(resp.StatusCode, body); err != nil {
		return "", err
	}

	// A gateway can answer 200 with its own error page when the upstream
	// vanished mid-request. That text must never be mistaken for job logs.
	if isGatewayUnavailableText(string(body)) {
		return "", errors.Wrapf(errors.ErrServiceUnavailable, "log fetch answered by gateway, not supervisor: %q", truncateForError(body))
	}

	return string(body), nil
}

// Start submits a pipeline start request. The options' extra-args string is
// tokenized here; a malformed quote fails before any request is sent.
func (c *Client) Start(ctx context.Context, opts pipeline.StartOptions) error {
	wire, err := opts.ToRequest()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(wire)
	if err != nil {
		return errors.Wrap(err, "failed to marshal start options")
	}

	c.logger.Infow("Starting pipeline",
		"symbol", sym.Net,
		"category", opts.Category,
		"page_limit", opts.PageLimit,
		"article_limit", opts.ArticleLimit,
	)

	return c.post(ctx, "/api/pipeline/start", payload)
}

// Stop asks the supervisor to terminate the running pipeline process.
func (c *Client) Stop(ctx context.Context) error {
	c.logger.Infow("Stopping pipeline", "symbol", sym.Net)
	return c.post(ctx, "/api/pipeline/stop", nil)
}

// ClearLogs truncates the supervisor's accumulated log buffer.
func (c *Client) ClearLogs(ctx context.Context) error {
	c.logger.Infow("Clearing pipeline logs", "symbol", sym.Net)
	return c.post(ctx, "/api/pipeline/clear_logs", nil)
}

// post issues a control request bounded by the control timeout.
func (c *Client) post(ctx context.Context, path string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.controlTimeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.DoWithTimeout(req, c.controlTimeout)
	if err != nil {
		return classifyTransportError(err, "POST "+path+" failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}
	return classifyResponse(resp.StatusCode, respBody)
}

// truncateForError bounds response bodies embedded in error messages.
func truncateForError(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
