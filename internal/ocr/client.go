// Package ocr talks to the external OCR service's asynchronous job API:
// start a text-detection job against a stored document, then poll it.
package ocr

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

	"github.com/docpipe/docpipe/internal/common"
	"github.com/docpipe/docpipe/internal/poll"
	"github.com/docpipe/docpipe/internal/storage"
)

// Client drives the OCR service's job API.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	logger   *slog.Logger
}

func NewClient(cfg common.OCRConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type startRequest struct {
	Location storage.Location `json:"document_location"`
}

type startResponse struct {
	JobID string `json:"job_id"`
}

// StartJob submits the stored document for text detection and returns the
// service-side job id.
func (c *Client) StartJob(ctx context.Context, loc storage.Location) (string, error) {
	raw, err := c.send(ctx, http.MethodPost, c.endpoint+"/v1/text-detection/jobs", startRequest{Location: loc})
	if err != nil {
		return "", fmt.Errorf("start ocr job: %w", err)
	}
	var out startResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode start response: %w", err)
	}
	if out.JobID == "" {
		return "", fmt.Errorf("start ocr job: empty job id in response")
	}
	c.logger.Info("ocr.start.ok", "ocr_job_id", out.JobID, "bucket", loc.Bucket, "key", loc.Key)
	return out.JobID, nil
}

// Result is the completed OCR output: text fragments in the order the
// service reports them.
type Result struct {
	Lines []string `json:"lines"`
	Pages int      `json:"pages"`
}

// Text joins all fragments with newlines, in service order.
func (r Result) Text() string {
	return strings.Join(r.Lines, "\n")
}

type pollResponse struct {
	Status string   `json:"status"`
	Lines  []string `json:"lines,omitempty"`
	Pages  int      `json:"pages,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// Poll reads the job once and maps the service status onto the poller's.
func (c *Client) Poll(ctx context.Context, jobID string) (poll.Status, Result, error) {
	raw, err := c.send(ctx, http.MethodGet, c.endpoint+"/v1/text-detection/jobs/"+jobID, nil)
	if err != nil {
		return poll.StatusPending, Result{}, fmt.Errorf("poll ocr job %s: %w", jobID, err)
	}
	var out pollResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return poll.StatusPending, Result{}, fmt.Errorf("decode poll response: %w", err)
	}
	switch out.Status {
	case "SUCCEEDED":
		return poll.StatusSucceeded, Result{Lines: out.Lines, Pages: out.Pages}, nil
	case "FAILED":
		c.logger.Warn("ocr.poll.failed", "ocr_job_id", jobID, "error", out.Error)
		return poll.StatusFailed, Result{}, nil
	case "PENDING", "IN_PROGRESS", "SUBMITTED":
		return poll.StatusPending, Result{}, nil
	default:
		return poll.StatusPending, Result{}, fmt.Errorf("ocr job %s: unknown status %q", jobID, out.Status)
	}
}

// PollFunc adapts one started job to the bounded poller.
func (c *Client) PollFunc(jobID string) poll.Func[Result] {
	return func(ctx context.Context) (poll.Status, Result, error) {
		return c.Poll(ctx, jobID)
	}
}

func (c *Client) send(ctx context.Context, method, url string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		reader = bytes.NewReader(bs)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func(rc io.ReadCloser) {
		if cerr := rc.Close(); cerr != nil {
			c.logger.Warn("ocr.http.response_body_close_error", "error", cerr)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return raw, fmt.Errorf("non-2xx status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}
