// Package source talks to the job server the worker polls.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/worker/domain"
)

// maxErrorBody bounds how much of a failed response is quoted in errors
const maxErrorBody = 512

// Config holds job server client settings
type Config struct {
	BaseURL        string
	PathPrefix     string
	RequestTimeout time.Duration
	UploadTimeout  time.Duration
}

// Client implements the job server HTTP contract
type Client struct {
	baseURL    string
	prefix     string
	httpClient *http.Client
	uploadHTTP *http.Client
	logger     *slog.Logger
}

// NewClient creates a job server client
func NewClient(cfg *Config, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		prefix:     "/" + strings.Trim(cfg.PathPrefix, "/"),
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		uploadHTTP: &http.Client{Timeout: cfg.UploadTimeout},
		logger:     logger,
	}
}

func (c *Client) endpoint(path string) string {
	if c.prefix == "/" {
		return c.baseURL + path
	}
	return c.baseURL + c.prefix + path
}

// Poll asks for the next job of mode. It returns nil, nil when none is queued.
func (c *Client) Poll(ctx context.Context, mode domain.Mode, clientID string) (*domain.Job, error) {
	q := url.Values{}
	q.Set("mode", string(mode))
	if clientID != "" {
		q.Set("client_id", clientID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/poll")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build poll request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to poll job source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError("poll", resp)
	}

	var job domain.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("failed to decode poll response: %w", err)
	}
	if job.JobID == "" {
		return nil, fmt.Errorf("poll response has no job_id")
	}
	if job.Mode == "" {
		job.Mode = mode
	}

	return &job, nil
}

// CompleteVideo uploads a finished video as multipart form data
func (c *Client) CompleteVideo(ctx context.Context, jobID string, video []byte, contentType string) error {
	if contentType == "" {
		contentType = "video/mp4"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("job_id", jobID); err != nil {
		return fmt.Errorf("failed to write job_id field: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="video"; filename="%s.mp4"`, jobID))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create video part: %w", err)
	}
	if _, err := part.Write(video); err != nil {
		return fmt.Errorf("failed to write video part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/complete"), &body)
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.uploadHTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("upload", resp)
	}

	c.logger.Info("Video uploaded",
		slog.String("job_id", jobID),
		slog.Int("size", len(video)),
	)
	return nil
}

// CompleteChat reports a finished chat answer
func (c *Client) CompleteChat(ctx context.Context, jobID, content string) error {
	resp, err := c.postJSON(ctx, c.httpClient, "/complete/chat", map[string]string{
		"job_id":  jobID,
		"content": content,
	})
	if err != nil {
		return fmt.Errorf("failed to send chat completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("chat completion upload", resp)
	}
	return nil
}

// ReportError tells the job server a job failed. Failures are logged and
// never returned.
func (c *Client) ReportError(ctx context.Context, jobID, reason string) {
	resp, err := c.postJSON(ctx, c.httpClient, "/error", map[string]string{
		"job_id": jobID,
		"error":  reason,
	})
	if err != nil {
		c.logger.Error("Failed to report error",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("Job source rejected error report",
			slog.String("job_id", jobID),
			slog.Any("error", statusError("error report", resp)),
		)
	}
}

// VideoURL is where the job server serves the uploaded video for jobID
func (c *Client) VideoURL(jobID string) string {
	return fmt.Sprintf("%s/videos/%s.mp4", c.baseURL, url.PathEscape(jobID))
}

func (c *Client) postJSON(ctx context.Context, hc *http.Client, path string, payload any) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return hc.Do(req)
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("%s failed: %d - %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
}
