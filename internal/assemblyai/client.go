package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/term"
)

const (
	DefaultBaseURL      = "https://api.assemblyai.com"
	defaultPollInterval = 3 * time.Second
)

// ErrJobFailed is returned when the remote transcription job reaches its
// error state; the wrapped message carries the service's diagnostics.
var ErrJobFailed = errors.New("transcription job failed")

// Client talks to the AssemblyAI REST API: file upload, job creation and
// status polling. The zero value is not usable; use NewClient.
type Client struct {
	BaseURL      string
	APIKey       string
	HTTPClient   *http.Client
	Logger       *zap.Logger
	PollInterval time.Duration

	// ShowProgress renders an upload progress bar on stderr when it is a
	// terminal. Meant for interactive CLI use, not the server.
	ShowProgress bool
}

func NewClient(baseURL, apiKey string, logger *zap.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		APIKey:       apiKey,
		HTTPClient:   &http.Client{Timeout: 10 * time.Minute},
		Logger:       logger,
		PollInterval: defaultPollInterval,
	}
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptResource struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

// Transcribe uploads the local audio file, creates a transcription job and
// blocks until the job reaches a terminal state. The caller bounds the
// overall wait through ctx.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	audioURL, err := c.Upload(ctx, audioPath)
	if err != nil {
		return "", err
	}

	jobID, err := c.Submit(ctx, audioURL)
	if err != nil {
		return "", err
	}

	return c.Wait(ctx, jobID)
}

// Upload streams the file at path to the service and returns the URL under
// which the uploaded audio can be referenced.
func (c *Client) Upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat audio file: %w", err)
	}

	var body io.Reader = f
	if shouldRenderProgress(c.ShowProgress, info.Size()) {
		bar := progressbar.NewOptions64(
			info.Size(),
			progressbar.OptionSetDescription("uploading"),
			progressbar.OptionSetWidth(20),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionClearOnFinish(),
		)
		body = io.TeeReader(f, bar)
		defer func() { _ = bar.Finish() }()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v2/upload", body)
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Authorization", c.APIKey)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = info.Size()

	c.Logger.Debug("uploading audio", zap.String("path", path), zap.Int64("bytes", info.Size()))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload audio: %s", responseError(resp))
	}

	var uploaded uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if uploaded.UploadURL == "" {
		return "", errors.New("upload response missing upload_url")
	}

	return uploaded.UploadURL, nil
}

// Submit creates a transcription job for previously uploaded audio and
// returns the job identifier.
func (c *Client) Submit(ctx context.Context, audioURL string) (string, error) {
	payload, err := json.Marshal(map[string]string{"audio_url": audioURL})
	if err != nil {
		return "", fmt.Errorf("encode transcript request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v2/transcript", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create transcript request: %w", err)
	}
	req.Header.Set("Authorization", c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit transcript job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("submit transcript job: %s", responseError(resp))
	}

	var job transcriptResource
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return "", fmt.Errorf("decode transcript response: %w", err)
	}
	if job.ID == "" {
		return "", errors.New("transcript response missing job id")
	}

	c.Logger.Debug("transcript job submitted", zap.String("job_id", job.ID))
	return job.ID, nil
}

// Wait polls the job until it reaches a terminal state and returns the
// transcript text. A single job error is terminal; no retry is attempted.
func (c *Client) Wait(ctx context.Context, jobID string) (string, error) {
	interval := c.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	for {
		job, err := c.fetchJob(ctx, jobID)
		if err != nil {
			return "", err
		}

		switch job.Status {
		case "completed":
			return job.Text, nil
		case "error":
			msg := job.Error
			if msg == "" {
				msg = "unknown error"
			}
			return "", fmt.Errorf("%w: %s", ErrJobFailed, msg)
		}

		c.Logger.Debug("transcript job pending", zap.String("job_id", jobID), zap.String("status", job.Status))

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("wait for transcript job %s: %w", jobID, ctx.Err())
		case <-time.After(interval):
		}
	}
}

func (c *Client) fetchJob(ctx context.Context, jobID string) (transcriptResource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v2/transcript/"+jobID, nil)
	if err != nil {
		return transcriptResource{}, fmt.Errorf("create status request: %w", err)
	}
	req.Header.Set("Authorization", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return transcriptResource{}, fmt.Errorf("poll transcript job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return transcriptResource{}, fmt.Errorf("poll transcript job: %s", responseError(resp))
	}

	var job transcriptResource
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return transcriptResource{}, fmt.Errorf("decode status response: %w", err)
	}
	return job, nil
}

func responseError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, trimmed)
}

func shouldRenderProgress(enabled bool, size int64) bool {
	if !enabled || size <= 0 {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
