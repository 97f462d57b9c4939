package generation

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

	"server/internal/domain"
	"server/internal/infra"
)

// Options controls how the generation service client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client is a thin facade over the external generation service. The service
// owns the actual model calls; this client only starts jobs, reports their
// status, and fetches finished results. What the service does with a job's
// input is opaque to the pipeline.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// Provider-reported job statuses.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// StartRequest asks the provider to begin an asynchronous generation job.
type StartRequest struct {
	Kind  string         `json:"kind"`
	Input map[string]any `json:"input"`
}

// JobState is the provider's view of a job, returned by GET /jobs/{id}.
type JobState struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	ResultRef string `json:"resultRef,omitempty"`
	Error     string `json:"error,omitempty"`
}

// IndexItem is one source item submitted to the provider's index endpoint.
type IndexItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a generation client with sane defaults. Callers may
// provide a nil HTTP client; a reusable one with sensible timeouts will be
// created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("generation: base url is required")
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: client,
		logger:     logger,
	}, nil
}

// StartJob submits a generation job and returns the provider-assigned id.
func (c *Client) StartJob(ctx context.Context, req StartRequest) (string, error) {
	var state JobState
	if err := c.invoke(ctx, http.MethodPost, "/jobs", req, &state); err != nil {
		return "", err
	}
	if state.ID == "" {
		return "", domain.AsPermanent(fmt.Errorf("generation: provider returned no job id"))
	}
	c.logger.Debug().
		Str("provider_job_id", state.ID).
		Str("kind", req.Kind).
		Msg("generation: job started")
	return state.ID, nil
}

// JobState fetches the provider's current view of a job.
func (c *Client) JobState(ctx context.Context, providerID string) (*JobState, error) {
	var state JobState
	path := "/jobs/" + url.PathEscape(providerID)
	if err := c.invoke(ctx, http.MethodGet, path, nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// FetchResult downloads the finished artifact referenced by resultRef and
// returns the raw bytes plus the reported content type.
func (c *Client) FetchResult(ctx context.Context, resultRef string) ([]byte, string, error) {
	target := resultRef
	if !strings.HasPrefix(resultRef, "http://") && !strings.HasPrefix(resultRef, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(resultRef, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("generation: create result request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("generation: fetch result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return nil, "", statusError(resp.StatusCode, strings.TrimSpace(string(data)))
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("generation: read result: %w", err)
	}
	return blob, resp.Header.Get("Content-Type"), nil
}

// IndexItems submits a batch of source items to the provider's index and
// returns how many were accepted. The call is synchronous.
func (c *Client) IndexItems(ctx context.Context, source string, items []IndexItem) (int, error) {
	payload := map[string]any{"source": source, "items": items}
	var result struct {
		Indexed int `json:"indexed"`
	}
	if err := c.invoke(ctx, http.MethodPost, "/index", payload, &result); err != nil {
		return 0, err
	}
	return result.Indexed, nil
}

func (c *Client) invoke(ctx context.Context, method, path string, payload any, out any) error {
	endpoint := c.baseURL + path
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("generation: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("generation: create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("generation: invoke provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return statusError(resp.StatusCode, apiErr.Error.Message)
		}
		data, _ := io.ReadAll(resp.Body)
		return statusError(resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("generation: decode provider response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// statusError classifies provider HTTP failures: 4xx responses will not get
// better on retry, 5xx and everything else stays transient.
func statusError(code int, detail string) error {
	err := fmt.Errorf("generation: provider status %d", code)
	if detail != "" {
		err = fmt.Errorf("generation: provider status %d: %s", code, detail)
	}
	if code >= 400 && code < 500 {
		return domain.AsPermanent(err)
	}
	return err
}
