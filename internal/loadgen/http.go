package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/worthrank/pkg/logger"
)

// HTTPClient wraps http.Client with timeout.
type HTTPClient struct {
	client *http.Client
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: timeout}}
}

// Get performs a GET request and decodes a JSON body into out when out is non-nil.
func (c *HTTPClient) Get(ctx context.Context, url string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

// Post sends body as JSON on behalf of clientIP and decodes the response into out.
func (c *HTTPClient) Post(ctx context.Context, url, clientIP string, body, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if clientIP != "" {
		req.Header.Set("X-Forwarded-For", clientIP)
	}
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) (int, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}
	if out != nil && resp.StatusCode == StatusOK {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

type submitOutcome int

const (
	outcomeStored submitOutcome = iota
	outcomeCached
	outcomeFailed
)

// submitAll posts every submission concurrently and reports one outcome per
// input. Submissions never sent count as failed.
func submitAll(ctx context.Context, config *Config, subs []Submission) []submitOutcome {
	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/job-worth"
	outcomes := make([]submitOutcome, len(subs))
	for i := range outcomes {
		outcomes[i] = outcomeFailed
	}

	var (
		done     int64
		progress = logger.Get().Named("loadgen")
	)

	indexes := make(chan int, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup
	for w := 0; w < config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				outcomes[i] = submitSingle(ctx, client, url, subs[i])
				n := atomic.AddInt64(&done, 1)
				if config.Verbose && n%1000 == 0 {
					progress.Info(ctx, "submission progress", logger.Int64("done", n), logger.Int("total", len(subs)))
				}
			}
		}()
	}

	go func() {
		defer close(indexes)
		for i := range subs {
			select {
			case <-ctx.Done():
				return
			case indexes <- i:
			}
		}
	}()
	wg.Wait()
	return outcomes
}

// submitSingle submits one evaluation and classifies the answer.
func submitSingle(ctx context.Context, client *HTTPClient, url string, sub Submission) submitOutcome {
	body := map[string]any{"formData": sub.FormData, "score": sub.Score}
	var resp SubmitResponse
	status, err := client.Post(ctx, url, sub.ClientIP, body, &resp)
	if err != nil || status != StatusOK || !resp.Success {
		return outcomeFailed
	}
	if resp.FromCache {
		return outcomeCached
	}
	return outcomeStored
}
