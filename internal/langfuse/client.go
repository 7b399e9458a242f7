// Package langfuse is a small Langfuse API client: batched ingestion of traces
// and observations plus prompt management.
package langfuse

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	errx "github.com/langfuse-nodes/server/internal/core/error"
	logx "github.com/langfuse-nodes/server/pkg/logger"
)

const (
	// SDKName is reported in ingestion metadata.
	SDKName = "langfuse-nodes-go"
	// SDKVersion is reported in ingestion metadata.
	SDKVersion = "0.3.0"

	ingestionPath = "/api/public/ingestion"
	promptsPath   = "/api/public/v2/prompts"

	defaultFlushAt       = 15
	defaultFlushInterval = time.Second
	defaultTimeout       = 10 * time.Second
	defaultMaxRetries    = 3
	defaultRetryBackoff  = 500 * time.Millisecond
	maxBatchSize         = 100
)

var ErrClientClosed = errors.New("langfuse client is shut down")

// Config configures a Client.
type Config struct {
	Host      string
	PublicKey string
	SecretKey string

	// FlushAt sends as soon as this many events are queued. 1 sends every event immediately.
	FlushAt int
	// FlushInterval sends whatever is queued on this period.
	FlushInterval time.Duration
	Timeout       time.Duration
	// MaxRetries is how often a batch is resent after a transport error, 408, 429 or 5xx.
	// Negative disables retries.
	MaxRetries int
	// RetryBackoff is the first delay between attempts; later delays grow exponentially.
	RetryBackoff time.Duration

	HTTPClient  *http.Client
	Metrics     *Metrics
	PromptCache PromptCache
}

func (c Config) withDefaults() Config {
	if c.FlushAt <= 0 {
		c.FlushAt = defaultFlushAt
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaultFlushInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	if c.Metrics == nil {
		c.Metrics = NewMetrics(nil)
	}
	if c.PromptCache == nil {
		c.PromptCache = NewMemoryCache()
	}
	c.Host = strings.TrimRight(c.Host, "/")
	return c
}

// Client queues ingestion events and delivers them in the background.
type Client struct {
	cfg Config

	mu     sync.Mutex
	queue  []Event
	closed bool

	sendMu sync.Mutex
	wake   chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
	now    func() time.Time
}

// New creates a client and starts its delivery worker.
func New(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("langfuse host is empty")
	}
	if cfg.PublicKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("langfuse public and secret keys are required")
	}
	c := &Client{
		cfg:  cfg.withDefaults(),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		now:  time.Now,
	}
	c.wg.Add(1)
	go c.run()
	return c, nil
}

// Host returns the API base URL.
func (c *Client) Host() string {
	return c.cfg.Host
}

// Authorization returns the basic auth header value.
func (c *Client) Authorization() string {
	return BasicAuth(c.cfg.PublicKey, c.cfg.SecretKey)
}

// BasicAuth renders the Authorization header for a key pair.
func BasicAuth(publicKey, secretKey string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(publicKey+":"+secretKey))
}

func (c *Client) enqueue(t EventType, body map[string]any) {
	ev := Event{ID: newID(), Timestamp: c.now().UTC(), Type: t, Body: body}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		logx.Warn().Str("type", string(t)).Msg("langfuse event dropped, client is shut down")
		return
	}
	c.queue = append(c.queue, ev)
	full := len(c.queue) >= c.cfg.FlushAt
	c.mu.Unlock()

	c.cfg.Metrics.EventsEnqueued.WithLabelValues(string(t)).Inc()
	if full {
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of queued events.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Client) run() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
		if err := c.Flush(ctx); err != nil {
			logx.Error().Err(err).Str("host", c.cfg.Host).Msg("langfuse background flush failed")
		}
		cancel()
	}
}

// Flush sends every event queued before the call.
func (c *Client) Flush(ctx context.Context) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	batch := c.queue
	c.queue = nil
	c.mu.Unlock()

	var errs []error
	for start := 0; start < len(batch); start += maxBatchSize {
		end := min(start+maxBatchSize, len(batch))
		if err := c.send(ctx, batch[start:end]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shutdown stops the worker and flushes what is left.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	c.wg.Wait()
	return c.Flush(ctx)
}

func (c *Client) send(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	started := c.now()
	defer func() {
		c.cfg.Metrics.FlushDuration.Observe(time.Since(started).Seconds())
	}()

	payload, err := json.Marshal(ingestionRequest{
		Batch: events,
		Metadata: map[string]any{
			"batch_size":  len(events),
			"sdk_name":    SDKName,
			"sdk_version": SDKVersion,
			"public_key":  c.cfg.PublicKey,
		},
	})
	if err != nil {
		c.cfg.Metrics.EventsFailed.Add(float64(len(events)))
		return fmt.Errorf("marshal ingestion batch: %w", err)
	}

	resp, body, err := c.post(ctx, payload)
	if err != nil {
		c.cfg.Metrics.EventsFailed.Add(float64(len(events)))
		return err
	}

	var result ingestionResponse
	if err := json.Unmarshal(body, &result); err != nil || resp.StatusCode != http.StatusMultiStatus {
		c.cfg.Metrics.EventsSent.Add(float64(len(events)))
		return nil
	}
	c.cfg.Metrics.EventsSent.Add(float64(len(result.Successes)))
	c.cfg.Metrics.EventsFailed.Add(float64(len(result.Errors)))
	for _, e := range result.Errors {
		logx.Warn().
			Str("event_id", e.ID).
			Int("status", e.Status).
			Str("message", e.Message).
			Interface("error", e.Error).
			Msg("langfuse rejected ingestion event")
	}
	logx.Debug().Int("accepted", len(result.Successes)).Int("rejected", len(result.Errors)).Msg("langfuse batch delivered")
	return nil
}

// post delivers one ingestion payload. Event ids make a resent batch idempotent,
// so transient failures are retried with exponential backoff.
func (c *Client) post(ctx context.Context, payload []byte) (*http.Response, []byte, error) {
	type reply struct {
		resp *http.Response
		body []byte
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryBackoff

	r, err := backoff.Retry(ctx, func() (reply, error) {
		resp, err := c.do(ctx, http.MethodPost, ingestionPath, bytes.NewReader(payload))
		if err != nil {
			if ctx.Err() != nil {
				return reply{}, backoff.Permanent(err)
			}
			return reply{}, err
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return reply{resp: resp, body: body}, nil
		}
		err = errx.Upstream(fmt.Errorf("%s", strings.TrimSpace(string(body))), resp.StatusCode,
			fmt.Sprintf("langfuse ingestion returned %d", resp.StatusCode))
		if !retryableStatus(resp.StatusCode) {
			return reply{}, backoff.Permanent(err)
		}
		if secs, perr := strconv.Atoi(resp.Header.Get("Retry-After")); perr == nil && secs > 0 {
			logx.Debug().Int("status", resp.StatusCode).Int("retry_after", secs).Msg("langfuse asked to retry later")
			return reply{}, errors.Join(err, backoff.RetryAfter(secs))
		}
		return reply{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(max(c.cfg.MaxRetries, 0))+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			logx.Debug().Err(err).Dur("retry_in", next).Msg("retrying langfuse ingestion")
		}),
	)
	if err != nil {
		return nil, nil, err
	}
	return r.resp, r.body, nil
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.Host+path, body)
	if err != nil {
		return nil, fmt.Errorf("build langfuse request: %w", err)
	}
	req.Header.Set("Authorization", c.Authorization())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Langfuse-Sdk-Name", SDKName)
	req.Header.Set("X-Langfuse-Sdk-Version", SDKVersion)
	req.Header.Set("X-Langfuse-Public-Key", c.cfg.PublicKey)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, errx.Upstream(err, http.StatusBadGateway, "langfuse request failed")
	}
	return resp, nil
}

// CheckAuth verifies the credentials against the prompts endpoint.
func (c *Client) CheckAuth(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, promptsPath+"?limit=1", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return errx.Upstream(fmt.Errorf("%s", strings.TrimSpace(string(body))), resp.StatusCode,
			fmt.Sprintf("langfuse credential check returned %d", resp.StatusCode))
	}
	return nil
}
