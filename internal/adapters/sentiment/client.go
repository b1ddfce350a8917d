// Package sentiment adapts an external binary sentiment model to the
// domain.Classifier port.
package sentiment

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"vibecheck/internal/adapters/observability"
	"vibecheck/internal/domain"
)

var (
	ErrMalformedOutput  = errors.New("sentiment: malformed model output")
	ErrUnauthorized     = errors.New("sentiment: unauthorized")
	ErrModelNotFound    = errors.New("sentiment: model not found")
	ErrModelUnavailable = errors.New("sentiment: model unavailable")
)

// probeText is classified once when the model is loaded.
const probeText = "This is a great product!"

const maxAttempts = 4

// Client talks to a Hugging Face compatible text-classification endpoint:
// POST {base}/models/{model} with {"inputs": [...]}.
type Client struct {
	url string
	hc  *http.Client
	key string
	rl  *rate.Limiter
}

var _ domain.Classifier = (*Client)(nil)

func New(base, model, key string, rps int, timeout time.Duration) (*Client, error) {
	if base == "" {
		return nil, fmt.Errorf("model base URL is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if rps <= 0 {
		rps = 10
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url: strings.TrimRight(base, "/") + "/models/" + model,
		hc:  &http.Client{Timeout: timeout},
		key: key,
		rl:  rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// Loader returns a Loader that builds a Client and warms the remote model
// up with one probe classification.
func Loader(base, model, key string, rps int, timeout time.Duration) LoaderFunc {
	return func(ctx context.Context) (domain.Classifier, error) {
		c, err := New(base, model, key, rps, timeout)
		if err != nil {
			return nil, err
		}
		if err := c.Warm(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Warm classifies a fixed probe text, which makes the inference server
// load the model if it is cold.
func (c *Client) Warm(ctx context.Context) error {
	_, err := c.Classify(ctx, probeText)
	return err
}

func (c *Client) Classify(ctx context.Context, text string) (domain.Classification, error) {
	out, err := c.ClassifyBatch(ctx, []string{text})
	if err != nil {
		return domain.Classification{}, err
	}
	return out[0], nil
}

func (c *Client) ClassifyBatch(ctx context.Context, texts []string) ([]domain.Classification, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(map[string]any{
		"inputs":  texts,
		"options": map[string]any{"wait_for_model": true},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var raw any
	if err := c.post(ctx, body, &raw); err != nil {
		return nil, err
	}
	return decodeBatch(raw, len(texts))
}

// post sends body with client-side rate limiting and retries, decoding the
// JSON response into out. 429, 5xx and "model loading" 503s are retried,
// honoring Retry-After or the server's estimated_time.
func (c *Client) post(ctx context.Context, body []byte, out any) error {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		// every attempt, retries included, takes a limiter token
		if err := c.rl.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		if c.key != "" {
			req.Header.Set("Authorization", "Bearer "+c.key)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "vibecheck/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("sentiment", "classify", 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < maxAttempts-1 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal("sentiment", "classify", resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
			}
			return nil

		case http.StatusNotFound:
			resp.Body.Close()
			return ErrModelNotFound

		case http.StatusUnauthorized, http.StatusForbidden:
			resp.Body.Close()
			return ErrUnauthorized

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			if wait == 0 && resp.StatusCode == http.StatusServiceUnavailable {
				wait = estimatedLoadTime(resp.Body)
			}
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("%w: remote %d", ErrModelUnavailable, resp.StatusCode)
			if i < maxAttempts-1 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}
	return lastErr
}

// maxLoadWait caps how long a single retry waits for a cold model.
const maxLoadWait = 20 * time.Second

// estimatedLoadTime reads {"error": "...", "estimated_time": 12.5} from a
// 503 body. Returns 0 if absent.
func estimatedLoadTime(r io.Reader) time.Duration {
	var body struct {
		EstimatedTime float64 `json:"estimated_time"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&body); err != nil || body.EstimatedTime <= 0 {
		return 0
	}
	d := time.Duration(body.EstimatedTime * float64(time.Second))
	if d > maxLoadWait {
		d = maxLoadWait
	}
	return d
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns 200ms, 400ms, 800ms... plus up to 50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
