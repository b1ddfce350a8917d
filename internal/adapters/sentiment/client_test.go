package sentiment_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"vibecheck/internal/adapters/sentiment"
	"vibecheck/internal/domain"
)

func newClient(t *testing.T, url string) *sentiment.Client {
	t.Helper()
	cl, err := sentiment.New(url, "distilbert-sst2", "test-key", 100, 2*time.Second) // high RPS for tests
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	return cl
}

func TestClient_Classify_RetriesThenSuccess(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/distilbert-sst2" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		switch atomic.AddInt32(&hits, 1) {
		case 1, 2:
			w.WriteHeader(500)
		default:
			_ = json.NewEncoder(w).Encode([]map[string]any{{"label": "POSITIVE", "score": 0.97}})
		}
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := newClient(t, ts.URL).Classify(ctx, "lovely place")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Label != domain.Positive || got.Confidence != 0.97 {
		t.Fatalf("unexpected classification: %+v", got)
	}
	if atomic.LoadInt32(&hits) < 3 {
		t.Fatalf("expected at least 3 calls due to retries, got %d", hits)
	}
}

func TestClient_ClassifyBatch_PreservesOrder(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Inputs []string `json:"inputs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		out := make([][]map[string]any, 0, len(req.Inputs))
		for _, in := range req.Inputs {
			if in == "bad" {
				out = append(out, []map[string]any{{"label": "NEGATIVE", "score": 0.9}, {"label": "POSITIVE", "score": 0.1}})
			} else {
				out = append(out, []map[string]any{{"label": "NEGATIVE", "score": 0.2}, {"label": "POSITIVE", "score": 0.8}})
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer ts.Close()

	got, err := newClient(t, ts.URL).ClassifyBatch(context.Background(), []string{"good", "bad", "good"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	want := []domain.Classification{
		{Label: domain.Positive, Confidence: 0.8},
		{Label: domain.Negative, Confidence: 0.9},
		{Label: domain.Positive, Confidence: 0.8},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d results, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("result %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestClient_ModelLoadingThenReady(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "Model is currently loading", "estimated_time": 0.05})
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{{"label": "NEGATIVE", "score": 0.6}})
	}))
	defer ts.Close()

	if err := newClient(t, ts.URL).Warm(context.Background()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("expected 2 calls, got %d", hits)
	}
}

func TestClient_404(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	_, err := newClient(t, ts.URL).Classify(context.Background(), "text")
	if !errors.Is(err, sentiment.ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}

func TestClient_MalformedOutput(t *testing.T) {
	bodies := []string{
		`[{"label": "MIXED", "score": 0.5}]`,
		`[{"label": "POSITIVE", "score": 1.5}]`,
		`[{"label": "POSITIVE"}]`,
		`[]`,
		`"nope"`,
		`not json`,
	}
	for _, body := range bodies {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		_, err := newClient(t, ts.URL).Classify(context.Background(), "text")
		ts.Close()
		if !errors.Is(err, sentiment.ErrMalformedOutput) {
			t.Fatalf("body %s: expected ErrMalformedOutput, got %v", body, err)
		}
	}
}

func TestNew_RequiresBaseAndModel(t *testing.T) {
	if _, err := sentiment.New("", "m", "", 1, 0); err == nil {
		t.Fatalf("expected error for empty base URL")
	}
	if _, err := sentiment.New("http://x", "", "", 1, 0); err == nil {
		t.Fatalf("expected error for empty model")
	}
}

func TestClient_RetriesWaitForRateLimiter(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{{"label": "NEGATIVE", "score": 0.9}})
	}))
	defer ts.Close()

	cl, err := sentiment.New(ts.URL, "distilbert-sst2", "", 1, 2*time.Second) // one request per second
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	start := time.Now()
	if _, err := cl.Classify(context.Background(), "cold fries"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	// backoff alone is at most 300ms; the second token is due after 1s
	if took := time.Since(start); took < 700*time.Millisecond {
		t.Fatalf("retry skipped the rate limiter: took %v", took)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("expected 2 calls, got %d", hits)
	}
}
