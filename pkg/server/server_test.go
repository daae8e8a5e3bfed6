package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/joeychilson/emojicoach/pkg/labels"
	"github.com/joeychilson/emojicoach/pkg/postprocess"
	"github.com/joeychilson/emojicoach/pkg/predict"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// sunnyClassifier favours ☀ (12), then 😎 (6), then 😊 (5)
type sunnyClassifier struct{}

func (sunnyClassifier) Classify(context.Context, string) ([]postprocess.Classification, error) {
	scores := make([]postprocess.Classification, 20)
	for i := range scores {
		scores[i] = postprocess.Classification{Label: labels.ClassLabel(i), Class: i, Confidence: 0.01}
	}
	scores[12].Confidence = 0.5
	scores[6].Confidence = 0.2
	scores[5].Confidence = 0.11
	return scores, nil
}

type failingPredictor struct{}

func (failingPredictor) Reactions(context.Context, string, int) ([]predict.Reaction, error) {
	return nil, errors.New("session exploded")
}

// blockingPredictor holds every call until release is closed
type blockingPredictor struct {
	started chan struct{}
	release chan struct{}
}

func (p *blockingPredictor) Reactions(ctx context.Context, text string, k int) ([]predict.Reaction, error) {
	p.started <- struct{}{}
	<-p.release
	return []predict.Reaction{{Class: 0, Label: "LABEL_0", Emoji: "❤", Score: 1}}, nil
}

func newTestServer(t *testing.T, p Predictor, cfg Config) *Server {
	t.Helper()
	if p == nil {
		p = predict.NewHandler(sunnyClassifier{}, labels.TweetEval(), zaptest.NewLogger(t))
	}
	s, err := New(p, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIndexRendersForm(t *testing.T) {
	s := newTestServer(t, nil, Config{})

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "TweetEval Emoji Reaction Coach")
	assert.Contains(t, body, "Enter a X/Twitter post here")
	assert.Contains(t, body, "Top-K Emojis")
	assert.Contains(t, body, "Reply with Emojis...")
	assert.Contains(t, body, `min="1" max="5"`)
	assert.Contains(t, body, "Sunny days!")
	assert.Contains(t, body, "That movie was amazing.")
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestIndexFormSubmit(t *testing.T) {
	s := newTestServer(t, nil, Config{})

	form := url.Values{"text": {"Sunny days!"}, "k": {"2"}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := do(t, s, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "☀ 😎</output>")
}

func TestIndexExampleLink(t *testing.T) {
	s := newTestServer(t, nil, Config{})

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/?text=Sunny+days%21&k=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "☀</output>")
}

func TestIndexInvalidK(t *testing.T) {
	s := newTestServer(t, nil, Config{})

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/?text=hi&k=9", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "k out of range")
}

func TestAPIPredict(t *testing.T) {
	s := newTestServer(t, nil, Config{})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantEmojis string
	}{
		{"default k", `{"text":"Sunny days!"}`, http.StatusOK, "☀ 😎 😊"},
		{"k=1", `{"text":"Sunny days!","k":1}`, http.StatusOK, "☀"},
		{"empty text", `{"text":"","k":2}`, http.StatusOK, "☀ 😎"},
		{"k too large", `{"text":"x","k":6}`, http.StatusBadRequest, ""},
		{"k zero", `{"text":"x","k":0}`, http.StatusBadRequest, ""},
		{"bad json", `{"text":`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			rec := do(t, s, req)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp PredictResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantEmojis, resp.Emojis)
			assert.Len(t, resp.Reactions, len(strings.Split(tt.wantEmojis, " ")))
		})
	}
}

func TestAPIPredictFailure(t *testing.T) {
	s := newTestServer(t, failingPredictor{}, Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(`{"text":"x"}`))
	rec := do(t, s, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChart(t *testing.T) {
	s := newTestServer(t, nil, Config{})

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/chart.png?text=Sunny&k=3", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	_, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	assert.NoError(t, err)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/chart.png?text=Sunny&k=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndReadiness(t *testing.T) {
	s := newTestServer(t, nil, Config{})

	assert.Equal(t, http.StatusOK, do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, httptest.NewRequest(http.MethodGet, "/readyz", nil)).Code)

	s.SetReady(true)
	assert.Equal(t, http.StatusOK, do(t, s, httptest.NewRequest(http.MethodGet, "/readyz", nil)).Code)
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t, nil, Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(`{"text":"x","k":1}`))
	require.Equal(t, http.StatusOK, do(t, s, req).Code)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `emojicoach_predictions_total{outcome="ok"} 1`)
	assert.Contains(t, rec.Body.String(), "emojicoach_inference_duration_seconds")
}

func TestRequestIDPropagated(t *testing.T) {
	s := newTestServer(t, nil, Config{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := do(t, s, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestConcurrencyLimit(t *testing.T) {
	p := &blockingPredictor{started: make(chan struct{}, 1), release: make(chan struct{})}
	s := newTestServer(t, p, Config{MaxConcurrent: 1})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(`{"text":"a"}`))
		assert.Equal(t, http.StatusOK, do(t, s, req).Code)
	}()
	<-p.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(`{"text":"b"}`)).WithContext(ctx)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, req).Code)

	close(p.release)
	wg.Wait()
}

func TestRunShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, nil, Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestParseK(t *testing.T) {
	k, err := parseK("")
	require.NoError(t, err)
	assert.Equal(t, predict.DefaultK, k)

	k, err = parseK("4")
	require.NoError(t, err)
	assert.Equal(t, 4, k)

	_, err = parseK("four")
	assert.ErrorIs(t, err, predict.ErrInvalidK)
}
