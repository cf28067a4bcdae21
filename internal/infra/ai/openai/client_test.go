package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/footprint/internal/domain/ai"
)

func fakeServer(t *testing.T, status int, body any) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Equal(t, 2048, req.MaxTokens)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return NewClientWithConfig(cfg, "")
}

func TestAnalyzeReturnsReport(t *testing.T) {
	report := `{"scan_id":"s1","exposure_level":"low","counts":{"critical":0,"high":0,"medium":0,"low":1,"total":1},"risks":[],"advice":"ok"}`
	c := fakeServer(t, http.StatusOK, map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": report}}},
	})

	out, err := c.Analyze(context.Background(), ai.Digest{ScanID: "s1"})
	require.NoError(t, err)
	assert.JSONEq(t, report, out)
	assert.Equal(t, "gpt-4o-mini", c.Model())
}

func TestAnalyzeQuotaExceeded(t *testing.T) {
	c := fakeServer(t, http.StatusTooManyRequests, map[string]any{
		"error": map[string]any{"message": "You exceeded your current quota", "type": "insufficient_quota", "code": "insufficient_quota"},
	})
	_, err := c.Analyze(context.Background(), ai.Digest{ScanID: "s1"})
	assert.ErrorIs(t, err, ai.ErrQuotaExceeded)
}

func TestAnalyzeRejectsInvalidReport(t *testing.T) {
	c := fakeServer(t, http.StatusOK, map[string]any{
		"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": "sorry"}}},
	})
	_, err := c.Analyze(context.Background(), ai.Digest{})
	assert.Error(t, err)
}
