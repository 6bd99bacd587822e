package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOllamaProvider_Name(t *testing.T) {
	provider := NewOllamaProvider(OllamaConfig{}, zap.NewNop())
	assert.Equal(t, "ollama", provider.Name())
}

func TestOllamaProvider_Complete(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mistral:7b-instruct", req.Model)
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Contains(t, req.Messages[0].Content, "capital of France")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "mistral:7b-instruct",
			"message": {"role": "assistant", "content": "Paris is the capital of France. [guide.md#0]"},
			"done": true,
			"eval_count": 12
		}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	provider := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL}, zap.NewNop())

	answer, err := provider.Complete(context.Background(), "What is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris is the capital of France. [guide.md#0]", answer)
}

func TestOllamaProvider_CompleteSendsOptions(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3:8b", req.Model)
		require.NotNil(t, req.Options)
		assert.InDelta(t, 0.2, req.Options.Temperature, 1e-6)
		assert.Equal(t, 8192, req.Options.NumCtx)
		assert.Equal(t, "5m", req.KeepAlive)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message": {"role": "assistant", "content": "ok"}, "done": true}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	provider := NewOllamaProvider(OllamaConfig{
		BaseURL:     srv.URL,
		ChatModel:   "llama3:8b",
		Temperature: 0.2,
		NumCtx:      8192,
		KeepAlive:   "5m",
	}, zap.NewNop())

	_, err := provider.Complete(context.Background(), "hi")
	require.NoError(t, err)
}

func TestOllamaProvider_CompleteEmptyAnswer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message": {"role": "assistant", "content": "   "}, "done": true}`))
	}))
	t.Cleanup(srv.Close)

	provider := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL}, zap.NewNop())

	_, err := provider.Complete(context.Background(), "hi")
	require.Error(t, err)

	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrUpstreamError, llmErr.Code)
	assert.True(t, llmErr.Retryable)
}

func TestOllamaProvider_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		status        int
		body          string
		wantCode      ErrorCode
		wantRetryable bool
	}{
		{"bad request", http.StatusBadRequest, `{"error":"invalid options"}`, ErrInvalidRequest, false},
		{"unauthorized", http.StatusUnauthorized, `{"error":"missing key"}`, ErrUnauthorized, false},
		{"model missing", http.StatusNotFound, `{"error":"model 'mistral:7b-instruct' not found, try pulling it first"}`, ErrModelNotFound, false},
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, ErrRateLimited, true},
		{"gateway timeout", http.StatusGatewayTimeout, `{"error":"upstream timeout"}`, ErrUpstreamTimeout, true},
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, ErrUpstreamError, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			provider := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL}, zap.NewNop())

			_, err := provider.Complete(context.Background(), "hi")
			require.Error(t, err)

			var llmErr *Error
			require.ErrorAs(t, err, &llmErr)
			assert.Equal(t, tt.wantCode, llmErr.Code)
			assert.Equal(t, tt.wantRetryable, llmErr.Retryable)
			assert.Equal(t, tt.status, llmErr.HTTPStatus)
			assert.NotEmpty(t, llmErr.Message)
		})
	}
}

func TestOllamaProvider_ModelNotFoundMessagePreserved(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'nomic-embed-text' not found, try pulling it first"}`))
	}))
	t.Cleanup(srv.Close)

	provider := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL}, zap.NewNop())

	_, err := provider.EmbedQuery(context.Background(), "hello")
	require.Error(t, err)

	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrModelNotFound, llmErr.Code)
	assert.Contains(t, llmErr.Message, "try pulling it first")
}

func TestOllamaProvider_EmbedDocuments(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		require.Equal(t, []string{"first chunk", "second chunk"}, req.Input)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "nomic-embed-text",
			"embeddings": [[0.1, 0.2], [0.3, 0.4]]
		}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	provider := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL}, zap.NewNop())

	vectors, err := provider.EmbedDocuments(context.Background(), []string{"first chunk", "second chunk"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float64{0.1, 0.2}, vectors[0])
	assert.Equal(t, []float64{0.3, 0.4}, vectors[1])
}

func TestOllamaProvider_EmbedQuery(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embeddings": [[0.5, 0.6, 0.7]]}`))
	}))
	t.Cleanup(srv.Close)

	provider := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL}, zap.NewNop())

	vector, err := provider.EmbedQuery(context.Background(), "what is X?")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.6, 0.7}, vector)
}

func TestOllamaProvider_EmbedCountMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embeddings": [[0.1]]}`))
	}))
	t.Cleanup(srv.Close)

	provider := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL}, zap.NewNop())

	_, err := provider.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.Error(t, err)

	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrUpstreamError, llmErr.Code)
}

func TestOllamaProvider_EmbedEmptyInput(t *testing.T) {
	t.Parallel()

	var called atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
	}))
	t.Cleanup(srv.Close)

	provider := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL}, zap.NewNop())

	vectors, err := provider.EmbedDocuments(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Zero(t, called.Load())
}

func TestOllamaProvider_HealthCheck(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"version": "0.6.2"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	provider := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL}, zap.NewNop())

	status, err := provider.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.Greater(t, status.Latency, time.Duration(0))
}

func TestOllamaProvider_HealthCheckFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"loading"}`, http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	provider := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL}, zap.NewNop())

	status, err := provider.HealthCheck(context.Background())
	require.Error(t, err)
	require.NotNil(t, status)
	assert.False(t, status.Healthy)

	// 网络层失败同样要报不健康。
	srv.Close()
	status, err = provider.HealthCheck(context.Background())
	require.Error(t, err)
	assert.False(t, status.Healthy)
	assert.False(t, errors.Is(err, context.Canceled))
}
