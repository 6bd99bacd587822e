package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/BaSui01/ragloop/internal/ctxkeys"
)

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := SecurityHeaders()(inner)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
}

func TestSecurityHeaders_ChainedWithOtherMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	handler := Chain(inner, SecurityHeaders(), RequestID())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	// SecurityHeaders 生效
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
	// RequestID 也生效
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestID_InjectsContext(t *testing.T) {
	var gotID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = ctxkeys.RequestID(r.Context())
	})

	handler := RequestID()(inner)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/ask/start", nil)
	handler.ServeHTTP(w, r)

	assert.NotEmpty(t, gotID)
	assert.Equal(t, gotID, w.Header().Get("X-Request-ID"))
}

func TestRequestID_PreservesClientID(t *testing.T) {
	var gotID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = ctxkeys.RequestID(r.Context())
	})

	handler := RequestID()(inner)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/ask/start", nil)
	r.Header.Set("X-Request-ID", "client-supplied-42")
	handler.ServeHTTP(w, r)

	assert.Equal(t, "client-supplied-42", gotID)
	assert.Equal(t, "client-supplied-42", w.Header().Get("X-Request-ID"))
}

func TestRecovery(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	handler := Recovery(zap.NewNop())(inner)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	assert.NotPanics(t, func() {
		handler.ServeHTTP(w, r)
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/ask/start", "/ask/start"},
		{"/ask/resume", "/ask/resume"},
		{"/ingest", "/ingest"},
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		// 32 位十六进制线程 id 归一化为 :id
		{"/threads/8c4f2a1e9b7d4c6fa0b1c2d3e4f50617", "/threads/:id"},
		// 纯数字段归一化
		{"/docs/12345", "/docs/:id"},
		// 无动态段保持原样
		{"/unknown/route", "/unknown/route"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(tt.path))
		})
	}
}

func TestCORS_NoOriginsConfigured(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := CORS(nil)(inner)

	// 跨域预检在未配置来源时直接拒绝
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodOptions, "/ask/start", nil)
	r.Header.Set("Origin", "https://evil.example")
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	// 同源请求照常通过
	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/health", nil)
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORS_MatchedOrigin(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := CORS([]string{"https://app.example"})(inner)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodOptions, "/ask/start", nil)
	r.Header.Set("Origin", "https://app.example")
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestCORS_UnmatchedOrigin(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := CORS([]string{"https://app.example"})(inner)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("Origin", "https://other.example")
	handler.ServeHTTP(w, r)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	// rps 接近 0、突发量 1：第一个请求放行，第二个立即被限
	handler := RateLimiter(ctx, 0.001, 1, zap.NewNop())(inner)

	r := httptest.NewRequest(http.MethodPost, "/ask/start", nil)
	r.RemoteAddr = "192.0.2.1:1234"

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
