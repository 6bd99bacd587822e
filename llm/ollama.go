package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OllamaConfig 配置本地/远程 Ollama 实例。
// ChatModel 负责回答生成，EmbedModel 负责向量化；两者独立配置，
// 因为嵌入模型与对话模型几乎总是不同的（如 nomic-embed-text 对 mistral）。
type OllamaConfig struct {
	BaseURL     string        `json:"base_url" yaml:"base_url"`
	ChatModel   string        `json:"chat_model" yaml:"chat_model"`
	EmbedModel  string        `json:"embed_model" yaml:"embed_model"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
	Temperature float32       `json:"temperature" yaml:"temperature"`
	NumCtx      int           `json:"num_ctx" yaml:"num_ctx"`
	KeepAlive   string        `json:"keep_alive" yaml:"keep_alive"`
}

// OllamaProvider 实现 Ollama 的生成与嵌入适配。
// Ollama 与 OpenAI 风格 API 的差异：
// 1. 无鉴权头（本地部署），错误体是扁平的 {"error": "..."}
// 2. 非流式需要显式 stream=false，否则按行返回 NDJSON
// 3. 嵌入走 /api/embed，支持批量 input
type OllamaProvider struct {
	cfg    OllamaConfig
	client *http.Client
	logger *zap.Logger
}

// NewOllamaProvider 创建 Ollama Provider。
func NewOllamaProvider(cfg OllamaConfig, logger *zap.Logger) *OllamaProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ChatModel == "" {
		cfg.ChatModel = "mistral:7b-instruct"
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "nomic-embed-text"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second // 本地推理可能很慢
	}

	return &OllamaProvider{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With(zap.String("component", "ollama_provider")),
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

// ====== 请求/响应结构 ======

type ollamaMessage struct {
	Role    string `json:"role"` // system, user 或 assistant
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature,omitempty"`
	NumCtx      int     `json:"num_ctx,omitempty"`
}

type ollamaChatRequest struct {
	Model     string          `json:"model"`
	Messages  []ollamaMessage `json:"messages"`
	Stream    bool            `json:"stream"`
	Options   *ollamaOptions  `json:"options,omitempty"`
	KeepAlive string          `json:"keep_alive,omitempty"`
}

type ollamaChatResponse struct {
	Model      string        `json:"model"`
	Message    ollamaMessage `json:"message"`
	Done       bool          `json:"done"`
	DoneReason string        `json:"done_reason,omitempty"`
	EvalCount  int           `json:"eval_count,omitempty"`
}

type ollamaEmbedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	KeepAlive string   `json:"keep_alive,omitempty"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

type ollamaErrorResp struct {
	Error string `json:"error"`
}

// ====== 生成 ======

// Complete 发起单轮非流式补全。
func (p *OllamaProvider) Complete(ctx context.Context, prompt string) (string, error) {
	body := ollamaChatRequest{
		Model: p.cfg.ChatModel,
		Messages: []ollamaMessage{
			{Role: "user", Content: prompt},
		},
		Stream:    false,
		KeepAlive: p.cfg.KeepAlive,
	}
	if p.cfg.Temperature != 0 || p.cfg.NumCtx != 0 {
		body.Options = &ollamaOptions{
			Temperature: p.cfg.Temperature,
			NumCtx:      p.cfg.NumCtx,
		}
	}

	var chatResp ollamaChatResponse
	if err := p.doJSON(ctx, "/api/chat", body, &chatResp); err != nil {
		return "", err
	}

	answer := strings.TrimSpace(chatResp.Message.Content)
	if answer == "" {
		return "", &Error{
			Code:       ErrUpstreamError,
			Message:    "ollama returned an empty completion",
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   p.Name(),
		}
	}

	p.logger.Debug("completion finished",
		zap.String("model", chatResp.Model),
		zap.Int("eval_count", chatResp.EvalCount))

	return answer, nil
}

// ====== 嵌入 ======

// EmbedQuery 向量化单条查询。
func (p *OllamaProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	vectors, err := p.EmbedDocuments(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedDocuments 批量向量化，结果与输入一一对应。
func (p *OllamaProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	if len(documents) == 0 {
		return [][]float64{}, nil
	}

	body := ollamaEmbedRequest{
		Model:     p.cfg.EmbedModel,
		Input:     documents,
		KeepAlive: p.cfg.KeepAlive,
	}

	var embedResp ollamaEmbedResponse
	if err := p.doJSON(ctx, "/api/embed", body, &embedResp); err != nil {
		return nil, err
	}

	if len(embedResp.Embeddings) != len(documents) {
		return nil, &Error{
			Code:       ErrUpstreamError,
			Message:    fmt.Sprintf("ollama returned %d embeddings for %d inputs", len(embedResp.Embeddings), len(documents)),
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   p.Name(),
		}
	}
	return embedResp.Embeddings, nil
}

// ====== 健康检查 ======

func (p *OllamaProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()
	endpoint := p.cfg.BaseURL + "/api/version"
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := readOllamaErrMsg(resp.Body)
		return &HealthStatus{Healthy: false, Latency: latency}, fmt.Errorf("ollama health check failed: status=%d msg=%s", resp.StatusCode, msg)
	}
	return &HealthStatus{Healthy: true, Latency: latency}, nil
}

// ====== HTTP 细节 ======

func (p *OllamaProvider) doJSON(ctx context.Context, path string, in any, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return &Error{
			Code:       ErrInvalidRequest,
			Message:    err.Error(),
			HTTPStatus: http.StatusBadRequest,
			Provider:   p.Name(),
		}
	}

	endpoint := p.cfg.BaseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return &Error{
			Code:       ErrInvalidRequest,
			Message:    err.Error(),
			HTTPStatus: http.StatusBadRequest,
			Provider:   p.Name(),
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		code := ErrUpstreamError
		if errors.Is(err, context.DeadlineExceeded) {
			code = ErrUpstreamTimeout
		}
		return &Error{
			Code:       code,
			Message:    err.Error(),
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   p.Name(),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readOllamaErrMsg(resp.Body)
		return mapOllamaError(resp.StatusCode, msg, p.Name())
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{
			Code:       ErrUpstreamError,
			Message:    err.Error(),
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   p.Name(),
		}
	}
	return nil
}

func readOllamaErrMsg(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var errResp ollamaErrorResp
	if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
		return errResp.Error
	}
	return string(data)
}

func mapOllamaError(status int, msg string, provider string) *Error {
	switch status {
	case http.StatusBadRequest:
		return &Error{Code: ErrInvalidRequest, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &Error{Code: ErrUnauthorized, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusNotFound:
		// Ollama 对未拉取的模型返回 404
		return &Error{Code: ErrModelNotFound, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusTooManyRequests:
		return &Error{Code: ErrRateLimited, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	case http.StatusGatewayTimeout:
		return &Error{Code: ErrUpstreamTimeout, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	default:
		return &Error{Code: ErrUpstreamError, Message: msg, HTTPStatus: status, Retryable: status >= 500, Provider: provider}
	}
}

var _ Provider = (*OllamaProvider)(nil)
