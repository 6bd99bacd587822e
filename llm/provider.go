package llm

import (
	"context"
	"time"
)

// 统一的 LLM 错误码，用于对齐 HTTP 状态与可重试性。
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "LLM_INVALID_REQUEST"  // 参数/格式错误
	ErrUnauthorized    ErrorCode = "LLM_UNAUTHORIZED"     // 未授权或密钥失效
	ErrModelNotFound   ErrorCode = "LLM_MODEL_NOT_FOUND"  // 模型未安装或不存在
	ErrRateLimited     ErrorCode = "LLM_RATE_LIMITED"     // 上游或本地限流
	ErrUpstreamTimeout ErrorCode = "LLM_UPSTREAM_TIMEOUT" // 上游超时
	ErrUpstreamError   ErrorCode = "LLM_UPSTREAM_ERROR"   // 上游 5xx/网络错误
)

type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
}

func (e *Error) Error() string { return e.Message }

type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// Provider 定义生成端的统一适配接口。
// 本仓库只做单轮补全：工作流把完整提示词拼好后一次性交给 Provider，
// 不携带会话历史，也不做流式输出。
type Provider interface {
	// Name 返回 Provider 标识，用于日志与健康上报
	Name() string

	// Complete 发起同步补全请求，返回完整回答文本
	Complete(ctx context.Context, prompt string) (string, error)

	// HealthCheck 探测上游可用性
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}
