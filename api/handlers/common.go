package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ragloop/internal/ctxkeys"
	"github.com/BaSui01/ragloop/types"
)

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// maxBodyBytes 限制请求体大小，防止超长正文拖垮解码。
const maxBodyBytes = 1 << 20 // 1 MB

// Response 统一错误与元信息响应结构。
// 成功的业务响应直接写契约形状，不套此信封。
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	ThreadID  string `json:"thread_id,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// 响应头已写出，编码失败只能由调用方日志兜底
		return
	}
}

// WriteSuccess 写入带信封的成功响应，用于元信息端点。
func WriteSuccess(w http.ResponseWriter, r *http.Request, data interface{}) {
	resp := Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	}
	if id, ok := ctxkeys.RequestID(r.Context()); ok {
		resp.RequestID = id
	}
	WriteJSON(w, http.StatusOK, resp)
}

// WriteError 写入错误响应（从 types.Error）
func WriteError(w http.ResponseWriter, r *http.Request, err *types.Error, logger *zap.Logger) {
	status := err.HTTPStatus
	if status == 0 {
		status = mapErrorCodeToHTTPStatus(err.Code)
	}

	errorInfo := &ErrorInfo{
		Code:      string(err.Code),
		Message:   err.Message,
		ThreadID:  err.Thread,
		Retryable: err.Retryable,
	}

	resp := Response{
		Success:   false,
		Error:     errorInfo,
		Timestamp: time.Now(),
	}

	var requestID string
	if r != nil {
		if id, ok := ctxkeys.RequestID(r.Context()); ok {
			requestID = id
			resp.RequestID = id
		}
	}

	if logger != nil {
		logger.Error("API error",
			zap.String("code", string(err.Code)),
			zap.String("message", err.Message),
			zap.Int("status", status),
			zap.String("thread_id", err.Thread),
			zap.Bool("retryable", err.Retryable),
			zap.String("request_id", requestID),
			zap.Error(err.Cause),
		)
	}

	WriteJSON(w, status, resp)
}

// AsTypedError 将任意错误规整为 types.Error，未知错误按内部错误处理。
func AsTypedError(err error) *types.Error {
	if typed, ok := types.AsError(err); ok {
		return typed
	}
	return types.NewError(types.ErrInternal, "internal error").
		WithCause(err).
		WithHTTPStatus(http.StatusInternalServerError)
}

// =============================================================================
// 🔄 错误码到 HTTP 状态码映射
// =============================================================================

func mapErrorCodeToHTTPStatus(code types.ErrorCode) int {
	switch code {
	// 4xx 客户端错误
	case types.ErrNotFound:
		return http.StatusNotFound
	case types.ErrInvalidState, types.ErrConflict:
		return http.StatusConflict
	case types.ErrValidation:
		return http.StatusUnprocessableEntity

	// 5xx 服务端错误
	case types.ErrRetrievalFailure, types.ErrGenerationFailure:
		return http.StatusBadGateway
	case types.ErrUnavailable:
		return http.StatusServiceUnavailable
	case types.ErrInternal:
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}

// =============================================================================
// 🛡️ 请求验证辅助函数
// =============================================================================

// DecodeJSONBody 解码 JSON 请求体。格式问题一律按 400 处理，
// 区别于语义校验的 422。
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}, logger *zap.Logger) error {
	if r.Body == nil {
		err := types.NewValidationError("request body is empty").
			WithHTTPStatus(http.StatusBadRequest)
		WriteError(w, r, err, logger)
		return err
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields() // 严格模式：拒绝未知字段

	if err := decoder.Decode(dst); err != nil {
		apiErr := types.NewValidationError("invalid JSON body").
			WithCause(err).
			WithHTTPStatus(http.StatusBadRequest)
		WriteError(w, r, apiErr, logger)
		return apiErr
	}

	return nil
}

// ValidateContentType 验证 Content-Type 为 application/json（允许带 charset）。
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	contentType := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(contentType, "application/json") {
		err := types.NewValidationError("Content-Type must be application/json").
			WithHTTPStatus(http.StatusBadRequest)
		WriteError(w, r, err, logger)
		return false
	}
	return true
}

// =============================================================================
// 📊 响应包装器（用于捕获状态码）
// =============================================================================

// ResponseWriter 包装 http.ResponseWriter 以捕获状态码
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
}

// NewResponseWriter 创建新的 ResponseWriter
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader 重写 WriteHeader 以捕获状态码
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write 重写 Write 以标记已写入
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
