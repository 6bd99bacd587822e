package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ragloop/api"
	"github.com/BaSui01/ragloop/types"
	"github.com/BaSui01/ragloop/workflow"
)

// =============================================================================
// 💬 问答工作流 Handler
// =============================================================================

// Engine 是 handler 消费的工作流入口，由 workflow.Executor 实现。
type Engine interface {
	Start(ctx context.Context, question string, topK int) (*workflow.Result, error)
	Resume(ctx context.Context, threadID string, decision workflow.Decision) (*workflow.Result, error)
}

// Metrics 是 handler 上报业务指标的出口，由 metrics.Collector 实现。
// 传 nil 时不上报。
type Metrics interface {
	RecordWorkflowStart(status string)
	RecordWorkflowResume(status string)
	RecordInterrupt(node string)
	RecordCheckpointConflict(operation string)
	RecordIngest(status string, chunks int, duration time.Duration)
}

// AskHandler 问答工作流处理器
type AskHandler struct {
	engine  Engine
	metrics Metrics
	logger  *zap.Logger
}

// NewAskHandler 创建问答处理器。metrics 可以为 nil。
func NewAskHandler(engine Engine, metrics Metrics, logger *zap.Logger) *AskHandler {
	return &AskHandler{
		engine:  engine,
		metrics: metrics,
		logger:  logger,
	}
}

// HandleStart 发起一次问答线程
// @Summary 启动问答工作流
// @Description 检索上下文后挂起等待人工审核；202 表示线程已挂起
// @Tags 问答
// @Accept json
// @Produce json
// @Param request body api.StartRequest true "启动请求"
// @Success 202 {object} api.AskResponse "线程挂起等待审核"
// @Success 200 {object} api.AskResponse "线程直接完成"
// @Failure 400 {object} Response "请求格式错误"
// @Failure 422 {object} Response "语义校验失败"
// @Failure 502 {object} Response "检索能力失败"
// @Router /ask/start [post]
func (h *AskHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.StartRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	start := time.Now()
	res, err := h.engine.Start(r.Context(), req.Question, req.TopK)
	if err != nil {
		h.recordStart("error")
		WriteError(w, r, AsTypedError(err), h.logger)
		return
	}

	h.logger.Info("ask started",
		zap.String("thread_id", res.ThreadID),
		zap.Bool("interrupted", res.Interrupted()),
		zap.Duration("duration", time.Since(start)),
	)

	h.writeResult(w, res, "start")
}

// HandleResume 恢复一个挂起的线程
// @Summary 恢复问答工作流
// @Description 注入审核决定并继续执行到完成
// @Tags 问答
// @Accept json
// @Produce json
// @Param request body api.ResumeRequest true "恢复请求"
// @Success 200 {object} api.AskResponse "线程完成"
// @Failure 400 {object} Response "请求格式错误"
// @Failure 404 {object} Response "线程不存在"
// @Failure 409 {object} Response "线程状态不可恢复或并发冲突"
// @Failure 422 {object} Response "审核决定缺失或不合法"
// @Failure 502 {object} Response "生成能力失败"
// @Router /ask/resume [post]
func (h *AskHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.ResumeRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if strings.TrimSpace(req.ThreadID) == "" {
		h.recordResume("rejected")
		WriteError(w, r, types.NewValidationError("thread_id is required"), h.logger)
		return
	}
	if req.Decision == nil {
		h.recordResume("rejected")
		WriteError(w, r, types.NewValidationError("decision is required"), h.logger)
		return
	}

	decision := workflow.NewDecision(req.Decision.Approved, req.Decision.EditedContext)

	start := time.Now()
	res, err := h.engine.Resume(r.Context(), req.ThreadID, decision)
	if err != nil {
		h.recordResume(resumeFailureStatus(err))
		if types.IsConflict(err) && h.metrics != nil {
			h.metrics.RecordCheckpointConflict("resume")
		}
		WriteError(w, r, AsTypedError(err), h.logger)
		return
	}

	h.logger.Info("ask resumed",
		zap.String("thread_id", res.ThreadID),
		zap.String("decision", string(decision.Kind)),
		zap.Bool("interrupted", res.Interrupted()),
		zap.Duration("duration", time.Since(start)),
	)

	h.writeResult(w, res, "resume")
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// writeResult 把执行结果映射到契约响应：挂起 202，完成 200。
func (h *AskHandler) writeResult(w http.ResponseWriter, res *workflow.Result, op string) {
	if res.Interrupted() {
		h.recordOutcome(op, "interrupted")
		if h.metrics != nil {
			h.metrics.RecordInterrupt(res.Interrupt.Action)
		}
		WriteJSON(w, http.StatusAccepted, api.AskResponse{
			ThreadID:  res.ThreadID,
			Interrupt: &api.InterruptEnvelope{Value: res.Interrupt},
		})
		return
	}

	h.recordOutcome(op, "completed")
	WriteJSON(w, http.StatusOK, api.AskResponse{
		ThreadID: res.ThreadID,
		Answer:   res.Answer,
	})
}

func (h *AskHandler) recordOutcome(op, status string) {
	if op == "start" {
		h.recordStart(status)
		return
	}
	h.recordResume(status)
}

func (h *AskHandler) recordStart(status string) {
	if h.metrics != nil {
		h.metrics.RecordWorkflowStart(status)
	}
}

func (h *AskHandler) recordResume(status string) {
	if h.metrics != nil {
		h.metrics.RecordWorkflowResume(status)
	}
}

// resumeFailureStatus 把恢复失败归类成指标状态值。
func resumeFailureStatus(err error) string {
	switch {
	case types.IsConflict(err):
		return "conflict"
	case types.IsNotFound(err), types.IsInvalidState(err), types.IsValidation(err):
		return "rejected"
	default:
		return "error"
	}
}
