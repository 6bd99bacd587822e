package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ragloop/api"
	"github.com/BaSui01/ragloop/rag"
	"github.com/BaSui01/ragloop/types"
)

// =============================================================================
// 📥 文档入库 Handler
// =============================================================================

// DocumentIngestor 是 handler 消费的入库管道，由 rag.Ingestor 实现。
type DocumentIngestor interface {
	IngestDocument(ctx context.Context, docID, text string, metadata map[string]any) (*rag.IngestResult, error)
}

// IngestHandler 文档入库处理器
type IngestHandler struct {
	ingestor DocumentIngestor
	metrics  Metrics
	logger   *zap.Logger
}

// NewIngestHandler 创建入库处理器。metrics 可以为 nil。
func NewIngestHandler(ingestor DocumentIngestor, metrics Metrics, logger *zap.Logger) *IngestHandler {
	return &IngestHandler{
		ingestor: ingestor,
		metrics:  metrics,
		logger:   logger,
	}
}

// HandleIngest 写入一篇文档
// @Summary 文档入库
// @Description 分块、向量化并替换写入语料库；重复 doc_id 整体替换旧块
// @Tags 语料
// @Accept json
// @Produce json
// @Param request body api.IngestRequest true "入库请求"
// @Success 200 {object} api.IngestResponse "入库结果"
// @Failure 400 {object} Response "请求格式错误"
// @Failure 422 {object} Response "语义校验失败"
// @Failure 502 {object} Response "向量化或写入失败"
// @Router /ingest [post]
func (h *IngestHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.IngestRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if strings.TrimSpace(req.DocID) == "" {
		WriteError(w, r, types.NewValidationError("doc_id is required"), h.logger)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		WriteError(w, r, types.NewValidationError("text is required"), h.logger)
		return
	}

	var metadata map[string]any
	if req.Source != "" {
		metadata = map[string]any{"source": req.Source}
	}

	start := time.Now()
	res, err := h.ingestor.IngestDocument(r.Context(), req.DocID, req.Text, metadata)
	duration := time.Since(start)

	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordIngest("error", 0, duration)
		}
		WriteError(w, r, AsTypedError(err), h.logger)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordIngest("ok", res.Chunks, duration)
	}

	h.logger.Info("document ingested",
		zap.String("doc_id", res.DocID),
		zap.Int("chunks", res.Chunks),
		zap.Duration("duration", duration),
	)

	WriteJSON(w, http.StatusOK, api.IngestResponse{
		DocID:  res.DocID,
		Chunks: res.Chunks,
	})
}
