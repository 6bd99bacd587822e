package rag

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/ragloop/workflow"
)

// Embedder 向量化能力接口。检索端用 EmbedQuery，入库端用 EmbedDocuments，
// 两端必须来自同一个模型，否则相似度没有意义。
type Embedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float64, error)
	EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error)
}

// VectorRetriever 把向量库检索适配成工作流的 Retriever 能力：
// 向量化查询，按相似度取 Top-K，映射为带引用 id 的上下文块。
type VectorRetriever struct {
	store    VectorStore
	embedder Embedder
	logger   *zap.Logger
}

// NewVectorRetriever 创建检索器
func NewVectorRetriever(store VectorStore, embedder Embedder, logger *zap.Logger) *VectorRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorRetriever{
		store:    store,
		embedder: embedder,
		logger:   logger.With(zap.String("component", "retriever")),
	}
}

// Search 检索与查询最相似的 k 个块，按相似度降序返回。
func (r *VectorRetriever) Search(ctx context.Context, query string, k int) ([]workflow.RetrievedChunk, error) {
	embedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := r.store.Search(ctx, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	chunks := make([]workflow.RetrievedChunk, 0, len(results))
	for _, res := range results {
		chunks = append(chunks, workflow.RetrievedChunk{
			SourceID: res.Document.ID,
			Text:     res.Document.Content,
			Score:    res.Score,
		})
	}

	r.logger.Debug("retrieval completed",
		zap.Int("requested", k),
		zap.Int("returned", len(chunks)))

	return chunks, nil
}

var _ workflow.Retriever = (*VectorRetriever)(nil)
