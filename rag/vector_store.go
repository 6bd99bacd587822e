package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// VectorStore 向量数据库接口
type VectorStore interface {
	// 添加文档（已带 embedding）
	AddDocuments(ctx context.Context, docs []Document) error

	// 搜索相似文档
	Search(ctx context.Context, queryEmbedding []float64, topK int) ([]VectorSearchResult, error)

	// 删除某个源文档的全部块
	DeleteByDocID(ctx context.Context, docID string) error

	// 获取文档块数量
	Count(ctx context.Context) (int, error)
}

// ====== 内存向量存储（用于测试和小规模应用）======

// InMemoryVectorStore 内存向量存储
type InMemoryVectorStore struct {
	documents []Document
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewInMemoryVectorStore 创建内存向量存储
func NewInMemoryVectorStore(logger *zap.Logger) *InMemoryVectorStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryVectorStore{
		documents: make([]Document, 0),
		logger:    logger.With(zap.String("component", "memory_vector_store")),
	}
}

// AddDocuments 添加文档
func (s *InMemoryVectorStore) AddDocuments(ctx context.Context, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("document has empty id")
		}
		if len(doc.Embedding) == 0 {
			return fmt.Errorf("document %s has no embedding", doc.ID)
		}
		s.documents = append(s.documents, doc)
	}

	s.logger.Info("documents added to vector store",
		zap.Int("count", len(docs)),
		zap.Int("total", len(s.documents)))

	return nil
}

// Search 搜索相似文档
func (s *InMemoryVectorStore) Search(ctx context.Context, queryEmbedding []float64, topK int) ([]VectorSearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.documents) == 0 || topK <= 0 {
		return []VectorSearchResult{}, nil
	}

	results := make([]VectorSearchResult, 0, len(s.documents))
	for _, doc := range s.documents {
		similarity := cosineSimilarity(queryEmbedding, doc.Embedding)
		results = append(results, VectorSearchResult{
			Document: doc,
			Score:    similarity,
			Distance: 1.0 - similarity,
		})
	}

	sortByScore(results)

	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

// DeleteByDocID 删除某个源文档的全部块
func (s *InMemoryVectorStore) DeleteByDocID(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := make([]Document, 0, len(s.documents))
	for _, doc := range s.documents {
		if id, _ := doc.Metadata[MetadataDocID].(string); id == docID {
			continue
		}
		filtered = append(filtered, doc)
	}

	deleted := len(s.documents) - len(filtered)
	s.documents = filtered

	if deleted > 0 {
		s.logger.Info("documents deleted from vector store",
			zap.String("doc_id", docID),
			zap.Int("deleted", deleted),
			zap.Int("remaining", len(s.documents)))
	}
	return nil
}

// Count 返回文档块计数
func (s *InMemoryVectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents), nil
}

var _ VectorStore = (*InMemoryVectorStore)(nil)

// ====== 功用函数 ======

// cosineSimilarity 计算余弦相似度
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sortByScore 按相似度降序排序；同分时按 ID 保证确定性
func sortByScore(results []VectorSearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Document.ID < results[j].Document.ID
	})
}
