package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// defaultEmbedBatchSize bounds one embedding request; providers cap batch
// sizes and oversized requests fail outright.
const defaultEmbedBatchSize = 32

// IngestResult 入库结果
type IngestResult struct {
	DocID  string `json:"doc_id"`
	Chunks int    `json:"chunks"`
}

// Ingestor 文档入库管道：分块、并发向量化、替换写入向量库。
// 重复入库同一个 doc_id 会整体替换旧块。
type Ingestor struct {
	chunker   *Chunker
	embedder  Embedder
	store     VectorStore
	batchSize int
	logger    *zap.Logger
}

// NewIngestor 创建入库管道
func NewIngestor(chunker *Chunker, embedder Embedder, store VectorStore, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		batchSize: defaultEmbedBatchSize,
		logger:    logger.With(zap.String("component", "ingestor")),
	}
}

// IngestDocument 将一篇文档切块、向量化并写入向量库。
// metadata 会附加到每个块上；doc_id 与 chunk_index 由管道自动填充。
func (ing *Ingestor) IngestDocument(ctx context.Context, docID, text string, metadata map[string]any) (*IngestResult, error) {
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return nil, fmt.Errorf("doc_id must not be empty")
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("document %s has no content", docID)
	}

	chunks := ing.chunker.ChunkText(text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %s produced no chunks", docID)
	}

	embeddings, err := ing.embedChunks(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed document %s: %w", docID, err)
	}

	docs := make([]Document, 0, len(chunks))
	for i, chunk := range chunks {
		meta := map[string]any{
			MetadataDocID: docID,
			"chunk_index": chunk.Index,
		}
		for k, v := range metadata {
			meta[k] = v
		}
		docs = append(docs, Document{
			ID:        ChunkID(docID, chunk.Index),
			Content:   chunk.Content,
			Metadata:  meta,
			Embedding: embeddings[i],
		})
	}

	// 替换语义：先清掉旧版本的块，再写入新块。
	if err := ing.store.DeleteByDocID(ctx, docID); err != nil {
		return nil, fmt.Errorf("replace document %s: %w", docID, err)
	}
	if err := ing.store.AddDocuments(ctx, docs); err != nil {
		return nil, fmt.Errorf("store document %s: %w", docID, err)
	}

	ing.logger.Info("document ingested",
		zap.String("doc_id", docID),
		zap.Int("chunks", len(docs)))

	return &IngestResult{DocID: docID, Chunks: len(docs)}, nil
}

// embedChunks 分批并发向量化，保持结果与输入块一一对应。
func (ing *Ingestor) embedChunks(ctx context.Context, chunks []Chunk) ([][]float64, error) {
	embeddings := make([][]float64, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(chunks); start += ing.batchSize {
		start := start
		end := start + ing.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, chunk := range chunks[start:end] {
				texts = append(texts, chunk.Content)
			}

			vectors, err := ing.embedder.EmbedDocuments(gctx, texts)
			if err != nil {
				return err
			}
			if len(vectors) != len(texts) {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
			}
			copy(embeddings[start:end], vectors)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return embeddings, nil
}
