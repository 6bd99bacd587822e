package rag

import "fmt"

// Document 待入库的文档块。ID 在向量库内唯一；Embedding 在入库前由
// Embedder 填充。
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float64      `json:"embedding,omitempty"`
}

// VectorSearchResult 向量搜索结果。Score 为余弦相似度，越大越相似。
type VectorSearchResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
	Distance float64  `json:"distance"`
}

// MetadataDocID is the metadata key carrying the source document's id on
// every chunk, so a whole document can be replaced on re-ingestion.
const MetadataDocID = "doc_id"

// ChunkID derives the stable id of a document's i-th chunk. It doubles as
// the citation source id surfaced to reviewers ("guide.md#3").
func ChunkID(docID string, index int) string {
	return fmt.Sprintf("%s#%d", docID, index)
}
