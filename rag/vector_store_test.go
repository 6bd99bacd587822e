package rag

import (
	"context"
	"math"
	"testing"

	"go.uber.org/zap"
)

func seedDocs() []Document {
	return []Document{
		{
			ID:        "go.md#0",
			Content:   "Go has goroutines.",
			Metadata:  map[string]any{MetadataDocID: "go.md", "chunk_index": 0},
			Embedding: []float64{1, 0, 0},
		},
		{
			ID:        "go.md#1",
			Content:   "Channels connect goroutines.",
			Metadata:  map[string]any{MetadataDocID: "go.md", "chunk_index": 1},
			Embedding: []float64{0.9, 0.1, 0},
		},
		{
			ID:        "py.md#0",
			Content:   "Python has asyncio.",
			Metadata:  map[string]any{MetadataDocID: "py.md", "chunk_index": 0},
			Embedding: []float64{0, 1, 0},
		},
	}
}

func TestInMemoryVectorStore_SearchRanksByCosine(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryVectorStore(zap.NewNop())

	if err := store.AddDocuments(ctx, seedDocs()); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}

	results, err := store.Search(ctx, []float64{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Document.ID != "go.md#0" {
		t.Errorf("expected go.md#0 first, got %s", results[0].Document.ID)
	}
	if results[1].Document.ID != "go.md#1" {
		t.Errorf("expected go.md#1 second, got %s", results[1].Document.ID)
	}
	if results[0].Score < results[1].Score {
		t.Errorf("results not sorted by score: %f < %f", results[0].Score, results[1].Score)
	}
	if math.Abs(results[0].Score-1.0) > 1e-9 {
		t.Errorf("identical vector should score 1.0, got %f", results[0].Score)
	}
	if math.Abs(results[0].Distance-(1.0-results[0].Score)) > 1e-9 {
		t.Errorf("distance should be 1-score, got %f", results[0].Distance)
	}
}

func TestInMemoryVectorStore_SearchMoreThanStored(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryVectorStore(zap.NewNop())

	if err := store.AddDocuments(ctx, seedDocs()); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}

	results, err := store.Search(ctx, []float64{1, 0, 0}, 50)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected all 3 results, got %d", len(results))
	}
}

func TestInMemoryVectorStore_SearchEmpty(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryVectorStore(zap.NewNop())

	results, err := store.Search(ctx, []float64{1, 0, 0}, 4)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestInMemoryVectorStore_RejectsInvalidDocuments(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryVectorStore(zap.NewNop())

	if err := store.AddDocuments(ctx, []Document{{ID: "", Embedding: []float64{1}}}); err == nil {
		t.Error("expected error for empty id")
	}
	if err := store.AddDocuments(ctx, []Document{{ID: "x"}}); err == nil {
		t.Error("expected error for missing embedding")
	}
}

func TestInMemoryVectorStore_DeleteByDocID(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryVectorStore(zap.NewNop())

	if err := store.AddDocuments(ctx, seedDocs()); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}

	if err := store.DeleteByDocID(ctx, "go.md"); err != nil {
		t.Fatalf("DeleteByDocID: %v", err)
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 remaining chunk, got %d", n)
	}

	results, err := store.Search(ctx, []float64{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, res := range results {
		if res.Document.ID == "go.md#0" || res.Document.ID == "go.md#1" {
			t.Errorf("deleted chunk still searchable: %s", res.Document.ID)
		}
	}

	// 删除不存在的文档是无操作
	if err := store.DeleteByDocID(ctx, "missing.md"); err != nil {
		t.Fatalf("DeleteByDocID on unknown doc: %v", err)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float64
		expected float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1.0},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0.0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1.0},
		{"length mismatch", []float64{1, 0}, []float64{1, 0, 0}, 0.0},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0.0},
		{"empty", nil, nil, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("cosineSimilarity = %f, want %f", got, tt.expected)
			}
		})
	}
}
