package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ChromaConfig configures the Chroma VectorStore implementation.
//
// Notes:
// - Chunk ids are used verbatim as Chroma ids; Chroma accepts any string.
// - The collection is created with cosine space, so score = 1 - distance.
type ChromaConfig struct {
	Host       string        `json:"host"`
	Port       int           `json:"port"`
	BaseURL    string        `json:"base_url,omitempty"`
	APIKey     string        `json:"api_key,omitempty"`
	Collection string        `json:"collection"`
	Timeout    time.Duration `json:"timeout,omitempty"`
}

// ChromaStore implements VectorStore using Chroma's REST API.
type ChromaStore struct {
	cfg ChromaConfig

	baseURL string
	client  *http.Client
	logger  *zap.Logger

	ensureOnce   sync.Once
	ensureErr    error
	collectionID string
}

// NewChromaStore creates a Chroma-backed VectorStore.
func NewChromaStore(cfg ChromaConfig, logger *zap.Logger) *ChromaStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Collection == "" {
		cfg.Collection = "ragloop"
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
	}

	return &ChromaStore{
		cfg:     cfg,
		baseURL: baseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With(zap.String("component", "chroma_store")),
	}
}

func (s *ChromaStore) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(s.cfg.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}
}

func (s *ChromaStore) doJSON(ctx context.Context, method, path string, in any, out any) error {
	endpoint := s.baseURL + path

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chroma request failed: method=%s path=%s status=%d body=%s", method, path, resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ensureCollection resolves the collection id, creating the collection with
// cosine space on first use. get_or_create makes repeats harmless.
func (s *ChromaStore) ensureCollection(ctx context.Context) (string, error) {
	s.ensureOnce.Do(func() {
		body := map[string]any{
			"name":          s.cfg.Collection,
			"get_or_create": true,
			"metadata":      map[string]any{"hnsw:space": "cosine"},
		}
		var resp struct {
			ID string `json:"id"`
		}
		if err := s.doJSON(ctx, http.MethodPost, "/api/v1/collections", body, &resp); err != nil {
			s.ensureErr = fmt.Errorf("chroma ensure collection %s: %w", s.cfg.Collection, err)
			return
		}
		if resp.ID == "" {
			s.ensureErr = fmt.Errorf("chroma ensure collection %s: empty collection id", s.cfg.Collection)
			return
		}
		s.collectionID = resp.ID
		s.logger.Info("chroma collection ready",
			zap.String("collection", s.cfg.Collection),
			zap.String("collection_id", resp.ID))
	})
	return s.collectionID, s.ensureErr
}

func (s *ChromaStore) collectionPath(collectionID, op string) string {
	p := "/api/v1/collections/" + url.PathEscape(collectionID)
	if op != "" {
		p += "/" + op
	}
	return p
}

// AddDocuments upserts chunks into the collection.
func (s *ChromaStore) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	vectorSize := 0
	for i, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("document[%d] has empty id", i)
		}
		if len(doc.Embedding) == 0 {
			return fmt.Errorf("document[%d] has no embedding", i)
		}
		if vectorSize == 0 {
			vectorSize = len(doc.Embedding)
		}
		if len(doc.Embedding) != vectorSize {
			return fmt.Errorf("document[%d] embedding dimension mismatch: got=%d want=%d", i, len(doc.Embedding), vectorSize)
		}
	}

	collectionID, err := s.ensureCollection(ctx)
	if err != nil {
		return err
	}

	req := struct {
		IDs        []string         `json:"ids"`
		Embeddings [][]float64      `json:"embeddings"`
		Documents  []string         `json:"documents"`
		Metadatas  []map[string]any `json:"metadatas"`
	}{
		IDs:        make([]string, 0, len(docs)),
		Embeddings: make([][]float64, 0, len(docs)),
		Documents:  make([]string, 0, len(docs)),
		Metadatas:  make([]map[string]any, 0, len(docs)),
	}
	for _, doc := range docs {
		req.IDs = append(req.IDs, doc.ID)
		req.Embeddings = append(req.Embeddings, doc.Embedding)
		req.Documents = append(req.Documents, doc.Content)
		req.Metadatas = append(req.Metadatas, doc.Metadata)
	}

	if err := s.doJSON(ctx, http.MethodPost, s.collectionPath(collectionID, "upsert"), req, nil); err != nil {
		return err
	}

	s.logger.Debug("chroma upsert completed", zap.Int("count", len(docs)))
	return nil
}

// Search queries the collection by embedding.
func (s *ChromaStore) Search(ctx context.Context, queryEmbedding []float64, topK int) ([]VectorSearchResult, error) {
	if topK <= 0 {
		return []VectorSearchResult{}, nil
	}
	if len(queryEmbedding) == 0 {
		return nil, fmt.Errorf("query embedding is required")
	}

	collectionID, err := s.ensureCollection(ctx)
	if err != nil {
		return nil, err
	}

	req := struct {
		QueryEmbeddings [][]float64 `json:"query_embeddings"`
		NResults        int         `json:"n_results"`
		Include         []string    `json:"include"`
	}{
		QueryEmbeddings: [][]float64{queryEmbedding},
		NResults:        topK,
		Include:         []string{"documents", "metadatas", "distances"},
	}

	var resp struct {
		IDs       [][]string         `json:"ids"`
		Documents [][]string         `json:"documents"`
		Metadatas [][]map[string]any `json:"metadatas"`
		Distances [][]float64        `json:"distances"`
	}
	if err := s.doJSON(ctx, http.MethodPost, s.collectionPath(collectionID, "query"), req, &resp); err != nil {
		return nil, err
	}
	if len(resp.IDs) == 0 {
		return []VectorSearchResult{}, nil
	}

	ids := resp.IDs[0]
	results := make([]VectorSearchResult, 0, len(ids))
	for i, id := range ids {
		doc := Document{ID: id}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			doc.Content = resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			doc.Metadata = resp.Metadatas[0][i]
		}
		distance := 0.0
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			distance = resp.Distances[0][i]
		}
		results = append(results, VectorSearchResult{
			Document: doc,
			Score:    1.0 - distance,
			Distance: distance,
		})
	}
	return results, nil
}

// DeleteByDocID removes every chunk whose metadata carries the doc id.
func (s *ChromaStore) DeleteByDocID(ctx context.Context, docID string) error {
	collectionID, err := s.ensureCollection(ctx)
	if err != nil {
		return err
	}

	req := map[string]any{
		"where": map[string]any{MetadataDocID: docID},
	}
	if err := s.doJSON(ctx, http.MethodPost, s.collectionPath(collectionID, "delete"), req, nil); err != nil {
		return err
	}

	s.logger.Debug("chroma delete completed", zap.String("doc_id", docID))
	return nil
}

// Count returns the number of stored chunks.
func (s *ChromaStore) Count(ctx context.Context) (int, error) {
	collectionID, err := s.ensureCollection(ctx)
	if err != nil {
		return 0, err
	}

	var count int
	if err := s.doJSON(ctx, http.MethodGet, s.collectionPath(collectionID, "count"), nil, &count); err != nil {
		return 0, err
	}
	return count, nil
}

var _ VectorStore = (*ChromaStore)(nil)
