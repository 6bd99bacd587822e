// Copyright 2025-2026 RagLoop Authors. All rights reserved.
// Use of this source code is governed by the project license.

// Package ragloop provides a top-level convenience entry point for embedding
// the human-in-the-loop review workflow without running the HTTP server.
//
// Usage:
//
//	import "github.com/BaSui01/ragloop"
//
//	engine, err := ragloop.New(ragloop.WithOllama(llm.OllamaConfig{}))
//	engine, err := ragloop.New(
//		ragloop.WithRetriever(myRetriever),
//		ragloop.WithGenerator(myGenerator),
//	)
//
//	res, _ := engine.Start(ctx, "how do I rotate the credentials?", 4)
//	res, _ = engine.Resume(ctx, res.ThreadID, ragloop.Approve())
//
// 默认装配为单进程形态：内存检查点存储加内存向量库。要跨进程恢复线程，
// 用 WithCheckpointStore 传入已 Setup 的 gorm/redis 存储。
package ragloop

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/BaSui01/ragloop/checkpoint"
	"github.com/BaSui01/ragloop/llm"
	"github.com/BaSui01/ragloop/rag"
	"github.com/BaSui01/ragloop/workflow"
)

// Engine bundles the graph executor with the ingestion path feeding its
// retrieval. Start and Resume are promoted from the embedded executor.
type Engine struct {
	*workflow.Executor

	ingestor *rag.Ingestor
}

// Ingest 向引擎的语料库写入一篇文档。仅在引擎使用内置向量检索路径
// 时可用；WithRetriever 注入自定义检索时入库由调用方自理。
func (e *Engine) Ingest(ctx context.Context, docID, text string, metadata map[string]any) (*rag.IngestResult, error) {
	if e.ingestor == nil {
		return nil, errors.New("ragloop: ingestion is unavailable with a custom retriever")
	}
	return e.ingestor.IngestDocument(ctx, docID, text, metadata)
}

// Option configures the engine created by [New].
type Option func(*options)

type options struct {
	retriever   workflow.Retriever
	generator   workflow.Generator
	store       workflow.CheckpointStore
	vectorStore rag.VectorStore
	embedder    rag.Embedder
	chunking    *rag.ChunkingConfig
	ollama      *llm.OllamaConfig
	logger      *zap.Logger
}

// WithRetriever sets a pre-built retrieval capability. Disables the built-in
// vector path, including [Engine.Ingest].
func WithRetriever(r workflow.Retriever) Option {
	return func(o *options) { o.retriever = r }
}

// WithGenerator sets a pre-built generation capability.
func WithGenerator(g workflow.Generator) Option {
	return func(o *options) { o.generator = g }
}

// WithOllama creates an Ollama provider from cfg and uses it for whichever
// capabilities are not otherwise supplied: generation, and embedding on the
// built-in vector path. Zero-value fields fall back to the provider defaults.
func WithOllama(cfg llm.OllamaConfig) Option {
	return func(o *options) { o.ollama = &cfg }
}

// WithCheckpointStore sets the thread state store. The caller is responsible
// for having run Setup on database-backed stores; the default memory store
// needs none.
func WithCheckpointStore(s workflow.CheckpointStore) Option {
	return func(o *options) { o.store = s }
}

// WithVectorStore sets the vector store backing the built-in retrieval path.
func WithVectorStore(vs rag.VectorStore) Option {
	return func(o *options) { o.vectorStore = vs }
}

// WithEmbedder sets the embedding capability for the built-in retrieval path.
func WithEmbedder(e rag.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithChunking overrides the ingestion chunking configuration.
func WithChunking(cfg rag.ChunkingConfig) Option {
	return func(o *options) { o.chunking = &cfg }
}

// WithLogger sets a custom zap logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Approve 构造"按原样采用检索上下文"的审核决定。
func Approve() workflow.Decision {
	return workflow.NewDecision(true, "")
}

// Edit 构造"以替换文本作答"的审核决定。
func Edit(replacement string) workflow.Decision {
	return workflow.NewDecision(false, replacement)
}

// New assembles a review workflow engine. At minimum a generation capability
// must be available, via [WithGenerator] or [WithOllama].
func New(opts ...Option) (*Engine, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	var provider *llm.OllamaProvider
	if o.ollama != nil {
		provider = llm.NewOllamaProvider(*o.ollama, o.logger)
	}

	generator := o.generator
	if generator == nil {
		if provider == nil {
			return nil, errors.New("ragloop: a generator is required (WithGenerator or WithOllama)")
		}
		generator = provider
	}

	retriever := o.retriever
	var ingestor *rag.Ingestor
	if retriever == nil {
		embedder := o.embedder
		if embedder == nil {
			if provider == nil {
				return nil, errors.New("ragloop: retrieval needs an embedder (WithRetriever, WithEmbedder or WithOllama)")
			}
			embedder = provider
		}

		vectorStore := o.vectorStore
		if vectorStore == nil {
			vectorStore = rag.NewInMemoryVectorStore(o.logger)
		}

		chunking := rag.DefaultChunkingConfig()
		if o.chunking != nil {
			chunking = *o.chunking
		}
		chunker := rag.NewChunker(chunking, rag.NewTiktokenCounter("", o.logger), o.logger)

		retriever = rag.NewVectorRetriever(vectorStore, embedder, o.logger)
		ingestor = rag.NewIngestor(chunker, embedder, vectorStore, o.logger)
	}

	store := o.store
	if store == nil {
		store = checkpoint.NewMemoryStore()
	}

	graph, err := workflow.NewReviewPipeline(retriever, generator)
	if err != nil {
		return nil, err
	}

	return &Engine{
		Executor: workflow.NewExecutor(graph, store, o.logger),
		ingestor: ingestor,
	}, nil
}
