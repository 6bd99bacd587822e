// Copyright 2025-2026 RagLoop Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package rag 提供问答引擎的检索侧实现：文档分块、向量化入库和 Top-K
相似度检索。

检索结果以 workflow.RetrievedChunk 的形式进入工作流，SourceID 用
"文档 id#块序号" 的格式标识出处，供人工审核和答案引用。

# 核心接口/类型

  - VectorStore — 向量库统一接口（AddDocuments / Search / DeleteByDocID / Count）
  - Embedder — 向量化能力接口，由 llm 包的 provider 实现
  - Tokenizer — 分块专用计数器接口（TiktokenCounter 实现）
  - Chunker — 递归分块器，段落/句子/单词边界依次回退，块间带重叠
  - VectorRetriever — 适配 workflow.Retriever 的检索入口
  - Ingestor — 分块、并发向量化、替换式入库的完整管道

# 向量库后端

  - InMemoryVectorStore — 进程内余弦相似度实现，测试与小规模场景
  - ChromaStore — Chroma REST API 实现，cosine space，集合自动创建
*/
package rag
