// Copyright 2025-2026 RagLoop Authors. All rights reserved.
// Use of this source code is governed by the project license.

// Package llm 提供回答生成所需的模型适配层。
//
// # 概述
//
// 工作流在 generate 节点把审核后的上下文拼成完整提示词，交给 Provider
// 做单轮补全。包内只有一个 Ollama 实现：生成与嵌入共用同一个 HTTP
// 客户端与错误映射，嵌入能力由 rag 包的 Embedder 接口消费。
//
// # 错误语义
//
// 所有失败都折叠为 *Error（错误码 + HTTP 状态 + 可重试标记）。
// 上游超时与 5xx 可重试；模型未安装（404）与参数错误不可重试。
// 引擎层不会自动重试，是否重试由调用方通过再次 resume 决定。
package llm
