// Copyright 2025-2026 RagLoop Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package handlers 提供 RagLoop HTTP API 的请求处理器实现。

# 概述

handlers 包实现所有 HTTP 端点的请求处理逻辑：文档入库、
问答工作流的启动与恢复、健康检查，以及统一的响应与错误处理。
所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - AskHandler      — 问答工作流处理器（/ask/start、/ask/resume），
    挂起返回 202 与中断信封，完成返回 200 与最终回答
  - IngestHandler   — 文档入库处理器（/ingest）
  - HealthHandler   — 健康检查（/health 聚合依赖探活、/healthz 存活探针）
  - Response        — 错误与元信息信封（success + error + timestamp +
    request_id）；成功的业务响应直接写契约形状
  - ErrorInfo       — 结构化错误信息，含 code、message、thread_id、retryable
  - ResponseWriter  — 包装 http.ResponseWriter 以捕获状态码

# 错误映射

types.Error 按其携带的 HTTP 状态写出：NOT_FOUND 404、INVALID_STATE 与
CONFLICT 409、VALIDATION 422（请求体格式问题为 400）、
RETRIEVAL_FAILURE 与 GENERATION_FAILURE 502。

# 主要能力

  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式拒绝未知字段）、
    ValidateContentType
  - 业务指标：Metrics 接口上报启动/恢复结局、中断次数、入库吞吐
  - 可扩展健康检查：RegisterCheck 注册 PingCheck / ProviderCheck
*/
package handlers
