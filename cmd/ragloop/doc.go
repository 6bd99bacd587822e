// Copyright (c) RagLoop Authors.
// Licensed under the MIT License.

// Package main 是 ragloop 服务的主入口。
//
// 概述
//
// 提供 serve、version、health 三个子命令。serve 按配置装配
// 检查点存储、向量库、Ollama 供应商与审核工作流，并在两个端口上
// 分别暴露业务 API 与 Prometheus 指标。
//
// 核心类型
//
//   - Server：持有配置、处理器与后台任务，负责启动与优雅关闭
//   - Middleware：http.Handler 包装器，经 Chain 组合成处理链
//   - responseWriter：捕获状态码，供日志与指标中间件使用
//
// 主要能力
//
//   - 子命令分发：serve 启动服务，version 打印构建信息，health
//     对运行中的实例做一次 HTTP 探活
//   - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
//     Metrics、OTelTracing、CORS、RateLimiter 依序包装业务路由
//   - Metrics 端口独立监听 /metrics，serve 错误只记录日志
//   - 优雅关闭：先停 API 监听，再停指标端口，最后释放数据库、
//     Redis 与遥测资源
//   - Version、BuildTime、GitCommit 通过 ldflags 注入
//
// 数据库迁移由独立的 ragloop-migrate 二进制承担，见 cmd/ragloop-migrate。
package main
