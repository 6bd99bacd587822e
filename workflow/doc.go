// Copyright 2025-2026 RagLoop Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package workflow 提供可中断、可恢复的问答工作流引擎。

# 概述

workflow 包实现了 RagLoop 的核心引擎：一条固定的 retrieve → review →
generate 流水线，review 节点为中断点，等待人工审核检索到的上下文。
执行以显式状态机驱动：当前节点名与执行状态一起持久化，挂起不依赖
调用栈，因此线程可以在另一个进程或重启后继续。

# 核心接口与类型

  - ExecutionState    — 版本化执行状态（current_node / question /
    retrieved_context / decision / answer / version）
  - Node              — 节点接口：Run(ctx, state) (NodeResult, error)，
    任意节点都可声明为中断节点（Interruptible）
  - Graph / GraphBuilder — 确定性单出边有向图（含环与可达性校验）
  - Executor          — 控制循环：执行当前节点 → 持久化 → 中断即停 /
    终态即停 / 否则沿边推进
  - CheckpointStore   — 乐观并发检查点契约（CAS 版本比对，实现见
    checkpoint 包）
  - Retriever / Generator — 检索与生成能力的窄接口
  - Decision / InterruptPayload — 审核决定与中断载荷

# 失败语义

  - Start 阶段检索失败：不落盘，调用方收到 RETRIEVAL_FAILURE，不留线程
  - Resume 后生成失败：线程停留在 generate 节点且决定已持久化，再次
    resume 只重试生成，审核结论不需要重做
  - 并发 resume：版本比对使败者得到 CONFLICT，节点副作用不会应用两次
*/
package workflow
