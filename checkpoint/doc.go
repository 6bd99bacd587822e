// Copyright 2025-2026 RagLoop Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package checkpoint 提供 workflow.CheckpointStore 的三种后端实现。

# 概述

检查点存储是线程执行状态跨进程生命周期的唯一持久所有者。三种实现共享
同一乐观并发契约：Save 以版本号做 CAS 比对，期望版本为 0 表示创建，
不匹配返回 CONFLICT；Load 未命中返回 NOT_FOUND；Setup 幂等。

# 实现

  - MemoryStore — 进程内 map + RWMutex，存取均深拷贝，用于测试与单机开发
  - GormStore   — gorm 驱动 postgres / mysql / sqlite（glebarez 纯 Go），
    状态以 JSON 文本列存储，UPDATE ... WHERE version = ? 实现 CAS，
    Setup 使用 AutoMigrate
  - RedisStore  — go-redis v9，Lua 脚本在服务端原子完成版本比对与写入，
    可选 TTL（默认永久保留）

生产部署建议 GormStore(postgres)；嵌入式或演示场景可用 sqlite 后端。
*/
package checkpoint
