// Copyright (c) RagLoop Authors.
// Licensed under the MIT License.

// Package main 是 ragloop-migrate 迁移工具的入口。
//
// 概述
//
// 对检查点数据库执行 schema 迁移，支持 postgres、mysql 与 sqlite。
// 迁移脚本内嵌在 internal/migration 中，按方言分目录。
//
// 独立成二进制的原因：服务进程的 GORM sqlite 方言（glebarez，纯 Go）
// 与 golang-migrate 所依赖的 modernc.org/sqlite 驱动都会向 database/sql
// 注册名为 "sqlite" 的驱动，同一进程内二者并存会在 init 阶段 panic。
// 拆分后服务与迁移各自只链接一个 sqlite 驱动。
//
// 主要能力
//
//   - up / down / goto / force / reset 子命令驱动 schema 版本
//   - status / version 查看当前迁移状态
//   - 连接信息取自 --db-url，或从 YAML 配置文件解析
package main
