// 版权所有 2025 RagLoop Authors. 版权所有。
// 此源代码的使用由项目许可规范,该许可可以
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的连接池管理，承载检查点表的持久化连接。

# 概述

PoolManager 把 GORM 句柄与底层 sql.DB 的池参数统一收口：最大连接数、
空闲回收、连接生命周期。后台循环按配置间隔探活，Close 时立即停止。
顶层配置通过 FromDatabaseConfig 映射为池参数。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、
    Stats()、GetStats()、Close()。
  - PoolConfig：池参数，含健康检查间隔（0 关闭检查循环）。
  - PoolStats：可序列化的统计快照，供指标轮询与健康端点使用。
  - TransactionFunc：事务体。

# 事务重试

WithTransaction 单次执行，出错回滚；WithTransactionRetry 对死锁、
序列化失败（SQLSTATE 40001）、连接中断等瞬时错误按指数退避重试，
业务错误不重试、原样返回。
*/
package database
