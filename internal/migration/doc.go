// 版权所有 2025 RagLoop Authors. 版权所有。
// 此源代码的使用由项目许可规范,该许可可以
// 在LICENSE文件中找到。

/*
包 migration 管理检查点表（ragloop_threads）的数据库结构迁移。

# 概述

迁移脚本按方言（postgres/mysql/sqlite）内嵌进二进制，运行时经
golang-migrate 的 iofs 源执行，版本表与迁移锁由 golang-migrate 维护。
DefaultMigrator 实现 Migrator 接口，CLI 把各操作包装成带输出的命令，
由 ragloop-migrate 二进制调用。

# 驱动注册

连接按方言依赖迁移驱动包的传递注册：postgres 来自 lib/pq，mysql 来自
go-sql-driver，sqlite 来自 modernc.org/sqlite。modernc 与 glebarez
（服务二进制中 gorm 的 sqlite 方言）注册同名 database/sql 驱动，
因此迁移器只能住在独立的 ragloop-migrate 二进制里。

# 使用

	m, err := migration.NewMigratorFromDatabaseConfig(cfg.Database)
	if err != nil { ... }
	defer m.Close()
	err = migration.NewCLI(m).RunUp(ctx)
*/
package migration
