// 版权所有 2025 RagLoop Authors. 版权所有。
// 此源代码的使用由项目许可规范,该许可可以
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动、
优雅关闭与系统信号监听。

# 概述

本包通过 Manager 封装 net/http.Server，统一管理监听、服务、
关闭与错误传播。API 服务与 metrics 服务各运行一个 Manager，
均内置 SIGINT/SIGTERM 处理与带超时的优雅停机。

# 核心类型

  - Manager：服务器管理器，持有 http.Server、net.Listener
    与异步错误通道，提供 Start/Shutdown/WaitForShutdown 等
    生命周期方法。
  - Config：监听地址、读写超时、空闲超时、最大请求头大小
    与优雅关闭超时。FromServerConfig 从顶层配置按端口派生。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务，监听失败
    同步返回，运行期错误经 Errors() 通道传播。
  - 优雅关闭：Shutdown 幂等，在配置超时内排空在途请求。
  - 信号监听：WaitForShutdown 收到 SIGINT/SIGTERM 或服务异常
    后自动关闭，并返回导致退出的错误。
  - 状态查询：IsRunning/Addr 报告监听状态与实际绑定地址。
*/
package server
