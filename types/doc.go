// Copyright 2025-2026 RagLoop Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package types 提供 RagLoop 引擎的全局共享类型定义。

# 概述

types 是引擎最底层的公共包，不依赖任何内部包，为 workflow、checkpoint、
rag、llm、api 等上层模块提供统一的类型契约。跨包共享的错误码与错误体系
定义于此，以避免循环依赖。

# 错误体系

  - Error / ErrorCode — 结构化错误，含 HTTP 状态码、Retryable、Thread 标记
  - 工作流错误码：NOT_FOUND / INVALID_STATE / CONFLICT / VALIDATION /
    RETRIEVAL_FAILURE / GENERATION_FAILURE
  - 常用构造：NewNotFoundError / NewInvalidStateError / NewConflictError /
    NewValidationError / NewRetrievalFailure / NewGenerationFailure
  - 判定辅助：IsNotFound / IsInvalidState / IsConflict / IsValidation /
    IsRetryable / GetErrorCode

协作方（检索、生成）的失败一律包装为带错误码的 Error 后再向上传播，
控制循环的每一次退出要么是成功的中断/终态结果，要么是类型化错误。
*/
package types
