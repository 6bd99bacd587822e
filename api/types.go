package api

import (
	"github.com/BaSui01/ragloop/workflow"
)

// =============================================================================
// 问答工作流类型
// =============================================================================

// StartRequest 发起一次问答工作流。
// @Description 问答启动请求结构
type StartRequest struct {
	// 用户问题
	Question string `json:"question" example:"How do I rotate the service credentials?" binding:"required"`
	// 检索条数，缺省或非正值时服务端取默认值
	TopK int `json:"topk,omitempty" example:"4"`
}

// InterruptEnvelope 包装线程挂起时的中断载荷。
type InterruptEnvelope struct {
	// 中断载荷，含动作名、上下文预览与检索来源
	Value *workflow.InterruptPayload `json:"value"`
}

// AskResponse 是 start 与 resume 共用的响应形状：
// interrupt 与 answer 恰好出现一个。
// @Description 问答响应结构
type AskResponse struct {
	// 线程标识，后续 resume 凭此定位
	ThreadID string `json:"thread_id" example:"9f86d081884c7d659a2feaa0c55ad015"`
	// 线程挂起等待审核时返回
	Interrupt *InterruptEnvelope `json:"interrupt,omitempty"`
	// 线程完成时的最终回答
	Answer string `json:"answer,omitempty"`
}

// DecisionPayload 人工审核结论。
// @Description 审核决定结构
type DecisionPayload struct {
	// 是否按原样采用检索到的上下文
	Approved bool `json:"approved" example:"true"`
	// approved 为 false 时必填的替换文本，approved 为 true 时被忽略
	EditedContext string `json:"edited_context,omitempty"`
}

// ResumeRequest 恢复一个挂起的线程。
// @Description 问答恢复请求结构
type ResumeRequest struct {
	// 线程标识
	ThreadID string `json:"thread_id" binding:"required"`
	// 审核决定
	Decision *DecisionPayload `json:"decision" binding:"required"`
}

// =============================================================================
// 文档入库类型
// =============================================================================

// IngestRequest 向语料库写入一篇文档。
// @Description 文档入库请求结构
type IngestRequest struct {
	// 文档标识，重复入库同一标识会整体替换旧块
	DocID string `json:"doc_id" example:"ops-guide" binding:"required"`
	// 文档正文
	Text string `json:"text" binding:"required"`
	// 可选来源标注，随块元数据一并写入
	Source string `json:"source,omitempty" example:"wiki"`
}

// IngestResponse 报告入库结果。
// @Description 文档入库响应结构
type IngestResponse struct {
	// 文档标识
	DocID string `json:"doc_id"`
	// 写入的块数量
	Chunks int `json:"chunks"`
}
