package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/ragloop/types"
)

// ====== 节点名称 ======

// Node names of the review pipeline. NodeEnd is the terminal marker and is
// never executed.
const (
	NodeRetrieve = "retrieve"
	NodeReview   = "review"
	NodeGenerate = "generate"
	NodeEnd      = "__end__"
)

// ====== 检索参数 ======

const (
	// DefaultTopK is used when the caller does not supply a chunk count.
	DefaultTopK = 4
	// MaxTopK bounds caller-supplied chunk counts.
	MaxTopK = 50
	// PreviewMaxChars caps the context preview carried in an interrupt payload.
	PreviewMaxChars = 4000
)

// NormalizeTopK applies the default and clamps to the supported range.
func NormalizeTopK(k int) int {
	if k <= 0 {
		return DefaultTopK
	}
	if k > MaxTopK {
		return MaxTopK
	}
	return k
}

// ====== 审核决定 ======

// DecisionKind 区分审核结论：按原样采用检索上下文，或使用编辑后的替换文本。
type DecisionKind string

const (
	DecisionApproved DecisionKind = "approved"
	DecisionEdited   DecisionKind = "edited"
)

// Decision is the reviewer's verdict injected at resume.
type Decision struct {
	Kind          DecisionKind `json:"kind"`
	EditedContext string       `json:"edited_context,omitempty"`
}

// NewDecision maps the wire shape (approved flag + optional replacement) to
// a Decision. When approved is true the replacement text is ignored.
func NewDecision(approved bool, editedContext string) Decision {
	if approved {
		return Decision{Kind: DecisionApproved}
	}
	return Decision{Kind: DecisionEdited, EditedContext: editedContext}
}

// Validate rejects malformed decisions before any node executes.
func (d Decision) Validate() error {
	switch d.Kind {
	case DecisionApproved:
		return nil
	case DecisionEdited:
		if strings.TrimSpace(d.EditedContext) == "" {
			return types.NewValidationError("edited_context is required when approved is false")
		}
		return nil
	default:
		return types.NewValidationError(fmt.Sprintf("unknown decision kind %q", d.Kind))
	}
}

// ====== 执行状态 ======

// RetrievedChunk is one retrieved passage. SourceID identifies the document
// chunk (for example "guide.md#3"); insertion order is retrieval rank order.
type RetrievedChunk struct {
	SourceID string  `json:"source_id"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
}

// ExecutionState is the versioned record a thread owns. It fully captures the
// suspension point: CurrentNode is the explicit instruction pointer, so a
// suspended thread can resume in a different process.
//
// Invariants:
//   - Question is immutable after creation.
//   - RetrievedContext is written exactly once, by the retrieve node, and is
//     never modified afterwards; an edited replacement lives in Decision.
//   - Decision is non-nil iff the thread has passed the review node.
//   - Answer is non-empty iff the thread reached the terminal marker.
type ExecutionState struct {
	ThreadID         string           `json:"thread_id"`
	CurrentNode      string           `json:"current_node"`
	Question         string           `json:"question"`
	TopK             int              `json:"topk"`
	RetrievedContext []RetrievedChunk `json:"retrieved_context,omitempty"`
	Decision         *Decision        `json:"decision,omitempty"`
	Answer           string           `json:"answer,omitempty"`
	Version          int64            `json:"version"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// NewExecutionState creates the state for a fresh thread parked at entry.
func NewExecutionState(threadID, entry, question string, topK int) *ExecutionState {
	now := time.Now().UTC()
	return &ExecutionState{
		ThreadID:    threadID,
		CurrentNode: entry,
		Question:    question,
		TopK:        NormalizeTopK(topK),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Completed reports whether the thread reached the terminal marker.
func (s *ExecutionState) Completed() bool {
	return s.CurrentNode == NodeEnd
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// mutate persisted state in place.
func (s *ExecutionState) Clone() *ExecutionState {
	if s == nil {
		return nil
	}
	cp := *s
	if s.RetrievedContext != nil {
		cp.RetrievedContext = make([]RetrievedChunk, len(s.RetrievedContext))
		copy(cp.RetrievedContext, s.RetrievedContext)
	}
	if s.Decision != nil {
		d := *s.Decision
		cp.Decision = &d
	}
	return &cp
}

// AssembleContext renders the retrieved chunks in the citation format the
// generation prompt expects: "[source_id]\ntext" blocks joined by blank lines.
func (s *ExecutionState) AssembleContext() string {
	if len(s.RetrievedContext) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(s.RetrievedContext))
	for _, c := range s.RetrievedContext {
		blocks = append(blocks, fmt.Sprintf("[%s]\n%s", c.SourceID, c.Text))
	}
	return strings.Join(blocks, "\n\n")
}

// ContextPreview is the assembled context truncated for the interrupt payload.
func (s *ExecutionState) ContextPreview() string {
	return truncateRunes(s.AssembleContext(), PreviewMaxChars)
}

// ContextForGeneration picks the text the generate node must answer from:
// the reviewer's replacement when the decision was "edited", the original
// retrieved context otherwise.
func (s *ExecutionState) ContextForGeneration() string {
	if s.Decision != nil && s.Decision.Kind == DecisionEdited {
		return s.Decision.EditedContext
	}
	return s.AssembleContext()
}

// SourceRefs lists the retrieved sources in rank order for the interrupt
// payload.
func (s *ExecutionState) SourceRefs() []SourceRef {
	refs := make([]SourceRef, 0, len(s.RetrievedContext))
	for _, c := range s.RetrievedContext {
		refs = append(refs, SourceRef{SourceID: c.SourceID, Score: c.Score})
	}
	return refs
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
