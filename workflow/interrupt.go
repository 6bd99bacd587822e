package workflow

// ActionReviewContext is the interrupt action emitted by the review node.
const ActionReviewContext = "review_context"

// reviewHint tells the caller what input the suspended thread is waiting for.
const reviewHint = "approve the retrieved context as-is, or supply edited_context to replace it"

// SourceRef identifies one retrieved source inside an interrupt payload.
type SourceRef struct {
	SourceID string  `json:"source_id"`
	Score    float64 `json:"score"`
}

// InterruptPayload is handed to the caller when execution halts at an
// interrupt node. It carries everything a human reviewer needs to decide.
type InterruptPayload struct {
	Action           string      `json:"action"`
	Question         string      `json:"question"`
	ContextPreview   string      `json:"context_preview"`
	RetrievedSources []SourceRef `json:"retrieved_sources"`
	Hint             string      `json:"hint,omitempty"`
}

// newReviewInterrupt builds the review node's payload from the current state.
func newReviewInterrupt(s *ExecutionState) *InterruptPayload {
	return &InterruptPayload{
		Action:           ActionReviewContext,
		Question:         s.Question,
		ContextPreview:   s.ContextPreview(),
		RetrievedSources: s.SourceRefs(),
		Hint:             reviewHint,
	}
}
