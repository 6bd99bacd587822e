package workflow

import (
	"context"
	"fmt"

	"github.com/BaSui01/ragloop/types"
)

// ====== 能力接口 ======

// Retriever is the vector-search capability the retrieve node consumes.
// Search must be idempotent and side-effect-free from the engine's
// perspective; results come back in rank order.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]RetrievedChunk, error)
}

// Generator is the answer-generation capability the generate node consumes.
// It may be slow; the engine treats it as a black box and never retries it
// on its own.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ====== 节点协议 ======

// Signal tells the executor what to do after a node ran.
type Signal int

const (
	// SignalContinue advances to the node's successor.
	SignalContinue Signal = iota
	// SignalInterrupt halts execution; the thread stays parked at this node
	// until a resume injects the awaited input.
	SignalInterrupt
)

// NodeResult is a node's control signal plus the interrupt payload when the
// signal is SignalInterrupt.
type NodeResult struct {
	Signal    Signal
	Interrupt *InterruptPayload
}

// Node is one step of the graph: a pure function from state to
// (mutated state, control signal). Nodes never persist anything themselves;
// the executor owns persistence at step boundaries.
type Node interface {
	Name() string
	// Interruptible reports whether this node may halt awaiting input.
	Interruptible() bool
	Run(ctx context.Context, state *ExecutionState) (NodeResult, error)
}

// ====== 检索节点 ======

// RetrieveNode calls the retriever with the thread's question and writes
// retrieved_context exactly once.
type RetrieveNode struct {
	retriever Retriever
}

// NewRetrieveNode creates the retrieve step.
func NewRetrieveNode(r Retriever) *RetrieveNode {
	return &RetrieveNode{retriever: r}
}

func (n *RetrieveNode) Name() string        { return NodeRetrieve }
func (n *RetrieveNode) Interruptible() bool { return false }

func (n *RetrieveNode) Run(ctx context.Context, state *ExecutionState) (NodeResult, error) {
	chunks, err := n.retriever.Search(ctx, state.Question, state.TopK)
	if err != nil {
		return NodeResult{}, types.NewRetrievalFailure(err)
	}
	state.RetrievedContext = chunks
	return NodeResult{Signal: SignalContinue}, nil
}

// ====== 审核节点 ======

// ReviewNode is the interrupt point. On first entry it emits the review
// payload and halts; on re-entry (decision already injected by resume) it
// lets execution continue. It computes nothing itself — the decision is
// consumed downstream by the generate node.
type ReviewNode struct{}

// NewReviewNode creates the human review step.
func NewReviewNode() *ReviewNode { return &ReviewNode{} }

func (n *ReviewNode) Name() string        { return NodeReview }
func (n *ReviewNode) Interruptible() bool { return true }

func (n *ReviewNode) Run(ctx context.Context, state *ExecutionState) (NodeResult, error) {
	if state.Decision == nil {
		return NodeResult{Signal: SignalInterrupt, Interrupt: newReviewInterrupt(state)}, nil
	}
	return NodeResult{Signal: SignalContinue}, nil
}

// ====== 生成节点 ======

// answerPrompt grounds the generator in the reviewed context. The context
// blocks carry their source ids in brackets so the model can cite them.
const answerPrompt = `You are a retrieval-grounded assistant. Answer the question using ONLY the context below. Cite the sources you rely on inline, like [%s]. If the context does not contain the answer, say you do not know.

Context:
%s

Question: %s

Answer:`

// BuildAnswerPrompt renders the generation prompt for a question and the
// reviewed context text.
func BuildAnswerPrompt(question, contextText string) string {
	return fmt.Sprintf(answerPrompt, "source_id", contextText, question)
}

// GenerateNode builds the prompt from the question and the decision's
// context, calls the generator, and writes the answer.
type GenerateNode struct {
	generator Generator
}

// NewGenerateNode creates the answer generation step.
func NewGenerateNode(g Generator) *GenerateNode {
	return &GenerateNode{generator: g}
}

func (n *GenerateNode) Name() string        { return NodeGenerate }
func (n *GenerateNode) Interruptible() bool { return false }

func (n *GenerateNode) Run(ctx context.Context, state *ExecutionState) (NodeResult, error) {
	prompt := BuildAnswerPrompt(state.Question, state.ContextForGeneration())
	answer, err := n.generator.Complete(ctx, prompt)
	if err != nil {
		return NodeResult{}, types.NewGenerationFailure(state.ThreadID, err)
	}
	state.Answer = answer
	return NodeResult{Signal: SignalContinue}, nil
}

// Compile-time interface checks.
var (
	_ Node = (*RetrieveNode)(nil)
	_ Node = (*ReviewNode)(nil)
	_ Node = (*GenerateNode)(nil)
)
