package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/ragloop/types"
)

// Result is what Start and Resume hand back: either an interrupt awaiting a
// decision, or the final answer. Exactly one of the two is set.
type Result struct {
	ThreadID  string
	Interrupt *InterruptPayload
	Answer    string
}

// Interrupted reports whether the thread is suspended awaiting input.
func (r *Result) Interrupted() bool { return r.Interrupt != nil }

// Executor drives a thread's state through the graph as an explicit state
// machine: run the current node, persist, advance. Suspension is a persisted
// (current_node, state) pair, never a paused call stack, which is what makes
// resume-after-restart possible.
//
// Every invocation runs synchronously in the caller's context. Independent
// threads progress concurrently without coordination; within one thread the
// checkpoint store's version check serializes progress.
type Executor struct {
	graph  *Graph
	store  CheckpointStore
	logger *zap.Logger
	tracer trace.Tracer

	// maxSteps guards against a miswired graph looping forever.
	maxSteps int
}

// NewExecutor creates an executor for one graph over one checkpoint store.
func NewExecutor(graph *Graph, store CheckpointStore, logger *zap.Logger) *Executor {
	return &Executor{
		graph:    graph,
		store:    store,
		logger:   logger.With(zap.String("component", "executor")),
		tracer:   otel.Tracer("github.com/BaSui01/ragloop/workflow"),
		maxSteps: 64,
	}
}

// newThreadID generates a fresh thread identifier. Hex without dashes, the
// shape callers already parse.
func newThreadID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Start creates a thread for the question and drives it from the entry node
// until it interrupts or completes. A retrieval failure surfaces before
// anything is persisted, so no thread is left behind.
func (e *Executor) Start(ctx context.Context, question string, topK int) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, types.NewValidationError("question must not be empty")
	}

	state := NewExecutionState(newThreadID(), e.graph.Entry(), question, topK)

	ctx, span := e.tracer.Start(ctx, "workflow.start", trace.WithAttributes(
		attribute.String("thread_id", state.ThreadID),
		attribute.Int("topk", state.TopK),
	))
	defer span.End()

	e.logger.Info("starting thread",
		zap.String("thread_id", state.ThreadID),
		zap.Int("topk", state.TopK),
	)

	res, err := e.drive(ctx, state)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res, nil
}

// Resume loads the thread, validates and injects the decision, claims the
// resume with a compare-and-swap write, and continues execution from the
// suspended node. A losing concurrent resume fails with CONFLICT before any
// node runs again.
func (e *Executor) Resume(ctx context.Context, threadID string, decision Decision) (*Result, error) {
	// Malformed decisions are rejected before any load, node run, or write.
	if err := decision.Validate(); err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "workflow.resume", trace.WithAttributes(
		attribute.String("thread_id", threadID),
		attribute.String("decision", string(decision.Kind)),
	))
	defer span.End()

	state, err := e.store.Load(ctx, threadID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := e.resumable(state); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Inject the decision and claim the resume. The version bump is what
	// makes a racing resume lose cleanly instead of running the graph twice.
	state.Decision = &decision
	state.UpdatedAt = time.Now().UTC()
	newVersion, err := e.store.Save(ctx, threadID, state, state.Version)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	state.Version = newVersion

	e.logger.Info("resuming thread",
		zap.String("thread_id", threadID),
		zap.String("node", state.CurrentNode),
		zap.String("decision", string(decision.Kind)),
	)

	res, err := e.drive(ctx, state)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res, nil
}

// resumable decides whether a loaded thread may accept a decision right now.
// Two states qualify: parked at an interrupt node with no decision yet, and
// parked at a later node with a decision already consumed — the recovery
// position after a generation failure, where only generation is redone and
// the review stands.
func (e *Executor) resumable(state *ExecutionState) error {
	if state.Completed() {
		return types.NewInvalidStateError(state.ThreadID, "thread already completed")
	}
	node, ok := e.graph.Node(state.CurrentNode)
	if !ok {
		return types.NewError(types.ErrInternal, "persisted state points at unknown node "+state.CurrentNode).
			WithThread(state.ThreadID).WithHTTPStatus(500)
	}
	if node.Interruptible() && state.Decision == nil {
		return nil
	}
	if state.Decision != nil {
		return nil
	}
	return types.NewInvalidStateError(state.ThreadID, "thread is not suspended at an interrupt node")
}

// drive is the control loop: run current node, persist at the step boundary,
// stop on interrupt or terminal, otherwise advance along the graph's edge.
// Every exit is either a successful interrupt/terminal result or a typed
// failure; nothing is swallowed.
func (e *Executor) drive(ctx context.Context, state *ExecutionState) (*Result, error) {
	for steps := 0; steps < e.maxSteps; steps++ {
		node, ok := e.graph.Node(state.CurrentNode)
		if !ok {
			return nil, types.NewError(types.ErrInternal, "unknown node "+state.CurrentNode).
				WithThread(state.ThreadID).WithHTTPStatus(500)
		}

		started := time.Now()
		nodeCtx, span := e.tracer.Start(ctx, "workflow.node."+node.Name(), trace.WithAttributes(
			attribute.String("thread_id", state.ThreadID),
		))
		res, err := node.Run(nodeCtx, state)
		span.End()
		duration := time.Since(started)

		if err != nil {
			e.logger.Error("node failed",
				zap.String("thread_id", state.ThreadID),
				zap.String("node", node.Name()),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
			// Version 0 means nothing was ever persisted: the caller gets
			// the failure and no thread exists (retrieval failure at start).
			// A persisted thread stays parked at the failed node so a later
			// resume can retry it without redoing review.
			return nil, err
		}

		e.logger.Debug("node completed",
			zap.String("thread_id", state.ThreadID),
			zap.String("node", node.Name()),
			zap.Duration("duration", duration),
		)

		state.UpdatedAt = time.Now().UTC()

		if res.Signal == SignalInterrupt {
			newVersion, err := e.store.Save(ctx, state.ThreadID, state, state.Version)
			if err != nil {
				return nil, err
			}
			state.Version = newVersion
			e.logger.Info("thread suspended",
				zap.String("thread_id", state.ThreadID),
				zap.String("node", node.Name()),
				zap.Int64("version", newVersion),
			)
			return &Result{ThreadID: state.ThreadID, Interrupt: res.Interrupt}, nil
		}

		next, ok := e.graph.Next(state.CurrentNode)
		if !ok {
			return nil, types.NewError(types.ErrInternal, "node "+state.CurrentNode+" has no outgoing edge").
				WithThread(state.ThreadID).WithHTTPStatus(500)
		}
		state.CurrentNode = next

		newVersion, err := e.store.Save(ctx, state.ThreadID, state, state.Version)
		if err != nil {
			return nil, err
		}
		state.Version = newVersion

		if state.Completed() {
			e.logger.Info("thread completed",
				zap.String("thread_id", state.ThreadID),
				zap.Int64("version", newVersion),
			)
			return &Result{ThreadID: state.ThreadID, Answer: state.Answer}, nil
		}
	}

	return nil, types.NewError(types.ErrInternal, "graph exceeded max steps").
		WithThread(state.ThreadID).WithHTTPStatus(500)
}
