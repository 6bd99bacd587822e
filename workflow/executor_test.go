package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/ragloop/types"
)

// ---------------------------------------------------------------------------
// Mock helpers
// ---------------------------------------------------------------------------

// stubRetriever returns canned chunks or a canned error.
type stubRetriever struct {
	chunks    []RetrievedChunk
	err       error
	callCount atomic.Int32
	lastQuery string
	lastK     int
}

func (r *stubRetriever) Search(ctx context.Context, query string, k int) ([]RetrievedChunk, error) {
	r.callCount.Add(1)
	r.lastQuery = query
	r.lastK = k
	if r.err != nil {
		return nil, r.err
	}
	return r.chunks, nil
}

// stubGenerator returns a canned answer and records the prompt it saw.
type stubGenerator struct {
	answer     string
	err        error
	callCount  atomic.Int32
	lastPrompt string
}

func (g *stubGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	g.callCount.Add(1)
	g.lastPrompt = prompt
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

// fakeStore is an in-package checkpoint store with the same compare-and-swap
// contract the real stores implement.
type fakeStore struct {
	mu        sync.Mutex
	threads   map[string]*ExecutionState
	saveCount atomic.Int32
	loadCount atomic.Int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{threads: make(map[string]*ExecutionState)}
}

func (s *fakeStore) Setup(ctx context.Context) error { return nil }

func (s *fakeStore) Save(ctx context.Context, threadID string, state *ExecutionState, expectedVersion int64) (int64, error) {
	s.saveCount.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.threads[threadID]
	switch {
	case !exists && expectedVersion != 0:
		return 0, types.NewConflictError(threadID, "thread does not exist")
	case exists && current.Version != expectedVersion:
		return 0, types.NewConflictError(threadID, fmt.Sprintf("expected version %d, stored version %d", expectedVersion, current.Version))
	}

	stored := state.Clone()
	stored.Version = expectedVersion + 1
	s.threads[threadID] = stored
	return stored.Version, nil
}

func (s *fakeStore) Load(ctx context.Context, threadID string) (*ExecutionState, error) {
	s.loadCount.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.threads[threadID]
	if !ok {
		return nil, types.NewNotFoundError(threadID)
	}
	return state.Clone(), nil
}

func (s *fakeStore) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	return nil
}

func (s *fakeStore) snapshot(t *testing.T, threadID string) *ExecutionState {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.threads[threadID]
	require.True(t, ok, "thread %s not in store", threadID)
	return state.Clone()
}

var _ CheckpointStore = (*fakeStore)(nil)

func defaultChunks() []RetrievedChunk {
	return []RetrievedChunk{
		{SourceID: "guide.md#0", Text: "Alpha handles ingestion.", Score: 0.95},
		{SourceID: "guide.md#2", Text: "Beta handles serving.", Score: 0.90},
	}
}

// newTestExecutor wires an executor over fresh stubs.
func newTestExecutor(t *testing.T, retriever *stubRetriever, generator *stubGenerator) (*Executor, *fakeStore) {
	t.Helper()
	graph, err := NewReviewPipeline(retriever, generator)
	require.NoError(t, err)
	store := newFakeStore()
	return NewExecutor(graph, store, zap.NewNop()), store
}

// startSuspended runs Start and asserts the thread parked at review.
func startSuspended(t *testing.T, exec *Executor) *Result {
	t.Helper()
	res, err := exec.Start(context.Background(), "who handles serving?", 4)
	require.NoError(t, err)
	require.True(t, res.Interrupted())
	return res
}

// ---------------------------------------------------------------------------
// Start
// ---------------------------------------------------------------------------

func TestExecutor_Start_SuspendsAtReview(t *testing.T) {
	t.Parallel()
	retriever := &stubRetriever{chunks: defaultChunks()}
	exec, store := newTestExecutor(t, retriever, &stubGenerator{answer: "Beta."})

	res, err := exec.Start(context.Background(), "who handles serving?", 4)
	require.NoError(t, err)

	require.True(t, res.Interrupted())
	assert.NotEmpty(t, res.ThreadID)
	assert.Empty(t, res.Answer)

	payload := res.Interrupt
	assert.Equal(t, ActionReviewContext, payload.Action)
	assert.Equal(t, "who handles serving?", payload.Question)
	assert.Equal(t, "[guide.md#0]\nAlpha handles ingestion.\n\n[guide.md#2]\nBeta handles serving.", payload.ContextPreview)
	require.Len(t, payload.RetrievedSources, 2)
	assert.Equal(t, SourceRef{SourceID: "guide.md#0", Score: 0.95}, payload.RetrievedSources[0])
	assert.Equal(t, SourceRef{SourceID: "guide.md#2", Score: 0.90}, payload.RetrievedSources[1])

	// The persisted thread is parked at review with the retrieval recorded.
	state := store.snapshot(t, res.ThreadID)
	assert.Equal(t, NodeReview, state.CurrentNode)
	assert.Equal(t, defaultChunks(), state.RetrievedContext)
	assert.Nil(t, state.Decision)
	assert.Empty(t, state.Answer)
	assert.Positive(t, state.Version)
}

func TestExecutor_Start_GeneratesUniqueThreadIDs(t *testing.T) {
	t.Parallel()
	exec, _ := newTestExecutor(t, &stubRetriever{chunks: defaultChunks()}, &stubGenerator{})

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		res, err := exec.Start(context.Background(), "q", 4)
		require.NoError(t, err)
		assert.False(t, seen[res.ThreadID], "thread id %s reused", res.ThreadID)
		seen[res.ThreadID] = true
	}
}

func TestExecutor_Start_NormalizesTopK(t *testing.T) {
	t.Parallel()
	retriever := &stubRetriever{chunks: defaultChunks()}
	exec, _ := newTestExecutor(t, retriever, &stubGenerator{})

	_, err := exec.Start(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, retriever.lastK)

	_, err = exec.Start(context.Background(), "q", MaxTopK+100)
	require.NoError(t, err)
	assert.Equal(t, MaxTopK, retriever.lastK)
}

func TestExecutor_Start_RejectsBlankQuestion(t *testing.T) {
	t.Parallel()
	retriever := &stubRetriever{chunks: defaultChunks()}
	exec, store := newTestExecutor(t, retriever, &stubGenerator{})

	_, err := exec.Start(context.Background(), "   \n ", 4)
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))
	assert.Equal(t, int32(0), retriever.callCount.Load(), "no node may run on invalid input")
	assert.Equal(t, int32(0), store.saveCount.Load())
}

func TestExecutor_Start_RetrievalFailureLeavesNoThread(t *testing.T) {
	t.Parallel()
	retriever := &stubRetriever{err: errors.New("vector store down")}
	exec, store := newTestExecutor(t, retriever, &stubGenerator{})

	_, err := exec.Start(context.Background(), "q", 4)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrRetrievalFailure))

	// Nothing persisted: the failure happened before the first checkpoint.
	assert.Equal(t, int32(0), store.saveCount.Load())
}

// ---------------------------------------------------------------------------
// Resume — decision handling
// ---------------------------------------------------------------------------

func TestExecutor_Resume_ApprovedUsesRetrievedContext(t *testing.T) {
	t.Parallel()
	generator := &stubGenerator{answer: "Beta handles serving [guide.md#2]."}
	exec, store := newTestExecutor(t, &stubRetriever{chunks: defaultChunks()}, generator)
	started := startSuspended(t, exec)

	res, err := exec.Resume(context.Background(), started.ThreadID, NewDecision(true, ""))
	require.NoError(t, err)

	assert.False(t, res.Interrupted())
	assert.Equal(t, started.ThreadID, res.ThreadID)
	assert.Equal(t, "Beta handles serving [guide.md#2].", res.Answer)

	// The prompt was built from the original retrieved context.
	assert.Contains(t, generator.lastPrompt, "[guide.md#0]\nAlpha handles ingestion.")
	assert.Contains(t, generator.lastPrompt, "[guide.md#2]\nBeta handles serving.")
	assert.Contains(t, generator.lastPrompt, "Question: who handles serving?")

	state := store.snapshot(t, started.ThreadID)
	assert.True(t, state.Completed())
	assert.Equal(t, res.Answer, state.Answer)
	require.NotNil(t, state.Decision)
	assert.Equal(t, DecisionApproved, state.Decision.Kind)
}

func TestExecutor_Resume_EditedReplacesContextForGeneration(t *testing.T) {
	t.Parallel()
	generator := &stubGenerator{answer: "Gamma."}
	exec, store := newTestExecutor(t, &stubRetriever{chunks: defaultChunks()}, generator)
	started := startSuspended(t, exec)

	res, err := exec.Resume(context.Background(), started.ThreadID, NewDecision(false, "Gamma handles everything now."))
	require.NoError(t, err)
	assert.Equal(t, "Gamma.", res.Answer)

	// Generation saw only the replacement text.
	assert.Contains(t, generator.lastPrompt, "Gamma handles everything now.")
	assert.NotContains(t, generator.lastPrompt, "Alpha handles ingestion.")

	// The retrieval record stays immutable for audit.
	state := store.snapshot(t, started.ThreadID)
	assert.Equal(t, defaultChunks(), state.RetrievedContext)
	require.NotNil(t, state.Decision)
	assert.Equal(t, "Gamma handles everything now.", state.Decision.EditedContext)
}

func TestExecutor_Resume_ValidatesDecisionBeforeAnything(t *testing.T) {
	t.Parallel()
	retriever := &stubRetriever{chunks: defaultChunks()}
	generator := &stubGenerator{answer: "x"}
	exec, store := newTestExecutor(t, retriever, generator)
	started := startSuspended(t, exec)

	loadsBefore := store.loadCount.Load()
	_, err := exec.Resume(context.Background(), started.ThreadID, NewDecision(false, "   "))
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))

	// Rejected before any load, node run, or write.
	assert.Equal(t, loadsBefore, store.loadCount.Load())
	assert.Equal(t, int32(0), generator.callCount.Load())

	// The thread is still resumable afterwards.
	res, err := exec.Resume(context.Background(), started.ThreadID, NewDecision(true, ""))
	require.NoError(t, err)
	assert.Equal(t, "x", res.Answer)
}

// ---------------------------------------------------------------------------
// Resume — thread lifecycle errors
// ---------------------------------------------------------------------------

func TestExecutor_Resume_UnknownThread(t *testing.T) {
	t.Parallel()
	exec, _ := newTestExecutor(t, &stubRetriever{chunks: defaultChunks()}, &stubGenerator{})

	_, err := exec.Resume(context.Background(), "never-started", NewDecision(true, ""))
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
}

func TestExecutor_Resume_CompletedThread(t *testing.T) {
	t.Parallel()
	exec, _ := newTestExecutor(t, &stubRetriever{chunks: defaultChunks()}, &stubGenerator{answer: "done"})
	started := startSuspended(t, exec)

	_, err := exec.Resume(context.Background(), started.ThreadID, NewDecision(true, ""))
	require.NoError(t, err)

	_, err = exec.Resume(context.Background(), started.ThreadID, NewDecision(true, ""))
	require.Error(t, err)
	assert.True(t, types.IsInvalidState(err))
	assert.Contains(t, err.Error(), "already completed")
}

func TestExecutor_Resume_ConcurrentResumesOneWins(t *testing.T) {
	t.Parallel()
	generator := &stubGenerator{answer: "winner"}
	exec, store := newTestExecutor(t, &stubRetriever{chunks: defaultChunks()}, generator)
	started := startSuspended(t, exec)

	// Both resumes load the same version before either claims it, so the
	// store's version check decides the race.
	gate := newGateStore(store, 2)
	racing := NewExecutor(exec.graph, gate, zap.NewNop())

	type outcome struct {
		res *Result
		err error
	}
	results := make(chan outcome, 2)
	for i := 0; i < 2; i++ {
		go func() {
			res, err := racing.Resume(context.Background(), started.ThreadID, NewDecision(true, ""))
			results <- outcome{res, err}
		}()
	}

	var wins, conflicts int
	for i := 0; i < 2; i++ {
		out := <-results
		if out.err != nil {
			assert.True(t, types.IsConflict(out.err), "loser must fail with a conflict, got %v", out.err)
			assert.True(t, types.IsRetryable(out.err))
			conflicts++
			continue
		}
		assert.Equal(t, "winner", out.res.Answer)
		wins++
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)

	// The pipeline ran to completion exactly once.
	assert.Equal(t, int32(1), generator.callCount.Load())
}

// gateStore delays loads until both racing resumes have read the same
// version.
type gateStore struct {
	*fakeStore
	parties int
	mu      sync.Mutex
	waiting int
	release chan struct{}
}

func newGateStore(inner *fakeStore, parties int) *gateStore {
	return &gateStore{
		fakeStore: inner,
		parties:   parties,
		release:   make(chan struct{}),
	}
}

func (s *gateStore) Load(ctx context.Context, threadID string) (*ExecutionState, error) {
	state, err := s.fakeStore.Load(ctx, threadID)

	s.mu.Lock()
	s.waiting++
	if s.waiting == s.parties {
		close(s.release)
	}
	s.mu.Unlock()

	<-s.release
	return state, err
}

// ---------------------------------------------------------------------------
// Resume — generation failure and retry
// ---------------------------------------------------------------------------

func TestExecutor_Resume_GenerationFailureKeepsThreadRecoverable(t *testing.T) {
	t.Parallel()
	retriever := &stubRetriever{chunks: defaultChunks()}
	generator := &stubGenerator{err: errors.New("model overloaded")}
	exec, store := newTestExecutor(t, retriever, generator)
	started := startSuspended(t, exec)

	_, err := exec.Resume(context.Background(), started.ThreadID, NewDecision(true, ""))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrGenerationFailure))

	// The thread survives, parked at generate with the decision recorded.
	state := store.snapshot(t, started.ThreadID)
	assert.Equal(t, NodeGenerate, state.CurrentNode)
	require.NotNil(t, state.Decision)
	assert.Equal(t, DecisionApproved, state.Decision.Kind)
	assert.Empty(t, state.Answer)
}

func TestExecutor_Resume_RetriesGenerationOnly(t *testing.T) {
	t.Parallel()
	retriever := &stubRetriever{chunks: defaultChunks()}
	generator := &stubGenerator{err: errors.New("model overloaded")}
	exec, _ := newTestExecutor(t, retriever, generator)
	started := startSuspended(t, exec)

	_, err := exec.Resume(context.Background(), started.ThreadID, NewDecision(true, ""))
	require.Error(t, err)

	// The model recovers; a second resume finishes the thread without
	// redoing retrieval or review.
	generator.err = nil
	generator.answer = "recovered answer"
	res, err := exec.Resume(context.Background(), started.ThreadID, NewDecision(true, ""))
	require.NoError(t, err)

	assert.False(t, res.Interrupted(), "review must not run again")
	assert.Equal(t, "recovered answer", res.Answer)
	assert.Equal(t, int32(1), retriever.callCount.Load(), "retrieval must not be redone")
	assert.Equal(t, int32(2), generator.callCount.Load())
}

func TestExecutor_Resume_RetryCanSwitchToEditedContext(t *testing.T) {
	t.Parallel()
	generator := &stubGenerator{err: errors.New("model overloaded")}
	exec, _ := newTestExecutor(t, &stubRetriever{chunks: defaultChunks()}, generator)
	started := startSuspended(t, exec)

	_, err := exec.Resume(context.Background(), started.ThreadID, NewDecision(true, ""))
	require.Error(t, err)

	// The retry carries a fresh decision; the new one governs generation.
	generator.err = nil
	generator.answer = "edited answer"
	res, err := exec.Resume(context.Background(), started.ThreadID, NewDecision(false, "use this text instead"))
	require.NoError(t, err)

	assert.Equal(t, "edited answer", res.Answer)
	assert.Contains(t, generator.lastPrompt, "use this text instead")
	assert.NotContains(t, generator.lastPrompt, "Alpha handles ingestion.")
}

// ---------------------------------------------------------------------------
// Version bookkeeping
// ---------------------------------------------------------------------------

func TestExecutor_VersionAdvancesPerCheckpoint(t *testing.T) {
	t.Parallel()
	exec, store := newTestExecutor(t, &stubRetriever{chunks: defaultChunks()}, &stubGenerator{answer: "a"})
	started := startSuspended(t, exec)

	// Start checkpoints twice: advance past retrieve, then the interrupt.
	assert.Equal(t, int64(2), store.snapshot(t, started.ThreadID).Version)

	_, err := exec.Resume(context.Background(), started.ThreadID, NewDecision(true, ""))
	require.NoError(t, err)

	// Resume adds the claim, the advance past review, and the completion.
	assert.Equal(t, int64(5), store.snapshot(t, started.ThreadID).Version)
}
