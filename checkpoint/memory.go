package checkpoint

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/ragloop/types"
	"github.com/BaSui01/ragloop/workflow"
)

// MemoryStore keeps execution state in process memory. Useful for tests and
// single-node development; state does not survive a restart.
type MemoryStore struct {
	threads map[string]*workflow.ExecutionState
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads: make(map[string]*workflow.ExecutionState),
	}
}

// Setup is a no-op; the map has no schema.
func (s *MemoryStore) Setup(ctx context.Context) error {
	return nil
}

// Save applies the compare-and-swap write. Clones on the way in so later
// caller mutations never leak into the store.
func (s *MemoryStore) Save(ctx context.Context, threadID string, state *workflow.ExecutionState, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.threads[threadID]
	switch {
	case !exists && expectedVersion != 0:
		return 0, types.NewConflictError(threadID, fmt.Sprintf("expected version %d but thread does not exist", expectedVersion))
	case exists && current.Version != expectedVersion:
		return 0, types.NewConflictError(threadID, fmt.Sprintf("expected version %d but stored version is %d", expectedVersion, current.Version))
	}

	stored := state.Clone()
	stored.Version = expectedVersion + 1
	s.threads[threadID] = stored
	return stored.Version, nil
}

// Load returns a clone of the latest state.
func (s *MemoryStore) Load(ctx context.Context, threadID string) (*workflow.ExecutionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.threads[threadID]
	if !ok {
		return nil, types.NewNotFoundError(threadID)
	}
	return state.Clone(), nil
}

// Delete removes the thread; unknown threads are a no-op.
func (s *MemoryStore) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	return nil
}

var _ workflow.CheckpointStore = (*MemoryStore)(nil)
