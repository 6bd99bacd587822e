package workflow

import "context"

// CheckpointStore is the durable owner of execution state across process
// lifetimes. Implementations live in the checkpoint package.
//
// Concurrency is optimistic: Save is a compare-and-swap on the version
// counter, so two resumes racing on one thread cannot silently clobber each
// other — the loser fails with a CONFLICT error and applies no side effects.
type CheckpointStore interface {
	// Setup performs first-use schema initialization (tables, namespaces).
	// It is idempotent and safe to call on every process start.
	Setup(ctx context.Context) error

	// Save persists state iff the stored version equals expectedVersion.
	// expectedVersion 0 means "create"; creating a thread that already
	// exists fails. On success the state is stored with, and the call
	// returns, expectedVersion+1. A mismatch fails with a CONFLICT error.
	Save(ctx context.Context, threadID string, state *ExecutionState, expectedVersion int64) (int64, error)

	// Load returns the latest persisted state together with its version
	// (carried in state.Version). Unknown threads fail with NOT_FOUND.
	Load(ctx context.Context, threadID string) (*ExecutionState, error)

	// Delete removes a thread's state. Deleting an unknown thread is a
	// no-op: archival is caller discretion, not part of the lifecycle.
	Delete(ctx context.Context, threadID string) error
}
