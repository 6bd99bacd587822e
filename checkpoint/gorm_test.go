package checkpoint

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/ragloop/types"
	"github.com/BaSui01/ragloop/workflow"
)

func setupGormStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	store := NewGormStore(db, zap.NewNop())
	require.NoError(t, store.Setup(context.Background()))
	return store
}

func TestGormStore_SetupIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := setupGormStore(t)

	_, err := store.Save(ctx, "th-1", testState("th-1"), 0)
	require.NoError(t, err)

	// Running Setup again must not wipe existing threads.
	require.NoError(t, store.Setup(ctx))

	loaded, err := store.Load(ctx, "th-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.Version)
	assert.Equal(t, "difference between A and B?", loaded.Question)
}

func TestGormStore_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := setupGormStore(t)

	state := testState("th-1")
	v, err := store.Save(ctx, "th-1", state, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	loaded, err := store.Load(ctx, "th-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.Version)
	assert.Equal(t, state.Question, loaded.Question)
	assert.Equal(t, state.CurrentNode, loaded.CurrentNode)
	assert.Equal(t, state.RetrievedContext, loaded.RetrievedContext)
	assert.True(t, state.CreatedAt.Equal(loaded.CreatedAt))
}

func TestGormStore_UpdateAdvancesVersion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := setupGormStore(t)

	state := testState("th-1")
	v1, err := store.Save(ctx, "th-1", state, 0)
	require.NoError(t, err)

	decision := workflow.NewDecision(true, "")
	state.Decision = &decision
	state.CurrentNode = workflow.NodeGenerate
	v2, err := store.Save(ctx, "th-1", state, v1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v2)

	loaded, err := store.Load(ctx, "th-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.Version)
	assert.Equal(t, workflow.NodeGenerate, loaded.CurrentNode)
	require.NotNil(t, loaded.Decision)
	assert.Equal(t, workflow.DecisionApproved, loaded.Decision.Kind)
}

func TestGormStore_ConflictOnStaleVersion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := setupGormStore(t)

	state := testState("th-1")
	_, err := store.Save(ctx, "th-1", state, 0)
	require.NoError(t, err)
	_, err = store.Save(ctx, "th-1", state, 1)
	require.NoError(t, err)

	// Re-using the already consumed version 1 must conflict.
	_, err = store.Save(ctx, "th-1", state, 1)
	require.Error(t, err)
	assert.True(t, types.IsConflict(err))
}

func TestGormStore_ConflictOnDuplicateCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := setupGormStore(t)

	_, err := store.Save(ctx, "th-1", testState("th-1"), 0)
	require.NoError(t, err)

	_, err = store.Save(ctx, "th-1", testState("th-1"), 0)
	require.Error(t, err)
	assert.True(t, types.IsConflict(err))
}

func TestGormStore_ConflictOnUpdateOfMissingThread(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := setupGormStore(t)

	_, err := store.Save(ctx, "th-ghost", testState("th-ghost"), 2)
	require.Error(t, err)
	assert.True(t, types.IsConflict(err))
}

func TestGormStore_LoadUnknownThread(t *testing.T) {
	t.Parallel()
	store := setupGormStore(t)

	_, err := store.Load(context.Background(), "th-missing")
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
}

func TestGormStore_DeleteIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := setupGormStore(t)

	_, err := store.Save(ctx, "th-1", testState("th-1"), 0)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "th-1"))
	require.NoError(t, store.Delete(ctx, "th-1"))

	_, err = store.Load(ctx, "th-1")
	assert.True(t, types.IsNotFound(err))
}
