package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/ragloop/types"
	"github.com/BaSui01/ragloop/workflow"
)

// threadRecord is the relational shape of a thread's latest execution state.
// The state itself is stored as a JSON document; the version column is the
// compare-and-swap target.
type threadRecord struct {
	ThreadID  string    `gorm:"column:thread_id;primaryKey;size:64"`
	Version   int64     `gorm:"column:version;not null"`
	State     string    `gorm:"column:state;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName fixes the table name across dialects.
func (threadRecord) TableName() string { return "ragloop_threads" }

// GormStore persists execution state through gorm. It works against
// postgres, mysql, and sqlite dialectors; the conditional write carries the
// optimistic-concurrency contract on every backend.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore wraps an open gorm handle.
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "checkpoint_gorm")),
	}
}

// Setup creates the threads table. AutoMigrate is idempotent, so calling it
// on every process start is safe and loses nothing.
func (s *GormStore) Setup(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&threadRecord{}); err != nil {
		return fmt.Errorf("migrate threads table: %w", err)
	}
	return nil
}

func (s *GormStore) Save(ctx context.Context, threadID string, state *workflow.ExecutionState, expectedVersion int64) (int64, error) {
	newVersion := expectedVersion + 1

	stored := state.Clone()
	stored.Version = newVersion
	payload, err := json.Marshal(stored)
	if err != nil {
		return 0, fmt.Errorf("marshal state: %w", err)
	}

	now := time.Now().UTC()

	if expectedVersion == 0 {
		rec := threadRecord{
			ThreadID:  threadID,
			Version:   newVersion,
			State:     string(payload),
			CreatedAt: now,
			UpdatedAt: now,
		}
		// DoNothing keeps the insert portable: an existing row simply
		// yields zero affected rows instead of a dialect-specific error.
		tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
		if tx.Error != nil {
			return 0, fmt.Errorf("insert thread %s: %w", threadID, tx.Error)
		}
		if tx.RowsAffected == 0 {
			return 0, types.NewConflictError(threadID, "thread already exists")
		}
		return newVersion, nil
	}

	tx := s.db.WithContext(ctx).Model(&threadRecord{}).
		Where("thread_id = ? AND version = ?", threadID, expectedVersion).
		Updates(map[string]any{
			"version":    newVersion,
			"state":      string(payload),
			"updated_at": now,
		})
	if tx.Error != nil {
		return 0, fmt.Errorf("update thread %s: %w", threadID, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return 0, types.NewConflictError(threadID, fmt.Sprintf("expected version %d was not the stored version", expectedVersion))
	}
	return newVersion, nil
}

func (s *GormStore) Load(ctx context.Context, threadID string) (*workflow.ExecutionState, error) {
	var rec threadRecord
	err := s.db.WithContext(ctx).First(&rec, "thread_id = ?", threadID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewNotFoundError(threadID)
	}
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}

	var state workflow.ExecutionState
	if err := json.Unmarshal([]byte(rec.State), &state); err != nil {
		return nil, fmt.Errorf("unmarshal thread %s: %w", threadID, err)
	}
	state.Version = rec.Version
	return &state, nil
}

func (s *GormStore) Delete(ctx context.Context, threadID string) error {
	if err := s.db.WithContext(ctx).Delete(&threadRecord{}, "thread_id = ?", threadID).Error; err != nil {
		return fmt.Errorf("delete thread %s: %w", threadID, err)
	}
	return nil
}

var _ workflow.CheckpointStore = (*GormStore)(nil)
