package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestID_RoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-abc123")

	got, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-abc123", got)
}

func TestRequestID_Missing(t *testing.T) {
	got, ok := RequestID(context.Background())
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestRequestID_EmptyValue(t *testing.T) {
	// 空串视为未设置
	ctx := WithRequestID(context.Background(), "")

	got, ok := RequestID(ctx)
	assert.False(t, ok)
	assert.Empty(t, got)
}
