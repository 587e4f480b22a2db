package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdfme/transformer-service/pkg/cache"
	"github.com/pdfme/transformer-service/pkg/types"
)

func newCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisClient(mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestJobLifecycle(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()
	req := &types.TransformRequest{RequestID: "r1", FileID: "f1"}

	status, err := c.GetFileStatus(ctx, "r1", "f1")
	require.NoError(t, err)
	assert.Empty(t, status)

	require.NoError(t, c.JobStarted(ctx, req))
	status, err = c.GetFileStatus(ctx, "r1", "f1")
	require.NoError(t, err)
	assert.Equal(t, cache.StatusProcessing, status)
	assert.Equal(t, time.Hour, mr.TTL("transform:r1:f1"))

	require.NoError(t, c.JobFinished(ctx, req, types.Outcome{Status: types.CompletionFailure, Error: "boom"}))
	status, err = c.GetFileStatus(ctx, "r1", "f1")
	require.NoError(t, err)
	assert.Equal(t, cache.StatusFailed, status)
	assert.Equal(t, 24*time.Hour, mr.TTL("transform:r1:f1"))
}

func TestJobFinished_Success(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()
	req := &types.TransformRequest{RequestID: "r1", FileID: "f2"}

	require.NoError(t, c.JobFinished(ctx, req, types.Outcome{Status: types.CompletionSuccess}))
	status, err := c.GetFileStatus(ctx, "r1", "f2")
	require.NoError(t, err)
	assert.Equal(t, cache.StatusCompleted, status)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	_, err := cache.NewRedisClient("127.0.0.1:1", "")
	require.Error(t, err)
}

func TestStatusExpires(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.JobStarted(ctx, &types.TransformRequest{RequestID: "r1", FileID: "f3"}))
	mr.FastForward(2 * time.Hour)

	status, err := c.GetFileStatus(ctx, "r1", "f3")
	require.NoError(t, err)
	assert.Empty(t, status)
}
