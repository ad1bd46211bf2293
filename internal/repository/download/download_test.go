package download

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need a live server: MODSERVER_TEST_REDIS_URL=redis://localhost:6379/15
func newTestRepository(t *testing.T) *downloadRepository {
	t.Helper()

	url := os.Getenv("MODSERVER_TEST_REDIS_URL")
	if url == "" {
		t.Skip("MODSERVER_TEST_REDIS_URL is not set")
	}

	opt, err := redis.ParseURL(url)
	require.NoError(t, err)

	cl := redis.NewClient(opt)
	t.Cleanup(func() { cl.Close() })
	require.NoError(t, cl.Ping(context.Background()).Err())

	return NewDownloadRepository(cl, time.Minute, slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})))
}

func TestGetKey(t *testing.T) {
	assert.Equal(t, "fs:main", getKey(KeyFileStats, "main"))
	assert.Equal(t, "dl", getKey(KeyUniqueDownload))
}

func TestCounters(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	branch := "test-" + uuid.NewString()
	t.Cleanup(func() { repo.cl.Del(ctx, getKey(KeyFileStats, branch)) })

	for i := 0; i < 3; i++ {
		_, err := repo.IncFileCounter(ctx, branch, "a.jar")
		require.NoError(t, err)
	}
	_, err := repo.IncFileCounter(ctx, branch, "b.jar")
	require.NoError(t, err)

	counters, err := repo.GetBranchCounters(ctx, branch)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"a.jar": 3, "b.jar": 1}, counters)

	seq, err := repo.CounterIterator(ctx)
	require.NoError(t, err)

	found := false
	for bc, err := range seq {
		require.NoError(t, err)
		if bc.Branch == branch {
			found = true
			assert.Len(t, bc.Files, 2)
		}
	}
	assert.True(t, found)
}

func TestUserExists(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	id := uuid.NewString()
	t.Cleanup(func() { repo.cl.Del(ctx, getKey(KeyUniqueDownload, id)) })

	exists, err := repo.UserExists(ctx, id)
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.UserExists(ctx, id)
	require.NoError(t, err)
	assert.True(t, exists)
}
