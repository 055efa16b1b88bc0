package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRateLimiter(t *testing.T) {
	repo := NewMemoryRateLimiter()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := repo.CheckRateLimit(ctx, "customer:1", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, _ := repo.CheckRateLimit(ctx, "customer:1", 2, time.Minute)
	assert.False(t, allowed)

	allowed, _ = repo.CheckRateLimit(ctx, "customer:2", 2, time.Minute)
	assert.True(t, allowed)

	now = now.Add(2 * time.Minute)
	allowed, _ = repo.CheckRateLimit(ctx, "customer:1", 2, time.Minute)
	assert.True(t, allowed, "new window")

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, repo.Prune())
	assert.Equal(t, 0, repo.Prune())
}

func TestMemoryRateLimiter_Concurrent(t *testing.T) {
	repo := NewMemoryRateLimiter()
	ctx := context.Background()

	const hits = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	wg.Add(hits)
	for i := 0; i < hits; i++ {
		go func() {
			defer wg.Done()
			ok, _ := repo.CheckRateLimit(ctx, "hot", 10, time.Hour)
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)
}
