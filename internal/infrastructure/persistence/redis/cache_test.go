package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpi-hub/orientation-hub/internal/domain/ranking"
	"github.com/mpi-hub/orientation-hub/pkg/circuitbreaker"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "orientation:report:mpi:abc:s1", ReportKey(" MPI ", "abc", "s1"))
	assert.Equal(t, "orientation:report:all:*", SectionReportPattern(""))
	assert.Equal(t, "orientation:ranking:mpi:gl", RankingKey("mpi", "GL"))
}

func TestConfig_Options(t *testing.T) {
	cfg := DefaultConfig()
	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 10, opts.PoolSize)

	cfg.URL = "redis://:secret@cache:6380/2"
	opts, err = cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)

	cfg.URL = "http://nope"
	_, err = cfg.Options()
	assert.Error(t, err)
}

func TestParseMeta(t *testing.T) {
	meta, err := parseMeta(map[string]string{
		"cohort_size": "42",
		"mean":        "11.25",
		"median":      "12",
		"fingerprint": "f1",
		"computed_at": "2024-06-01T10:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, 42, meta.CohortSize)
	assert.Equal(t, 11.25, meta.Mean)
	assert.Equal(t, 12.0, meta.Median)
	assert.Equal(t, "f1", meta.Fingerprint)
	assert.Equal(t, 2024, meta.ComputedAt.Year())

	_, err = parseMeta(map[string]string{"cohort_size": "x"})
	assert.ErrorIs(t, err, ErrCacheSerialization)
	_, err = parseMeta(map[string]string{"cohort_size": "1", "mean": "n/a"})
	assert.ErrorIs(t, err, ErrCacheSerialization)
}

func TestCache_ArgumentValidation(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()
	c := NewCacheWithClient(client, Config{}, nil)
	ctx := context.Background()

	assert.ErrorIs(t, c.Set(ctx, "", 1, time.Minute), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.Set(ctx, "k", nil, time.Minute), ErrCacheNilValue)
	assert.ErrorIs(t, c.Set(ctx, "k", 1, -time.Second), ErrCacheInvalidTTL)
	assert.ErrorIs(t, c.Get(ctx, "", new(int)), ErrCacheKeyEmpty)
	assert.NoError(t, c.Delete(ctx))
	assert.Equal(t, TTLReport, c.ReportTTL())
}

func TestCache_BreakerOpensOnOutage(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	breaker := circuitbreaker.CacheBreaker(nil)
	c := NewCacheWithClient(client, Config{}, breaker)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := c.Get(ctx, "k", new(int))
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrCacheMiss))
	}
	assert.Equal(t, circuitbreaker.StateOpen, breaker.State())
	assert.True(t, circuitbreaker.IsRejected(c.Get(ctx, "k", new(int))))
}

// ─────────────────────────────────────────────────────────────────────────────
// Integration (requires TEST_REDIS_URL)
// ─────────────────────────────────────────────────────────────────────────────

func testCache(t *testing.T) *Cache {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	c, err := NewCache(context.Background(), Config{URL: url}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCache_SetGet(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	key := ReportKey("test", "fp", "s1")

	type report struct {
		Score float64 `json:"score"`
	}
	require.NoError(t, c.Set(ctx, key, report{Score: 61.5}, time.Minute))

	var got report
	require.NoError(t, c.Get(ctx, key, &got))
	assert.Equal(t, 61.5, got.Score)

	require.NoError(t, c.SetReport(ctx, "test", "fp", "s2", report{Score: 40}))
	require.NoError(t, c.GetReport(ctx, "test", "fp", "s2", &got))
	assert.Equal(t, 40.0, got.Score)

	n, err := c.InvalidateSection(ctx, "test")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
	assert.ErrorIs(t, c.Get(ctx, key, &got), ErrCacheMiss)
}

func TestRankingCache_StoreAndPage(t *testing.T) {
	c := testCache(t)
	rc := NewRankingCache(c)
	ctx := context.Background()

	rk := ranking.FromScores(map[string]float64{"a": 90, "b": 90, "c": 80})
	require.NoError(t, rc.Store(ctx, "test", "gl", "fp1", rk, time.Minute))

	page, err := rc.Page(ctx, "test", "gl", "fp1", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Entries, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{page.Entries[0].StudentID, page.Entries[1].StudentID, page.Entries[2].StudentID})
	assert.Equal(t, []ranking.Rank{1, 1, 3}, []ranking.Rank{page.Entries[0].Rank, page.Entries[1].Rank, page.Entries[2].Rank})

	_, err = rc.Page(ctx, "test", "gl", "other", 0, 10)
	assert.ErrorIs(t, err, ErrCacheMiss)

	assert.InDelta(t, 86.6667, page.Mean, 1e-4)
	assert.Equal(t, 90.0, page.Median)

	around, err := rc.Around(ctx, "test", "gl", "fp1", "c", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, around.Offset)
	require.Len(t, around.Entries, 2)
	assert.Equal(t, "b", around.Entries[0].StudentID)
	assert.Equal(t, ranking.Rank(3), around.Entries[1].Rank)

	_, err = rc.Around(ctx, "test", "gl", "fp1", "zz", 1)
	assert.ErrorIs(t, err, ErrCacheMiss)

	_, err = c.InvalidateSection(ctx, "test")
	require.NoError(t, err)
}
