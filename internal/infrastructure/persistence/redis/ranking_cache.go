package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mpi-hub/orientation-hub/internal/domain/ranking"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANKING CACHE
// ══════════════════════════════════════════════════════════════════════════════

// RankingCache keeps precomputed track rankings.
//
// Layout per (section, track):
//   - <base>        sorted set, member = student id, score = position (0-based)
//   - <base>:rows   hash, student id -> JSON row (rank, score, name)
//   - <base>:meta   hash with cohort size, score mean and median, fingerprint
//     and computation time
//
// Positions preserve the ranking's own order, including its tie-break by id,
// so a cached page is identical to one computed on the fly.
type RankingCache struct {
	cache *Cache
}

// NewRankingCache creates a RankingCache on top of a Cache.
func NewRankingCache(cache *Cache) *RankingCache {
	return &RankingCache{cache: cache}
}

// CachedRow is one cached ranking row.
type CachedRow struct {
	StudentID   string  `json:"student_id"`
	DisplayName string  `json:"display_name"`
	Rank        int     `json:"rank"`
	Score       float64 `json:"score"`
}

// RankingMeta describes a cached ranking.
type RankingMeta struct {
	CohortSize  int       `json:"cohort_size"`
	Mean        float64   `json:"mean"`
	Median      float64   `json:"median"`
	Fingerprint string    `json:"fingerprint"`
	ComputedAt  time.Time `json:"computed_at"`
}

// RankingKey builds the base key of a cached track ranking.
func RankingKey(section, track string) string {
	return PrefixRanking + keyPart(section) + ":" + keyPart(track)
}

// Store replaces the cached ranking atomically.
func (r *RankingCache) Store(ctx context.Context, section, track, fingerprint string, rk *ranking.Ranking, ttl time.Duration) error {
	if rk == nil {
		return ErrCacheNilValue
	}
	if ttl <= 0 {
		ttl = r.cache.ReportTTL()
	}

	base := RankingKey(section, track)
	entries := rk.All()

	members := make([]redis.Z, 0, len(entries))
	rows := make(map[string]any, len(entries))
	for i, e := range entries {
		data, err := json.Marshal(CachedRow{
			StudentID:   e.StudentID,
			DisplayName: e.DisplayName,
			Rank:        int(e.Rank),
			Score:       e.Score,
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
		}
		members = append(members, redis.Z{Score: float64(i), Member: e.StudentID})
		rows[e.StudentID] = data
	}

	return r.cache.breaker.Execute(ctx, func(ctx context.Context) error {
		pipe := r.cache.Client().TxPipeline()
		pipe.Del(ctx, base, base+":rows", base+":meta")
		if len(members) > 0 {
			pipe.ZAdd(ctx, base, members...)
			pipe.HSet(ctx, base+":rows", rows)
			pipe.Expire(ctx, base, ttl)
			pipe.Expire(ctx, base+":rows", ttl)
		}
		pipe.HSet(ctx, base+":meta",
			"cohort_size", len(entries),
			"mean", strconv.FormatFloat(rk.AverageScore(), 'g', -1, 64),
			"median", strconv.FormatFloat(rk.MedianScore(), 'g', -1, 64),
			"fingerprint", fingerprint,
			"computed_at", time.Now().UTC().Format(time.RFC3339Nano),
		)
		pipe.Expire(ctx, base+":meta", ttl)
		_, err := pipe.Exec(ctx)
		return err
	})
}

// Meta returns the metadata of a cached ranking or ErrCacheMiss.
func (r *RankingCache) Meta(ctx context.Context, section, track string) (RankingMeta, error) {
	var meta RankingMeta
	var raw map[string]string
	err := r.cache.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		raw, err = r.cache.Client().HGetAll(ctx, RankingKey(section, track)+":meta").Result()
		return err
	})
	if err != nil {
		return meta, err
	}
	if len(raw) == 0 {
		return meta, ErrCacheMiss
	}
	return parseMeta(raw)
}

func parseMeta(raw map[string]string) (RankingMeta, error) {
	var meta RankingMeta
	size, err := strconv.Atoi(raw["cohort_size"])
	if err != nil {
		return meta, fmt.Errorf("%w: cohort_size: %v", ErrCacheSerialization, err)
	}
	meta.CohortSize = size
	for field, dst := range map[string]*float64{"mean": &meta.Mean, "median": &meta.Median} {
		v, ok := raw[field]
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return meta, fmt.Errorf("%w: %s: %v", ErrCacheSerialization, field, err)
		}
		*dst = f
	}
	meta.Fingerprint = raw["fingerprint"]
	if at := raw["computed_at"]; at != "" {
		t, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return meta, fmt.Errorf("%w: computed_at: %v", ErrCacheSerialization, err)
		}
		meta.ComputedAt = t
	}
	return meta, nil
}

// Page returns rows [offset, offset+limit) of a cached ranking.
// Returns ErrCacheMiss when nothing is cached or the fingerprint differs.
func (r *RankingCache) Page(ctx context.Context, section, track, fingerprint string, offset, limit int) (*ranking.Page, error) {
	meta, err := r.current(ctx, section, track, fingerprint)
	if err != nil {
		return nil, err
	}
	return r.page(ctx, RankingKey(section, track), meta, offset, limit)
}

// Around returns the window of ±radius rows around a student, the cached
// counterpart of ranking.Ranking.Neighbors. A student missing from the cached
// ranking is ErrCacheMiss.
func (r *RankingCache) Around(ctx context.Context, section, track, fingerprint, studentID string, radius int) (*ranking.Page, error) {
	meta, err := r.current(ctx, section, track, fingerprint)
	if err != nil {
		return nil, err
	}
	if radius < 0 {
		radius = 0
	}

	base := RankingKey(section, track)
	pos := int64(-1)
	err = r.cache.breaker.Execute(ctx, func(ctx context.Context) error {
		rank, err := r.cache.Client().ZRank(ctx, base, studentID).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		pos = rank
		return err
	})
	if err != nil {
		return nil, err
	}
	if pos < 0 {
		return nil, ErrCacheMiss
	}

	from := max(int(pos)-radius, 0)
	return r.page(ctx, base, meta, from, int(pos)+radius+1-from)
}

func (r *RankingCache) current(ctx context.Context, section, track, fingerprint string) (RankingMeta, error) {
	meta, err := r.Meta(ctx, section, track)
	if err != nil {
		return meta, err
	}
	if fingerprint != "" && meta.Fingerprint != fingerprint {
		return meta, ErrCacheMiss
	}
	return meta, nil
}

func (r *RankingCache) page(ctx context.Context, base string, meta RankingMeta, offset, limit int) (*ranking.Page, error) {
	if offset < 0 {
		offset = 0
	}
	page := &ranking.Page{
		Entries: []*ranking.Entry{},
		Offset:  offset,
		Total:   meta.CohortSize,
		Mean:    meta.Mean,
		Median:  meta.Median,
	}
	if limit <= 0 || offset >= meta.CohortSize {
		return page, nil
	}

	err := r.cache.breaker.Execute(ctx, func(ctx context.Context) error {
		ids, err := r.cache.Client().ZRange(ctx, base, int64(offset), int64(offset+limit-1)).Result()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		values, err := r.cache.Client().HMGet(ctx, base+":rows", ids...).Result()
		if err != nil {
			return err
		}
		for _, v := range values {
			s, ok := v.(string)
			if !ok {
				continue
			}
			var row CachedRow
			if err := json.Unmarshal([]byte(s), &row); err != nil {
				return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
			}
			page.Entries = append(page.Entries, row.entry())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (row CachedRow) entry() *ranking.Entry {
	return &ranking.Entry{
		Rank:        ranking.Rank(row.Rank),
		StudentID:   row.StudentID,
		DisplayName: row.DisplayName,
		Score:       row.Score,
	}
}
