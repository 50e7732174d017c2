package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ObiAU/hnenricher/internal/models"
)

// KeyPrefix namespaces enrichment records in Redis.
const KeyPrefix = "story:"

// ErrUnavailable wraps persistence failures so the queue can distinguish
// them from other processing errors.
var ErrUnavailable = errors.New("store: unavailable")

// EnrichmentStore persists classification records keyed by item id with a
// long expiry. Records are idempotent per analysis run: concurrent writes
// to the same key resolve last-write-wins.
type EnrichmentStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	cache  *recordCache
	logger zerolog.Logger
}

func New(rdb *redis.Client, ttl, cacheRetention time.Duration, logger zerolog.Logger) *EnrichmentStore {
	return &EnrichmentStore{
		rdb:    rdb,
		ttl:    ttl,
		cache:  newRecordCache(cacheRetention),
		logger: logger.With().Str("component", "store").Logger(),
	}
}

func Key(id int64) string {
	return KeyPrefix + strconv.FormatInt(id, 10)
}

// Get returns the record for id, or nil when none is stored. Recent
// results are served from the in-memory cache to keep discovery-phase
// point lookups off the wire.
func (s *EnrichmentStore) Get(ctx context.Context, id int64) (*models.EnrichedStory, error) {
	if record, ok := s.cache.get(id); ok {
		return record, nil
	}

	data, err := s.rdb.Get(ctx, Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %d: %v", ErrUnavailable, id, err)
	}

	var record models.EnrichedStory
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("store: decode record %d: %w", id, err)
	}

	s.cache.put(&record)
	return &record, nil
}

// GetMany returns stored records for the given ids, excluding misses.
// It reads straight from Redis: batch lookups serve downstream readers,
// not the policy path, and must not observe cache staleness.
func (s *EnrichmentStore) GetMany(ctx context.Context, ids []int64) (map[int64]*models.EnrichedStory, error) {
	if len(ids) == 0 {
		return map[int64]*models.EnrichedStory{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = Key(id)
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: mget: %v", ErrUnavailable, err)
	}

	records := make(map[int64]*models.EnrichedStory, len(ids))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var record models.EnrichedStory
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			s.logger.Warn().Int64("item_id", ids[i]).Err(err).Msg("dropping undecodable record")
			continue
		}
		records[record.ID] = &record
	}
	return records, nil
}

// Put overwrites the record under its id with the configured TTL.
func (s *EnrichmentStore) Put(ctx context.Context, record *models.EnrichedStory) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("store: encode record %d: %w", record.ID, err)
	}

	if err := s.rdb.Set(ctx, Key(record.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: put %d: %v", ErrUnavailable, record.ID, err)
	}

	s.cache.put(record)
	s.logger.Debug().Int64("item_id", record.ID).Msg("record persisted")
	return nil
}

// CacheStats reports in-memory cache counters for the stats endpoint.
func (s *EnrichmentStore) CacheStats() map[string]any {
	return s.cache.stats()
}

// Close stops the cache janitor.
func (s *EnrichmentStore) Close() {
	s.cache.close()
}
