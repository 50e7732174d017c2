package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ReclaimerConfig tunes stale-message recovery.
type ReclaimerConfig struct {
	Consumer  string
	MinIdle   time.Duration
	Interval  time.Duration
	BatchSize int64
}

// Reclaimer periodically claims pending messages whose consumer died
// between read and ack, and hands them back to the processing handler.
// This is what makes delivery at-least-once across worker crashes.
type Reclaimer struct {
	rdb     *redis.Client
	cfg     ReclaimerConfig
	handler func(ctx context.Context, msg Message)
	logger  zerolog.Logger
}

func NewReclaimer(rdb *redis.Client, cfg ReclaimerConfig, handler func(ctx context.Context, msg Message), logger zerolog.Logger) *Reclaimer {
	if cfg.Consumer == "" {
		cfg.Consumer = "reclaimer-1"
	}
	if cfg.MinIdle <= 0 {
		cfg.MinIdle = 5 * time.Minute
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Reclaimer{
		rdb:     rdb,
		cfg:     cfg,
		handler: handler,
		logger:  logger.With().Str("component", "queue.reclaimer").Logger(),
	}
}

// Run reclaims until ctx is done.
func (r *Reclaimer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.ReclaimOnce(ctx); err != nil {
				r.logger.Error().Err(err).Msg("reclaim cycle failed")
			}
		}
	}
}

// ReclaimOnce claims up to BatchSize stale pending messages and runs the
// handler on each.
func (r *Reclaimer) ReclaimOnce(ctx context.Context) error {
	entries, _, err := r.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamName,
		Group:    GroupName,
		Consumer: r.cfg.Consumer,
		MinIdle:  r.cfg.MinIdle,
		Start:    "0-0",
		Count:    r.cfg.BatchSize,
	}).Result()
	if err != nil {
		return fmt.Errorf("queue: autoclaim: %w", err)
	}

	for _, entry := range entries {
		msg, err := parseEntry(entry)
		if err != nil {
			r.logger.Error().Err(err).Str("entry_id", entry.ID).Msg("acking unparseable reclaimed message")
			_ = r.rdb.XAck(ctx, StreamName, GroupName, entry.ID).Err()
			continue
		}

		r.logger.Info().
			Int64("story_id", msg.StoryID).
			Str("entry_id", msg.ID).
			Msg("reprocessing stale message")
		r.handler(ctx, msg)
	}
	return nil
}
