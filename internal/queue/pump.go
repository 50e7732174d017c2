package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Pump moves due messages from the delayed set onto the delivery stream.
// The move is not transactional: a crash between XADD and ZREM delivers
// a message twice, which the at-least-once contract already absorbs.
type Pump struct {
	rdb       *redis.Client
	interval  time.Duration
	batchSize int64
	logger    zerolog.Logger
}

func NewPump(rdb *redis.Client, interval time.Duration, logger zerolog.Logger) *Pump {
	if interval <= 0 {
		interval = time.Second
	}
	return &Pump{
		rdb:       rdb,
		interval:  interval,
		batchSize: 100,
		logger:    logger.With().Str("component", "queue.pump").Logger(),
	}
}

// Run pumps until ctx is done.
func (p *Pump) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if moved, err := p.MoveDue(ctx); err != nil {
				p.logger.Error().Err(err).Msg("failed to move due messages")
			} else if moved > 0 {
				p.logger.Debug().Int("moved", moved).Msg("delivered due messages")
			}
		}
	}
}

// MoveDue delivers every message whose schedule time has passed and
// returns how many were moved.
func (p *Pump) MoveDue(ctx context.Context) (int, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	due, err := p.rdb.ZRangeByScore(ctx, DelayedSetName, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: p.batchSize,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: read due messages: %w", err)
	}

	moved := 0
	for _, body := range due {
		if err := p.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: StreamName,
			Values: map[string]any{"body": body},
		}).Err(); err != nil {
			return moved, fmt.Errorf("queue: deliver message: %w", err)
		}
		if err := p.rdb.ZRem(ctx, DelayedSetName, body).Err(); err != nil {
			return moved, fmt.Errorf("queue: unschedule message: %w", err)
		}
		moved++
	}
	return moved, nil
}
