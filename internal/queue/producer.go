package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Producer schedules enrichment jobs for delayed delivery.
type Producer struct {
	rdb    *redis.Client
	logger zerolog.Logger
}

func NewProducer(rdb *redis.Client, logger zerolog.Logger) *Producer {
	return &Producer{
		rdb:    rdb,
		logger: logger.With().Str("component", "queue.producer").Logger(),
	}
}

// SendBatch schedules each message for delivery after its delay. The
// discovery phase uses linearly increasing delays to stagger downstream
// classification calls under the service's rate limit.
func (p *Producer) SendBatch(ctx context.Context, batch []Delayed) error {
	if len(batch) == 0 {
		return nil
	}

	now := time.Now()
	members := make([]redis.Z, 0, len(batch))
	for _, entry := range batch {
		body, err := encodeBody(entry.Message)
		if err != nil {
			return err
		}
		members = append(members, redis.Z{
			Score:  float64(now.Add(entry.Delay).UnixMilli()),
			Member: body,
		})
	}

	if err := p.rdb.ZAdd(ctx, DelayedSetName, members...).Err(); err != nil {
		return fmt.Errorf("queue: schedule batch: %w", err)
	}

	p.logger.Info().Int("count", len(batch)).Msg("enqueued enrichment jobs")
	return nil
}
