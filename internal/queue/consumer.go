package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ConsumerConfig tunes stream consumption. BatchSize stays at 1 in
// production: each invocation processes exactly one message.
type ConsumerConfig struct {
	Consumer  string
	BatchSize int64
	Block     time.Duration
}

// Consumer reads enrichment jobs from the delivery stream through a
// consumer group. Messages stay pending until Ack; Retry acknowledges
// the delivery and re-schedules the job through the delayed set.
type Consumer struct {
	rdb    *redis.Client
	cfg    ConsumerConfig
	logger zerolog.Logger
}

func NewConsumer(rdb *redis.Client, cfg ConsumerConfig, logger zerolog.Logger) (*Consumer, error) {
	if cfg.Consumer == "" {
		cfg.Consumer = "worker-1"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}

	c := &Consumer{
		rdb:    rdb,
		cfg:    cfg,
		logger: logger.With().Str("component", "queue.consumer").Logger(),
	}

	if err := c.ensureGroup(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	// Starting the group at "0" instead of "$" means messages already on
	// the stream survive a restart of the whole worker fleet.
	err := c.rdb.XGroupCreateMkStream(ctx, StreamName, GroupName, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("queue: create consumer group: %w", err)
	}
	return nil
}

// Read blocks up to the configured duration and returns at most
// BatchSize new messages. Undecodable entries are acknowledged and
// dropped so they cannot wedge the stream.
func (c *Consumer) Read(ctx context.Context) ([]Message, error) {
	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    GroupName,
		Consumer: c.cfg.Consumer,
		Streams:  []string{StreamName, ">"},
		Count:    c.cfg.BatchSize,
		Block:    c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("queue: read stream: %w", err)
	}

	var messages []Message
	for _, stream := range streams {
		for _, entry := range stream.Messages {
			msg, err := parseEntry(entry)
			if err != nil {
				c.logger.Error().Err(err).Str("entry_id", entry.ID).Msg("dropping unparseable message")
				_ = c.rdb.XAck(ctx, StreamName, GroupName, entry.ID).Err()
				continue
			}
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

// Ack marks the message done.
func (c *Consumer) Ack(ctx context.Context, msg Message) error {
	if err := c.rdb.XAck(ctx, StreamName, GroupName, msg.ID).Err(); err != nil {
		return fmt.Errorf("queue: ack: %w", err)
	}
	return nil
}

// Retry acknowledges the current delivery and re-schedules the job after
// the given delay with an incremented attempt counter. There is no
// terminal failure state: a job retries until it is acknowledged.
func (c *Consumer) Retry(ctx context.Context, msg Message, delay time.Duration) error {
	if err := c.Ack(ctx, msg); err != nil {
		return fmt.Errorf("queue: ack before retry: %w", err)
	}

	job := msg.QueueMessage
	job.Attempt++

	body, err := encodeBody(job)
	if err != nil {
		return err
	}

	if err := c.rdb.ZAdd(ctx, DelayedSetName, redis.Z{
		Score:  float64(time.Now().Add(delay).UnixMilli()),
		Member: body,
	}).Err(); err != nil {
		return fmt.Errorf("queue: schedule retry: %w", err)
	}

	c.logger.Info().
		Int64("story_id", job.StoryID).
		Int("attempt", job.Attempt).
		Dur("delay", delay).
		Msg("message scheduled for retry")
	return nil
}

// Depth reports how many messages are in flight: delivered-but-unacked
// plus still-scheduled. Used by the stats endpoint.
func (c *Consumer) Depth(ctx context.Context) (int64, error) {
	streamLen, err := c.rdb.XLen(ctx, StreamName).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: stream length: %w", err)
	}
	scheduled, err := c.rdb.ZCard(ctx, DelayedSetName).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: scheduled count: %w", err)
	}
	return streamLen + scheduled, nil
}

func parseEntry(entry redis.XMessage) (Message, error) {
	raw, ok := entry.Values["body"]
	if !ok {
		return Message{}, fmt.Errorf("queue: entry %s missing body", entry.ID)
	}
	job, err := decodeBody(fmt.Sprint(raw))
	if err != nil {
		return Message{}, err
	}
	if job.StoryID <= 0 {
		return Message{}, fmt.Errorf("queue: entry %s has no story id", entry.ID)
	}
	if job.Attempt == 0 {
		job.Attempt = 1
	}
	return Message{ID: entry.ID, QueueMessage: job}, nil
}
