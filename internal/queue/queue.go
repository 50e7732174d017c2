// Package queue implements the at-least-once enrichment job queue on
// Redis: a sorted set holds messages until their delivery time, a pump
// moves due messages onto a stream, and a consumer group reads the
// stream one message at a time. Retry re-schedules through the sorted
// set with a policy-chosen delay, so a message only leaves the system
// by acknowledgment.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ObiAU/hnenricher/internal/models"
)

const (
	// StreamName is the delivery stream consumed by workers.
	StreamName = "enrich:jobs"
	// GroupName is the worker consumer group.
	GroupName = "enrichers"
	// DelayedSetName holds scheduled messages scored by delivery time.
	DelayedSetName = "enrich:scheduled"
)

// Message is one delivered queue entry: the job body plus the stream id
// needed to acknowledge it.
type Message struct {
	ID string
	models.QueueMessage
}

// Delayed pairs a job body with its delivery delay.
type Delayed struct {
	Message models.QueueMessage
	Delay   time.Duration
}

func encodeBody(msg models.QueueMessage) (string, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("queue: encode message: %w", err)
	}
	return string(data), nil
}

func decodeBody(raw string) (models.QueueMessage, error) {
	var msg models.QueueMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return models.QueueMessage{}, fmt.Errorf("queue: decode message: %w", err)
	}
	return msg, nil
}
