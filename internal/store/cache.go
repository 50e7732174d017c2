package store

import (
	"sync"
	"time"

	"github.com/ObiAU/hnenricher/internal/models"
)

// recordCache is a small age-bounded read cache in front of Redis. It
// only ever holds records this process has read or written, and entries
// expire on retention so a record re-analyzed elsewhere is re-fetched.
// Absence is never cached.
type recordCache struct {
	mu            sync.RWMutex
	records       map[int64]models.EnrichedStory
	stored        map[int64]time.Time
	retention     time.Duration
	cleanupTicker *time.Ticker
	stopChan      chan struct{}
}

func newRecordCache(retention time.Duration) *recordCache {
	c := &recordCache{
		records:   make(map[int64]models.EnrichedStory),
		stored:    make(map[int64]time.Time),
		retention: retention,
		stopChan:  make(chan struct{}),
	}

	c.cleanupTicker = time.NewTicker(10 * time.Minute)
	go c.cleanup()

	return c
}

func (c *recordCache) get(id int64) (*models.EnrichedStory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	storedAt, ok := c.stored[id]
	if !ok || time.Since(storedAt) > c.retention {
		return nil, false
	}

	record := c.records[id]
	return &record, true
}

func (c *recordCache) put(record *models.EnrichedStory) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records[record.ID] = *record
	c.stored[record.ID] = time.Now()
}

func (c *recordCache) cleanup() {
	for {
		select {
		case <-c.cleanupTicker.C:
			c.performCleanup()
		case <-c.stopChan:
			return
		}
	}
}

func (c *recordCache) performCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-c.retention)
	for id, storedAt := range c.stored {
		if storedAt.Before(cutoff) {
			delete(c.records, id)
			delete(c.stored, id)
		}
	}
}

func (c *recordCache) stats() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]any{
		"cached_records": len(c.records),
		"retention":      c.retention.String(),
	}
}

func (c *recordCache) close() {
	c.cleanupTicker.Stop()
	close(c.stopChan)
}
