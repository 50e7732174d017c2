package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ObiAU/hnenricher/internal/ai"
	"github.com/ObiAU/hnenricher/internal/config"
	"github.com/ObiAU/hnenricher/internal/fetcher"
	"github.com/ObiAU/hnenricher/internal/models"
	"github.com/ObiAU/hnenricher/internal/policy"
	"github.com/ObiAU/hnenricher/internal/queue"
	"github.com/ObiAU/hnenricher/internal/store"
)

// Source lists ranked candidate ids.
type Source interface {
	TopStories(ctx context.Context, limit int) ([]int64, error)
}

// Fetcher assembles discussion trees and basic item records.
type Fetcher interface {
	Fetch(ctx context.Context, id int64) (*models.DiscussionTree, error)
	BasicItems(ctx context.Context, ids []int64) []models.Item
}

// Classifier produces one enrichment record per tree.
type Classifier interface {
	Classify(ctx context.Context, tree *models.DiscussionTree) (*models.EnrichedStory, error)
}

// RecordStore persists and looks up enrichment records.
type RecordStore interface {
	Get(ctx context.Context, id int64) (*models.EnrichedStory, error)
	Put(ctx context.Context, record *models.EnrichedStory) error
}

// Producer schedules enrichment jobs.
type Producer interface {
	SendBatch(ctx context.Context, batch []queue.Delayed) error
}

// Consumer delivers, acknowledges and retries enrichment jobs.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Retry(ctx context.Context, msg queue.Message, delay time.Duration) error
}

// Scheduler drives the two pipeline phases: periodic discovery of
// candidate stories and per-message consumption of enrichment jobs.
type Scheduler struct {
	cfg        *config.Config
	source     Source
	fetcher    Fetcher
	policy     policy.Policy
	classifier Classifier
	store      RecordStore
	producer   Producer
	consumer   Consumer
	logger     zerolog.Logger
}

func New(
	cfg *config.Config,
	source Source,
	f Fetcher,
	pol policy.Policy,
	classifier Classifier,
	recordStore RecordStore,
	producer Producer,
	consumer Consumer,
	logger zerolog.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		source:     source,
		fetcher:    f,
		policy:     pol,
		classifier: classifier,
		store:      recordStore,
		producer:   producer,
		consumer:   consumer,
		logger:     logger.With().Str("component", "scheduler").Logger(),
	}
}

// RunDiscovery executes one discovery pass: rank, filter through the
// re-enrichment policy, truncate, and enqueue with a linear stagger so
// downstream classification calls stay under the service's rate limit.
func (s *Scheduler) RunDiscovery(ctx context.Context) error {
	ids, err := s.source.TopStories(ctx, s.cfg.TopStoriesLimit)
	if err != nil {
		return fmt.Errorf("discovery: %w", err)
	}

	items := s.fetcher.BasicItems(ctx, ids)
	candidates := s.evaluate(ctx, items)

	if len(candidates) == 0 {
		s.logger.Info().Int("scanned", len(items)).Msg("no stories need enrichment")
		return nil
	}

	if len(candidates) > s.cfg.MaxStoriesToEnqueue {
		candidates = candidates[:s.cfg.MaxStoriesToEnqueue]
	}

	now := time.Now().UTC()
	batch := make([]queue.Delayed, len(candidates))
	for i, candidate := range candidates {
		batch[i] = queue.Delayed{
			Message: models.QueueMessage{
				StoryID:    candidate.ID,
				Reason:     candidate.Reason,
				EnqueuedAt: now,
			},
			Delay: time.Duration(i) * s.cfg.EnqueueStagger,
		}
	}

	if err := s.producer.SendBatch(ctx, batch); err != nil {
		return fmt.Errorf("discovery: %w", err)
	}

	s.logger.Info().
		Int("scanned", len(items)).
		Int("enqueued", len(batch)).
		Msg("discovery pass complete")
	return nil
}

// evaluate runs the policy over every item with concurrent store lookups.
// Decisions are independent, so only the result slots are shared, one per
// item, and the ranked order is preserved in the compacted result.
func (s *Scheduler) evaluate(ctx context.Context, items []models.Item) []models.Candidate {
	results := make([]*models.Candidate, len(items))

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.cfg.StoryConcurrency)
	for i, item := range items {
		wg.Add(1)
		go func(i int, item models.Item) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			existing, err := s.store.Get(ctx, item.ID)
			if err != nil {
				s.logger.Warn().Int64("item_id", item.ID).Err(err).Msg("skipping candidate, store lookup failed")
				return
			}
			results[i] = s.policy.Decide(item, existing)
		}(i, item)
	}
	wg.Wait()

	candidates := make([]models.Candidate, 0, len(items))
	for _, c := range results {
		if c != nil {
			candidates = append(candidates, *c)
		}
	}
	return candidates
}

// RunWorker consumes enrichment jobs until ctx is done, one message per
// iteration.
func (s *Scheduler) RunWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		messages, err := s.consumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error().Err(err).Msg("queue read failed")
			continue
		}

		for _, msg := range messages {
			s.ProcessMessage(ctx, msg)
		}
	}
}

// ProcessMessage handles one enrichment job: fetch the tree, classify,
// persist, acknowledge. Failures are not acknowledged; they re-schedule
// the job with a delay chosen by failure kind.
func (s *Scheduler) ProcessMessage(ctx context.Context, msg queue.Message) {
	logger := s.logger.With().
		Int64("story_id", msg.StoryID).
		Str("reason", string(msg.Reason)).
		Int("attempt", msg.Attempt).
		Logger()

	tree, err := s.fetcher.Fetch(ctx, msg.StoryID)
	if err != nil {
		if errors.Is(err, fetcher.ErrItemUnavailable) {
			// Nothing to classify; dropping beats retrying a dead id.
			logger.Warn().Err(err).Msg("story unavailable, dropping message")
			s.ack(ctx, msg, logger)
			return
		}
		logger.Error().Err(err).Msg("tree fetch failed")
		s.retry(ctx, msg, err, logger)
		return
	}

	record, err := s.classifier.Classify(ctx, tree)
	if err != nil {
		logger.Error().Err(err).Msg("classification failed")
		s.retry(ctx, msg, err, logger)
		return
	}

	if err := s.store.Put(ctx, record); err != nil {
		logger.Error().Err(err).Msg("persist failed")
		s.retry(ctx, msg, err, logger)
		return
	}

	s.ack(ctx, msg, logger)
	logger.Info().
		Str("content_type", record.ContentType).
		Str("topic", record.Topic).
		Int("comments", record.CommentCountAtAnalysis).
		Msg("story enriched")
}

// RetryDelay maps a processing failure to its retry delay: rate-limit
// signals wait longer than everything else.
func (s *Scheduler) RetryDelay(err error) time.Duration {
	if errors.Is(err, ai.ErrRateLimited) {
		return s.cfg.RateLimitRetryDelay
	}
	return s.cfg.DefaultRetryDelay
}

func (s *Scheduler) ack(ctx context.Context, msg queue.Message, logger zerolog.Logger) {
	if err := s.consumer.Ack(ctx, msg); err != nil {
		logger.Error().Err(err).Msg("ack failed")
	}
}

func (s *Scheduler) retry(ctx context.Context, msg queue.Message, cause error, logger zerolog.Logger) {
	delay := s.RetryDelay(cause)
	if err := s.consumer.Retry(ctx, msg, delay); err != nil {
		logger.Error().Err(err).Msg("retry scheduling failed")
	}
}

// compile-time wiring checks against the concrete implementations
var (
	_ RecordStore = (*store.EnrichmentStore)(nil)
	_ Producer    = (*queue.Producer)(nil)
	_ Consumer    = (*queue.Consumer)(nil)
	_ Classifier  = (*ai.Classifier)(nil)
	_ Fetcher     = (*fetcher.ThreadFetcher)(nil)
)
