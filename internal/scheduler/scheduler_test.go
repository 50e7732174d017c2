package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ObiAU/hnenricher/internal/ai"
	"github.com/ObiAU/hnenricher/internal/config"
	"github.com/ObiAU/hnenricher/internal/fetcher"
	"github.com/ObiAU/hnenricher/internal/models"
	"github.com/ObiAU/hnenricher/internal/policy"
	"github.com/ObiAU/hnenricher/internal/queue"
)

type fakeSource struct {
	ids []int64
	err error
}

func (f *fakeSource) TopStories(ctx context.Context, limit int) ([]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && len(f.ids) > limit {
		return f.ids[:limit], nil
	}
	return f.ids, nil
}

type fakeFetcher struct {
	items    map[int64]models.Item
	trees    map[int64]*models.DiscussionTree
	fetchErr error
}

func (f *fakeFetcher) Fetch(ctx context.Context, id int64) (*models.DiscussionTree, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	tree, ok := f.trees[id]
	if !ok {
		return nil, fmt.Errorf("%w: root %d", fetcher.ErrItemUnavailable, id)
	}
	return tree, nil
}

func (f *fakeFetcher) BasicItems(ctx context.Context, ids []int64) []models.Item {
	items := make([]models.Item, 0, len(ids))
	for _, id := range ids {
		if item, ok := f.items[id]; ok {
			items = append(items, item)
		}
	}
	return items
}

type fakeClassifier struct {
	record *models.EnrichedStory
	err    error
}

func (f *fakeClassifier) Classify(ctx context.Context, tree *models.DiscussionTree) (*models.EnrichedStory, error) {
	if f.err != nil {
		return nil, f.err
	}
	record := *f.record
	record.ID = tree.Item.ID
	return &record, nil
}

type fakeStore struct {
	mu      sync.Mutex
	records map[int64]*models.EnrichedStory
	getErr  map[int64]error
	putErr  error
	puts    []int64
}

func (f *fakeStore) Get(ctx context.Context, id int64) (*models.EnrichedStory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.getErr[id]; ok {
		return nil, err
	}
	return f.records[id], nil
}

func (f *fakeStore) Put(ctx context.Context, record *models.EnrichedStory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	if f.records == nil {
		f.records = map[int64]*models.EnrichedStory{}
	}
	f.records[record.ID] = record
	f.puts = append(f.puts, record.ID)
	return nil
}

type fakeProducer struct {
	batches [][]queue.Delayed
}

func (f *fakeProducer) SendBatch(ctx context.Context, batch []queue.Delayed) error {
	f.batches = append(f.batches, batch)
	return nil
}

type fakeConsumer struct {
	acked   []string
	retried []string
	delays  []time.Duration
}

func (f *fakeConsumer) Read(ctx context.Context) ([]queue.Message, error) {
	return nil, nil
}

func (f *fakeConsumer) Ack(ctx context.Context, msg queue.Message) error {
	f.acked = append(f.acked, msg.ID)
	return nil
}

func (f *fakeConsumer) Retry(ctx context.Context, msg queue.Message, delay time.Duration) error {
	f.retried = append(f.retried, msg.ID)
	f.delays = append(f.delays, delay)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		TopStoriesLimit:     50,
		MaxStoriesToEnqueue: 20,
		EnqueueStagger:      15 * time.Second,
		StoryConcurrency:    4,
		RateLimitRetryDelay: 60 * time.Second,
		DefaultRetryDelay:   30 * time.Second,
	}
}

func newTestScheduler(
	cfg *config.Config,
	source *fakeSource,
	f *fakeFetcher,
	classifier *fakeClassifier,
	recordStore *fakeStore,
	producer *fakeProducer,
	consumer *fakeConsumer,
) *Scheduler {
	return New(cfg, source, f, policy.Default(), classifier, recordStore, producer, consumer, zerolog.Nop())
}

func TestRunDiscoveryEnqueuesStaggered(t *testing.T) {
	source := &fakeSource{ids: []int64{1, 2, 3}}
	f := &fakeFetcher{items: map[int64]models.Item{
		1: {ID: 1, Descendants: 5},
		2: {ID: 2, Descendants: 10},
		3: {ID: 3, Descendants: 40},
	}}
	// Story 2 was analyzed at its current comment count: no growth, no
	// re-enrichment. Story 3 grew from 10 to 40.
	recordStore := &fakeStore{records: map[int64]*models.EnrichedStory{
		2: {ID: 2, CommentCountAtAnalysis: 10},
		3: {ID: 3, CommentCountAtAnalysis: 10},
	}}
	producer := &fakeProducer{}

	s := newTestScheduler(testConfig(), source, f, &fakeClassifier{}, recordStore, producer, &fakeConsumer{})

	require.NoError(t, s.RunDiscovery(context.Background()))
	require.Len(t, producer.batches, 1)

	batch := producer.batches[0]
	require.Len(t, batch, 2)

	assert.Equal(t, int64(1), batch[0].Message.StoryID)
	assert.Equal(t, models.ReasonNew, batch[0].Message.Reason)
	assert.Equal(t, time.Duration(0), batch[0].Delay)

	assert.Equal(t, int64(3), batch[1].Message.StoryID)
	assert.Equal(t, models.ReasonReEnrich, batch[1].Message.Reason)
	assert.Equal(t, 15*time.Second, batch[1].Delay)
}

func TestRunDiscoveryTruncatesToEnqueueCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxStoriesToEnqueue = 2

	ids := make([]int64, 5)
	items := map[int64]models.Item{}
	for i := range ids {
		id := int64(i + 1)
		ids[i] = id
		items[id] = models.Item{ID: id}
	}

	producer := &fakeProducer{}
	s := newTestScheduler(cfg, &fakeSource{ids: ids}, &fakeFetcher{items: items},
		&fakeClassifier{}, &fakeStore{}, producer, &fakeConsumer{})

	require.NoError(t, s.RunDiscovery(context.Background()))
	require.Len(t, producer.batches, 1)
	require.Len(t, producer.batches[0], 2)

	// The cap keeps the best-ranked candidates.
	assert.Equal(t, int64(1), producer.batches[0][0].Message.StoryID)
	assert.Equal(t, int64(2), producer.batches[0][1].Message.StoryID)
}

func TestRunDiscoverySkipsOnStoreError(t *testing.T) {
	source := &fakeSource{ids: []int64{1, 2}}
	f := &fakeFetcher{items: map[int64]models.Item{
		1: {ID: 1},
		2: {ID: 2},
	}}
	recordStore := &fakeStore{getErr: map[int64]error{1: errors.New("redis down")}}
	producer := &fakeProducer{}

	s := newTestScheduler(testConfig(), source, f, &fakeClassifier{}, recordStore, producer, &fakeConsumer{})

	require.NoError(t, s.RunDiscovery(context.Background()))
	require.Len(t, producer.batches, 1)
	require.Len(t, producer.batches[0], 1)
	assert.Equal(t, int64(2), producer.batches[0][0].Message.StoryID)
}

func TestRunDiscoveryNothingToEnqueue(t *testing.T) {
	source := &fakeSource{ids: []int64{1}}
	f := &fakeFetcher{items: map[int64]models.Item{1: {ID: 1, Descendants: 10}}}
	recordStore := &fakeStore{records: map[int64]*models.EnrichedStory{
		1: {ID: 1, CommentCountAtAnalysis: 10},
	}}
	producer := &fakeProducer{}

	s := newTestScheduler(testConfig(), source, f, &fakeClassifier{}, recordStore, producer, &fakeConsumer{})

	require.NoError(t, s.RunDiscovery(context.Background()))
	assert.Empty(t, producer.batches)
}

func TestRunDiscoverySourceError(t *testing.T) {
	source := &fakeSource{err: errors.New("api down")}
	s := newTestScheduler(testConfig(), source, &fakeFetcher{}, &fakeClassifier{},
		&fakeStore{}, &fakeProducer{}, &fakeConsumer{})

	assert.Error(t, s.RunDiscovery(context.Background()))
}

func msg(id int64) queue.Message {
	return queue.Message{
		ID: "1-0",
		QueueMessage: models.QueueMessage{
			StoryID: id,
			Reason:  models.ReasonNew,
			Attempt: 1,
		},
	}
}

func TestProcessMessageSuccess(t *testing.T) {
	f := &fakeFetcher{trees: map[int64]*models.DiscussionTree{
		7: {Item: models.Item{ID: 7, Title: "t", Descendants: 3}},
	}}
	classifier := &fakeClassifier{record: &models.EnrichedStory{ContentType: "article", Topic: "systems"}}
	recordStore := &fakeStore{}
	consumer := &fakeConsumer{}

	s := newTestScheduler(testConfig(), &fakeSource{}, f, classifier, recordStore, &fakeProducer{}, consumer)

	s.ProcessMessage(context.Background(), msg(7))

	assert.Equal(t, []int64{7}, recordStore.puts)
	assert.Equal(t, []string{"1-0"}, consumer.acked)
	assert.Empty(t, consumer.retried)
}

func TestProcessMessageUnavailableRootDropped(t *testing.T) {
	f := &fakeFetcher{trees: map[int64]*models.DiscussionTree{}}
	recordStore := &fakeStore{}
	consumer := &fakeConsumer{}

	s := newTestScheduler(testConfig(), &fakeSource{}, f, &fakeClassifier{}, recordStore, &fakeProducer{}, consumer)

	s.ProcessMessage(context.Background(), msg(404))

	// Dropped, not retried: nothing useful can come from a missing root.
	assert.Equal(t, []string{"1-0"}, consumer.acked)
	assert.Empty(t, consumer.retried)
	assert.Empty(t, recordStore.puts)
}

func TestProcessMessageRateLimitedRetriesLonger(t *testing.T) {
	f := &fakeFetcher{trees: map[int64]*models.DiscussionTree{
		7: {Item: models.Item{ID: 7}},
	}}
	classifier := &fakeClassifier{err: fmt.Errorf("%w: 429", ai.ErrRateLimited)}
	consumer := &fakeConsumer{}

	s := newTestScheduler(testConfig(), &fakeSource{}, f, classifier, &fakeStore{}, &fakeProducer{}, consumer)

	s.ProcessMessage(context.Background(), msg(7))

	assert.Empty(t, consumer.acked)
	require.Len(t, consumer.retried, 1)
	assert.Equal(t, []time.Duration{60 * time.Second}, consumer.delays)
}

func TestProcessMessageClassifierErrorRetriesDefault(t *testing.T) {
	f := &fakeFetcher{trees: map[int64]*models.DiscussionTree{
		7: {Item: models.Item{ID: 7}},
	}}
	classifier := &fakeClassifier{err: errors.New("boom")}
	consumer := &fakeConsumer{}

	s := newTestScheduler(testConfig(), &fakeSource{}, f, classifier, &fakeStore{}, &fakeProducer{}, consumer)

	s.ProcessMessage(context.Background(), msg(7))

	require.Len(t, consumer.retried, 1)
	assert.Equal(t, []time.Duration{30 * time.Second}, consumer.delays)
}

func TestProcessMessageFetchErrorRetries(t *testing.T) {
	f := &fakeFetcher{fetchErr: errors.New("network partition")}
	consumer := &fakeConsumer{}

	s := newTestScheduler(testConfig(), &fakeSource{}, f, &fakeClassifier{}, &fakeStore{}, &fakeProducer{}, consumer)

	s.ProcessMessage(context.Background(), msg(7))

	assert.Empty(t, consumer.acked)
	require.Len(t, consumer.retried, 1)
	assert.Equal(t, []time.Duration{30 * time.Second}, consumer.delays)
}

func TestProcessMessagePutErrorRetries(t *testing.T) {
	f := &fakeFetcher{trees: map[int64]*models.DiscussionTree{
		7: {Item: models.Item{ID: 7}},
	}}
	classifier := &fakeClassifier{record: &models.EnrichedStory{}}
	recordStore := &fakeStore{putErr: errors.New("redis down")}
	consumer := &fakeConsumer{}

	s := newTestScheduler(testConfig(), &fakeSource{}, f, classifier, recordStore, &fakeProducer{}, consumer)

	s.ProcessMessage(context.Background(), msg(7))

	assert.Empty(t, consumer.acked)
	require.Len(t, consumer.retried, 1)
}

func TestRetryDelay(t *testing.T) {
	s := newTestScheduler(testConfig(), &fakeSource{}, &fakeFetcher{}, &fakeClassifier{},
		&fakeStore{}, &fakeProducer{}, &fakeConsumer{})

	assert.Equal(t, 60*time.Second, s.RetryDelay(ai.ErrRateLimited))
	assert.Equal(t, 60*time.Second, s.RetryDelay(fmt.Errorf("wrapped: %w", ai.ErrRateLimited)))
	assert.Equal(t, 30*time.Second, s.RetryDelay(errors.New("other")))
}
