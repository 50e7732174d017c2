package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ObiAU/hnenricher/internal/models"
)

// ErrItemUnavailable is returned when the root item of a requested tree
// is missing or unreachable. Comment-level failures never surface here:
// they prune the affected branch and leave siblings intact.
var ErrItemUnavailable = errors.New("fetcher: item unavailable")

// Source provides read access to items and comments. Calls must carry
// their own per-call timeout; a timed-out call is treated as absent data.
type Source interface {
	Item(ctx context.Context, id int64) (*models.Item, error)
	Comment(ctx context.Context, id int64) (*models.Comment, error)
}

// Limits bounds tree assembly. Depth counts from 1 at the top level, so
// MaxDepth=3 allows comment, reply, reply-to-reply and nothing below.
type Limits struct {
	MaxTopLevel         int
	MaxChildrenPerNode  int
	MaxDepth            int
	TopLevelConcurrency int
	StoryConcurrency    int
}

// ThreadFetcher assembles bounded discussion trees. Top-level comments
// are fetched through a fixed-size worker pool; everything below the top
// level is fetched sequentially, depth-first, to keep total request
// fan-out under the source's quota ceiling.
type ThreadFetcher struct {
	source Source
	limits Limits
	logger zerolog.Logger
}

func New(source Source, limits Limits, logger zerolog.Logger) *ThreadFetcher {
	if limits.TopLevelConcurrency <= 0 {
		limits.TopLevelConcurrency = 1
	}
	if limits.StoryConcurrency <= 0 {
		limits.StoryConcurrency = 1
	}
	return &ThreadFetcher{
		source: source,
		limits: limits,
		logger: logger.With().Str("component", "fetcher").Logger(),
	}
}

// Fetch builds the discussion tree rooted at id. It fails only when the
// root itself cannot be fetched; the comment tree is best-effort.
func (f *ThreadFetcher) Fetch(ctx context.Context, id int64) (*models.DiscussionTree, error) {
	item, err := f.source.Item(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: root %d: %v", ErrItemUnavailable, id, err)
	}

	kids := truncateIDs(item.Kids, f.limits.MaxTopLevel)
	comments := f.fetchTopLevel(ctx, kids)

	f.logger.Debug().
		Int64("item_id", id).
		Int("top_level", len(comments)).
		Msg("assembled discussion tree")

	return &models.DiscussionTree{Item: *item, Comments: comments}, nil
}

// BasicItems fetches item records without comments, used for discovery
// filtering. Failed ids are dropped; surviving items keep the input order.
func (f *ThreadFetcher) BasicItems(ctx context.Context, ids []int64) []models.Item {
	results := make([]*models.Item, len(ids))

	var wg sync.WaitGroup
	sem := make(chan struct{}, f.limits.StoryConcurrency)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			item, err := f.source.Item(ctx, id)
			if err != nil {
				f.logger.Warn().Int64("item_id", id).Err(err).Msg("skipping unavailable item")
				return
			}
			results[i] = item
		}(i, id)
	}
	wg.Wait()

	items := make([]models.Item, 0, len(ids))
	for _, item := range results {
		if item != nil {
			items = append(items, *item)
		}
	}
	return items
}

// fetchTopLevel fans out over the root's child comments with bounded
// parallelism. Results keep source order; failed branches leave gaps
// that are compacted out.
func (f *ThreadFetcher) fetchTopLevel(ctx context.Context, ids []int64) []*models.CommentNode {
	results := make([]*models.CommentNode, len(ids))

	var wg sync.WaitGroup
	sem := make(chan struct{}, f.limits.TopLevelConcurrency)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = f.fetchNode(ctx, id, 1)
		}(i, id)
	}
	wg.Wait()

	nodes := make([]*models.CommentNode, 0, len(ids))
	for _, node := range results {
		if node != nil {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// fetchNode fetches one comment and, sequentially, its children. A nil
// return prunes the branch: depth exceeded, fetch failure, or a
// deleted/dead comment (whose whole subtree is dropped with it).
func (f *ThreadFetcher) fetchNode(ctx context.Context, id int64, depth int) *models.CommentNode {
	if depth > f.limits.MaxDepth {
		return nil
	}

	comment, err := f.source.Comment(ctx, id)
	if err != nil {
		f.logger.Debug().Int64("comment_id", id).Err(err).Msg("pruning comment branch")
		return nil
	}
	if comment.Deleted || comment.Dead {
		return nil
	}

	node := &models.CommentNode{Comment: *comment}
	if depth < f.limits.MaxDepth {
		for _, kid := range truncateIDs(comment.Kids, f.limits.MaxChildrenPerNode) {
			if child := f.fetchNode(ctx, kid, depth+1); child != nil {
				node.Children = append(node.Children, child)
			}
		}
	}
	return node
}

func truncateIDs(ids []int64, max int) []int64 {
	if max > 0 && len(ids) > max {
		return ids[:max]
	}
	return ids
}
