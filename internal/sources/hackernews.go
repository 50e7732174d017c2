package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ObiAU/hnenricher/internal/models"
)

const defaultBaseURL = "https://hacker-news.firebaseio.com/v0"

// ErrNotFound is returned when the API has no record for an identifier.
// The item endpoint answers "null" for unknown ids rather than a 404.
var ErrNotFound = errors.New("hn: item not found")

// HNClient reads the Hacker News Firebase API. Stories and comments
// share one identifier space, so Item and Comment both hit /item/{id}.
type HNClient struct {
	client  *http.Client
	baseURL string
}

type Option func(*HNClient)

// WithBaseURL overrides the API endpoint (used by tests).
func WithBaseURL(url string) Option {
	return func(c *HNClient) {
		c.baseURL = url
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *HNClient) {
		c.client.Timeout = d
	}
}

func NewHNClient(opts ...Option) *HNClient {
	c := &HNClient{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TopStories returns the ranked top-story ids, truncated to limit.
func (c *HNClient) TopStories(ctx context.Context, limit int) ([]int64, error) {
	var ids []int64
	if err := c.getJSON(ctx, c.baseURL+"/topstories.json", &ids); err != nil {
		return nil, fmt.Errorf("fetch top stories: %w", err)
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// Item fetches a story/job/poll record by id.
func (c *HNClient) Item(ctx context.Context, id int64) (*models.Item, error) {
	var item *models.Item
	if err := c.getJSON(ctx, c.itemURL(id), &item); err != nil {
		return nil, fmt.Errorf("fetch item %d: %w", id, err)
	}
	if item == nil {
		return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return item, nil
}

// Comment fetches a comment record by id.
func (c *HNClient) Comment(ctx context.Context, id int64) (*models.Comment, error) {
	var comment *models.Comment
	if err := c.getJSON(ctx, c.itemURL(id), &comment); err != nil {
		return nil, fmt.Errorf("fetch comment %d: %w", id, err)
	}
	if comment == nil {
		return nil, fmt.Errorf("comment %d: %w", id, ErrNotFound)
	}
	return comment, nil
}

func (c *HNClient) itemURL(id int64) string {
	return fmt.Sprintf("%s/item/%d.json", c.baseURL, id)
}

func (c *HNClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
