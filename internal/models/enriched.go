package models

import "time"

// MaxTagCount caps both the technologies and tags lists on a stored record.
const MaxTagCount = 10

// ContentTypes is the closed set of content-type labels.
var ContentTypes = []string{
	"show-hn",
	"ask-hn",
	"launch",
	"tutorial",
	"article",
	"paper",
	"news",
	"discussion",
	"job",
	"repository",
	"media",
	"other",
}

// Topics is the closed set of primary-topic labels.
var Topics = []string{
	// Core software engineering
	"ai-ml",
	"web-dev",
	"mobile-dev",
	"design-ux",
	"systems",
	"databases",
	"devops",
	"security",
	"networking",
	"languages",
	"gaming",
	"hardware",
	"robotics",
	// Data and science
	"data-science",
	"math",
	"science",
	// Industry and career
	"startups",
	"big-tech",
	"career",
	"open-source",
	// Meta and culture
	"culture",
	"productivity",
	"finance",
	"policy",
	"media",
	// Fallback
	"other",
}

// IsContentType reports whether label is a member of the closed content-type set.
func IsContentType(label string) bool {
	return contains(ContentTypes, label)
}

// IsTopic reports whether label is a member of the closed topic set.
func IsTopic(label string) bool {
	return contains(Topics, label)
}

func contains(set []string, label string) bool {
	for _, s := range set {
		if s == label {
			return true
		}
	}
	return false
}

// EnrichedStory is the persisted structured classification for one item.
// Records are overwritten wholesale on re-enrichment, never patched.
type EnrichedStory struct {
	ID                     int64     `json:"id"`
	HNTitle                string    `json:"hn_title"`
	ContentType            string    `json:"content_type"`
	Topic                  string    `json:"topic"`
	Technologies           []string  `json:"technologies"`
	Tags                   []string  `json:"tags"`
	IsTechnical            float64   `json:"is_technical"`
	AnalyzedAt             time.Time `json:"analyzed_at"`
	CommentCountAtAnalysis int       `json:"comment_count_at_analysis"`
}

// Normalize enforces the record invariants: the technical score is clamped
// to [0,1], tag lists are truncated to MaxTagCount, and labels outside
// their closed sets collapse to "other".
func (e *EnrichedStory) Normalize() {
	if e.IsTechnical < 0 {
		e.IsTechnical = 0
	}
	if e.IsTechnical > 1 {
		e.IsTechnical = 1
	}
	if len(e.Technologies) > MaxTagCount {
		e.Technologies = e.Technologies[:MaxTagCount]
	}
	if len(e.Tags) > MaxTagCount {
		e.Tags = e.Tags[:MaxTagCount]
	}
	if !IsContentType(e.ContentType) {
		e.ContentType = "other"
	}
	if !IsTopic(e.Topic) {
		e.Topic = "other"
	}
}

// EnrichReason records why an item was queued for classification.
type EnrichReason string

const (
	ReasonNew      EnrichReason = "new"
	ReasonReEnrich EnrichReason = "re-enrich"
)

// Candidate is an item flagged by the re-enrichment policy. Ephemeral:
// produced during discovery, consumed by the enqueue step, never stored.
type Candidate struct {
	ID               int64
	Reason           EnrichReason
	CurrentComments  int
	PreviousComments *int
}

// QueueMessage is the body of one enrichment job. Delivery is
// at-least-once, so consumers must tolerate duplicates.
type QueueMessage struct {
	StoryID    int64        `json:"story_id"`
	Reason     EnrichReason `json:"reason"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
	Attempt    int          `json:"attempt,omitempty"`
}
