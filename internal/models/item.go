package models

// Item is a top-level Hacker News post (story, job, poll) as returned by
// the Firebase API. Items are read-only: this system never mutates them.
type Item struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	URL         string  `json:"url,omitempty"`
	Text        string  `json:"text,omitempty"`
	By          string  `json:"by"`
	Time        int64   `json:"time"`
	Score       int     `json:"score"`
	Descendants int     `json:"descendants"`
	Kids        []int64 `json:"kids,omitempty"`
	Type        string  `json:"type"`
}

// Comment is a reply node in an item's discussion thread.
type Comment struct {
	ID      int64   `json:"id"`
	By      string  `json:"by,omitempty"`
	Text    string  `json:"text,omitempty"`
	Time    int64   `json:"time"`
	Parent  int64   `json:"parent"`
	Kids    []int64 `json:"kids,omitempty"`
	Type    string  `json:"type"`
	Deleted bool    `json:"deleted,omitempty"`
	Dead    bool    `json:"dead,omitempty"`
}

// CommentNode is a comment with its fetched children attached. Children
// preserve the sibling order reported by the source.
type CommentNode struct {
	Comment
	Children []*CommentNode
}

// DiscussionTree is an item plus its bounded, pruned comment tree.
// Comments holds the top-level nodes in source order.
type DiscussionTree struct {
	Item     Item
	Comments []*CommentNode
}
