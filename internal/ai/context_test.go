package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ObiAU/hnenricher/internal/models"
)

func node(text string, children ...*models.CommentNode) *models.CommentNode {
	return &models.CommentNode{
		Comment:  models.Comment{Text: text},
		Children: children,
	}
}

func TestBuildContextHeader(t *testing.T) {
	tree := &models.DiscussionTree{
		Item: models.Item{
			ID:          123,
			Title:       "A story",
			URL:         "https://example.com",
			Score:       99,
			Descendants: 12,
		},
	}

	got := BuildContext(tree)
	assert.Contains(t, got, "[Story ID: 123]\n")
	assert.Contains(t, got, "Title: A story\n")
	assert.Contains(t, got, "URL: https://example.com\n")
	assert.Contains(t, got, "Score: 99, Comments: 12\n")
	assert.NotContains(t, got, "Top Comments")
}

func TestBuildContextSelfPost(t *testing.T) {
	tree := &models.DiscussionTree{
		Item: models.Item{
			ID:    1,
			Title: "Ask HN: something",
			Text:  "<p>First line.<i>emphasis</i></p>",
		},
	}

	got := BuildContext(tree)
	assert.NotContains(t, got, "URL:")
	assert.Contains(t, got, "Text: First line. emphasis")
	assert.NotContains(t, got, "<p>")
}

func TestBuildContextCommentPrefixes(t *testing.T) {
	tree := &models.DiscussionTree{
		Item: models.Item{ID: 1, Title: "t"},
		Comments: []*models.CommentNode{
			node("top level",
				node("first reply",
					node("second reply")),
			),
			node("another top level"),
		},
	}

	got := BuildContext(tree)
	assert.Contains(t, got, "\n- top level\n")
	assert.Contains(t, got, "\n-- first reply\n")
	assert.Contains(t, got, "\n--- second reply\n")
	assert.Contains(t, got, "\n- another top level\n")

	// Depth-first: the nested reply chain precedes the second top-level
	// comment.
	assert.Less(t,
		strings.Index(got, "--- second reply"),
		strings.Index(got, "- another top level"))
}

func TestBuildContextSkipsEmptyTopLevel(t *testing.T) {
	tree := &models.DiscussionTree{
		Item: models.Item{ID: 1, Title: "t"},
		Comments: []*models.CommentNode{
			node(""),
			node("visible"),
		},
	}

	got := BuildContext(tree)
	assert.Contains(t, got, "- visible")
	assert.NotContains(t, got, "- \n")
}

func TestBuildContextTruncatesLongComments(t *testing.T) {
	long := strings.Repeat("x", 1000)
	tree := &models.DiscussionTree{
		Item:     models.Item{ID: 1, Title: "t"},
		Comments: []*models.CommentNode{node(long)},
	}

	got := BuildContext(tree)
	assert.Contains(t, got, "- "+strings.Repeat("x", commentCharBudget)+"\n")
	assert.NotContains(t, got, strings.Repeat("x", commentCharBudget+1))
}

func TestStripMarkup(t *testing.T) {
	assert.Equal(t, "a b", stripMarkup(`a<a href="x">b`))
	assert.Equal(t, "plain", stripMarkup("plain"))
	assert.Equal(t, "", stripMarkup("<p></p>"))
}

func TestTruncateIsRuneSafe(t *testing.T) {
	text := strings.Repeat("é", 400)
	got := truncate(text, commentCharBudget)
	assert.Equal(t, strings.Repeat("é", commentCharBudget), got)
}
