package ai

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ObiAU/hnenricher/internal/models"
)

// commentCharBudget caps each serialized comment body.
const commentCharBudget = 300

var htmlTags = regexp.MustCompile(`<[^>]*>`)

// BuildContext serializes a discussion tree into the textual context sent
// to the classification service: an item metadata header followed by the
// top comments, each rendered with a depth-indicating hyphen prefix in
// the same depth-first order the tree was assembled.
func BuildContext(tree *models.DiscussionTree) string {
	var sb strings.Builder

	item := tree.Item
	fmt.Fprintf(&sb, "[Story ID: %d]\n", item.ID)
	fmt.Fprintf(&sb, "Title: %s\n", item.Title)
	if item.URL != "" {
		fmt.Fprintf(&sb, "URL: %s\n", item.URL)
	}
	if item.Text != "" {
		fmt.Fprintf(&sb, "Text: %s\n", stripMarkup(item.Text))
	}
	fmt.Fprintf(&sb, "Score: %d, Comments: %d\n", item.Score, item.Descendants)

	if len(tree.Comments) > 0 {
		sb.WriteString("\nTop Comments (with replies):\n")
		for _, node := range tree.Comments {
			if node.Text != "" {
				writeComment(&sb, node, 0)
			}
		}
	}

	return sb.String()
}

func writeComment(sb *strings.Builder, node *models.CommentNode, depth int) {
	prefix := strings.Repeat("-", depth+1)
	fmt.Fprintf(sb, "%s %s\n", prefix, truncate(stripMarkup(node.Text), commentCharBudget))

	for _, child := range node.Children {
		writeComment(sb, child, depth+1)
	}
}

func stripMarkup(text string) string {
	return strings.TrimSpace(htmlTags.ReplaceAllString(text, " "))
}

func truncate(text string, budget int) string {
	runes := []rune(text)
	if len(runes) <= budget {
		return text
	}
	return string(runes[:budget])
}
