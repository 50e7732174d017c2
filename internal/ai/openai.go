package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"github.com/ObiAU/hnenricher/internal/models"
)

// ErrEmptyClassification is returned when the service produced no usable
// structured result.
var ErrEmptyClassification = errors.New("ai: empty classification")

// ErrRateLimited is returned when the service signaled throttling. The
// queue retries these with a longer delay than other failures.
var ErrRateLimited = errors.New("ai: rate limited")

const systemPrompt = "You are an expert analyst classifying Hacker News stories. " +
	"Given a story with its threaded discussion, produce the classification object " +
	"described by the response schema. Base your judgment on the story itself and " +
	"the tone and content of its comments."

// Classifier turns a discussion tree into one persisted classification
// record via a single chat-completion call. It performs no retries of
// its own: retry policy belongs to the queue.
type Classifier struct {
	client openai.Client
	model  string
}

func NewClassifier(apiKey, model string, opts ...option.RequestOption) *Classifier {
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	client := openai.NewClient(opts...)
	return &Classifier{client: client, model: model}
}

// storyClassification is the closed output schema requested from the
// service. Field descriptions drive the model's label choices.
type storyClassification struct {
	ContentType string `json:"content_type" jsonschema:"enum=show-hn,enum=ask-hn,enum=launch,enum=tutorial,enum=article,enum=paper,enum=news,enum=discussion,enum=job,enum=repository,enum=media,enum=other" jsonschema_description:"Content type. Use 'show-hn'/'ask-hn' ONLY if the title starts with 'Show HN:'/'Ask HN:'. Use 'article' for blog posts, 'paper' for academic work, 'news' for current events, 'tutorial' for how-to guides, 'launch' for product announcements, 'discussion' for meta/community posts, 'job' for job postings, 'repository' for links to code repositories, 'media' for videos/podcasts/presentations. Use 'other' as a last resort."`
	Topic       string `json:"topic" jsonschema:"enum=ai-ml,enum=web-dev,enum=mobile-dev,enum=design-ux,enum=systems,enum=databases,enum=devops,enum=security,enum=networking,enum=languages,enum=gaming,enum=hardware,enum=robotics,enum=data-science,enum=math,enum=science,enum=startups,enum=big-tech,enum=career,enum=open-source,enum=culture,enum=productivity,enum=finance,enum=policy,enum=media,enum=other" jsonschema_description:"PRIMARY topic - pick ONE that best fits. ai-ml=AI/ML/LLMs, web-dev=frontend/backend, mobile-dev=iOS/Android, design-ux=UI/UX, systems=OS/kernels/low-level, databases=SQL/NoSQL/storage, devops=CI/CD/cloud/containers, security=infosec/privacy, networking=protocols/distributed, languages=PLT/compilers, gaming=gamedev/graphics, hardware=electronics/embedded, robotics=automation/drones, data-science=analytics/stats, math=algorithms/theory, science=physics/bio/chem, startups=founding/fundraising, big-tech=FAANG/enterprise, career=jobs/interviews, open-source=OSS/community, culture=history/ethics, productivity=tools/workflows, finance=fintech/crypto, policy=regulation/law, media=social/journalism. Use 'other' ONLY as a last resort."`
	Technologies []string `json:"technologies" jsonschema:"maxItems=10" jsonschema_description:"Specific technologies directly discussed (0-10). Lowercase, no versions: python, rust, go, typescript, react, django, postgres, redis, kubernetes, docker, aws, linux, and so on. Empty array if not tech-specific."`
	Tags         []string `json:"tags" jsonschema:"maxItems=10" jsonschema_description:"Free-form descriptive tags (0-10). Examples: beginner-friendly, deep-dive, controversial, retrospective, benchmarks, comparison, announcement, self-hosted, performance, debugging, architecture, history, interview, layoffs, acquisition, funding, privacy, side-project, visualization, testing, post-mortem, case-study, security-vulnerability, new-release, satire, nostalgia, burnout, accessibility."`
	IsTechnical float64 `json:"is_technical" jsonschema_description:"Technical score from 0.0 to 1.0. 1.0: purely technical content such as code deep-dives or compiler design. 0.7: mostly technical, like a tutorial with code or an architecture overview. 0.5: tech-adjacent, such as product launches or engineering management. 0.3: tangentially tech-related, like founder stories or VC funding news. 0.0: non-technical content."`
}

func classificationSchema() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.Reflect(&storyClassification{})
}

// Classify sends one classification request for the given tree and maps
// the structured result into an EnrichedStory.
func (c *Classifier) Classify(ctx context.Context, tree *models.DiscussionTree) (*models.EnrichedStory, error) {
	if tree == nil {
		return nil, errors.New("ai: nil discussion tree")
	}

	response, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(BuildContext(tree)),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "story_classification",
					Description: openai.String("Structured classification for one Hacker News story"),
					Schema:      classificationSchema(),
					Strict:      openai.Bool(true),
				},
			},
		},
		Temperature: openai.Float(0.1),
	})
	if err != nil {
		var apierr *openai.Error
		if errors.As(err, &apierr) && apierr.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	if len(response.Choices) == 0 || response.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("story %d: %w", tree.Item.ID, ErrEmptyClassification)
	}

	var result storyClassification
	if err := json.Unmarshal([]byte(response.Choices[0].Message.Content), &result); err != nil {
		return nil, fmt.Errorf("failed to parse openai response: %w", err)
	}

	record := &models.EnrichedStory{
		ID:                     tree.Item.ID,
		HNTitle:                tree.Item.Title,
		ContentType:            result.ContentType,
		Topic:                  result.Topic,
		Technologies:           result.Technologies,
		Tags:                   result.Tags,
		IsTechnical:            result.IsTechnical,
		AnalyzedAt:             time.Now().UTC(),
		CommentCountAtAnalysis: tree.Item.Descendants,
	}
	record.Normalize()
	return record, nil
}
