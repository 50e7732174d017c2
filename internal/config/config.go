package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all tunables for the enrichment pipeline. Every value has
// a default matching the production deployment and can be overridden via
// environment variables.
type Config struct {
	Env        string
	ServerPort string

	OpenAIAPIKey string
	OpenAIModel  string

	RedisURL string
	HNAPIURL string

	// Discovery phase
	DiscoverySpec       string
	TopStoriesLimit     int
	MaxStoriesToEnqueue int
	EnqueueStagger      time.Duration

	// Thread fetching
	MaxCommentsPerStory   int
	MaxChildrenPerComment int
	MaxCommentDepth       int
	StoryConcurrency      int
	CommentConcurrency    int
	FetchTimeout          time.Duration

	// Re-enrichment policy
	GrowthRatioThreshold    float64
	GrowthAbsoluteThreshold int

	// Persistence
	StoreTTL       time.Duration
	CacheRetention time.Duration

	// Queue retry policy
	RateLimitRetryDelay time.Duration
	DefaultRetryDelay   time.Duration
}

func Load() *Config {
	return &Config{
		Env:        getEnv("APP_ENV", "development"),
		ServerPort: getEnv("SERVER_PORT", "8080"),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		HNAPIURL: getEnv("HN_API_URL", "https://hacker-news.firebaseio.com/v0"),

		DiscoverySpec:       getEnv("DISCOVERY_CRON", "0 * * * *"),
		TopStoriesLimit:     getEnvAsInt("TOP_STORIES_LIMIT", 50),
		MaxStoriesToEnqueue: getEnvAsInt("MAX_STORIES_TO_ENQUEUE", 20),
		EnqueueStagger:      getEnvAsDuration("ENQUEUE_STAGGER", 15*time.Second),

		MaxCommentsPerStory:   getEnvAsInt("MAX_COMMENTS_PER_STORY", 50),
		MaxChildrenPerComment: getEnvAsInt("MAX_CHILDREN_PER_COMMENT", 3),
		MaxCommentDepth:       getEnvAsInt("MAX_COMMENT_DEPTH", 3),
		StoryConcurrency:      getEnvAsInt("STORY_CONCURRENCY", 10),
		CommentConcurrency:    getEnvAsInt("COMMENT_CONCURRENCY", 5),
		FetchTimeout:          getEnvAsDuration("FETCH_TIMEOUT", 10*time.Second),

		GrowthRatioThreshold:    getEnvAsFloat("GROWTH_RATIO_THRESHOLD", 0.5),
		GrowthAbsoluteThreshold: getEnvAsInt("GROWTH_ABSOLUTE_THRESHOLD", 20),

		StoreTTL:       getEnvAsDuration("STORE_TTL", 365*24*time.Hour),
		CacheRetention: getEnvAsDuration("CACHE_RETENTION", 30*time.Minute),

		RateLimitRetryDelay: getEnvAsDuration("RATE_LIMIT_RETRY_DELAY", 60*time.Second),
		DefaultRetryDelay:   getEnvAsDuration("DEFAULT_RETRY_DELAY", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
