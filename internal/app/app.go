package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ObiAU/hnenricher/internal/ai"
	"github.com/ObiAU/hnenricher/internal/config"
	"github.com/ObiAU/hnenricher/internal/fetcher"
	"github.com/ObiAU/hnenricher/internal/policy"
	"github.com/ObiAU/hnenricher/internal/queue"
	"github.com/ObiAU/hnenricher/internal/scheduler"
	"github.com/ObiAU/hnenricher/internal/sources"
	"github.com/ObiAU/hnenricher/internal/store"
)

// App wires the pipeline together and runs its long-lived parts: the
// discovery cron, the queue pump, the worker, the reclaimer and the
// health server.
type App struct {
	cfg       *config.Config
	rdb       *redis.Client
	store     *store.EnrichmentStore
	consumer  *queue.Consumer
	pump      *queue.Pump
	reclaimer *queue.Reclaimer
	sched     *scheduler.Scheduler
	cron      *cron.Cron
	server    *http.Server
	logger    zerolog.Logger

	mu      sync.RWMutex
	running bool
}

func New(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	hn := sources.NewHNClient(
		sources.WithBaseURL(cfg.HNAPIURL),
		sources.WithTimeout(cfg.FetchTimeout),
	)

	treeFetcher := fetcher.New(hn, fetcher.Limits{
		MaxTopLevel:         cfg.MaxCommentsPerStory,
		MaxChildrenPerNode:  cfg.MaxChildrenPerComment,
		MaxDepth:            cfg.MaxCommentDepth,
		TopLevelConcurrency: cfg.CommentConcurrency,
		StoryConcurrency:    cfg.StoryConcurrency,
	}, logger)

	classifier := ai.NewClassifier(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	recordStore := store.New(rdb, cfg.StoreTTL, cfg.CacheRetention, logger)

	producer := queue.NewProducer(rdb, logger)
	consumer, err := queue.NewConsumer(rdb, queue.ConsumerConfig{}, logger)
	if err != nil {
		return nil, fmt.Errorf("queue consumer: %w", err)
	}

	pol := policy.Policy{
		GrowthRatio:    cfg.GrowthRatioThreshold,
		GrowthAbsolute: cfg.GrowthAbsoluteThreshold,
	}

	sched := scheduler.New(cfg, hn, treeFetcher, pol, classifier, recordStore, producer, consumer, logger)

	reclaimer := queue.NewReclaimer(rdb, queue.ReclaimerConfig{}, sched.ProcessMessage, logger)

	return &App{
		cfg:       cfg,
		rdb:       rdb,
		store:     recordStore,
		consumer:  consumer,
		pump:      queue.NewPump(rdb, 0, logger),
		reclaimer: reclaimer,
		sched:     sched,
		cron:      cron.New(),
		logger:    logger.With().Str("component", "app").Logger(),
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	a.running = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	if _, err := a.cron.AddFunc(a.cfg.DiscoverySpec, func() {
		if err := a.sched.RunDiscovery(ctx); err != nil {
			a.logger.Error().Err(err).Msg("discovery pass failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule discovery: %w", err)
	}
	a.cron.Start()

	go a.pump.Run(ctx)
	go a.reclaimer.Run(ctx)
	go func() {
		if err := a.sched.RunWorker(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error().Err(err).Msg("worker stopped")
		}
	}()
	go a.startHTTPServer()

	a.logger.Info().Str("cron", a.cfg.DiscoverySpec).Msg("enrichment pipeline started")

	<-ctx.Done()
	return a.shutdown()
}

func (a *App) startHTTPServer() {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)
	mux.HandleFunc("/stats", a.statsHandler)

	a.server = &http.Server{
		Addr:    ":" + a.cfg.ServerPort,
		Handler: mux,
	}

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		a.logger.Error().Err(err).Msg("http server error")
	}
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().UTC().Format(time.RFC3339))
}

func (a *App) statsHandler(w http.ResponseWriter, r *http.Request) {
	depth, err := a.consumer.Depth(r.Context())
	if err != nil {
		a.logger.Warn().Err(err).Msg("queue depth lookup failed")
		depth = -1
	}

	body, _ := json.Marshal(map[string]any{
		"running":     a.isRunning(),
		"queue_depth": depth,
		"cache_stats": a.store.CacheStats(),
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (a *App) isRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

func (a *App) shutdown() error {
	a.logger.Info().Msg("shutting down")

	stopCtx := a.cron.Stop()
	<-stopCtx.Done()

	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := a.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}

	a.store.Close()
	return a.rdb.Close()
}
