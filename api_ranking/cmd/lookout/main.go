package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	lookoutconfig "frameworks/api_ranking/internal/config"
	"frameworks/api_ranking/internal/content"
	"frameworks/api_ranking/internal/engagement"
	"frameworks/api_ranking/internal/jobs"
	"frameworks/api_ranking/internal/kv"
	"frameworks/api_ranking/internal/notify"
	"frameworks/api_ranking/internal/promotion"
	"frameworks/api_ranking/internal/ranking"
	"frameworks/api_ranking/internal/scoring"
	"frameworks/pkg/clients"
	"frameworks/pkg/clients/pushgw"
	"frameworks/pkg/config"
	"frameworks/pkg/database"
	"frameworks/pkg/kafka"
	"frameworks/pkg/logging"
	"frameworks/pkg/monitoring"
	"frameworks/pkg/redis"
	"frameworks/pkg/server"
	"frameworks/pkg/version"
)

const (
	serviceName      = "lookout"
	promotionChannel = "lookout:promotions"
)

func main() {
	logger := logging.NewLoggerWithService(serviceName)
	config.LoadEnv(logger)

	logger.WithField("version", version.GetInfo().String()).Info("Starting Lookout (content ranking and promotion)")

	cfg := lookoutconfig.Load()
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = cfg.DatabaseURL
	db := database.MustConnect(ctx, dbConfig, logger)
	defer func() { _ = db.Close() }()
	if err := database.ApplySchema(ctx, db, "lookout"); err != nil {
		logger.WithError(err).Fatal("Failed to apply schema")
	}

	// Monitoring
	healthChecker := monitoring.NewHealthChecker(serviceName, version.Version)
	metricsCollector := monitoring.NewMetricsCollector(serviceName, version.Version, version.GitCommit)
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL": cfg.DatabaseURL,
	}))
	registerMetrics(metricsCollector)

	// Derived-state stores: Redis when configured, in-process otherwise
	var (
		store       kv.Store
		rankStore   ranking.Store
		sweeper     jobs.Sweeper
		redisClient goredis.UniversalClient
	)
	if cfg.RedisEnabled() {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		redisClient = client
		defer func() { _ = redisClient.Close() }()
		store = kv.NewRedisStore(client)
		rankStore = ranking.NewRedisStore(client)
		healthChecker.AddCheck("redis", monitoring.PingHealthCheck("Redis", monitoring.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}), monitoring.StatusDegraded))
	} else {
		logger.Warn("No Redis configured - using in-process stores, markers and dedup are per instance")
		mem := kv.NewMemoryStore(nil)
		store, sweeper = mem, mem
		rankStore = ranking.NewMemoryStore()
	}

	contentStore := content.NewPostgresStore(db, logger)

	// Scoring
	scoreCache := scoring.NewCache(store, cfg.ScoreCacheTTL, logger)
	calculator := scoring.NewCalculator(cfg.Score, scoreCache, scoring.WithLogger(logger))

	// Notifications
	var pusher notify.Pusher
	if cfg.PushGatewayURL != "" {
		breaker := pushgw.DefaultBreaker()
		breaker.Logger = logger
		breaker.OnStateChange = clients.NewCircuitBreakerMetrics(metricsCollector).Record
		pusher = pushgw.NewClient(cfg.PushGatewayURL, cfg.PushGatewayToken, pushgw.WithBreaker(breaker))
	} else {
		logger.Info("PUSH_GATEWAY_URL not set - notifications are recorded without push delivery")
	}
	gate := notify.NewGate(notify.Config{
		Store:       store,
		Repository:  notify.NewPostgresRepository(db),
		Pusher:      pusher,
		TTL:         cfg.NotifyDedupTTL,
		PushTimeout: cfg.NotifyPushTimeout,
		Logger:      logger,
	},
		notify.WithKindTTL(notify.KindTopRanked, cfg.PromotionInterval),
		notify.WithKindTTL(notify.KindLikeMilestone, cfg.PromotionInterval),
	)
	dispatcher := notify.NewDispatcher(gate, contentStore)

	// Promotion
	var publisher promotion.Publisher
	if redisClient != nil {
		events := redis.NewTypedPubSub[promotion.Event](redisClient, promotionChannel, logger)
		publisher = events
		go func() {
			err := events.Subscribe(ctx, func(ev promotion.Event) {
				logger.WithFields(logging.Fields{
					"cycle_id": ev.CycleID,
					"item_id":  ev.ItemID,
					"from":     ev.From,
					"to":       ev.To,
				}).Debug("Observed promotion event")
			})
			if err != nil && ctx.Err() == nil {
				logger.WithError(err).Warn("Promotion event subscription ended")
			}
		}()
	}
	engine := promotion.NewEngine(promotion.Config{
		Namespace:            cfg.RankingNamespace,
		MemberKind:           cfg.RankingMemberKind,
		SpotThreshold:        cfg.SpotThreshold,
		ChallengeTopPercent:  cfg.ChallengeTopPercent,
		ChallengeMaxPerCycle: cfg.ChallengeMaxPerCycle,
		Window:               cfg.PromotionWindow,
		Interval:             cfg.PromotionInterval,
		TopK:                 cfg.RankingTopK,
		Workers:              cfg.PromotionWorkers,
	}, promotion.Deps{
		Items:     contentStore,
		Scorer:    calculator,
		Ranking:   rankStore,
		Markers:   store,
		Notifier:  dispatcher,
		Publisher: publisher,
		Logger:    logger,
	})

	// Scheduled jobs
	promotionJob := jobs.NewPromotionJob(jobs.PromotionJobConfig{
		Engine:     engine,
		Schedule:   jobs.MustParseSchedule(cfg.PromotionCron),
		LeaseStore: store,
		InstanceID: uuid.NewString(),
		Logger:     logger,
	})
	cleanupJob := jobs.NewRankingCleanupJob(jobs.RankingCleanupConfig{
		Ranking:    rankStore,
		Items:      contentStore,
		Namespace:  cfg.RankingNamespace,
		MemberKind: cfg.RankingMemberKind,
		Window:     cfg.PromotionWindow,
		Schedule:   jobs.MustParseSchedule(cfg.RankingCleanupCron),
		Logger:     logger,
	})
	sweepJob := jobs.NewScoreCacheSweepJob(jobs.ScoreCacheSweepConfig{
		Cache:    scoreCache,
		Items:    contentStore,
		Sweeper:  sweeper,
		Window:   cfg.PromotionWindow,
		Schedule: jobs.MustParseSchedule(cfg.ScoreSweepCron),
		Logger:   logger,
	})
	promotionJob.Start()
	cleanupJob.Start()
	sweepJob.Start()

	// Engagement consumer
	var consumer *kafka.Consumer
	if cfg.KafkaEnabled() {
		c, err := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.KafkaGroupID,
			ClientID: serviceName,
		}, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka consumer")
		}
		consumer = c
		service := engagement.NewService(engagement.Config{
			Store:         contentStore,
			Cache:         scoreCache,
			Notifier:      dispatcher,
			MemberKind:    cfg.RankingMemberKind,
			MilestoneStep: cfg.LikeMilestoneStep,
			Logger:        logger,
		})
		consumer.AddHandler(cfg.EngagementTopic, engagement.NewConsumer(service, logger).Handle)
		healthChecker.AddCheck("kafka", monitoring.PingHealthCheck("Kafka", consumer, monitoring.StatusDegraded))
		go func() {
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("Engagement consumer stopped")
			}
		}()
	} else {
		logger.Info("KAFKA_BROKERS not set - engagement consumer disabled")
	}

	// Health and metrics
	router := server.SetupServiceRouter(logger, serviceName, healthChecker, metricsCollector)
	serverConfig := server.DefaultConfig(serviceName, "18030")
	serverConfig.Port = cfg.Port
	if err := server.Start(ctx, serverConfig, router, logger); err != nil {
		logger.WithError(err).Error("Server stopped with error")
	}

	// Shutdown
	promotionJob.Stop()
	cleanupJob.Stop()
	sweepJob.Stop()
	if consumer != nil {
		consumer.Close()
	}

	drained := make(chan struct{})
	go func() {
		gate.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(cfg.NotifyPushTimeout + time.Second):
		logger.Warn("Timed out waiting for in-flight pushes")
	}
	logger.Info("Lookout stopped")
}

func registerMetrics(mc *monitoring.MetricsCollector) {
	scoring.SetMetrics(&scoring.Metrics{
		CacheLookups: mc.NewCounter("score_cache_total", "Score cache lookups by result", []string{"result"}),
	})
	promotion.SetMetrics(&promotion.Metrics{
		Promotions:    mc.NewCounter("promotions_total", "Tier promotion attempts", []string{"from", "to", "status"}),
		CycleDuration: mc.NewHistogram("promotion_cycle_duration_seconds", "Promotion cycle wall time", nil, []float64{1, 5, 15, 30, 60, 120, 300, 600}),
		Candidates:    mc.NewGauge("promotion_candidates", "Candidates loaded by the last promotion cycle", nil),
	})
	notify.SetMetrics(&notify.Metrics{
		Notifications:  mc.NewCounter("notifications_total", "Notification decisions by kind and outcome", []string{"kind", "outcome"}),
		PushDeliveries: mc.NewCounter("push_deliveries_total", "Push delivery attempts by status", []string{"status"}),
	})
	engagement.SetMetrics(&engagement.Metrics{
		Events: mc.NewCounter("engagement_events_total", "Engagement events by type and status", []string{"type", "status"}),
	})
	jobs.SetMetrics(&jobs.Metrics{
		Runs:              mc.NewCounter("job_runs_total", "Scheduled job runs by status", []string{"job", "status"}),
		RankingRemoved:    mc.NewCounter("ranking_cleanup_removed_total", "Ranking members removed by cleanup", []string{"reason"}),
		ScoresInvalidated: mc.NewCounter("score_cache_swept_total", "Cached scores invalidated by the sweep", nil),
	})
}
