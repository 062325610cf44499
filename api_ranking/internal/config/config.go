package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"frameworks/api_ranking/internal/scoring"
	"frameworks/pkg/config"
	"frameworks/pkg/redis"
)

// Config stores environment configuration for Lookout.
type Config struct {
	Port        string
	DatabaseURL string
	Redis       redis.Config

	KafkaBrokers    []string
	KafkaGroupID    string
	EngagementTopic string

	PushGatewayURL   string
	PushGatewayToken string

	Score         scoring.Params
	ScoreCacheTTL time.Duration

	SpotThreshold        float64
	ChallengeTopPercent  float64
	ChallengeMaxPerCycle int
	PromotionWindow      time.Duration
	PromotionCron        string
	PromotionInterval    time.Duration
	PromotionWorkers     int

	RankingNamespace   string
	RankingMemberKind  string
	RankingTopK        int64
	RankingCleanupCron string
	ScoreSweepCron     string

	NotifyDedupTTL    time.Duration
	NotifyPushTimeout time.Duration
	LikeMilestoneStep int64

	// set by Load; checked by Validate
	spotThresholdSet bool
	spotThresholdErr error
}

// Load reads the configuration from environment variables. Call Validate
// before use.
func Load() Config {
	threshold, thresholdSet, thresholdErr := config.LookupFloat("SPOT_SCORE_THRESHOLD")
	defaults := scoring.DefaultParams()

	return Config{
		Port:        config.GetEnv("PORT", "18030"),
		DatabaseURL: config.GetEnv("DATABASE_URL", ""),
		Redis: redis.Config{
			URL:        config.GetEnv("REDIS_URL", ""),
			Mode:       redis.Mode(config.GetEnv("REDIS_MODE", string(redis.ModeSingle))),
			Addrs:      config.GetEnvList("REDIS_ADDRS"),
			MasterName: config.GetEnv("REDIS_MASTER_NAME", ""),
			Password:   config.GetEnv("REDIS_PASSWORD", ""),
			DB:         config.GetEnvInt("REDIS_DB", 0),
		},

		KafkaBrokers:    config.GetEnvList("KAFKA_BROKERS"),
		KafkaGroupID:    config.GetEnv("KAFKA_GROUP_ID", "lookout-engagement"),
		EngagementTopic: config.GetEnv("ENGAGEMENT_TOPIC", "lookout.engagement_events"),

		PushGatewayURL:   config.GetEnv("PUSH_GATEWAY_URL", ""),
		PushGatewayToken: config.GetEnv("PUSH_GATEWAY_TOKEN", ""),

		Score: scoring.Params{
			Weights: scoring.Weights{
				Reply:   int64(config.GetEnvInt("SCORE_WEIGHT_REPLY", int(defaults.Weights.Reply))),
				Like:    int64(config.GetEnvInt("SCORE_WEIGHT_LIKE", int(defaults.Weights.Like))),
				View:    int64(config.GetEnvInt("SCORE_WEIGHT_VIEW", int(defaults.Weights.View))),
				Certify: int64(config.GetEnvInt("SCORE_WEIGHT_CERTIFY", int(defaults.Weights.Certify))),
			},
			DecayWindow: config.GetEnvDuration("SCORE_DECAY_WINDOW", defaults.DecayWindow),
			DecayFloor:  config.GetEnvFloat("SCORE_DECAY_FLOOR", defaults.DecayFloor),
			Epoch:       config.GetEnvTime("SCORE_EPOCH", defaults.Epoch),
			TimeDivisor: config.GetEnvFloat("SCORE_TIME_DIVISOR", defaults.TimeDivisor),
		},
		ScoreCacheTTL: config.GetEnvDuration("SCORE_CACHE_TTL", 5*time.Minute),

		SpotThreshold:        threshold,
		ChallengeTopPercent:  config.GetEnvFloat("CHALLENGE_TOP_PERCENT", 0.30),
		ChallengeMaxPerCycle: config.GetEnvInt("CHALLENGE_MAX_PER_CYCLE", 2),
		PromotionWindow:      config.GetEnvDuration("PROMOTION_WINDOW", 720*time.Hour),
		PromotionCron:        config.GetEnv("PROMOTION_CRON", "0 4 * * *"),
		PromotionInterval:    config.GetEnvDuration("PROMOTION_INTERVAL", 24*time.Hour),
		PromotionWorkers:     config.GetEnvInt("PROMOTION_WORKERS", 8),

		RankingNamespace:   config.GetEnv("RANKING_NAMESPACE", "community"),
		RankingMemberKind:  config.GetEnv("RANKING_MEMBER_KIND", "place"),
		RankingTopK:        int64(config.GetEnvInt("RANKING_TOP_K", 10)),
		RankingCleanupCron: config.GetEnv("RANKING_CLEANUP_CRON", "0 * * * *"),
		ScoreSweepCron:     config.GetEnv("SCORE_CACHE_SWEEP_CRON", "30 * * * *"),

		NotifyDedupTTL:    config.GetEnvDuration("NOTIFY_DEDUP_TTL", 60*time.Second),
		NotifyPushTimeout: config.GetEnvDuration("NOTIFY_PUSH_TIMEOUT", 10*time.Second),
		LikeMilestoneStep: int64(config.GetEnvInt("LIKE_MILESTONE_STEP", 50)),

		spotThresholdSet: thresholdSet,
		spotThresholdErr: thresholdErr,
	}
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}

	switch {
	case c.spotThresholdErr != nil:
		errs = append(errs, fmt.Errorf("SPOT_SCORE_THRESHOLD is not a number: %w", c.spotThresholdErr))
	case !c.spotThresholdSet:
		errs = append(errs, errors.New("SPOT_SCORE_THRESHOLD is required"))
	case c.SpotThreshold <= 0:
		errs = append(errs, errors.New("SPOT_SCORE_THRESHOLD must be > 0"))
	}

	w := c.Score.Weights
	if w.Reply <= 0 || w.Like <= 0 || w.View <= 0 || w.Certify <= 0 {
		errs = append(errs, fmt.Errorf("score weights must be > 0 (reply=%d like=%d view=%d certify=%d)", w.Reply, w.Like, w.View, w.Certify))
	}
	if c.Score.DecayWindow <= 0 {
		errs = append(errs, errors.New("SCORE_DECAY_WINDOW must be > 0"))
	}
	if c.Score.DecayFloor <= 0 || c.Score.DecayFloor > 1 {
		errs = append(errs, fmt.Errorf("SCORE_DECAY_FLOOR must be in (0,1], got %v", c.Score.DecayFloor))
	}
	if c.Score.TimeDivisor <= 0 {
		errs = append(errs, errors.New("SCORE_TIME_DIVISOR must be > 0"))
	}

	if c.ChallengeTopPercent <= 0 || c.ChallengeTopPercent > 1 {
		errs = append(errs, fmt.Errorf("CHALLENGE_TOP_PERCENT must be in (0,1], got %v", c.ChallengeTopPercent))
	}
	if c.ChallengeMaxPerCycle < 0 {
		errs = append(errs, errors.New("CHALLENGE_MAX_PER_CYCLE must be >= 0"))
	}
	if c.PromotionWindow <= 0 {
		errs = append(errs, errors.New("PROMOTION_WINDOW must be > 0"))
	}
	if c.PromotionInterval <= 0 {
		errs = append(errs, errors.New("PROMOTION_INTERVAL must be > 0"))
	}
	if c.PromotionWorkers <= 0 {
		errs = append(errs, errors.New("PROMOTION_WORKERS must be > 0"))
	}
	if c.RankingMemberKind == "" {
		errs = append(errs, errors.New("RANKING_MEMBER_KIND is required"))
	} else if strings.Contains(c.RankingMemberKind, ":") {
		errs = append(errs, fmt.Errorf("RANKING_MEMBER_KIND must not contain ':': %q", c.RankingMemberKind))
	}

	for key, expr := range map[string]string{
		"PROMOTION_CRON":         c.PromotionCron,
		"RANKING_CLEANUP_CRON":   c.RankingCleanupCron,
		"SCORE_CACHE_SWEEP_CRON": c.ScoreSweepCron,
	} {
		if !gronx.IsValid(expr) {
			errs = append(errs, fmt.Errorf("%s is not a valid cron expression: %q", key, expr))
		}
	}

	if len(c.KafkaBrokers) > 0 && c.KafkaGroupID == "" {
		errs = append(errs, errors.New("KAFKA_GROUP_ID is required when KAFKA_BROKERS is set"))
	}

	return errors.Join(errs...)
}

// RedisEnabled reports whether shared stores are configured.
func (c Config) RedisEnabled() bool { return c.Redis.Enabled() }

// KafkaEnabled reports whether the engagement consumer should run.
func (c Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }
