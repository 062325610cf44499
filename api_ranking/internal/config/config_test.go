package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://lookout@localhost/lookout")
	t.Setenv("SPOT_SCORE_THRESHOLD", "12.5")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	cfg := Load()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if cfg.SpotThreshold != 12.5 {
		t.Fatalf("expected threshold 12.5, got %v", cfg.SpotThreshold)
	}
	if cfg.Score.Weights.Certify != 10 || cfg.Score.Weights.Reply != 3 {
		t.Fatalf("unexpected default weights %+v", cfg.Score.Weights)
	}
	if cfg.PromotionInterval != 24*time.Hour || cfg.ChallengeMaxPerCycle != 2 || cfg.ChallengeTopPercent != 0.30 {
		t.Fatalf("unexpected promotion defaults %+v", cfg)
	}
	if cfg.Port != "18030" || cfg.RankingNamespace != "community" || cfg.RankingMemberKind != "place" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.RedisEnabled() || cfg.KafkaEnabled() {
		t.Fatalf("expected optional backends disabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SCORE_WEIGHT_LIKE", "4")
	t.Setenv("SCORE_DECAY_FLOOR", "0.5")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("REDIS_ADDRS", "redis:6379")
	t.Setenv("PROMOTION_CRON", "*/15 * * * *")

	cfg := Load()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Score.Weights.Like != 4 || cfg.Score.DecayFloor != 0.5 {
		t.Fatalf("overrides not applied: %+v", cfg.Score)
	}
	if !cfg.KafkaEnabled() || len(cfg.KafkaBrokers) != 2 || !cfg.RedisEnabled() {
		t.Fatalf("expected kafka and redis enabled")
	}
}

func TestValidateReportsAllErrors(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SPOT_SCORE_THRESHOLD", "")
	t.Setenv("SCORE_WEIGHT_VIEW", "0")
	t.Setenv("SCORE_DECAY_FLOOR", "1.5")
	t.Setenv("RANKING_CLEANUP_CRON", "every hour")

	err := Load().Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"DATABASE_URL", "SPOT_SCORE_THRESHOLD is required", "weights", "SCORE_DECAY_FLOOR", "RANKING_CLEANUP_CRON"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %q, got: %v", want, err)
		}
	}
}

func TestValidateThreshold(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"not a number", "high", "not a number"},
		{"zero", "0", "must be > 0"},
		{"negative", "-3", "must be > 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/lookout")
			t.Setenv("SPOT_SCORE_THRESHOLD", tt.value)
			err := Load().Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q error, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateRejectsColonInMemberKind(t *testing.T) {
	setRequired(t)
	t.Setenv("RANKING_MEMBER_KIND", "content:v2")

	err := Load().Validate()
	if err == nil || !strings.Contains(err.Error(), "RANKING_MEMBER_KIND must not contain ':'") {
		t.Fatalf("expected member kind error, got %v", err)
	}
}
