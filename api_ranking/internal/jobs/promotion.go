package jobs

import (
	"context"
	"time"

	"frameworks/api_ranking/internal/kv"
	"frameworks/api_ranking/internal/promotion"
	"frameworks/pkg/logging"
)

const promotionJobName = "promotion"

// CycleRunner is satisfied by *promotion.Engine.
type CycleRunner interface {
	RunCycle(ctx context.Context) (promotion.CycleResult, error)
}

// PromotionJob runs one promotion cycle per schedule tick on whichever
// instance holds the lease.
type PromotionJob struct {
	engine CycleRunner
	lease  *Lease
	logger logging.Logger
	runner *runner
}

type PromotionJobConfig struct {
	Engine     CycleRunner
	Schedule   Schedule
	LeaseStore kv.Store
	InstanceID string
	// LeaseTTL bounds how long a crashed holder blocks other instances
	// (default: 30 minutes).
	LeaseTTL   time.Duration
	RunOnStart bool
	Logger     logging.Logger
}

func NewPromotionJob(cfg PromotionJobConfig) *PromotionJob {
	ttl := cfg.LeaseTTL
	if ttl == 0 {
		ttl = 30 * time.Minute
	}
	j := &PromotionJob{
		engine: cfg.Engine,
		lease:  NewLease(cfg.LeaseStore, promotionJobName, cfg.InstanceID, ttl, cfg.Logger),
		logger: logging.OrDiscard(cfg.Logger),
	}
	j.runner = newRunner(promotionJobName, cfg.Schedule, cfg.RunOnStart, cfg.Logger, func(ctx context.Context) {
		_, _, _ = j.RunOnce(ctx)
	})
	return j
}

// Start begins the scheduling loop
func (j *PromotionJob) Start() { j.runner.start() }

// Stop cancels a running cycle and waits for it
func (j *PromotionJob) Stop() { j.runner.stop() }

// RunOnce runs a cycle if the lease can be taken. ran is false when another
// instance holds the lease.
func (j *PromotionJob) RunOnce(ctx context.Context) (res promotion.CycleResult, ran bool, err error) {
	if !j.lease.TryAcquire(ctx) {
		j.logger.Debug("Promotion lease held elsewhere; skipping cycle")
		incRun(promotionJobName, "skipped")
		return res, false, nil
	}
	defer j.lease.Release(context.WithoutCancel(ctx))

	res, err = j.engine.RunCycle(ctx)
	if err != nil {
		j.logger.WithError(err).Error("Promotion cycle failed")
		incRun(promotionJobName, "error")
		return res, true, err
	}
	incRun(promotionJobName, "ok")
	return res, true, nil
}
