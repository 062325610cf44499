package jobs

import (
	"context"
	"time"

	"frameworks/pkg/logging"
)

const scoreSweepJobName = "score_cache_sweep"

// ScoreCache is the part of scoring.Cache the sweep needs.
type ScoreCache interface {
	CachedItemIDs(ctx context.Context) ([]int64, error)
	Invalidate(ctx context.Context, id int64)
}

// Sweeper drops expired entries from an in-process store.
type Sweeper interface {
	Sweep() int
}

// ScoreCacheSweepJob invalidates cached scores of items that no longer
// exist, were deleted or aged out of the promotion window.
type ScoreCacheSweepJob struct {
	cache   ScoreCache
	items   LiveIDFinder
	sweeper Sweeper
	window  time.Duration
	now     func() time.Time
	logger  logging.Logger
	runner  *runner
}

type ScoreCacheSweepConfig struct {
	Cache ScoreCache
	Items LiveIDFinder
	// Sweeper is set when the kv store is in-process.
	Sweeper  Sweeper
	Window   time.Duration
	Schedule Schedule
	Logger   logging.Logger
	Now      func() time.Time
}

func NewScoreCacheSweepJob(cfg ScoreCacheSweepConfig) *ScoreCacheSweepJob {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	j := &ScoreCacheSweepJob{
		cache:   cfg.Cache,
		items:   cfg.Items,
		sweeper: cfg.Sweeper,
		window:  cfg.Window,
		now:     now,
		logger:  logging.OrDiscard(cfg.Logger),
	}
	j.runner = newRunner(scoreSweepJobName, cfg.Schedule, false, cfg.Logger, func(ctx context.Context) {
		_, _ = j.RunOnce(ctx)
	})
	return j
}

func (j *ScoreCacheSweepJob) Start() { j.runner.start() }
func (j *ScoreCacheSweepJob) Stop()  { j.runner.stop() }

// RunOnce returns the number of invalidated items.
func (j *ScoreCacheSweepJob) RunOnce(ctx context.Context) (int, error) {
	if j.sweeper != nil {
		if n := j.sweeper.Sweep(); n > 0 {
			j.logger.WithField("expired", n).Debug("Swept expired in-process entries")
		}
	}

	ids, err := j.cache.CachedItemIDs(ctx)
	if err != nil {
		j.logger.WithError(err).Warn("Failed to list cached scores")
		incRun(scoreSweepJobName, "error")
		return 0, err
	}

	cutoff := j.now().Add(-j.window)
	invalidated := 0
	for start := 0; start < len(ids); start += liveIDBatchSize {
		batch := ids[start:min(start+liveIDBatchSize, len(ids))]
		live, err := j.items.FindLiveIDs(ctx, batch, cutoff)
		if err != nil {
			j.logger.WithError(err).Error("Failed to check live items")
			incRun(scoreSweepJobName, "error")
			return invalidated, err
		}
		for _, id := range batch {
			if !live[id] {
				j.cache.Invalidate(ctx, id)
				invalidated++
			}
		}
	}

	addScoresInvalidated(invalidated)
	incRun(scoreSweepJobName, "ok")
	j.logger.WithFields(logging.Fields{
		"cached":      len(ids),
		"invalidated": invalidated,
	}).Info("Score cache sweep complete")
	return invalidated, nil
}
