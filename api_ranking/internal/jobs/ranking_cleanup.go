package jobs

import (
	"context"
	"time"

	"frameworks/api_ranking/internal/ranking"
	"frameworks/pkg/logging"
)

const (
	rankingCleanupJobName = "ranking_cleanup"
	liveIDBatchSize       = 500
)

// LiveIDFinder is satisfied by content.Store.
type LiveIDFinder interface {
	FindLiveIDs(ctx context.Context, ids []int64, cutoff time.Time) (map[int64]bool, error)
}

// RankingCleanupJob removes ranking members whose item is gone, deleted or
// older than the promotion window. Members that cannot be parsed or belong
// to another kind are removed on sight.
type RankingCleanupJob struct {
	ranking    ranking.Store
	items      LiveIDFinder
	namespace  string
	memberKind string
	window     time.Duration
	now        func() time.Time
	logger     logging.Logger
	runner     *runner
}

type RankingCleanupConfig struct {
	Ranking    ranking.Store
	Items      LiveIDFinder
	Namespace  string
	MemberKind string
	Window     time.Duration
	Schedule   Schedule
	Logger     logging.Logger
	Now        func() time.Time
}

type RankingCleanupResult struct {
	Scanned int
	Invalid int
	Foreign int
	Stale   int
	// Remaining is the ranking size after cleanup.
	Remaining int64
}

func (r RankingCleanupResult) Removed() int { return r.Invalid + r.Foreign + r.Stale }

func NewRankingCleanupJob(cfg RankingCleanupConfig) *RankingCleanupJob {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	j := &RankingCleanupJob{
		ranking:    cfg.Ranking,
		items:      cfg.Items,
		namespace:  cfg.Namespace,
		memberKind: cfg.MemberKind,
		window:     cfg.Window,
		now:        now,
		logger:     logging.OrDiscard(cfg.Logger),
	}
	j.runner = newRunner(rankingCleanupJobName, cfg.Schedule, true, cfg.Logger, func(ctx context.Context) {
		_, _ = j.RunOnce(ctx)
	})
	return j
}

func (j *RankingCleanupJob) Start() { j.runner.start() }
func (j *RankingCleanupJob) Stop()  { j.runner.stop() }

func (j *RankingCleanupJob) RunOnce(ctx context.Context) (RankingCleanupResult, error) {
	var res RankingCleanupResult
	log := j.logger.WithField("namespace", j.namespace)

	members, err := j.ranking.Range(ctx, j.namespace)
	if err != nil {
		log.WithError(err).Error("Failed to list ranking members")
		incRun(rankingCleanupJobName, "error")
		return res, err
	}
	res.Scanned = len(members)

	var invalid, foreign []string
	byID := make(map[int64]string, len(members))
	for _, m := range members {
		kind, id, err := ranking.ParseMember(m)
		switch {
		case err != nil:
			invalid = append(invalid, m)
		case kind != j.memberKind:
			foreign = append(foreign, m)
		default:
			byID[id] = m
		}
	}

	if err := j.remove(ctx, invalid...); err != nil {
		incRun(rankingCleanupJobName, "error")
		return res, err
	}
	res.Invalid = len(invalid)
	addRankingRemoved("invalid", len(invalid))

	if err := j.remove(ctx, foreign...); err != nil {
		incRun(rankingCleanupJobName, "error")
		return res, err
	}
	res.Foreign = len(foreign)
	addRankingRemoved("foreign", len(foreign))

	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	cutoff := j.now().Add(-j.window)

	for start := 0; start < len(ids); start += liveIDBatchSize {
		batch := ids[start:min(start+liveIDBatchSize, len(ids))]
		live, err := j.items.FindLiveIDs(ctx, batch, cutoff)
		if err != nil {
			log.WithError(err).Error("Failed to check live items")
			incRun(rankingCleanupJobName, "error")
			return res, err
		}
		var stale []string
		for _, id := range batch {
			if !live[id] {
				stale = append(stale, byID[id])
			}
		}
		if err := j.remove(ctx, stale...); err != nil {
			incRun(rankingCleanupJobName, "error")
			return res, err
		}
		res.Stale += len(stale)
		addRankingRemoved("stale", len(stale))
	}

	if n, err := j.ranking.Count(ctx, j.namespace); err != nil {
		log.WithError(err).Warn("Failed to count ranking members")
	} else {
		res.Remaining = n
	}

	incRun(rankingCleanupJobName, "ok")
	log.WithFields(logging.Fields{
		"scanned":   res.Scanned,
		"invalid":   res.Invalid,
		"foreign":   res.Foreign,
		"stale":     res.Stale,
		"remaining": res.Remaining,
	}).Info("Ranking cleanup complete")
	return res, nil
}

func (j *RankingCleanupJob) remove(ctx context.Context, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	if err := j.ranking.Remove(ctx, j.namespace, members...); err != nil {
		j.logger.WithError(err).WithField("count", len(members)).Error("Failed to remove ranking members")
		return err
	}
	return nil
}
