// Package promotion runs the scheduled promotion cycle: score every recent
// item, refresh the ranking index, and move eligible items one tier forward.
package promotion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"frameworks/api_ranking/internal/content"
	"frameworks/api_ranking/internal/kv"
	"frameworks/api_ranking/internal/notify"
	"frameworks/api_ranking/internal/ranking"
	"frameworks/pkg/logging"
)

// ItemStore is the slice of content.Store the engine needs.
type ItemStore interface {
	FindActiveCreatedAfter(ctx context.Context, cutoff time.Time) ([]content.Item, error)
	UpdateTier(ctx context.Context, id int64, from, to content.Tier) error
}

// Scorer returns an item's current score, from cache when its counters are
// unchanged. *scoring.Calculator satisfies it.
type Scorer interface {
	Score(ctx context.Context, item content.Item) float64
}

// Notifier sends a gated notification to a user. *notify.Dispatcher satisfies it.
type Notifier interface {
	Notify(ctx context.Context, userID int64, kind notify.Kind, contextKey string, payload notify.Payload) (notify.Outcome, error)
}

// Publisher fans out promotion events. Optional.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Event is broadcast after a successful tier transition.
type Event struct {
	CycleID string       `json:"cycle_id"`
	ItemID  int64        `json:"item_id"`
	OwnerID int64        `json:"owner_id"`
	From    content.Tier `json:"from"`
	To      content.Tier `json:"to"`
	Score   float64      `json:"score"`
	At      time.Time    `json:"at"`
}

type Config struct {
	Namespace  string
	MemberKind string

	SpotThreshold        float64
	ChallengeTopPercent  float64
	ChallengeMaxPerCycle int

	// Window bounds candidate age; older items are never promoted.
	Window time.Duration
	// Interval is the cycle cadence; promotion markers live this long.
	Interval time.Duration
	TopK     int64
	Workers  int
}

type Deps struct {
	Items     ItemStore
	Scorer    Scorer
	Ranking   ranking.Store
	Markers   kv.Store
	Notifier  Notifier
	Publisher Publisher
	Logger    logging.Logger
	Now       func() time.Time
}

type Engine struct {
	cfg       Config
	items     ItemStore
	scorer    Scorer
	ranking   ranking.Store
	markers   kv.Store
	notifier  Notifier
	publisher Publisher
	logger    logging.Logger
	now       func() time.Time
}

func NewEngine(cfg Config, deps Deps) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Engine{
		cfg:       cfg,
		items:     deps.Items,
		scorer:    deps.Scorer,
		ranking:   deps.Ranking,
		markers:   deps.Markers,
		notifier:  deps.Notifier,
		publisher: deps.Publisher,
		logger:    logging.OrDiscard(deps.Logger),
		now:       deps.Now,
	}
}

// CycleResult summarises one RunCycle.
type CycleResult struct {
	CycleID             string
	Candidates          int
	Scored              int
	Skipped             int
	PromotedToSpot      int
	PromotedToChallenge int
	Failures            int
	Duration            time.Duration
}

type tally struct {
	skipped, toSpot, toChallenge, failures atomic.Int64
}

type promoteStatus int

const (
	promoted promoteStatus = iota
	// alreadyClaimed means another evaluation holds the item's marker.
	alreadyClaimed
	promoteFailed
)

func (t *tally) count(st promoteStatus, done *atomic.Int64) {
	switch st {
	case promoted:
		done.Add(1)
	case alreadyClaimed:
		t.skipped.Add(1)
	default:
		t.failures.Add(1)
	}
}

type scoredItem struct {
	item   content.Item
	score  float64
	marked bool
}

// MarkerKey is the idempotency marker of one item.
func MarkerKey(itemID int64) string {
	return "lookout:promotion:" + strconv.FormatInt(itemID, 10)
}

// RunCycle evaluates every candidate once. It only returns an error when the
// candidate set cannot be loaded; per-item failures are logged and counted.
func (e *Engine) RunCycle(ctx context.Context) (CycleResult, error) {
	start := e.now()
	res := CycleResult{CycleID: uuid.NewString()}
	log := e.logger.WithField("cycle_id", res.CycleID)

	items, err := e.items.FindActiveCreatedAfter(ctx, start.Add(-e.cfg.Window))
	if err != nil {
		return res, fmt.Errorf("load promotion candidates: %w", err)
	}
	res.Candidates = len(items)

	var t tally
	scored := make([]scoredItem, len(items))

	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	for i := range items {
		g.Go(func() error {
			scored[i] = e.evaluate(ctx, res.CycleID, items[i], &t)
			return nil
		})
	}
	_ = g.Wait()
	res.Scored = len(scored)

	var pg errgroup.Group
	pg.SetLimit(e.cfg.Workers)
	for _, s := range e.challengeEligible(scored) {
		pg.Go(func() error {
			t.count(e.promote(ctx, res.CycleID, s.item, content.TierChallenge, s.score), &t.toChallenge)
			return nil
		})
	}
	_ = pg.Wait()

	res.Skipped = int(t.skipped.Load())
	res.PromotedToSpot = int(t.toSpot.Load())
	res.PromotedToChallenge = int(t.toChallenge.Load())
	res.Failures = int(t.failures.Load())
	res.Duration = e.now().Sub(start)
	observeCycle(res.Duration.Seconds(), res.Candidates)

	log.WithFields(logging.Fields{
		"candidates":            res.Candidates,
		"skipped":               res.Skipped,
		"promoted_to_spot":      res.PromotedToSpot,
		"promoted_to_challenge": res.PromotedToChallenge,
		"failures":              res.Failures,
		"duration":              res.Duration.String(),
	}).Info("Promotion cycle complete")
	return res, nil
}

// evaluate scores one item, refreshes its ranking entry and handles the
// threshold promotion POST -> SPOT.
func (e *Engine) evaluate(ctx context.Context, cycleID string, item content.Item, t *tally) scoredItem {
	log := e.logger.WithFields(logging.Fields{"cycle_id": cycleID, "item_id": item.ID})
	score := e.scorer.Score(ctx, item)
	member := ranking.Member(e.cfg.MemberKind, item.ID)

	if err := e.ranking.Upsert(ctx, e.cfg.Namespace, member, score); err != nil {
		log.WithError(err).Warn("Failed to update ranking")
	} else {
		e.checkTopRanked(ctx, item, member)
	}

	out := scoredItem{item: item, score: score}

	_, marked, err := e.markers.Get(ctx, MarkerKey(item.ID))
	if err != nil {
		log.WithError(err).Warn("Promotion marker unavailable; relying on tier compare-and-set")
	}
	if marked {
		out.marked = true
		t.skipped.Add(1)
		return out
	}

	if item.Tier == content.TierPost && score >= e.cfg.SpotThreshold {
		st := e.promote(ctx, cycleID, item, content.TierSpot, score)
		t.count(st, &t.toSpot)
		if st != promoteFailed {
			out.marked = true
		}
	}
	return out
}

func (e *Engine) checkTopRanked(ctx context.Context, item content.Item, member string) {
	if e.cfg.TopK <= 0 || e.notifier == nil {
		return
	}
	rank, ok, err := e.ranking.ReverseRank(ctx, e.cfg.Namespace, member)
	if err != nil || !ok || rank >= e.cfg.TopK {
		return
	}
	payload := notify.Payload{
		Title: "You're in the top " + strconv.FormatInt(e.cfg.TopK, 10),
		Body:  "Your " + e.cfg.MemberKind + " is one of the most popular right now.",
		Data:  map[string]string{"item_id": strconv.FormatInt(item.ID, 10), "rank": strconv.FormatInt(rank+1, 10)},
	}
	if _, err := e.notifier.Notify(ctx, item.OwnerID, notify.KindTopRanked, member+":top", payload); err != nil {
		e.logger.WithError(err).WithField("item_id", item.ID).Warn("Top ranked notification failed")
	}
}

// challengeEligible picks the SPOT items that move to CHALLENGE: the top
// ceil(n*P) of the cohort by score (ties to the lower id), capped per
// interval. The cohort is every SPOT item plus every CHALLENGE item whose
// promotion marker is still live, so items promoted earlier in the interval
// keep their slot and their share of the cap. Marked items are never
// promoted.
func (e *Engine) challengeEligible(scored []scoredItem) []scoredItem {
	var cohort []scoredItem
	recent := 0
	for _, s := range scored {
		switch {
		case s.item.Tier == content.TierSpot:
			cohort = append(cohort, s)
		case s.item.Tier == content.TierChallenge && s.marked:
			cohort = append(cohort, s)
			recent++
		}
	}
	if len(cohort) == 0 || e.cfg.ChallengeTopPercent <= 0 {
		return nil
	}

	sort.Slice(cohort, func(i, j int) bool {
		if cohort[i].score != cohort[j].score {
			return cohort[i].score > cohort[j].score
		}
		return cohort[i].item.ID < cohort[j].item.ID
	})

	top := int(math.Ceil(float64(len(cohort)) * e.cfg.ChallengeTopPercent))
	if top > len(cohort) {
		top = len(cohort)
	}

	budget := -1
	if e.cfg.ChallengeMaxPerCycle > 0 {
		budget = e.cfg.ChallengeMaxPerCycle - recent
		if budget <= 0 {
			return nil
		}
	}

	var out []scoredItem
	for _, s := range cohort[:top] {
		if budget >= 0 && len(out) >= budget {
			break
		}
		if s.marked {
			continue
		}
		out = append(out, s)
	}
	return out
}

// promote claims the item's marker, moves its tier and notifies the owner.
func (e *Engine) promote(ctx context.Context, cycleID string, item content.Item, to content.Tier, score float64) promoteStatus {
	from := item.Tier
	log := e.logger.WithFields(logging.Fields{
		"cycle_id": cycleID,
		"item_id":  item.ID,
		"from":     from,
		"to":       to,
	})

	if err := content.Transition(from, to); err != nil {
		log.WithError(err).Error("Refusing invalid promotion")
		incPromotion(string(from), string(to), "error")
		return promoteFailed
	}

	key := MarkerKey(item.ID)
	claimed, err := e.markers.SetNX(ctx, key, cycleID, e.cfg.Interval)
	if err != nil {
		log.WithError(err).Warn("Promotion marker unavailable; relying on tier compare-and-set")
	} else if !claimed {
		log.Debug("Item already claimed by another evaluation")
		incPromotion(string(from), string(to), "claimed")
		return alreadyClaimed
	}

	if err := e.items.UpdateTier(ctx, item.ID, from, to); err != nil {
		if claimed {
			if _, relErr := e.markers.CompareAndDelete(ctx, key, cycleID); relErr != nil {
				log.WithError(relErr).Warn("Failed to release promotion marker")
			}
		}
		if errors.Is(err, content.ErrTierConflict) {
			log.WithError(err).Info("Item tier changed underneath the cycle")
			incPromotion(string(from), string(to), "conflict")
		} else {
			log.WithError(err).Error("Failed to persist promotion; item retried next cycle")
			incPromotion(string(from), string(to), "error")
		}
		return promoteFailed
	}

	incPromotion(string(from), string(to), "ok")
	log.WithField("score", score).Info("Item promoted")

	if e.publisher != nil {
		ev := Event{CycleID: cycleID, ItemID: item.ID, OwnerID: item.OwnerID, From: from, To: to, Score: score, At: e.now().UTC()}
		if err := e.publisher.Publish(ctx, ev); err != nil {
			log.WithError(err).Warn("Failed to publish promotion event")
		}
	}

	e.notifyPromotion(ctx, item, to, log)
	return promoted
}

func (e *Engine) notifyPromotion(ctx context.Context, item content.Item, to content.Tier, log logging.Entry) {
	if e.notifier == nil {
		return
	}

	kind := notify.KindSpotPromoted
	payload := notify.Payload{
		Title: "Your post became a spot",
		Body:  "People are noticing. Your post was promoted to a spot.",
	}
	if to == content.TierChallenge {
		kind = notify.KindChallengePromoted
		payload = notify.Payload{
			Title: "Your spot is now a challenge",
			Body:  "Your spot made it to the top and is now a challenge.",
		}
	}
	payload.Data = map[string]string{"item_id": strconv.FormatInt(item.ID, 10), "tier": string(to)}

	// Tier stays committed whatever happens here.
	if _, err := e.notifier.Notify(ctx, item.OwnerID, kind, ranking.Member(e.cfg.MemberKind, item.ID), payload); err != nil {
		log.WithError(err).Warn("Promotion notification failed")
	}
}
