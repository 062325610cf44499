// Package scoring computes the decaying popularity score of content items.
//
//	engagement    = replies*Wr + likes*Wl + views*Wv + certifies*Wc
//	magnitude     = log10(max(engagement, 1))
//	ageWeight     = 1 - age/window*(1-floor), or floor once age >= window
//	timeComponent = max(0, createdAt - epoch) / K
//	score         = (magnitude + timeComponent) * ageWeight
package scoring

import (
	"context"
	"math"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"frameworks/api_ranking/internal/content"
	"frameworks/pkg/logging"
)

type Weights struct {
	Reply   int64
	Like    int64
	View    int64
	Certify int64
}

type Params struct {
	Weights     Weights
	DecayWindow time.Duration
	DecayFloor  float64
	Epoch       time.Time
	// TimeDivisor is K: seconds of recency worth one order of magnitude of engagement.
	TimeDivisor float64
}

func DefaultParams() Params {
	return Params{
		Weights:     Weights{Reply: 3, Like: 2, View: 1, Certify: 10},
		DecayWindow: 7 * 24 * time.Hour,
		DecayFloor:  0.2,
		Epoch:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		TimeDivisor: 45000,
	}
}

// Calculator scores items, memoizing through a Cache when one is given.
type Calculator struct {
	params Params
	cache  *Cache
	now    func() time.Time
	logger logging.Logger
	sf     singleflight.Group
}

type Option func(*Calculator)

func WithClock(now func() time.Time) Option {
	return func(c *Calculator) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(c *Calculator) { c.logger = logging.OrDiscard(logger) }
}

// NewCalculator builds a calculator. cache may be nil to always recompute.
func NewCalculator(params Params, cache *Cache, opts ...Option) *Calculator {
	c := &Calculator{
		params: params,
		cache:  cache,
		now:    time.Now,
		logger: logging.NewDiscardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Engagement is the weighted sum of the counters.
func (c *Calculator) Engagement(counters content.Counters) int64 {
	w := c.params.Weights
	return counters.Replies*w.Reply + counters.Likes*w.Like + counters.Views*w.View + counters.Certifies*w.Certify
}

// AgeWeight decays linearly from 1 to the floor over the decay window.
func (c *Calculator) AgeWeight(createdAt, now time.Time) float64 {
	floor := c.params.DecayFloor
	window := c.params.DecayWindow
	age := now.Sub(createdAt)
	if age <= 0 {
		return 1
	}
	if window <= 0 || age >= window {
		return floor
	}
	return 1 - (float64(age)/float64(window))*(1-floor)
}

func (c *Calculator) timeComponent(createdAt time.Time) float64 {
	if c.params.TimeDivisor <= 0 {
		return 0
	}
	secs := createdAt.Sub(c.params.Epoch).Seconds()
	if secs < 0 {
		secs = 0
	}
	return secs / c.params.TimeDivisor
}

// Compute scores item at now without touching the cache.
func (c *Calculator) Compute(item content.Item, now time.Time) float64 {
	engagement := c.Engagement(item.Counters)
	magnitude := math.Log10(math.Max(float64(engagement), 1))
	score := (magnitude + c.timeComponent(item.CreatedAt)) * c.AgeWeight(item.CreatedAt, now)
	if math.IsNaN(score) || math.IsInf(score, 0) || score < 0 {
		return 0
	}
	return score
}

// Score returns the cached score when it was computed from the item's
// current counters, and recomputes otherwise.
func (c *Calculator) Score(ctx context.Context, item content.Item) float64 {
	if c.cache != nil {
		if score, ok := c.cache.Get(ctx, item.ID); ok {
			if snap, ok := c.cache.GetCounters(ctx, item.ID); ok && snap == item.Counters {
				incCacheLookup("hit")
				c.logger.WithField("item_id", item.ID).Debug("Score cache hit")
				return score
			}
			incCacheLookup("stale")
		} else {
			incCacheLookup("miss")
		}
	}
	return c.Recompute(ctx, item)
}

// Recompute ignores any cached value and refreshes the cache.
func (c *Calculator) Recompute(ctx context.Context, item content.Item) float64 {
	key := strconv.FormatInt(item.ID, 10) + ":" + countersFingerprint(item.Counters)
	v, _, _ := c.sf.Do(key, func() (any, error) {
		score := c.Compute(item, c.now())
		if c.cache != nil {
			c.cache.Set(ctx, item.ID, score)
			c.cache.SetCounters(ctx, item.ID, item.Counters)
		}
		return score, nil
	})
	return v.(float64)
}

func countersFingerprint(cn content.Counters) string {
	return strconv.FormatInt(cn.Likes, 10) + "/" + strconv.FormatInt(cn.Replies, 10) + "/" +
		strconv.FormatInt(cn.Views, 10) + "/" + strconv.FormatInt(cn.Certifies, 10)
}
