package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"frameworks/api_ranking/internal/content"
	"frameworks/api_ranking/internal/kv"
	"frameworks/pkg/logging"
)

const (
	scoreKeyPrefix    = "lookout:score:"
	countersKeyPrefix = "lookout:counters:"
)

func scoreKey(id int64) string    { return scoreKeyPrefix + strconv.FormatInt(id, 10) }
func countersKey(id int64) string { return countersKeyPrefix + strconv.FormatInt(id, 10) }

// Cache memoizes per-item scores and the counters they were computed from.
// It fails open: every store error is logged and reported as a miss.
type Cache struct {
	store  kv.Store
	ttl    time.Duration
	logger logging.Logger
}

func NewCache(store kv.Store, ttl time.Duration, logger logging.Logger) *Cache {
	return &Cache{store: store, ttl: ttl, logger: logging.OrDiscard(logger)}
}

func (c *Cache) TTL() time.Duration { return c.ttl }

func (c *Cache) warn(err error, op string, id int64) {
	c.logger.WithError(err).WithFields(logging.Fields{
		"op":      op,
		"item_id": id,
	}).Warn("Score cache unavailable, falling back to recompute")
}

func (c *Cache) Get(ctx context.Context, id int64) (float64, bool) {
	raw, ok, err := c.store.Get(ctx, scoreKey(id))
	if err != nil {
		c.warn(err, "get", id)
		return 0, false
	}
	if !ok {
		return 0, false
	}
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		c.logger.WithField("item_id", id).Warn("Discarding unparseable cached score")
		c.Invalidate(ctx, id)
		return 0, false
	}
	return score, true
}

func (c *Cache) Set(ctx context.Context, id int64, score float64) {
	if err := c.store.Set(ctx, scoreKey(id), strconv.FormatFloat(score, 'g', -1, 64), c.ttl); err != nil {
		c.warn(err, "set", id)
	}
}

// Invalidate drops both the score and its counter snapshot.
func (c *Cache) Invalidate(ctx context.Context, id int64) {
	if err := c.store.Delete(ctx, scoreKey(id), countersKey(id)); err != nil {
		c.warn(err, "invalidate", id)
	}
}

func (c *Cache) GetCounters(ctx context.Context, id int64) (content.Counters, bool) {
	raw, ok, err := c.store.Get(ctx, countersKey(id))
	if err != nil {
		c.warn(err, "get_counters", id)
		return content.Counters{}, false
	}
	if !ok {
		return content.Counters{}, false
	}
	var counters content.Counters
	if err := json.Unmarshal([]byte(raw), &counters); err != nil {
		return content.Counters{}, false
	}
	return counters, true
}

func (c *Cache) SetCounters(ctx context.Context, id int64, counters content.Counters) {
	raw, err := json.Marshal(counters)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, countersKey(id), string(raw), c.ttl); err != nil {
		c.warn(err, "set_counters", id)
	}
}

// CachedItemIDs lists items with a cached score. Maintenance only.
func (c *Cache) CachedItemIDs(ctx context.Context) ([]int64, error) {
	keys, err := c.store.Keys(ctx, scoreKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("list cached scores: %w", err)
	}
	ids := make([]int64, 0, len(keys))
	for _, key := range keys {
		id, err := strconv.ParseInt(strings.TrimPrefix(key, scoreKeyPrefix), 10, 64)
		if err != nil {
			// Not ours to interpret; drop it so it stops showing up.
			_ = c.store.Delete(ctx, key)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
