package jobs

import (
	"context"
	"time"

	"frameworks/api_ranking/internal/kv"
	"frameworks/pkg/logging"
)

const leaseKeyPrefix = "lookout:lease:"

// Lease is a best-effort single-runner lock held in the kv store. It only
// narrows the window for concurrent runs; correctness rests on the tier
// compare-and-set.
type Lease struct {
	store      kv.Store
	key        string
	instanceID string
	ttl        time.Duration
	logger     logging.Logger
}

func NewLease(store kv.Store, job, instanceID string, ttl time.Duration, logger logging.Logger) *Lease {
	return &Lease{
		store:      store,
		key:        leaseKeyPrefix + job,
		instanceID: instanceID,
		ttl:        ttl,
		logger:     logging.OrDiscard(logger),
	}
}

func (l *Lease) Key() string { return l.key }

// TryAcquire claims the lease or confirms this instance already holds it.
// A store outage is treated as acquired.
func (l *Lease) TryAcquire(ctx context.Context) bool {
	ok, err := l.store.SetNX(ctx, l.key, l.instanceID, l.ttl)
	if err != nil {
		l.logger.WithError(err).WithField("lease", l.key).Warn("Lease store unavailable; running without lease")
		return true
	}
	if ok {
		return true
	}
	holder, exists, err := l.store.Get(ctx, l.key)
	return err == nil && exists && holder == l.instanceID
}

// Release drops the lease if this instance still holds it.
func (l *Lease) Release(ctx context.Context) {
	if _, err := l.store.CompareAndDelete(ctx, l.key, l.instanceID); err != nil {
		l.logger.WithError(err).WithField("lease", l.key).Warn("Failed to release lease")
	}
}
