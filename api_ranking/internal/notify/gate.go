// Package notify enforces at-most-one notification per (recipient, kind,
// context) within a TTL window and records every notification it lets
// through. Push delivery is best-effort and never affects the outcome.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"frameworks/api_ranking/internal/content"
	"frameworks/api_ranking/internal/kv"
	"frameworks/pkg/logging"
)

type Kind string

const (
	KindReply             Kind = "REPLY"
	KindChallenge         Kind = "CHALLENGE"
	KindLikeMilestone     Kind = "LIKE_MILESTONE"
	KindSpotPromoted      Kind = "SPOT_PROMOTED"
	KindChallengePromoted Kind = "CHALLENGE_PROMOTED"
	KindTopRanked         Kind = "TOP_RANKED"
)

// Outcome is the gate's decision.
type Outcome string

const (
	Sent                Outcome = "sent"
	SuppressedDisabled  Outcome = "suppressed_disabled"
	SuppressedDuplicate Outcome = "suppressed_duplicate"
	SuppressedCrossKind Outcome = "suppressed_cross_kind"
)

func (o Outcome) Sent() bool { return o == Sent }

// ErrRecordFailed means the notification record could not be persisted; no
// dedup entry is left behind so a retry can send.
var ErrRecordFailed = errors.New("notification record not persisted")

// Payload is what the recipient sees.
type Payload struct {
	Title string
	Body  string
	Data  map[string]string
}

// Pusher delivers a push notification. pushgw.Client satisfies it.
type Pusher interface {
	Send(ctx context.Context, target, title, body string) error
}

// RecipientSource resolves a user's notification preferences.
type RecipientSource interface {
	GetRecipient(ctx context.Context, userID int64) (content.Recipient, error)
}

type Config struct {
	Store      kv.Store
	Repository Repository
	// Pusher may be nil; records are still written.
	Pusher      Pusher
	TTL         time.Duration
	PushTimeout time.Duration
	Logger      logging.Logger
}

type Gate struct {
	store       kv.Store
	repo        Repository
	pusher      Pusher
	ttl         time.Duration
	kindTTL     map[Kind]time.Duration
	pushTimeout time.Duration
	logger      logging.Logger
	now         func() time.Time
	wg          sync.WaitGroup
}

type Option func(*Gate)

// WithKindTTL overrides the dedup window for one kind.
func WithKindTTL(kind Kind, ttl time.Duration) Option {
	return func(g *Gate) { g.kindTTL[kind] = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

func NewGate(cfg Config, opts ...Option) *Gate {
	g := &Gate{
		store:       cfg.Store,
		repo:        cfg.Repository,
		pusher:      cfg.Pusher,
		ttl:         cfg.TTL,
		kindTTL:     make(map[Kind]time.Duration),
		pushTimeout: cfg.PushTimeout,
		logger:      logging.OrDiscard(cfg.Logger),
		now:         time.Now,
	}
	if g.ttl <= 0 {
		g.ttl = 60 * time.Second
	}
	if g.pushTimeout <= 0 {
		g.pushTimeout = 10 * time.Second
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) ttlFor(kind Kind) time.Duration {
	if ttl, ok := g.kindTTL[kind]; ok && ttl > 0 {
		return ttl
	}
	return g.ttl
}

// DedupKey is the cache key guarding one (recipient, kind, context).
func DedupKey(recipientID int64, kind Kind, contextKey string) string {
	return "lookout:notify:" + strconv.FormatInt(recipientID, 10) + ":" + string(kind) + ":" + contextKey
}

// CoarseContext keeps the first two colon-separated segments.
func CoarseContext(contextKey string) string {
	parts := strings.SplitN(contextKey, ":", 3)
	if len(parts) < 3 {
		return contextKey
	}
	return parts[0] + ":" + parts[1]
}

// TryNotify records and pushes a notification unless an equivalent one was
// sent within the window. A cache outage lets the notification through.
func (g *Gate) TryNotify(ctx context.Context, recipient content.Recipient, kind Kind, contextKey string, payload Payload) (Outcome, error) {
	log := g.logger.WithFields(logging.Fields{
		"recipient_id": recipient.ID,
		"kind":         kind,
		"context_key":  contextKey,
	})

	if !recipient.NotificationsEnabled {
		incNotification(kind, string(SuppressedDisabled))
		return SuppressedDisabled, nil
	}

	if kind == KindReply {
		coarse := DedupKey(recipient.ID, KindChallenge, CoarseContext(contextKey))
		_, exists, err := g.store.Get(ctx, coarse)
		if err != nil {
			log.WithError(err).Warn("Dedup cache unavailable for cross-kind check; duplicate notification possible")
		}
		if exists {
			incNotification(kind, string(SuppressedCrossKind))
			return SuppressedCrossKind, nil
		}
	}

	key := DedupKey(recipient.ID, kind, contextKey)
	ttl := g.ttlFor(kind)
	claimed, claimErr := g.store.SetNX(ctx, key, "1", ttl)
	if claimErr != nil {
		log.WithError(claimErr).Warn("Dedup cache unavailable; treating as not yet sent, duplicate notification possible")
	} else if !claimed {
		incNotification(kind, string(SuppressedDuplicate))
		return SuppressedDuplicate, nil
	}

	rec := Record{
		ID:          uuid.New(),
		RecipientID: recipient.ID,
		Kind:        kind,
		ContextKey:  contextKey,
		Title:       payload.Title,
		Body:        payload.Body,
		Data:        payload.Data,
		CreatedAt:   g.now().UTC(),
	}
	if err := g.repo.Insert(ctx, rec); err != nil {
		if claimed {
			if delErr := g.store.Delete(ctx, key); delErr != nil {
				log.WithError(delErr).Warn("Failed to release dedup claim")
			}
		}
		log.WithError(err).Error("Failed to persist notification")
		incNotification(kind, "record_failed")
		return "", fmt.Errorf("%w: %w", ErrRecordFailed, err)
	}

	if claimErr != nil {
		// Second chance at the window now that the record exists.
		if err := g.store.Set(ctx, key, "1", ttl); err != nil {
			log.WithError(err).Debug("Dedup entry still unavailable after record")
		}
	}

	if kind == KindChallenge {
		coarse := CoarseContext(contextKey)
		if coarse != contextKey {
			if err := g.store.Set(ctx, DedupKey(recipient.ID, KindChallenge, coarse), "1", ttl); err != nil {
				log.WithError(err).Warn("Failed to set cross-kind suppression entry")
			}
		}
	}

	if g.pusher != nil && recipient.HasPushTarget() {
		g.push(ctx, recipient, rec, log)
	}

	incNotification(kind, string(Sent))
	return Sent, nil
}

func (g *Gate) push(ctx context.Context, recipient content.Recipient, rec Record, log logging.Entry) {
	// Detached from the caller: the push outlives the request that caused it.
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.pushTimeout)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer cancel()

		err := g.pusher.Send(pushCtx, recipient.PushToken, rec.Title, rec.Body)
		switch {
		case err == nil:
			incPushDelivery("ok")
			log.WithField("notification_id", rec.ID).Debug("Push delivered")
		case errors.Is(pushCtx.Err(), context.DeadlineExceeded):
			incPushDelivery("timeout")
			log.WithError(err).Warn("Push delivery timed out")
		default:
			incPushDelivery("error")
			log.WithError(err).Warn("Push delivery failed")
		}
	}()
}

// Dispatcher notifies users by id, resolving their preferences first.
type Dispatcher struct {
	gate       *Gate
	recipients RecipientSource
}

func NewDispatcher(gate *Gate, recipients RecipientSource) *Dispatcher {
	return &Dispatcher{gate: gate, recipients: recipients}
}

func (d *Dispatcher) Notify(ctx context.Context, userID int64, kind Kind, contextKey string, payload Payload) (Outcome, error) {
	recipient, err := d.recipients.GetRecipient(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("resolve recipient %d: %w", userID, err)
	}
	return d.gate.TryNotify(ctx, recipient, kind, contextKey, payload)
}

// Wait blocks until in-flight pushes finish. Call on shutdown.
func (g *Gate) Wait() {
	g.wg.Wait()
}
