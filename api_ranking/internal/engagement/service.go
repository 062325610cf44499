// Package engagement records likes, replies, views and certifications and
// raises the owner notifications they trigger.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"frameworks/api_ranking/internal/content"
	"frameworks/api_ranking/internal/notify"
	"frameworks/api_ranking/internal/ranking"
	"frameworks/pkg/logging"
)

var ErrInvalidEvent = errors.New("invalid engagement event")

type Type string

const (
	TypeLike    Type = "like"
	TypeReply   Type = "reply"
	TypeView    Type = "view"
	TypeCertify Type = "certify"
)

var typeMetrics = map[Type]content.Metric{
	TypeLike:    content.MetricLikes,
	TypeReply:   content.MetricReplies,
	TypeView:    content.MetricViews,
	TypeCertify: content.MetricCertifies,
}

// Event is one engagement action on an item.
type Event struct {
	ItemID  int64     `json:"item_id"`
	ActorID int64     `json:"actor_id"`
	Type    Type      `json:"type"`
	At      time.Time `json:"at,omitempty"`
}

func (e Event) validate() (content.Metric, error) {
	m, ok := typeMetrics[e.Type]
	if !ok {
		return "", fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	if e.ItemID <= 0 {
		return "", fmt.Errorf("%w: item id %d", ErrInvalidEvent, e.ItemID)
	}
	return m, nil
}

// CounterStore is the write side of content.Store.
type CounterStore interface {
	IncrementCounter(ctx context.Context, id int64, m content.Metric) (content.Item, error)
}

// Invalidator drops cached scores. *scoring.Cache satisfies it.
type Invalidator interface {
	Invalidate(ctx context.Context, id int64)
}

type Notifier interface {
	Notify(ctx context.Context, userID int64, kind notify.Kind, contextKey string, payload notify.Payload) (notify.Outcome, error)
}

type Config struct {
	Store         CounterStore
	Cache         Invalidator
	Notifier      Notifier
	MemberKind    string
	MilestoneStep int64
	Logger        logging.Logger
}

type Service struct {
	store     CounterStore
	cache     Invalidator
	notifier  Notifier
	kind      string
	milestone int64
	logger    logging.Logger
}

func NewService(cfg Config) *Service {
	if cfg.MilestoneStep <= 0 {
		cfg.MilestoneStep = 50
	}
	return &Service{
		store:     cfg.Store,
		cache:     cfg.Cache,
		notifier:  cfg.Notifier,
		kind:      cfg.MemberKind,
		milestone: cfg.MilestoneStep,
		logger:    logging.OrDiscard(cfg.Logger),
	}
}

// Record persists one engagement event and returns the updated item. The
// counter write is the only step whose failure is returned; notification
// failures are logged.
func (s *Service) Record(ctx context.Context, ev Event) (content.Item, error) {
	metric, err := ev.validate()
	if err != nil {
		incEvent(string(ev.Type), "invalid")
		return content.Item{}, err
	}

	item, err := s.store.IncrementCounter(ctx, ev.ItemID, metric)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			incEvent(string(ev.Type), "not_found")
		} else {
			incEvent(string(ev.Type), "error")
		}
		return content.Item{}, fmt.Errorf("record %s on item %d: %w", ev.Type, ev.ItemID, err)
	}
	incEvent(string(ev.Type), "ok")

	// Views are too frequent to be material for the cached score.
	if ev.Type != TypeView && s.cache != nil {
		s.cache.Invalidate(ctx, item.ID)
	}

	if s.notifier == nil || ev.ActorID == item.OwnerID {
		return item, nil
	}

	member := ranking.Member(s.kind, item.ID)
	switch ev.Type {
	case TypeLike:
		s.checkMilestone(ctx, item, member)
	case TypeReply:
		s.notify(ctx, item, notify.KindReply, member+":comment", notify.Payload{
			Title: "New reply",
			Body:  "Someone replied to your " + s.kind + ".",
			Data:  map[string]string{"item_id": strconv.FormatInt(item.ID, 10)},
		})
	case TypeCertify:
		if item.Tier == content.TierChallenge {
			s.notify(ctx, item, notify.KindChallenge, member+":arrival", notify.Payload{
				Title: "Challenge completed",
				Body:  "Someone completed your challenge.",
				Data:  map[string]string{"item_id": strconv.FormatInt(item.ID, 10)},
			})
		}
	}
	return item, nil
}

// Milestone reports the like milestone crossed when the count moved from
// prev to next, if any.
func Milestone(prev, next, step int64) (int64, bool) {
	if step <= 0 || next <= prev || prev/step >= next/step {
		return 0, false
	}
	return (next / step) * step, true
}

func (s *Service) checkMilestone(ctx context.Context, item content.Item, member string) {
	likes := item.Counters.Likes
	milestone, ok := Milestone(likes-1, likes, s.milestone)
	if !ok {
		return
	}
	n := strconv.FormatInt(milestone, 10)
	s.notify(ctx, item, notify.KindLikeMilestone, member+":likes:"+n, notify.Payload{
		Title: n + " likes",
		Body:  "Your " + s.kind + " just reached " + n + " likes.",
		Data:  map[string]string{"item_id": strconv.FormatInt(item.ID, 10), "likes": n},
	})
}

func (s *Service) notify(ctx context.Context, item content.Item, kind notify.Kind, contextKey string, payload notify.Payload) {
	outcome, err := s.notifier.Notify(ctx, item.OwnerID, kind, contextKey, payload)
	if err != nil {
		s.logger.WithError(err).WithFields(logging.Fields{
			"item_id":     item.ID,
			"kind":        kind,
			"context_key": contextKey,
		}).Warn("Engagement notification failed")
		return
	}
	s.logger.WithFields(logging.Fields{
		"item_id": item.ID,
		"kind":    kind,
		"outcome": outcome,
	}).Debug("Engagement notification handled")
}
