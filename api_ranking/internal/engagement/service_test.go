package engagement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"frameworks/api_ranking/internal/content"
	"frameworks/api_ranking/internal/kv"
	"frameworks/api_ranking/internal/notify"
)

type fakeCounters struct {
	mu    sync.Mutex
	items map[int64]content.Item
	err   error
}

func newFakeCounters(items ...content.Item) *fakeCounters {
	f := &fakeCounters{items: make(map[int64]content.Item)}
	for _, it := range items {
		f.items[it.ID] = it
	}
	return f
}

func (f *fakeCounters) IncrementCounter(_ context.Context, id int64, m content.Metric) (content.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return content.Item{}, f.err
	}
	it, ok := f.items[id]
	if !ok {
		return content.Item{}, content.ErrNotFound
	}
	switch m {
	case content.MetricLikes:
		it.Counters.Likes++
	case content.MetricReplies:
		it.Counters.Replies++
	case content.MetricViews:
		it.Counters.Views++
	case content.MetricCertifies:
		it.Counters.Certifies++
	}
	f.items[id] = it
	return it, nil
}

type recordingInvalidator struct {
	ids []int64
}

func (r *recordingInvalidator) Invalidate(_ context.Context, id int64) {
	r.ids = append(r.ids, id)
}

type call struct {
	userID     int64
	kind       notify.Kind
	contextKey string
}

type recordingNotifier struct {
	calls []call
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, userID int64, kind notify.Kind, contextKey string, _ notify.Payload) (notify.Outcome, error) {
	n.calls = append(n.calls, call{userID: userID, kind: kind, contextKey: contextKey})
	if n.err != nil {
		return "", n.err
	}
	return notify.Sent, nil
}

func newService(store CounterStore, cache Invalidator, n Notifier) *Service {
	return NewService(Config{
		Store:         store,
		Cache:         cache,
		Notifier:      n,
		MemberKind:    "place",
		MilestoneStep: 50,
	})
}

func TestMilestone(t *testing.T) {
	tests := []struct {
		prev, next, step int64
		want             int64
		ok               bool
	}{
		{49, 50, 50, 50, true},
		{50, 51, 50, 0, false},
		{99, 100, 50, 100, true},
		{0, 1, 50, 0, false},
		{48, 52, 50, 50, true},
		{10, 10, 50, 0, false},
		{49, 50, 0, 0, false},
	}
	for _, tt := range tests {
		got, ok := Milestone(tt.prev, tt.next, tt.step)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Milestone(%d, %d, %d) = %d, %v; want %d, %v", tt.prev, tt.next, tt.step, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLikeMilestoneScenario(t *testing.T) {
	store := newFakeCounters(content.Item{ID: 7, OwnerID: 1, Tier: content.TierPost, Counters: content.Counters{Likes: 49}})
	n := &recordingNotifier{}
	svc := newService(store, &recordingInvalidator{}, n)

	item, err := svc.Record(context.Background(), Event{ItemID: 7, ActorID: 2, Type: TypeLike})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if item.Counters.Likes != 50 {
		t.Fatalf("expected 50 likes, got %d", item.Counters.Likes)
	}
	if len(n.calls) != 1 || n.calls[0].kind != notify.KindLikeMilestone || n.calls[0].contextKey != "place:7:likes:50" || n.calls[0].userID != 1 {
		t.Fatalf("unexpected notifications %+v", n.calls)
	}

	if _, err := svc.Record(context.Background(), Event{ItemID: 7, ActorID: 3, Type: TypeLike}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(n.calls) != 1 {
		t.Fatalf("expected no notification at 51 likes, got %+v", n.calls)
	}
}

func TestReplyNotifiesOwner(t *testing.T) {
	store := newFakeCounters(content.Item{ID: 3, OwnerID: 1})
	n := &recordingNotifier{}
	cache := &recordingInvalidator{}
	svc := newService(store, cache, n)

	if _, err := svc.Record(context.Background(), Event{ItemID: 3, ActorID: 9, Type: TypeReply}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(n.calls) != 1 || n.calls[0].kind != notify.KindReply || n.calls[0].contextKey != "place:3:comment" {
		t.Fatalf("unexpected notifications %+v", n.calls)
	}
	if len(cache.ids) != 1 || cache.ids[0] != 3 {
		t.Fatalf("expected score invalidation, got %v", cache.ids)
	}
}

func TestCertifyNotifiesOnlyForChallenges(t *testing.T) {
	store := newFakeCounters(
		content.Item{ID: 1, OwnerID: 10, Tier: content.TierSpot},
		content.Item{ID: 2, OwnerID: 20, Tier: content.TierChallenge},
	)
	n := &recordingNotifier{}
	svc := newService(store, nil, n)

	for _, id := range []int64{1, 2} {
		if _, err := svc.Record(context.Background(), Event{ItemID: id, ActorID: 99, Type: TypeCertify}); err != nil {
			t.Fatalf("Record(%d): %v", id, err)
		}
	}
	if len(n.calls) != 1 || n.calls[0].kind != notify.KindChallenge || n.calls[0].contextKey != "place:2:arrival" || n.calls[0].userID != 20 {
		t.Fatalf("unexpected notifications %+v", n.calls)
	}
}

func TestViewsDoNotInvalidateOrNotify(t *testing.T) {
	store := newFakeCounters(content.Item{ID: 1, OwnerID: 10})
	n := &recordingNotifier{}
	cache := &recordingInvalidator{}
	svc := newService(store, cache, n)

	item, err := svc.Record(context.Background(), Event{ItemID: 1, ActorID: 2, Type: TypeView})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if item.Counters.Views != 1 || len(cache.ids) != 0 || len(n.calls) != 0 {
		t.Fatalf("unexpected side effects: item=%+v cache=%v notify=%+v", item, cache.ids, n.calls)
	}
}

func TestOwnerActionsDoNotNotify(t *testing.T) {
	store := newFakeCounters(content.Item{ID: 1, OwnerID: 10})
	n := &recordingNotifier{}
	svc := newService(store, nil, n)

	if _, err := svc.Record(context.Background(), Event{ItemID: 1, ActorID: 10, Type: TypeReply}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(n.calls) != 0 {
		t.Fatalf("expected no self notification, got %+v", n.calls)
	}
}

func TestRecordErrors(t *testing.T) {
	store := newFakeCounters(content.Item{ID: 1, OwnerID: 10})
	svc := newService(store, nil, &recordingNotifier{})

	if _, err := svc.Record(context.Background(), Event{ItemID: 1, Type: "share"}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	if _, err := svc.Record(context.Background(), Event{ItemID: 0, Type: TypeLike}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent for missing id, got %v", err)
	}
	if _, err := svc.Record(context.Background(), Event{ItemID: 5, Type: TypeLike}); !errors.Is(err, content.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	store.err = errors.New("db down")
	if _, err := svc.Record(context.Background(), Event{ItemID: 1, Type: TypeLike}); err == nil {
		t.Fatalf("expected store error")
	}
}

func TestNotificationFailureDoesNotFailRecord(t *testing.T) {
	store := newFakeCounters(content.Item{ID: 1, OwnerID: 10})
	svc := newService(store, nil, &recordingNotifier{err: errors.New("recipient lookup failed")})

	if _, err := svc.Record(context.Background(), Event{ItemID: 1, ActorID: 2, Type: TypeReply}); err != nil {
		t.Fatalf("expected notification failure to be swallowed, got %v", err)
	}
}

type memRepo struct {
	mu      sync.Mutex
	records []notify.Record
}

func (r *memRepo) Insert(_ context.Context, rec notify.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

type enabledRecipients struct{}

func (enabledRecipients) GetRecipient(_ context.Context, userID int64) (content.Recipient, error) {
	return content.Recipient{ID: userID, NotificationsEnabled: true}, nil
}

func TestChallengeArrivalSuppressesReplyThroughGate(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := &memRepo{}
	gate := notify.NewGate(notify.Config{
		Store:      kv.NewMemoryStore(func() time.Time { return now }),
		Repository: repo,
		TTL:        time.Minute,
	})
	store := newFakeCounters(content.Item{ID: 4, OwnerID: 1, Tier: content.TierChallenge})
	svc := newService(store, nil, notify.NewDispatcher(gate, enabledRecipients{}))

	if _, err := svc.Record(context.Background(), Event{ItemID: 4, ActorID: 2, Type: TypeCertify}); err != nil {
		t.Fatalf("certify: %v", err)
	}
	if _, err := svc.Record(context.Background(), Event{ItemID: 4, ActorID: 2, Type: TypeReply}); err != nil {
		t.Fatalf("reply: %v", err)
	}
	gate.Wait()

	if len(repo.records) != 1 || repo.records[0].Kind != notify.KindChallenge {
		t.Fatalf("expected only the challenge notification, got %+v", repo.records)
	}
}
