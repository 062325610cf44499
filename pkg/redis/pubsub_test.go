package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

type testMessage struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func TestTypedPubSubRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ps := NewTypedPubSub[testMessage](client, "lookout:test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan testMessage, 1)
	done := make(chan error, 1)
	go func() {
		done <- ps.Subscribe(ctx, func(m testMessage) { got <- m })
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := ps.Publish(ctx, testMessage{ID: 7, Name: "spot"}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		select {
		case m := <-got:
			if m.ID != 7 || m.Name != "spot" {
				t.Fatalf("unexpected message %+v", m)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Subscribe returned %v", err)
			}
			return
		case <-time.After(20 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for message")
		}
	}
}

func TestConnectRequiresTarget(t *testing.T) {
	if _, err := Connect(context.Background(), Config{}); err == nil {
		t.Fatal("expected error without address")
	}
	if (Config{}).Enabled() {
		t.Fatal("empty config should not be enabled")
	}
}

func TestConnectURL(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	_ = client.Close()
}
