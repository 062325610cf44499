package ranking

import (
	"context"
	"errors"
	"testing"

	"frameworks/pkg/testutil"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	_, client := testutil.NewRedis(t)
	return map[string]Store{
		"redis":  NewRedisStore(client),
		"memory": NewMemoryStore(),
	}
}

func TestReverseRank(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = s.Upsert(ctx, "community", "place:1", 10)
			_ = s.Upsert(ctx, "community", "place:2", 30)
			_ = s.Upsert(ctx, "community", "place:3", 20)
			_ = s.Upsert(ctx, "other", "place:4", 99)

			want := map[string]int64{"place:2": 0, "place:3": 1, "place:1": 2}
			for member, rank := range want {
				got, ok, err := s.ReverseRank(ctx, "community", member)
				if err != nil || !ok || got != rank {
					t.Fatalf("%s: rank=%d ok=%v err=%v, want %d", member, got, ok, err, rank)
				}
			}

			if _, ok, err := s.ReverseRank(ctx, "community", "place:4"); ok || err != nil {
				t.Fatalf("expected absent member in namespace, ok=%v err=%v", ok, err)
			}

			// Upsert moves an existing member
			_ = s.Upsert(ctx, "community", "place:1", 50)
			if got, _, _ := s.ReverseRank(ctx, "community", "place:1"); got != 0 {
				t.Fatalf("expected place:1 to move to rank 0, got %d", got)
			}
			if n, _ := s.Count(ctx, "community"); n != 3 {
				t.Fatalf("expected 3 members, got %d", n)
			}
		})
	}
}

func TestTiesMatchRedisOrder(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = s.Upsert(ctx, "ns", "place:1", 5)
			_ = s.Upsert(ctx, "ns", "place:2", 5)

			r1, _, _ := s.ReverseRank(ctx, "ns", "place:1")
			r2, _, _ := s.ReverseRank(ctx, "ns", "place:2")
			if r2 != 0 || r1 != 1 {
				t.Fatalf("expected lexicographically larger member first, got place:1=%d place:2=%d", r1, r2)
			}
		})
	}
}

func TestRangeAndRemove(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = s.Upsert(ctx, "ns", "place:1", 1)
			_ = s.Upsert(ctx, "ns", "garbage", 2)
			_ = s.Upsert(ctx, "ns", "place:3", 3)

			members, err := s.Range(ctx, "ns")
			if err != nil || len(members) != 3 {
				t.Fatalf("expected 3 members, got %v err=%v", members, err)
			}

			if err := s.Remove(ctx, "ns", "garbage", "place:1"); err != nil {
				t.Fatalf("Remove: %v", err)
			}
			members, _ = s.Range(ctx, "ns")
			if len(members) != 1 || members[0] != "place:3" {
				t.Fatalf("unexpected members after remove %v", members)
			}
			if err := s.Remove(ctx, "ns"); err != nil {
				t.Fatalf("empty Remove: %v", err)
			}
		})
	}
}

func TestParseMember(t *testing.T) {
	tests := []struct {
		in   string
		kind string
		id   int64
		ok   bool
	}{
		{"place:42", "place", 42, true},
		{"place:0", "", 0, false},
		{"place:-1", "", 0, false},
		{"place:abc", "", 0, false},
		{":42", "", 0, false},
		{"place", "", 0, false},
		{"place:4:2", "", 0, false},
	}
	for _, tt := range tests {
		kind, id, err := ParseMember(tt.in)
		if tt.ok {
			if err != nil || kind != tt.kind || id != tt.id {
				t.Errorf("ParseMember(%q) = (%q, %d, %v)", tt.in, kind, id, err)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidMember) {
			t.Errorf("ParseMember(%q): expected ErrInvalidMember, got %v", tt.in, err)
		}
	}
	if Member("place", 7) != "place:7" {
		t.Fatalf("unexpected member format")
	}
}
