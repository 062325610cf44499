package content

import (
	"errors"
	"testing"
)

func TestTransitionTable(t *testing.T) {
	tiers := []Tier{TierPost, TierSpot, TierChallenge, Tier("ARCHIVED")}
	allowed := map[[2]Tier]bool{
		{TierPost, TierSpot}:      true,
		{TierSpot, TierChallenge}: true,
	}

	for _, from := range tiers {
		for _, to := range tiers {
			err := Transition(from, to)
			if allowed[[2]Tier{from, to}] {
				if err != nil {
					t.Errorf("%s -> %s: unexpected error %v", from, to, err)
				}
				continue
			}
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("%s -> %s: expected ErrInvalidTransition, got %v", from, to, err)
			}
		}
	}
}

func TestTierNext(t *testing.T) {
	tests := []struct {
		from Tier
		want Tier
		ok   bool
	}{
		{TierPost, TierSpot, true},
		{TierSpot, TierChallenge, true},
		{TierChallenge, "", false},
		{Tier("bogus"), "", false},
	}
	for _, tt := range tests {
		got, ok := tt.from.Next()
		if got != tt.want || ok != tt.ok {
			t.Errorf("%s.Next() = (%q, %v), want (%q, %v)", tt.from, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseTier(t *testing.T) {
	if tier, err := ParseTier("SPOT"); err != nil || tier != TierSpot {
		t.Fatalf("expected SPOT, got %q %v", tier, err)
	}
	if _, err := ParseTier("spot"); err == nil {
		t.Fatal("expected lowercase tier to be rejected")
	}
}

func TestRecipientHasPushTarget(t *testing.T) {
	tests := map[string]bool{
		"":                       false,
		"ExponentPushToken[abc]": true,
		"bad token":              false,
		"tok\n":                  false,
	}
	for token, want := range tests {
		if got := (Recipient{PushToken: token}).HasPushTarget(); got != want {
			t.Errorf("HasPushTarget(%q) = %v, want %v", token, got, want)
		}
	}
}
