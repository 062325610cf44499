package content

import (
	"errors"
	"fmt"
)

// Tier is the lifecycle stage of a content item.
type Tier string

const (
	TierPost      Tier = "POST"
	TierSpot      Tier = "SPOT"
	TierChallenge Tier = "CHALLENGE"
)

var (
	ErrInvalidTransition = errors.New("invalid tier transition")
	ErrTierConflict      = errors.New("tier changed concurrently")
	ErrNotFound          = errors.New("not found")
)

// allowedNextTiers is the whole state machine: one step forward, never back.
var allowedNextTiers = map[Tier][]Tier{
	TierPost:      {TierSpot},
	TierSpot:      {TierChallenge},
	TierChallenge: {},
}

func (t Tier) Valid() bool {
	_, ok := allowedNextTiers[t]
	return ok
}

// Next returns the tier an item moves to on promotion, if any.
func (t Tier) Next() (Tier, bool) {
	next := allowedNextTiers[t]
	if len(next) == 0 {
		return "", false
	}
	return next[0], true
}

// Transition reports whether from -> to is a permitted promotion. Every tier
// write goes through it.
func Transition(from, to Tier) error {
	for _, allowed := range allowedNextTiers[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// ParseTier validates a stored tier value.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}
