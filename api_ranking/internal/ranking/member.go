// Package ranking holds the derived sorted index of item scores. It can be
// dropped and rebuilt from the content store at any time.
package ranking

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidMember marks a ranking member that cannot be mapped to an item.
var ErrInvalidMember = errors.New("invalid ranking member")

// Member builds the "{kind}:{id}" member string.
func Member(kind string, id int64) string {
	return kind + ":" + strconv.FormatInt(id, 10)
}

// ParseMember splits a member into kind and item id.
func ParseMember(member string) (string, int64, error) {
	kind, rawID, ok := strings.Cut(member, ":")
	if !ok || kind == "" {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidMember, member)
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidMember, member)
	}
	return kind, id, nil
}
