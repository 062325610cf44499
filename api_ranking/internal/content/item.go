package content

import (
	"fmt"
	"strings"
	"time"
)

// Counters are the raw engagement totals of an item.
type Counters struct {
	Likes     int64 `json:"likes"`
	Replies   int64 `json:"replies"`
	Views     int64 `json:"views"`
	Certifies int64 `json:"certifies"`
}

type Item struct {
	ID        int64
	OwnerID   int64
	Tier      Tier
	Counters  Counters
	CreatedAt time.Time
	IsDeleted bool
}

// Recipient is a user's notification preferences.
type Recipient struct {
	ID                   int64
	NotificationsEnabled bool
	PushToken            string
}

// HasPushTarget reports whether the token looks deliverable.
func (r Recipient) HasPushTarget() bool {
	return r.PushToken != "" && !strings.ContainsAny(r.PushToken, " \t\r\n")
}

// Metric names one engagement counter.
type Metric string

const (
	MetricLikes     Metric = "likes"
	MetricReplies   Metric = "replies"
	MetricViews     Metric = "views"
	MetricCertifies Metric = "certifies"
)

var metricColumns = map[Metric]string{
	MetricLikes:     "like_count",
	MetricReplies:   "reply_count",
	MetricViews:     "view_count",
	MetricCertifies: "certify_count",
}

func (m Metric) column() (string, error) {
	col, ok := metricColumns[m]
	if !ok {
		return "", fmt.Errorf("unknown metric %q", m)
	}
	return col, nil
}

// Get returns the counter for m.
func (c Counters) Get(m Metric) int64 {
	switch m {
	case MetricLikes:
		return c.Likes
	case MetricReplies:
		return c.Replies
	case MetricViews:
		return c.Views
	case MetricCertifies:
		return c.Certifies
	}
	return 0
}
