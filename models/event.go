package models

import (
	"encoding/json"
	"time"
)

type EventKind string

const (
	EventXPGained         EventKind = "xp_gained"
	EventProgressUpdated  EventKind = "progress_updated"
	EventBadgeUnlocked    EventKind = "badge_unlocked"
	EventMilestoneReached EventKind = "milestone_reached"
)

// Event is the payload published to the notification channel.
// Only the fields relevant to Kind are set and serialized.
type Event struct {
	Kind       EventKind
	UserID     string
	OccurredAt time.Time

	Delta    int64
	NewTotal int64
	NewLevel int

	Topic     string
	NewStatus TopicStatus
	BestScore float64

	BadgeKey     string
	MilestoneKey string
	Name         string
	Tier         int
}

type eventHeader struct {
	Kind       EventKind `json:"kind"`
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

type xpGainedPayload struct {
	eventHeader
	Delta    int64 `json:"delta"`
	NewTotal int64 `json:"new_total"`
	NewLevel int   `json:"new_level"`
}

type progressUpdatedPayload struct {
	eventHeader
	Topic     string      `json:"topic"`
	NewStatus TopicStatus `json:"new_status"`
	BestScore float64     `json:"best_score"`
}

type badgeUnlockedPayload struct {
	eventHeader
	BadgeKey string `json:"badge_key"`
	Name     string `json:"name"`
	Tier     int    `json:"tier"`
}

type milestoneReachedPayload struct {
	eventHeader
	MilestoneKey string `json:"milestone_key"`
	Name         string `json:"name"`
}

// MarshalJSON writes the fixed field set of the event's kind. Zero values
// are kept: a best_score of 0 is still part of a progress_updated payload.
func (e Event) MarshalJSON() ([]byte, error) {
	h := eventHeader{Kind: e.Kind, UserID: e.UserID, OccurredAt: e.OccurredAt}
	switch e.Kind {
	case EventXPGained:
		return json.Marshal(xpGainedPayload{h, e.Delta, e.NewTotal, e.NewLevel})
	case EventProgressUpdated:
		return json.Marshal(progressUpdatedPayload{h, e.Topic, e.NewStatus, e.BestScore})
	case EventBadgeUnlocked:
		return json.Marshal(badgeUnlockedPayload{h, e.BadgeKey, e.Name, e.Tier})
	case EventMilestoneReached:
		return json.Marshal(milestoneReachedPayload{h, e.MilestoneKey, e.Name})
	}
	return json.Marshal(h)
}
