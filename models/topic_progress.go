package models

import "time"

type TopicStatus string

const (
	TopicNotStarted TopicStatus = "not_started"
	TopicInProgress TopicStatus = "in_progress"
	TopicCompleted  TopicStatus = "completed"
	TopicMastered   TopicStatus = "mastered"
)

// Rank orders statuses along the mastery path. Unknown values rank below not_started.
func (s TopicStatus) Rank() int {
	switch s {
	case TopicNotStarted:
		return 0
	case TopicInProgress:
		return 1
	case TopicCompleted:
		return 2
	case TopicMastered:
		return 3
	default:
		return -1
	}
}

func (s TopicStatus) Valid() bool { return s.Rank() >= 0 }

// TopicProgress is the single mutable row per (user, topic).
type TopicProgress struct {
	ID       string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID   string `gorm:"not null;uniqueIndex:idx_topic_progress_user_topic,priority:1" json:"user_id"`
	TopicKey string `gorm:"not null;uniqueIndex:idx_topic_progress_user_topic,priority:2" json:"topic_key"`
	Topic    string `gorm:"not null" json:"topic"`
	Slug     string `gorm:"index" json:"slug"`

	Status      TopicStatus `gorm:"type:varchar(16);not null;default:'not_started'" json:"status"`
	LatestScore float64     `json:"latest_score"`
	BestScore   float64     `json:"best_score"`
	Attempts    int64       `gorm:"not null;default:0" json:"attempts"`

	LastAttemptedAt *time.Time `json:"last_attempted_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`

	Version int64 `gorm:"not null;default:0" json:"-"`

	Timestamps
}
