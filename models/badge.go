package models

import (
	"time"
)

type RequirementType string

const (
	RequirementLevel            RequirementType = "level"
	RequirementTotalXP          RequirementType = "total_xp"
	RequirementQuizzesCompleted RequirementType = "quizzes_completed"
	RequirementTopicsMastered   RequirementType = "topics_mastered"
	RequirementTopicsCompleted  RequirementType = "topics_completed"
)

func (r RequirementType) Valid() bool {
	switch r {
	case RequirementLevel, RequirementTotalXP, RequirementQuizzesCompleted,
		RequirementTopicsMastered, RequirementTopicsCompleted:
		return true
	}
	return false
}

// Badge: catalog entry (loaded from YAML at startup, mirrored read-only in the DB)
type Badge struct {
	Key              string          `gorm:"primaryKey;type:varchar(64)" yaml:"key" json:"key"`
	Name             string          `gorm:"not null" yaml:"name" json:"name"`
	Description      string          `yaml:"description" json:"description"`
	Category         string          `gorm:"type:varchar(32);not null;index" yaml:"category" json:"category"`
	RequirementType  RequirementType `gorm:"type:varchar(32);not null" yaml:"requirement_type" json:"requirement_type"`
	RequirementValue int64           `gorm:"not null" yaml:"requirement_value" json:"requirement_value"`
	Tier             int             `gorm:"not null" yaml:"tier" json:"tier"`
	Icon             string          `yaml:"icon" json:"icon,omitempty"`
}

// UserBadge: unlocked instance. Only Seen is ever updated after insert.
type UserBadge struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID     string    `gorm:"not null;uniqueIndex:idx_user_badges_user_badge,priority:1" json:"user_id"`
	BadgeKey   string    `gorm:"not null;uniqueIndex:idx_user_badges_user_badge,priority:2;index" json:"badge_key"`
	UnlockedAt time.Time `gorm:"not null" json:"unlocked_at"`
	Seen       bool      `gorm:"not null;default:false" json:"seen"`
}

// Tier names, 1..4.
var TierNames = map[int]string{
	1: "bronze",
	2: "silver",
	3: "gold",
	4: "platinum",
}
