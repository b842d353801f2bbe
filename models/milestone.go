package models

import "time"

// Milestone categories. Each maps onto one aggregate.
const (
	MilestoneXP    = "xp"
	MilestoneQuiz  = "quiz"
	MilestoneTopic = "topic"
)

type Milestone struct {
	Key         string `gorm:"primaryKey;type:varchar(64)" yaml:"key" json:"key"`
	Name        string `gorm:"not null" yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Category    string `gorm:"type:varchar(16);not null;index" yaml:"category" json:"category"`
	Threshold   int64  `gorm:"not null" yaml:"threshold" json:"threshold"`
	Icon        string `yaml:"icon" json:"icon,omitempty"`
}

// RequirementType resolves the aggregate a milestone category is measured on.
func (m Milestone) RequirementType() RequirementType {
	switch m.Category {
	case MilestoneXP:
		return RequirementTotalXP
	case MilestoneQuiz:
		return RequirementQuizzesCompleted
	case MilestoneTopic:
		return RequirementTopicsCompleted
	}
	return ""
}

type UserMilestone struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID       string    `gorm:"not null;uniqueIndex:idx_user_milestones_user_milestone,priority:1" json:"user_id"`
	MilestoneKey string    `gorm:"not null;uniqueIndex:idx_user_milestones_user_milestone,priority:2" json:"milestone_key"`
	ReachedAt    time.Time `gorm:"not null" json:"reached_at"`
	Seen         bool      `gorm:"not null;default:false" json:"seen"`
}
