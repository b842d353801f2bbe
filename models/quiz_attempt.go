package models

import "time"

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyExpert Difficulty = "expert"
)

// QuizAttempt is written once per submission and never updated.
type QuizAttempt struct {
	ID         string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID     string     `gorm:"not null;index:idx_quiz_attempts_user_created,priority:1" json:"user_id"`
	Topic      string     `gorm:"not null" json:"topic"`
	TopicKey   string     `gorm:"not null;index" json:"topic_key"`
	Difficulty Difficulty `gorm:"type:varchar(16);not null" json:"difficulty"`
	Correct    int        `gorm:"not null" json:"correct"`
	Total      int        `gorm:"not null" json:"total"`
	Score      float64    `gorm:"not null" json:"score"`
	XPEarned   int64      `gorm:"not null" json:"xp_earned"`
	TimeTaken  int        `json:"time_taken"`
	CreatedAt  time.Time  `gorm:"not null;index:idx_quiz_attempts_user_created,priority:2" json:"created_at"`
}
