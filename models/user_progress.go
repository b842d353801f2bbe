package models

import (
	"time"
)

// User holds the XP totals cached from the ledger. Identity itself belongs to
// the auth service; ID is the external user id it issues.
type User struct {
	ID      string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TotalXP int64  `json:"total_xp" gorm:"not null;default:0"`
	Level   int    `json:"level" gorm:"not null;default:1"`

	// Version increments on every XP change and doubles as the ledger sequence.
	Version int64 `json:"-" gorm:"not null;default:0"`

	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
