package models

import "time"

type XPReason string

const (
	XPReasonQuizComplete    XPReason = "quiz_complete"
	XPReasonAdminAdjustment XPReason = "admin_adjustment"
)

func (r XPReason) Valid() bool {
	switch r {
	case XPReasonQuizComplete, XPReasonAdminAdjustment:
		return true
	}
	return false
}

// XPLedgerEntry is one append-only XP change. For a given user,
// entry n has PreviousTotal == NewTotal of entry n-1 and Sequence == n.
type XPLedgerEntry struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        string    `gorm:"not null;uniqueIndex:idx_xp_ledger_user_seq,priority:1" json:"user_id"`
	Sequence      int64     `gorm:"not null;uniqueIndex:idx_xp_ledger_user_seq,priority:2" json:"sequence"`
	Delta         int64     `gorm:"not null" json:"delta"`
	Reason        XPReason  `gorm:"type:varchar(32);not null" json:"reason"`
	Topic         string    `json:"topic,omitempty"`
	AttemptID     *string   `gorm:"type:varchar(36);index" json:"attempt_id,omitempty"`
	PreviousTotal int64     `gorm:"not null" json:"previous_total"`
	NewTotal      int64     `gorm:"not null" json:"new_total"`
	PreviousLevel int       `gorm:"not null" json:"previous_level"`
	NewLevel      int       `gorm:"not null" json:"new_level"`
	CreatedAt     time.Time `gorm:"not null;index" json:"created_at"`
}

// ArchiveCursor remembers how far a named export has progressed through the ledger.
type ArchiveCursor struct {
	Name        string    `gorm:"primaryKey;type:varchar(64)"`
	LastEntryID uint64    `gorm:"not null;default:0"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}
