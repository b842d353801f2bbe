package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"progress-ledger/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerAppend is a request to move a user's XP by Delta.
type LedgerAppend struct {
	UserID    string
	Delta     int64
	Reason    models.XPReason
	Topic     string
	AttemptID *string
}

type LedgerResult struct {
	Entry     models.XPLedgerEntry
	LeveledUp bool
}

// LedgerService owns the append-only XP history and the cached totals on User.
type LedgerService struct {
	DB    *gorm.DB
	Tx    TxRunner
	Retry RetryPolicy
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{DB: db, Tx: NewTxRunner(db), Retry: DefaultRetryPolicy}
}

// Append writes one ledger entry and the user's new totals atomically.
func (s *LedgerService) Append(ctx context.Context, req LedgerAppend) (*LedgerResult, error) {
	const op = "ledger.append"
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return nil, NewError(CodeInvalidInput, op, "user_id is required")
	}
	if !req.Reason.Valid() {
		return nil, NewError(CodeInvalidInput, op, fmt.Sprintf("unknown reason %q", req.Reason))
	}

	var out *LedgerResult
	err := runWrite(ctx, s.Tx, s.Retry, op, func(tx *gorm.DB) error {
		user, err := loadUser(tx, req.UserID)
		if err != nil {
			return err
		}
		entry, err := appendEntry(tx, user, req, time.Now().UTC())
		if err != nil {
			return err
		}
		out = &LedgerResult{Entry: *entry, LeveledUp: entry.NewLevel > entry.PreviousLevel}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// appendEntry must run inside a transaction. It advances user in place.
func appendEntry(tx *gorm.DB, user *models.User, req LedgerAppend, now time.Time) (*models.XPLedgerEntry, error) {
	prev := user.TotalXP
	delta := req.Delta
	if prev+delta < 0 {
		delta = -prev
	}
	next := prev + delta
	prevLevel, nextLevel := LevelForXP(prev), LevelForXP(next)

	updates := map[string]interface{}{
		"total_xp":   next,
		"level":      nextLevel,
		"version":    user.Version + 1,
		"updated_at": now,
	}
	if nextLevel > prevLevel {
		updates["last_level_up_at"] = now
	}
	res := tx.Model(&models.User{}).
		Where("id = ? AND version = ?", user.ID, user.Version).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errVersionMismatch
	}

	entry := models.XPLedgerEntry{
		UserID:        user.ID,
		Sequence:      user.Version + 1,
		Delta:         delta,
		Reason:        req.Reason,
		Topic:         req.Topic,
		AttemptID:     req.AttemptID,
		PreviousTotal: prev,
		NewTotal:      next,
		PreviousLevel: prevLevel,
		NewLevel:      nextLevel,
		CreatedAt:     now,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, err
	}

	user.TotalXP = next
	user.Level = nextLevel
	user.Version++
	if nextLevel > prevLevel {
		user.LastLevelUpAt = &now
	}
	return &entry, nil
}

// History returns the newest entries first.
func (s *LedgerService) History(ctx context.Context, userID string, limit int) ([]models.XPLedgerEntry, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	var entries []models.XPLedgerEntry
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("sequence DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, classifyStorageError("ledger.history", err)
	}
	return entries, nil
}

// VerifyChain checks that the user's entries link end to end and sum to the cached total.
func (s *LedgerService) VerifyChain(ctx context.Context, userID string) error {
	const op = "ledger.verify"
	user, err := loadUser(s.DB.WithContext(ctx), userID)
	if err != nil {
		return err
	}
	var entries []models.XPLedgerEntry
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("sequence ASC").Find(&entries).Error; err != nil {
		return classifyStorageError(op, err)
	}

	var sum, last int64
	for i, e := range entries {
		if e.Sequence != int64(i+1) {
			return fmt.Errorf("%s: entry %d has sequence %d", op, i+1, e.Sequence)
		}
		if e.PreviousTotal != last {
			return fmt.Errorf("%s: sequence %d previous_total %d, want %d", op, e.Sequence, e.PreviousTotal, last)
		}
		if e.NewTotal != e.PreviousTotal+e.Delta {
			return fmt.Errorf("%s: sequence %d new_total %d != %d%+d", op, e.Sequence, e.NewTotal, e.PreviousTotal, e.Delta)
		}
		sum += e.Delta
		last = e.NewTotal
	}
	if sum != user.TotalXP {
		return fmt.Errorf("%s: ledger sums to %d but total_xp is %d", op, sum, user.TotalXP)
	}
	if user.Level != LevelForXP(user.TotalXP) {
		return fmt.Errorf("%s: cached level %d, derived %d", op, user.Level, LevelForXP(user.TotalXP))
	}
	return nil
}

func loadUser(tx *gorm.DB, userID string) (*models.User, error) {
	var user models.User
	if err := tx.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(CodeNotFound, "user.load", "user not found")
		}
		return nil, err
	}
	return &user, nil
}

// ensureUser inserts an empty user row if none exists yet.
func ensureUser(tx *gorm.DB, userID string) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.User{ID: userID, Level: 1}).Error
}
