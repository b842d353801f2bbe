package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"progress-ledger/models"
	"progress-ledger/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ObjectStore is where ledger archives are written.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
}

const ledgerArchiveCursor = "xp_ledger"

// LedgerArchiver copies settled ledger entries to object storage as NDJSON.
type LedgerArchiver struct {
	DB        *gorm.DB
	Store     ObjectStore
	Prefix    string
	BatchSize int
	// Entries younger than Settle are left for the next run, so a transaction
	// that took a lower id but committed late is not skipped.
	Settle time.Duration
	Log    *utils.Logger
}

func NewLedgerArchiver(db *gorm.DB, store ObjectStore, prefix string, log *utils.Logger) *LedgerArchiver {
	return &LedgerArchiver{
		DB:        db,
		Store:     store,
		Prefix:    prefix,
		BatchSize: 1000,
		Settle:    time.Minute,
		Log:       log,
	}
}

// ExportPending writes batches until nothing settled is left. It returns the
// number of entries exported.
func (a *LedgerArchiver) ExportPending(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := a.exportBatch(ctx)
		total += n
		if err != nil || n < a.BatchSize {
			return total, err
		}
	}
}

func (a *LedgerArchiver) exportBatch(ctx context.Context) (int, error) {
	const op = "ledger.archive"
	db := a.DB.WithContext(ctx)

	var cursor models.ArchiveCursor
	err := db.Where("name = ?", ledgerArchiveCursor).First(&cursor).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, classifyStorageError(op, err)
	}

	var entries []models.XPLedgerEntry
	err = db.Where("id > ? AND created_at < ?", cursor.LastEntryID, time.Now().UTC().Add(-a.Settle)).
		Order("id ASC").
		Limit(a.BatchSize).
		Find(&entries).Error
	if err != nil {
		return 0, classifyStorageError(op, err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range entries {
		if err := enc.Encode(&entries[i]); err != nil {
			return 0, fmt.Errorf("%s: encode entry %d: %w", op, entries[i].ID, err)
		}
	}

	first, last := entries[0].ID, entries[len(entries)-1].ID
	key := fmt.Sprintf("%s/xp-ledger/%020d-%020d.ndjson", a.Prefix, first, last)
	if err := a.Store.PutObject(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_entry_id", "updated_at"}),
	}).Create(&models.ArchiveCursor{Name: ledgerArchiveCursor, LastEntryID: last}).Error
	if err != nil {
		return 0, classifyStorageError(op, err)
	}

	if a.Log != nil {
		a.Log.Info("ledger entries archived", "key", key, "count", len(entries))
	}
	return len(entries), nil
}
