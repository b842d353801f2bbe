package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"progress-ledger/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool
}

func (m *memStore) PutObject(_ context.Context, key string, body []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("bucket unavailable")
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = append([]byte(nil), body...)
	return nil
}

func appendN(t *testing.T, ledger *LedgerService, userID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := ledger.Append(context.Background(), LedgerAppend{UserID: userID, Delta: 10, Reason: models.XPReasonQuizComplete})
		require.NoError(t, err)
	}
}

func TestExportPendingWritesBatchesAndAdvances(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "u1")
	ledger := NewLedgerService(db)
	appendN(t, ledger, "u1", 5)

	store := &memStore{}
	a := NewLedgerArchiver(db, store, "test", nil)
	a.BatchSize = 2
	a.Settle = -time.Minute

	n, err := a.ExportPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, store.objects, 3)

	body, ok := store.objects["test/xp-ledger/00000000000000000001-00000000000000000002.ndjson"]
	require.True(t, ok)
	sc := bufio.NewScanner(bytes.NewReader(body))
	var lines int
	for sc.Scan() {
		var e models.XPLedgerEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		assert.Equal(t, "u1", e.UserID)
		lines++
	}
	assert.Equal(t, 2, lines)

	n, err = a.ExportPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	appendN(t, ledger, "u1", 1)
	n, err = a.ExportPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExportPendingLeavesUnsettledEntries(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "u1")
	appendN(t, NewLedgerService(db), "u1", 3)

	store := &memStore{}
	a := NewLedgerArchiver(db, store, "test", nil)
	n, err := a.ExportPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.objects)
}

func TestExportPendingKeepsCursorOnUploadFailure(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "u1")
	appendN(t, NewLedgerService(db), "u1", 2)

	store := &memStore{fail: true}
	a := NewLedgerArchiver(db, store, "test", nil)
	a.Settle = -time.Minute

	_, err := a.ExportPending(context.Background())
	require.Error(t, err)

	var cursors int64
	require.NoError(t, db.Model(&models.ArchiveCursor{}).Count(&cursors).Error)
	assert.Zero(t, cursors)

	store.fail = false
	n, err := a.ExportPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
