package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"progress-ledger/models"
	"progress-ledger/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// conflictingRunner reports a lost race for the first n transactions.
type conflictingRunner struct {
	inner TxRunner
	n     int32
	calls atomic.Int32
}

func (r *conflictingRunner) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if r.calls.Add(1) <= r.n {
		return errVersionMismatch
	}
	return r.inner.InTx(ctx, fn)
}

type failingEvaluator struct{ calls atomic.Int32 }

func (e *failingEvaluator) Evaluate(context.Context, string) ([]Unlock, error) {
	e.calls.Add(1)
	return nil, Wrap(CodeEvaluationFailure, "test", "boom", errors.New("aggregates unavailable"))
}

func newRecorder(t *testing.T, db *gorm.DB) (*QuizRecorder, *Dispatcher, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	log := utils.NopLogger()
	dispatcher := NewDispatcher(db, NewAchievementEvaluator(db, mustCatalog(t), log), sink, log)
	r := NewQuizRecorder(db, dispatcher, log)
	r.Retry = RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}
	return r, dispatcher, sink
}

func unlockKeys(us []Unlock) []string {
	keys := make([]string, 0, len(us))
	for _, u := range us {
		keys = append(keys, u.Key)
	}
	return keys
}

func TestSubmitFirstQuizMastersTopic(t *testing.T) {
	db := newTestDB(t)
	r, _, sink := newRecorder(t, db)

	res, err := r.Submit(context.Background(), QuizSubmission{
		UserID: "u1", Topic: "Arrays", Correct: 9, Total: 10, Difficulty: "medium", TimeTaken: 120,
	})
	require.NoError(t, err)

	assert.Equal(t, 90.0, res.Score)
	assert.Equal(t, int64(150), res.XPEarned)
	assert.Equal(t, int64(0), res.PreviousTotal)
	assert.Equal(t, int64(150), res.TotalXP)
	assert.Equal(t, 1, res.Level)
	assert.False(t, res.LevelUp)
	assert.Equal(t, models.TopicMastered, res.Topic.Status)
	assert.Equal(t, 90.0, res.Topic.BestScore)
	assert.Equal(t, int64(1), res.Topic.Attempts)
	assert.Equal(t, "Excellent work! You've mastered this topic!", res.Feedback)

	assert.ElementsMatch(t, []string{"first_quiz", "first_mastery"}, unlockKeys(res.UnlockedBadges))
	assert.ElementsMatch(t, []string{"xp_100", "topic_1"}, unlockKeys(res.UnlockedMilestones))

	kinds := sink.kinds()
	assert.Contains(t, kinds, models.EventXPGained)
	assert.Contains(t, kinds, models.EventProgressUpdated)
	assert.Contains(t, kinds, models.EventBadgeUnlocked)
	assert.Contains(t, kinds, models.EventMilestoneReached)

	var attempts int64
	require.NoError(t, db.Model(&models.QuizAttempt{}).Count(&attempts).Error)
	assert.Equal(t, int64(1), attempts)
	require.NoError(t, NewLedgerService(db).VerifyChain(context.Background(), "u1"))
}

func TestSubmitWeakRetryKeepsMastery(t *testing.T) {
	db := newTestDB(t)
	r, _, _ := newRecorder(t, db)
	ctx := context.Background()

	_, err := r.Submit(ctx, QuizSubmission{UserID: "u1", Topic: "Arrays", Correct: 9, Total: 10})
	require.NoError(t, err)

	res, err := r.Submit(ctx, QuizSubmission{UserID: "u1", Topic: " arrays ", Correct: 5, Total: 10})
	require.NoError(t, err)
	assert.Equal(t, models.TopicMastered, res.Topic.Status)
	assert.Equal(t, 50.0, res.Topic.LatestScore)
	assert.Equal(t, 90.0, res.Topic.BestScore)
	assert.Equal(t, int64(2), res.Topic.Attempts)
	assert.Equal(t, int64(120), res.XPEarned)
	assert.Equal(t, int64(270), res.TotalXP)
	assert.Empty(t, res.UnlockedBadges, "first_quiz is not unlocked twice")

	var rows int64
	require.NoError(t, db.Model(&models.TopicProgress{}).Where("user_id = ?", "u1").Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
}

func TestSubmitConcurrentAttemptsBothCount(t *testing.T) {
	db := newTestDB(t)
	r, _, _ := newRecorder(t, db)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.Submit(ctx, QuizSubmission{UserID: "u1", Topic: "Graphs", Correct: 7, Total: 10, Difficulty: "hard"})
		}(i)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	var p models.TopicProgress
	require.NoError(t, db.Where("user_id = ? AND topic_key = ?", "u1", "graphs").First(&p).Error)
	assert.Equal(t, int64(2), p.Attempts)

	var user models.User
	require.NoError(t, db.First(&user, "id = ?", "u1").Error)
	assert.Equal(t, int64(2*130), user.TotalXP)
	require.NoError(t, NewLedgerService(db).VerifyChain(ctx, "u1"))
}

func TestSubmitInvalidInputWritesNothing(t *testing.T) {
	db := newTestDB(t)
	r, _, _ := newRecorder(t, db)
	ctx := context.Background()

	bad := []QuizSubmission{
		{UserID: "", Topic: "Arrays", Correct: 1, Total: 2},
		{UserID: "u1", Topic: "  ", Correct: 1, Total: 2},
		{UserID: "u1", Topic: "Arrays", Correct: 3, Total: 2},
		{UserID: "u1", Topic: "Arrays", Correct: -1, Total: 2},
		{UserID: "u1", Topic: "Arrays", Correct: 0, Total: 0},
		{UserID: "u1", Topic: "Arrays", Correct: 1, Total: MaxQuestions + 1},
		{UserID: "u1", Topic: "Arrays", Correct: 1, Total: 2, TimeTaken: -5},
		{UserID: "u1", Topic: "Arrays", Correct: 1, Total: 2, Difficulty: "legendary"},
	}
	for _, in := range bad {
		_, err := r.Submit(ctx, in)
		assert.True(t, IsCode(err, CodeInvalidInput), "%+v: %v", in, err)
	}

	for _, m := range []interface{}{&models.User{}, &models.QuizAttempt{}, &models.TopicProgress{}, &models.XPLedgerEntry{}} {
		var n int64
		require.NoError(t, db.Model(m).Count(&n).Error)
		assert.Zero(t, n)
	}
}

func TestSubmitUnknownUserWithoutAutoCreate(t *testing.T) {
	db := newTestDB(t)
	r, _, _ := newRecorder(t, db)
	r.AutoCreateUsers = false

	_, err := r.Submit(context.Background(), QuizSubmission{UserID: "ghost", Topic: "Arrays", Correct: 1, Total: 2})
	assert.True(t, IsCode(err, CodeNotFound))

	var n int64
	require.NoError(t, db.Model(&models.QuizAttempt{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestSubmitSurvivesEvaluationFailure(t *testing.T) {
	db := newTestDB(t)
	eval := &failingEvaluator{}
	sink := &recordingSink{}
	dispatcher := NewDispatcher(db, eval, sink, utils.NopLogger())
	r := NewQuizRecorder(db, dispatcher, utils.NopLogger())

	res, err := r.Submit(context.Background(), QuizSubmission{UserID: "u1", Topic: "Arrays", Correct: 10, Total: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(170), res.TotalXP)
	assert.Empty(t, res.UnlockedBadges)
	assert.Equal(t, []string{"u1"}, dispatcher.Pending())

	var entries int64
	require.NoError(t, db.Model(&models.XPLedgerEntry{}).Count(&entries).Error)
	assert.Equal(t, int64(1), entries)
	assert.Contains(t, sink.kinds(), models.EventXPGained)
}

func TestSubmitRetriesLostRace(t *testing.T) {
	db := newTestDB(t)
	r, _, _ := newRecorder(t, db)
	runner := &conflictingRunner{inner: NewTxRunner(db), n: 2}
	r.Tx = runner

	res, err := r.Submit(context.Background(), QuizSubmission{UserID: "u1", Topic: "Arrays", Correct: 8, Total: 10})
	require.NoError(t, err)
	assert.Equal(t, int32(3), runner.calls.Load())
	assert.Equal(t, int64(1), res.Topic.Attempts)
}

func TestSubmitGivesUpAfterMaxRetries(t *testing.T) {
	db := newTestDB(t)
	r, _, _ := newRecorder(t, db)
	r.Retry = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	runner := &conflictingRunner{inner: NewTxRunner(db), n: 100}
	r.Tx = runner

	_, err := r.Submit(context.Background(), QuizSubmission{UserID: "u1", Topic: "Arrays", Correct: 8, Total: 10})
	assert.True(t, IsCode(err, CodeConflict))
	assert.Equal(t, int32(3), runner.calls.Load())

	var n int64
	require.NoError(t, db.Model(&models.QuizAttempt{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestSubmitTimesOut(t *testing.T) {
	db := newTestDB(t)
	r, _, _ := newRecorder(t, db)
	r.Timeout = 20 * time.Millisecond
	r.Retry = RetryPolicy{MaxAttempts: 1000, BaseDelay: 10 * time.Millisecond}
	r.Tx = &conflictingRunner{inner: NewTxRunner(db), n: 1 << 30}

	_, err := r.Submit(context.Background(), QuizSubmission{UserID: "u1", Topic: "Arrays", Correct: 8, Total: 10})
	assert.True(t, IsCode(err, CodeTimeout), "got %v", err)
}
