package services

import (
	"context"
	"testing"
	"time"

	"progress-ledger/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressionReadSide(t *testing.T) {
	db := newTestDB(t)
	r, _, _ := newRecorder(t, db)
	ctx := context.Background()

	for _, in := range []QuizSubmission{
		{UserID: "u1", Topic: "Arrays", Correct: 9, Total: 10, TimeTaken: 60},
		{UserID: "u1", Topic: "Graphs", Correct: 7, Total: 10, TimeTaken: 30},
		{UserID: "u1", Topic: "Trees", Correct: 2, Total: 10, TimeTaken: 10},
		{UserID: "u2", Topic: "Arrays", Correct: 10, Total: 10, Difficulty: "expert"},
	} {
		_, err := r.Submit(ctx, in)
		require.NoError(t, err)
	}

	svc := NewProgressionService(db, NewLedgerService(db))

	ov, err := svc.Overview(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), ov.TotalQuizzes)
	assert.Len(t, ov.Topics, 3)
	assert.Len(t, ov.RecentXPHistory, 3)
	assert.Equal(t, int64(1), ov.Stats.Mastered)
	assert.Equal(t, int64(1), ov.Stats.Completed)
	assert.Equal(t, int64(1), ov.Stats.InProgress)
	assert.Equal(t, XPToNextLevel(ov.TotalXP), ov.XPToNextLevel)

	mastered, err := svc.Topics(ctx, "u1", "mastered")
	require.NoError(t, err)
	require.Len(t, mastered, 1)
	assert.Equal(t, "Arrays", mastered[0].Topic)

	_, err = svc.Topics(ctx, "u1", "legendary")
	assert.True(t, IsCode(err, CodeInvalidInput))

	detail, err := svc.Topic(ctx, "u1", "ARRAYS", 10)
	require.NoError(t, err)
	assert.Equal(t, "arrays", detail.Progress.TopicKey)
	assert.Len(t, detail.Attempts, 1)

	_, err = svc.Topic(ctx, "u1", "Heaps", 10)
	assert.True(t, IsCode(err, CodeNotFound))

	stats, err := svc.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.QuizzesCompleted)
	assert.Equal(t, 60.0, stats.AverageScore)
	assert.Equal(t, int64(100), stats.TotalTimeSpent)

	_, err = svc.Stats(ctx, "ghost")
	assert.True(t, IsCode(err, CodeNotFound))
	_, err = svc.Overview(ctx, "ghost")
	assert.True(t, IsCode(err, CodeNotFound))

	board, err := svc.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "u1", board[0].UserID)
	assert.Equal(t, 1, board[0].Rank)
}

func TestBadgeServiceMarkSeenAndProgress(t *testing.T) {
	db := newTestDB(t)
	r, _, _ := newRecorder(t, db)
	ctx := context.Background()
	_, err := r.Submit(ctx, QuizSubmission{UserID: "u1", Topic: "Arrays", Correct: 9, Total: 10})
	require.NoError(t, err)

	catalog := mustCatalog(t)
	svc := NewBadgeService(db, catalog, NewAchievementEvaluator(db, catalog, nil))

	unseen, err := svc.UserBadges(ctx, "u1", true)
	require.NoError(t, err)
	assert.Len(t, unseen, 2)

	n, err := svc.MarkSeen(ctx, "u1", []string{"first_quiz"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	unseen, err = svc.UserBadges(ctx, "u1", true)
	require.NoError(t, err)
	require.Len(t, unseen, 1)
	assert.Equal(t, "first_mastery", unseen[0].Badge.Key)

	n, err = svc.MarkSeen(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	progress, err := svc.Progress(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, progress, len(catalog.Badges(""))-2)
	for _, p := range progress {
		if p.Badge.Key == "quiz_regular" {
			assert.Equal(t, int64(1), p.CurrentValue)
			assert.Equal(t, int64(9), p.Remaining)
			assert.Equal(t, 10.0, p.Percentage)
		}
	}

	var held int64
	require.NoError(t, db.Model(&models.UserBadge{}).Where("user_id = ? AND seen = ?", "u1", true).Count(&held).Error)
	assert.Equal(t, int64(2), held)
}

func TestBadgeServiceMarkMilestonesSeen(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	for _, key := range []string{"level_5", "xp_1000"} {
		require.NoError(t, db.Create(&models.UserMilestone{
			ID: uuid.NewString(), UserID: "u1", MilestoneKey: key, ReachedAt: now,
		}).Error)
	}
	require.NoError(t, db.Create(&models.UserMilestone{
		ID: uuid.NewString(), UserID: "u2", MilestoneKey: "level_5", ReachedAt: now,
	}).Error)

	catalog := mustCatalog(t)
	svc := NewBadgeService(db, catalog, NewAchievementEvaluator(db, catalog, nil))

	n, err := svc.MarkMilestonesSeen(ctx, "u1", []string{"level_5"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, err := svc.UserMilestones(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, m := range list {
		assert.Equal(t, m.Key == "level_5", m.Seen, m.Key)
	}

	n, err = svc.MarkMilestonesSeen(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = svc.MarkMilestonesSeen(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	other, err := svc.UserMilestones(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.False(t, other[0].Seen)
}

func TestTopicsKeyOnFoldedNameAndResolveBySlug(t *testing.T) {
	db := newTestDB(t)
	r, _, _ := newRecorder(t, db)
	ctx := context.Background()

	for _, in := range []QuizSubmission{
		{UserID: "u1", Topic: "Go!", Correct: 9, Total: 10},
		{UserID: "u1", Topic: "Go", Correct: 3, Total: 10},
		{UserID: "u1", Topic: "Résumé", Correct: 8, Total: 10},
		{UserID: "u1", Topic: "Resume", Correct: 2, Total: 10},
		{UserID: "u1", Topic: "arrays and lists", Correct: 5, Total: 10},
		{UserID: "u1", Topic: "Arrays  AND Lists", Correct: 6, Total: 10},
	} {
		_, err := r.Submit(ctx, in)
		require.NoError(t, err)
	}

	var rows int64
	require.NoError(t, db.Model(&models.TopicProgress{}).Where("user_id = ?", "u1").Count(&rows).Error)
	assert.Equal(t, int64(5), rows)

	svc := NewProgressionService(db, NewLedgerService(db))

	bang, err := svc.Topic(ctx, "u1", "GO!", 10)
	require.NoError(t, err)
	assert.Equal(t, "go!", bang.Progress.TopicKey)
	assert.Equal(t, "go", bang.Progress.Slug)
	assert.Equal(t, models.TopicMastered, bang.Progress.Status)

	plain, err := svc.Topic(ctx, "u1", "go", 10)
	require.NoError(t, err)
	assert.Equal(t, "go", plain.Progress.TopicKey)
	assert.Equal(t, models.TopicInProgress, plain.Progress.Status)

	lists, err := svc.Topic(ctx, "u1", "arrays-and-lists", 10)
	require.NoError(t, err)
	assert.Equal(t, "arrays and lists", lists.Progress.TopicKey)
	assert.Equal(t, int64(2), lists.Progress.Attempts)
	assert.Len(t, lists.Attempts, 2)

	accented, err := svc.Topic(ctx, "u1", "résumé", 10)
	require.NoError(t, err)
	assert.Equal(t, 80.0, accented.Progress.BestScore)
	assert.Len(t, accented.Attempts, 1)
}
