package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"progress-ledger/models"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// TopicStats summarizes a user's topic rows. Completed excludes mastered.
type TopicStats struct {
	TotalTopics      int64   `json:"total_topics"`
	Mastered         int64   `json:"mastered"`
	Completed        int64   `json:"completed"`
	InProgress       int64   `json:"in_progress"`
	AverageBestScore float64 `json:"average_best_score"`
}

type ProgressOverview struct {
	UserID          string                 `json:"user_id"`
	TotalXP         int64                  `json:"total_xp"`
	Level           int                    `json:"level"`
	XPToNextLevel   int64                  `json:"xp_to_next_level"`
	LastLevelUpAt   *time.Time             `json:"last_level_up_at,omitempty"`
	TotalQuizzes    int64                  `json:"total_quizzes"`
	Topics          []models.TopicProgress `json:"topics"`
	RecentXPHistory []models.XPLedgerEntry `json:"recent_xp_history"`
	Stats           TopicStats             `json:"stats"`
}

type TopicDetail struct {
	Progress models.TopicProgress `json:"progress"`
	Attempts []models.QuizAttempt `json:"recent_attempts"`
}

type UserStats struct {
	UserID           string  `json:"user_id"`
	TotalXP          int64   `json:"total_xp"`
	Level            int     `json:"level"`
	TopicsStarted    int64   `json:"topics_started"`
	TopicsMastered   int64   `json:"topics_mastered"`
	TopicsCompleted  int64   `json:"topics_completed"`
	TopicsInProgress int64   `json:"topics_in_progress"`
	AverageBestScore float64 `json:"average_best_score"`
	QuizzesCompleted int64   `json:"quizzes_completed"`
	AverageScore     float64 `json:"average_score"`
	TotalTimeSpent   int64   `json:"total_time_spent"`
}

type LeaderboardEntry struct {
	Rank    int    `json:"rank"`
	UserID  string `json:"user_id"`
	TotalXP int64  `json:"total_xp"`
	Level   int    `json:"level"`
}

// ProgressionService serves the read side of progress: topics, history, stats.
type ProgressionService struct {
	DB     *gorm.DB
	Ledger *LedgerService
}

func NewProgressionService(db *gorm.DB, ledger *LedgerService) *ProgressionService {
	return &ProgressionService{DB: db, Ledger: ledger}
}

// Overview loads the user, their topics and recent XP in parallel.
func (s *ProgressionService) Overview(ctx context.Context, userID string) (*ProgressOverview, error) {
	const op = "progress.overview"
	var (
		user    *models.User
		topics  []models.TopicProgress
		history []models.XPLedgerEntry
		quizzes int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = loadUser(s.DB.WithContext(gctx), userID)
		return err
	})
	g.Go(func() error {
		var err error
		topics, err = s.Topics(gctx, userID, "")
		return err
	})
	g.Go(func() error {
		var err error
		history, err = s.Ledger.History(gctx, userID, 10)
		return err
	})
	g.Go(func() error {
		return s.DB.WithContext(gctx).Model(&models.QuizAttempt{}).Where("user_id = ?", userID).Count(&quizzes).Error
	})
	if err := g.Wait(); err != nil {
		return nil, classifyStorageError(op, err)
	}

	return &ProgressOverview{
		UserID:          user.ID,
		TotalXP:         user.TotalXP,
		Level:           LevelForXP(user.TotalXP),
		XPToNextLevel:   XPToNextLevel(user.TotalXP),
		LastLevelUpAt:   user.LastLevelUpAt,
		TotalQuizzes:    quizzes,
		Topics:          topics,
		RecentXPHistory: history,
		Stats:           SummarizeTopics(topics),
	}, nil
}

// Topics lists the user's topic rows, most recently attempted first.
func (s *ProgressionService) Topics(ctx context.Context, userID, status string) ([]models.TopicProgress, error) {
	q := s.DB.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		if !models.TopicStatus(status).Valid() {
			return nil, NewError(CodeInvalidInput, "progress.topics", fmt.Sprintf("unknown status %q", status))
		}
		q = q.Where("status = ?", status)
	}
	topics := []models.TopicProgress{}
	if err := q.Order("last_attempted_at DESC").Find(&topics).Error; err != nil {
		return nil, classifyStorageError("progress.topics", err)
	}
	return topics, nil
}

// Topic returns one topic row with its latest attempts. topic is matched
// against the identity key first, then against the URL slug; when several
// topics share a slug the most recently attempted one wins.
func (s *ProgressionService) Topic(ctx context.Context, userID, topic string, limit int) (*TopicDetail, error) {
	const op = "progress.topic"
	display, key, ok := NormalizeTopic(topic)
	if !ok {
		return nil, NewError(CodeInvalidInput, op, "invalid topic")
	}
	db := s.DB.WithContext(ctx)
	var p models.TopicProgress
	err := db.Where("user_id = ? AND topic_key = ?", userID, key).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if sl := TopicSlug(display); sl != "" {
			err = db.Where("user_id = ? AND slug = ?", userID, sl).
				Order("last_attempted_at DESC").First(&p).Error
		}
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(CodeNotFound, op, "topic not found")
		}
		return nil, classifyStorageError(op, err)
	}
	attempts, err := s.quizHistory(ctx, userID, p.TopicKey, limit)
	if err != nil {
		return nil, err
	}
	return &TopicDetail{Progress: p, Attempts: attempts}, nil
}

// QuizHistory returns the newest attempts first, optionally for one topic.
func (s *ProgressionService) QuizHistory(ctx context.Context, userID, topic string, limit int) ([]models.QuizAttempt, error) {
	var key string
	if topic != "" {
		var ok bool
		if _, key, ok = NormalizeTopic(topic); !ok {
			return nil, NewError(CodeInvalidInput, "progress.quiz_history", "invalid topic")
		}
	}
	return s.quizHistory(ctx, userID, key, limit)
}

func (s *ProgressionService) quizHistory(ctx context.Context, userID, topicKey string, limit int) ([]models.QuizAttempt, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	q := s.DB.WithContext(ctx).Where("user_id = ?", userID)
	if topicKey != "" {
		q = q.Where("topic_key = ?", topicKey)
	}
	attempts := []models.QuizAttempt{}
	if err := q.Order("created_at DESC").Limit(limit).Find(&attempts).Error; err != nil {
		return nil, classifyStorageError("progress.quiz_history", err)
	}
	return attempts, nil
}

func (s *ProgressionService) Stats(ctx context.Context, userID string) (*UserStats, error) {
	const op = "progress.stats"
	db := s.DB.WithContext(ctx)
	user, err := loadUser(db, userID)
	if err != nil {
		return nil, classifyStorageError(op, err)
	}
	topics, err := s.Topics(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	var quiz struct {
		N         int64
		AvgScore  float64
		TimeSpent int64
	}
	err = db.Model(&models.QuizAttempt{}).
		Select("COUNT(*) AS n, COALESCE(AVG(score), 0) AS avg_score, COALESCE(SUM(time_taken), 0) AS time_spent").
		Where("user_id = ?", userID).
		Scan(&quiz).Error
	if err != nil {
		return nil, classifyStorageError(op, err)
	}

	ts := SummarizeTopics(topics)
	return &UserStats{
		UserID:           userID,
		TotalXP:          user.TotalXP,
		Level:            LevelForXP(user.TotalXP),
		TopicsStarted:    ts.TotalTopics,
		TopicsMastered:   ts.Mastered,
		TopicsCompleted:  ts.Completed,
		TopicsInProgress: ts.InProgress,
		AverageBestScore: ts.AverageBestScore,
		QuizzesCompleted: quiz.N,
		AverageScore:     round2(quiz.AvgScore),
		TotalTimeSpent:   quiz.TimeSpent,
	}, nil
}

// Leaderboard ranks users by total XP; ties go to whoever got there first.
func (s *ProgressionService) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit < 1 || limit > 100 {
		limit = 10
	}
	var users []models.User
	err := s.DB.WithContext(ctx).
		Order("total_xp DESC").
		Order("updated_at ASC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, classifyStorageError("progress.leaderboard", err)
	}
	out := make([]LeaderboardEntry, len(users))
	for i, u := range users {
		out[i] = LeaderboardEntry{Rank: i + 1, UserID: u.ID, TotalXP: u.TotalXP, Level: LevelForXP(u.TotalXP)}
	}
	return out, nil
}

func SummarizeTopics(topics []models.TopicProgress) TopicStats {
	var st TopicStats
	var sum float64
	for _, t := range topics {
		st.TotalTopics++
		sum += t.BestScore
		switch t.Status {
		case models.TopicMastered:
			st.Mastered++
		case models.TopicCompleted:
			st.Completed++
		case models.TopicInProgress:
			st.InProgress++
		}
	}
	if st.TotalTopics > 0 {
		st.AverageBestScore = round2(sum / float64(st.TotalTopics))
	}
	return st
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
