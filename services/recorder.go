package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"progress-ledger/models"
	"progress-ledger/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const MaxQuestions = 50

// QuizSubmission is one finished quiz as reported by the client.
type QuizSubmission struct {
	UserID     string `json:"user_id"`
	Topic      string `json:"topic"`
	Correct    int    `json:"correct"`
	Total      int    `json:"total"`
	Difficulty string `json:"difficulty"`
	TimeTaken  int    `json:"time_taken"`
}

type SubmitResult struct {
	AttemptID     string               `json:"attempt_id"`
	Score         float64              `json:"score"`
	XPEarned      int64                `json:"xp_earned"`
	PreviousTotal int64                `json:"previous_total_xp"`
	TotalXP       int64                `json:"total_xp"`
	PreviousLevel int                  `json:"previous_level"`
	Level         int                  `json:"level"`
	LevelUp       bool                 `json:"level_up"`
	Topic         models.TopicProgress `json:"topic"`
	Feedback      string               `json:"feedback"`

	UnlockedBadges     []Unlock `json:"unlocked_badges"`
	UnlockedMilestones []Unlock `json:"unlocked_milestones"`
}

// CommitDispatcher is notified after a quiz unit of work commits.
type CommitDispatcher interface {
	Dispatch(ctx context.Context, c Commit) []Unlock
}

// QuizRecorder validates a submission and records attempt, topic progress
// and XP as a single transaction.
type QuizRecorder struct {
	Tx              TxRunner
	Topics          *TopicProgressStore
	Dispatcher      CommitDispatcher
	Log             *utils.Logger
	Retry           RetryPolicy
	Timeout         time.Duration
	AutoCreateUsers bool

	now func() time.Time
}

func NewQuizRecorder(db *gorm.DB, dispatcher CommitDispatcher, log *utils.Logger) *QuizRecorder {
	return &QuizRecorder{
		Tx:              NewTxRunner(db),
		Topics:          NewTopicProgressStore(db),
		Dispatcher:      dispatcher,
		Log:             log,
		Retry:           DefaultRetryPolicy,
		Timeout:         5 * time.Second,
		AutoCreateUsers: true,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

type validSubmission struct {
	userID     string
	topic      string
	topicKey   string
	difficulty models.Difficulty
	correct    int
	total      int
	timeTaken  int
	score      float64
}

func validateSubmission(in QuizSubmission) (*validSubmission, error) {
	const op = "quiz.validate"
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil, NewError(CodeInvalidInput, op, "user_id is required")
	}
	topic, key, ok := NormalizeTopic(in.Topic)
	if !ok {
		return nil, NewError(CodeInvalidInput, op, fmt.Sprintf("topic must be 1-%d characters", MaxTopicLength))
	}
	if in.Total <= 0 || in.Total > MaxQuestions {
		return nil, NewError(CodeInvalidInput, op, fmt.Sprintf("total must be between 1 and %d", MaxQuestions))
	}
	if in.Correct < 0 || in.Correct > in.Total {
		return nil, NewError(CodeInvalidInput, op, "correct must be between 0 and total")
	}
	if in.TimeTaken < 0 {
		return nil, NewError(CodeInvalidInput, op, "time_taken cannot be negative")
	}
	difficulty, ok := ParseDifficulty(in.Difficulty)
	if !ok {
		return nil, NewError(CodeInvalidInput, op, "difficulty must be one of easy, medium, hard, expert")
	}
	return &validSubmission{
		userID:     userID,
		topic:      topic,
		topicKey:   key,
		difficulty: difficulty,
		correct:    in.Correct,
		total:      in.Total,
		timeTaken:  in.TimeTaken,
		score:      ComputeScore(in.Correct, in.Total),
	}, nil
}

// Submit records one attempt. Achievement evaluation happens after commit and
// never turns a committed attempt into an error.
func (r *QuizRecorder) Submit(ctx context.Context, in QuizSubmission) (*SubmitResult, error) {
	const op = "quiz.submit"
	v, err := validateSubmission(in)
	if err != nil {
		return nil, err
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	xp := QuizXP(v.score, v.difficulty)
	var (
		attempt  models.QuizAttempt
		progress *models.TopicProgress
		entry    *models.XPLedgerEntry
	)
	err = runWrite(ctx, r.Tx, r.Retry, op, func(tx *gorm.DB) error {
		now := r.now()
		if r.AutoCreateUsers {
			if err := ensureUser(tx, v.userID); err != nil {
				return err
			}
		}
		user, err := loadUser(tx, v.userID)
		if err != nil {
			return err
		}

		attempt = models.QuizAttempt{
			ID:         uuid.NewString(),
			UserID:     v.userID,
			Topic:      v.topic,
			TopicKey:   v.topicKey,
			Difficulty: v.difficulty,
			Correct:    v.correct,
			Total:      v.total,
			Score:      v.score,
			XPEarned:   xp,
			TimeTaken:  v.timeTaken,
			CreatedAt:  now,
		}
		if err := tx.Create(&attempt).Error; err != nil {
			return err
		}

		if progress, err = r.Topics.applyInTx(tx, v.userID, v.topic, v.topicKey, v.score, now); err != nil {
			return err
		}

		attemptID := attempt.ID
		entry, err = appendEntry(tx, user, LedgerAppend{
			UserID:    v.userID,
			Delta:     xp,
			Reason:    models.XPReasonQuizComplete,
			Topic:     v.topic,
			AttemptID: &attemptID,
		}, now)
		return err
	})
	if err != nil {
		if r.Log != nil {
			r.Log.Warn("quiz submission failed", "user_id", v.userID, "topic", v.topicKey, "code", CodeOf(err), "error", err)
		}
		return nil, err
	}

	res := &SubmitResult{
		AttemptID:          attempt.ID,
		Score:              v.score,
		XPEarned:           entry.Delta,
		PreviousTotal:      entry.PreviousTotal,
		TotalXP:            entry.NewTotal,
		PreviousLevel:      entry.PreviousLevel,
		Level:              entry.NewLevel,
		LevelUp:            entry.NewLevel > entry.PreviousLevel,
		Topic:              *progress,
		Feedback:           Feedback(v.score),
		UnlockedBadges:     []Unlock{},
		UnlockedMilestones: []Unlock{},
	}
	if r.Log != nil {
		r.Log.Info("quiz recorded",
			"user_id", v.userID, "topic", v.topicKey, "score", v.score,
			"xp", entry.Delta, "total_xp", entry.NewTotal, "level", entry.NewLevel, "status", progress.Status)
	}

	if r.Dispatcher != nil {
		unlocks := r.Dispatcher.Dispatch(ctx, Commit{
			UserID:        v.userID,
			Entry:         *entry,
			TopicProgress: progress,
		})
		for _, u := range unlocks {
			if !u.NewlyUnlocked {
				continue
			}
			if u.Kind == UnlockMilestone {
				res.UnlockedMilestones = append(res.UnlockedMilestones, u)
			} else {
				res.UnlockedBadges = append(res.UnlockedBadges, u)
			}
		}
	}
	return res, nil
}
