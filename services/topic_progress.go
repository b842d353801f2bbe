package services

import (
	"time"

	"progress-ledger/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TopicProgressStore persists the per-(user, topic) mastery rows.
type TopicProgressStore struct {
	DB *gorm.DB
}

func NewTopicProgressStore(db *gorm.DB) *TopicProgressStore {
	return &TopicProgressStore{DB: db}
}

// applyInTx creates the row on first use, then folds the attempt in with a
// version-checked update. A lost race returns errVersionMismatch.
func (s *TopicProgressStore) applyInTx(tx *gorm.DB, userID, topic, topicKey string, score float64, now time.Time) (*models.TopicProgress, error) {
	seed := models.TopicProgress{
		ID:       uuid.NewString(),
		UserID:   userID,
		TopicKey: topicKey,
		Topic:    topic,
		Slug:     TopicSlug(topic),
		Status:   models.TopicNotStarted,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "topic_key"}},
		DoNothing: true,
	}).Create(&seed).Error
	if err != nil {
		return nil, err
	}

	var p models.TopicProgress
	if err := tx.Where("user_id = ? AND topic_key = ?", userID, topicKey).First(&p).Error; err != nil {
		return nil, err
	}

	observed := p.Version
	ApplyAttempt(&p, score, now)
	p.Version = observed + 1

	res := tx.Model(&models.TopicProgress{}).
		Where("id = ? AND version = ?", p.ID, observed).
		Updates(map[string]interface{}{
			"status":            p.Status,
			"latest_score":      p.LatestScore,
			"best_score":        p.BestScore,
			"attempts":          p.Attempts,
			"last_attempted_at": p.LastAttemptedAt,
			"completed_at":      p.CompletedAt,
			"version":           p.Version,
			"updated_at":        now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errVersionMismatch
	}
	return &p, nil
}
