package services

import (
	"context"
	"time"

	"progress-ledger/models"
	"progress-ledger/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UnlockKind string

const (
	UnlockBadge     UnlockKind = "badge"
	UnlockMilestone UnlockKind = "milestone"
)

// Unlock is one achievement the user holds, flagged when this evaluation created it.
type Unlock struct {
	Kind             UnlockKind             `json:"kind"`
	Key              string                 `json:"key"`
	Name             string                 `json:"name"`
	Description      string                 `json:"description,omitempty"`
	Category         string                 `json:"category"`
	Tier             int                    `json:"tier,omitempty"`
	RequirementType  models.RequirementType `json:"requirement_type"`
	RequirementValue int64                  `json:"requirement_value"`
	NewlyUnlocked    bool                   `json:"newly_unlocked"`
	UnlockedAt       time.Time              `json:"unlocked_at"`
}

// Aggregates are the per-user statistics achievement predicates read.
type Aggregates struct {
	Level            int   `json:"level"`
	TotalXP          int64 `json:"total_xp"`
	QuizzesCompleted int64 `json:"quizzes_completed"`
	TopicsMastered   int64 `json:"topics_mastered"`
	TopicsCompleted  int64 `json:"topics_completed"`
	TopicsInProgress int64 `json:"topics_in_progress"`
}

func (a Aggregates) Value(rt models.RequirementType) int64 {
	switch rt {
	case models.RequirementLevel:
		return int64(a.Level)
	case models.RequirementTotalXP:
		return a.TotalXP
	case models.RequirementQuizzesCompleted:
		return a.QuizzesCompleted
	case models.RequirementTopicsMastered:
		return a.TopicsMastered
	case models.RequirementTopicsCompleted:
		return a.TopicsCompleted
	}
	return 0
}

// AchievementEvaluator compares fresh aggregates with the catalog and records
// unlocks with insert-if-absent, so concurrent or repeated runs are harmless.
type AchievementEvaluator struct {
	DB      *gorm.DB
	Catalog *Catalog
	Log     *utils.Logger
}

func NewAchievementEvaluator(db *gorm.DB, catalog *Catalog, log *utils.Logger) *AchievementEvaluator {
	return &AchievementEvaluator{DB: db, Catalog: catalog, Log: log}
}

func (e *AchievementEvaluator) Aggregates(ctx context.Context, userID string) (*Aggregates, error) {
	const op = "achievements.aggregates"
	db := e.DB.WithContext(ctx)
	user, err := loadUser(db, userID)
	if err != nil {
		return nil, classifyStorageError(op, err)
	}
	agg := &Aggregates{Level: LevelForXP(user.TotalXP), TotalXP: user.TotalXP}

	if err := db.Model(&models.QuizAttempt{}).Where("user_id = ?", userID).Count(&agg.QuizzesCompleted).Error; err != nil {
		return nil, classifyStorageError(op, err)
	}

	var rows []struct {
		Status models.TopicStatus
		N      int64
	}
	err = db.Model(&models.TopicProgress{}).
		Select("status, COUNT(*) AS n").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, classifyStorageError(op, err)
	}
	for _, r := range rows {
		switch r.Status {
		case models.TopicMastered:
			agg.TopicsMastered += r.N
			agg.TopicsCompleted += r.N
		case models.TopicCompleted:
			agg.TopicsCompleted += r.N
		case models.TopicInProgress:
			agg.TopicsInProgress += r.N
		}
	}
	return agg, nil
}

// Evaluate returns every badge then every milestone the user holds, in catalog order.
func (e *AchievementEvaluator) Evaluate(ctx context.Context, userID string) ([]Unlock, error) {
	const op = "achievements.evaluate"
	agg, err := e.Aggregates(ctx, userID)
	if err != nil {
		if IsCode(err, CodeNotFound) {
			return nil, err
		}
		return nil, Wrap(CodeEvaluationFailure, op, "achievement evaluation failed", err)
	}

	badges, err := e.evaluateBadges(ctx, userID, agg)
	if err != nil {
		return nil, Wrap(CodeEvaluationFailure, op, "achievement evaluation failed", err)
	}
	milestones, err := e.evaluateMilestones(ctx, userID, agg)
	if err != nil {
		return nil, Wrap(CodeEvaluationFailure, op, "achievement evaluation failed", err)
	}
	return append(badges, milestones...), nil
}

func (e *AchievementEvaluator) evaluateBadges(ctx context.Context, userID string, agg *Aggregates) ([]Unlock, error) {
	db := e.DB.WithContext(ctx)
	var held []models.UserBadge
	if err := db.Where("user_id = ?", userID).Find(&held).Error; err != nil {
		return nil, err
	}
	heldAt := make(map[string]time.Time, len(held))
	for _, ub := range held {
		heldAt[ub.BadgeKey] = ub.UnlockedAt
	}

	var out []Unlock
	for _, b := range e.Catalog.Badges("") {
		u := Unlock{
			Kind:             UnlockBadge,
			Key:              b.Key,
			Name:             b.Name,
			Description:      b.Description,
			Category:         b.Category,
			Tier:             b.Tier,
			RequirementType:  b.RequirementType,
			RequirementValue: b.RequirementValue,
		}
		if at, ok := heldAt[b.Key]; ok {
			u.UnlockedAt = at
			out = append(out, u)
			continue
		}
		if agg.Value(b.RequirementType) < b.RequirementValue {
			continue
		}

		row := models.UserBadge{ID: uuid.NewString(), UserID: userID, BadgeKey: b.Key, UnlockedAt: time.Now().UTC()}
		res := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "badge_key"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			u.NewlyUnlocked = true
			u.UnlockedAt = row.UnlockedAt
			if e.Log != nil {
				e.Log.Info("badge unlocked", "user_id", userID, "badge", b.Key, "tier", b.Tier)
			}
		} else {
			var winner models.UserBadge
			if err := db.Where("user_id = ? AND badge_key = ?", userID, b.Key).First(&winner).Error; err != nil {
				return nil, err
			}
			u.UnlockedAt = winner.UnlockedAt
		}
		out = append(out, u)
	}
	return out, nil
}

func (e *AchievementEvaluator) evaluateMilestones(ctx context.Context, userID string, agg *Aggregates) ([]Unlock, error) {
	db := e.DB.WithContext(ctx)
	var held []models.UserMilestone
	if err := db.Where("user_id = ?", userID).Find(&held).Error; err != nil {
		return nil, err
	}
	heldAt := make(map[string]time.Time, len(held))
	for _, um := range held {
		heldAt[um.MilestoneKey] = um.ReachedAt
	}

	var out []Unlock
	for _, m := range e.Catalog.Milestones("") {
		u := Unlock{
			Kind:             UnlockMilestone,
			Key:              m.Key,
			Name:             m.Name,
			Description:      m.Description,
			Category:         m.Category,
			RequirementType:  m.RequirementType(),
			RequirementValue: m.Threshold,
		}
		if at, ok := heldAt[m.Key]; ok {
			u.UnlockedAt = at
			out = append(out, u)
			continue
		}
		if agg.Value(m.RequirementType()) < m.Threshold {
			continue
		}

		row := models.UserMilestone{ID: uuid.NewString(), UserID: userID, MilestoneKey: m.Key, ReachedAt: time.Now().UTC()}
		res := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "milestone_key"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			u.NewlyUnlocked = true
			u.UnlockedAt = row.ReachedAt
			if e.Log != nil {
				e.Log.Info("milestone reached", "user_id", userID, "milestone", m.Key)
			}
		} else {
			var winner models.UserMilestone
			if err := db.Where("user_id = ? AND milestone_key = ?", userID, m.Key).First(&winner).Error; err != nil {
				return nil, err
			}
			u.UnlockedAt = winner.ReachedAt
		}
		out = append(out, u)
	}
	return out, nil
}
