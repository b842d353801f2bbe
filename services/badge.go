package services

import (
	"context"
	"time"

	"progress-ledger/models"

	"gorm.io/gorm"
)

// UserBadgeView joins an unlock with its catalog definition.
type UserBadgeView struct {
	models.Badge
	UnlockedAt time.Time `json:"unlocked_at"`
	Seen       bool      `json:"seen"`
}

type UserMilestoneView struct {
	models.Milestone
	ReachedAt time.Time `json:"reached_at"`
	Seen      bool      `json:"seen"`
}

type AchievementSummary struct {
	TotalBadges     int64      `json:"total_badges"`
	BronzeBadges    int64      `json:"bronze_badges"`
	SilverBadges    int64      `json:"silver_badges"`
	GoldBadges      int64      `json:"gold_badges"`
	PlatinumBadges  int64      `json:"platinum_badges"`
	TotalMilestones int64      `json:"total_milestones"`
	UnseenBadges    int64      `json:"unseen_badges"`
	LatestBadgeAt   *time.Time `json:"latest_badge_at"`
	CatalogBadges   int        `json:"catalog_badges"`
}

type BadgeProgress struct {
	models.Badge
	CurrentValue int64   `json:"current_value"`
	Percentage   float64 `json:"percentage"`
	Remaining    int64   `json:"remaining"`
}

type BadgeLeaderboardEntry struct {
	Rank       int    `json:"rank"`
	UserID     string `json:"user_id"`
	BadgeCount int64  `json:"badge_count"`
}

// BadgeService serves the read side of achievements plus the seen flag.
type BadgeService struct {
	DB        *gorm.DB
	Catalog   *Catalog
	Evaluator *AchievementEvaluator
}

func NewBadgeService(db *gorm.DB, catalog *Catalog, evaluator *AchievementEvaluator) *BadgeService {
	return &BadgeService{DB: db, Catalog: catalog, Evaluator: evaluator}
}

// UserBadges lists unlocked badges, newest first.
func (s *BadgeService) UserBadges(ctx context.Context, userID string, unseenOnly bool) ([]UserBadgeView, error) {
	q := s.DB.WithContext(ctx).Where("user_id = ?", userID)
	if unseenOnly {
		q = q.Where("seen = ?", false)
	}
	var rows []models.UserBadge
	if err := q.Order("unlocked_at DESC").Find(&rows).Error; err != nil {
		return nil, classifyStorageError("badges.user", err)
	}
	out := make([]UserBadgeView, 0, len(rows))
	for _, ub := range rows {
		b, ok := s.Catalog.Badge(ub.BadgeKey)
		if !ok {
			// retired from the catalog; keep the unlock visible under its key
			b = models.Badge{Key: ub.BadgeKey, Name: ub.BadgeKey}
		}
		out = append(out, UserBadgeView{Badge: b, UnlockedAt: ub.UnlockedAt, Seen: ub.Seen})
	}
	return out, nil
}

func (s *BadgeService) UserMilestones(ctx context.Context, userID string) ([]UserMilestoneView, error) {
	var rows []models.UserMilestone
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("reached_at DESC").Find(&rows).Error
	if err != nil {
		return nil, classifyStorageError("milestones.user", err)
	}
	out := make([]UserMilestoneView, 0, len(rows))
	for _, um := range rows {
		m, ok := s.Catalog.Milestone(um.MilestoneKey)
		if !ok {
			m = models.Milestone{Key: um.MilestoneKey, Name: um.MilestoneKey}
		}
		out = append(out, UserMilestoneView{Milestone: m, ReachedAt: um.ReachedAt, Seen: um.Seen})
	}
	return out, nil
}

func (s *BadgeService) Summary(ctx context.Context, userID string) (*AchievementSummary, error) {
	const op = "badges.summary"
	badges, err := s.UserBadges(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	sum := &AchievementSummary{CatalogBadges: len(s.Catalog.Badges(""))}
	for _, b := range badges {
		sum.TotalBadges++
		switch b.Tier {
		case 1:
			sum.BronzeBadges++
		case 2:
			sum.SilverBadges++
		case 3:
			sum.GoldBadges++
		case 4:
			sum.PlatinumBadges++
		}
		if !b.Seen {
			sum.UnseenBadges++
		}
		if sum.LatestBadgeAt == nil || b.UnlockedAt.After(*sum.LatestBadgeAt) {
			at := b.UnlockedAt
			sum.LatestBadgeAt = &at
		}
	}
	if err := s.DB.WithContext(ctx).Model(&models.UserMilestone{}).Where("user_id = ?", userID).Count(&sum.TotalMilestones).Error; err != nil {
		return nil, classifyStorageError(op, err)
	}
	return sum, nil
}

// MarkSeen flags the given badges (all unseen when keys is empty) as seen.
func (s *BadgeService) MarkSeen(ctx context.Context, userID string, keys []string) (int64, error) {
	q := s.DB.WithContext(ctx).Model(&models.UserBadge{}).Where("user_id = ? AND seen = ?", userID, false)
	if len(keys) > 0 {
		q = q.Where("badge_key IN ?", keys)
	}
	res := q.Update("seen", true)
	if res.Error != nil {
		return 0, classifyStorageError("badges.mark_seen", res.Error)
	}
	return res.RowsAffected, nil
}

// MarkMilestonesSeen is MarkSeen for reached milestones.
func (s *BadgeService) MarkMilestonesSeen(ctx context.Context, userID string, keys []string) (int64, error) {
	q := s.DB.WithContext(ctx).Model(&models.UserMilestone{}).Where("user_id = ? AND seen = ?", userID, false)
	if len(keys) > 0 {
		q = q.Where("milestone_key IN ?", keys)
	}
	res := q.Update("seen", true)
	if res.Error != nil {
		return 0, classifyStorageError("milestones.mark_seen", res.Error)
	}
	return res.RowsAffected, nil
}

// Progress reports how close the user is to every badge they do not hold yet.
func (s *BadgeService) Progress(ctx context.Context, userID string) ([]BadgeProgress, error) {
	agg, err := s.Evaluator.Aggregates(ctx, userID)
	if err != nil {
		return nil, err
	}
	var held []string
	if err := s.DB.WithContext(ctx).Model(&models.UserBadge{}).Where("user_id = ?", userID).Pluck("badge_key", &held).Error; err != nil {
		return nil, classifyStorageError("badges.progress", err)
	}
	have := make(map[string]bool, len(held))
	for _, k := range held {
		have[k] = true
	}

	out := []BadgeProgress{}
	for _, b := range s.Catalog.Badges("") {
		if have[b.Key] {
			continue
		}
		cur := agg.Value(b.RequirementType)
		p := BadgeProgress{Badge: b, CurrentValue: cur, Remaining: b.RequirementValue - cur}
		if p.Remaining < 0 {
			p.Remaining = 0
		}
		p.Percentage = round2(float64(min(cur, b.RequirementValue)) / float64(b.RequirementValue) * 100)
		out = append(out, p)
	}
	return out, nil
}

// Leaderboard ranks users by number of badges held.
func (s *BadgeService) Leaderboard(ctx context.Context, limit int) ([]BadgeLeaderboardEntry, error) {
	if limit < 1 || limit > 100 {
		limit = 10
	}
	var rows []struct {
		UserID     string
		BadgeCount int64
	}
	err := s.DB.WithContext(ctx).
		Model(&models.UserBadge{}).
		Select("user_id, COUNT(*) AS badge_count").
		Group("user_id").
		Order("badge_count DESC").
		Order("user_id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, classifyStorageError("badges.leaderboard", err)
	}
	out := make([]BadgeLeaderboardEntry, len(rows))
	for i, r := range rows {
		out[i] = BadgeLeaderboardEntry{Rank: i + 1, UserID: r.UserID, BadgeCount: r.BadgeCount}
	}
	return out, nil
}
