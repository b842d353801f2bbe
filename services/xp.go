package services

import (
	"math"
	"strings"

	"progress-ledger/models"
)

// XPPerLevel is the fixed XP width of every level.
const XPPerLevel = 500

// BaseQuizXP is awarded for any completed quiz before bonuses.
const BaseQuizXP int64 = 100

var difficultyBonus = map[models.Difficulty]int64{
	models.DifficultyEasy:   10,
	models.DifficultyMedium: 20,
	models.DifficultyHard:   30,
	models.DifficultyExpert: 50,
}

// ParseDifficulty accepts the four known tiers case-insensitively; empty means medium.
func ParseDifficulty(raw string) (models.Difficulty, bool) {
	d := models.Difficulty(strings.ToLower(strings.TrimSpace(raw)))
	if d == "" {
		return models.DifficultyMedium, true
	}
	_, ok := difficultyBonus[d]
	return d, ok
}

// ComputeScore returns correct/total as a percentage rounded to 2 decimals.
func ComputeScore(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(correct)/float64(total)*100*100) / 100
}

// QuizXP is base + difficulty bonus + score bonus. It is never negative.
func QuizXP(score float64, difficulty models.Difficulty) int64 {
	xp := BaseQuizXP + difficultyBonus[difficulty]
	switch {
	case score >= 100:
		xp += 50
	case score >= 90:
		xp += 30
	case score >= 80:
		xp += 15
	}
	return xp
}

// LevelForXP derives the level from a total: floor(total/XPPerLevel) + 1.
func LevelForXP(totalXP int64) int {
	if totalXP < 0 {
		totalXP = 0
	}
	return int(totalXP/XPPerLevel) + 1
}

// XPToNextLevel is how much XP is still missing to reach the next level.
func XPToNextLevel(totalXP int64) int64 {
	if totalXP < 0 {
		totalXP = 0
	}
	return int64(LevelForXP(totalXP))*XPPerLevel - totalXP
}

// Feedback is the short message shown with a quiz result.
func Feedback(score float64) string {
	switch {
	case score >= 95:
		return "Perfect! Outstanding mastery!"
	case score >= 90:
		return "Excellent work! You've mastered this topic!"
	case score >= 80:
		return "Great job! Solid understanding demonstrated!"
	case score >= 70:
		return "Good effort! Keep practicing to improve!"
	case score >= 50:
		return "Fair attempt. Review the material and try again!"
	default:
		return "Keep learning! Practice makes perfect!"
	}
}
