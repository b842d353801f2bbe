package services

import (
	"testing"

	"progress-ledger/models"

	"github.com/stretchr/testify/assert"
)

func TestComputeScore(t *testing.T) {
	assert.Equal(t, 90.0, ComputeScore(9, 10))
	assert.Equal(t, 66.67, ComputeScore(2, 3))
	assert.Equal(t, 0.0, ComputeScore(0, 7))
	assert.Equal(t, 100.0, ComputeScore(50, 50))
	assert.Equal(t, 0.0, ComputeScore(1, 0))
}

func TestQuizXP(t *testing.T) {
	tests := []struct {
		score      float64
		difficulty models.Difficulty
		want       int64
	}{
		{90, models.DifficultyMedium, 150},
		{50, models.DifficultyMedium, 120},
		{100, models.DifficultyExpert, 200},
		{80, models.DifficultyEasy, 125},
		{79.99, models.DifficultyHard, 130},
		{0, models.DifficultyEasy, 110},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, QuizXP(tt.score, tt.difficulty), "score=%v difficulty=%s", tt.score, tt.difficulty)
	}
}

func TestParseDifficulty(t *testing.T) {
	d, ok := ParseDifficulty("")
	assert.True(t, ok)
	assert.Equal(t, models.DifficultyMedium, d)

	d, ok = ParseDifficulty(" HARD ")
	assert.True(t, ok)
	assert.Equal(t, models.DifficultyHard, d)

	_, ok = ParseDifficulty("nightmare")
	assert.False(t, ok)
}

func TestLevelForXP(t *testing.T) {
	assert.Equal(t, 1, LevelForXP(0))
	assert.Equal(t, 1, LevelForXP(499))
	assert.Equal(t, 2, LevelForXP(500))
	assert.Equal(t, 11, LevelForXP(5000))
	assert.Equal(t, 1, LevelForXP(-20))

	assert.Equal(t, int64(500), XPToNextLevel(0))
	assert.Equal(t, int64(350), XPToNextLevel(150))
	assert.Equal(t, int64(500), XPToNextLevel(1000))
}

func TestFeedback(t *testing.T) {
	assert.Equal(t, "Perfect! Outstanding mastery!", Feedback(100))
	assert.Equal(t, "Excellent work! You've mastered this topic!", Feedback(90))
	assert.Equal(t, "Keep learning! Practice makes perfect!", Feedback(10))
}
