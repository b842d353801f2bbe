package services

import (
	"strings"
	"time"
	"unicode/utf8"

	"progress-ledger/models"

	"github.com/gosimple/slug"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const (
	MasteredScore  = 90.0
	CompletedScore = 70.0

	MaxTopicLength = 50
)

// NextStatus applies the mastery transition for one attempt. The result
// never ranks below current: a weak retry keeps mastered/completed as is.
func NextStatus(current models.TopicStatus, score float64) models.TopicStatus {
	if !current.Valid() {
		current = models.TopicNotStarted
	}
	var target models.TopicStatus
	switch {
	case score >= MasteredScore:
		target = models.TopicMastered
	case score >= CompletedScore:
		target = models.TopicCompleted
	case current == models.TopicNotStarted:
		target = models.TopicInProgress
	default:
		return current
	}
	if target.Rank() > current.Rank() {
		return target
	}
	return current
}

// ApplyAttempt folds one scored attempt into p.
func ApplyAttempt(p *models.TopicProgress, score float64, now time.Time) {
	p.Status = NextStatus(p.Status, score)
	if score > p.BestScore {
		p.BestScore = score
	}
	p.LatestScore = score
	p.Attempts++
	p.LastAttemptedAt = &now
	if p.CompletedAt == nil && p.Status.Rank() >= models.TopicCompleted.Rank() {
		p.CompletedAt = &now
	}
}

var topicSymbols = strings.NewReplacer("+", " plus ", "#", " sharp ", "&", " and ")

// NormalizeTopic returns the display name and the identity key for a topic.
// The key is the case-folded display name, so only case and whitespace
// differences collapse: "Go!" and "Go" stay apart, as do "Résumé" and "Resume".
func NormalizeTopic(raw string) (display, key string, ok bool) {
	display = strings.Join(strings.Fields(norm.NFC.String(raw)), " ")
	if display == "" || utf8.RuneCountInString(display) > MaxTopicLength {
		return "", "", false
	}
	key = norm.NFC.String(cases.Fold().String(display))
	return display, key, true
}

// TopicSlug is the URL form of a display name. It is lossy and never used
// as identity; "C++" and "C#" still get distinct slugs.
func TopicSlug(display string) string {
	return slug.Make(topicSymbols.Replace(display))
}
