package services

import (
	"context"
	"sync"
	"time"

	"progress-ledger/models"
	"progress-ledger/utils"

	"gorm.io/gorm"
)

// Commit describes a unit of work that changed a user's XP.
type Commit struct {
	UserID        string
	Entry         models.XPLedgerEntry
	TopicProgress *models.TopicProgress
}

// Evaluator is the part of AchievementEvaluator the dispatcher needs.
type Evaluator interface {
	Evaluate(ctx context.Context, userID string) ([]Unlock, error)
}

// EventSink accepts events for fan-out. Emit must not block.
type EventSink interface {
	Emit(evt models.Event)
}

// Dispatcher reacts to committed XP changes: it emits events, runs the
// evaluator, and keeps users whose evaluation failed for a later retry.
type Dispatcher struct {
	DB        *gorm.DB
	Evaluator Evaluator
	Sink      EventSink
	Log       *utils.Logger
	Timeout   time.Duration

	mu      sync.Mutex
	pending map[string]time.Time
}

func NewDispatcher(db *gorm.DB, evaluator Evaluator, sink EventSink, log *utils.Logger) *Dispatcher {
	return &Dispatcher{
		DB:        db,
		Evaluator: evaluator,
		Sink:      sink,
		Log:       log,
		Timeout:   5 * time.Second,
		pending:   make(map[string]time.Time),
	}
}

// Dispatch runs after commit. It never fails: evaluation errors are logged
// and the user is queued for RetryPending.
func (d *Dispatcher) Dispatch(ctx context.Context, c Commit) []Unlock {
	now := time.Now().UTC()
	d.emit(models.Event{
		Kind:       models.EventXPGained,
		UserID:     c.UserID,
		OccurredAt: now,
		Delta:      c.Entry.Delta,
		NewTotal:   c.Entry.NewTotal,
		NewLevel:   c.Entry.NewLevel,
	})
	if p := c.TopicProgress; p != nil {
		d.emit(models.Event{
			Kind:       models.EventProgressUpdated,
			UserID:     c.UserID,
			OccurredAt: now,
			Topic:      p.Topic,
			NewStatus:  p.Status,
			BestScore:  p.BestScore,
		})
	}

	unlocks, err := d.evaluate(ctx, c.UserID)
	if err != nil {
		return nil
	}
	return unlocks
}

// Evaluate runs the evaluator on demand and forwards anything new.
func (d *Dispatcher) Evaluate(ctx context.Context, userID string) ([]Unlock, error) {
	return d.evaluate(ctx, userID)
}

func (d *Dispatcher) evaluate(ctx context.Context, userID string) ([]Unlock, error) {
	evalCtx := context.WithoutCancel(ctx)
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		evalCtx, cancel = context.WithTimeout(evalCtx, d.Timeout)
		defer cancel()
	}

	unlocks, err := d.Evaluator.Evaluate(evalCtx, userID)
	if err != nil {
		if !IsCode(err, CodeNotFound) {
			d.markPending(userID)
			if d.Log != nil {
				d.Log.Error("achievement evaluation failed, queued for retry", "user_id", userID, "error", err)
			}
		}
		return nil, err
	}
	d.clearPending(userID)
	d.forward(userID, unlocks)
	return unlocks, nil
}

func (d *Dispatcher) forward(userID string, unlocks []Unlock) {
	for _, u := range unlocks {
		if !u.NewlyUnlocked {
			continue
		}
		evt := models.Event{UserID: userID, OccurredAt: u.UnlockedAt, Name: u.Name}
		if u.Kind == UnlockMilestone {
			evt.Kind = models.EventMilestoneReached
			evt.MilestoneKey = u.Key
		} else {
			evt.Kind = models.EventBadgeUnlocked
			evt.BadgeKey = u.Key
			evt.Tier = u.Tier
		}
		d.emit(evt)
	}
}

func (d *Dispatcher) emit(evt models.Event) {
	if d.Sink != nil {
		d.Sink.Emit(evt)
	}
}

func (d *Dispatcher) markPending(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pending[userID]; !ok {
		d.pending[userID] = time.Now()
	}
}

func (d *Dispatcher) clearPending(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, userID)
}

// Pending lists users waiting for an evaluation retry.
func (d *Dispatcher) Pending() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.pending))
	for id := range d.pending {
		out = append(out, id)
	}
	return out
}

// RetryPending re-evaluates every queued user. Users that fail again stay queued.
func (d *Dispatcher) RetryPending(ctx context.Context) (retried, recovered int) {
	for _, userID := range d.Pending() {
		if ctx.Err() != nil {
			return
		}
		retried++
		if _, err := d.evaluate(ctx, userID); err == nil {
			recovered++
		} else if IsCode(err, CodeNotFound) {
			d.clearPending(userID)
		}
	}
	return
}

// Sweep re-evaluates every user with ledger activity since the given time.
func (d *Dispatcher) Sweep(ctx context.Context, since time.Time) (int, error) {
	var userIDs []string
	err := d.DB.WithContext(ctx).
		Model(&models.XPLedgerEntry{}).
		Where("created_at >= ?", since).
		Distinct().
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return 0, classifyStorageError("achievements.sweep", err)
	}
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			break
		}
		_, _ = d.evaluate(ctx, userID)
	}
	return len(userIDs), nil
}
