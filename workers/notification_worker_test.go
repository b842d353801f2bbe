package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"progress-ledger/models"
	"progress-ledger/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []models.Event
	fail      bool
}

func (p *fakePublisher) Publish(_ context.Context, evt models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("redis down")
	}
	p.published = append(p.published, evt)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func TestNotificationWorkerPublishesInOrder(t *testing.T) {
	pub := &fakePublisher{}
	w := NewNotificationWorker(pub, 8, utils.NopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	w.Emit(models.Event{Kind: models.EventXPGained, UserID: "u1"})
	w.Emit(models.Event{Kind: models.EventBadgeUnlocked, UserID: "u1", BadgeKey: "first_quiz"})

	require.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, models.EventXPGained, pub.published[0].Kind)
	assert.Equal(t, "first_quiz", pub.published[1].BadgeKey)
	assert.Zero(t, w.Dropped())
}

func TestNotificationWorkerDropsWhenFull(t *testing.T) {
	pub := &fakePublisher{}
	w := NewNotificationWorker(pub, 2, utils.NopLogger())

	for i := 0; i < 5; i++ {
		w.Emit(models.Event{Kind: models.EventXPGained, UserID: "u1"})
	}
	assert.Equal(t, int64(3), w.Dropped())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)
	assert.Equal(t, 2, pub.count(), "queued events are flushed on shutdown")
}

func TestNotificationWorkerSurvivesPublishErrors(t *testing.T) {
	pub := &fakePublisher{fail: true}
	w := NewNotificationWorker(pub, 4, utils.NopLogger())
	w.Emit(models.Event{Kind: models.EventXPGained, UserID: "u1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)
	assert.Zero(t, pub.count())
}
