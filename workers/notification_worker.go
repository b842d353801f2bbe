package workers

import (
	"context"
	"sync/atomic"
	"time"

	"progress-ledger/models"
	"progress-ledger/services"
	"progress-ledger/utils"
)

// NotificationWorker decouples event publishing from the request path.
// Emit enqueues without blocking; Run drains the queue into the Publisher.
type NotificationWorker struct {
	publisher services.Publisher
	log       *utils.Logger
	queue     chan models.Event
	timeout   time.Duration
	dropped   atomic.Int64
}

func NewNotificationWorker(publisher services.Publisher, buffer int, log *utils.Logger) *NotificationWorker {
	if buffer < 1 {
		buffer = 1
	}
	return &NotificationWorker{
		publisher: publisher,
		log:       log,
		queue:     make(chan models.Event, buffer),
		timeout:   3 * time.Second,
	}
}

// Emit implements services.EventSink. A full queue drops the event.
func (w *NotificationWorker) Emit(evt models.Event) {
	select {
	case w.queue <- evt:
	default:
		w.dropped.Add(1)
		w.log.Warn("notification queue full, event dropped", "kind", evt.Kind, "user_id", evt.UserID)
	}
}

// Dropped counts events discarded because the queue was full.
func (w *NotificationWorker) Dropped() int64 {
	return w.dropped.Load()
}

// Run publishes until ctx is cancelled, then flushes what is already queued.
func (w *NotificationWorker) Run(ctx context.Context) {
	w.log.Info("notification worker started")
	for {
		select {
		case <-ctx.Done():
			w.drain()
			w.log.Info("notification worker stopped")
			return
		case evt := <-w.queue:
			w.publish(ctx, evt)
		}
	}
}

func (w *NotificationWorker) drain() {
	for {
		select {
		case evt := <-w.queue:
			w.publish(context.Background(), evt)
		default:
			return
		}
	}
}

func (w *NotificationWorker) publish(parent context.Context, evt models.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), w.timeout)
	defer cancel()
	if err := w.publisher.Publish(ctx, evt); err != nil {
		w.log.Warn("event publish failed", "kind", evt.Kind, "user_id", evt.UserID, "error", err)
	}
}
