package services

import (
	"context"
	"math/rand"
	"time"

	"gorm.io/gorm"
)

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gormTxRunner struct {
	db *gorm.DB
}

func NewTxRunner(db *gorm.DB) TxRunner {
	return &gormTxRunner{db: db}
}

func (r *gormTxRunner) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// RetryPolicy bounds the optimistic write loop.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond}

// runWrite executes one transactional unit, retrying when it lost a
// concurrent-update race. Every attempt is a fresh transaction.
func runWrite(ctx context.Context, runner TxRunner, policy RetryPolicy, op string, fn func(tx *gorm.DB) error) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	var last error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := classifyStorageError(op, runner.InTx(ctx, fn))
		if err == nil {
			return nil
		}
		if !IsCode(err, CodeConflict) {
			if ctx.Err() != nil {
				return Wrap(CodeTimeout, op, "operation timed out, please retry", ctx.Err())
			}
			return err
		}
		last = err

		if attempt == policy.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return Wrap(CodeTimeout, op, "operation timed out, please retry", ctx.Err())
		case <-time.After(backoff(policy.BaseDelay, attempt)):
		}
	}
	return Wrap(CodeConflict, op, "too many concurrent updates, please retry", last)
}

func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base << (attempt - 1)
	return d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
}
