package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"progress-ledger/models"
	"progress-ledger/utils"

	goredis "github.com/redis/go-redis/v9"
)

// Publisher delivers one event to the notification transport.
type Publisher interface {
	Publish(ctx context.Context, evt models.Event) error
	Close() error
}

// RedisPublisher publishes events as JSON on a Redis pub/sub channel.
type RedisPublisher struct {
	rdb     *goredis.Client
	channel string
}

func NewRedisPublisher(ctx context.Context, addr, channel string) (*RedisPublisher, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if channel == "" {
		channel = "progress-events"
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisPublisher{rdb: rdb, channel: channel}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, evt models.Event) error {
	raw, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, raw).Err()
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

// LogPublisher only logs events. Used when no transport is configured.
type LogPublisher struct {
	Log *utils.Logger
}

func (p *LogPublisher) Publish(_ context.Context, evt models.Event) error {
	p.Log.Debug("event", "kind", evt.Kind, "user_id", evt.UserID)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
