package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"image-pipeline/internal/config"
)

const wakeKey = "images:wake"

// Notifier is the fire-and-forget bridge between intake and the dispatcher.
// Intake pushes one token per inserted task onto a Redis list; the dispatcher
// blocks on that list instead of sleeping through its idle interval, so fresh
// work is picked up promptly without a second execution path.
type Notifier struct {
	client *redis.Client
}

// NewNotifier builds a notifier from config.
func NewNotifier(cfg config.Config) *Notifier {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &Notifier{client: client}
}

// NewNotifierWithClient wraps an existing Redis client.
func NewNotifierWithClient(client *redis.Client) *Notifier {
	return &Notifier{client: client}
}

// Wake signals that n new tasks were inserted.
func (n *Notifier) Wake(ctx context.Context, count int) error {
	if count <= 0 {
		return nil
	}
	tokens := make([]any, count)
	for i := range tokens {
		tokens[i] = "1"
	}
	return n.client.RPush(ctx, wakeKey, tokens...).Err()
}

// AwaitWork blocks up to timeout for a wake token. It returns true when a
// token arrived and false when the wait timed out, which is the dispatcher's
// idle backoff.
func (n *Notifier) AwaitWork(ctx context.Context, timeout time.Duration) (bool, error) {
	_, err := n.client.BLPop(ctx, timeout, wakeKey).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Drain discards queued wake tokens. The dispatcher calls it after a poll
// cycle that claimed work, since one poll covers every token accumulated so
// far.
func (n *Notifier) Drain(ctx context.Context) error {
	return n.client.Del(ctx, wakeKey).Err()
}

// Depth reports the number of undelivered wake tokens.
func (n *Notifier) Depth(ctx context.Context) (int64, error) {
	return n.client.LLen(ctx, wakeKey).Result()
}
