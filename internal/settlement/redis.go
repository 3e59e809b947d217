package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	sequenceKey   = "settlement:seq"
	eventLogKey   = "settlement:log"
	receiptPrefix = "settlement:receipt:"
)

// RedisEnvironment records settlements in redis: INCR hands out the
// sequence, SETNX pins the receipt to its idempotency key and RPUSH
// appends to the event log.
type RedisEnvironment struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisEnvironment(rdb *redis.Client) *RedisEnvironment {
	return &RedisEnvironment{rdb: rdb, now: time.Now}
}

func (e *RedisEnvironment) Submit(ctx context.Context, req Request) (Receipt, error) {
	if err := req.Validate(); err != nil {
		return Receipt{}, err
	}

	key := receiptPrefix + req.Key
	if r, found, err := e.lookup(ctx, key); err != nil || found {
		return r, err
	}

	seq, err := e.rdb.Incr(ctx, sequenceKey).Result()
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	receipt := Receipt{Reference: reference(uint64(seq)), Sequence: uint64(seq), AcceptedAt: e.now().UTC()}
	payload, err := json.Marshal(receipt)
	if err != nil {
		return Receipt{}, err
	}

	stored, err := e.rdb.SetNX(ctx, key, payload, 0).Result()
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	if !stored {
		// Another submission with the same key won; its receipt stands.
		r, _, err := e.lookup(ctx, key)
		return r, err
	}

	event, err := json.Marshal(Event{Request: req, Receipt: receipt})
	if err != nil {
		return Receipt{}, err
	}
	if err := e.rdb.RPush(ctx, eventLogKey, event).Err(); err != nil {
		log.Printf("[SETTLEMENT] failed to append event %s: %v", receipt.Reference, err)
	}

	return receipt, nil
}

func (e *RedisEnvironment) lookup(ctx context.Context, key string) (Receipt, bool, error) {
	raw, err := e.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return Receipt{}, false, nil
	}
	if err != nil {
		return Receipt{}, false, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	var r Receipt
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Receipt{}, false, fmt.Errorf("corrupt receipt %s: %w", key, err)
	}
	return r, true, nil
}

func (e *RedisEnvironment) Events(ctx context.Context, account string) ([]Event, error) {
	raw, err := e.rdb.LRange(ctx, eventLogKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	var out []Event
	for _, item := range raw {
		var ev Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			log.Printf("[SETTLEMENT] skipping malformed event: %v", err)
			continue
		}
		if ev.involves(account) {
			out = append(out, ev)
		}
	}
	return out, nil
}
