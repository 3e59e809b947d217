package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

var ErrSessionNotFound = errors.New("identity session not found or expired")

// IdentitySession is a successful capture that can be presented as a
// fresh proof until it expires.
type IdentitySession struct {
	Account    string    `json:"account"`
	Method     string    `json:"method"`
	Confidence float64   `json:"confidence"`
	CapturedAt time.Time `json:"capturedAt"`
}

type CaptureRecord struct {
	Method     string    `json:"method"`
	Success    bool      `json:"success"`
	Confidence float64   `json:"confidence"`
	DeviceID   string    `json:"deviceId,omitempty"`
	CapturedAt time.Time `json:"capturedAt"`
}

type SessionStore interface {
	Save(ctx context.Context, token string, s IdentitySession, ttl time.Duration) error
	Load(ctx context.Context, token string) (*IdentitySession, error)
	AppendHistory(ctx context.Context, account string, rec CaptureRecord) error
	History(ctx context.Context, account string, limit int) ([]CaptureRecord, error)
}

const maxCaptureHistory = 100

type RedisSessionStore struct {
	rdb *redis.Client
}

func NewRedisSessionStore(rdb *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb}
}

func sessionKey(token string) string   { return fmt.Sprintf("identity:session:%s", token) }
func historyKey(account string) string { return fmt.Sprintf("identity:history:%s", account) }

func (r *RedisSessionStore) Save(ctx context.Context, token string, s IdentitySession, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, sessionKey(token), data, ttl).Err()
}

func (r *RedisSessionStore) Load(ctx context.Context, token string) (*IdentitySession, error) {
	data, err := r.rdb.Get(ctx, sessionKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var s IdentitySession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RedisSessionStore) AppendHistory(ctx context.Context, account string, rec CaptureRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := historyKey(account)
	if err := r.rdb.LPush(ctx, key, data).Err(); err != nil {
		return err
	}
	return r.rdb.LTrim(ctx, key, 0, maxCaptureHistory-1).Err()
}

func (r *RedisSessionStore) History(ctx context.Context, account string, limit int) ([]CaptureRecord, error) {
	if limit <= 0 || limit > maxCaptureHistory {
		limit = maxCaptureHistory
	}
	raw, err := r.rdb.LRange(ctx, historyKey(account), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]CaptureRecord, 0, len(raw))
	for _, item := range raw {
		var rec CaptureRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// MemorySessionStore is used when redis is not configured.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	history  map[string][]CaptureRecord
	now      func() time.Time
}

type memorySession struct {
	session   IdentitySession
	expiresAt time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]memorySession),
		history:  make(map[string][]CaptureRecord),
		now:      time.Now,
	}
}

func (m *MemorySessionStore) Save(ctx context.Context, token string, s IdentitySession, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = memorySession{session: s, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemorySessionStore) Load(ctx context.Context, token string) (*IdentitySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if m.now().After(s.expiresAt) {
		delete(m.sessions, token)
		return nil, ErrSessionNotFound
	}
	cp := s.session
	return &cp, nil
}

func (m *MemorySessionStore) AppendHistory(ctx context.Context, account string, rec CaptureRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := append([]CaptureRecord{rec}, m.history[account]...)
	if len(h) > maxCaptureHistory {
		h = h[:maxCaptureHistory]
	}
	m.history[account] = h
	return nil
}

func (m *MemorySessionStore) History(ctx context.Context, account string, limit int) ([]CaptureRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.history[account]
	if limit > 0 && len(h) > limit {
		h = h[:limit]
	}
	return append([]CaptureRecord(nil), h...), nil
}
