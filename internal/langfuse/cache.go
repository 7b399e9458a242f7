package langfuse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	errx "github.com/langfuse-nodes/server/internal/core/error"
	logx "github.com/langfuse-nodes/server/pkg/logger"
)

// PromptCache stores fetched prompts keyed by name, version and label.
type PromptCache interface {
	Get(ctx context.Context, key string) (*Prompt, bool, error)
	Set(ctx context.Context, key string, p *Prompt, ttl time.Duration) error
}

type memoryEntry struct {
	prompt  *Prompt
	expires time.Time
}

// MemoryCache is a process-local PromptCache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryCache) Get(_ context.Context, key string) (*Prompt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if m.now().After(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return e.prompt, true, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, p *Prompt, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{prompt: p, expires: m.now().Add(ttl)}
	return nil
}

// redisKV is the subset of redis.Cmdable the cache uses.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisCache shares fetched prompts between processes.
type RedisCache struct {
	rdb    redisKV
	prefix string
}

func NewRedisCache(rdb redisKV, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "langfuse:prompt"
	}
	return &RedisCache{rdb: rdb, prefix: prefix}
}

func (r *RedisCache) key(k string) string {
	return fmt.Sprintf("%s:%s", r.prefix, k)
}

func (r *RedisCache) Get(ctx context.Context, key string) (*Prompt, bool, error) {
	raw, err := r.rdb.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, errx.WrapRedis(err)
	}
	var p Prompt
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		logx.Warn().Err(err).Str("key", r.key(key)).Msg("discarding unreadable cached prompt")
		return nil, false, nil
	}
	return &p, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, p *Prompt, ttl time.Duration) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prompt: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key(key), b, ttl).Err(); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}

var (
	_ PromptCache = (*MemoryCache)(nil)
	_ PromptCache = (*RedisCache)(nil)
)
