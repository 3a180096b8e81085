package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "researchd:doc:"

// RedisStore keeps document research state in Redis with a small local
// cache in front of it. The cache is refreshed on every Save, so within one
// process reads after a merge always observe the merged state even if Redis
// reads lag.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]*Document
}

// NewRedisStore connects to Redis and verifies the connection. The password
// is taken from REDIS_PASSWORD.
func NewRedisStore(addr string, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     os.Getenv("REDIS_PASSWORD"),
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		logger: logger,
		cache:  make(map[string]*Document),
	}, nil
}

// NewRedisStoreFromClient wraps an existing client; used by tests with
// miniredis.
func NewRedisStoreFromClient(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger,
		cache:  make(map[string]*Document),
	}
}

func (s *RedisStore) Get(ctx context.Context, documentID string) (*Document, error) {
	s.mu.RLock()
	cached := s.cache[documentID]
	s.mu.RUnlock()
	if cached != nil {
		return cached.Clone(), nil
	}

	data, err := s.client.Get(ctx, keyPrefix+documentID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", documentID, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document %s: %w", documentID, err)
	}
	s.mu.Lock()
	s.cache[documentID] = doc.Clone()
	s.mu.Unlock()
	return &doc, nil
}

func (s *RedisStore) Save(ctx context.Context, doc *Document) error {
	c := doc.Clone()
	c.UpdatedAt = time.Now()

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", doc.ID, err)
	}
	if err := s.client.Set(ctx, keyPrefix+doc.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}

	s.mu.Lock()
	s.cache[doc.ID] = c
	s.mu.Unlock()
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying connection.
func (s *RedisStore) Close() error { return s.client.Close() }
