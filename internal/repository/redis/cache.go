package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/formpilot/formpilot/internal/config"
	"github.com/formpilot/formpilot/internal/domain"
)

// Cache provides Redis caching functionality
type Cache struct {
	client *redis.Client
}

// Key prefixes for different cache types
const (
	PrefixProfile   = "profile:"
	PrefixSnapshot  = "snapshot:"
	PrefixFillRun   = "fillrun:"
	PrefixRateLimit = "ratelimit:"
)

// Default TTLs
const (
	DefaultTTL      = 15 * time.Minute
	ProfileTTL      = 1 * time.Hour
	SnapshotTTL     = 30 * time.Minute
	RateLimitWindow = 1 * time.Minute
)

// New creates a new Redis cache client
func New(cfg config.RedisConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Health checks Redis connectivity
func (c *Cache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Client returns the underlying Redis client for advanced operations
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Profile caching methods

// GetProfile retrieves a cached user profile
func (c *Cache) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.UserProfile, error) {
	key := PrefixProfile + userID.String()
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var profile domain.UserProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, err
	}

	return &profile, nil
}

// SetProfile caches a user profile
func (c *Cache) SetProfile(ctx context.Context, profile *domain.UserProfile) error {
	key := PrefixProfile + profile.UserID.String()
	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, key, data, ProfileTTL).Err()
}

// InvalidateProfile removes a user profile from cache
func (c *Cache) InvalidateProfile(ctx context.Context, userID uuid.UUID) error {
	key := PrefixProfile + userID.String()
	return c.client.Del(ctx, key).Err()
}

// Learned snapshot caching

// GetSnapshot retrieves a user's cached learned mapping snapshot
func (c *Cache) GetSnapshot(ctx context.Context, userID uuid.UUID) (domain.LearnedSnapshot, error) {
	key := PrefixSnapshot + userID.String()
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var snapshot domain.LearnedSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}

	return snapshot, nil
}

// SetSnapshot caches a user's learned mapping snapshot
func (c *Cache) SetSnapshot(ctx context.Context, userID uuid.UUID, snapshot domain.LearnedSnapshot) error {
	key := PrefixSnapshot + userID.String()
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, key, data, SnapshotTTL).Err()
}

// InvalidateSnapshot removes a user's snapshot after mapping writes
func (c *Cache) InvalidateSnapshot(ctx context.Context, userID uuid.UUID) error {
	key := PrefixSnapshot + userID.String()
	return c.client.Del(ctx, key).Err()
}

// Fill run status caching. Keys are scoped by owner so a cache hit never
// reveals another user's run.

func runStatusKey(userID, id uuid.UUID) string {
	return PrefixFillRun + userID.String() + ":" + id.String() + ":status"
}

// GetRunStatus retrieves cached fill run status
func (c *Cache) GetRunStatus(ctx context.Context, userID, id uuid.UUID) (domain.RunStatus, error) {
	status, err := c.client.Get(ctx, runStatusKey(userID, id)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}

	return domain.RunStatus(status), nil
}

// SetRunStatus caches fill run status
func (c *Cache) SetRunStatus(ctx context.Context, userID, id uuid.UUID, status domain.RunStatus) error {
	return c.client.Set(ctx, runStatusKey(userID, id), string(status), DefaultTTL).Err()
}

// Rate limiting

// CheckRateLimit checks and increments rate limit counter
func (c *Cache) CheckRateLimit(ctx context.Context, key string, limit int) (bool, int, error) {
	fullKey := PrefixRateLimit + key

	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, RateLimitWindow)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, err
	}

	count := int(incr.Val())
	return count <= limit, count, nil
}
