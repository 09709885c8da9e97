package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"booking-service/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with the lock release script loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireBoatLock takes the per-boat booking lock. The lock is a fast-path
// gate that sheds most concurrent requests for the same boat before they hit
// the database transaction; the transaction remains the correctness
// mechanism. Returns false when another request holds the lock.
func (c *Client) AcquireBoatLock(ctx context.Context, boatID int64, token string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("boat-lock:%d", boatID), token, ttl).Result()
}

// ReleaseBoatLock releases the per-boat lock, but only when the caller still
// owns it. The Lua script makes the get-compare-delete atomic so an expired
// lock re-acquired by another request is never deleted by the old holder.
func (c *Client) ReleaseBoatLock(ctx context.Context, boatID int64, token string) error {
	key := fmt.Sprintf("boat-lock:%d", boatID)
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{key}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

// CacheWindows stores a boat's availability windows for read-path reuse.
func (c *Client) CacheWindows(ctx context.Context, boatID int64, windows []models.AvailabilityWindow, ttl time.Duration) error {
	data, err := json.Marshal(windows)
	if err != nil {
		return fmt.Errorf("marshal windows: %w", err)
	}
	return c.rdb.Set(ctx, fmt.Sprintf("windows:%d", boatID), data, ttl).Err()
}

// GetCachedWindows retrieves cached windows for a boat. Returns nil, nil on
// cache miss.
func (c *Client) GetCachedWindows(ctx context.Context, boatID int64) ([]models.AvailabilityWindow, error) {
	data, err := c.rdb.Get(ctx, fmt.Sprintf("windows:%d", boatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var windows []models.AvailabilityWindow
	if err := json.Unmarshal(data, &windows); err != nil {
		return nil, fmt.Errorf("unmarshal cached windows: %w", err)
	}
	return windows, nil
}

// InvalidateWindows drops the cached windows for a boat after owner edits.
func (c *Client) InvalidateWindows(ctx context.Context, boatID int64) error {
	return c.rdb.Del(ctx, fmt.Sprintf("windows:%d", boatID)).Err()
}
