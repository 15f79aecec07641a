package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"schoolhub/attendance/internal/db"
)

// GradeCache is a read-through cache over the grades table. It is never the
// source of truth: a missed invalidation is repaired by the TTL.
type GradeCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewGradeCache accepts a nil client; every lookup is then a miss and
// writes are no-ops, so the service runs uncached.
func NewGradeCache(client *redis.Client, ttl time.Duration) *GradeCache {
	return &GradeCache{redis: client, ttl: ttl}
}

func (c *GradeCache) Get(ctx context.Context, studentID int64) ([]db.Grade, bool, error) {
	if c.redis == nil {
		return nil, false, nil
	}
	value, err := c.redis.Get(ctx, gradeKey(studentID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var grades []db.Grade
	if err := json.Unmarshal([]byte(value), &grades); err != nil {
		return nil, false, err
	}
	return grades, true, nil
}

func (c *GradeCache) Set(ctx context.Context, studentID int64, grades []db.Grade) error {
	if c.redis == nil {
		return nil
	}
	data, err := json.Marshal(grades)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, gradeKey(studentID), data, c.ttl).Err()
}

func (c *GradeCache) Invalidate(ctx context.Context, studentID int64) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Del(ctx, gradeKey(studentID)).Err()
}

func gradeKey(studentID int64) string {
	return fmt.Sprintf("grades:student:%d", studentID)
}
