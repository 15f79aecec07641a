package cache

import (
	"context"
	"testing"
	"time"
)

func TestGradeKey(t *testing.T) {
	if got := gradeKey(101); got != "grades:student:101" {
		t.Fatalf("unexpected key %s", got)
	}
}

func TestNilClientDegradesToMiss(t *testing.T) {
	cache := NewGradeCache(nil, 600*time.Second)
	ctx := context.Background()

	grades, hit, err := cache.Get(ctx, 101)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if hit || grades != nil {
		t.Fatalf("expected miss with nil client")
	}
	if err := cache.Set(ctx, 101, nil); err != nil {
		t.Fatalf("set should be a no-op, got %v", err)
	}
	if err := cache.Invalidate(ctx, 101); err != nil {
		t.Fatalf("invalidate should be a no-op, got %v", err)
	}
}
