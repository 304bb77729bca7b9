package cache

import (
	"context"
	"testing"
	"time"
)

func TestCache_Expiry(t *testing.T) {
	c := New[uint64, string](0)
	defer c.Close()

	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	c.Set(ctx, 1, "mainnet", 12*time.Second)

	if v, ok := c.Get(ctx, 1); !ok || v != "mainnet" {
		t.Fatalf("Get = (%q, %v), want (mainnet, true)", v, ok)
	}

	now = now.Add(13 * time.Second)
	if _, ok := c.Get(ctx, 1); ok {
		t.Error("expected entry to be expired")
	}
}

func TestCache_Delete(t *testing.T) {
	c := New[string, int](0)
	defer c.Close()

	ctx := context.Background()
	c.Set(ctx, "k", 1, time.Minute)
	c.Delete(ctx, "k")

	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("expected entry to be deleted")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
}
