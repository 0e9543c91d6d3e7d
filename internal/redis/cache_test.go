package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type cachedThing struct {
	ID   string `json:"id"`
	Size int    `json:"size"`
}

func TestRedisCache_SetGetDelete(t *testing.T) {
	_, rdb := newTestRedis(t)
	c := NewCache(rdb)
	ctx := context.Background()

	if err := c.Set(ctx, "appointments:id:1", cachedThing{ID: "1", Size: 3}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got cachedThing
	hit, err := c.Get(ctx, "appointments:id:1", &got)
	if err != nil || !hit {
		t.Fatalf("Get hit=%v err=%v", hit, err)
	}
	if got.ID != "1" || got.Size != 3 {
		t.Errorf("unexpected value %+v", got)
	}

	if err := c.Delete(ctx, "appointments:id:1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	hit, err = c.Get(ctx, "appointments:id:1", &got)
	if err != nil || hit {
		t.Fatalf("expected miss after delete, hit=%v err=%v", hit, err)
	}
}

func TestRedisCache_DeletePrefix(t *testing.T) {
	mr, rdb := newTestRedis(t)
	c := NewCache(rdb)
	ctx := context.Background()

	for _, k := range []string{"appointments:id:1", "appointments:doctor:x", "followups:id:1"} {
		if err := c.Set(ctx, k, cachedThing{ID: k}, time.Minute); err != nil {
			t.Fatal(err)
		}
	}

	if err := c.DeletePrefix(ctx, "appointments:"); err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}

	if mr.Exists("appointments:id:1") || mr.Exists("appointments:doctor:x") {
		t.Error("expected appointment keys to be removed")
	}
	if !mr.Exists("followups:id:1") {
		t.Error("expected follow-up key to survive")
	}
}

func TestReadThrough(t *testing.T) {
	_, rdb := newTestRedis(t)
	c := NewCache(rdb)
	ctx := context.Background()
	log := zerolog.Nop()

	calls := 0
	load := func(ctx context.Context) (cachedThing, error) {
		calls++
		return cachedThing{ID: "a", Size: calls}, nil
	}

	first, err := ReadThrough(ctx, c, log, "k", time.Minute, load)
	if err != nil {
		t.Fatal(err)
	}
	second, err := ReadThrough(ctx, c, log, "k", time.Minute, load)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("expected loader to run once, ran %d times", calls)
	}
	if first != second {
		t.Errorf("expected cached value %+v, got %+v", first, second)
	}

	Invalidate(ctx, c, log, "k")
	if _, err := ReadThrough(ctx, c, log, "k", time.Minute, load); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("expected reload after invalidation, calls=%d", calls)
	}
}

func TestReadThrough_DoesNotCacheErrors(t *testing.T) {
	_, rdb := newTestRedis(t)
	c := NewCache(rdb)
	boom := errors.New("store down")

	_, err := ReadThrough(context.Background(), c, zerolog.Nop(), "k", time.Minute, func(ctx context.Context) (cachedThing, error) {
		return cachedThing{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}

	var got cachedThing
	if hit, _ := c.Get(context.Background(), "k", &got); hit {
		t.Error("errors must not be cached")
	}
}

func TestReadThrough_SurvivesBrokenCache(t *testing.T) {
	mr, rdb := newTestRedis(t)
	c := NewCache(rdb)
	mr.Close()

	v, err := ReadThrough(context.Background(), c, zerolog.Nop(), "k", time.Minute, func(ctx context.Context) (cachedThing, error) {
		return cachedThing{ID: "from-store"}, nil
	})
	if err != nil {
		t.Fatalf("expected loader result despite cache outage, got %v", err)
	}
	if v.ID != "from-store" {
		t.Errorf("unexpected value %+v", v)
	}
}
