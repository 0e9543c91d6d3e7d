package redisclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestWithSlotLock_ReleasesAfterRun(t *testing.T) {
	mr, rdb := newTestRedis(t)
	locker := NewRedisSlotLocker(rdb, 5*time.Second)

	ran := false
	err := locker.WithSlotLock(context.Background(), "doctor-1:2025-06-01", func(ctx context.Context) error {
		ran = true
		if !mr.Exists("lock:slot:doctor-1:2025-06-01") {
			t.Error("expected lock key to exist while running")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithSlotLock: %v", err)
	}
	if !ran {
		t.Fatal("expected fn to run")
	}
	if mr.Exists("lock:slot:doctor-1:2025-06-01") {
		t.Error("expected lock key to be released")
	}
}

func TestWithSlotLock_ContendedKey(t *testing.T) {
	mr, rdb := newTestRedis(t)
	locker := NewRedisSlotLocker(rdb, 5*time.Second)

	if err := mr.Set("lock:slot:busy", "someone-else"); err != nil {
		t.Fatal(err)
	}

	err := locker.WithSlotLock(context.Background(), "busy", func(ctx context.Context) error {
		t.Error("fn must not run when the lock is held")
		return nil
	})
	if !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("expected ErrLockNotAcquired, got %v", err)
	}

	// a foreign token must survive our release attempt
	if got, _ := mr.Get("lock:slot:busy"); got != "someone-else" {
		t.Errorf("foreign lock was modified: %q", got)
	}
}

func TestWithSlotLock_PropagatesError(t *testing.T) {
	_, rdb := newTestRedis(t)
	locker := NewRedisSlotLocker(rdb, 5*time.Second)

	boom := errors.New("boom")
	err := locker.WithSlotLock(context.Background(), "k", func(ctx context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestWithSlotLock_OnlyOneConcurrentHolder(t *testing.T) {
	_, rdb := newTestRedis(t)
	locker := NewRedisSlotLocker(rdb, 5*time.Second)

	var (
		wg       sync.WaitGroup
		holders  int32
		maxSeen  int32
		acquired int32
		start    = make(chan struct{})
	)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_ = locker.WithSlotLock(context.Background(), "same", func(ctx context.Context) error {
				atomic.AddInt32(&acquired, 1)
				n := atomic.AddInt32(&holders, 1)
				if n > atomic.LoadInt32(&maxSeen) {
					atomic.StoreInt32(&maxSeen, n)
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&holders, -1)
				return nil
			})
		}()
	}
	close(start)
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("expected at most one holder at a time, saw %d", maxSeen)
	}
	if acquired < 1 {
		t.Error("expected at least one goroutine to acquire the lock")
	}
}
