package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewWithClient(client), s
}

func TestTryLockIsExclusiveUntilReleased(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	release, ok, err := locker.TryLock(ctx, "document:d1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first TryLock() = %v, %v", ok, err)
	}
	if _, ok, err := locker.TryLock(ctx, "document:d1", time.Minute); err != nil || ok {
		t.Fatalf("second TryLock() should fail, got %v, %v", ok, err)
	}
	if _, ok, _ := locker.TryLock(ctx, "document:d2", time.Minute); !ok {
		t.Fatalf("other keys are independent")
	}

	release()
	if _, ok, err := locker.TryLock(ctx, "document:d1", time.Minute); err != nil || !ok {
		t.Fatalf("TryLock() after release = %v, %v", ok, err)
	}
}

func TestExpiredLockIsNotReleasedByOldHolder(t *testing.T) {
	locker, s := newTestLocker(t)
	ctx := context.Background()

	staleRelease, ok, _ := locker.TryLock(ctx, "document:d1", time.Second)
	if !ok {
		t.Fatalf("expected lock")
	}
	s.FastForward(2 * time.Second)

	if _, ok, _ := locker.TryLock(ctx, "document:d1", time.Minute); !ok {
		t.Fatalf("expired lock should be re-acquirable")
	}
	staleRelease()
	if !s.Exists("formly:lock:document:d1") {
		t.Fatalf("stale release must not drop the new holder's lock")
	}
}
