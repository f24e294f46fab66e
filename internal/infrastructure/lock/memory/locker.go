// Package memory provides an in-process document lock for single-worker
// deployments and the CLI.
package memory

import (
	"context"
	"sync"
	"time"
)

type Locker struct {
	mu    sync.Mutex
	held  map[string]lease
	seq   uint64
	clock func() time.Time
}

type lease struct {
	id        uint64
	expiresAt time.Time
}

func New() *Locker {
	return &Locker{held: map[string]lease{}, clock: time.Now}
}

func (l *Locker) TryLock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if current, ok := l.held[key]; ok && now.Before(current.expiresAt) {
		return nil, false, nil
	}
	l.seq++
	id := l.seq
	l.held[key] = lease{id: id, expiresAt: now.Add(ttl)}

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if current, ok := l.held[key]; ok && current.id == id {
			delete(l.held, key)
		}
	}, true, nil
}
