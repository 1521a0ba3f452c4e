package cron

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type memoryStore struct {
	values map[string]string
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func TestRedisLockIsExclusive(t *testing.T) {
	store := &memoryStore{values: map[string]string{}}
	ctx := context.Background()
	first, err := NewRedisLock(store, "backoffice:lock:sweep", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, _ := NewRedisLock(store, "backoffice:lock:sweep", time.Minute)

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("second instance must not acquire a held lock")
	}
	// a non-owner release leaves the lock in place
	if err := second.Release(ctx); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if _, held := store.values["backoffice:lock:sweep"]; !held {
		t.Fatal("lock released by non-owner")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatal("expected lock to be free after owner release")
	}
}

func TestRedisLockReleaseAfterExpiry(t *testing.T) {
	store := &memoryStore{values: map[string]string{}}
	lock, _ := NewRedisLock(store, "k", 0)
	ctx := context.Background()
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}
	delete(store.values, "k")
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release of expired lock: %v", err)
	}
	if lock.ttl != defaultLockTTL {
		t.Fatalf("expected default ttl, got %v", lock.ttl)
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", time.Second); err == nil {
		t.Fatal("expected nil client to fail")
	}
	if _, err := NewRedisLock(&memoryStore{}, "", time.Second); err == nil {
		t.Fatal("expected empty key to fail")
	}
}
