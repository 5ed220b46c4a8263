// Package redistest provides an in-memory redis.RedisClient for tests.
package redistest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/honeynil/RecycleRewardsAdmin/internal/infrastructure/redis"
)

type entry struct {
	value    string
	expireAt time.Time
}

// Fake honours expirations. Setting Err makes every call fail with it.
type Fake struct {
	mu   sync.Mutex
	data map[string]entry
	Err  error
}

func New() *Fake {
	return &Fake{data: make(map[string]entry)}
}

func (f *Fake) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

func (f *Fake) getLocked(key string) (entry, bool) {
	e, ok := f.data[key]
	if !ok {
		return entry{}, false
	}
	if !e.expireAt.IsZero() && !time.Now().Before(e.expireAt) {
		delete(f.data, key)
		return entry{}, false
	}
	return e, true
}

func (f *Fake) setLocked(key string, value interface{}, expiration time.Duration) {
	e := entry{value: fmt.Sprint(value)}
	if expiration > 0 {
		e.expireAt = time.Now().Add(expiration)
	}
	f.data[key] = e
}

func (f *Fake) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	e, ok := f.getLocked(key)
	if !ok {
		return "", redis.ErrKeyNotFound
	}
	return e.value, nil
}

func (f *Fake) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.setLocked(key, value, expiration)
	return nil
}

func (f *Fake) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return false, f.Err
	}
	if _, ok := f.getLocked(key); ok {
		return false, nil
	}
	f.setLocked(key, value, expiration)
	return true, nil
}

func (f *Fake) Del(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	delete(f.data, key)
	return nil
}

func (f *Fake) DelIfEqual(ctx context.Context, key, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return false, f.Err
	}
	e, ok := f.getLocked(key)
	if !ok || e.value != value {
		return false, nil
	}
	delete(f.data, key)
	return true, nil
}

func (f *Fake) Close() error { return nil }

// Has reports whether key is currently set.
func (f *Fake) Has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.getLocked(key)
	return ok
}

var _ redis.RedisClient = (*Fake)(nil)
