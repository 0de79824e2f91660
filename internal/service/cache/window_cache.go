package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
	"InvSight/internal/domain/repository"
	pkgcache "InvSight/pkg/cache"
	applogger "InvSight/pkg/logger"
)

const windowPrefix = "window"

// WindowOption configures WindowCache.
type WindowOption func(*WindowCache)

// WithTTL sets how long an idle window is kept.
func WithTTL(d time.Duration) WindowOption {
	return func(c *WindowCache) { c.ttl = d }
}

// WithLockTTL bounds how long a crashed holder can block a subject.
func WithLockTTL(d time.Duration) WindowOption {
	return func(c *WindowCache) { c.lockTTL = d }
}

// WithPollInterval sets the lock retry interval.
func WithPollInterval(d time.Duration) WindowOption {
	return func(c *WindowCache) { c.poll = d }
}

// WindowCache stores per-subject WindowStates as JSON in a pkg/cache backend.
// With the Redis backend the lock is shared across replicas.
type WindowCache struct {
	svc     pkgcache.Service
	ttl     time.Duration
	lockTTL time.Duration
	poll    time.Duration
	l       *applogger.Logger
}

var _ repository.WindowCache = (*WindowCache)(nil)

func NewWindowCache(svc pkgcache.Service, opts ...WindowOption) *WindowCache {
	c := &WindowCache{
		svc:     svc,
		ttl:     time.Hour,
		lockTTL: 5 * time.Second,
		poll:    10 * time.Millisecond,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *WindowCache) SetLogger(l *applogger.Logger) { c.l = l }

// WindowKey scopes a subject's window to the contract and snapshot it was built from.
func WindowKey(contractVersion, snapshotVersion, subject string) string {
	return pkgcache.GenerateKeyWithParams(windowPrefix, contractVersion, snapshotVersion, subject)
}

func (c *WindowCache) Load(ctx context.Context, key string) (*models.WindowState, bool, error) {
	var raw string
	if err := c.svc.Get(ctx, key, &raw); err != nil {
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, errs.Store("window cache load", err)
	}
	w := &models.WindowState{}
	if err := json.Unmarshal([]byte(raw), w); err != nil {
		// A corrupt entry is treated as a miss and rebuilt by the caller.
		if c.l != nil {
			c.l.Warn("window cache entry unreadable", applogger.String("key", key), applogger.Error(err))
		}
		return nil, false, nil
	}
	return w, true, nil
}

func (c *WindowCache) Store(ctx context.Context, key string, w *models.WindowState) error {
	b, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode window %s: %w", key, err)
	}
	if err := c.svc.Set(ctx, key, string(b), c.ttl); err != nil {
		return errs.Store("window cache store", err)
	}
	return nil
}

// Lock blocks until the subject lock is acquired or ctx is done.
func (c *WindowCache) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := pkgcache.GenerateKey("lock", key)
	for {
		token, ok, err := c.svc.TryLock(ctx, lockKey, c.lockTTL)
		if err != nil {
			return nil, errs.Store("window lock", err)
		}
		if ok {
			return func() {
				uctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := c.svc.Unlock(uctx, lockKey, token); err != nil && c.l != nil {
					c.l.Warn("window unlock failed", applogger.String("key", key), applogger.Error(err))
				}
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, errs.Store("window lock "+key, ctx.Err())
		case <-time.After(c.poll):
		}
	}
}

// Invalidate drops every cached window, typically after a snapshot swap.
func (c *WindowCache) Invalidate(ctx context.Context) error {
	if err := c.svc.DeleteByPattern(ctx, pkgcache.BuildPattern(windowPrefix+":")); err != nil {
		return errs.Store("window cache invalidate", err)
	}
	return nil
}
