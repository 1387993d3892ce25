package ratelimit

import (
	"context"
	"errors"
	"time"
)

var ErrEmptyKey = errors.New("rate limit key must not be empty")

// Store counts hits per key within a window. Implementations must expire
// counters with the window and must surface backing-store failures as
// errors; callers decide whether to fail open or closed (the auth
// pipeline fails closed).
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Policy is one row of the per-route limit table.
type Policy struct {
	Limit  int64
	Window time.Duration
}

var (
	RegisterPerIP = Policy{Limit: 3, Window: time.Hour}
	LoginPerIP    = Policy{Limit: 10, Window: 10 * time.Minute}
	LoginPerEmail = Policy{Limit: 5, Window: 15 * time.Minute}
	CSRFPerIP     = Policy{Limit: 5, Window: 60 * time.Second}
)

// Limiter answers allow/deny for namespaced keys. Keys are prefixed with
// the deployment environment so counters never collide across
// environments sharing one backing store.
type Limiter struct {
	store Store
	env   string
}

func New(store Store, env string) *Limiter {
	return &Limiter{store: store, env: env}
}

// Allow records one hit for action+scope and reports whether it is
// within the policy. A store failure propagates; it never reads as an
// implicit allow.
func (l *Limiter) Allow(ctx context.Context, action, scope string, p Policy) (bool, error) {
	if action == "" || scope == "" {
		return false, ErrEmptyKey
	}

	key := l.env + ":ratelimit:" + action + ":" + scope
	count, err := l.store.Incr(ctx, key, p.Window)
	if err != nil {
		return false, err
	}
	return count <= p.Limit, nil
}
