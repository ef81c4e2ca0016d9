package model

import (
	"time"

	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

// Lock is an advisory, TTL-bound per-thread lock. It is scoped to one
// StateStore instance: two stores never share locks even when ThreadID
// strings collide, which is what isolates tenants.
type Lock struct {
	ThreadID  types.ThreadID
	Token     string
	ExpiresAt time.Time
}

// Expired reports whether the lock's TTL has elapsed at t
func (l *Lock) Expired(t time.Time) bool {
	return !l.ExpiresAt.After(t)
}
