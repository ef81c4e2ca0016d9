package interfaces

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = goerr.New("not found")

// StateStore is the only shared mutable resource crossing request
// boundaries. One instance serves one tenant; tenant isolation comes from
// instance scoping, not from tenant-id fields in keys.
type StateStore interface {
	// Subscription set: controls whether follow-up messages route to the
	// subscribed-message handler class.
	Subscribe(ctx context.Context, id types.ThreadID) error
	Unsubscribe(ctx context.Context, id types.ThreadID) error
	IsSubscribed(ctx context.Context, id types.ThreadID) (bool, error)

	// Advisory TTL locks. AcquireLock returns (nil, nil) when the lock is
	// already held; that is contention, not an error.
	AcquireLock(ctx context.Context, id types.ThreadID, ttl time.Duration) (*model.Lock, error)
	ExtendLock(ctx context.Context, lock *model.Lock, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lock *model.Lock) error

	// Installation credentials, keyed by (platform, workspaceID).
	// GetInstallation returns an error wrapping ErrNotFound when absent.
	GetInstallation(ctx context.Context, platform types.Platform, workspaceID string) (*model.Installation, error)
	PutInstallation(ctx context.Context, inst *model.Installation) error

	// Generic KV for application handlers. Get returns an error wrapping
	// ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error

	Close() error
}
