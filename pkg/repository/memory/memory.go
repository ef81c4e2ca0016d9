// Package memory provides the in-memory StateStore reference
// implementation. One Store instance serves one tenant; nothing in here is
// shared across instances.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/interfaces"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

type instKey struct {
	platform    types.Platform
	workspaceID string
}

// Store is an in-memory StateStore
type Store struct {
	mu            sync.Mutex
	subscriptions map[types.ThreadID]struct{}
	locks         map[types.ThreadID]*model.Lock
	installations map[instKey]*model.Installation
	kv            map[string]string

	now func() time.Time
}

var _ interfaces.StateStore = &Store{}

// Option is a functional option for Store configuration
type Option func(*Store)

// WithClock replaces the time source (for tests)
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a new in-memory Store
func New(opts ...Option) *Store {
	s := &Store{
		subscriptions: make(map[types.ThreadID]struct{}),
		locks:         make(map[types.ThreadID]*model.Lock),
		installations: make(map[instKey]*model.Installation),
		kv:            make(map[string]string),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Subscribe(ctx context.Context, id types.ThreadID) error {
	if err := id.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[id] = struct{}{}
	return nil
}

func (s *Store) Unsubscribe(ctx context.Context, id types.ThreadID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, id)
	return nil
}

func (s *Store) IsSubscribed(ctx context.Context, id types.ThreadID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subscriptions[id]
	return ok, nil
}

// AcquireLock returns (nil, nil) when the lock is currently held. Expired
// locks are reaped lazily here instead of by a background janitor.
func (s *Store) AcquireLock(ctx context.Context, id types.ThreadID, ttl time.Duration) (*model.Lock, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if held, ok := s.locks[id]; ok {
		if !held.Expired(now) {
			return nil, nil
		}
		delete(s.locks, id)
	}

	lock := &model.Lock{
		ThreadID:  id,
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(ttl),
	}
	s.locks[id] = lock

	copied := *lock
	return &copied, nil
}

func (s *Store) ExtendLock(ctx context.Context, lock *model.Lock, ttl time.Duration) (bool, error) {
	if lock == nil {
		return false, goerr.New("lock is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	held, ok := s.locks[lock.ThreadID]
	if !ok || held.Token != lock.Token || held.Expired(s.now()) {
		return false, nil
	}

	held.ExpiresAt = s.now().Add(ttl)
	lock.ExpiresAt = held.ExpiresAt
	return true, nil
}

func (s *Store) ReleaseLock(ctx context.Context, lock *model.Lock) error {
	if lock == nil {
		return goerr.New("lock is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	held, ok := s.locks[lock.ThreadID]
	if !ok || held.Token != lock.Token {
		// Already expired and taken over, or never held. Releasing a lost
		// lock is not an error; the holder must not clobber the new owner.
		return nil
	}

	delete(s.locks, lock.ThreadID)
	return nil
}

func (s *Store) GetInstallation(ctx context.Context, platform types.Platform, workspaceID string) (*model.Installation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.installations[instKey{platform: platform, workspaceID: workspaceID}]
	if !ok {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "installation not found",
			goerr.V("platform", platform), goerr.V("workspace_id", workspaceID))
	}

	copied := *inst
	return &copied, nil
}

func (s *Store) PutInstallation(ctx context.Context, inst *model.Installation) error {
	if err := inst.Validate(); err != nil {
		return goerr.Wrap(err, "invalid installation")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *inst
	now := s.now()
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = now
	}
	copied.UpdatedAt = now
	s.installations[instKey{platform: inst.Platform, workspaceID: inst.WorkspaceID}] = &copied
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.kv[key]
	if !ok {
		return "", goerr.Wrap(interfaces.ErrNotFound, "key not found", goerr.V("key", key))
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = value
	return nil
}

func (s *Store) Close() error {
	return nil
}
