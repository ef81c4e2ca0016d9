// Package firestore provides the Firestore-backed StateStore. One client
// with a distinct collection prefix serves one tenant.
package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/interfaces"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collSubscriptions = "subscriptions"
	collLocks         = "locks"
	collInstallations = "installations"
	collKV            = "kv"
)

// Store is a Firestore-backed StateStore
type Store struct {
	client           *firestore.Client
	collectionPrefix string
	now              func() time.Time
}

var _ interfaces.StateStore = &Store{}

// Option is a functional option for Store configuration
type Option func(*Store)

// WithCollectionPrefix namespaces all collections, which is how multiple
// tenants share one Firestore database without sharing state.
func WithCollectionPrefix(prefix string) Option {
	return func(s *Store) {
		s.collectionPrefix = prefix
	}
}

// WithClock replaces the time source (for tests)
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a new Firestore Store
func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Store, error) {
	var client *firestore.Client
	var err error
	if databaseID == "" {
		client, err = firestore.NewClient(ctx, projectID)
	} else {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID), goerr.V("database_id", databaseID))
	}

	s := &Store{
		client: client,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) collection(name string) *firestore.CollectionRef {
	if s.collectionPrefix != "" {
		return s.client.Collection(s.collectionPrefix + "_" + name)
	}
	return s.client.Collection(name)
}

type subscriptionDoc struct {
	ThreadID  string    `firestore:"thread_id"`
	CreatedAt time.Time `firestore:"created_at"`
}

func (s *Store) Subscribe(ctx context.Context, id types.ThreadID) error {
	if err := id.Validate(); err != nil {
		return err
	}

	doc := subscriptionDoc{ThreadID: id.String(), CreatedAt: s.now()}
	if _, err := s.collection(collSubscriptions).Doc(id.String()).Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to save subscription", goerr.V("thread_id", id))
	}
	return nil
}

func (s *Store) Unsubscribe(ctx context.Context, id types.ThreadID) error {
	if _, err := s.collection(collSubscriptions).Doc(id.String()).Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete subscription", goerr.V("thread_id", id))
	}
	return nil
}

func (s *Store) IsSubscribed(ctx context.Context, id types.ThreadID) (bool, error) {
	_, err := s.collection(collSubscriptions).Doc(id.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, goerr.Wrap(err, "failed to get subscription", goerr.V("thread_id", id))
	}
	return true, nil
}

type lockDoc struct {
	ThreadID  string    `firestore:"thread_id"`
	Token     string    `firestore:"token"`
	ExpiresAt time.Time `firestore:"expires_at"`
}

// errLockContended signals inside the transaction that the lock is held
var errLockContended = goerr.New("lock contended")

// AcquireLock takes the per-thread lock in a transaction so that two
// concurrent webhook deliveries cannot both win. Returns (nil, nil) when
// the lock is currently held.
func (s *Store) AcquireLock(ctx context.Context, id types.ThreadID, ttl time.Duration) (*model.Lock, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	lock := &model.Lock{
		ThreadID:  id,
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(ttl),
	}

	ref := s.collection(collLocks).Doc(id.String())
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return goerr.Wrap(err, "failed to read lock")
		}
		if err == nil {
			var held lockDoc
			if err := snap.DataTo(&held); err != nil {
				return goerr.Wrap(err, "failed to decode lock")
			}
			if held.ExpiresAt.After(now) {
				return errLockContended
			}
		}
		return tx.Set(ref, lockDoc{
			ThreadID:  lock.ThreadID.String(),
			Token:     lock.Token,
			ExpiresAt: lock.ExpiresAt,
		})
	})
	if err != nil {
		if goerr.Unwrap(err) == errLockContended || err == errLockContended {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to acquire lock", goerr.V("thread_id", id))
	}

	return lock, nil
}

func (s *Store) ExtendLock(ctx context.Context, lock *model.Lock, ttl time.Duration) (bool, error) {
	if lock == nil {
		return false, goerr.New("lock is nil")
	}

	now := s.now()
	ref := s.collection(collLocks).Doc(lock.ThreadID.String())
	extended := false
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil
			}
			return goerr.Wrap(err, "failed to read lock")
		}
		var held lockDoc
		if err := snap.DataTo(&held); err != nil {
			return goerr.Wrap(err, "failed to decode lock")
		}
		if held.Token != lock.Token || !held.ExpiresAt.After(now) {
			return nil
		}
		held.ExpiresAt = now.Add(ttl)
		extended = true
		lock.ExpiresAt = held.ExpiresAt
		return tx.Set(ref, held)
	})
	if err != nil {
		return false, goerr.Wrap(err, "failed to extend lock", goerr.V("thread_id", lock.ThreadID))
	}
	return extended, nil
}

func (s *Store) ReleaseLock(ctx context.Context, lock *model.Lock) error {
	if lock == nil {
		return goerr.New("lock is nil")
	}

	ref := s.collection(collLocks).Doc(lock.ThreadID.String())
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil
			}
			return goerr.Wrap(err, "failed to read lock")
		}
		var held lockDoc
		if err := snap.DataTo(&held); err != nil {
			return goerr.Wrap(err, "failed to decode lock")
		}
		if held.Token != lock.Token {
			// Expired and taken over; do not clobber the new owner.
			return nil
		}
		return tx.Delete(ref)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to release lock", goerr.V("thread_id", lock.ThreadID))
	}
	return nil
}

type installationDoc struct {
	Platform      string    `firestore:"platform"`
	WorkspaceID   string    `firestore:"workspace_id"`
	BotToken      string    `firestore:"bot_token"`
	SigningSecret string    `firestore:"signing_secret"`
	BotUserID     string    `firestore:"bot_user_id"`
	CreatedAt     time.Time `firestore:"created_at"`
	UpdatedAt     time.Time `firestore:"updated_at"`
}

func installationDocID(platform types.Platform, workspaceID string) string {
	return string(platform) + ":" + workspaceID
}

func (s *Store) GetInstallation(ctx context.Context, platform types.Platform, workspaceID string) (*model.Installation, error) {
	snap, err := s.collection(collInstallations).Doc(installationDocID(platform, workspaceID)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(interfaces.ErrNotFound, "installation not found",
				goerr.V("platform", platform), goerr.V("workspace_id", workspaceID))
		}
		return nil, goerr.Wrap(err, "failed to get installation",
			goerr.V("platform", platform), goerr.V("workspace_id", workspaceID))
	}

	var doc installationDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode installation")
	}

	return &model.Installation{
		Platform:      types.Platform(doc.Platform),
		WorkspaceID:   doc.WorkspaceID,
		BotToken:      doc.BotToken,
		SigningSecret: doc.SigningSecret,
		BotUserID:     doc.BotUserID,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}, nil
}

func (s *Store) PutInstallation(ctx context.Context, inst *model.Installation) error {
	if err := inst.Validate(); err != nil {
		return goerr.Wrap(err, "invalid installation")
	}

	now := s.now()
	createdAt := inst.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := installationDoc{
		Platform:      string(inst.Platform),
		WorkspaceID:   inst.WorkspaceID,
		BotToken:      inst.BotToken,
		SigningSecret: inst.SigningSecret,
		BotUserID:     inst.BotUserID,
		CreatedAt:     createdAt,
		UpdatedAt:     now,
	}
	ref := s.collection(collInstallations).Doc(installationDocID(inst.Platform, inst.WorkspaceID))
	if _, err := ref.Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to save installation",
			goerr.V("platform", inst.Platform), goerr.V("workspace_id", inst.WorkspaceID))
	}
	return nil
}

type kvDoc struct {
	Value     string    `firestore:"value"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	snap, err := s.collection(collKV).Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", goerr.Wrap(interfaces.ErrNotFound, "key not found", goerr.V("key", key))
		}
		return "", goerr.Wrap(err, "failed to get value", goerr.V("key", key))
	}

	var doc kvDoc
	if err := snap.DataTo(&doc); err != nil {
		return "", goerr.Wrap(err, "failed to decode value", goerr.V("key", key))
	}
	return doc.Value, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	doc := kvDoc{Value: value, UpdatedAt: s.now()}
	if _, err := s.collection(collKV).Doc(key).Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to set value", goerr.V("key", key))
	}
	return nil
}

// ListInstallations returns all stored installations for a platform,
// ordered by workspace ID. Used by the validate command to cross-check
// configuration against stored records.
func (s *Store) ListInstallations(ctx context.Context, platform types.Platform) ([]*model.Installation, error) {
	iter := s.collection(collInstallations).
		Where("platform", "==", string(platform)).
		OrderBy("workspace_id", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var result []*model.Installation
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list installations",
				goerr.V("platform", platform))
		}

		var doc installationDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode installation")
		}
		result = append(result, &model.Installation{
			Platform:      types.Platform(doc.Platform),
			WorkspaceID:   doc.WorkspaceID,
			BotToken:      doc.BotToken,
			SigningSecret: doc.SigningSecret,
			BotUserID:     doc.BotUserID,
			CreatedAt:     doc.CreatedAt,
			UpdatedAt:     doc.UpdatedAt,
		})
	}
	return result, nil
}

// PurgeExpiredLocks deletes lock documents whose TTL elapsed. Contention
// never reads expired locks, so this is housekeeping, not correctness.
func (s *Store) PurgeExpiredLocks(ctx context.Context) (int, error) {
	iter := s.collection(collLocks).
		Where("expires_at", "<", s.now()).
		Documents(ctx)
	defer iter.Stop()

	purged := 0
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return purged, goerr.Wrap(err, "failed to scan expired locks")
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return purged, goerr.Wrap(err, "failed to delete expired lock",
				goerr.V("doc_id", snap.Ref.ID))
		}
		purged++
	}
	return purged, nil
}

func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
