package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/omnichat/pkg/domain/interfaces"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
	"github.com/secmon-lab/omnichat/pkg/repository/memory"
)

func TestSubscriptions(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	id := types.NewThreadID(types.PlatformSlack, "C123", "111.222")

	gt.False(t, gt.R1(store.IsSubscribed(ctx, id)).NoError(t))
	gt.NoError(t, store.Subscribe(ctx, id))
	gt.True(t, gt.R1(store.IsSubscribed(ctx, id)).NoError(t))

	// Subscribe is idempotent
	gt.NoError(t, store.Subscribe(ctx, id))
	gt.True(t, gt.R1(store.IsSubscribed(ctx, id)).NoError(t))

	gt.NoError(t, store.Unsubscribe(ctx, id))
	gt.False(t, gt.R1(store.IsSubscribed(ctx, id)).NoError(t))
}

func TestSubscribeInvalidThreadID(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	gt.Error(t, store.Subscribe(ctx, types.ThreadID("garbage")))
}

func TestLockLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := func() time.Time { return now }
	store := memory.New(memory.WithClock(clock))
	id := types.NewThreadID(types.PlatformTelegram, "42", "")

	lock := gt.R1(store.AcquireLock(ctx, id, 30*time.Second)).NoError(t)
	gt.Value(t, lock).NotNil()
	gt.Value(t, lock.ThreadID).Equal(id)

	// Contended: second acquire returns nil without error
	contended := gt.R1(store.AcquireLock(ctx, id, 30*time.Second)).NoError(t)
	gt.Value(t, contended).Nil()

	// Extend pushes expiry forward
	gt.True(t, gt.R1(store.ExtendLock(ctx, lock, time.Minute)).NoError(t))
	gt.Value(t, lock.ExpiresAt).Equal(now.Add(time.Minute))

	gt.NoError(t, store.ReleaseLock(ctx, lock))
	relocked := gt.R1(store.AcquireLock(ctx, id, 30*time.Second)).NoError(t)
	gt.Value(t, relocked).NotNil()
}

func TestLockTTLExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := memory.New(memory.WithClock(func() time.Time { return now }))
	id := types.NewThreadID(types.PlatformDiscord, "555", "")

	stale := gt.R1(store.AcquireLock(ctx, id, 10*time.Second)).NoError(t)
	gt.Value(t, stale).NotNil()

	// Past the TTL the lock is reaped and re-acquirable
	now = now.Add(11 * time.Second)
	fresh := gt.R1(store.AcquireLock(ctx, id, 10*time.Second)).NoError(t)
	gt.Value(t, fresh).NotNil()

	// The stale holder can no longer extend, and releasing it must not
	// clobber the new owner.
	gt.False(t, gt.R1(store.ExtendLock(ctx, stale, time.Minute)).NoError(t))
	gt.NoError(t, store.ReleaseLock(ctx, stale))
	contended := gt.R1(store.AcquireLock(ctx, id, 10*time.Second)).NoError(t)
	gt.Value(t, contended).Nil()
}

func TestTenantIsolation(t *testing.T) {
	ctx := context.Background()
	storeA := memory.New()
	storeB := memory.New()
	id := types.NewThreadID(types.PlatformSlack, "C777", "1.2")

	gt.NoError(t, storeA.Subscribe(ctx, id))
	gt.False(t, gt.R1(storeB.IsSubscribed(ctx, id)).NoError(t))

	lockA := gt.R1(storeA.AcquireLock(ctx, id, time.Minute)).NoError(t)
	gt.Value(t, lockA).NotNil()
	lockB := gt.R1(storeB.AcquireLock(ctx, id, time.Minute)).NoError(t)
	gt.Value(t, lockB).NotNil()
}

func TestInstallations(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	inst := &model.Installation{
		Platform:      types.PlatformSlack,
		WorkspaceID:   "T123",
		BotToken:      "xoxb-test",
		SigningSecret: "shhh",
		BotUserID:     "U999",
	}
	gt.NoError(t, store.PutInstallation(ctx, inst))

	got := gt.R1(store.GetInstallation(ctx, types.PlatformSlack, "T123")).NoError(t)
	gt.Value(t, got.BotToken).Equal("xoxb-test")
	gt.Value(t, got.BotUserID).Equal("U999")
	gt.False(t, got.CreatedAt.IsZero())

	_, err := store.GetInstallation(ctx, types.PlatformSlack, "T999")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, interfaces.ErrNotFound))
}

func TestKV(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	_, err := store.Get(ctx, "missing")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, interfaces.ErrNotFound))

	gt.NoError(t, store.Set(ctx, "greeting", "hello"))
	gt.Value(t, gt.R1(store.Get(ctx, "greeting")).NoError(t)).Equal("hello")

	gt.NoError(t, store.Set(ctx, "greeting", "bonjour"))
	gt.Value(t, gt.R1(store.Get(ctx, "greeting")).NoError(t)).Equal("bonjour")
}
