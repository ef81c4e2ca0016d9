// Package chat is the per-tenant dispatcher: it owns one state store and
// a set of platform adapters, routes normalized events to registered
// handlers, and enforces the one-concurrent-handler-set-per-thread rule
// through advisory TTL locks.
package chat

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/interfaces"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

const (
	defaultLockTTL        = time.Minute
	defaultStreamInterval = 500 * time.Millisecond
)

// Chat routes events for one tenant. All cross-request state lives in
// the state store; Chat itself is stateless between requests once
// handler registration is done.
type Chat struct {
	state          interfaces.StateStore
	adapters       map[types.Platform]interfaces.Adapter
	handlers       registry
	lockTTL        time.Duration
	streamInterval time.Duration
	now            func() time.Time
}

var _ interfaces.Dispatcher = &Chat{}

// Option is a functional option for Chat configuration
type Option func(*Chat)

// WithAdapter registers a platform adapter
func WithAdapter(a interfaces.Adapter) Option {
	return func(c *Chat) {
		c.adapters[a.Platform()] = a
	}
}

// WithLockTTL sets the per-thread lock TTL
func WithLockTTL(ttl time.Duration) Option {
	return func(c *Chat) {
		c.lockTTL = ttl
	}
}

// WithStreamInterval sets the minimum interval between streaming edits
func WithStreamInterval(d time.Duration) Option {
	return func(c *Chat) {
		c.streamInterval = d
	}
}

// WithClock replaces the time source (for tests)
func WithClock(now func() time.Time) Option {
	return func(c *Chat) {
		c.now = now
	}
}

// New creates a new Chat dispatcher over the given state store
func New(state interfaces.StateStore, opts ...Option) *Chat {
	c := &Chat{
		state:          state,
		adapters:       map[types.Platform]interfaces.Adapter{},
		lockTTL:        defaultLockTTL,
		streamInterval: defaultStreamInterval,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the tenant's state store
func (c *Chat) State() interfaces.StateStore {
	return c.state
}

// Adapter returns the adapter registered for the platform
func (c *Chat) Adapter(platform types.Platform) (interfaces.Adapter, error) {
	a, ok := c.adapters[platform]
	if !ok {
		return nil, goerr.New("no adapter registered for platform",
			goerr.V("platform", platform), goerr.T(types.TagValidation))
	}
	return a, nil
}

// HandleWebhook is the inbound entry point used by the HTTP boundary:
// it resolves the platform adapter and hands it the raw request together
// with this dispatcher.
func (c *Chat) HandleWebhook(ctx context.Context, platform types.Platform, req *model.WebhookRequest) (*model.WebhookResponse, error) {
	a, err := c.Adapter(platform)
	if err != nil {
		return nil, err
	}
	return a.HandleWebhook(ctx, req, c)
}
