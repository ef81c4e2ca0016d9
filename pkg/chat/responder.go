package chat

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/interfaces"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

// Responder is the outbound facade handed to every handler. It is bound
// to the event's thread and platform adapter, and carries the thread lock
// so long-running handlers can extend it.
type Responder struct {
	chat     *Chat
	adapter  interfaces.Adapter
	threadID types.ThreadID
	lock     *model.Lock
}

// ThreadID returns the thread the event belongs to
func (r *Responder) ThreadID() types.ThreadID {
	return r.threadID
}

// Adapter returns the platform adapter for the event's thread
func (r *Responder) Adapter() interfaces.Adapter {
	return r.adapter
}

// State returns the tenant's state store
func (r *Responder) State() interfaces.StateStore {
	return r.chat.state
}

func (r *Responder) require() (interfaces.Adapter, error) {
	if r.adapter == nil || r.threadID == "" {
		return nil, goerr.New("event has no thread context",
			goerr.V("thread_id", r.threadID), goerr.T(types.TagValidation))
	}
	return r.adapter, nil
}

// Post sends a message to the event's thread and returns its message ID
func (r *Responder) Post(ctx context.Context, text string) (string, error) {
	a, err := r.require()
	if err != nil {
		return "", err
	}
	return a.PostMessage(ctx, r.threadID, text)
}

// Edit replaces the text of a previously posted message
func (r *Responder) Edit(ctx context.Context, messageID, text string) error {
	a, err := r.require()
	if err != nil {
		return err
	}
	return a.EditMessage(ctx, r.threadID, messageID, text)
}

// Delete removes a previously posted message
func (r *Responder) Delete(ctx context.Context, messageID string) error {
	a, err := r.require()
	if err != nil {
		return err
	}
	return a.DeleteMessage(ctx, r.threadID, messageID)
}

// React adds an emoji reaction to a message
func (r *Responder) React(ctx context.Context, messageID, emoji string) error {
	a, err := r.require()
	if err != nil {
		return err
	}
	return a.AddReaction(ctx, r.threadID, messageID, emoji)
}

// Unreact removes an emoji reaction from a message
func (r *Responder) Unreact(ctx context.Context, messageID, emoji string) error {
	a, err := r.require()
	if err != nil {
		return err
	}
	return a.RemoveReaction(ctx, r.threadID, messageID, emoji)
}

// Typing shows a typing indicator in the event's thread
func (r *Responder) Typing(ctx context.Context) error {
	a, err := r.require()
	if err != nil {
		return err
	}
	return a.StartTyping(ctx, r.threadID)
}

// Ephemeral sends a message visible only to the given user
func (r *Responder) Ephemeral(ctx context.Context, userID, text string) error {
	a, err := r.require()
	if err != nil {
		return err
	}
	return a.PostEphemeral(ctx, r.threadID, userID, text)
}

// OpenModal opens a modal dialog using the event's trigger
func (r *Responder) OpenModal(ctx context.Context, triggerID string, modal *model.Modal) error {
	if r.adapter == nil {
		return goerr.New("event has no platform context", goerr.T(types.TagValidation))
	}
	return r.adapter.OpenModal(ctx, triggerID, modal)
}

// Subscribe adds the thread to the subscription set so follow-up
// messages route to the subscribed-message handlers, then fires the
// subscription lifecycle hooks.
func (r *Responder) Subscribe(ctx context.Context) error {
	if r.threadID == "" {
		return goerr.New("event has no thread context", goerr.T(types.TagValidation))
	}
	if err := r.chat.state.Subscribe(ctx, r.threadID); err != nil {
		return err
	}
	for _, h := range r.chat.handlers.subscribe {
		r.chat.invoke(ctx, "subscribe", func() error { return h(ctx, r.threadID) })
	}
	return nil
}

// Unsubscribe removes the thread from the subscription set and fires the
// lifecycle hooks
func (r *Responder) Unsubscribe(ctx context.Context) error {
	if r.threadID == "" {
		return goerr.New("event has no thread context", goerr.T(types.TagValidation))
	}
	if err := r.chat.state.Unsubscribe(ctx, r.threadID); err != nil {
		return err
	}
	for _, h := range r.chat.handlers.unsubscribe {
		r.chat.invoke(ctx, "unsubscribe", func() error { return h(ctx, r.threadID) })
	}
	return nil
}

// ExtendLock renews the thread lock for another TTL window. Long-running
// handlers call this to keep the lock from expiring mid-execution. It
// reports false when the lock was lost.
func (r *Responder) ExtendLock(ctx context.Context) (bool, error) {
	if r.lock == nil {
		return false, nil
	}
	return r.chat.state.ExtendLock(ctx, r.lock, r.chat.lockTTL)
}
