package chat

import (
	"context"

	"github.com/secmon-lab/omnichat/pkg/domain/interfaces"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
	"github.com/secmon-lab/omnichat/pkg/utils/errutil"
	"github.com/secmon-lab/omnichat/pkg/utils/logging"
)

// begin resolves the adapter for the thread and acquires the per-thread
// lock. acquired=false with a nil error means the lock is held elsewhere;
// the event must still be acknowledged upstream, so callers skip handler
// invocation and return nil. An empty thread ID (e.g. a modal submitted
// without thread context) skips locking entirely.
func (c *Chat) begin(ctx context.Context, id types.ThreadID) (r *Responder, release func(), acquired bool, err error) {
	var adapter interfaces.Adapter
	if id != "" {
		if err := id.Validate(); err != nil {
			return nil, nil, false, err
		}
		if a, aerr := c.Adapter(id.Platform()); aerr == nil {
			adapter = a
		}
	}

	r = &Responder{chat: c, adapter: adapter, threadID: id}
	if id == "" {
		return r, func() {}, true, nil
	}

	lock, err := c.state.AcquireLock(ctx, id, c.lockTTL)
	if err != nil {
		return nil, nil, false, err
	}
	if lock == nil {
		return nil, nil, false, nil
	}

	r.lock = lock
	release = func() {
		if err := c.state.ReleaseLock(ctx, lock); err != nil {
			_ = errutil.Handle(ctx, err, "failed to release thread lock")
		}
	}
	return r, release, true, nil
}

// invoke runs one application handler. Handler errors and panics are
// contained here: they are logged but never fail the dispatch, so the
// webhook still acknowledges and the platform does not retry delivery.
func (c *Chat) invoke(ctx context.Context, kind string, fn func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.From(ctx).Error("recovered panic in handler", "kind", kind, "panic", rec)
		}
	}()
	if err := fn(); err != nil {
		_ = errutil.Handle(ctx, err, "handler failed: "+kind)
	}
}

// DispatchMessage routes a normalized message: own messages are dropped,
// mentions go to the mention handlers, subscribed threads to the
// subscribed-message handlers, and pattern handlers fire independently of
// either class.
func (c *Chat) DispatchMessage(ctx context.Context, msg *model.Message) error {
	if msg.Author.IsMe {
		logging.From(ctx).Debug("dropping own message", "thread_id", msg.ThreadID)
		return nil
	}

	r, release, acquired, err := c.begin(ctx, msg.ThreadID)
	if err != nil {
		return err
	}
	if !acquired {
		logging.From(ctx).Warn("thread busy, skipping message", "thread_id", msg.ThreadID)
		return nil
	}
	defer release()

	if msg.IsMention {
		for _, h := range c.handlers.newMention {
			c.invoke(ctx, "new_mention", func() error { return h(ctx, r, msg) })
		}
	} else {
		subscribed, err := c.state.IsSubscribed(ctx, msg.ThreadID)
		if err != nil {
			return err
		}
		if subscribed {
			for _, h := range c.handlers.subscribed {
				c.invoke(ctx, "subscribed_message", func() error { return h(ctx, r, msg) })
			}
		}
	}

	for _, ph := range c.handlers.newMessage {
		if ph.re.MatchString(msg.Text) {
			c.invoke(ctx, "new_message", func() error { return ph.fn(ctx, r, msg) })
		}
	}
	return nil
}

// DispatchMessageEdited routes a message edit. Own edits are dropped:
// streaming rewrites the bot's own message and platforms report each
// rewrite as an edit event.
func (c *Chat) DispatchMessageEdited(ctx context.Context, msg *model.Message) error {
	if msg.Author.IsMe {
		return nil
	}

	r, release, acquired, err := c.begin(ctx, msg.ThreadID)
	if err != nil {
		return err
	}
	if !acquired {
		logging.From(ctx).Warn("thread busy, skipping message edit", "thread_id", msg.ThreadID)
		return nil
	}
	defer release()

	for _, h := range c.handlers.messageEdited {
		c.invoke(ctx, "message_edited", func() error { return h(ctx, r, msg) })
	}
	return nil
}

// DispatchMessageDeleted routes a message deletion
func (c *Chat) DispatchMessageDeleted(ctx context.Context, ev *model.MessageDeletedEvent) error {
	r, release, acquired, err := c.begin(ctx, ev.Thread.ID)
	if err != nil {
		return err
	}
	if !acquired {
		logging.From(ctx).Warn("thread busy, skipping message deletion", "thread_id", ev.Thread.ID)
		return nil
	}
	defer release()

	for _, h := range c.handlers.messageDeleted {
		c.invoke(ctx, "message_deleted", func() error { return h(ctx, r, ev) })
	}
	return nil
}

// DispatchAction routes an interaction: exact-ID handlers fire on match,
// catch-all handlers fire for every action, and both classes may fire for
// the same event.
func (c *Chat) DispatchAction(ctx context.Context, ev *model.ActionEvent) error {
	r, release, acquired, err := c.begin(ctx, ev.Thread.ID)
	if err != nil {
		return err
	}
	if !acquired {
		logging.From(ctx).Warn("thread busy, skipping action", "thread_id", ev.Thread.ID)
		return nil
	}
	defer release()

	for _, h := range c.handlers.actions {
		if h.pred(ev) {
			c.invoke(ctx, "action", func() error { return h.fn(ctx, r, ev) })
		}
	}
	return nil
}

// DispatchReaction routes a reaction change. Reactions the bot added
// itself are dropped to avoid feedback loops.
func (c *Chat) DispatchReaction(ctx context.Context, ev *model.ReactionEvent) error {
	if ev.Author.IsMe {
		return nil
	}

	r, release, acquired, err := c.begin(ctx, ev.Thread.ID)
	if err != nil {
		return err
	}
	if !acquired {
		logging.From(ctx).Warn("thread busy, skipping reaction", "thread_id", ev.Thread.ID)
		return nil
	}
	defer release()

	handlers := c.handlers.reactionAdded
	kind := "reaction_added"
	if ev.Type == model.ReactionRemoved {
		handlers = c.handlers.reactionRemoved
		kind = "reaction_removed"
	}
	for _, h := range handlers {
		c.invoke(ctx, kind, func() error { return h(ctx, r, ev) })
	}
	return nil
}

// DispatchModalSubmit routes a modal submission. The thread ID may be
// empty when the modal carried no thread context.
func (c *Chat) DispatchModalSubmit(ctx context.Context, ev *model.ModalSubmitEvent) error {
	r, release, acquired, err := c.begin(ctx, ev.Thread.ID)
	if err != nil {
		return err
	}
	if !acquired {
		logging.From(ctx).Warn("thread busy, skipping modal submit", "thread_id", ev.Thread.ID)
		return nil
	}
	defer release()

	for _, h := range c.handlers.modalSubmit {
		c.invoke(ctx, "modal_submit", func() error { return h(ctx, r, ev) })
	}
	return nil
}

// DispatchSlashCommand routes a slash command to handlers registered for
// that command; handlers registered with an empty command receive all.
func (c *Chat) DispatchSlashCommand(ctx context.Context, ev *model.SlashCommandEvent) error {
	r, release, acquired, err := c.begin(ctx, ev.Thread.ID)
	if err != nil {
		return err
	}
	if !acquired {
		logging.From(ctx).Warn("thread busy, skipping slash command", "thread_id", ev.Thread.ID)
		return nil
	}
	defer release()

	for _, h := range c.handlers.slashCommands {
		if h.command != "" && h.command != ev.Command {
			continue
		}
		c.invoke(ctx, "slash_command", func() error { return h.fn(ctx, r, ev) })
	}
	return nil
}

// DispatchMembership routes a member join or leave event
func (c *Chat) DispatchMembership(ctx context.Context, ev *model.MembershipEvent) error {
	r, release, acquired, err := c.begin(ctx, ev.Thread.ID)
	if err != nil {
		return err
	}
	if !acquired {
		logging.From(ctx).Warn("thread busy, skipping membership event", "thread_id", ev.Thread.ID)
		return nil
	}
	defer release()

	handlers := c.handlers.memberJoined
	kind := "member_joined"
	if !ev.Joined {
		handlers = c.handlers.memberLeft
		kind = "member_left"
	}
	for _, h := range handlers {
		c.invoke(ctx, kind, func() error { return h(ctx, r, ev) })
	}
	return nil
}
