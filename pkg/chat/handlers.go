package chat

import (
	"context"
	"regexp"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

// MessageHandler handles a normalized message event
type MessageHandler func(ctx context.Context, r *Responder, msg *model.Message) error

// ActionHandler handles a button click or select interaction
type ActionHandler func(ctx context.Context, r *Responder, ev *model.ActionEvent) error

// ActionPredicate selects which actions an ActionHandler fires for
type ActionPredicate func(ev *model.ActionEvent) bool

// ReactionHandler handles an emoji reaction change
type ReactionHandler func(ctx context.Context, r *Responder, ev *model.ReactionEvent) error

// ModalHandler handles a modal form submission
type ModalHandler func(ctx context.Context, r *Responder, ev *model.ModalSubmitEvent) error

// SlashCommandHandler handles a slash command invocation
type SlashCommandHandler func(ctx context.Context, r *Responder, ev *model.SlashCommandEvent) error

// MessageDeletedHandler handles a message deletion event
type MessageDeletedHandler func(ctx context.Context, r *Responder, ev *model.MessageDeletedEvent) error

// MembershipHandler handles a member join or leave event
type MembershipHandler func(ctx context.Context, r *Responder, ev *model.MembershipEvent) error

// SubscriptionHandler observes subscription lifecycle changes made through
// a Responder
type SubscriptionHandler func(ctx context.Context, id types.ThreadID) error

type patternHandler struct {
	re *regexp.Regexp
	fn MessageHandler
}

type actionHandler struct {
	pred ActionPredicate
	fn   ActionHandler
}

type slashHandler struct {
	command string
	fn      SlashCommandHandler
}

// registry holds ordered handler lists per event kind. All handlers of a
// matching kind fire in registration order.
type registry struct {
	newMention      []MessageHandler
	subscribed      []MessageHandler
	newMessage      []patternHandler
	actions         []actionHandler
	reactionAdded   []ReactionHandler
	reactionRemoved []ReactionHandler
	modalSubmit     []ModalHandler
	slashCommands   []slashHandler
	messageEdited   []MessageHandler
	messageDeleted  []MessageDeletedHandler
	memberJoined    []MembershipHandler
	memberLeft      []MembershipHandler
	subscribe       []SubscriptionHandler
	unsubscribe     []SubscriptionHandler
}

// OnNewMention registers a handler for messages that mention the bot.
// DM messages are coerced into this class by the adapters.
func (c *Chat) OnNewMention(h MessageHandler) {
	c.handlers.newMention = append(c.handlers.newMention, h)
}

// OnSubscribedMessage registers a handler for non-mention messages in
// threads present in the subscription set
func (c *Chat) OnSubscribedMessage(h MessageHandler) {
	c.handlers.subscribed = append(c.handlers.subscribed, h)
}

// OnNewMessage registers a handler fired for any message whose text
// matches the pattern, independent of mention or subscription routing.
// The pattern is compiled as a case-insensitive regular expression.
func (c *Chat) OnNewMessage(pattern string, h MessageHandler) error {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return goerr.Wrap(err, "invalid message pattern",
			goerr.V("pattern", pattern), goerr.T(types.TagValidation))
	}
	c.handlers.newMessage = append(c.handlers.newMessage, patternHandler{re: re, fn: h})
	return nil
}

// OnAction registers a handler fired only when the event's action ID
// matches exactly
func (c *Chat) OnAction(actionID string, h ActionHandler) {
	c.handlers.actions = append(c.handlers.actions, actionHandler{
		pred: func(ev *model.ActionEvent) bool { return ev.ActionID == actionID },
		fn:   h,
	})
}

// OnAnyAction registers a catch-all handler fired for every action event,
// in addition to any exact-match handlers
func (c *Chat) OnAnyAction(h ActionHandler) {
	c.handlers.actions = append(c.handlers.actions, actionHandler{
		pred: func(*model.ActionEvent) bool { return true },
		fn:   h,
	})
}

// OnActionMatch registers a handler gated by an arbitrary predicate
func (c *Chat) OnActionMatch(pred ActionPredicate, h ActionHandler) {
	c.handlers.actions = append(c.handlers.actions, actionHandler{pred: pred, fn: h})
}

// OnReactionAdded registers a handler for added reactions
func (c *Chat) OnReactionAdded(h ReactionHandler) {
	c.handlers.reactionAdded = append(c.handlers.reactionAdded, h)
}

// OnReactionRemoved registers a handler for removed reactions
func (c *Chat) OnReactionRemoved(h ReactionHandler) {
	c.handlers.reactionRemoved = append(c.handlers.reactionRemoved, h)
}

// OnModalSubmit registers a handler for modal submissions
func (c *Chat) OnModalSubmit(h ModalHandler) {
	c.handlers.modalSubmit = append(c.handlers.modalSubmit, h)
}

// OnSlashCommand registers a handler for a slash command. The command
// should include the leading slash; an empty command matches every
// slash command.
func (c *Chat) OnSlashCommand(command string, h SlashCommandHandler) {
	c.handlers.slashCommands = append(c.handlers.slashCommands, slashHandler{command: command, fn: h})
}

// OnMessageEdited registers a handler for message edits
func (c *Chat) OnMessageEdited(h MessageHandler) {
	c.handlers.messageEdited = append(c.handlers.messageEdited, h)
}

// OnMessageDeleted registers a handler for message deletions
func (c *Chat) OnMessageDeleted(h MessageDeletedHandler) {
	c.handlers.messageDeleted = append(c.handlers.messageDeleted, h)
}

// OnMemberJoined registers a handler for members joining a conversation
func (c *Chat) OnMemberJoined(h MembershipHandler) {
	c.handlers.memberJoined = append(c.handlers.memberJoined, h)
}

// OnMemberLeft registers a handler for members leaving a conversation
func (c *Chat) OnMemberLeft(h MembershipHandler) {
	c.handlers.memberLeft = append(c.handlers.memberLeft, h)
}

// OnSubscribe registers a lifecycle hook fired after a thread is
// subscribed through a Responder
func (c *Chat) OnSubscribe(h SubscriptionHandler) {
	c.handlers.subscribe = append(c.handlers.subscribe, h)
}

// OnUnsubscribe registers a lifecycle hook fired after a thread is
// unsubscribed through a Responder
func (c *Chat) OnUnsubscribe(h SubscriptionHandler) {
	c.handlers.unsubscribe = append(c.handlers.unsubscribe, h)
}
