package chat_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/omnichat/pkg/chat"
	"github.com/secmon-lab/omnichat/pkg/domain/interfaces"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
	"github.com/secmon-lab/omnichat/pkg/repository/memory"
)

type postCall struct {
	ThreadID types.ThreadID
	Text     string
}

type editCall struct {
	ThreadID  types.ThreadID
	MessageID string
	Text      string
}

// stubAdapter records outbound calls for assertions
type stubAdapter struct {
	mu    sync.Mutex
	posts []postCall
	edits []editCall
}

var _ interfaces.Adapter = &stubAdapter{}

func (s *stubAdapter) Platform() types.Platform { return types.PlatformSlack }

func (s *stubAdapter) HandleWebhook(ctx context.Context, req *model.WebhookRequest, d interfaces.Dispatcher) (*model.WebhookResponse, error) {
	return model.Ack(), nil
}

func (s *stubAdapter) ValidateThreadID(id types.ThreadID) error { return id.Validate() }
func (s *stubAdapter) ChannelIDFromThreadID(id types.ThreadID) (string, error) {
	return id.Fields()[0], nil
}
func (s *stubAdapter) IsDM(id types.ThreadID) bool { return false }
func (s *stubAdapter) ParseMessage(raw json.RawMessage) (*model.Message, error) {
	return &model.Message{Raw: raw}, nil
}

func (s *stubAdapter) PostMessage(ctx context.Context, id types.ThreadID, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, postCall{ThreadID: id, Text: text})
	return fmt.Sprintf("m%d", len(s.posts)), nil
}

func (s *stubAdapter) EditMessage(ctx context.Context, id types.ThreadID, messageID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edits = append(s.edits, editCall{ThreadID: id, MessageID: messageID, Text: text})
	return nil
}

func (s *stubAdapter) DeleteMessage(ctx context.Context, id types.ThreadID, messageID string) error {
	return nil
}
func (s *stubAdapter) AddReaction(ctx context.Context, id types.ThreadID, messageID, emoji string) error {
	return nil
}
func (s *stubAdapter) RemoveReaction(ctx context.Context, id types.ThreadID, messageID, emoji string) error {
	return nil
}
func (s *stubAdapter) StartTyping(ctx context.Context, id types.ThreadID) error {
	return types.NewNotImplemented(types.PlatformSlack, "StartTyping")
}
func (s *stubAdapter) FetchMessages(ctx context.Context, id types.ThreadID, limit int, cursor string) ([]*model.Message, string, error) {
	return nil, "", nil
}
func (s *stubAdapter) FetchMessage(ctx context.Context, id types.ThreadID, messageID string) (*model.Message, error) {
	return nil, nil
}
func (s *stubAdapter) FetchThread(ctx context.Context, id types.ThreadID) (*model.ThreadInfo, error) {
	return &model.ThreadInfo{ID: id}, nil
}
func (s *stubAdapter) OpenDM(ctx context.Context, userID string) (types.ThreadID, error) {
	return types.NewThreadID(types.PlatformSlack, "D"+userID, ""), nil
}
func (s *stubAdapter) PostEphemeral(ctx context.Context, id types.ThreadID, userID, text string) error {
	return nil
}
func (s *stubAdapter) OpenModal(ctx context.Context, triggerID string, modal *model.Modal) error {
	return nil
}
func (s *stubAdapter) PostChannelMessage(ctx context.Context, channelID, text string) (string, error) {
	return "", nil
}
func (s *stubAdapter) FetchChannelMessages(ctx context.Context, channelID string, limit int, cursor string) ([]*model.Message, string, error) {
	return nil, "", nil
}
func (s *stubAdapter) FetchChannelInfo(ctx context.Context, channelID string) (*model.Channel, error) {
	return &model.Channel{ID: channelID, Platform: types.PlatformSlack}, nil
}
func (s *stubAdapter) ListThreads(ctx context.Context, channelID string, limit int, cursor string) ([]types.ThreadID, string, error) {
	return nil, "", nil
}
func (s *stubAdapter) PinMessage(ctx context.Context, id types.ThreadID, messageID string) error {
	return nil
}
func (s *stubAdapter) UnpinMessage(ctx context.Context, id types.ThreadID, messageID string) error {
	return nil
}

func threadID(fields ...string) types.ThreadID {
	return types.NewThreadID(types.PlatformSlack, fields...)
}

func newMessage(id types.ThreadID, text string, mention bool) *model.Message {
	return &model.Message{
		ID:        "1700000000.000100",
		ThreadID:  id,
		Text:      text,
		IsMention: mention,
		Author:    model.Author{UserID: "U123", UserName: "alice"},
		CreatedAt: time.Unix(1700000000, 0),
	}
}

func TestSelfMessageNeverRouted(t *testing.T) {
	c := chat.New(memory.New(), chat.WithAdapter(&stubAdapter{}))

	var fired int
	c.OnNewMention(func(ctx context.Context, r *chat.Responder, msg *model.Message) error {
		fired++
		return nil
	})
	c.OnSubscribedMessage(func(ctx context.Context, r *chat.Responder, msg *model.Message) error {
		fired++
		return nil
	})
	gt.NoError(t, c.OnNewMessage(".*", func(ctx context.Context, r *chat.Responder, msg *model.Message) error {
		fired++
		return nil
	}))

	ctx := context.Background()
	id := threadID("C1", "1.1")
	gt.NoError(t, c.State().Subscribe(ctx, id))

	msg := newMessage(id, "status report", true)
	msg.Author.IsMe = true
	gt.NoError(t, c.DispatchMessage(ctx, msg))
	gt.Value(t, fired).Equal(0)
}

func TestMentionRouting(t *testing.T) {
	c := chat.New(memory.New(), chat.WithAdapter(&stubAdapter{}))

	var mentions, subscribed []string
	c.OnNewMention(func(ctx context.Context, r *chat.Responder, msg *model.Message) error {
		mentions = append(mentions, msg.Text)
		return nil
	})
	c.OnSubscribedMessage(func(ctx context.Context, r *chat.Responder, msg *model.Message) error {
		subscribed = append(subscribed, msg.Text)
		return nil
	})

	ctx := context.Background()
	id := threadID("C1", "1.1")

	gt.NoError(t, c.DispatchMessage(ctx, newMessage(id, "hello bot", true)))
	gt.Array(t, mentions).Length(1)
	gt.Array(t, subscribed).Length(0)

	// Non-mention in an unsubscribed thread routes nowhere
	gt.NoError(t, c.DispatchMessage(ctx, newMessage(id, "just chatting", false)))
	gt.Array(t, mentions).Length(1)
	gt.Array(t, subscribed).Length(0)
}

func TestSubscriptionRouting(t *testing.T) {
	c := chat.New(memory.New(), chat.WithAdapter(&stubAdapter{}))

	var subscribed []string
	c.OnSubscribedMessage(func(ctx context.Context, r *chat.Responder, msg *model.Message) error {
		subscribed = append(subscribed, msg.Text)
		return nil
	})

	ctx := context.Background()
	id := threadID("C1", "1.1")
	gt.NoError(t, c.State().Subscribe(ctx, id))

	gt.NoError(t, c.DispatchMessage(ctx, newMessage(id, "follow-up", false)))
	gt.Array(t, subscribed).Length(1)

	// A different thread in the same store is not subscribed
	gt.NoError(t, c.DispatchMessage(ctx, newMessage(threadID("C2", "2.2"), "other", false)))
	gt.Array(t, subscribed).Length(1)
}

func TestPatternHandlersFireIndependently(t *testing.T) {
	c := chat.New(memory.New(), chat.WithAdapter(&stubAdapter{}))

	var mentions, patterns []string
	c.OnNewMention(func(ctx context.Context, r *chat.Responder, msg *model.Message) error {
		mentions = append(mentions, msg.Text)
		return nil
	})
	gt.NoError(t, c.OnNewMessage(`\bdeploy\b`, func(ctx context.Context, r *chat.Responder, msg *model.Message) error {
		patterns = append(patterns, msg.Text)
		return nil
	}))

	ctx := context.Background()
	id := threadID("C1", "1.1")

	// Mention and pattern both fire for one message
	gt.NoError(t, c.DispatchMessage(ctx, newMessage(id, "please DEPLOY the gateway", true)))
	gt.Array(t, mentions).Length(1)
	gt.Array(t, patterns).Length(1)

	// Pattern fires without mention or subscription
	gt.NoError(t, c.DispatchMessage(ctx, newMessage(id, "deploy finished", false)))
	gt.Array(t, mentions).Length(1)
	gt.Array(t, patterns).Length(2)

	gt.NoError(t, c.DispatchMessage(ctx, newMessage(id, "deployment is a different word", false)))
	gt.Array(t, patterns).Length(2)
}

func TestActionRoutingExactAndCatchAll(t *testing.T) {
	c := chat.New(memory.New(), chat.WithAdapter(&stubAdapter{}))

	var exact, all []string
	c.OnAction("approve", func(ctx context.Context, r *chat.Responder, ev *model.ActionEvent) error {
		exact = append(exact, ev.Value)
		return nil
	})
	c.OnAnyAction(func(ctx context.Context, r *chat.Responder, ev *model.ActionEvent) error {
		all = append(all, ev.ActionID)
		return nil
	})

	ctx := context.Background()
	thread := model.Thread{ID: threadID("C1", "1.1")}

	gt.NoError(t, c.DispatchAction(ctx, &model.ActionEvent{Thread: thread, ActionID: "approve", Value: "req-1"}))
	gt.Array(t, exact).Length(1)
	gt.Array(t, all).Length(1)

	gt.NoError(t, c.DispatchAction(ctx, &model.ActionEvent{Thread: thread, ActionID: "reject", Value: "req-2"}))
	gt.Array(t, exact).Length(1)
	gt.Array(t, all).Length(2)
}

func TestSlashCommandRouting(t *testing.T) {
	c := chat.New(memory.New(), chat.WithAdapter(&stubAdapter{}))

	var status, any []string
	c.OnSlashCommand("/status", func(ctx context.Context, r *chat.Responder, ev *model.SlashCommandEvent) error {
		status = append(status, ev.Text)
		return nil
	})
	c.OnSlashCommand("", func(ctx context.Context, r *chat.Responder, ev *model.SlashCommandEvent) error {
		any = append(any, ev.Command)
		return nil
	})

	ctx := context.Background()
	thread := model.Thread{ID: threadID("C1", "1.1")}

	gt.NoError(t, c.DispatchSlashCommand(ctx, &model.SlashCommandEvent{Thread: thread, Command: "/status", Text: "gateway"}))
	gt.NoError(t, c.DispatchSlashCommand(ctx, &model.SlashCommandEvent{Thread: thread, Command: "/restart"}))

	gt.Array(t, status).Length(1)
	gt.Value(t, status[0]).Equal("gateway")
	gt.Array(t, any).Length(2)
}

func TestReactionRouting(t *testing.T) {
	c := chat.New(memory.New(), chat.WithAdapter(&stubAdapter{}))

	var added, removed []string
	c.OnReactionAdded(func(ctx context.Context, r *chat.Responder, ev *model.ReactionEvent) error {
		added = append(added, ev.Emoji)
		return nil
	})
	c.OnReactionRemoved(func(ctx context.Context, r *chat.Responder, ev *model.ReactionEvent) error {
		removed = append(removed, ev.Emoji)
		return nil
	})

	ctx := context.Background()
	thread := model.Thread{ID: threadID("C1", "1.1")}

	gt.NoError(t, c.DispatchReaction(ctx, &model.ReactionEvent{Thread: thread, Emoji: "eyes", Type: model.ReactionAdded}))
	gt.NoError(t, c.DispatchReaction(ctx, &model.ReactionEvent{Thread: thread, Emoji: "eyes", Type: model.ReactionRemoved}))

	// The bot's own reactions are dropped
	gt.NoError(t, c.DispatchReaction(ctx, &model.ReactionEvent{
		Thread: thread, Emoji: "robot", Type: model.ReactionAdded,
		Author: model.Author{IsMe: true},
	}))

	gt.Array(t, added).Length(1)
	gt.Array(t, removed).Length(1)
}

func TestMembershipRouting(t *testing.T) {
	c := chat.New(memory.New(), chat.WithAdapter(&stubAdapter{}))

	var joined, left []string
	c.OnMemberJoined(func(ctx context.Context, r *chat.Responder, ev *model.MembershipEvent) error {
		joined = append(joined, ev.UserID)
		return nil
	})
	c.OnMemberLeft(func(ctx context.Context, r *chat.Responder, ev *model.MembershipEvent) error {
		left = append(left, ev.UserID)
		return nil
	})

	ctx := context.Background()
	thread := model.Thread{ID: threadID("C1", "1.1")}

	gt.NoError(t, c.DispatchMembership(ctx, &model.MembershipEvent{Thread: thread, UserID: "U1", Joined: true}))
	gt.NoError(t, c.DispatchMembership(ctx, &model.MembershipEvent{Thread: thread, UserID: "U2", Joined: false}))

	gt.Array(t, joined).Length(1)
	gt.Value(t, joined[0]).Equal("U1")
	gt.Array(t, left).Length(1)
	gt.Value(t, left[0]).Equal("U2")
}

func TestLockContentionSkipsHandlers(t *testing.T) {
	store := memory.New()
	c := chat.New(store, chat.WithAdapter(&stubAdapter{}))

	var fired int
	c.OnNewMention(func(ctx context.Context, r *chat.Responder, msg *model.Message) error {
		fired++
		return nil
	})

	ctx := context.Background()
	id := threadID("C1", "1.1")

	lock := gt.R1(store.AcquireLock(ctx, id, time.Minute)).NoError(t)
	gt.Value(t, lock).NotNil()

	// Held lock: the event acks but no handler runs
	gt.NoError(t, c.DispatchMessage(ctx, newMessage(id, "hello", true)))
	gt.Value(t, fired).Equal(0)

	gt.NoError(t, store.ReleaseLock(ctx, lock))
	gt.NoError(t, c.DispatchMessage(ctx, newMessage(id, "hello again", true)))
	gt.Value(t, fired).Equal(1)
}

func TestLockReleasedAfterDispatch(t *testing.T) {
	store := memory.New()
	c := chat.New(store, chat.WithAdapter(&stubAdapter{}))
	c.OnNewMention(func(ctx context.Context, r *chat.Responder, msg *model.Message) error {
		return nil
	})

	ctx := context.Background()
	id := threadID("C1", "1.1")
	gt.NoError(t, c.DispatchMessage(ctx, newMessage(id, "hello", true)))

	lock := gt.R1(store.AcquireLock(ctx, id, time.Minute)).NoError(t)
	gt.Value(t, lock).NotNil()
}

func TestHandlerFailuresAreContained(t *testing.T) {
	store := memory.New()
	c := chat.New(store, chat.WithAdapter(&stubAdapter{}))

	var after int
	c.OnNewMention(func(ctx context.Context, r *chat.Responder, msg *model.Message) error {
		panic("handler bug")
	})
	c.OnNewMention(func(ctx context.Context, r *chat.Responder, msg *model.Message) error {
		return fmt.Errorf("handler error")
	})
	c.OnNewMention(func(ctx context.Context, r *chat.Responder, msg *model.Message) error {
		after++
		return nil
	})

	ctx := context.Background()
	id := threadID("C1", "1.1")

	gt.NoError(t, c.DispatchMessage(ctx, newMessage(id, "hello", true)))
	gt.Value(t, after).Equal(1)

	// Lock was still released despite the panic
	lock := gt.R1(store.AcquireLock(ctx, id, time.Minute)).NoError(t)
	gt.Value(t, lock).NotNil()
}

func TestTenantIsolation(t *testing.T) {
	storeA := memory.New()
	storeB := memory.New()
	a := chat.New(storeA, chat.WithAdapter(&stubAdapter{}))
	b := chat.New(storeB, chat.WithAdapter(&stubAdapter{}))

	var firedA, firedB int
	a.OnSubscribedMessage(func(ctx context.Context, r *chat.Responder, msg *model.Message) error {
		firedA++
		return nil
	})
	b.OnSubscribedMessage(func(ctx context.Context, r *chat.Responder, msg *model.Message) error {
		firedB++
		return nil
	})

	ctx := context.Background()
	id := threadID("C1", "1.1")
	gt.NoError(t, a.State().Subscribe(ctx, id))

	// The same thread ID string is independent state per tenant
	gt.NoError(t, a.DispatchMessage(ctx, newMessage(id, "follow-up", false)))
	gt.NoError(t, b.DispatchMessage(ctx, newMessage(id, "follow-up", false)))
	gt.Value(t, firedA).Equal(1)
	gt.Value(t, firedB).Equal(0)

	// A lock held by one tenant does not block the other
	lock := gt.R1(storeA.AcquireLock(ctx, id, time.Minute)).NoError(t)
	gt.Value(t, lock).NotNil()
	gt.NoError(t, b.State().Subscribe(ctx, id))
	gt.NoError(t, b.DispatchMessage(ctx, newMessage(id, "not blocked", false)))
	gt.Value(t, firedB).Equal(1)
}

func TestResponderOutbound(t *testing.T) {
	adapter := &stubAdapter{}
	c := chat.New(memory.New(), chat.WithAdapter(adapter))

	c.OnNewMention(func(ctx context.Context, r *chat.Responder, msg *model.Message) error {
		msgID := gt.R1(r.Post(ctx, "working on it")).NoError(t)
		gt.NoError(t, r.Edit(ctx, msgID, "done"))
		return nil
	})

	ctx := context.Background()
	id := threadID("C1", "1.1")
	gt.NoError(t, c.DispatchMessage(ctx, newMessage(id, "hello", true)))

	gt.Array(t, adapter.posts).Length(1)
	gt.Value(t, adapter.posts[0].ThreadID).Equal(id)
	gt.Value(t, adapter.posts[0].Text).Equal("working on it")
	gt.Array(t, adapter.edits).Length(1)
	gt.Value(t, adapter.edits[0].Text).Equal("done")
}

func TestSubscriptionLifecycleHooks(t *testing.T) {
	c := chat.New(memory.New(), chat.WithAdapter(&stubAdapter{}))

	var subscribed, unsubscribed []types.ThreadID
	c.OnSubscribe(func(ctx context.Context, id types.ThreadID) error {
		subscribed = append(subscribed, id)
		return nil
	})
	c.OnUnsubscribe(func(ctx context.Context, id types.ThreadID) error {
		unsubscribed = append(unsubscribed, id)
		return nil
	})

	c.OnNewMention(func(ctx context.Context, r *chat.Responder, msg *model.Message) error {
		return r.Subscribe(ctx)
	})
	c.OnAction("done", func(ctx context.Context, r *chat.Responder, ev *model.ActionEvent) error {
		return r.Unsubscribe(ctx)
	})

	ctx := context.Background()
	id := threadID("C1", "1.1")

	gt.NoError(t, c.DispatchMessage(ctx, newMessage(id, "hello", true)))
	gt.Array(t, subscribed).Length(1)
	gt.Value(t, subscribed[0]).Equal(id)
	gt.True(t, gt.R1(c.State().IsSubscribed(ctx, id)).NoError(t))

	gt.NoError(t, c.DispatchAction(ctx, &model.ActionEvent{Thread: model.Thread{ID: id}, ActionID: "done"}))
	gt.Array(t, unsubscribed).Length(1)
	gt.False(t, gt.R1(c.State().IsSubscribed(ctx, id)).NoError(t))
}

func TestInvalidThreadIDRejected(t *testing.T) {
	c := chat.New(memory.New(), chat.WithAdapter(&stubAdapter{}))

	err := c.DispatchMessage(context.Background(), newMessage(types.ThreadID("bogus"), "hello", true))
	gt.Error(t, err)
	gt.True(t, types.IsValidation(err))
}

func TestUnknownPlatformWebhook(t *testing.T) {
	c := chat.New(memory.New())

	_, err := c.HandleWebhook(context.Background(), types.PlatformSlack, &model.WebhookRequest{})
	gt.Error(t, err)
	gt.True(t, types.IsValidation(err))
}
