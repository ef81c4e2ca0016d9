// Package slack implements the Slack adapter: Events API webhook
// normalization, request signature verification and outbound Web API
// calls through the official client.
package slack

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/interfaces"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
	slackapi "github.com/slack-go/slack"
)

// Adapter is the Slack platform adapter
type Adapter struct {
	client        *slackapi.Client
	signingSecret string
	botUserID     string
	now           func() time.Time
}

var _ interfaces.Adapter = &Adapter{}

// Option is a functional option for Adapter configuration
type Option func(*Adapter)

// WithBotUserID sets the bot's own user ID, used for self-detection and
// mention parsing
func WithBotUserID(id string) Option {
	return func(x *Adapter) {
		x.botUserID = id
	}
}

// WithClient replaces the Web API client (for tests)
func WithClient(client *slackapi.Client) Option {
	return func(x *Adapter) {
		x.client = client
	}
}

// WithClock replaces the time source used by signature verification (for
// tests)
func WithClock(now func() time.Time) Option {
	return func(x *Adapter) {
		x.now = now
	}
}

// New creates a new Slack adapter
func New(botToken, signingSecret string, opts ...Option) *Adapter {
	x := &Adapter{
		client:        slackapi.New(botToken),
		signingSecret: signingSecret,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *Adapter) Platform() types.Platform {
	return types.PlatformSlack
}

// apiMessage is the subset of the Slack message shape consumed by
// ParseMessage. It matches both Events API message payloads and Web API
// conversation history entries.
type apiMessage struct {
	Type            string         `json:"type"`
	SubType         string         `json:"subtype"`
	User            string         `json:"user"`
	BotID           string         `json:"bot_id"`
	Username        string         `json:"username"`
	Text            string         `json:"text"`
	Timestamp       string         `json:"ts"`
	ThreadTimestamp string         `json:"thread_ts"`
	Channel         string         `json:"channel"`
	Files           []slackapi.File `json:"files"`
}

func (x *Adapter) ParseMessage(raw json.RawMessage) (*model.Message, error) {
	var m apiMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, goerr.Wrap(err, "failed to parse slack message", goerr.T(types.TagValidation))
	}
	return x.buildMessage(&m, raw), nil
}

func (x *Adapter) buildMessage(m *apiMessage, raw json.RawMessage) *model.Message {
	userID := m.User
	if userID == "" {
		userID = m.BotID
	}

	msg := &model.Message{
		ID:        m.Timestamp,
		ThreadID:  encodeThreadID(m.Channel, m.ThreadTimestamp),
		Text:      m.Text,
		Formatted: m.Text,
		Raw:       raw,
		Author: model.Author{
			UserID:   userID,
			UserName: m.Username,
			IsBot:    m.BotID != "",
			IsMe:     x.isMe(m.User, m.BotID),
		},
		IsMention: x.containsMention(m.Text),
		CreatedAt: tsToTime(m.Timestamp),
	}
	for _, f := range m.Files {
		msg.Attachments = append(msg.Attachments, model.Attachment{
			ID:       f.ID,
			Name:     f.Name,
			MIMEType: f.Mimetype,
			Kind:     types.AttachmentKindFromMIME(f.Mimetype),
			URL:      f.URLPrivate,
			Size:     int64(f.Size),
		})
	}
	return msg
}

func (x *Adapter) isMe(userID, botID string) bool {
	if x.botUserID == "" {
		return false
	}
	return userID == x.botUserID || botID == x.botUserID
}

func (x *Adapter) containsMention(text string) bool {
	if x.botUserID == "" {
		return false
	}
	return strings.Contains(text, "<@"+x.botUserID+">")
}

// tsToTime converts a Slack "seconds.micros" timestamp string
func tsToTime(ts string) time.Time {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

func (x *Adapter) PostMessage(ctx context.Context, id types.ThreadID, text string) (string, error) {
	addr, err := decodeThreadID(id)
	if err != nil {
		return "", err
	}

	opts := []slackapi.MsgOption{slackapi.MsgOptionText(text, false)}
	if addr.ThreadTS != "" {
		opts = append(opts, slackapi.MsgOptionTS(addr.ThreadTS))
	}
	_, ts, err := x.client.PostMessageContext(ctx, addr.ChannelID, opts...)
	if err != nil {
		return "", goerr.Wrap(err, "failed to post message", goerr.V("thread_id", id))
	}
	return ts, nil
}

func (x *Adapter) EditMessage(ctx context.Context, id types.ThreadID, messageID, text string) error {
	addr, err := decodeThreadID(id)
	if err != nil {
		return err
	}
	if _, _, _, err := x.client.UpdateMessageContext(ctx, addr.ChannelID, messageID,
		slackapi.MsgOptionText(text, false)); err != nil {
		return goerr.Wrap(err, "failed to edit message",
			goerr.V("thread_id", id), goerr.V("message_id", messageID))
	}
	return nil
}

func (x *Adapter) DeleteMessage(ctx context.Context, id types.ThreadID, messageID string) error {
	addr, err := decodeThreadID(id)
	if err != nil {
		return err
	}
	if _, _, err := x.client.DeleteMessageContext(ctx, addr.ChannelID, messageID); err != nil {
		return goerr.Wrap(err, "failed to delete message",
			goerr.V("thread_id", id), goerr.V("message_id", messageID))
	}
	return nil
}

func (x *Adapter) AddReaction(ctx context.Context, id types.ThreadID, messageID, emoji string) error {
	addr, err := decodeThreadID(id)
	if err != nil {
		return err
	}
	ref := slackapi.NewRefToMessage(addr.ChannelID, messageID)
	if err := x.client.AddReactionContext(ctx, emoji, ref); err != nil {
		return goerr.Wrap(err, "failed to add reaction",
			goerr.V("thread_id", id), goerr.V("emoji", emoji))
	}
	return nil
}

func (x *Adapter) RemoveReaction(ctx context.Context, id types.ThreadID, messageID, emoji string) error {
	addr, err := decodeThreadID(id)
	if err != nil {
		return err
	}
	ref := slackapi.NewRefToMessage(addr.ChannelID, messageID)
	if err := x.client.RemoveReactionContext(ctx, emoji, ref); err != nil {
		return goerr.Wrap(err, "failed to remove reaction",
			goerr.V("thread_id", id), goerr.V("emoji", emoji))
	}
	return nil
}

// StartTyping has no Web API endpoint; typing indicators are an RTM-only
// feature.
func (x *Adapter) StartTyping(ctx context.Context, id types.ThreadID) error {
	return types.NewNotImplemented(types.PlatformSlack, "StartTyping")
}

func (x *Adapter) FetchMessages(ctx context.Context, id types.ThreadID, limit int, cursor string) ([]*model.Message, string, error) {
	addr, err := decodeThreadID(id)
	if err != nil {
		return nil, "", err
	}

	if addr.ThreadTS == "" {
		return x.fetchHistory(ctx, addr.ChannelID, limit, cursor)
	}

	msgs, _, nextCursor, err := x.client.GetConversationRepliesContext(ctx, &slackapi.GetConversationRepliesParameters{
		ChannelID: addr.ChannelID,
		Timestamp: addr.ThreadTS,
		Limit:     limit,
		Cursor:    cursor,
	})
	if err != nil {
		return nil, "", goerr.Wrap(err, "failed to fetch thread replies", goerr.V("thread_id", id))
	}

	results := make([]*model.Message, 0, len(msgs))
	for i := range msgs {
		results = append(results, x.convertAPIMessage(addr.ChannelID, &msgs[i]))
	}
	return results, nextCursor, nil
}

func (x *Adapter) fetchHistory(ctx context.Context, channelID string, limit int, cursor string) ([]*model.Message, string, error) {
	resp, err := x.client.GetConversationHistoryContext(ctx, &slackapi.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     limit,
		Cursor:    cursor,
	})
	if err != nil {
		return nil, "", goerr.Wrap(err, "failed to fetch channel history", goerr.V("channel_id", channelID))
	}

	results := make([]*model.Message, 0, len(resp.Messages))
	for i := range resp.Messages {
		results = append(results, x.convertAPIMessage(channelID, &resp.Messages[i]))
	}
	return results, resp.ResponseMetaData.NextCursor, nil
}

func (x *Adapter) convertAPIMessage(channelID string, m *slackapi.Message) *model.Message {
	am := apiMessage{
		Type:            m.Type,
		SubType:         m.SubType,
		User:            m.User,
		BotID:           m.BotID,
		Username:        m.Username,
		Text:            m.Text,
		Timestamp:       m.Timestamp,
		ThreadTimestamp: m.ThreadTimestamp,
		Channel:         channelID,
		Files:           m.Files,
	}
	raw, _ := json.Marshal(m)
	return x.buildMessage(&am, raw)
}

func (x *Adapter) FetchMessage(ctx context.Context, id types.ThreadID, messageID string) (*model.Message, error) {
	addr, err := decodeThreadID(id)
	if err != nil {
		return nil, err
	}

	msgs, _, _, err := x.client.GetConversationRepliesContext(ctx, &slackapi.GetConversationRepliesParameters{
		ChannelID: addr.ChannelID,
		Timestamp: messageID,
		Limit:     1,
		Inclusive: true,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch message",
			goerr.V("thread_id", id), goerr.V("message_id", messageID))
	}
	if len(msgs) == 0 {
		return nil, goerr.New("message not found",
			goerr.V("thread_id", id), goerr.V("message_id", messageID))
	}
	return x.convertAPIMessage(addr.ChannelID, &msgs[0]), nil
}

func (x *Adapter) FetchThread(ctx context.Context, id types.ThreadID) (*model.ThreadInfo, error) {
	addr, err := decodeThreadID(id)
	if err != nil {
		return nil, err
	}

	ch, err := x.client.GetConversationInfoContext(ctx, &slackapi.GetConversationInfoInput{
		ChannelID: addr.ChannelID,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch conversation info", goerr.V("thread_id", id))
	}
	return &model.ThreadInfo{
		ID:        id,
		ChannelID: addr.ChannelID,
		Name:      ch.Name,
		IsDM:      ch.IsIM,
	}, nil
}

func (x *Adapter) OpenDM(ctx context.Context, userID string) (types.ThreadID, error) {
	ch, _, _, err := x.client.OpenConversationContext(ctx, &slackapi.OpenConversationParameters{
		Users: []string{userID},
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to open DM", goerr.V("user_id", userID))
	}
	return encodeThreadID(ch.ID, ""), nil
}

func (x *Adapter) PostEphemeral(ctx context.Context, id types.ThreadID, userID, text string) error {
	addr, err := decodeThreadID(id)
	if err != nil {
		return err
	}

	opts := []slackapi.MsgOption{slackapi.MsgOptionText(text, false)}
	if addr.ThreadTS != "" {
		opts = append(opts, slackapi.MsgOptionTS(addr.ThreadTS))
	}
	if _, err := x.client.PostEphemeralContext(ctx, addr.ChannelID, userID, opts...); err != nil {
		return goerr.Wrap(err, "failed to post ephemeral message",
			goerr.V("thread_id", id), goerr.V("user_id", userID))
	}
	return nil
}

func (x *Adapter) OpenModal(ctx context.Context, triggerID string, modal *model.Modal) error {
	view := buildModalView(modal)
	if _, err := x.client.OpenViewContext(ctx, triggerID, view); err != nil {
		return goerr.Wrap(err, "failed to open modal", goerr.V("callback_id", modal.CallbackID))
	}
	return nil
}

func (x *Adapter) PostChannelMessage(ctx context.Context, channelID, text string) (string, error) {
	_, ts, err := x.client.PostMessageContext(ctx, channelID, slackapi.MsgOptionText(text, false))
	if err != nil {
		return "", goerr.Wrap(err, "failed to post channel message", goerr.V("channel_id", channelID))
	}
	return ts, nil
}

func (x *Adapter) FetchChannelMessages(ctx context.Context, channelID string, limit int, cursor string) ([]*model.Message, string, error) {
	return x.fetchHistory(ctx, channelID, limit, cursor)
}

func (x *Adapter) FetchChannelInfo(ctx context.Context, channelID string) (*model.Channel, error) {
	ch, err := x.client.GetConversationInfoContext(ctx, &slackapi.GetConversationInfoInput{
		ChannelID: channelID,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch channel info", goerr.V("channel_id", channelID))
	}
	return &model.Channel{
		ID:       ch.ID,
		Platform: types.PlatformSlack,
		Name:     ch.Name,
		Topic:    ch.Topic.Value,
		IsDM:     ch.IsIM,
	}, nil
}

// ListThreads pages channel history and returns IDs of messages that have
// replies, i.e. thread roots.
func (x *Adapter) ListThreads(ctx context.Context, channelID string, limit int, cursor string) ([]types.ThreadID, string, error) {
	resp, err := x.client.GetConversationHistoryContext(ctx, &slackapi.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     limit,
		Cursor:    cursor,
	})
	if err != nil {
		return nil, "", goerr.Wrap(err, "failed to list threads", goerr.V("channel_id", channelID))
	}

	var ids []types.ThreadID
	for i := range resp.Messages {
		if resp.Messages[i].ReplyCount > 0 {
			ids = append(ids, encodeThreadID(channelID, resp.Messages[i].Timestamp))
		}
	}
	return ids, resp.ResponseMetaData.NextCursor, nil
}

func (x *Adapter) PinMessage(ctx context.Context, id types.ThreadID, messageID string) error {
	addr, err := decodeThreadID(id)
	if err != nil {
		return err
	}
	if err := x.client.AddPinContext(ctx, addr.ChannelID, slackapi.NewRefToMessage(addr.ChannelID, messageID)); err != nil {
		return goerr.Wrap(err, "failed to pin message",
			goerr.V("thread_id", id), goerr.V("message_id", messageID))
	}
	return nil
}

func (x *Adapter) UnpinMessage(ctx context.Context, id types.ThreadID, messageID string) error {
	addr, err := decodeThreadID(id)
	if err != nil {
		return err
	}
	if err := x.client.RemovePinContext(ctx, addr.ChannelID, slackapi.NewRefToMessage(addr.ChannelID, messageID)); err != nil {
		return goerr.Wrap(err, "failed to unpin message",
			goerr.V("thread_id", id), goerr.V("message_id", messageID))
	}
	return nil
}
