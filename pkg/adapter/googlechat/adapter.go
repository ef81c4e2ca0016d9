// Package googlechat implements the Google Chat adapter: event webhook
// normalization, service-account token verification and outbound calls
// through the official Chat API client.
package googlechat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/interfaces"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
	chat "google.golang.org/api/chat/v1"
	"google.golang.org/api/option"
)

// Adapter is the Google Chat platform adapter
type Adapter struct {
	service   *chat.Service
	audience  string
	issuer    string
	botUserID string
	keySet    KeySetProvider
	now       func() time.Time
}

var _ interfaces.Adapter = &Adapter{}

// Option is a functional option for Adapter configuration
type Option func(*Adapter)

// WithBotUserID sets the bot's user resource ID ("users/<id>"), used for
// self-detection and mention matching
func WithBotUserID(id string) Option {
	return func(x *Adapter) {
		x.botUserID = id
	}
}

// WithService replaces the Chat API service (for tests)
func WithService(svc *chat.Service) Option {
	return func(x *Adapter) {
		x.service = svc
	}
}

// WithKeySetProvider replaces the JWKS source (for tests)
func WithKeySetProvider(p KeySetProvider) Option {
	return func(x *Adapter) {
		x.keySet = p
	}
}

// WithIssuer overrides the expected token issuer (for tests)
func WithIssuer(issuer string) Option {
	return func(x *Adapter) {
		x.issuer = issuer
	}
}

// WithClock replaces the time source used by token validation (for tests)
func WithClock(now func() time.Time) Option {
	return func(x *Adapter) {
		x.now = now
	}
}

// New creates a new Google Chat adapter. audience is the Cloud project
// number the inbound event tokens are issued for; credentialsJSON is the
// service account key for outbound calls.
func New(ctx context.Context, credentialsJSON []byte, audience string, opts ...Option) (*Adapter, error) {
	x := &Adapter{
		audience: audience,
		issuer:   chatIssuer,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.keySet == nil {
		x.keySet = defaultKeySetProvider()
	}

	// Without credentials the adapter still serves inbound webhooks;
	// outbound calls will fail at the API client.
	if x.service == nil && len(credentialsJSON) > 0 {
		svc, err := chat.NewService(ctx,
			option.WithCredentialsJSON(credentialsJSON),
			option.WithScopes("https://www.googleapis.com/auth/chat.bot"))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create chat service")
		}
		x.service = svc
	}
	return x, nil
}

func (x *Adapter) Platform() types.Platform {
	return types.PlatformGoogleChat
}

// eventMessage is the Chat event message subset consumed by
// normalization
type eventMessage struct {
	Name         string `json:"name"`
	Text         string `json:"text"`
	ArgumentText string `json:"argumentText"`
	CreateTime   string `json:"createTime"`
	Sender       struct {
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
		Type        string `json:"type"`
	} `json:"sender"`
	Space struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"space"`
	Thread struct {
		Name string `json:"name"`
	} `json:"thread"`
	Annotations []struct {
		Type        string `json:"type"`
		UserMention struct {
			User struct {
				Name string `json:"name"`
			} `json:"user"`
		} `json:"userMention"`
		SlashCommand struct {
			CommandName string `json:"commandName"`
		} `json:"slashCommand"`
	} `json:"annotations"`
	SlashCommand *struct {
		CommandID string `json:"commandId"`
	} `json:"slashCommand"`
	Attachment []struct {
		Name        string `json:"name"`
		ContentName string `json:"contentName"`
		ContentType string `json:"contentType"`
		DownloadURI string `json:"downloadUri"`
	} `json:"attachment"`
}

func (x *Adapter) ParseMessage(raw json.RawMessage) (*model.Message, error) {
	var m eventMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, goerr.Wrap(err, "failed to parse chat message", goerr.T(types.TagValidation))
	}
	return x.buildMessage(&m, raw), nil
}

func (x *Adapter) buildMessage(m *eventMessage, raw json.RawMessage) *model.Message {
	isMention := false
	for _, a := range m.Annotations {
		if a.Type == "USER_MENTION" && (x.botUserID == "" || a.UserMention.User.Name == x.botUserID) {
			isMention = true
		}
	}
	// DM spaces route like mentions
	if m.Space.Type == "DM" {
		isMention = true
	}

	text := m.ArgumentText
	if text == "" {
		text = m.Text
	}

	createdAt, _ := time.Parse(time.RFC3339, m.CreateTime)
	msg := &model.Message{
		ID:        m.Name,
		ThreadID:  encodeFromResourceNames(m.Space.Name, m.Thread.Name),
		Text:      text,
		Formatted: m.Text,
		Raw:       raw,
		Author: model.Author{
			UserID:   m.Sender.Name,
			UserName: m.Sender.DisplayName,
			IsBot:    m.Sender.Type == "BOT",
			IsMe:     x.botUserID != "" && m.Sender.Name == x.botUserID,
		},
		IsMention: isMention,
		CreatedAt: createdAt,
	}
	for _, att := range m.Attachment {
		msg.Attachments = append(msg.Attachments, model.Attachment{
			ID:       att.Name,
			Name:     att.ContentName,
			MIMEType: att.ContentType,
			Kind:     types.AttachmentKindFromMIME(att.ContentType),
			URL:      att.DownloadURI,
		})
	}
	return msg
}

func (x *Adapter) PostMessage(ctx context.Context, id types.ThreadID, text string) (string, error) {
	addr, err := decodeThreadID(id)
	if err != nil {
		return "", err
	}

	msg := &chat.Message{Text: text}
	call := x.service.Spaces.Messages.Create(addr.spaceName(), msg)
	if name := addr.threadName(); name != "" {
		msg.Thread = &chat.Thread{Name: name}
		call = call.MessageReplyOption("REPLY_MESSAGE_FALLBACK_TO_NEW_THREAD")
	}
	created, err := call.Context(ctx).Do()
	if err != nil {
		return "", goerr.Wrap(err, "failed to post message", goerr.V("thread_id", id))
	}
	return created.Name, nil
}

func (x *Adapter) EditMessage(ctx context.Context, id types.ThreadID, messageID, text string) error {
	if _, err := decodeThreadID(id); err != nil {
		return err
	}
	_, err := x.service.Spaces.Messages.Update(messageID, &chat.Message{Text: text}).
		UpdateMask("text").Context(ctx).Do()
	if err != nil {
		return goerr.Wrap(err, "failed to edit message",
			goerr.V("thread_id", id), goerr.V("message_id", messageID))
	}
	return nil
}

func (x *Adapter) DeleteMessage(ctx context.Context, id types.ThreadID, messageID string) error {
	if _, err := decodeThreadID(id); err != nil {
		return err
	}
	if _, err := x.service.Spaces.Messages.Delete(messageID).Context(ctx).Do(); err != nil {
		return goerr.Wrap(err, "failed to delete message",
			goerr.V("thread_id", id), goerr.V("message_id", messageID))
	}
	return nil
}

func (x *Adapter) AddReaction(ctx context.Context, id types.ThreadID, messageID, emoji string) error {
	if _, err := decodeThreadID(id); err != nil {
		return err
	}
	reaction := &chat.Reaction{Emoji: &chat.Emoji{Unicode: emoji}}
	if _, err := x.service.Spaces.Messages.Reactions.Create(messageID, reaction).Context(ctx).Do(); err != nil {
		return goerr.Wrap(err, "failed to add reaction",
			goerr.V("thread_id", id), goerr.V("emoji", emoji))
	}
	return nil
}

func (x *Adapter) RemoveReaction(ctx context.Context, id types.ThreadID, messageID, emoji string) error {
	if _, err := decodeThreadID(id); err != nil {
		return err
	}

	filter := fmt.Sprintf("emoji.unicode = %q AND user.name = %q", emoji, "users/me")
	list, err := x.service.Spaces.Messages.Reactions.List(messageID).Filter(filter).Context(ctx).Do()
	if err != nil {
		return goerr.Wrap(err, "failed to list reactions",
			goerr.V("thread_id", id), goerr.V("emoji", emoji))
	}
	if len(list.Reactions) == 0 {
		return nil
	}
	if _, err := x.service.Spaces.Messages.Reactions.Delete(list.Reactions[0].Name).Context(ctx).Do(); err != nil {
		return goerr.Wrap(err, "failed to remove reaction",
			goerr.V("thread_id", id), goerr.V("emoji", emoji))
	}
	return nil
}

func (x *Adapter) StartTyping(ctx context.Context, id types.ThreadID) error {
	return types.NewNotImplemented(types.PlatformGoogleChat, "StartTyping")
}

func (x *Adapter) FetchMessages(ctx context.Context, id types.ThreadID, limit int, cursor string) ([]*model.Message, string, error) {
	addr, err := decodeThreadID(id)
	if err != nil {
		return nil, "", err
	}

	call := x.service.Spaces.Messages.List(addr.spaceName())
	if name := addr.threadName(); name != "" {
		call = call.Filter(fmt.Sprintf("thread.name = %q", name))
	}
	if limit > 0 {
		call = call.PageSize(int64(limit))
	}
	if cursor != "" {
		call = call.PageToken(cursor)
	}
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, "", goerr.Wrap(err, "failed to list messages", goerr.V("thread_id", id))
	}

	msgs := make([]*model.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		msgs = append(msgs, x.convertAPIMessage(m))
	}
	return msgs, resp.NextPageToken, nil
}

func (x *Adapter) convertAPIMessage(m *chat.Message) *model.Message {
	em := eventMessage{
		Name:       m.Name,
		Text:       m.Text,
		CreateTime: m.CreateTime,
	}
	if m.Sender != nil {
		em.Sender.Name = m.Sender.Name
		em.Sender.DisplayName = m.Sender.DisplayName
		em.Sender.Type = m.Sender.Type
	}
	if m.Space != nil {
		em.Space.Name = m.Space.Name
		if m.Space.SpaceType == "DIRECT_MESSAGE" {
			em.Space.Type = "DM"
		}
	}
	if m.Thread != nil {
		em.Thread.Name = m.Thread.Name
	}
	raw, _ := m.MarshalJSON()
	return x.buildMessage(&em, raw)
}

func (x *Adapter) FetchMessage(ctx context.Context, id types.ThreadID, messageID string) (*model.Message, error) {
	if _, err := decodeThreadID(id); err != nil {
		return nil, err
	}
	m, err := x.service.Spaces.Messages.Get(messageID).Context(ctx).Do()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch message",
			goerr.V("thread_id", id), goerr.V("message_id", messageID))
	}
	return x.convertAPIMessage(m), nil
}

func (x *Adapter) FetchThread(ctx context.Context, id types.ThreadID) (*model.ThreadInfo, error) {
	addr, err := decodeThreadID(id)
	if err != nil {
		return nil, err
	}
	space, err := x.service.Spaces.Get(addr.spaceName()).Context(ctx).Do()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch space", goerr.V("thread_id", id))
	}
	return &model.ThreadInfo{
		ID:        id,
		ChannelID: addr.SpaceID,
		Name:      space.DisplayName,
		IsDM:      space.SpaceType == "DIRECT_MESSAGE",
	}, nil
}

func (x *Adapter) OpenDM(ctx context.Context, userID string) (types.ThreadID, error) {
	space, err := x.service.Spaces.FindDirectMessage().Name("users/" + userID).Context(ctx).Do()
	if err != nil {
		return "", goerr.Wrap(err, "failed to find direct message space", goerr.V("user_id", userID))
	}
	return encodeFromResourceNames(space.Name, ""), nil
}

// PostEphemeral posts a private message only the given user can see
func (x *Adapter) PostEphemeral(ctx context.Context, id types.ThreadID, userID, text string) error {
	addr, err := decodeThreadID(id)
	if err != nil {
		return err
	}

	msg := &chat.Message{
		Text:                 text,
		PrivateMessageViewer: &chat.User{Name: "users/" + userID},
	}
	call := x.service.Spaces.Messages.Create(addr.spaceName(), msg)
	if name := addr.threadName(); name != "" {
		msg.Thread = &chat.Thread{Name: name}
		call = call.MessageReplyOption("REPLY_MESSAGE_FALLBACK_TO_NEW_THREAD")
	}
	if _, err := call.Context(ctx).Do(); err != nil {
		return goerr.Wrap(err, "failed to post private message",
			goerr.V("thread_id", id), goerr.V("user_id", userID))
	}
	return nil
}

// Dialogs open only inside an interaction response round trip
func (x *Adapter) OpenModal(ctx context.Context, triggerID string, modal *model.Modal) error {
	return types.NewNotImplemented(types.PlatformGoogleChat, "OpenModal")
}

func (x *Adapter) PostChannelMessage(ctx context.Context, channelID, text string) (string, error) {
	created, err := x.service.Spaces.Messages.Create("spaces/"+channelID, &chat.Message{Text: text}).
		Context(ctx).Do()
	if err != nil {
		return "", goerr.Wrap(err, "failed to post channel message", goerr.V("channel_id", channelID))
	}
	return created.Name, nil
}

func (x *Adapter) FetchChannelMessages(ctx context.Context, channelID string, limit int, cursor string) ([]*model.Message, string, error) {
	return x.FetchMessages(ctx, encodeThreadID(channelID, ""), limit, cursor)
}

func (x *Adapter) FetchChannelInfo(ctx context.Context, channelID string) (*model.Channel, error) {
	space, err := x.service.Spaces.Get("spaces/" + channelID).Context(ctx).Do()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch space info", goerr.V("channel_id", channelID))
	}
	return &model.Channel{
		ID:       channelID,
		Platform: types.PlatformGoogleChat,
		Name:     space.DisplayName,
		IsDM:     space.SpaceType == "DIRECT_MESSAGE",
	}, nil
}

func (x *Adapter) ListThreads(ctx context.Context, channelID string, limit int, cursor string) ([]types.ThreadID, string, error) {
	call := x.service.Spaces.Messages.List("spaces/" + channelID)
	if limit > 0 {
		call = call.PageSize(int64(limit))
	}
	if cursor != "" {
		call = call.PageToken(cursor)
	}
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, "", goerr.Wrap(err, "failed to list threads", goerr.V("channel_id", channelID))
	}

	seen := map[string]bool{}
	var ids []types.ThreadID
	for _, m := range resp.Messages {
		if m.Thread == nil || seen[m.Thread.Name] {
			continue
		}
		seen[m.Thread.Name] = true
		ids = append(ids, encodeFromResourceNames("spaces/"+channelID, m.Thread.Name))
	}
	return ids, resp.NextPageToken, nil
}

func (x *Adapter) PinMessage(ctx context.Context, id types.ThreadID, messageID string) error {
	return types.NewNotImplemented(types.PlatformGoogleChat, "PinMessage")
}

func (x *Adapter) UnpinMessage(ctx context.Context, id types.ThreadID, messageID string) error {
	return types.NewNotImplemented(types.PlatformGoogleChat, "UnpinMessage")
}
