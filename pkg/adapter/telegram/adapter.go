// Package telegram implements the Telegram adapter: update webhook
// normalization with a shared-secret header check and outbound Bot API
// calls.
package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/adapter/restclient"
	"github.com/secmon-lab/omnichat/pkg/domain/interfaces"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

const defaultAPIBaseURL = "https://api.telegram.org"

// Adapter is the Telegram platform adapter
type Adapter struct {
	client      *restclient.Client
	secretToken string
	botID       int64
	botUsername string
	baseURL     string

	clientOpts []restclient.Option
}

var _ interfaces.Adapter = &Adapter{}

// Option is a functional option for Adapter configuration
type Option func(*Adapter)

// WithBotID sets the bot's numeric user ID for self-detection
func WithBotID(id int64) Option {
	return func(x *Adapter) {
		x.botID = id
	}
}

// WithBotUsername sets the bot's @username for mention detection
func WithBotUsername(name string) Option {
	return func(x *Adapter) {
		x.botUsername = strings.TrimPrefix(name, "@")
	}
}

// WithBaseURL overrides the API base URL (for tests)
func WithBaseURL(baseURL string) Option {
	return func(x *Adapter) {
		x.baseURL = baseURL
	}
}

// WithHTTPClient replaces the outbound HTTP client (for tests)
func WithHTTPClient(hc *http.Client) Option {
	return func(x *Adapter) {
		x.clientOpts = append(x.clientOpts, restclient.WithHTTPClient(hc))
	}
}

// New creates a new Telegram adapter. secretToken is the value
// registered with setWebhook and echoed back on every delivery.
func New(botToken, secretToken string, opts ...Option) *Adapter {
	x := &Adapter{
		secretToken: secretToken,
		baseURL:     defaultAPIBaseURL,
	}
	for _, opt := range opts {
		opt(x)
	}
	x.client = restclient.New(x.baseURL+"/bot"+botToken, x.clientOpts...)
	return x
}

func (x *Adapter) Platform() types.Platform {
	return types.PlatformTelegram
}

// call issues one Bot API method and checks the ok envelope
func (x *Adapter) call(ctx context.Context, method string, body, result any) error {
	var envelope struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	if err := x.client.Do(ctx, http.MethodPost, "/"+method, body, &envelope); err != nil {
		return goerr.Wrap(err, "bot api call failed", goerr.V("method", method))
	}
	if !envelope.OK {
		return goerr.New("bot api call rejected",
			goerr.V("method", method), goerr.V("description", envelope.Description))
	}
	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return goerr.Wrap(err, "failed to decode bot api result", goerr.V("method", method))
		}
	}
	return nil
}

// apiUser and apiMessage mirror the Bot API shapes used here
type apiUser struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (u *apiUser) fullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

type apiMessage struct {
	MessageID       int64    `json:"message_id"`
	From            *apiUser `json:"from"`
	Date            int64    `json:"date"`
	Text            string   `json:"text"`
	Caption         string   `json:"caption"`
	MessageThreadID int64    `json:"message_thread_id"`
	Chat            struct {
		ID    int64  `json:"id"`
		Type  string `json:"type"`
		Title string `json:"title"`
	} `json:"chat"`
	Document *struct {
		FileID   string `json:"file_id"`
		FileName string `json:"file_name"`
		MIMEType string `json:"mime_type"`
		FileSize int64  `json:"file_size"`
	} `json:"document"`
	NewChatMembers []apiUser `json:"new_chat_members"`
	LeftChatMember *apiUser  `json:"left_chat_member"`
}

func (x *Adapter) ParseMessage(raw json.RawMessage) (*model.Message, error) {
	var m apiMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, goerr.Wrap(err, "failed to parse telegram message", goerr.T(types.TagValidation))
	}
	return x.buildMessage(&m, raw), nil
}

func (x *Adapter) buildMessage(m *apiMessage, raw json.RawMessage) *model.Message {
	text := m.Text
	if text == "" {
		text = m.Caption
	}

	isMention := x.botUsername != "" && strings.Contains(text, "@"+x.botUsername)
	// Private chats route like mentions
	if m.Chat.Type == "private" {
		isMention = true
	}

	msg := &model.Message{
		ID:        strconv.FormatInt(m.MessageID, 10),
		ThreadID:  encodeThreadID(m.Chat.ID, m.MessageThreadID),
		Text:      text,
		Formatted: text,
		Raw:       raw,
		IsMention: isMention,
		CreatedAt: time.Unix(m.Date, 0),
	}
	if m.From != nil {
		msg.Author = model.Author{
			UserID:   strconv.FormatInt(m.From.ID, 10),
			UserName: m.From.Username,
			FullName: m.From.fullName(),
			IsBot:    m.From.IsBot,
			IsMe:     x.botID != 0 && m.From.ID == x.botID,
		}
	}
	if m.Document != nil {
		msg.Attachments = append(msg.Attachments, model.Attachment{
			ID:       m.Document.FileID,
			Name:     m.Document.FileName,
			MIMEType: m.Document.MIMEType,
			Kind:     types.AttachmentKindFromMIME(m.Document.MIMEType),
			Size:     m.Document.FileSize,
		})
	}
	return msg
}

func (x *Adapter) PostMessage(ctx context.Context, id types.ThreadID, text string) (string, error) {
	addr, err := decodeThreadID(id)
	if err != nil {
		return "", err
	}

	body := map[string]any{"chat_id": addr.ChatID, "text": text}
	if addr.TopicID != 0 {
		body["message_thread_id"] = addr.TopicID
	}
	var result apiMessage
	if err := x.call(ctx, "sendMessage", body, &result); err != nil {
		return "", goerr.Wrap(err, "failed to send message", goerr.V("thread_id", id))
	}
	return strconv.FormatInt(result.MessageID, 10), nil
}

func (x *Adapter) EditMessage(ctx context.Context, id types.ThreadID, messageID, text string) error {
	addr, err := decodeThreadID(id)
	if err != nil {
		return err
	}
	msgID, err := strconv.ParseInt(messageID, 10, 64)
	if err != nil {
		return goerr.Wrap(err, "invalid message ID", goerr.T(types.TagValidation))
	}

	body := map[string]any{"chat_id": addr.ChatID, "message_id": msgID, "text": text}
	if err := x.call(ctx, "editMessageText", body, nil); err != nil {
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
	msgID, err := strconv.ParseInt(messageID, 10, 64)
	if err != nil {
		return goerr.Wrap(err, "invalid message ID", goerr.T(types.TagValidation))
	}

	body := map[string]any{"chat_id": addr.ChatID, "message_id": msgID}
	if err := x.call(ctx, "deleteMessage", body, nil); err != nil {
		return goerr.Wrap(err, "failed to delete message",
			goerr.V("thread_id", id), goerr.V("message_id", messageID))
	}
	return nil
}

func (x *Adapter) AddReaction(ctx context.Context, id types.ThreadID, messageID, emoji string) error {
	return x.setReaction(ctx, id, messageID, []map[string]string{{"type": "emoji", "emoji": emoji}})
}

// RemoveReaction clears the bot's reactions on the message; the Bot API
// replaces the full reaction set rather than removing one emoji.
func (x *Adapter) RemoveReaction(ctx context.Context, id types.ThreadID, messageID, emoji string) error {
	return x.setReaction(ctx, id, messageID, []map[string]string{})
}

func (x *Adapter) setReaction(ctx context.Context, id types.ThreadID, messageID string, reaction []map[string]string) error {
	addr, err := decodeThreadID(id)
	if err != nil {
		return err
	}
	msgID, err := strconv.ParseInt(messageID, 10, 64)
	if err != nil {
		return goerr.Wrap(err, "invalid message ID", goerr.T(types.TagValidation))
	}

	body := map[string]any{"chat_id": addr.ChatID, "message_id": msgID, "reaction": reaction}
	if err := x.call(ctx, "setMessageReaction", body, nil); err != nil {
		return goerr.Wrap(err, "failed to set reaction",
			goerr.V("thread_id", id), goerr.V("message_id", messageID))
	}
	return nil
}

func (x *Adapter) StartTyping(ctx context.Context, id types.ThreadID) error {
	addr, err := decodeThreadID(id)
	if err != nil {
		return err
	}

	body := map[string]any{"chat_id": addr.ChatID, "action": "typing"}
	if addr.TopicID != 0 {
		body["message_thread_id"] = addr.TopicID
	}
	if err := x.call(ctx, "sendChatAction", body, nil); err != nil {
		return goerr.Wrap(err, "failed to send chat action", goerr.V("thread_id", id))
	}
	return nil
}

// The Bot API exposes no history fetch for bots
func (x *Adapter) FetchMessages(ctx context.Context, id types.ThreadID, limit int, cursor string) ([]*model.Message, string, error) {
	return nil, "", types.NewNotImplemented(types.PlatformTelegram, "FetchMessages")
}

func (x *Adapter) FetchMessage(ctx context.Context, id types.ThreadID, messageID string) (*model.Message, error) {
	return nil, types.NewNotImplemented(types.PlatformTelegram, "FetchMessage")
}

type apiChat struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (x *Adapter) FetchThread(ctx context.Context, id types.ThreadID) (*model.ThreadInfo, error) {
	addr, err := decodeThreadID(id)
	if err != nil {
		return nil, err
	}

	var chat apiChat
	if err := x.call(ctx, "getChat", map[string]any{"chat_id": addr.ChatID}, &chat); err != nil {
		return nil, goerr.Wrap(err, "failed to get chat", goerr.V("thread_id", id))
	}
	return &model.ThreadInfo{
		ID:        id,
		ChannelID: strconv.FormatInt(chat.ID, 10),
		Name:      chat.Title,
		IsDM:      chat.Type == "private",
	}, nil
}

// OpenDM is pure on Telegram: a user's chat ID equals their user ID. The
// bot can only deliver if the user has started the conversation.
func (x *Adapter) OpenDM(ctx context.Context, userID string) (types.ThreadID, error) {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return "", goerr.Wrap(err, "invalid user ID", goerr.T(types.TagValidation))
	}
	return encodeThreadID(chatID, 0), nil
}

func (x *Adapter) PostEphemeral(ctx context.Context, id types.ThreadID, userID, text string) error {
	return types.NewNotImplemented(types.PlatformTelegram, "PostEphemeral")
}

func (x *Adapter) OpenModal(ctx context.Context, triggerID string, modal *model.Modal) error {
	return types.NewNotImplemented(types.PlatformTelegram, "OpenModal")
}

func (x *Adapter) PostChannelMessage(ctx context.Context, channelID, text string) (string, error) {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return "", goerr.Wrap(err, "invalid channel ID", goerr.T(types.TagValidation))
	}
	return x.PostMessage(ctx, encodeThreadID(chatID, 0), text)
}

func (x *Adapter) FetchChannelMessages(ctx context.Context, channelID string, limit int, cursor string) ([]*model.Message, string, error) {
	return nil, "", types.NewNotImplemented(types.PlatformTelegram, "FetchChannelMessages")
}

func (x *Adapter) FetchChannelInfo(ctx context.Context, channelID string) (*model.Channel, error) {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid channel ID", goerr.T(types.TagValidation))
	}

	var chat apiChat
	if err := x.call(ctx, "getChat", map[string]any{"chat_id": chatID}, &chat); err != nil {
		return nil, goerr.Wrap(err, "failed to get chat info", goerr.V("channel_id", channelID))
	}
	return &model.Channel{
		ID:       channelID,
		Platform: types.PlatformTelegram,
		Name:     chat.Title,
		Topic:    chat.Description,
		IsDM:     chat.Type == "private",
	}, nil
}

func (x *Adapter) ListThreads(ctx context.Context, channelID string, limit int, cursor string) ([]types.ThreadID, string, error) {
	return nil, "", types.NewNotImplemented(types.PlatformTelegram, "ListThreads")
}

func (x *Adapter) PinMessage(ctx context.Context, id types.ThreadID, messageID string) error {
	addr, err := decodeThreadID(id)
	if err != nil {
		return err
	}
	msgID, err := strconv.ParseInt(messageID, 10, 64)
	if err != nil {
		return goerr.Wrap(err, "invalid message ID", goerr.T(types.TagValidation))
	}

	body := map[string]any{"chat_id": addr.ChatID, "message_id": msgID}
	if err := x.call(ctx, "pinChatMessage", body, nil); err != nil {
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
	msgID, err := strconv.ParseInt(messageID, 10, 64)
	if err != nil {
		return goerr.Wrap(err, "invalid message ID", goerr.T(types.TagValidation))
	}

	body := map[string]any{"chat_id": addr.ChatID, "message_id": msgID}
	if err := x.call(ctx, "unpinChatMessage", body, nil); err != nil {
		return goerr.Wrap(err, "failed to unpin message",
			goerr.V("thread_id", id), goerr.V("message_id", messageID))
	}
	return nil
}
