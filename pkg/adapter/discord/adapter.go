// Package discord implements the Discord adapter: interaction webhook
// handling with Ed25519 verification and outbound calls against the
// Discord REST API.
package discord

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/adapter/restclient"
	"github.com/secmon-lab/omnichat/pkg/domain/interfaces"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

const defaultAPIBaseURL = "https://discord.com/api/v10"

// Adapter is the Discord platform adapter
type Adapter struct {
	client    *restclient.Client
	publicKey ed25519.PublicKey
	botUserID string
	baseURL   string

	clientOpts []restclient.Option
}

var _ interfaces.Adapter = &Adapter{}

// Option is a functional option for Adapter configuration
type Option func(*Adapter)

// WithBotUserID sets the bot application's user ID for self-detection
func WithBotUserID(id string) Option {
	return func(x *Adapter) {
		x.botUserID = id
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

// New creates a new Discord adapter. publicKeyHex is the hex-encoded
// Ed25519 application public key from the developer portal.
func New(botToken, publicKeyHex string, opts ...Option) (*Adapter, error) {
	key, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return nil, goerr.New("invalid discord public key", goerr.T(types.TagValidation))
	}

	x := &Adapter{
		publicKey: ed25519.PublicKey(key),
		baseURL:   defaultAPIBaseURL,
	}
	for _, opt := range opts {
		opt(x)
	}

	clientOpts := append([]restclient.Option{
		restclient.WithHeader("Authorization", "Bot "+botToken),
	}, x.clientOpts...)
	x.client = restclient.New(x.baseURL, clientOpts...)
	return x, nil
}

func (x *Adapter) Platform() types.Platform {
	return types.PlatformDiscord
}

// apiMessage is the Discord REST message object subset used for
// normalization
type apiMessage struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Author    struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Bot      bool   `json:"bot"`
	} `json:"author"`
	Mentions []struct {
		ID string `json:"id"`
	} `json:"mentions"`
	Attachments []struct {
		ID          string `json:"id"`
		Filename    string `json:"filename"`
		ContentType string `json:"content_type"`
		URL         string `json:"url"`
		Size        int64  `json:"size"`
	} `json:"attachments"`
}

func (x *Adapter) ParseMessage(raw json.RawMessage) (*model.Message, error) {
	var m apiMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, goerr.Wrap(err, "failed to parse discord message", goerr.T(types.TagValidation))
	}

	isMention := false
	for _, mention := range m.Mentions {
		if x.botUserID != "" && mention.ID == x.botUserID {
			isMention = true
		}
	}
	// DMs have no guild and route like mentions
	if m.GuildID == "" {
		isMention = true
	}

	createdAt, _ := time.Parse(time.RFC3339, m.Timestamp)
	msg := &model.Message{
		ID:        m.ID,
		ThreadID:  encodeThreadID(m.ChannelID),
		Text:      m.Content,
		Formatted: m.Content,
		Raw:       raw,
		Author: model.Author{
			UserID:   m.Author.ID,
			UserName: m.Author.Username,
			IsBot:    m.Author.Bot,
			IsMe:     x.botUserID != "" && m.Author.ID == x.botUserID,
		},
		IsMention: isMention,
		CreatedAt: createdAt,
	}
	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, model.Attachment{
			ID:       a.ID,
			Name:     a.Filename,
			MIMEType: a.ContentType,
			Kind:     types.AttachmentKindFromMIME(a.ContentType),
			URL:      a.URL,
			Size:     a.Size,
		})
	}
	return msg, nil
}

type messageRef struct {
	ID string `json:"id"`
}

func (x *Adapter) PostMessage(ctx context.Context, id types.ThreadID, text string) (string, error) {
	channelID, err := decodeThreadID(id)
	if err != nil {
		return "", err
	}
	return x.PostChannelMessage(ctx, channelID, text)
}

func (x *Adapter) PostChannelMessage(ctx context.Context, channelID, text string) (string, error) {
	var out messageRef
	body := map[string]string{"content": text}
	if err := x.client.Do(ctx, http.MethodPost, "/channels/"+channelID+"/messages", body, &out); err != nil {
		return "", goerr.Wrap(err, "failed to post message", goerr.V("channel_id", channelID))
	}
	return out.ID, nil
}

func (x *Adapter) EditMessage(ctx context.Context, id types.ThreadID, messageID, text string) error {
	channelID, err := decodeThreadID(id)
	if err != nil {
		return err
	}
	body := map[string]string{"content": text}
	if err := x.client.Do(ctx, http.MethodPatch, "/channels/"+channelID+"/messages/"+messageID, body, nil); err != nil {
		return goerr.Wrap(err, "failed to edit message",
			goerr.V("thread_id", id), goerr.V("message_id", messageID))
	}
	return nil
}

func (x *Adapter) DeleteMessage(ctx context.Context, id types.ThreadID, messageID string) error {
	channelID, err := decodeThreadID(id)
	if err != nil {
		return err
	}
	if err := x.client.Do(ctx, http.MethodDelete, "/channels/"+channelID+"/messages/"+messageID, nil, nil); err != nil {
		return goerr.Wrap(err, "failed to delete message",
			goerr.V("thread_id", id), goerr.V("message_id", messageID))
	}
	return nil
}

func (x *Adapter) AddReaction(ctx context.Context, id types.ThreadID, messageID, emoji string) error {
	channelID, err := decodeThreadID(id)
	if err != nil {
		return err
	}
	path := "/channels/" + channelID + "/messages/" + messageID + "/reactions/" + url.PathEscape(emoji) + "/@me"
	if err := x.client.Do(ctx, http.MethodPut, path, nil, nil); err != nil {
		return goerr.Wrap(err, "failed to add reaction",
			goerr.V("thread_id", id), goerr.V("emoji", emoji))
	}
	return nil
}

func (x *Adapter) RemoveReaction(ctx context.Context, id types.ThreadID, messageID, emoji string) error {
	channelID, err := decodeThreadID(id)
	if err != nil {
		return err
	}
	path := "/channels/" + channelID + "/messages/" + messageID + "/reactions/" + url.PathEscape(emoji) + "/@me"
	if err := x.client.Do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return goerr.Wrap(err, "failed to remove reaction",
			goerr.V("thread_id", id), goerr.V("emoji", emoji))
	}
	return nil
}

func (x *Adapter) StartTyping(ctx context.Context, id types.ThreadID) error {
	channelID, err := decodeThreadID(id)
	if err != nil {
		return err
	}
	if err := x.client.Do(ctx, http.MethodPost, "/channels/"+channelID+"/typing", nil, nil); err != nil {
		return goerr.Wrap(err, "failed to start typing", goerr.V("thread_id", id))
	}
	return nil
}

func (x *Adapter) FetchMessages(ctx context.Context, id types.ThreadID, limit int, cursor string) ([]*model.Message, string, error) {
	channelID, err := decodeThreadID(id)
	if err != nil {
		return nil, "", err
	}
	return x.FetchChannelMessages(ctx, channelID, limit, cursor)
}

func (x *Adapter) FetchChannelMessages(ctx context.Context, channelID string, limit int, cursor string) ([]*model.Message, string, error) {
	path := "/channels/" + channelID + "/messages"
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		query.Set("before", cursor)
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var raws []json.RawMessage
	if err := x.client.Do(ctx, http.MethodGet, path, nil, &raws); err != nil {
		return nil, "", goerr.Wrap(err, "failed to fetch messages", goerr.V("channel_id", channelID))
	}

	msgs := make([]*model.Message, 0, len(raws))
	for _, raw := range raws {
		msg, err := x.ParseMessage(raw)
		if err != nil {
			return nil, "", err
		}
		msgs = append(msgs, msg)
	}

	nextCursor := ""
	if len(msgs) > 0 && limit > 0 && len(msgs) == limit {
		nextCursor = msgs[len(msgs)-1].ID
	}
	return msgs, nextCursor, nil
}

func (x *Adapter) FetchMessage(ctx context.Context, id types.ThreadID, messageID string) (*model.Message, error) {
	channelID, err := decodeThreadID(id)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := x.client.Do(ctx, http.MethodGet, "/channels/"+channelID+"/messages/"+messageID, nil, &raw); err != nil {
		return nil, goerr.Wrap(err, "failed to fetch message",
			goerr.V("thread_id", id), goerr.V("message_id", messageID))
	}
	return x.ParseMessage(raw)
}

// apiChannel is the Discord channel object subset used here. Type 1 is a
// DM channel.
type apiChannel struct {
	ID    string `json:"id"`
	Type  int    `json:"type"`
	Name  string `json:"name"`
	Topic string `json:"topic"`
}

func (x *Adapter) FetchThread(ctx context.Context, id types.ThreadID) (*model.ThreadInfo, error) {
	channelID, err := decodeThreadID(id)
	if err != nil {
		return nil, err
	}
	var ch apiChannel
	if err := x.client.Do(ctx, http.MethodGet, "/channels/"+channelID, nil, &ch); err != nil {
		return nil, goerr.Wrap(err, "failed to fetch channel", goerr.V("thread_id", id))
	}
	return &model.ThreadInfo{
		ID:        id,
		ChannelID: ch.ID,
		Name:      ch.Name,
		IsDM:      ch.Type == 1,
	}, nil
}

func (x *Adapter) FetchChannelInfo(ctx context.Context, channelID string) (*model.Channel, error) {
	var ch apiChannel
	if err := x.client.Do(ctx, http.MethodGet, "/channels/"+channelID, nil, &ch); err != nil {
		return nil, goerr.Wrap(err, "failed to fetch channel info", goerr.V("channel_id", channelID))
	}
	return &model.Channel{
		ID:       ch.ID,
		Platform: types.PlatformDiscord,
		Name:     ch.Name,
		Topic:    ch.Topic,
		IsDM:     ch.Type == 1,
	}, nil
}

func (x *Adapter) OpenDM(ctx context.Context, userID string) (types.ThreadID, error) {
	var ch apiChannel
	body := map[string]string{"recipient_id": userID}
	if err := x.client.Do(ctx, http.MethodPost, "/users/@me/channels", body, &ch); err != nil {
		return "", goerr.Wrap(err, "failed to open DM", goerr.V("user_id", userID))
	}
	return encodeThreadID(ch.ID), nil
}

// PostEphemeral requires an interaction response token, which is only
// valid inside the interaction round trip, not from an outbound call.
func (x *Adapter) PostEphemeral(ctx context.Context, id types.ThreadID, userID, text string) error {
	return types.NewNotImplemented(types.PlatformDiscord, "PostEphemeral")
}

// OpenModal is an interaction response type on Discord; it cannot be
// opened from an outbound call.
func (x *Adapter) OpenModal(ctx context.Context, triggerID string, modal *model.Modal) error {
	return types.NewNotImplemented(types.PlatformDiscord, "OpenModal")
}

type threadList struct {
	Threads []struct {
		ID             string `json:"id"`
		ThreadMetadata struct {
			ArchiveTimestamp string `json:"archive_timestamp"`
		} `json:"thread_metadata"`
	} `json:"threads"`
	HasMore bool `json:"has_more"`
}

func (x *Adapter) ListThreads(ctx context.Context, channelID string, limit int, cursor string) ([]types.ThreadID, string, error) {
	path := "/channels/" + channelID + "/threads/archived/public"
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		query.Set("before", cursor)
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var out threadList
	if err := x.client.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, "", goerr.Wrap(err, "failed to list threads", goerr.V("channel_id", channelID))
	}

	ids := make([]types.ThreadID, 0, len(out.Threads))
	for _, th := range out.Threads {
		ids = append(ids, encodeThreadID(th.ID))
	}

	nextCursor := ""
	if out.HasMore && len(out.Threads) > 0 {
		nextCursor = out.Threads[len(out.Threads)-1].ThreadMetadata.ArchiveTimestamp
	}
	return ids, nextCursor, nil
}

func (x *Adapter) PinMessage(ctx context.Context, id types.ThreadID, messageID string) error {
	channelID, err := decodeThreadID(id)
	if err != nil {
		return err
	}
	if err := x.client.Do(ctx, http.MethodPut, "/channels/"+channelID+"/pins/"+messageID, nil, nil); err != nil {
		return goerr.Wrap(err, "failed to pin message",
			goerr.V("thread_id", id), goerr.V("message_id", messageID))
	}
	return nil
}

func (x *Adapter) UnpinMessage(ctx context.Context, id types.ThreadID, messageID string) error {
	channelID, err := decodeThreadID(id)
	if err != nil {
		return err
	}
	if err := x.client.Do(ctx, http.MethodDelete, "/channels/"+channelID+"/pins/"+messageID, nil, nil); err != nil {
		return goerr.Wrap(err, "failed to unpin message",
			goerr.V("thread_id", id), goerr.V("message_id", messageID))
	}
	return nil
}
