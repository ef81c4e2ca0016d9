// Package msteams implements the Microsoft Teams adapter: Bot Framework
// activity normalization, bearer token verification and outbound calls
// against the connector REST API.
package msteams

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/adapter/restclient"
	"github.com/secmon-lab/omnichat/pkg/domain/interfaces"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

const defaultServiceURL = "https://smba.trafficmanager.net/teams"

// Adapter is the Microsoft Teams platform adapter
type Adapter struct {
	appID      string
	botID      string
	serviceURL string
	issuer     string
	keySet     KeySetProvider
	tokens     *tokenSource
	httpClient *http.Client
	now        func() time.Time
}

var _ interfaces.Adapter = &Adapter{}

// Option is a functional option for Adapter configuration
type Option func(*Adapter)

// WithBotID sets the bot's Teams identity ("28:<appID>"), used for
// self-detection and mention matching
func WithBotID(id string) Option {
	return func(x *Adapter) {
		x.botID = id
	}
}

// WithServiceURL overrides the connector service URL. Production values
// arrive per activity; this sets the fallback for bot-initiated calls.
func WithServiceURL(u string) Option {
	return func(x *Adapter) {
		x.serviceURL = strings.TrimSuffix(u, "/")
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

// WithHTTPClient replaces the outbound HTTP client (for tests)
func WithHTTPClient(hc *http.Client) Option {
	return func(x *Adapter) {
		x.httpClient = hc
	}
}

// WithClock replaces the time source used by token validation (for tests)
func WithClock(now func() time.Time) Option {
	return func(x *Adapter) {
		x.now = now
	}
}

// New creates a new Teams adapter for the given Bot Framework app
// credentials
func New(appID, appPassword string, opts ...Option) *Adapter {
	x := &Adapter{
		appID:      appID,
		botID:      "28:" + appID,
		serviceURL: defaultServiceURL,
		issuer:     botFrameworkIssuer,
		httpClient: http.DefaultClient,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.keySet == nil {
		x.keySet = defaultKeySetProvider()
	}
	x.tokens = &tokenSource{
		appID:      appID,
		appSecret:  appPassword,
		tokenURL:   defaultTokenURL,
		httpClient: x.httpClient,
		now:        x.now,
	}
	return x
}

func (x *Adapter) Platform() types.Platform {
	return types.PlatformMSTeams
}

func (x *Adapter) connector(ctx context.Context) (*restclient.Client, error) {
	token, err := x.tokens.get(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to obtain connector token")
	}
	return restclient.New(x.serviceURL,
		restclient.WithHTTPClient(x.httpClient),
		restclient.WithHeader("Authorization", "Bearer "+token)), nil
}

// activity is the Bot Framework activity subset consumed here
type activity struct {
	Type         string `json:"type"`
	ID           string `json:"id"`
	Timestamp    string `json:"timestamp"`
	ServiceURL   string `json:"serviceUrl"`
	Text         string `json:"text"`
	ReplyToID    string `json:"replyToId"`
	Conversation struct {
		ID               string `json:"id"`
		ConversationType string `json:"conversationType"`
	} `json:"conversation"`
	From struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"from"`
	Recipient struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"recipient"`
	Entities []struct {
		Type      string `json:"type"`
		Mentioned struct {
			ID string `json:"id"`
		} `json:"mentioned"`
	} `json:"entities"`
	Attachments []struct {
		ContentType string `json:"contentType"`
		ContentURL  string `json:"contentUrl"`
		Name        string `json:"name"`
	} `json:"attachments"`
	Value            json.RawMessage `json:"value"`
	ReactionsAdded   []reaction      `json:"reactionsAdded"`
	ReactionsRemoved []reaction      `json:"reactionsRemoved"`
	MembersAdded     []struct {
		ID string `json:"id"`
	} `json:"membersAdded"`
	MembersRemoved []struct {
		ID string `json:"id"`
	} `json:"membersRemoved"`
}

type reaction struct {
	Type string `json:"type"`
}

func (x *Adapter) ParseMessage(raw json.RawMessage) (*model.Message, error) {
	var a activity
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, goerr.Wrap(err, "failed to parse teams activity", goerr.T(types.TagValidation))
	}
	return x.buildMessage(&a, raw), nil
}

func (x *Adapter) buildMessage(a *activity, raw json.RawMessage) *model.Message {
	isMention := false
	for _, e := range a.Entities {
		if e.Type == "mention" && e.Mentioned.ID == x.botID {
			isMention = true
		}
	}
	// Personal conversations route like mentions
	if a.Conversation.ConversationType == "personal" {
		isMention = true
	}

	createdAt, _ := time.Parse(time.RFC3339, a.Timestamp)
	msg := &model.Message{
		ID:        a.ID,
		ThreadID:  encodeThreadID(a.Conversation.ID),
		Text:      stripMentionTags(a.Text),
		Formatted: a.Text,
		Raw:       raw,
		Author: model.Author{
			UserID:   a.From.ID,
			UserName: a.From.Name,
			IsBot:    strings.HasPrefix(a.From.ID, "28:"),
			IsMe:     a.From.ID == x.botID,
		},
		IsMention: isMention,
		CreatedAt: createdAt,
	}
	for _, att := range a.Attachments {
		// Teams wraps card payloads in attachments too; only binary
		// content with a URL counts.
		if att.ContentURL == "" {
			continue
		}
		msg.Attachments = append(msg.Attachments, model.Attachment{
			Name:     att.Name,
			MIMEType: att.ContentType,
			Kind:     types.AttachmentKindFromMIME(att.ContentType),
			URL:      att.ContentURL,
		})
	}
	return msg
}

// stripMentionTags removes the <at>...</at> markup Teams injects around
// mentions
func stripMentionTags(text string) string {
	s := strings.ReplaceAll(text, "<at>", "")
	s = strings.ReplaceAll(s, "</at>", "")
	return strings.TrimSpace(s)
}

func (x *Adapter) PostMessage(ctx context.Context, id types.ThreadID, text string) (string, error) {
	conversationID, err := decodeThreadID(id)
	if err != nil {
		return "", err
	}

	client, err := x.connector(ctx)
	if err != nil {
		return "", err
	}
	var out struct {
		ID string `json:"id"`
	}
	body := map[string]string{"type": "message", "text": text}
	path := "/v3/conversations/" + conversationID + "/activities"
	if err := client.Do(ctx, http.MethodPost, path, body, &out); err != nil {
		return "", goerr.Wrap(err, "failed to post activity", goerr.V("thread_id", id))
	}
	return out.ID, nil
}

func (x *Adapter) EditMessage(ctx context.Context, id types.ThreadID, messageID, text string) error {
	conversationID, err := decodeThreadID(id)
	if err != nil {
		return err
	}

	client, err := x.connector(ctx)
	if err != nil {
		return err
	}
	body := map[string]string{"type": "message", "text": text}
	path := "/v3/conversations/" + conversationID + "/activities/" + messageID
	if err := client.Do(ctx, http.MethodPut, path, body, nil); err != nil {
		return goerr.Wrap(err, "failed to update activity",
			goerr.V("thread_id", id), goerr.V("message_id", messageID))
	}
	return nil
}

func (x *Adapter) DeleteMessage(ctx context.Context, id types.ThreadID, messageID string) error {
	conversationID, err := decodeThreadID(id)
	if err != nil {
		return err
	}

	client, err := x.connector(ctx)
	if err != nil {
		return err
	}
	path := "/v3/conversations/" + conversationID + "/activities/" + messageID
	if err := client.Do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return goerr.Wrap(err, "failed to delete activity",
			goerr.V("thread_id", id), goerr.V("message_id", messageID))
	}
	return nil
}

// Message reactions are not writable through the connector API
func (x *Adapter) AddReaction(ctx context.Context, id types.ThreadID, messageID, emoji string) error {
	return types.NewNotImplemented(types.PlatformMSTeams, "AddReaction")
}

func (x *Adapter) RemoveReaction(ctx context.Context, id types.ThreadID, messageID, emoji string) error {
	return types.NewNotImplemented(types.PlatformMSTeams, "RemoveReaction")
}

func (x *Adapter) StartTyping(ctx context.Context, id types.ThreadID) error {
	conversationID, err := decodeThreadID(id)
	if err != nil {
		return err
	}

	client, err := x.connector(ctx)
	if err != nil {
		return err
	}
	body := map[string]string{"type": "typing"}
	path := "/v3/conversations/" + conversationID + "/activities"
	if err := client.Do(ctx, http.MethodPost, path, body, nil); err != nil {
		return goerr.Wrap(err, "failed to send typing activity", goerr.V("thread_id", id))
	}
	return nil
}

// The connector API exposes no conversation history endpoint
func (x *Adapter) FetchMessages(ctx context.Context, id types.ThreadID, limit int, cursor string) ([]*model.Message, string, error) {
	return nil, "", types.NewNotImplemented(types.PlatformMSTeams, "FetchMessages")
}

func (x *Adapter) FetchMessage(ctx context.Context, id types.ThreadID, messageID string) (*model.Message, error) {
	return nil, types.NewNotImplemented(types.PlatformMSTeams, "FetchMessage")
}

func (x *Adapter) FetchThread(ctx context.Context, id types.ThreadID) (*model.ThreadInfo, error) {
	conversationID, err := decodeThreadID(id)
	if err != nil {
		return nil, err
	}
	return &model.ThreadInfo{
		ID:        id,
		ChannelID: conversationID,
		IsDM:      x.IsDM(id),
	}, nil
}

func (x *Adapter) OpenDM(ctx context.Context, userID string) (types.ThreadID, error) {
	client, err := x.connector(ctx)
	if err != nil {
		return "", err
	}

	body := map[string]any{
		"bot":     map[string]string{"id": x.botID},
		"members": []map[string]string{{"id": userID}},
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := client.Do(ctx, http.MethodPost, "/v3/conversations", body, &out); err != nil {
		return "", goerr.Wrap(err, "failed to create conversation", goerr.V("user_id", userID))
	}
	return encodeThreadID(out.ID), nil
}

func (x *Adapter) PostEphemeral(ctx context.Context, id types.ThreadID, userID, text string) error {
	return types.NewNotImplemented(types.PlatformMSTeams, "PostEphemeral")
}

// Task modules open only inside an invoke response round trip
func (x *Adapter) OpenModal(ctx context.Context, triggerID string, modal *model.Modal) error {
	return types.NewNotImplemented(types.PlatformMSTeams, "OpenModal")
}

func (x *Adapter) PostChannelMessage(ctx context.Context, channelID, text string) (string, error) {
	return x.PostMessage(ctx, encodeThreadID(channelID), text)
}

func (x *Adapter) FetchChannelMessages(ctx context.Context, channelID string, limit int, cursor string) ([]*model.Message, string, error) {
	return nil, "", types.NewNotImplemented(types.PlatformMSTeams, "FetchChannelMessages")
}

func (x *Adapter) FetchChannelInfo(ctx context.Context, channelID string) (*model.Channel, error) {
	return nil, types.NewNotImplemented(types.PlatformMSTeams, "FetchChannelInfo")
}

func (x *Adapter) ListThreads(ctx context.Context, channelID string, limit int, cursor string) ([]types.ThreadID, string, error) {
	return nil, "", types.NewNotImplemented(types.PlatformMSTeams, "ListThreads")
}

func (x *Adapter) PinMessage(ctx context.Context, id types.ThreadID, messageID string) error {
	return types.NewNotImplemented(types.PlatformMSTeams, "PinMessage")
}

func (x *Adapter) UnpinMessage(ctx context.Context, id types.ThreadID, messageID string) error {
	return types.NewNotImplemented(types.PlatformMSTeams, "UnpinMessage")
}
