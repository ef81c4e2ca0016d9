package slack

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/interfaces"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
	"github.com/secmon-lab/omnichat/pkg/utils/logging"
	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

// HandleWebhook verifies the request signature over the raw body, then
// branches on the body encoding: JSON for Events API callbacks,
// form-encoded for interactions and slash commands.
func (x *Adapter) HandleWebhook(ctx context.Context, req *model.WebhookRequest, d interfaces.Dispatcher) (*model.WebhookResponse, error) {
	if err := verifySignature(x.signingSecret, req.Header, req.Body, x.now()); err != nil {
		return nil, err
	}

	if strings.Contains(req.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		return x.handleForm(ctx, req.Body, d)
	}
	return x.handleEvent(ctx, req.Body, d)
}

func (x *Adapter) handleEvent(ctx context.Context, body []byte, d interfaces.Dispatcher) (*model.WebhookResponse, error) {
	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse slack event", goerr.T(types.TagValidation))
	}

	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			return nil, goerr.Wrap(err, "failed to parse url verification", goerr.T(types.TagValidation))
		}
		return model.TextResponse(challenge.Challenge), nil

	case slackevents.CallbackEvent:
		if err := x.dispatchCallbackEvent(ctx, body, &event, d); err != nil {
			return nil, err
		}
		return model.Ack(), nil

	default:
		logging.From(ctx).Debug("ignoring slack event", "type", event.Type)
		return model.Ack(), nil
	}
}

func (x *Adapter) dispatchCallbackEvent(ctx context.Context, body []byte, event *slackevents.EventsAPIEvent, d interfaces.Dispatcher) error {
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		msg := &model.Message{
			ID:        ev.TimeStamp,
			ThreadID:  encodeThreadID(ev.Channel, ev.ThreadTimeStamp),
			Text:      ev.Text,
			Formatted: ev.Text,
			Raw:       body,
			Author: model.Author{
				UserID: ev.User,
				IsMe:   x.isMe(ev.User, ""),
			},
			IsMention: true,
			CreatedAt: tsToTime(ev.TimeStamp),
		}
		return d.DispatchMessage(ctx, msg)

	case *slackevents.MessageEvent:
		return x.dispatchMessageEvent(ctx, body, ev, d)

	case *slackevents.ReactionAddedEvent:
		return d.DispatchReaction(ctx, &model.ReactionEvent{
			Thread:    model.Thread{ID: encodeThreadID(ev.Item.Channel, ev.Item.Timestamp)},
			MessageID: ev.Item.Timestamp,
			Emoji:     ev.Reaction,
			Type:      model.ReactionAdded,
			Author:    model.Author{UserID: ev.User, IsMe: x.isMe(ev.User, "")},
		})

	case *slackevents.ReactionRemovedEvent:
		return d.DispatchReaction(ctx, &model.ReactionEvent{
			Thread:    model.Thread{ID: encodeThreadID(ev.Item.Channel, ev.Item.Timestamp)},
			MessageID: ev.Item.Timestamp,
			Emoji:     ev.Reaction,
			Type:      model.ReactionRemoved,
			Author:    model.Author{UserID: ev.User, IsMe: x.isMe(ev.User, "")},
		})

	case *slackevents.MemberJoinedChannelEvent:
		return d.DispatchMembership(ctx, &model.MembershipEvent{
			Thread: model.Thread{ID: encodeThreadID(ev.Channel, "")},
			UserID: ev.User,
			Joined: true,
		})

	case *slackevents.MemberLeftChannelEvent:
		return d.DispatchMembership(ctx, &model.MembershipEvent{
			Thread: model.Thread{ID: encodeThreadID(ev.Channel, "")},
			UserID: ev.User,
			Joined: false,
		})

	default:
		logging.From(ctx).Debug("ignoring slack inner event", "type", event.InnerEvent.Type)
		return nil
	}
}

// dispatchMessageEvent branches on message subtypes: edits and deletes
// arrive as subtypes of the generic message event and must become their
// own event shapes, not messages with an edited flag.
func (x *Adapter) dispatchMessageEvent(ctx context.Context, body []byte, ev *slackevents.MessageEvent, d interfaces.Dispatcher) error {
	switch ev.SubType {
	case "message_changed":
		if ev.Message == nil {
			return goerr.New("message_changed without message body", goerr.T(types.TagValidation))
		}
		msg := x.buildEventMessage(ev.Channel, ev.Message, body)
		return d.DispatchMessageEdited(ctx, msg)

	case "message_deleted":
		return d.DispatchMessageDeleted(ctx, &model.MessageDeletedEvent{
			Thread:    model.Thread{ID: encodeThreadID(ev.Channel, ev.ThreadTimeStamp)},
			MessageID: ev.DeletedTimeStamp,
		})

	case "", "bot_message", "file_share", "thread_broadcast":
		msg := x.buildEventMessage(ev.Channel, ev, body)
		// A DM routes like a mention even without an explicit @-mention.
		if ev.ChannelType == "im" && !msg.IsMention {
			msg = msg.WithMention()
		}
		return d.DispatchMessage(ctx, msg)

	default:
		logging.From(ctx).Debug("ignoring slack message subtype", "subtype", ev.SubType)
		return nil
	}
}

func (x *Adapter) buildEventMessage(channel string, ev *slackevents.MessageEvent, raw json.RawMessage) *model.Message {
	msg := &model.Message{
		ID:        ev.TimeStamp,
		ThreadID:  encodeThreadID(channel, ev.ThreadTimeStamp),
		Text:      ev.Text,
		Formatted: ev.Text,
		Raw:       raw,
		Author: model.Author{
			UserID:   ev.User,
			UserName: ev.Username,
			IsBot:    ev.BotID != "",
			IsMe:     x.isMe(ev.User, ev.BotID),
		},
		IsMention: x.containsMention(ev.Text),
		CreatedAt: tsToTime(ev.TimeStamp),
	}
	if msg.Author.UserID == "" {
		msg.Author.UserID = ev.BotID
	}
	for _, f := range ev.Files {
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

func (x *Adapter) handleForm(ctx context.Context, body []byte, d interfaces.Dispatcher) (*model.WebhookResponse, error) {
	vals, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse form body", goerr.T(types.TagValidation))
	}

	if payload := vals.Get("payload"); payload != "" {
		return x.handleInteraction(ctx, payload, d)
	}
	if vals.Get("command") != "" {
		return x.handleSlashCommand(ctx, vals, d)
	}
	return nil, goerr.New("unrecognized form payload", goerr.T(types.TagValidation))
}

func (x *Adapter) handleInteraction(ctx context.Context, payload string, d interfaces.Dispatcher) (*model.WebhookResponse, error) {
	var cb slackapi.InteractionCallback
	if err := json.Unmarshal([]byte(payload), &cb); err != nil {
		return nil, goerr.Wrap(err, "failed to parse interaction payload", goerr.T(types.TagValidation))
	}

	switch cb.Type {
	case slackapi.InteractionTypeBlockActions:
		channelID := cb.Channel.ID
		if channelID == "" {
			channelID = cb.Container.ChannelID
		}
		threadTS := cb.Container.ThreadTs
		for _, action := range cb.ActionCallback.BlockActions {
			ev := &model.ActionEvent{
				Thread:    model.Thread{ID: encodeThreadID(channelID, threadTS)},
				ActionID:  action.ActionID,
				Value:     action.Value,
				TriggerID: cb.TriggerID,
				Author: model.Author{
					UserID:   cb.User.ID,
					UserName: cb.User.Name,
					IsMe:     x.isMe(cb.User.ID, ""),
				},
				Raw: json.RawMessage(payload),
			}
			if err := d.DispatchAction(ctx, ev); err != nil {
				return nil, err
			}
		}
		return model.Ack(), nil

	case slackapi.InteractionTypeViewSubmission:
		values := map[string]string{}
		if cb.View.State != nil {
			for _, block := range cb.View.State.Values {
				for actionID, action := range block {
					values[actionID] = action.Value
				}
			}
		}
		ev := &model.ModalSubmitEvent{
			CallbackID: cb.View.CallbackID,
			Values:     values,
			TriggerID:  cb.TriggerID,
			Author: model.Author{
				UserID:   cb.User.ID,
				UserName: cb.User.Name,
				IsMe:     x.isMe(cb.User.ID, ""),
			},
		}
		// The opener can stash the thread in private_metadata to route the
		// submission back to its conversation.
		if id := types.ThreadID(cb.View.PrivateMetadata); id.Validate() == nil {
			ev.Thread = model.Thread{ID: id}
		}
		if err := d.DispatchModalSubmit(ctx, ev); err != nil {
			return nil, err
		}
		return model.Ack(), nil

	case slackapi.InteractionTypeViewClosed:
		return model.Ack(), nil

	default:
		logging.From(ctx).Debug("ignoring slack interaction", "type", cb.Type)
		return model.Ack(), nil
	}
}

func (x *Adapter) handleSlashCommand(ctx context.Context, vals url.Values, d interfaces.Dispatcher) (*model.WebhookResponse, error) {
	ev := &model.SlashCommandEvent{
		Thread:      model.Thread{ID: encodeThreadID(vals.Get("channel_id"), "")},
		Command:     vals.Get("command"),
		Text:        vals.Get("text"),
		TriggerID:   vals.Get("trigger_id"),
		ResponseURL: vals.Get("response_url"),
		Author: model.Author{
			UserID:   vals.Get("user_id"),
			UserName: vals.Get("user_name"),
			IsMe:     x.isMe(vals.Get("user_id"), ""),
		},
	}
	if err := d.DispatchSlashCommand(ctx, ev); err != nil {
		return nil, err
	}
	return model.Ack(), nil
}
