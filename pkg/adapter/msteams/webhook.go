package msteams

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/interfaces"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
	"github.com/secmon-lab/omnichat/pkg/utils/logging"
)

// HandleWebhook validates the bearer token, then branches on the Bot
// Framework activity type.
func (x *Adapter) HandleWebhook(ctx context.Context, req *model.WebhookRequest, d interfaces.Dispatcher) (*model.WebhookResponse, error) {
	if err := x.verifyToken(ctx, req.Header); err != nil {
		return nil, err
	}

	var a activity
	if err := json.Unmarshal(req.Body, &a); err != nil {
		return nil, goerr.Wrap(err, "failed to parse activity", goerr.T(types.TagValidation))
	}

	thread := model.Thread{ID: encodeThreadID(a.Conversation.ID)}
	author := model.Author{
		UserID:   a.From.ID,
		UserName: a.From.Name,
		IsMe:     a.From.ID == x.botID,
	}

	switch a.Type {
	case "message":
		// Adaptive card submit actions arrive as messages carrying a
		// value payload instead of text.
		if len(a.Value) > 0 && a.Text == "" {
			ev := &model.ActionEvent{
				Thread:   thread,
				ActionID: actionIDFromValue(a.Value),
				Value:    string(a.Value),
				Author:   author,
				Raw:      req.Body,
			}
			if err := d.DispatchAction(ctx, ev); err != nil {
				return nil, err
			}
			return model.Ack(), nil
		}
		if err := d.DispatchMessage(ctx, x.buildMessage(&a, req.Body)); err != nil {
			return nil, err
		}
		return model.Ack(), nil

	case "messageUpdate":
		if err := d.DispatchMessageEdited(ctx, x.buildMessage(&a, req.Body)); err != nil {
			return nil, err
		}
		return model.Ack(), nil

	case "messageDelete":
		ev := &model.MessageDeletedEvent{Thread: thread, MessageID: a.ID}
		if err := d.DispatchMessageDeleted(ctx, ev); err != nil {
			return nil, err
		}
		return model.Ack(), nil

	case "messageReaction":
		for _, r := range a.ReactionsAdded {
			ev := &model.ReactionEvent{
				Thread:    thread,
				MessageID: a.ReplyToID,
				Emoji:     r.Type,
				Type:      model.ReactionAdded,
				Author:    author,
			}
			if err := d.DispatchReaction(ctx, ev); err != nil {
				return nil, err
			}
		}
		for _, r := range a.ReactionsRemoved {
			ev := &model.ReactionEvent{
				Thread:    thread,
				MessageID: a.ReplyToID,
				Emoji:     r.Type,
				Type:      model.ReactionRemoved,
				Author:    author,
			}
			if err := d.DispatchReaction(ctx, ev); err != nil {
				return nil, err
			}
		}
		return model.Ack(), nil

	case "conversationUpdate":
		for _, m := range a.MembersAdded {
			ev := &model.MembershipEvent{Thread: thread, UserID: m.ID, Joined: true}
			if err := d.DispatchMembership(ctx, ev); err != nil {
				return nil, err
			}
		}
		for _, m := range a.MembersRemoved {
			ev := &model.MembershipEvent{Thread: thread, UserID: m.ID, Joined: false}
			if err := d.DispatchMembership(ctx, ev); err != nil {
				return nil, err
			}
		}
		return model.Ack(), nil

	default:
		logging.From(ctx).Debug("ignoring teams activity", "type", a.Type)
		return model.Ack(), nil
	}
}

// actionIDFromValue picks the conventional "action" field out of a card
// submit payload, falling back to empty for catch-all handlers.
func actionIDFromValue(value json.RawMessage) string {
	var v struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(value, &v); err != nil {
		return ""
	}
	return v.Action
}
