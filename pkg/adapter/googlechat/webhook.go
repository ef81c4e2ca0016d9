package googlechat

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/interfaces"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
	"github.com/secmon-lab/omnichat/pkg/utils/logging"
)

// event is the Chat event envelope
type event struct {
	Type    string        `json:"type"`
	Message *eventMessage `json:"message"`
	Space   struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"space"`
	User struct {
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
	} `json:"user"`
	Action *struct {
		ActionMethodName string `json:"actionMethodName"`
		Parameters       []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"parameters"`
	} `json:"action"`
}

// HandleWebhook validates the bearer token, then branches on the Chat
// event type.
func (x *Adapter) HandleWebhook(ctx context.Context, req *model.WebhookRequest, d interfaces.Dispatcher) (*model.WebhookResponse, error) {
	if err := x.verifyToken(ctx, req.Header); err != nil {
		return nil, err
	}

	var ev event
	if err := json.Unmarshal(req.Body, &ev); err != nil {
		return nil, goerr.Wrap(err, "failed to parse chat event", goerr.T(types.TagValidation))
	}

	switch ev.Type {
	case "MESSAGE":
		if ev.Message == nil {
			return nil, goerr.New("message event without message", goerr.T(types.TagValidation))
		}
		if ev.Message.SlashCommand != nil {
			if err := x.dispatchSlashCommand(ctx, ev.Message, d); err != nil {
				return nil, err
			}
			return model.Ack(), nil
		}
		if err := d.DispatchMessage(ctx, x.buildMessage(ev.Message, req.Body)); err != nil {
			return nil, err
		}
		return model.Ack(), nil

	case "CARD_CLICKED":
		if ev.Action == nil {
			return nil, goerr.New("card click event without action", goerr.T(types.TagValidation))
		}
		threadName := ""
		if ev.Message != nil {
			threadName = ev.Message.Thread.Name
		}
		actionEv := &model.ActionEvent{
			Thread:   model.Thread{ID: encodeFromResourceNames(ev.Space.Name, threadName)},
			ActionID: ev.Action.ActionMethodName,
			Author:   model.Author{UserID: ev.User.Name, UserName: ev.User.DisplayName},
			Raw:      req.Body,
		}
		if len(ev.Action.Parameters) > 0 {
			actionEv.Value = ev.Action.Parameters[0].Value
		}
		if err := d.DispatchAction(ctx, actionEv); err != nil {
			return nil, err
		}
		return model.Ack(), nil

	case "ADDED_TO_SPACE", "REMOVED_FROM_SPACE":
		membership := &model.MembershipEvent{
			Thread: model.Thread{ID: encodeFromResourceNames(ev.Space.Name, "")},
			UserID: ev.User.Name,
			Joined: ev.Type == "ADDED_TO_SPACE",
		}
		if err := d.DispatchMembership(ctx, membership); err != nil {
			return nil, err
		}
		return model.Ack(), nil

	default:
		logging.From(ctx).Debug("ignoring chat event", "type", ev.Type)
		return model.Ack(), nil
	}
}

func (x *Adapter) dispatchSlashCommand(ctx context.Context, m *eventMessage, d interfaces.Dispatcher) error {
	command := ""
	for _, a := range m.Annotations {
		if a.SlashCommand.CommandName != "" {
			command = a.SlashCommand.CommandName
		}
	}

	return d.DispatchSlashCommand(ctx, &model.SlashCommandEvent{
		Thread:  model.Thread{ID: encodeFromResourceNames(m.Space.Name, m.Thread.Name)},
		Command: command,
		Text:    m.ArgumentText,
		Author: model.Author{
			UserID:   m.Sender.Name,
			UserName: m.Sender.DisplayName,
			IsMe:     x.botUserID != "" && m.Sender.Name == x.botUserID,
		},
	})
}
