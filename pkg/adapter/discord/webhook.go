package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/interfaces"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
	"github.com/secmon-lab/omnichat/pkg/utils/logging"
)

// Interaction types (wire values)
const (
	interactionPing        = 1
	interactionCommand     = 2
	interactionComponent   = 3
	interactionModalSubmit = 5
)

// Interaction response types (wire values)
const (
	responsePong            = 1
	responseDeferredMessage = 5
	responseDeferredUpdate  = 6
)

type interactionUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

type interaction struct {
	Type          int              `json:"type"`
	ID            string           `json:"id"`
	Token         string           `json:"token"`
	ApplicationID string           `json:"application_id"`
	ChannelID     string           `json:"channel_id"`
	GuildID       string           `json:"guild_id"`
	User          *interactionUser `json:"user"`
	Member        *struct {
		User interactionUser `json:"user"`
	} `json:"member"`
	Message *struct {
		ID string `json:"id"`
	} `json:"message"`
	Data struct {
		Name     string   `json:"name"`
		CustomID string   `json:"custom_id"`
		Values   []string `json:"values"`
		Options []struct {
			Name  string          `json:"name"`
			Value json.RawMessage `json:"value"`
		} `json:"options"`
		Components []struct {
			Components []struct {
				CustomID string `json:"custom_id"`
				Value    string `json:"value"`
			} `json:"components"`
		} `json:"components"`
	} `json:"data"`
}

func (i *interaction) author() model.Author {
	u := i.User
	if i.Member != nil {
		u = &i.Member.User
	}
	if u == nil {
		return model.Author{}
	}
	return model.Author{UserID: u.ID, UserName: u.Username, IsBot: u.Bot}
}

// HandleWebhook verifies the Ed25519 signature over timestamp+body, then
// branches on the interaction type. Every branch returns a synchronous
// structured response because Discord treats a missing interaction
// response as a delivery failure.
func (x *Adapter) HandleWebhook(ctx context.Context, req *model.WebhookRequest, d interfaces.Dispatcher) (*model.WebhookResponse, error) {
	if err := verifySignature(x.publicKey, req.Header, req.Body); err != nil {
		return nil, err
	}

	var in interaction
	if err := json.Unmarshal(req.Body, &in); err != nil {
		return nil, goerr.Wrap(err, "failed to parse interaction", goerr.T(types.TagValidation))
	}

	switch in.Type {
	case interactionPing:
		return model.JSONResponse(map[string]int{"type": responsePong})

	case interactionCommand:
		ev := &model.SlashCommandEvent{
			Thread:      model.Thread{ID: encodeThreadID(in.ChannelID)},
			Command:     "/" + in.Data.Name,
			Text:        commandText(&in),
			TriggerID:   in.ID,
			ResponseURL: fmt.Sprintf("%s/webhooks/%s/%s", x.baseURL, in.ApplicationID, in.Token),
			Author:      in.author(),
		}
		if err := d.DispatchSlashCommand(ctx, ev); err != nil {
			return nil, err
		}
		return model.JSONResponse(map[string]int{"type": responseDeferredMessage})

	case interactionComponent:
		ev := &model.ActionEvent{
			Thread:    model.Thread{ID: encodeThreadID(in.ChannelID)},
			ActionID:  in.Data.CustomID,
			TriggerID: in.ID,
			Author:    in.author(),
			Raw:       req.Body,
		}
		if len(in.Data.Values) > 0 {
			ev.Value = in.Data.Values[0]
		}
		if err := d.DispatchAction(ctx, ev); err != nil {
			return nil, err
		}
		return model.JSONResponse(map[string]int{"type": responseDeferredUpdate})

	case interactionModalSubmit:
		values := map[string]string{}
		for _, row := range in.Data.Components {
			for _, comp := range row.Components {
				values[comp.CustomID] = comp.Value
			}
		}
		ev := &model.ModalSubmitEvent{
			Thread:     model.Thread{ID: encodeThreadID(in.ChannelID)},
			CallbackID: in.Data.CustomID,
			Values:     values,
			TriggerID:  in.ID,
			Author:     in.author(),
		}
		if err := d.DispatchModalSubmit(ctx, ev); err != nil {
			return nil, err
		}
		return model.JSONResponse(map[string]int{"type": responseDeferredUpdate})

	default:
		logging.From(ctx).Debug("ignoring discord interaction", "type", in.Type)
		return model.Ack(), nil
	}
}

// commandText flattens slash command options into one text line
func commandText(in *interaction) string {
	parts := make([]string, 0, len(in.Data.Options))
	for _, opt := range in.Data.Options {
		var s string
		if err := json.Unmarshal(opt.Value, &s); err != nil {
			s = string(opt.Value)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}
