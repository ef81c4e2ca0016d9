package telegram

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/interfaces"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
	"github.com/secmon-lab/omnichat/pkg/utils/logging"
)

// update is the Bot API update envelope
type update struct {
	UpdateID      int64       `json:"update_id"`
	Message       *apiMessage `json:"message"`
	EditedMessage *apiMessage `json:"edited_message"`
	CallbackQuery *struct {
		ID      string      `json:"id"`
		From    apiUser     `json:"from"`
		Data    string      `json:"data"`
		Message *apiMessage `json:"message"`
	} `json:"callback_query"`
	MyChatMember *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		NewChatMember struct {
			Status string  `json:"status"`
			User   apiUser `json:"user"`
		} `json:"new_chat_member"`
	} `json:"my_chat_member"`
}

// HandleWebhook checks the shared secret header, then branches on the
// update kind.
func (x *Adapter) HandleWebhook(ctx context.Context, req *model.WebhookRequest, d interfaces.Dispatcher) (*model.WebhookResponse, error) {
	if err := verifySecretToken(x.secretToken, req.Header); err != nil {
		return nil, err
	}

	var up update
	if err := json.Unmarshal(req.Body, &up); err != nil {
		return nil, goerr.Wrap(err, "failed to parse update", goerr.T(types.TagValidation))
	}

	switch {
	case up.Message != nil:
		if err := x.dispatchMessage(ctx, up.Message, req.Body, d); err != nil {
			return nil, err
		}
		return model.Ack(), nil

	case up.EditedMessage != nil:
		if err := d.DispatchMessageEdited(ctx, x.buildMessage(up.EditedMessage, req.Body)); err != nil {
			return nil, err
		}
		return model.Ack(), nil

	case up.CallbackQuery != nil:
		cq := up.CallbackQuery
		thread := model.Thread{}
		if cq.Message != nil {
			thread.ID = encodeThreadID(cq.Message.Chat.ID, cq.Message.MessageThreadID)
		}
		// Callback data follows the "<actionID>:<value>" convention
		actionID, value, _ := strings.Cut(cq.Data, ":")
		ev := &model.ActionEvent{
			Thread:    thread,
			ActionID:  actionID,
			Value:     value,
			TriggerID: cq.ID,
			Author: model.Author{
				UserID:   strconv.FormatInt(cq.From.ID, 10),
				UserName: cq.From.Username,
				FullName: cq.From.fullName(),
				IsBot:    cq.From.IsBot,
				IsMe:     x.botID != 0 && cq.From.ID == x.botID,
			},
			Raw: req.Body,
		}
		if err := d.DispatchAction(ctx, ev); err != nil {
			return nil, err
		}
		return model.Ack(), nil

	case up.MyChatMember != nil:
		mm := up.MyChatMember
		joined := mm.NewChatMember.Status == "member" || mm.NewChatMember.Status == "administrator"
		ev := &model.MembershipEvent{
			Thread: model.Thread{ID: encodeThreadID(mm.Chat.ID, 0)},
			UserID: strconv.FormatInt(mm.NewChatMember.User.ID, 10),
			Joined: joined,
		}
		if err := d.DispatchMembership(ctx, ev); err != nil {
			return nil, err
		}
		return model.Ack(), nil

	default:
		logging.From(ctx).Debug("ignoring telegram update", "update_id", up.UpdateID)
		return model.Ack(), nil
	}
}

func (x *Adapter) dispatchMessage(ctx context.Context, m *apiMessage, raw []byte, d interfaces.Dispatcher) error {
	thread := model.Thread{ID: encodeThreadID(m.Chat.ID, m.MessageThreadID)}

	if len(m.NewChatMembers) > 0 {
		for _, u := range m.NewChatMembers {
			ev := &model.MembershipEvent{
				Thread: thread,
				UserID: strconv.FormatInt(u.ID, 10),
				Joined: true,
			}
			if err := d.DispatchMembership(ctx, ev); err != nil {
				return err
			}
		}
		return nil
	}
	if m.LeftChatMember != nil {
		return d.DispatchMembership(ctx, &model.MembershipEvent{
			Thread: thread,
			UserID: strconv.FormatInt(m.LeftChatMember.ID, 10),
			Joined: false,
		})
	}

	// Bot API slash commands are plain messages starting with '/'
	if strings.HasPrefix(m.Text, "/") && m.From != nil {
		command, rest, _ := strings.Cut(m.Text, " ")
		// "/cmd@botname" targets a specific bot in group chats
		command, target, _ := strings.Cut(command, "@")
		if target == "" || target == x.botUsername {
			return d.DispatchSlashCommand(ctx, &model.SlashCommandEvent{
				Thread:  thread,
				Command: command,
				Text:    rest,
				Author: model.Author{
					UserID:   strconv.FormatInt(m.From.ID, 10),
					UserName: m.From.Username,
					FullName: m.From.fullName(),
					IsMe:     x.botID != 0 && m.From.ID == x.botID,
				},
			})
		}
		return nil
	}

	return d.DispatchMessage(ctx, x.buildMessage(m, raw))
}
