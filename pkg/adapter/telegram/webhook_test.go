package telegram_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/omnichat/pkg/adapter/telegram"
	"github.com/secmon-lab/omnichat/pkg/domain/mock"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

const testSecret = "webhook-secret"

func newAdapter() *telegram.Adapter {
	return telegram.New("12345:token", testSecret,
		telegram.WithBotID(99999),
		telegram.WithBotUsername("omnichat_bot"))
}

func request(body []byte) *model.WebhookRequest {
	header := http.Header{}
	header.Set("X-Telegram-Bot-Api-Secret-Token", testSecret)
	header.Set("Content-Type", "application/json")
	return &model.WebhookRequest{Body: body, Header: header}
}

func TestSecretTokenVerification(t *testing.T) {
	x := newAdapter()
	body := []byte(`{"update_id":1}`)

	t.Run("valid secret passes", func(t *testing.T) {
		resp := gt.R1(x.HandleWebhook(context.Background(), request(body), &mock.DispatcherMock{})).NoError(t)
		gt.Value(t, resp.StatusCode).Equal(200)
	})

	t.Run("missing header rejected", func(t *testing.T) {
		req := &model.WebhookRequest{Body: body, Header: http.Header{}}
		_, err := x.HandleWebhook(context.Background(), req, &mock.DispatcherMock{})
		gt.Error(t, err)
		gt.True(t, types.IsAuth(err))
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		header := http.Header{}
		header.Set("X-Telegram-Bot-Api-Secret-Token", "nope")
		_, err := x.HandleWebhook(context.Background(), &model.WebhookRequest{Body: body, Header: header}, &mock.DispatcherMock{})
		gt.Error(t, err)
		gt.True(t, types.IsAuth(err))
	})
}

func TestPrivateChatMessage(t *testing.T) {
	x := newAdapter()
	d := &mock.DispatcherMock{}

	body := []byte(`{
		"update_id": 10,
		"message": {
			"message_id": 42,
			"from": {"id": 123, "username": "alice", "first_name": "Alice"},
			"chat": {"id": 123, "type": "private"},
			"date": 1700000000,
			"text": "hello bot"
		}
	}`)
	gt.R1(x.HandleWebhook(context.Background(), request(body), d)).NoError(t)

	gt.Array(t, d.Messages).Length(1)
	msg := d.Messages[0]
	gt.True(t, msg.IsMention)
	gt.Value(t, msg.ThreadID.String()).Equal("telegram:123:")
	gt.True(t, x.IsDM(msg.ThreadID))
	gt.False(t, msg.Author.IsMe)
}

func TestGroupTopicMessage(t *testing.T) {
	x := newAdapter()
	d := &mock.DispatcherMock{}

	body := []byte(`{
		"update_id": 11,
		"message": {
			"message_id": 43,
			"from": {"id": 123, "username": "alice", "first_name": "Alice"},
			"chat": {"id": -100555, "type": "supergroup", "title": "ops"},
			"date": 1700000001,
			"message_thread_id": 7,
			"text": "@omnichat_bot status please"
		}
	}`)
	gt.R1(x.HandleWebhook(context.Background(), request(body), d)).NoError(t)

	gt.Array(t, d.Messages).Length(1)
	msg := d.Messages[0]
	gt.True(t, msg.IsMention)
	gt.Value(t, msg.ThreadID.String()).Equal("telegram:-100555:7")
	gt.False(t, x.IsDM(msg.ThreadID))
}

func TestSelfMessageIsFlagged(t *testing.T) {
	x := newAdapter()
	d := &mock.DispatcherMock{}

	body := []byte(`{
		"update_id": 12,
		"message": {
			"message_id": 44,
			"from": {"id": 99999, "is_bot": true, "username": "omnichat_bot", "first_name": "omnichat"},
			"chat": {"id": -100555, "type": "supergroup"},
			"date": 1700000002,
			"text": "my own reply"
		}
	}`)
	gt.R1(x.HandleWebhook(context.Background(), request(body), d)).NoError(t)

	gt.Array(t, d.Messages).Length(1)
	gt.True(t, d.Messages[0].Author.IsMe)
}

func TestEditedMessage(t *testing.T) {
	x := newAdapter()
	d := &mock.DispatcherMock{}

	body := []byte(`{
		"update_id": 13,
		"edited_message": {
			"message_id": 42,
			"from": {"id": 123, "first_name": "Alice"},
			"chat": {"id": 123, "type": "private"},
			"date": 1700000003,
			"text": "hello bot, edited"
		}
	}`)
	gt.R1(x.HandleWebhook(context.Background(), request(body), d)).NoError(t)

	gt.Array(t, d.EditedMessages).Length(1)
	gt.Value(t, d.EditedMessages[0].Text).Equal("hello bot, edited")
	gt.Array(t, d.Messages).Length(0)
}

func TestCallbackQueryBecomesAction(t *testing.T) {
	x := newAdapter()
	d := &mock.DispatcherMock{}

	body := []byte(`{
		"update_id": 14,
		"callback_query": {
			"id": "cbq-1",
			"from": {"id": 123, "username": "alice", "first_name": "Alice"},
			"data": "approve:req-42",
			"message": {"message_id": 42, "chat": {"id": -100555, "type": "supergroup"}, "message_thread_id": 7}
		}
	}`)
	gt.R1(x.HandleWebhook(context.Background(), request(body), d)).NoError(t)

	gt.Array(t, d.Actions).Length(1)
	ev := d.Actions[0]
	gt.Value(t, ev.ActionID).Equal("approve")
	gt.Value(t, ev.Value).Equal("req-42")
	gt.Value(t, ev.TriggerID).Equal("cbq-1")
	gt.Value(t, ev.Thread.ID.String()).Equal("telegram:-100555:7")
}

func TestSlashCommandMessage(t *testing.T) {
	x := newAdapter()
	d := &mock.DispatcherMock{}

	body := []byte(`{
		"update_id": 15,
		"message": {
			"message_id": 45,
			"from": {"id": 123, "username": "alice", "first_name": "Alice"},
			"chat": {"id": -100555, "type": "supergroup"},
			"date": 1700000004,
			"text": "/status@omnichat_bot gateway"
		}
	}`)
	gt.R1(x.HandleWebhook(context.Background(), request(body), d)).NoError(t)

	gt.Array(t, d.SlashCommands).Length(1)
	gt.Value(t, d.SlashCommands[0].Command).Equal("/status")
	gt.Value(t, d.SlashCommands[0].Text).Equal("gateway")
	gt.Array(t, d.Messages).Length(0)
}

func TestCommandForOtherBotIgnored(t *testing.T) {
	x := newAdapter()
	d := &mock.DispatcherMock{}

	body := []byte(`{
		"update_id": 16,
		"message": {
			"message_id": 46,
			"from": {"id": 123, "first_name": "Alice"},
			"chat": {"id": -100555, "type": "supergroup"},
			"date": 1700000005,
			"text": "/status@other_bot gateway"
		}
	}`)
	gt.R1(x.HandleWebhook(context.Background(), request(body), d)).NoError(t)

	gt.Array(t, d.SlashCommands).Length(0)
	gt.Array(t, d.Messages).Length(0)
}

func TestMembershipUpdate(t *testing.T) {
	x := newAdapter()
	d := &mock.DispatcherMock{}

	body := []byte(`{
		"update_id": 17,
		"my_chat_member": {
			"chat": {"id": -100555},
			"new_chat_member": {"status": "member", "user": {"id": 99999, "is_bot": true}}
		}
	}`)
	gt.R1(x.HandleWebhook(context.Background(), request(body), d)).NoError(t)

	gt.Array(t, d.Memberships).Length(1)
	gt.True(t, d.Memberships[0].Joined)
}

func TestThreadIDCodec(t *testing.T) {
	x := newAdapter()

	id := types.NewThreadID(types.PlatformTelegram, "-100555", "7")
	gt.NoError(t, x.ValidateThreadID(id))
	chat := gt.R1(x.ChannelIDFromThreadID(id)).NoError(t)
	gt.Value(t, chat).Equal("-100555")

	gt.Error(t, x.ValidateThreadID(types.ThreadID("telegram:abc:")))
	gt.Error(t, x.ValidateThreadID(types.ThreadID("telegram:123:xyz")))
	gt.Error(t, x.ValidateThreadID(types.ThreadID("slack:C1:1.2")))
}
