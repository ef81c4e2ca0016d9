package slack_test

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/omnichat/pkg/adapter/slack"
	"github.com/secmon-lab/omnichat/pkg/domain/mock"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

const testSecret = "test-signing-secret"

func newAdapter(now time.Time) *slack.Adapter {
	return slack.New("xoxb-test", testSecret,
		slack.WithClock(func() time.Time { return now }),
		slack.WithBotUserID("U0BOT"))
}

func post(t *testing.T, x *slack.Adapter, d *mock.DispatcherMock, now time.Time, contentType string, body []byte) *model.WebhookResponse {
	t.Helper()
	header, _ := sign(testSecret, now, body)
	header.Set("Content-Type", contentType)
	return gt.R1(x.HandleWebhook(context.Background(), &model.WebhookRequest{
		Body:   body,
		Header: header,
	}, d)).NoError(t)
}

func TestMentionEvent(t *testing.T) {
	now := time.Now()
	x := newAdapter(now)
	d := &mock.DispatcherMock{}

	body := []byte(`{
		"type": "event_callback",
		"event": {
			"type": "app_mention",
			"user": "U123",
			"text": "<@U0BOT> hello",
			"ts": "1700000000.000100",
			"thread_ts": "1700000000.000100",
			"channel": "C00FAKECHAN1"
		}
	}`)
	resp := post(t, x, d, now, "application/json", body)
	gt.Value(t, resp.StatusCode).Equal(200)

	gt.Array(t, d.Messages).Length(1)
	msg := d.Messages[0]
	gt.Value(t, msg.ThreadID).Equal(types.NewThreadID(types.PlatformSlack, "C00FAKECHAN1", "1700000000.000100"))
	gt.True(t, msg.IsMention)
	gt.False(t, msg.Author.IsMe)
	gt.Value(t, msg.Author.UserID).Equal("U123")
}

func TestDMCoercedToMention(t *testing.T) {
	now := time.Now()
	x := newAdapter(now)
	d := &mock.DispatcherMock{}

	body := []byte(`{
		"type": "event_callback",
		"event": {
			"type": "message",
			"user": "U123",
			"text": "just a DM",
			"ts": "1700000001.000200",
			"channel": "D0ABCDEF123",
			"channel_type": "im"
		}
	}`)
	post(t, x, d, now, "application/json", body)

	gt.Array(t, d.Messages).Length(1)
	gt.True(t, d.Messages[0].IsMention)
	gt.Value(t, d.Messages[0].ThreadID.String()).Equal("slack:D0ABCDEF123:")
}

func TestSelfMessageIsFlagged(t *testing.T) {
	now := time.Now()
	x := newAdapter(now)
	d := &mock.DispatcherMock{}

	body := []byte(`{
		"type": "event_callback",
		"event": {
			"type": "message",
			"user": "U0BOT",
			"text": "my own reply",
			"ts": "1700000002.000300",
			"channel": "C00FAKECHAN1"
		}
	}`)
	post(t, x, d, now, "application/json", body)

	gt.Array(t, d.Messages).Length(1)
	gt.True(t, d.Messages[0].Author.IsMe)
}

func TestEditAndDeleteSubtypes(t *testing.T) {
	now := time.Now()
	x := newAdapter(now)
	d := &mock.DispatcherMock{}

	edited := []byte(`{
		"type": "event_callback",
		"event": {
			"type": "message",
			"subtype": "message_changed",
			"channel": "C00FAKECHAN1",
			"ts": "1700000004.000001",
			"message": {
				"type": "message",
				"user": "U123",
				"text": "fixed typo",
				"ts": "1700000003.000400",
				"thread_ts": "1700000000.000100"
			}
		}
	}`)
	post(t, x, d, now, "application/json", edited)
	gt.Array(t, d.EditedMessages).Length(1)
	gt.Value(t, d.EditedMessages[0].Text).Equal("fixed typo")
	gt.Value(t, d.EditedMessages[0].ThreadID.String()).Equal("slack:C00FAKECHAN1:1700000000.000100")

	deleted := []byte(`{
		"type": "event_callback",
		"event": {
			"type": "message",
			"subtype": "message_deleted",
			"channel": "C00FAKECHAN1",
			"ts": "1700000005.000001",
			"deleted_ts": "1700000003.000400"
		}
	}`)
	post(t, x, d, now, "application/json", deleted)
	gt.Array(t, d.DeletedMessages).Length(1)
	gt.Value(t, d.DeletedMessages[0].MessageID).Equal("1700000003.000400")

	// Neither path produced a plain message
	gt.Array(t, d.Messages).Length(0)
}

func TestReactionEvents(t *testing.T) {
	now := time.Now()
	x := newAdapter(now)
	d := &mock.DispatcherMock{}

	body := []byte(`{
		"type": "event_callback",
		"event": {
			"type": "reaction_added",
			"user": "U123",
			"reaction": "thumbsup",
			"item": {"type": "message", "channel": "C00FAKECHAN1", "ts": "1700000000.000100"}
		}
	}`)
	post(t, x, d, now, "application/json", body)

	gt.Array(t, d.Reactions).Length(1)
	gt.Value(t, d.Reactions[0].Emoji).Equal("thumbsup")
	gt.Value(t, d.Reactions[0].Type).Equal(model.ReactionAdded)
	gt.Value(t, d.Reactions[0].MessageID).Equal("1700000000.000100")
}

func TestBlockActionInteraction(t *testing.T) {
	now := time.Now()
	x := newAdapter(now)
	d := &mock.DispatcherMock{}

	payload := `{
		"type": "block_actions",
		"trigger_id": "111.222.deadbeef",
		"user": {"id": "U123", "name": "alice"},
		"channel": {"id": "C00FAKECHAN1"},
		"container": {"channel_id": "C00FAKECHAN1", "thread_ts": "1700000000.000100"},
		"actions": [
			{"action_id": "approve", "value": "req-42"}
		]
	}`
	form := url.Values{"payload": {payload}}
	post(t, x, d, now, "application/x-www-form-urlencoded", []byte(form.Encode()))

	gt.Array(t, d.Actions).Length(1)
	ev := d.Actions[0]
	gt.Value(t, ev.ActionID).Equal("approve")
	gt.Value(t, ev.Value).Equal("req-42")
	gt.Value(t, ev.TriggerID).Equal("111.222.deadbeef")
	gt.Value(t, ev.Thread.ID.String()).Equal("slack:C00FAKECHAN1:1700000000.000100")
	gt.Value(t, ev.Author.UserName).Equal("alice")
}

func TestModalSubmission(t *testing.T) {
	now := time.Now()
	x := newAdapter(now)
	d := &mock.DispatcherMock{}

	payload := `{
		"type": "view_submission",
		"user": {"id": "U123", "name": "alice"},
		"view": {
			"callback_id": "incident_form",
			"private_metadata": "slack:C00FAKECHAN1:1700000000.000100",
			"state": {
				"values": {
					"summary_block": {"summary": {"type": "plain_text_input", "value": "it broke"}}
				}
			}
		}
	}`
	form := url.Values{"payload": {payload}}
	post(t, x, d, now, "application/x-www-form-urlencoded", []byte(form.Encode()))

	gt.Array(t, d.ModalSubmits).Length(1)
	ev := d.ModalSubmits[0]
	gt.Value(t, ev.CallbackID).Equal("incident_form")
	gt.Value(t, ev.Values["summary"]).Equal("it broke")
	gt.Value(t, ev.Thread.ID.String()).Equal("slack:C00FAKECHAN1:1700000000.000100")
}

func TestSlashCommand(t *testing.T) {
	now := time.Now()
	x := newAdapter(now)
	d := &mock.DispatcherMock{}

	form := url.Values{
		"command":      {"/omnichat"},
		"text":         {"status"},
		"channel_id":   {"C00FAKECHAN1"},
		"user_id":      {"U123"},
		"user_name":    {"alice"},
		"trigger_id":   {"333.444.cafe"},
		"response_url": {"https://hooks.slack.test/respond"},
	}
	post(t, x, d, now, "application/x-www-form-urlencoded", []byte(form.Encode()))

	gt.Array(t, d.SlashCommands).Length(1)
	ev := d.SlashCommands[0]
	gt.Value(t, ev.Command).Equal("/omnichat")
	gt.Value(t, ev.Text).Equal("status")
	gt.Value(t, ev.ResponseURL).Equal("https://hooks.slack.test/respond")
	gt.Value(t, ev.Thread.ID.String()).Equal("slack:C00FAKECHAN1:")
}

func TestParseMessage(t *testing.T) {
	x := newAdapter(time.Now())

	raw := json.RawMessage(`{
		"type": "message",
		"user": "U123",
		"text": "report attached",
		"ts": "1700000006.000500",
		"thread_ts": "1700000000.000100",
		"channel": "C00FAKECHAN1",
		"files": [
			{"id": "F1", "name": "graph.png", "mimetype": "image/png", "url_private": "https://files.slack.test/F1", "size": 2048}
		]
	}`)
	msg := gt.R1(x.ParseMessage(raw)).NoError(t)

	gt.Value(t, msg.ThreadID.String()).Equal("slack:C00FAKECHAN1:1700000000.000100")
	gt.Array(t, msg.Attachments).Length(1)
	gt.Value(t, msg.Attachments[0].Kind).Equal(types.AttachmentImage)
	gt.Value(t, msg.Attachments[0].Size).Equal(int64(2048))
	gt.False(t, msg.CreatedAt.IsZero())
}
