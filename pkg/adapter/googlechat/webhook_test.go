package googlechat_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/omnichat/pkg/adapter/googlechat"
	"github.com/secmon-lab/omnichat/pkg/domain/mock"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

const (
	testAudience = "123456789012"
	testIssuer   = "chat@system.gserviceaccount.com"
)

type tokenIssuer struct {
	key jwk.Key
	set jwk.Set
	now time.Time
}

func newTokenIssuer(t *testing.T) *tokenIssuer {
	t.Helper()
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	gt.NoError(t, err)

	key := gt.R1(jwk.FromRaw(raw)).NoError(t)
	gt.NoError(t, key.Set(jwk.KeyIDKey, "test-key"))
	gt.NoError(t, key.Set(jwk.AlgorithmKey, jwa.RS256))

	pub := gt.R1(key.PublicKey()).NoError(t)
	set := jwk.NewSet()
	gt.NoError(t, set.AddKey(pub))

	return &tokenIssuer{key: key, set: set, now: time.Now()}
}

func (ti *tokenIssuer) adapter(t *testing.T) *googlechat.Adapter {
	t.Helper()
	x, err := googlechat.New(context.Background(), nil, testAudience,
		googlechat.WithBotUserID("users/bot-1"),
		googlechat.WithKeySetProvider(func(ctx context.Context) (jwk.Set, error) {
			return ti.set, nil
		}),
		googlechat.WithClock(func() time.Time { return ti.now }))
	gt.NoError(t, err)
	return x
}

func (ti *tokenIssuer) request(t *testing.T, body []byte) *model.WebhookRequest {
	t.Helper()
	tok := gt.R1(jwt.NewBuilder().
		Issuer(testIssuer).
		Audience([]string{testAudience}).
		IssuedAt(ti.now.Add(-time.Minute)).
		Expiration(ti.now.Add(time.Hour)).
		Build()).NoError(t)
	signed := gt.R1(jwt.Sign(tok, jwt.WithKey(jwa.RS256, ti.key))).NoError(t)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+string(signed))
	header.Set("Content-Type", "application/json")
	return &model.WebhookRequest{Body: body, Header: header}
}

func TestMissingTokenRejected(t *testing.T) {
	ti := newTokenIssuer(t)
	x := ti.adapter(t)

	req := &model.WebhookRequest{Body: []byte(`{"type":"MESSAGE"}`), Header: http.Header{}}
	_, err := x.HandleWebhook(context.Background(), req, &mock.DispatcherMock{})
	gt.Error(t, err)
	gt.True(t, types.IsAuth(err))
}

func TestMessageEvent(t *testing.T) {
	ti := newTokenIssuer(t)
	x := ti.adapter(t)
	d := &mock.DispatcherMock{}

	body := []byte(`{
		"type": "MESSAGE",
		"message": {
			"name": "spaces/AAA/messages/BBB.CCC",
			"text": "@omnichat summarize",
			"argumentText": "summarize",
			"createTime": "2026-08-31T12:00:00Z",
			"sender": {"name": "users/123", "displayName": "Alice", "type": "HUMAN"},
			"space": {"name": "spaces/AAA", "type": "ROOM"},
			"thread": {"name": "spaces/AAA/threads/TTT"},
			"annotations": [{"type": "USER_MENTION", "userMention": {"user": {"name": "users/bot-1"}}}]
		}
	}`)
	resp := gt.R1(x.HandleWebhook(context.Background(), ti.request(t, body), d)).NoError(t)
	gt.Value(t, resp.StatusCode).Equal(200)

	gt.Array(t, d.Messages).Length(1)
	msg := d.Messages[0]
	gt.True(t, msg.IsMention)
	gt.Value(t, msg.Text).Equal("summarize")
	gt.Value(t, msg.ThreadID.String()).Equal("googlechat:AAA:TTT")
	gt.False(t, msg.Author.IsMe)
}

func TestDMSpaceCoercedToMention(t *testing.T) {
	ti := newTokenIssuer(t)
	x := ti.adapter(t)
	d := &mock.DispatcherMock{}

	body := []byte(`{
		"type": "MESSAGE",
		"message": {
			"name": "spaces/DDD/messages/EEE",
			"text": "hello",
			"sender": {"name": "users/123", "displayName": "Alice", "type": "HUMAN"},
			"space": {"name": "spaces/DDD", "type": "DM"},
			"thread": {"name": "spaces/DDD/threads/UUU"}
		}
	}`)
	gt.R1(x.HandleWebhook(context.Background(), ti.request(t, body), d)).NoError(t)

	gt.Array(t, d.Messages).Length(1)
	gt.True(t, d.Messages[0].IsMention)
}

func TestCardClickedEvent(t *testing.T) {
	ti := newTokenIssuer(t)
	x := ti.adapter(t)
	d := &mock.DispatcherMock{}

	body := []byte(`{
		"type": "CARD_CLICKED",
		"space": {"name": "spaces/AAA"},
		"user": {"name": "users/123", "displayName": "Alice"},
		"message": {"thread": {"name": "spaces/AAA/threads/TTT"}},
		"action": {"actionMethodName": "approve", "parameters": [{"key": "request", "value": "req-42"}]}
	}`)
	gt.R1(x.HandleWebhook(context.Background(), ti.request(t, body), d)).NoError(t)

	gt.Array(t, d.Actions).Length(1)
	gt.Value(t, d.Actions[0].ActionID).Equal("approve")
	gt.Value(t, d.Actions[0].Value).Equal("req-42")
	gt.Value(t, d.Actions[0].Thread.ID.String()).Equal("googlechat:AAA:TTT")
}

func TestSlashCommandEvent(t *testing.T) {
	ti := newTokenIssuer(t)
	x := ti.adapter(t)
	d := &mock.DispatcherMock{}

	body := []byte(`{
		"type": "MESSAGE",
		"message": {
			"name": "spaces/AAA/messages/FFF",
			"text": "/status gateway",
			"argumentText": "gateway",
			"sender": {"name": "users/123", "displayName": "Alice", "type": "HUMAN"},
			"space": {"name": "spaces/AAA", "type": "ROOM"},
			"thread": {"name": "spaces/AAA/threads/TTT"},
			"slashCommand": {"commandId": "1"},
			"annotations": [{"type": "SLASH_COMMAND", "slashCommand": {"commandName": "/status"}}]
		}
	}`)
	gt.R1(x.HandleWebhook(context.Background(), ti.request(t, body), d)).NoError(t)

	gt.Array(t, d.SlashCommands).Length(1)
	gt.Value(t, d.SlashCommands[0].Command).Equal("/status")
	gt.Value(t, d.SlashCommands[0].Text).Equal("gateway")
	gt.Array(t, d.Messages).Length(0)
}

func TestMembershipEvents(t *testing.T) {
	ti := newTokenIssuer(t)
	x := ti.adapter(t)
	d := &mock.DispatcherMock{}

	body := []byte(`{
		"type": "ADDED_TO_SPACE",
		"space": {"name": "spaces/AAA", "type": "ROOM"},
		"user": {"name": "users/123", "displayName": "Alice"}
	}`)
	gt.R1(x.HandleWebhook(context.Background(), ti.request(t, body), d)).NoError(t)

	gt.Array(t, d.Memberships).Length(1)
	gt.True(t, d.Memberships[0].Joined)
	gt.Value(t, d.Memberships[0].Thread.ID.String()).Equal("googlechat:AAA:")
}

func TestThreadIDCodec(t *testing.T) {
	ti := newTokenIssuer(t)
	x := ti.adapter(t)

	id := types.NewThreadID(types.PlatformGoogleChat, "AAA", "TTT")
	gt.Value(t, id.String()).Equal("googlechat:AAA:TTT")
	gt.NoError(t, x.ValidateThreadID(id))
	space := gt.R1(x.ChannelIDFromThreadID(id)).NoError(t)
	gt.Value(t, space).Equal("AAA")

	// Space-level context round-trips with an empty thread field
	bare := types.NewThreadID(types.PlatformGoogleChat, "AAA", "")
	gt.NoError(t, x.ValidateThreadID(bare))

	gt.Error(t, x.ValidateThreadID(types.ThreadID("googlechat:AAA")))
	gt.Error(t, x.ValidateThreadID(types.ThreadID("slack:C1:1.2")))
}
