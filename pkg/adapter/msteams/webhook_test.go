package msteams_test

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
	"github.com/secmon-lab/omnichat/pkg/adapter/msteams"
	"github.com/secmon-lab/omnichat/pkg/domain/mock"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

const (
	testAppID  = "00000000-aaaa-bbbb-cccc-000000000000"
	testIssuer = "https://api.botframework.com"
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

func (ti *tokenIssuer) adapter(t *testing.T) *msteams.Adapter {
	t.Helper()
	return msteams.New(testAppID, "app-password",
		msteams.WithKeySetProvider(func(ctx context.Context) (jwk.Set, error) {
			return ti.set, nil
		}),
		msteams.WithClock(func() time.Time { return ti.now }))
}

func (ti *tokenIssuer) sign(t *testing.T, issuer, audience string, expiresAt time.Time) string {
	t.Helper()
	tok := gt.R1(jwt.NewBuilder().
		Issuer(issuer).
		Audience([]string{audience}).
		IssuedAt(ti.now.Add(-time.Minute)).
		Expiration(expiresAt).
		Build()).NoError(t)
	signed := gt.R1(jwt.Sign(tok, jwt.WithKey(jwa.RS256, ti.key))).NoError(t)
	return string(signed)
}

func (ti *tokenIssuer) request(t *testing.T, body []byte) *model.WebhookRequest {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+ti.sign(t, testIssuer, testAppID, ti.now.Add(time.Hour)))
	header.Set("Content-Type", "application/json")
	return &model.WebhookRequest{Body: body, Header: header}
}

func TestTokenVerification(t *testing.T) {
	ti := newTokenIssuer(t)
	x := ti.adapter(t)
	body := []byte(`{"type":"typing"}`)

	t.Run("valid token passes", func(t *testing.T) {
		resp := gt.R1(x.HandleWebhook(context.Background(), ti.request(t, body), &mock.DispatcherMock{})).NoError(t)
		gt.Value(t, resp.StatusCode).Equal(200)
	})

	t.Run("missing header", func(t *testing.T) {
		req := &model.WebhookRequest{Body: body, Header: http.Header{}}
		_, err := x.HandleWebhook(context.Background(), req, &mock.DispatcherMock{})
		gt.Error(t, err)
		gt.True(t, types.IsAuth(err))
	})

	t.Run("wrong audience", func(t *testing.T) {
		header := http.Header{}
		header.Set("Authorization", "Bearer "+ti.sign(t, testIssuer, "someone-else", ti.now.Add(time.Hour)))
		_, err := x.HandleWebhook(context.Background(), &model.WebhookRequest{Body: body, Header: header}, &mock.DispatcherMock{})
		gt.Error(t, err)
		gt.True(t, types.IsAuth(err))
	})

	t.Run("wrong issuer", func(t *testing.T) {
		header := http.Header{}
		header.Set("Authorization", "Bearer "+ti.sign(t, "https://evil.example.com", testAppID, ti.now.Add(time.Hour)))
		_, err := x.HandleWebhook(context.Background(), &model.WebhookRequest{Body: body, Header: header}, &mock.DispatcherMock{})
		gt.Error(t, err)
		gt.True(t, types.IsAuth(err))
	})

	t.Run("expired token", func(t *testing.T) {
		header := http.Header{}
		header.Set("Authorization", "Bearer "+ti.sign(t, testIssuer, testAppID, ti.now.Add(-time.Hour)))
		_, err := x.HandleWebhook(context.Background(), &model.WebhookRequest{Body: body, Header: header}, &mock.DispatcherMock{})
		gt.Error(t, err)
		gt.True(t, types.IsAuth(err))
	})
}

func TestMessageActivity(t *testing.T) {
	ti := newTokenIssuer(t)
	x := ti.adapter(t)
	d := &mock.DispatcherMock{}

	body := []byte(`{
		"type": "message",
		"id": "act-1",
		"timestamp": "2026-08-31T12:00:00Z",
		"text": "<at>omnichat</at> deploy it",
		"conversation": {"id": "19:meeting@thread.tacv2;messageid=1700", "conversationType": "channel"},
		"from": {"id": "29:user-1", "name": "Alice"},
		"recipient": {"id": "28:00000000-aaaa-bbbb-cccc-000000000000"},
		"entities": [{"type": "mention", "mentioned": {"id": "28:00000000-aaaa-bbbb-cccc-000000000000"}}]
	}`)
	gt.R1(x.HandleWebhook(context.Background(), ti.request(t, body), d)).NoError(t)

	gt.Array(t, d.Messages).Length(1)
	msg := d.Messages[0]
	gt.True(t, msg.IsMention)
	gt.Value(t, msg.Text).Equal("deploy it")
	gt.Value(t, msg.ThreadID.String()).Equal("msteams:19:meeting@thread.tacv2;messageid=1700")
	gt.False(t, msg.Author.IsMe)
}

func TestPersonalChatCoercedToMention(t *testing.T) {
	ti := newTokenIssuer(t)
	x := ti.adapter(t)
	d := &mock.DispatcherMock{}

	body := []byte(`{
		"type": "message",
		"id": "act-2",
		"text": "hello",
		"conversation": {"id": "a:1personalchat", "conversationType": "personal"},
		"from": {"id": "29:user-1", "name": "Alice"}
	}`)
	gt.R1(x.HandleWebhook(context.Background(), ti.request(t, body), d)).NoError(t)

	gt.Array(t, d.Messages).Length(1)
	gt.True(t, d.Messages[0].IsMention)
	gt.True(t, x.IsDM(d.Messages[0].ThreadID))
}

func TestCardSubmitBecomesAction(t *testing.T) {
	ti := newTokenIssuer(t)
	x := ti.adapter(t)
	d := &mock.DispatcherMock{}

	body := []byte(`{
		"type": "message",
		"id": "act-3",
		"conversation": {"id": "19:ch@thread.tacv2", "conversationType": "channel"},
		"from": {"id": "29:user-1", "name": "Alice"},
		"value": {"action": "approve", "request": "req-42"}
	}`)
	gt.R1(x.HandleWebhook(context.Background(), ti.request(t, body), d)).NoError(t)

	gt.Array(t, d.Actions).Length(1)
	gt.Value(t, d.Actions[0].ActionID).Equal("approve")
	gt.Array(t, d.Messages).Length(0)
}

func TestMembershipAndReactions(t *testing.T) {
	ti := newTokenIssuer(t)
	x := ti.adapter(t)
	d := &mock.DispatcherMock{}

	join := []byte(`{
		"type": "conversationUpdate",
		"conversation": {"id": "19:ch@thread.tacv2"},
		"membersAdded": [{"id": "29:user-2"}]
	}`)
	gt.R1(x.HandleWebhook(context.Background(), ti.request(t, join), d)).NoError(t)
	gt.Array(t, d.Memberships).Length(1)
	gt.True(t, d.Memberships[0].Joined)

	react := []byte(`{
		"type": "messageReaction",
		"replyToId": "act-1",
		"conversation": {"id": "19:ch@thread.tacv2"},
		"from": {"id": "29:user-1"},
		"reactionsAdded": [{"type": "like"}]
	}`)
	gt.R1(x.HandleWebhook(context.Background(), ti.request(t, react), d)).NoError(t)
	gt.Array(t, d.Reactions).Length(1)
	gt.Value(t, d.Reactions[0].Emoji).Equal("like")
	gt.Value(t, d.Reactions[0].MessageID).Equal("act-1")
}

func TestThreadIDCodec(t *testing.T) {
	ti := newTokenIssuer(t)
	x := ti.adapter(t)

	// Conversation IDs contain colons and must survive the round trip
	id := types.ThreadID("msteams:19:abc@thread.tacv2;messageid=1700")
	gt.NoError(t, x.ValidateThreadID(id))
	conv := gt.R1(x.ChannelIDFromThreadID(id)).NoError(t)
	gt.Value(t, conv).Equal("19:abc@thread.tacv2;messageid=1700")
	gt.False(t, x.IsDM(id))

	gt.Error(t, x.ValidateThreadID(types.ThreadID("slack:C123:1.2")))
	gt.Error(t, x.ValidateThreadID(types.ThreadID("msteams:")))
}
