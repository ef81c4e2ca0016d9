package slack_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/omnichat/pkg/adapter/slack"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

func TestThreadIDRoundTrip(t *testing.T) {
	x := slack.New("xoxb-test", "secret")

	id := types.NewThreadID(types.PlatformSlack, "C00FAKECHAN1", "1234.5678")
	gt.Value(t, id.String()).Equal("slack:C00FAKECHAN1:1234.5678")
	gt.NoError(t, x.ValidateThreadID(id))

	channel := gt.R1(x.ChannelIDFromThreadID(id)).NoError(t)
	gt.Value(t, channel).Equal("C00FAKECHAN1")
	gt.False(t, x.IsDM(id))

	// Empty thread_ts still round-trips
	dm := types.NewThreadID(types.PlatformSlack, "D0ABCDEF123", "")
	gt.Value(t, dm.String()).Equal("slack:D0ABCDEF123:")
	gt.NoError(t, x.ValidateThreadID(dm))
	gt.True(t, x.IsDM(dm))
}

func TestThreadIDValidation(t *testing.T) {
	x := slack.New("xoxb-test", "secret")

	cases := map[string]types.ThreadID{
		"wrong platform": types.NewThreadID(types.PlatformDiscord, "123"),
		"missing fields": types.ThreadID("slack"),
		"too few fields": types.ThreadID("slack:C123"),
		"empty channel":  types.ThreadID("slack::1234.5678"),
		"too many":       types.ThreadID("slack:C123:1.2:extra"),
	}
	for name, id := range cases {
		t.Run(name, func(t *testing.T) {
			err := x.ValidateThreadID(id)
			gt.Error(t, err)
			gt.True(t, types.IsValidation(err))
		})
	}
}
