package discord

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

// Discord threads are channels, so the ThreadID carries a single field:
// "discord:<channelID>".
func encodeThreadID(channelID string) types.ThreadID {
	return types.NewThreadID(types.PlatformDiscord, channelID)
}

func decodeThreadID(id types.ThreadID) (string, error) {
	if id.Platform() != types.PlatformDiscord {
		return "", goerr.New("thread ID is not for discord",
			goerr.V("thread_id", id), goerr.T(types.TagValidation))
	}
	fields := id.Fields()
	if len(fields) != 1 {
		return "", goerr.New("discord thread ID must have exactly one channel field",
			goerr.V("thread_id", id), goerr.T(types.TagValidation))
	}
	if fields[0] == "" {
		return "", goerr.New("discord thread ID has empty channel",
			goerr.V("thread_id", id), goerr.T(types.TagValidation))
	}
	return fields[0], nil
}

func (x *Adapter) ValidateThreadID(id types.ThreadID) error {
	_, err := decodeThreadID(id)
	return err
}

func (x *Adapter) ChannelIDFromThreadID(id types.ThreadID) (string, error) {
	return decodeThreadID(id)
}

// IsDM always returns false: Discord channel IDs are opaque snowflakes
// with no DM marker, so DM coercion happens at normalization time from
// the payload's guild_id absence instead.
func (x *Adapter) IsDM(id types.ThreadID) bool {
	return false
}
