package slack

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

// threadAddress is the decoded form of a Slack ThreadID:
// "slack:<channelID>:<threadTS>". ThreadTS is empty for channel-level
// context (a message outside any thread).
type threadAddress struct {
	ChannelID string
	ThreadTS  string
}

func encodeThreadID(channelID, threadTS string) types.ThreadID {
	return types.NewThreadID(types.PlatformSlack, channelID, threadTS)
}

func decodeThreadID(id types.ThreadID) (*threadAddress, error) {
	if id.Platform() != types.PlatformSlack {
		return nil, goerr.New("thread ID is not for slack",
			goerr.V("thread_id", id), goerr.T(types.TagValidation))
	}
	fields := id.Fields()
	if len(fields) != 2 {
		return nil, goerr.New("slack thread ID must have channel and thread_ts fields",
			goerr.V("thread_id", id), goerr.T(types.TagValidation))
	}
	if fields[0] == "" {
		return nil, goerr.New("slack thread ID has empty channel",
			goerr.V("thread_id", id), goerr.T(types.TagValidation))
	}
	return &threadAddress{ChannelID: fields[0], ThreadTS: fields[1]}, nil
}

func (x *Adapter) ValidateThreadID(id types.ThreadID) error {
	_, err := decodeThreadID(id)
	return err
}

func (x *Adapter) ChannelIDFromThreadID(id types.ThreadID) (string, error) {
	addr, err := decodeThreadID(id)
	if err != nil {
		return "", err
	}
	return addr.ChannelID, nil
}

// IsDM follows the Slack channel ID convention: DM channel IDs start
// with 'D'.
func (x *Adapter) IsDM(id types.ThreadID) bool {
	addr, err := decodeThreadID(id)
	if err != nil {
		return false
	}
	return len(addr.ChannelID) > 0 && addr.ChannelID[0] == 'D'
}
