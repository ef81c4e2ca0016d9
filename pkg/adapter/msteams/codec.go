package msteams

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

// Teams conversation IDs contain colons (e.g. "19:abc@thread.tacv2"), so
// the codec treats everything after the "msteams:" prefix as one opaque
// conversation field instead of splitting on ':'.
const threadIDPrefix = string(types.PlatformMSTeams) + ":"

func encodeThreadID(conversationID string) types.ThreadID {
	return types.ThreadID(threadIDPrefix + conversationID)
}

func decodeThreadID(id types.ThreadID) (string, error) {
	s := string(id)
	if !strings.HasPrefix(s, threadIDPrefix) {
		return "", goerr.New("thread ID is not for msteams",
			goerr.V("thread_id", id), goerr.T(types.TagValidation))
	}
	conversationID := s[len(threadIDPrefix):]
	if conversationID == "" {
		return "", goerr.New("msteams thread ID has empty conversation",
			goerr.V("thread_id", id), goerr.T(types.TagValidation))
	}
	return conversationID, nil
}

func (x *Adapter) ValidateThreadID(id types.ThreadID) error {
	_, err := decodeThreadID(id)
	return err
}

func (x *Adapter) ChannelIDFromThreadID(id types.ThreadID) (string, error) {
	return decodeThreadID(id)
}

// IsDM follows the Teams conversation ID convention: personal (one on
// one) conversations carry an "a:" prefix, channel threads "19:".
func (x *Adapter) IsDM(id types.ThreadID) bool {
	conversationID, err := decodeThreadID(id)
	if err != nil {
		return false
	}
	return strings.HasPrefix(conversationID, "a:")
}
