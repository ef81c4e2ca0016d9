package telegram

import (
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

// threadAddress is the decoded form of a Telegram ThreadID:
// "telegram:<chatID>:<topicID>". The topic field is the forum topic
// (message_thread_id), empty for plain chats.
type threadAddress struct {
	ChatID  int64
	TopicID int64
}

func encodeThreadID(chatID int64, topicID int64) types.ThreadID {
	topic := ""
	if topicID != 0 {
		topic = strconv.FormatInt(topicID, 10)
	}
	return types.NewThreadID(types.PlatformTelegram, strconv.FormatInt(chatID, 10), topic)
}

func decodeThreadID(id types.ThreadID) (*threadAddress, error) {
	if id.Platform() != types.PlatformTelegram {
		return nil, goerr.New("thread ID is not for telegram",
			goerr.V("thread_id", id), goerr.T(types.TagValidation))
	}
	fields := id.Fields()
	if len(fields) != 2 {
		return nil, goerr.New("telegram thread ID must have chat and topic fields",
			goerr.V("thread_id", id), goerr.T(types.TagValidation))
	}

	chatID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return nil, goerr.Wrap(err, "telegram thread ID has non-numeric chat",
			goerr.V("thread_id", id), goerr.T(types.TagValidation))
	}

	addr := &threadAddress{ChatID: chatID}
	if fields[1] != "" {
		topicID, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, goerr.Wrap(err, "telegram thread ID has non-numeric topic",
				goerr.V("thread_id", id), goerr.T(types.TagValidation))
		}
		addr.TopicID = topicID
	}
	return addr, nil
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
	return strconv.FormatInt(addr.ChatID, 10), nil
}

// IsDM follows the Telegram chat ID convention: private chats have
// positive IDs, groups and channels negative ones.
func (x *Adapter) IsDM(id types.ThreadID) bool {
	addr, err := decodeThreadID(id)
	if err != nil {
		return false
	}
	return addr.ChatID > 0
}
