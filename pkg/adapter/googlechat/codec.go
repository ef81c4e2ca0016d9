package googlechat

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

// threadAddress is the decoded form of a Google Chat ThreadID:
// "googlechat:<spaceID>:<threadID>". IDs are the resource name segments
// without the "spaces/" and "threads/" prefixes; the thread field is
// empty for space-level context.
type threadAddress struct {
	SpaceID  string
	ThreadID string
}

func (a *threadAddress) spaceName() string {
	return "spaces/" + a.SpaceID
}

func (a *threadAddress) threadName() string {
	if a.ThreadID == "" {
		return ""
	}
	return "spaces/" + a.SpaceID + "/threads/" + a.ThreadID
}

func encodeThreadID(spaceID, threadID string) types.ThreadID {
	return types.NewThreadID(types.PlatformGoogleChat, spaceID, threadID)
}

// encodeFromResourceNames builds a ThreadID from full resource names as
// they appear in event payloads.
func encodeFromResourceNames(spaceName, threadName string) types.ThreadID {
	space := strings.TrimPrefix(spaceName, "spaces/")
	thread := ""
	if idx := strings.LastIndex(threadName, "/threads/"); idx >= 0 {
		thread = threadName[idx+len("/threads/"):]
	}
	return encodeThreadID(space, thread)
}

func decodeThreadID(id types.ThreadID) (*threadAddress, error) {
	if id.Platform() != types.PlatformGoogleChat {
		return nil, goerr.New("thread ID is not for googlechat",
			goerr.V("thread_id", id), goerr.T(types.TagValidation))
	}
	fields := id.Fields()
	if len(fields) != 2 {
		return nil, goerr.New("googlechat thread ID must have space and thread fields",
			goerr.V("thread_id", id), goerr.T(types.TagValidation))
	}
	if fields[0] == "" {
		return nil, goerr.New("googlechat thread ID has empty space",
			goerr.V("thread_id", id), goerr.T(types.TagValidation))
	}
	return &threadAddress{SpaceID: fields[0], ThreadID: fields[1]}, nil
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
	return addr.SpaceID, nil
}

// IsDM always returns false: Google Chat space IDs carry no DM marker,
// so DM coercion happens at normalization time from the space type
// instead.
func (x *Adapter) IsDM(id types.ThreadID) bool {
	return false
}
