package interfaces

import (
	"context"
	"encoding/json"

	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

// Adapter is the per-platform unit: verifier + codec + normalizer +
// outbound REST calls. HandleWebhook is the sole inbound entry point; all
// other methods either are pure codec functions or issue platform API
// calls. Operations a platform cannot support return an error tagged
// types.TagNotImplemented instead of silently no-oping.
type Adapter interface {
	Platform() types.Platform

	// HandleWebhook verifies the raw request, normalizes the payload and
	// feeds the dispatcher. The returned error is tagged so the HTTP
	// boundary can map it: TagAuth to 401, TagValidation to 400.
	HandleWebhook(ctx context.Context, req *model.WebhookRequest, d Dispatcher) (*model.WebhookResponse, error)

	// Pure codec functions, no I/O
	ValidateThreadID(id types.ThreadID) error
	ChannelIDFromThreadID(id types.ThreadID) (string, error)
	IsDM(id types.ThreadID) bool

	// ParseMessage normalizes a raw platform message payload independent of
	// the webhook path (also used when paging fetch results).
	ParseMessage(raw json.RawMessage) (*model.Message, error)

	// Outbound operations. Each decodes the ThreadID internally and issues
	// the corresponding platform REST call.
	PostMessage(ctx context.Context, id types.ThreadID, text string) (string, error)
	EditMessage(ctx context.Context, id types.ThreadID, messageID, text string) error
	DeleteMessage(ctx context.Context, id types.ThreadID, messageID string) error
	AddReaction(ctx context.Context, id types.ThreadID, messageID, emoji string) error
	RemoveReaction(ctx context.Context, id types.ThreadID, messageID, emoji string) error
	StartTyping(ctx context.Context, id types.ThreadID) error
	FetchMessages(ctx context.Context, id types.ThreadID, limit int, cursor string) ([]*model.Message, string, error)
	FetchMessage(ctx context.Context, id types.ThreadID, messageID string) (*model.Message, error)
	FetchThread(ctx context.Context, id types.ThreadID) (*model.ThreadInfo, error)
	OpenDM(ctx context.Context, userID string) (types.ThreadID, error)
	PostEphemeral(ctx context.Context, id types.ThreadID, userID, text string) error
	OpenModal(ctx context.Context, triggerID string, modal *model.Modal) error
	PostChannelMessage(ctx context.Context, channelID, text string) (string, error)
	FetchChannelMessages(ctx context.Context, channelID string, limit int, cursor string) ([]*model.Message, string, error)
	FetchChannelInfo(ctx context.Context, channelID string) (*model.Channel, error)
	ListThreads(ctx context.Context, channelID string, limit int, cursor string) ([]types.ThreadID, string, error)
	PinMessage(ctx context.Context, id types.ThreadID, messageID string) error
	UnpinMessage(ctx context.Context, id types.ThreadID, messageID string) error
}
