package interfaces

import (
	"context"

	"github.com/secmon-lab/omnichat/pkg/domain/model"
)

// Dispatcher receives verified, normalized events from adapters and routes
// them to registered handlers. Adapters never see handler registration;
// they only feed events in.
type Dispatcher interface {
	DispatchMessage(ctx context.Context, msg *model.Message) error
	DispatchMessageEdited(ctx context.Context, msg *model.Message) error
	DispatchMessageDeleted(ctx context.Context, ev *model.MessageDeletedEvent) error
	DispatchAction(ctx context.Context, ev *model.ActionEvent) error
	DispatchReaction(ctx context.Context, ev *model.ReactionEvent) error
	DispatchModalSubmit(ctx context.Context, ev *model.ModalSubmitEvent) error
	DispatchSlashCommand(ctx context.Context, ev *model.SlashCommandEvent) error
	DispatchMembership(ctx context.Context, ev *model.MembershipEvent) error
}
