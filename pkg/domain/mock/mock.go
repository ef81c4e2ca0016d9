// Package mock provides hand-written test doubles for the domain
// interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/secmon-lab/omnichat/pkg/domain/interfaces"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
)

// DispatcherMock records every event fed to it. Optional hook functions
// override the default record-and-return-nil behavior.
type DispatcherMock struct {
	mu sync.Mutex

	Messages        []*model.Message
	EditedMessages  []*model.Message
	DeletedMessages []*model.MessageDeletedEvent
	Actions         []*model.ActionEvent
	Reactions       []*model.ReactionEvent
	ModalSubmits    []*model.ModalSubmitEvent
	SlashCommands   []*model.SlashCommandEvent
	Memberships     []*model.MembershipEvent

	DispatchMessageFunc func(ctx context.Context, msg *model.Message) error
	DispatchActionFunc  func(ctx context.Context, ev *model.ActionEvent) error
}

var _ interfaces.Dispatcher = &DispatcherMock{}

func (m *DispatcherMock) DispatchMessage(ctx context.Context, msg *model.Message) error {
	m.mu.Lock()
	m.Messages = append(m.Messages, msg)
	m.mu.Unlock()
	if m.DispatchMessageFunc != nil {
		return m.DispatchMessageFunc(ctx, msg)
	}
	return nil
}

func (m *DispatcherMock) DispatchMessageEdited(ctx context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EditedMessages = append(m.EditedMessages, msg)
	return nil
}

func (m *DispatcherMock) DispatchMessageDeleted(ctx context.Context, ev *model.MessageDeletedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeletedMessages = append(m.DeletedMessages, ev)
	return nil
}

func (m *DispatcherMock) DispatchAction(ctx context.Context, ev *model.ActionEvent) error {
	m.mu.Lock()
	m.Actions = append(m.Actions, ev)
	m.mu.Unlock()
	if m.DispatchActionFunc != nil {
		return m.DispatchActionFunc(ctx, ev)
	}
	return nil
}

func (m *DispatcherMock) DispatchReaction(ctx context.Context, ev *model.ReactionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reactions = append(m.Reactions, ev)
	return nil
}

func (m *DispatcherMock) DispatchModalSubmit(ctx context.Context, ev *model.ModalSubmitEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ModalSubmits = append(m.ModalSubmits, ev)
	return nil
}

func (m *DispatcherMock) DispatchSlashCommand(ctx context.Context, ev *model.SlashCommandEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SlashCommands = append(m.SlashCommands, ev)
	return nil
}

func (m *DispatcherMock) DispatchMembership(ctx context.Context, ev *model.MembershipEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Memberships = append(m.Memberships, ev)
	return nil
}
