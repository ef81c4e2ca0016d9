package model

import (
	"encoding/json"

	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

// Thread is a ThreadID-bearing reference carried by normalized events
type Thread struct {
	ID types.ThreadID
}

// Channel describes a platform channel/space/conversation
type Channel struct {
	ID       string
	Platform types.Platform
	Name     string
	Topic    string
	IsDM     bool
}

// ThreadInfo describes a thread fetched from a platform
type ThreadInfo struct {
	ID        types.ThreadID
	ChannelID string
	Name      string
	IsDM      bool
}

// ActionEvent is a normalized button click or select interaction
type ActionEvent struct {
	Thread    Thread
	ActionID  string
	Value     string
	TriggerID string
	Author    Author
	Raw       json.RawMessage
}

// ReactionType distinguishes reaction-added from reaction-removed
type ReactionType string

const (
	ReactionAdded   ReactionType = "added"
	ReactionRemoved ReactionType = "removed"
)

// ReactionEvent is a normalized emoji reaction change
type ReactionEvent struct {
	Thread    Thread
	MessageID string
	Emoji     string
	Type      ReactionType
	Author    Author
}

// ModalSubmitEvent is a normalized modal form submission
type ModalSubmitEvent struct {
	Thread     Thread
	CallbackID string
	Values     map[string]string
	TriggerID  string
	Author     Author
}

// SlashCommandEvent is a normalized slash command invocation
type SlashCommandEvent struct {
	Thread      Thread
	Command     string
	Text        string
	TriggerID   string
	ResponseURL string
	Author      Author
}

// MessageDeletedEvent marks a deleted message. Platforms that report
// deletion as a message subtype branch to this before generic message
// normalization.
type MessageDeletedEvent struct {
	Thread    Thread
	MessageID string
}

// MembershipEvent marks a member joining or leaving a conversation
type MembershipEvent struct {
	Thread Thread
	UserID string
	Joined bool
}
