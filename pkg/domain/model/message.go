package model

import (
	"encoding/json"
	"time"

	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

// Attachment holds binary-attachment metadata. The bytes themselves are
// never fetched by the gateway.
type Attachment struct {
	ID       string
	Name     string
	MIMEType string
	Kind     types.AttachmentKind
	URL      string
	Size     int64
}

// Message is the canonical message entity, built exclusively by an
// adapter's normalizer from a raw webhook payload or API response. It is
// never mutated after construction; mention coercion goes through
// WithMention which returns a copy.
type Message struct {
	ID          string
	ThreadID    types.ThreadID
	Text        string          // normalized markdown
	Formatted   string          // raw platform-native text
	Raw         json.RawMessage // original payload, opaque
	Author      Author
	Metadata    map[string]string
	Attachments []Attachment
	IsMention   bool
	CreatedAt   time.Time
}

// WithMention returns a mention-flagged copy of the message. Used by
// adapters to coerce DM messages into the mention handler class.
func (m *Message) WithMention() *Message {
	copied := *m
	copied.IsMention = true
	return &copied
}
