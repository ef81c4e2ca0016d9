package types

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// ThreadID is the canonical opaque identifier of a conversation context.
// It is globally unique across platforms by construction:
// "<platform>:" followed by platform-specific fields joined by ':'.
// The per-platform codec owns the field layout; this type only knows the
// framing.
type ThreadID string

// NewThreadID builds a ThreadID from a platform prefix and its fields.
func NewThreadID(platform Platform, fields ...string) ThreadID {
	parts := append([]string{string(platform)}, fields...)
	return ThreadID(strings.Join(parts, ":"))
}

// Platform returns the platform prefix of the ThreadID. An ID without a
// separator yields the whole string, which will fail Platform.Validate.
func (x ThreadID) Platform() Platform {
	s := string(x)
	if idx := strings.Index(s, ":"); idx >= 0 {
		return Platform(s[:idx])
	}
	return Platform(s)
}

// Fields returns the platform-specific fields after the prefix.
func (x ThreadID) Fields() []string {
	s := string(x)
	idx := strings.Index(s, ":")
	if idx < 0 {
		return nil
	}
	return strings.Split(s[idx+1:], ":")
}

// Validate checks the framing: a known platform prefix and at least one
// field. Field-level constraints belong to the platform codec.
func (x ThreadID) Validate() error {
	if x == "" {
		return goerr.New("empty thread ID", goerr.T(TagValidation))
	}
	if err := x.Platform().Validate(); err != nil {
		return goerr.Wrap(err, "invalid thread ID prefix", goerr.V("thread_id", string(x)))
	}
	if len(x.Fields()) == 0 {
		return goerr.New("thread ID has no fields", goerr.V("thread_id", string(x)), goerr.T(TagValidation))
	}
	return nil
}

func (x ThreadID) String() string {
	return string(x)
}
