package types

import "github.com/m-mizutani/goerr/v2"

// Platform identifies a chat platform supported by the gateway
type Platform string

const (
	PlatformSlack      Platform = "slack"
	PlatformDiscord    Platform = "discord"
	PlatformMSTeams    Platform = "msteams"
	PlatformGoogleChat Platform = "googlechat"
	PlatformTelegram   Platform = "telegram"
)

// Platforms returns all supported platforms in a stable order
func Platforms() []Platform {
	return []Platform{
		PlatformSlack,
		PlatformDiscord,
		PlatformMSTeams,
		PlatformGoogleChat,
		PlatformTelegram,
	}
}

// Validate checks if the Platform is one of the supported platforms
func (x Platform) Validate() error {
	switch x {
	case PlatformSlack, PlatformDiscord, PlatformMSTeams, PlatformGoogleChat, PlatformTelegram:
		return nil
	default:
		return goerr.New("unsupported platform", goerr.V("platform", string(x)), goerr.T(TagValidation))
	}
}

func (x Platform) String() string {
	return string(x)
}
