package model

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

// Installation is a tenant's per-platform credential bundle, created at
// app-installation time and read on every webhook.
type Installation struct {
	Platform      types.Platform
	WorkspaceID   string
	BotToken      string `masq:"secret"`
	SigningSecret string `masq:"secret"`
	BotUserID     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate checks required fields of the Installation
func (x *Installation) Validate() error {
	if err := x.Platform.Validate(); err != nil {
		return goerr.Wrap(err, "invalid installation platform")
	}
	if x.WorkspaceID == "" {
		return goerr.New("installation workspace ID is required",
			goerr.V("platform", x.Platform), goerr.T(types.TagValidation))
	}
	if x.BotUserID == "" {
		return goerr.New("installation bot user ID is required",
			goerr.V("platform", x.Platform),
			goerr.V("workspace_id", x.WorkspaceID),
			goerr.T(types.TagValidation))
	}
	return nil
}

// LogValue masks credentials when an Installation is logged
func (x Installation) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("platform", string(x.Platform)),
		slog.String("workspace_id", x.WorkspaceID),
		slog.String("bot_user_id", x.BotUserID),
		slog.Int("bot_token.len", len(x.BotToken)),
		slog.Int("signing_secret.len", len(x.SigningSecret)),
	)
}
