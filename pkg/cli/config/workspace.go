package config

import (
	"context"
	"os"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/omnichat/pkg/adapter/discord"
	"github.com/secmon-lab/omnichat/pkg/adapter/googlechat"
	"github.com/secmon-lab/omnichat/pkg/adapter/msteams"
	"github.com/secmon-lab/omnichat/pkg/adapter/slack"
	"github.com/secmon-lab/omnichat/pkg/adapter/telegram"
	"github.com/secmon-lab/omnichat/pkg/domain/interfaces"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

// Workspaces holds the CLI flag pointing at the workspace TOML file
type Workspaces struct {
	path string
}

// Flags returns CLI flags for workspace configuration
func (w *Workspaces) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "workspace-config",
			Usage:       "Path to workspace configuration TOML file",
			Sources:     cli.EnvVars("OMNICHAT_WORKSPACE_CONFIG"),
			Destination: &w.path,
		},
	}
}

// Path returns the configured file path
func (w *Workspaces) Path() string {
	return w.path
}

// Load reads and validates the workspace configuration file
func (w *Workspaces) Load() ([]*WorkspaceConfig, error) {
	if w.path == "" {
		return nil, goerr.New("workspace-config is required")
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read workspace config", goerr.V("path", w.path))
	}

	var file workspaceFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, goerr.Wrap(err, "failed to parse workspace config", goerr.V("path", w.path))
	}
	if len(file.Workspaces) == 0 {
		return nil, goerr.New("no workspaces defined", goerr.V("path", w.path))
	}

	seen := map[string]bool{}
	for _, ws := range file.Workspaces {
		if err := ws.Validate(); err != nil {
			return nil, goerr.Wrap(err, "invalid workspace", goerr.V("path", w.path))
		}
		if seen[ws.ID] {
			return nil, goerr.New("duplicate workspace ID", goerr.V("id", ws.ID))
		}
		seen[ws.ID] = true
	}

	return file.Workspaces, nil
}

type workspaceFile struct {
	Workspaces []*WorkspaceConfig `toml:"workspace"`
}

// WorkspaceConfig is one tenant: an identity plus its platform
// installations
type WorkspaceConfig struct {
	ID            string                `toml:"id"`
	Name          string                `toml:"name"`
	Installations []*InstallationConfig `toml:"installation"`
}

// Validate checks the workspace and all of its installations
func (w *WorkspaceConfig) Validate() error {
	if w.ID == "" {
		return goerr.New("workspace id is required")
	}
	seen := map[types.Platform]bool{}
	for _, inst := range w.Installations {
		if err := inst.Validate(); err != nil {
			return goerr.Wrap(err, "invalid installation", goerr.V("workspace", w.ID))
		}
		p := types.Platform(inst.Platform)
		if seen[p] {
			return goerr.New("duplicate platform installation",
				goerr.V("workspace", w.ID), goerr.V("platform", inst.Platform))
		}
		seen[p] = true
	}
	return nil
}

// Adapters builds one platform adapter per installation
func (w *WorkspaceConfig) Adapters(ctx context.Context) ([]interfaces.Adapter, error) {
	adapters := make([]interfaces.Adapter, 0, len(w.Installations))
	for _, inst := range w.Installations {
		a, err := inst.Adapter(ctx)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to build adapter",
				goerr.V("workspace", w.ID), goerr.V("platform", inst.Platform))
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}

// InstallationConfig holds one platform's credentials. Which fields are
// required depends on the platform; Validate enforces that.
type InstallationConfig struct {
	Platform    string `toml:"platform"`
	WorkspaceID string `toml:"workspace_id"`

	BotToken      string `toml:"bot_token"`
	SigningSecret string `toml:"signing_secret"`
	BotUserID     string `toml:"bot_user_id"`

	// Discord
	PublicKey string `toml:"public_key"`

	// Microsoft Teams
	AppID       string `toml:"app_id"`
	AppPassword string `toml:"app_password"`

	// Google Chat
	CredentialsFile string `toml:"credentials_file"`
	Audience        string `toml:"audience"`

	// Telegram
	SecretToken string `toml:"secret_token"`
	BotUsername string `toml:"bot_username"`
}

// Validate checks per-platform required fields
func (c *InstallationConfig) Validate() error {
	platform := types.Platform(c.Platform)
	if err := platform.Validate(); err != nil {
		return err
	}

	if c.WorkspaceID == "" {
		return goerr.New("missing required installation field",
			goerr.V("platform", c.Platform), goerr.V("field", "workspace_id"))
	}

	var missing string
	switch platform {
	case types.PlatformSlack:
		switch {
		case c.BotToken == "":
			missing = "bot_token"
		case c.SigningSecret == "":
			missing = "signing_secret"
		}
	case types.PlatformDiscord:
		switch {
		case c.BotToken == "":
			missing = "bot_token"
		case c.PublicKey == "":
			missing = "public_key"
		}
	case types.PlatformMSTeams:
		switch {
		case c.AppID == "":
			missing = "app_id"
		case c.AppPassword == "":
			missing = "app_password"
		}
	case types.PlatformGoogleChat:
		if c.Audience == "" {
			missing = "audience"
		}
	case types.PlatformTelegram:
		switch {
		case c.BotToken == "":
			missing = "bot_token"
		case c.SecretToken == "":
			missing = "secret_token"
		}
	}
	if missing != "" {
		return goerr.New("missing required installation field",
			goerr.V("platform", c.Platform), goerr.V("field", missing))
	}
	return nil
}

// Adapter builds the platform adapter for this installation
func (c *InstallationConfig) Adapter(ctx context.Context) (interfaces.Adapter, error) {
	switch types.Platform(c.Platform) {
	case types.PlatformSlack:
		var opts []slack.Option
		if c.BotUserID != "" {
			opts = append(opts, slack.WithBotUserID(c.BotUserID))
		}
		return slack.New(c.BotToken, c.SigningSecret, opts...), nil

	case types.PlatformDiscord:
		var opts []discord.Option
		if c.BotUserID != "" {
			opts = append(opts, discord.WithBotUserID(c.BotUserID))
		}
		return discord.New(c.BotToken, c.PublicKey, opts...)

	case types.PlatformMSTeams:
		return msteams.New(c.AppID, c.AppPassword), nil

	case types.PlatformGoogleChat:
		var creds []byte
		if c.CredentialsFile != "" {
			data, err := os.ReadFile(c.CredentialsFile)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to read credentials file",
					goerr.V("path", c.CredentialsFile))
			}
			creds = data
		}
		var opts []googlechat.Option
		if c.BotUserID != "" {
			opts = append(opts, googlechat.WithBotUserID(c.BotUserID))
		}
		return googlechat.New(ctx, creds, c.Audience, opts...)

	case types.PlatformTelegram:
		var opts []telegram.Option
		if c.BotUserID != "" {
			botID, err := strconv.ParseInt(c.BotUserID, 10, 64)
			if err != nil {
				return nil, goerr.Wrap(err, "telegram bot_user_id must be numeric",
					goerr.V("bot_user_id", c.BotUserID))
			}
			opts = append(opts, telegram.WithBotID(botID))
		}
		if c.BotUsername != "" {
			opts = append(opts, telegram.WithBotUsername(c.BotUsername))
		}
		return telegram.New(c.BotToken, c.SecretToken, opts...), nil

	default:
		return nil, goerr.New("unsupported platform", goerr.V("platform", c.Platform))
	}
}

// Installation converts the config into the stored credential record
func (c *InstallationConfig) Installation() *model.Installation {
	inst := &model.Installation{
		Platform:      types.Platform(c.Platform),
		WorkspaceID:   c.WorkspaceID,
		BotToken:      c.BotToken,
		SigningSecret: c.SigningSecret,
		BotUserID:     c.BotUserID,
	}
	switch inst.Platform {
	case types.PlatformDiscord:
		inst.SigningSecret = c.PublicKey
	case types.PlatformMSTeams:
		inst.BotToken = c.AppPassword
		if inst.BotUserID == "" {
			inst.BotUserID = "28:" + c.AppID
		}
	case types.PlatformTelegram:
		inst.SigningSecret = c.SecretToken
	}
	return inst
}
