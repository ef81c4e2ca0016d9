package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/cli/config"
	"github.com/secmon-lab/omnichat/pkg/domain/interfaces"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
	"github.com/secmon-lab/omnichat/pkg/repository/firestore"
	"github.com/secmon-lab/omnichat/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdValidate() *cli.Command {
	var firestoreProjectID string
	var firestoreDatabaseID string
	var wsCfg config.Workspaces

	flags := wsCfg.Flags()
	flags = append(flags, &cli.StringFlag{
		Name:        "firestore-project-id",
		Usage:       "Firestore Project ID (if specified, stored installations are cross-checked)",
		Sources:     cli.EnvVars("OMNICHAT_FIRESTORE_PROJECT_ID"),
		Destination: &firestoreProjectID,
	})
	flags = append(flags, &cli.StringFlag{
		Name:        "firestore-database-id",
		Usage:       "Firestore Database ID",
		Sources:     cli.EnvVars("OMNICHAT_FIRESTORE_DATABASE_ID"),
		Destination: &firestoreDatabaseID,
	})

	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate workspace configuration and optionally check stored installations",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			workspaces, err := wsCfg.Load()
			if err != nil {
				fmt.Println(color.RedString("✗ configuration validation failed"))
				return goerr.Wrap(err, "configuration validation failed")
			}

			fmt.Println(color.GreenString("✓ configuration is valid"))
			for _, ws := range workspaces {
				fmt.Printf("  workspace %s (%s): %d installation(s)\n",
					color.CyanString(ws.ID), ws.Name, len(ws.Installations))
				for _, inst := range ws.Installations {
					fmt.Printf("    - %s (%s)\n", inst.Platform, inst.WorkspaceID)
				}
			}

			if firestoreProjectID == "" {
				logger.Info("No Firestore project ID specified, skipping stored installation check")
				return nil
			}

			for _, ws := range workspaces {
				store, err := firestore.New(ctx, firestoreProjectID, firestoreDatabaseID,
					firestore.WithCollectionPrefix(ws.ID))
				if err != nil {
					return goerr.Wrap(err, "failed to initialize Firestore state store")
				}
				if err := checkStoredInstallations(ctx, store, ws); err != nil {
					store.Close() //nolint:errcheck // returning the check error
					return err
				}
				if err := store.Close(); err != nil {
					logger.Error("failed to close state store", "error", err.Error())
				}
			}
			return nil
		},
	}
}

// checkStoredInstallations compares the workspace's configured
// installations with the records already in Firestore
func checkStoredInstallations(ctx context.Context, store interfaces.StateStore, ws *config.WorkspaceConfig) error {
	for _, inst := range ws.Installations {
		platform := types.Platform(inst.Platform)
		stored, err := store.GetInstallation(ctx, platform, inst.WorkspaceID)
		if err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				fmt.Printf("  %s %s/%s not stored yet (will be seeded on serve)\n",
					color.YellowString("!"), ws.ID, inst.Platform)
				continue
			}
			return goerr.Wrap(err, "failed to check stored installation",
				goerr.V("workspace", ws.ID), goerr.V("platform", inst.Platform))
		}

		if stored.BotUserID != inst.Installation().BotUserID {
			fmt.Printf("  %s %s/%s bot user ID differs from stored record\n",
				color.YellowString("!"), ws.ID, inst.Platform)
			continue
		}
		fmt.Printf("  %s %s/%s matches stored record\n",
			color.GreenString("✓"), ws.ID, inst.Platform)
	}
	return nil
}
