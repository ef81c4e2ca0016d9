package config

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/interfaces"
	"github.com/secmon-lab/omnichat/pkg/repository/firestore"
	"github.com/secmon-lab/omnichat/pkg/repository/memory"
	"github.com/secmon-lab/omnichat/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Repository holds CLI flags for state store backend configuration
type Repository struct {
	backend    string
	projectID  string
	databaseID string
}

// Flags returns CLI flags for repository configuration
func (r *Repository) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "repository-backend",
			Usage:       "State store backend (firestore or memory)",
			Value:       "memory",
			Sources:     cli.EnvVars("OMNICHAT_REPOSITORY_BACKEND"),
			Destination: &r.backend,
		},
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Firestore Project ID (required when using firestore backend)",
			Sources:     cli.EnvVars("OMNICHAT_FIRESTORE_PROJECT_ID"),
			Destination: &r.projectID,
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore Database ID",
			Sources:     cli.EnvVars("OMNICHAT_FIRESTORE_DATABASE_ID"),
			Destination: &r.databaseID,
		},
	}
}

// Backend returns the configured backend type
func (r *Repository) Backend() string {
	return r.backend
}

// ProjectID returns the Firestore project ID
func (r *Repository) ProjectID() string {
	return r.projectID
}

// DatabaseID returns the Firestore database ID
func (r *Repository) DatabaseID() string {
	return r.databaseID
}

// Configure initializes a state store for one tenant. Each call returns an
// independent instance: with the firestore backend tenants are separated
// by collection prefix, with memory each tenant gets its own store. The
// caller is responsible for Close.
func (r *Repository) Configure(ctx context.Context, workspaceID string) (interfaces.StateStore, error) {
	switch r.backend {
	case "firestore":
		if r.projectID == "" {
			return nil, goerr.New("firestore-project-id is required when using firestore backend")
		}
		store, err := firestore.New(ctx, r.projectID, r.databaseID,
			firestore.WithCollectionPrefix(workspaceID))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize firestore state store")
		}
		logging.Default().Info("Using Firestore state store",
			"project_id", r.projectID,
			"database_id", r.databaseID,
			"workspace_id", workspaceID,
		)
		return store, nil

	case "memory":
		logging.Default().Info("Using in-memory state store (development mode)",
			"workspace_id", workspaceID)
		return memory.New(), nil

	default:
		return nil, goerr.New("invalid repository backend", goerr.V("backend", r.backend))
	}
}
