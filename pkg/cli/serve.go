package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/secmon-lab/omnichat/pkg/chat"
	"github.com/secmon-lab/omnichat/pkg/cli/config"
	httpctrl "github.com/secmon-lab/omnichat/pkg/controller/http"
	"github.com/secmon-lab/omnichat/pkg/domain/interfaces"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/utils/logging"
)

// lockPurger is implemented by state store backends that need periodic
// lock housekeeping
type lockPurger interface {
	PurgeExpiredLocks(ctx context.Context) (int, error)
}

const lockPurgeInterval = 10 * time.Minute

func cmdServe() *cli.Command {
	var addr string
	var lockTTL time.Duration
	var streamInterval time.Duration
	var echo bool
	var repoCfg config.Repository
	var wsCfg config.Workspaces

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("OMNICHAT_ADDR"),
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "lock-ttl",
			Usage:       "Per-thread handler lock TTL",
			Value:       time.Minute,
			Sources:     cli.EnvVars("OMNICHAT_LOCK_TTL"),
			Destination: &lockTTL,
		},
		&cli.DurationFlag{
			Name:        "stream-interval",
			Usage:       "Minimum interval between streaming message edits",
			Value:       500 * time.Millisecond,
			Sources:     cli.EnvVars("OMNICHAT_STREAM_INTERVAL"),
			Destination: &streamInterval,
		},
		&cli.BoolFlag{
			Name:        "echo",
			Usage:       "Register built-in echo handlers for installation smoke tests",
			Sources:     cli.EnvVars("OMNICHAT_ECHO"),
			Destination: &echo,
		},
	}
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, wsCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the webhook gateway server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			workspaces, err := wsCfg.Load()
			if err != nil {
				return goerr.Wrap(err, "failed to load workspace configurations")
			}

			var stores []interfaces.StateStore
			defer func() {
				for _, store := range stores {
					if err := store.Close(); err != nil {
						logger.Error("failed to close state store", "error", err.Error())
					}
				}
			}()

			var defaultHub *chat.Chat
			registry := model.NewWorkspaceRegistry()
			var srvOpts []httpctrl.Options
			for _, ws := range workspaces {
				store, err := repoCfg.Configure(ctx, ws.ID)
				if err != nil {
					return goerr.Wrap(err, "failed to initialize state store",
						goerr.V("workspace", ws.ID))
				}
				stores = append(stores, store)

				adapters, err := ws.Adapters(ctx)
				if err != nil {
					return err
				}

				hubOpts := []chat.Option{
					chat.WithLockTTL(lockTTL),
					chat.WithStreamInterval(streamInterval),
				}
				for _, a := range adapters {
					hubOpts = append(hubOpts, chat.WithAdapter(a))
				}
				hub := chat.New(store, hubOpts...)

				if err := seedInstallations(ctx, store, ws); err != nil {
					return err
				}
				if echo {
					registerEchoHandlers(hub)
				}

				// The first workspace also serves the unprefixed routes
				if defaultHub == nil {
					defaultHub = hub
				}
				srvOpts = append(srvOpts, httpctrl.WithWorkspace(ws.ID, hub))

				entry := &model.WorkspaceEntry{
					Workspace: model.Workspace{ID: ws.ID, Name: ws.Name},
				}
				for _, instCfg := range ws.Installations {
					entry.Installations = append(entry.Installations, instCfg.Installation())
				}
				registry.Register(entry)

				logger.Info("Workspace configured",
					"id", ws.ID,
					"name", ws.Name,
					"platforms", len(adapters),
				)
			}

			srvOpts = append(srvOpts, httpctrl.WithRegistry(registry))
			server := httpctrl.New(defaultHub, srvOpts...)
			httpServer := &http.Server{
				Addr:              addr,
				Handler:           server,
				ReadHeaderTimeout: 10 * time.Second,
			}

			runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(runCtx)
			g.Go(func() error {
				logger.Info("Starting HTTP server", "addr", addr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return goerr.Wrap(err, "HTTP server failed")
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("Shutting down HTTP server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shut down HTTP server")
				}
				return nil
			})
			for _, store := range stores {
				if purger, ok := store.(lockPurger); ok {
					g.Go(func() error {
						purgeLocks(gctx, purger)
						return nil
					})
				}
			}

			return g.Wait()
		},
	}
}

// seedInstallations writes the configured credentials into the tenant's
// store so handlers can look them up at runtime. Entries missing fields
// the record requires (e.g. no bot user ID yet) are skipped.
func seedInstallations(ctx context.Context, store interfaces.StateStore, ws *config.WorkspaceConfig) error {
	for _, instCfg := range ws.Installations {
		inst := instCfg.Installation()
		if err := inst.Validate(); err != nil {
			logging.Default().Debug("skipping installation record",
				"workspace", ws.ID, "platform", instCfg.Platform, "reason", err.Error())
			continue
		}
		if err := store.PutInstallation(ctx, inst); err != nil {
			return goerr.Wrap(err, "failed to seed installation",
				goerr.V("workspace", ws.ID), goerr.V("platform", instCfg.Platform))
		}
	}
	return nil
}

// registerEchoHandlers wires minimal handlers that confirm an
// installation end to end: a mention subscribes the thread and replies,
// follow-up messages are echoed back.
func registerEchoHandlers(hub *chat.Chat) {
	hub.OnNewMention(func(ctx context.Context, r *chat.Responder, msg *model.Message) error {
		if err := r.Subscribe(ctx); err != nil {
			return err
		}
		_, err := r.Post(ctx, "hello! following this thread now")
		return err
	})
	hub.OnSubscribedMessage(func(ctx context.Context, r *chat.Responder, msg *model.Message) error {
		_, err := r.Post(ctx, msg.Text)
		return err
	})
}

func purgeLocks(ctx context.Context, purger lockPurger) {
	ticker := time.NewTicker(lockPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purger.PurgeExpiredLocks(ctx)
			if err != nil {
				logging.From(ctx).Warn("failed to purge expired locks", "error", err.Error())
				continue
			}
			if n > 0 {
				logging.From(ctx).Info("purged expired locks", "count", n)
			}
		}
	}
}
