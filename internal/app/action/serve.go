package action

import (
	"context"
	"log/slog"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/critforge/sessiond/internal/app/logger/logging"
	"github.com/critforge/sessiond/internal/auth"
	"github.com/critforge/sessiond/internal/gateway"
)

func ServeCommand(version string) *cli.Command {
	cmd := &cli.Command{
		Name:        "serve",
		Description: "Start the session gateway server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Value: defaultGatewayAddr,
				Usage: "Bind address for the gateway server",
			},
			&cli.StringFlag{
				Name:  "public-addr",
				Value: defaultPublicGatewayAddr,
				Usage: "Address the gateway advertises to clients",
			},
			&cli.IntFlag{
				Name:  "max-connections",
				Value: 2000,
				Usage: "Maximum number of concurrent websocket connections",
			},
			&cli.IntFlag{
				Name:  "max-connections-per-user",
				Value: 4,
				Usage: "Maximum number of concurrent connections per authenticated user",
			},
			&cli.IntFlag{
				Name:  "max-frame-bytes",
				Value: 64 * 1024,
				Usage: "Maximum size of one inbound websocket frame",
			},
			&cli.DurationFlag{
				Name:  "heartbeat-window",
				Value: 90 * time.Second,
				Usage: "How long a connection may stay silent before eviction",
			},
			&cli.DurationFlag{
				Name:  "sweep-interval",
				Value: 30 * time.Second,
				Usage: "How often to sweep for stale connections",
			},
			&cli.DurationFlag{
				Name:  "turn-timeout",
				Value: 0,
				Usage: "Per-turn deadline after which the turn advances on its own (0 disables)",
			},
			&cli.StringFlag{
				Name:  "rules-engine-addr",
				Usage: "Base URL of the rules engine (empty approves every action)",
			},
			&cli.StringSliceFlag{
				Name:  "cors-allowed-origins",
				Value: []string{"*"},
				Usage: "Origins allowed on the meta routes",
			},
			&cli.StringFlag{
				Name:  "database-type",
				Value: defaultDatabaseType,
				Usage: "Snapshot store type (memory, sqlite, sqlite-memory)",
			},
			&cli.StringFlag{
				Name:  "sqlite-path",
				Value: defaultDatabasePath,
				Usage: "Path to sqlite database file",
			},
		},
	}

	cmd.Action = func(ctx context.Context, c *cli.Command) error {
		authConfig, err := auth.LoadConfigFromEnv()
		if err != nil {
			return err
		}

		db, err := selectDatabaseType(c)
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(); err != nil {
				slog.Error("Failed to close database", logging.Error(err))
			}
		}()

		options, err := selectGatewayOptions(c, version)
		if err != nil {
			return err
		}
		server := gateway.NewServer(auth.NewValidator(authConfig), db, options...)

		start, stop := server.Handlers()
		return server.Graceful(ctx, start, stop)
	}

	return cmd
}
