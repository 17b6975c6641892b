package action

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/critforge/sessiond/internal/auth"
	"github.com/critforge/sessiond/internal/wire"
)

// TokenCommand mints a signed token for local development. The production
// issuer is the account service; this exists so a gateway can be exercised
// without one.
func TokenCommand() *cli.Command {
	cmd := &cli.Command{
		Name:        "token",
		Description: "Mint a development bearer token",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "user-id",
				Usage: "Subject of the token (defaults to a random id)",
			},
			&cli.StringFlag{
				Name:  "username",
				Value: "adventurer",
				Usage: "Display name carried by the token",
			},
			&cli.DurationFlag{
				Name:  "ttl",
				Value: 24 * time.Hour,
				Usage: "How long the token stays valid",
			},
		},
	}

	cmd.Action = func(ctx context.Context, c *cli.Command) error {
		cfg, err := auth.LoadConfigFromEnv()
		if err != nil {
			return err
		}

		userID := fallbackString(c.String("user-id"), uuid.NewString())
		token, err := auth.IssueToken(cfg, wire.Identity{
			UserID:   userID,
			Username: c.String("username"),
		}, c.Duration("ttl"))
		if err != nil {
			return err
		}

		fmt.Println(token)
		return nil
	}

	return cmd
}
