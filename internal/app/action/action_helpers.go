package action

import (
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/critforge/sessiond/internal/gateway"
	"github.com/critforge/sessiond/internal/store"
	"github.com/critforge/sessiond/internal/store/memory"
	"github.com/critforge/sessiond/internal/store/sqlite"
)

func selectDatabaseType(c *cli.Command) (store.SnapshotStore, error) {
	switch c.String("database-type") {
	case "memory":
		return memory.NewStore(), nil
	case "sqlite":
		return sqlite.NewLocal(c.String("sqlite-path"))
	case "sqlite-memory":
		return sqlite.NewMemory()
	default:
		return nil, fmt.Errorf("unknown database type: %q", c.String("database-type"))
	}
}

func selectGatewayOptions(c *cli.Command, version string) ([]gateway.Option, error) {
	var options []gateway.Option

	options = append(options, gateway.WithVersion(version))

	bindAddr := c.String("addr")
	publicAddr := fallbackString(c.String("public-addr"), fmt.Sprintf("http://%s", bindAddr))
	options = append(options, gateway.WithBindAddr(bindAddr, publicAddr))

	options = append(options,
		gateway.WithCapacity(int(c.Int("max-connections")), int(c.Int("max-connections-per-user"))),
		gateway.WithFrameLimit(int64(c.Int("max-frame-bytes"))),
		gateway.WithHeartbeat(c.Duration("heartbeat-window"), c.Duration("sweep-interval")),
		gateway.WithTurnTimeout(c.Duration("turn-timeout")),
		gateway.WithCORSAllowedOrigins(c.StringSlice("cors-allowed-origins")),
	)

	if addr := c.String("rules-engine-addr"); addr != "" {
		options = append(options, gateway.WithRulesEngine(addr))
	}

	if c.Duration("heartbeat-window") < c.Duration("sweep-interval") {
		return nil, fmt.Errorf("heartbeat-window (%s) must not be shorter than sweep-interval (%s)",
			c.Duration("heartbeat-window"), c.Duration("sweep-interval"))
	}

	return options, nil
}

func fallbackString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
