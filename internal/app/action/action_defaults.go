package action

import "fmt"

var (
	// Gateway
	defaultGatewayAddr       = "127.0.0.1:8780"
	defaultPublicGatewayAddr = fmt.Sprintf("http://%s", defaultGatewayAddr)

	// SQLite config
	defaultDatabasePath = "sessiond.sqlite"
	defaultDatabaseType = "memory"
)
