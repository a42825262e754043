package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/loom/internal/bridge"
	"github.com/example/loom/internal/config"
	"github.com/example/loom/internal/server"
)

// BridgeCmd returns the bridge command
func BridgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bridge",
		Short: "Run the MCP stdio bridge to the daemon",
		Long: `Expose the daemon's memory, retrieval, and orchestration surfaces as
MCP tools over stdio. Requires a running daemon (loom serve); the daemon
address is resolved from port.lock.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			baseURL, err := server.ReadPortLock(config.DataDir())
			if err != nil {
				return fmt.Errorf("is the daemon running? %w", err)
			}
			return bridge.Serve(bridge.NewClient(baseURL))
		},
	}
}
