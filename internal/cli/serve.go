package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/loom/internal/server"
	"github.com/example/loom/internal/wire"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the loom daemon",
		Long: `Start the daemon on loopback HTTP. The bound port is written to
port.lock in the data directory so hooks and the bridge can find it.
Port 0 picks an ephemeral port.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer wire.CloseAll()

			srv := server.New(
				wire.MemoryService(),
				wire.Retriever(),
				wire.LearningService(),
				wire.AnalyticsService(),
				wire.Coordinator(),
				wire.Worktrees(),
				wire.Config(),
				wire.DataDir(),
				wire.Logger(),
			)

			// Governance docs index in the background so startup is not
			// blocked by a large project.
			go func() {
				if _, err := wire.Retriever().Reindex(context.Background(), false); err != nil {
					logger := wire.Logger()
					logger.Warn().Err(err).Msg("startup reindex failed")
				}
			}()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(port) }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case <-sigCh:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			}
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 4815, "Port to listen on (0 for ephemeral)")

	return cmd
}
