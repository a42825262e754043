package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/loom/internal/config"
	"github.com/example/loom/internal/server"
	"github.com/example/loom/internal/wire"
)

// StatusCmd returns the status command
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, spec, and index status at a glance",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if baseURL, err := server.ReadPortLock(config.DataDir()); err == nil && daemonAlive(baseURL) {
				color.Green("Daemon: running at %s", baseURL)
			} else {
				color.Yellow("Daemon: not running")
			}

			busy, slug, err := wire.Coordinator().IsBusy(ctx)
			if err != nil {
				return err
			}
			if busy {
				fmt.Printf("Active spec: %s\n", slug)
			}

			states, err := wire.Coordinator().List(ctx)
			if err != nil {
				return err
			}
			if len(states) > 0 {
				fmt.Println()
				for _, state := range states {
					printSpecLine(state)
				}
			}

			stats, err := wire.LearningService().Stats(ctx)
			if err != nil {
				return err
			}
			if stats.PendingProposals > 0 {
				fmt.Println()
				color.Cyan("%d learning proposals pending (loom learn proposals)", stats.PendingProposals)
			}

			return nil
		},
	}
}

func daemonAlive(baseURL string) bool {
	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
