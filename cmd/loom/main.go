package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/loom/internal/apperr"
	"github.com/example/loom/internal/cli"
	"github.com/example/loom/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "loom",
		Short:   "loom - local developer-assistance daemon",
		Version: version.String(),
		Long: `loom is a local daemon that gives coding agents persistent memory,
unified code/governance retrieval, an adaptive learning pipeline, and a
spec-driven orchestration state machine over git worktrees.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.StatusCmd())
	rootCmd.AddCommand(cli.SpecCmd())
	rootCmd.AddCommand(cli.LearnCmd())
	rootCmd.AddCommand(cli.RetrieveCmd())
	rootCmd.AddCommand(cli.MemoryCmd())
	rootCmd.AddCommand(cli.HookCmd())
	rootCmd.AddCommand(cli.BridgeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(apperr.ExitCode(err))
	}
}
