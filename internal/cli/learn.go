package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/loom/internal/ports/primary"
	"github.com/example/loom/internal/wire"
)

// LearnCmd returns the learn command with its pipeline subcommands
func LearnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learn",
		Short: "Run the adaptive learning pipeline",
		Long: `Analyze recent commits for recurring patterns, list the proposals the
pipeline generated, and record decisions. Accepting a proposal writes
its governance artifact; rejecting starts a cooldown.`,
	}

	cmd.AddCommand(learnAnalyzeCmd())
	cmd.AddCommand(learnProposalsCmd())
	cmd.AddCommand(learnDecideCmd())
	cmd.AddCommand(learnStatsCmd())

	return cmd
}

func learnAnalyzeCmd() *cobra.Command {
	var sinceCommit string
	var force bool

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze commits since the last run",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := wire.LearningService().Analyze(context.Background(), primary.AnalyzeRequest{
				SinceCommit: sinceCommit,
				Force:       force,
			})
			if err != nil {
				return err
			}
			if !resp.Ran {
				fmt.Printf("Analysis skipped: %s.\n", resp.Reason)
				return nil
			}
			fmt.Printf("Analyzed %d commits (%d files): %d detections, %d candidates, %d proposals.\n",
				resp.CommitsAnalyzed, resp.FilesAnalyzed, resp.Detections, resp.Candidates, resp.Proposals)
			return nil
		},
	}

	cmd.Flags().StringVar(&sinceCommit, "since", "", "Analyze from this commit instead of the stored cursor")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Run even below the commit trigger")

	return cmd
}

func learnProposalsCmd() *cobra.Command {
	var maxCount int

	cmd := &cobra.Command{
		Use:   "proposals",
		Short: "List pending proposals, highest confidence first",
		RunE: func(cmd *cobra.Command, args []string) error {
			proposals, err := wire.LearningService().ListProposals(context.Background(), primary.ListProposalsRequest{
				MaxCount: maxCount,
			})
			if err != nil {
				return err
			}
			if len(proposals) == 0 {
				fmt.Println("No pending proposals.")
				return nil
			}
			for _, p := range proposals {
				fmt.Printf("%s %s %s\n", color.CyanString(p.ID), confidenceLabel(p.Confidence), p.Title)
				fmt.Printf("    %s\n", p.Description)
				fmt.Printf("    %s → %s\n\n", p.Type, p.ProposedPath)
			}
			fmt.Println("Decide with: loom learn decide <id> accept|reject|ignore|snooze")
			return nil
		},
	}

	cmd.Flags().IntVarP(&maxCount, "max", "m", 0, "Max proposals to list")

	return cmd
}

func learnDecideCmd() *cobra.Command {
	var editedFile string

	cmd := &cobra.Command{
		Use:   "decide <proposal-id> <decision>",
		Short: "Record a decision on a proposal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			edited := ""
			if editedFile != "" {
				data, err := os.ReadFile(editedFile)
				if err != nil {
					return fmt.Errorf("failed to read edited content: %w", err)
				}
				edited = string(data)
			}

			resp, err := wire.LearningService().Decide(context.Background(), primary.DecideRequest{
				ProposalID:    args[0],
				Decision:      args[1],
				EditedContent: edited,
			})
			if err != nil {
				return err
			}
			if resp.AlreadyDone {
				fmt.Printf("Proposal %s was already decided: %s.\n", resp.ProposalID, resp.Decision)
				return nil
			}
			if resp.ArtifactPath != "" {
				color.Green("Accepted; artifact written to %s.", resp.ArtifactPath)
				return nil
			}
			fmt.Printf("Recorded %s for proposal %s.\n", resp.Decision, resp.ProposalID)
			return nil
		},
	}

	cmd.Flags().StringVar(&editedFile, "edited", "", "File with user-edited artifact content")

	return cmd
}

func learnStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the learning pipeline state",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := wire.LearningService().Stats(context.Background())
			if err != nil {
				return err
			}
			enabled := color.RedString("disabled")
			if stats.Enabled {
				enabled = color.GreenString("enabled")
			}
			fmt.Printf("Learning: %s (sensitivity %s)\n", enabled, stats.Sensitivity)
			if stats.LastCommit != "" {
				fmt.Printf("Last analysis: %s at %s (%d commits total)\n",
					shortHash(stats.LastCommit), stats.LastAnalyzedAt, stats.CommitsAnalyzed)
			}
			fmt.Printf("Proposals: %d pending, %d accepted, %d rejected\n",
				stats.PendingProposals, stats.AcceptedProposals, stats.RejectedProposals)
			return nil
		},
	}
}

func confidenceLabel(confidence float64) string {
	label := fmt.Sprintf("[%.2f]", confidence)
	switch {
	case confidence >= 0.7:
		return color.GreenString(label)
	case confidence >= 0.5:
		return color.YellowString(label)
	default:
		return color.RedString(label)
	}
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
