package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/loom/internal/core/classify"
	"github.com/example/loom/internal/core/review"
	"github.com/example/loom/internal/core/spec"
	"github.com/example/loom/internal/ports/primary"
	"github.com/example/loom/internal/wire"
)

// SpecCmd returns the spec command with its lifecycle subcommands
func SpecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spec",
		Short: "Drive the spec lifecycle state machine",
		Long: `Manage specs through their lifecycle:
planning → implementing → verifying → learning → done, with a bounded
fix loop on failed verification. Implementation happens in an isolated
git worktree created at plan approval.`,
	}

	cmd.AddCommand(specStartCmd())
	cmd.AddCommand(specApproveCmd())
	cmd.AddCommand(specTaskCmd())
	cmd.AddCommand(specVerifyCmd())
	cmd.AddCommand(specVerdictCmd())
	cmd.AddCommand(specResolveCmd())
	cmd.AddCommand(specCompleteCmd())
	cmd.AddCommand(specAbortCmd())
	cmd.AddCommand(specListCmd())
	cmd.AddCommand(specShowCmd())
	cmd.AddCommand(specAssessCmd())

	return cmd
}

func specStartCmd() *cobra.Command {
	var title, planPath string

	cmd := &cobra.Command{
		Use:   "start <slug>",
		Short: "Create a spec in planning",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := wire.Coordinator().Start(context.Background(), primary.StartSpecRequest{
				Slug:     args[0],
				Title:    title,
				PlanPath: planPath,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Spec %s created in %s.\n", state.Slug, state.Phase)
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Human-readable title")
	cmd.Flags().StringVar(&planPath, "plan", "", "Path to the plan document")

	return cmd
}

func specApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <slug> <total-tasks>",
		Short: "Approve the plan and create the worktree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			totalTasks, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("total-tasks must be a number: %w", err)
			}
			state, err := wire.Coordinator().ApprovePlan(context.Background(), args[0], totalTasks)
			if err != nil {
				return err
			}
			fmt.Printf("Plan approved: %d tasks, worktree at %s.\n", state.TotalTasks, state.WorktreePath)
			return nil
		},
	}
}

func specTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Mark tasks in progress or done",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "start <slug> <task-num>",
		Short: "Mark a task in progress",
		Args:  cobra.ExactArgs(2),
		RunE:  taskTransition(primary.SpecCoordinator.StartTask),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "done <slug> <task-num>",
		Short: "Mark a task complete",
		Args:  cobra.ExactArgs(2),
		RunE:  taskTransition(primary.SpecCoordinator.CompleteTask),
	})

	return cmd
}

// taskTransition adapts a coordinator task operation to a cobra handler.
func taskTransition(op func(primary.SpecCoordinator, context.Context, string, int) (*spec.State, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		taskNum, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("task-num must be a number: %w", err)
		}
		state, err := op(wire.Coordinator(), context.Background(), args[0], taskNum)
		if err != nil {
			return err
		}
		fmt.Printf("Spec %s: %d/%d tasks complete.\n", state.Slug, state.CompletedTasks, state.TotalTasks)
		return nil
	}
}

func specVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <slug>",
		Short: "Start verification once all tasks are done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := wire.Coordinator().StartVerify(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Spec %s verifying (iteration %d).\n", state.Slug, state.ReviewIteration)
			return nil
		},
	}
}

func specVerdictCmd() *cobra.Command {
	var reviewer string

	cmd := &cobra.Command{
		Use:   "verdict <slug>",
		Short: "Submit one reviewer's raw output from stdin",
		Long: `Reads raw reviewer output from stdin, parses the verdict line and
finding bullets, and records the structured verdict for the current
verification round. Output without a verdict line counts as FAIL.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read reviewer output: %w", err)
			}
			verdict := review.ParseVerdict(string(raw), reviewer)
			if _, err := wire.Coordinator().SubmitVerdict(context.Background(), args[0], verdict); err != nil {
				return err
			}
			fmt.Printf("Recorded %s from %s (%d findings).\n", verdict.Verdict, reviewer, len(verdict.Findings))
			return nil
		},
	}

	cmd.Flags().StringVarP(&reviewer, "reviewer", "r", "reviewer", "Reviewer name")

	return cmd
}

func specResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <slug>",
		Short: "Settle the verification round",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := wire.Coordinator().ResolveVerify(context.Background(), args[0])
			if err != nil {
				return err
			}
			if resp.Passed {
				color.Green("Verification passed; spec %s is in %s.", resp.State.Slug, resp.State.Phase)
				return nil
			}
			color.Red("Verification failed; spec %s is in %s.", resp.State.Slug, resp.State.Phase)
			if resp.FixInstructions != "" {
				fmt.Println()
				fmt.Println(resp.FixInstructions)
			}
			return nil
		},
	}
}

func specCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <slug>",
		Short: "Finish the spec and clean up the worktree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := wire.Coordinator().Complete(context.Background(), args[0])
			if err != nil {
				return err
			}
			color.Green("Spec %s done.", state.Slug)
			return nil
		},
	}
}

func specAbortCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "abort <slug>",
		Short: "Abort a spec from any non-terminal phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := wire.Coordinator().Abort(context.Background(), args[0], reason)
			if err != nil {
				return err
			}
			fmt.Printf("Spec %s aborted.\n", state.Slug)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Abort reason")

	return cmd
}

func specListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all specs",
		RunE: func(cmd *cobra.Command, args []string) error {
			states, err := wire.Coordinator().List(context.Background())
			if err != nil {
				return err
			}
			if len(states) == 0 {
				fmt.Println("No specs.")
				return nil
			}
			for _, state := range states {
				printSpecLine(state)
			}
			return nil
		},
	}
}

func specShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <slug>",
		Short: "Show one spec's state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := wire.Coordinator().Get(context.Background(), args[0])
			if err != nil {
				return err
			}
			printSpecLine(state)
			if state.PlanPath != "" {
				fmt.Printf("  plan:     %s\n", state.PlanPath)
			}
			if state.WorktreePath != "" {
				fmt.Printf("  worktree: %s (%s)\n", state.WorktreePath, state.Branch)
			}
			fmt.Printf("  updated:  %s\n", state.UpdatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func specAssessCmd() *cobra.Command {
	var files []string

	cmd := &cobra.Command{
		Use:   "assess [spec-file]",
		Short: "Classify a spec's complexity (advisory, no state change)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			if len(args) == 1 {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("failed to read spec file: %w", err)
				}
				text = string(data)
			} else {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("failed to read spec text: %w", err)
				}
				text = string(data)
			}
			fmt.Println(classify.AssessComplexity(text, files))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&files, "files", nil, "Affected files")

	return cmd
}

func printSpecLine(state *spec.State) {
	phase := color.YellowString(string(state.Phase))
	switch state.Phase {
	case spec.PhaseDone:
		phase = color.GreenString(string(state.Phase))
	case spec.PhaseAborted:
		phase = color.RedString(string(state.Phase))
	}
	fmt.Printf("%s [%s] tasks %d/%d", state.Slug, phase, state.CompletedTasks, state.TotalTasks)
	if state.ReviewIteration > 0 {
		fmt.Printf(" (fix iteration %d)", state.ReviewIteration)
	}
	if state.Title != "" {
		fmt.Printf(" - %s", state.Title)
	}
	fmt.Println()
}
