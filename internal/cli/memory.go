package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/loom/internal/ports/primary"
	"github.com/example/loom/internal/wire"
)

// MemoryCmd returns the memory command
func MemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Save and search the persistent memory stream",
	}

	cmd.AddCommand(memorySaveCmd())
	cmd.AddCommand(memorySearchCmd())
	cmd.AddCommand(memorySessionsCmd())
	cmd.AddCommand(memoryStatsCmd())

	return cmd
}

func memorySaveCmd() *cobra.Command {
	var eventType, text string
	var importance float64

	cmd := &cobra.Command{
		Use:   "save <title>",
		Short: "Append one memory event",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := wire.MemoryService().SaveEvent(context.Background(), primary.SaveEventRequest{
				Type:       eventType,
				Title:      strings.Join(args, " "),
				Text:       text,
				Importance: importance,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Saved event #%d.\n", resp.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&eventType, "type", "t", "observation", "Event type")
	cmd.Flags().StringVar(&text, "text", "", "Longer body")
	cmd.Flags().Float64Var(&importance, "importance", 0, "Importance in [0,1]")

	return cmd
}

func memorySearchCmd() *cobra.Command {
	var limit int
	var eventType string

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search events; without a query, show the recent stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := wire.MemoryService().Search(context.Background(), primary.MemorySearchRequest{
				Query: strings.Join(args, " "),
				Type:  eventType,
				Limit: limit,
			})
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Println("No events.")
				return nil
			}
			for _, event := range events {
				fmt.Printf("#%d [%s] %s  %s\n", event.ID, event.Type, event.TS, event.Title)
				if event.Text != "" {
					fmt.Printf("    %s\n", event.Text)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Max events")
	cmd.Flags().StringVarP(&eventType, "type", "t", "", "Filter by event type")

	return cmd
}

func memorySessionsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := wire.MemoryService().RecentSessions(context.Background(), limit)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Println("No sessions.")
				return nil
			}
			for _, session := range sessions {
				fmt.Printf("%s  %s", session.StartedAt, session.SessionID)
				if session.InitialPrompt != "" {
					fmt.Printf("  %q", session.InitialPrompt)
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Max sessions")

	return cmd
}

func memoryStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the memory stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := wire.MemoryService().Stats(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Events: %d across %d sessions\n", stats.TotalEvents, stats.Sessions)
			for eventType, count := range stats.ByType {
				fmt.Printf("  %-12s %d\n", eventType, count)
			}
			return nil
		},
	}
}
