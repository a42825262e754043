package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/loom/internal/ports/primary"
	"github.com/example/loom/internal/wire"
)

// RetrieveCmd returns the retrieve command
func RetrieveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Search the code and governance corpora",
	}

	cmd.AddCommand(retrieveSearchCmd())
	cmd.AddCommand(retrieveReindexCmd())
	cmd.AddCommand(retrieveStatusCmd())

	return cmd
}

func retrieveSearchCmd() *cobra.Command {
	var corpus string
	var docType string
	var topK int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run one retrieval query",
		Long: `Search across the code index (external backend) and the governance
document index (rules, ADRs, templates, skills). Without --corpus the
query is classified automatically.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := wire.Retriever().Search(context.Background(), primary.RetrievalRequest{
				Query:   strings.Join(args, " "),
				Corpus:  corpus,
				DocType: docType,
				TopK:    topK,
			})
			if err != nil {
				return err
			}
			if len(resp.Results) == 0 {
				fmt.Println("No results.")
				return nil
			}
			for i, result := range resp.Results {
				loc := result.FilePath
				if result.LineStart > 0 {
					loc = fmt.Sprintf("%s:%d-%d", result.FilePath, result.LineStart, result.LineEnd)
				}
				fmt.Printf("%2d. %.2f %s %s\n", i+1, result.Score, sourceLabel(result.Source), loc)
				if result.Title != "" {
					fmt.Printf("    %s\n", result.Title)
				}
			}
			if len(resp.Degraded) > 0 {
				color.Yellow("Degraded backends: %s", strings.Join(resp.Degraded, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&corpus, "corpus", "c", "", "Corpus: code, governance, or hybrid")
	cmd.Flags().StringVar(&docType, "doc-type", "", "Restrict governance hits to one type (rule, adr, template, ...)")
	cmd.Flags().IntVarP(&topK, "top", "k", 0, "Max results (default 10)")

	return cmd
}

func retrieveReindexCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Refresh the governance and code indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := wire.Retriever().Reindex(context.Background(), full)
			if err != nil {
				return err
			}
			fmt.Printf("Governance: %d files indexed (%d chunks), %d removed.\n",
				resp.GovernanceFiles, resp.GovernanceChunks, resp.GovernanceRemoved)
			if resp.CodeReindexed {
				fmt.Println("Code index rebuilt.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Force a full code index rebuild")

	return cmd
}

func retrieveStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report backend availability and index freshness",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := wire.Retriever().Status(context.Background())
			if err != nil {
				return err
			}
			if status.CodeAvailable {
				freshness := color.GreenString("fresh")
				if status.CodeStale {
					freshness = color.YellowString("stale")
				}
				fmt.Printf("Code backend: available, %d files (%s), model %s\n",
					status.CodeFiles, freshness, status.CodeModel)
				if status.LastIndexedCommit != "" {
					fmt.Printf("  last indexed at commit %s\n", shortHash(status.LastIndexedCommit))
				}
			} else {
				color.Yellow("Code backend: unavailable")
			}
			fmt.Printf("Governance index: %d files, %d chunks\n",
				status.GovernanceFiles, status.GovernanceChunks)
			if status.EmbedCacheEntries > 0 {
				fmt.Printf("Embed cache: %d entries, %d hits\n",
					status.EmbedCacheEntries, status.EmbedCacheHits)
			}
			return nil
		},
	}
}

func sourceLabel(source string) string {
	if source == "code" {
		return color.CyanString("code")
	}
	return color.MagentaString("gov ")
}
