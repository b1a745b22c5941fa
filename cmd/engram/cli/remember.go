package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/engram/internal/memory"
)

var (
	rememberImportance int
	rememberType       string
	rememberTags       []string
	rememberSession    string
)

var rememberCmd = &cobra.Command{
	Use:   "remember [content]",
	Short: "Store a memory directly",
	Long: `Store a hand-written memory. It still goes through deduplication, so
restating something the store already knows merges instead of duplicating.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fmt.Printf("Failed to start: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		cand := memory.Candidate{
			Content:       args[0],
			Importance:    rememberImportance,
			Type:          memory.Type(rememberType),
			TopicTags:     rememberTags,
			SourceSession: rememberSession,
		}

		res, err := a.pipeline.Reconcile(context.Background(), cand)
		if err != nil {
			fmt.Printf("Failed to store memory: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s (id=%d)\n", res.Outcome, res.ID)
	},
}

func init() {
	rememberCmd.Flags().IntVar(&rememberImportance, "importance", memory.DefaultImportance, "Importance 1-5")
	rememberCmd.Flags().StringVar(&rememberType, "type", string(memory.TypeGeneral), "Memory type")
	rememberCmd.Flags().StringSliceVar(&rememberTags, "tags", nil, "Topic tags")
	rememberCmd.Flags().StringVar(&rememberSession, "session", "cli", "Session tag for provenance")
	RootCmd.AddCommand(rememberCmd)
}
