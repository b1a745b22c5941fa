package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	recallBudget  int
	recallSession string
)

var recallCmd = &cobra.Command{
	Use:   "recall [context]",
	Short: "Recall memories relevant to conversation context",
	Long: `Recall the stored memories most relevant to the given context, ranked
by similarity, importance and recency and trimmed to a character budget.
Re-running with the same --session suppresses memories already surfaced.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fmt.Printf("Failed to start: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		session := recallSession
		if session == "" {
			session = uuid.NewString()
		}
		budget := recallBudget
		if budget <= 0 {
			budget = a.cfg.Retrieval.Budget
		}

		results, err := a.retriever.Retrieve(context.Background(), session, args[0], budget)
		if err != nil {
			fmt.Printf("Recall failed: %v\n", err)
			os.Exit(1)
		}
		if len(results) == 0 {
			fmt.Println("No relevant memories.")
			return
		}

		for _, res := range results {
			fmt.Printf("[%d] score=%.3f sim=%.3f (%s, imp=%d)\n    %s\n",
				res.Memory.ID, res.Score, res.Similarity, res.Memory.Type, res.Memory.Importance, res.Memory.Content)
		}
	},
}

func init() {
	recallCmd.Flags().IntVar(&recallBudget, "budget", 0, "Character budget (defaults from config)")
	recallCmd.Flags().StringVar(&recallSession, "session", "", "Session for repetition suppression (generated when empty)")
	RootCmd.AddCommand(recallCmd)
}
