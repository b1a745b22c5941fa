package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/engram/internal/embed"
)

var (
	searchLimit int
	searchFloor float64
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search memories by semantic similarity",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fmt.Printf("Failed to start: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		ctx := context.Background()
		vec, err := a.gateway.Embed(ctx, args[0], embed.RoleQuery)
		if err != nil {
			fmt.Printf("Failed to embed query: %v\n", err)
			os.Exit(1)
		}

		hits, err := a.store.Search(ctx, vec, searchLimit, searchFloor)
		if err != nil {
			fmt.Printf("Search failed: %v\n", err)
			os.Exit(1)
		}
		if len(hits) == 0 {
			fmt.Println("No memories found.")
			return
		}

		for _, h := range hits {
			fmt.Printf("[%d] %.3f (%s, imp=%d) %s\n",
				h.Memory.ID, h.Similarity, h.Memory.Type, h.Memory.Importance, h.Memory.Content)
		}
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 5, "Maximum results")
	searchCmd.Flags().Float64Var(&searchFloor, "floor", 0.40, "Minimum similarity")
	RootCmd.AddCommand(searchCmd)
}
