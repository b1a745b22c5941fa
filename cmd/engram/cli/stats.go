package cli

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory store statistics",
	Run: func(cmd *cobra.Command, args []string) {
		s := getStore()
		defer s.Close()

		st, err := s.Stats(context.Background())
		if err != nil {
			fmt.Printf("Failed to read stats: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Memories:    %d\n", st.TotalMemories)
		fmt.Printf("Links:       %d\n", st.TotalLinks)
		fmt.Printf("Raw chunks:  %d\n", st.RawChunks)
		if st.TotalMemories > 0 {
			fmt.Printf("Avg imp:     %.2f\n", st.AvgImportance)
		}

		if len(st.ByType) > 0 {
			fmt.Println("By type:")
			types := make([]string, 0, len(st.ByType))
			for t := range st.ByType {
				types = append(types, t)
			}
			sort.Strings(types)
			for _, t := range types {
				fmt.Printf("  %-13s %d\n", t, st.ByType[t])
			}
		}
	},
}

func init() {
	RootCmd.AddCommand(statsCmd)
}
