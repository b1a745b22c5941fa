package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	jsonOut    bool
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "engram",
	Short: "Persistent semantic memory for conversational agents",
	Long: `Engram lets a stateless conversational agent retain and recall
information across sessions. Conversation text flows through a gate/extract
pipeline into an embedded vector store; recall returns the most relevant
memories within a strict size budget.`,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to config file")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	RootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "JSON log output")
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "engram.yaml"
	}
	return filepath.Join(home, ".engram", "config.yaml")
}
