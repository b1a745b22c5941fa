package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/engram/internal/extract"
)

var ingestSession string

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Extract memories from conversation text",
	Long: `Read conversation text from a file (or stdin when no file is given),
split it into chunks and run each through the gate/extract pipeline.
Chunks that carry nothing worth keeping are discarded.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var data []byte
		var err error
		if len(args) == 1 {
			data, err = os.ReadFile(args[0]) // #nosec G304
		} else {
			data, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			fmt.Printf("Failed to read input: %v\n", err)
			os.Exit(1)
		}
		if len(data) == 0 {
			fmt.Println("Nothing to ingest.")
			return
		}

		a, err := newApp()
		if err != nil {
			fmt.Printf("Failed to start: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		session := ingestSession
		if session == "" {
			session = uuid.NewString()
		}

		chunkTexts := extract.SplitText(string(data), a.cfg.Chunking.Size, a.cfg.Chunking.Overlap)

		chunks := make(chan extract.Chunk)
		go func() {
			defer close(chunks)
			for i, text := range chunkTexts {
				chunks <- extract.Chunk{Session: session, Index: i, Text: text}
			}
		}()

		if err := a.pipeline.Run(context.Background(), chunks); err != nil {
			fmt.Printf("Ingestion failed: %v\n", err)
			os.Exit(1)
		}

		c := a.pipeline.Snapshot()
		fmt.Printf("Session %s\n", session)
		fmt.Printf("  chunks: %d processed, %d passed gate, %d failed\n", c.ChunksProcessed, c.ChunksPassed, c.ChunksFailed)
		fmt.Printf("  memories: %d extracted, %d stored, %d merged, %d linked, %d dropped\n",
			c.Extracted, c.Stored, c.Merged, c.Linked, c.Dropped)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSession, "session", "", "Session tag for provenance (generated when empty)")
	RootCmd.AddCommand(ingestCmd)
}
