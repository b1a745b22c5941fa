package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/engram/internal/api"
	"github.com/felixgeelhaar/engram/internal/extract"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the memory system over HTTP: POST /ingest, /search, /recall and
/store, plus read endpoints for memories and stats.`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fmt.Printf("Failed to start: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		addr := serveAddr
		if addr == "" {
			addr = a.cfg.Serve.Addr
		}

		srv := api.NewServer(a.store, a.gateway, a.pipeline, a.retriever, a.obs, api.Options{
			ChunkSize:    a.cfg.Chunking.Size,
			ChunkOverlap: a.cfg.Chunking.Overlap,
			Budget:       a.cfg.Retrieval.Budget,
		})

		// Pipeline events land in the log so an operator can follow what
		// ingestion is deciding.
		a.pipeline.Events().SubscribeAll(func(e extract.Event) {
			a.obs.Log().Info().Str("event", string(e.Type)).Str("session", e.Session).Msg("pipeline event")
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start(addr)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				fmt.Printf("Server error: %v\n", err)
				os.Exit(1)
			}
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				fmt.Printf("Shutdown error: %v\n", err)
				os.Exit(1)
			}
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
	RootCmd.AddCommand(serveCmd)
}
