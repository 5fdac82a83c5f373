// Command intakectl submits documents and inspects intake jobs.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/doc-intake/internal/app"
	"github.com/joseph-ayodele/doc-intake/internal/common"
)

var (
	cfg    *common.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "intakectl",
	Short:         "Document intake control tool",
	Long:          "Submit documents to the intake pipeline, inspect and cancel jobs, and dry-run OCR and classification locally.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		cfg = common.LoadConfig()
		logger = common.NewLogger(cfg.Log, os.Stderr)
		slog.SetDefault(logger)
	},
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openStorage validates only the storage sections; commands that never call
// the LLM must not require an API key.
func openStorage(ctx context.Context) (*app.Storage, error) {
	if err := cfg.ValidateStorage(); err != nil {
		return nil, err
	}
	return app.OpenStorage(ctx, cfg, logger)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
