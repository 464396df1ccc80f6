// Command fiscal-extract runs the extraction pipeline over local files.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
)

var (
	cfg    *common.Config
	logger *slog.Logger

	skipHidden bool
	maxBytes   int64
)

var rootCmd = &cobra.Command{
	Use:           "fiscal-extract",
	Short:         "Extract fiscal fields from CFDI invoices and receipts",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := common.LoadConfig()
		if err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c
		// Records go to stdout, so logs go to stderr.
		logger = common.NewLogger(os.Stderr, cfg.Log)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&skipHidden, "skip-hidden", true, "skip hidden files and directories")
	rootCmd.PersistentFlags().Int64Var(&maxBytes, "max-bytes", 20<<20, "largest document read from disk")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if _, werr := fmt.Fprintf(os.Stderr, "Error: %v\n", err); werr != nil {
			fmt.Printf("Error: %v\n", err)
		}
		os.Exit(1)
	}
}
