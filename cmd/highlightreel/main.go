package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/keagan/highlightreel/internal/config"
	"github.com/keagan/highlightreel/internal/logging"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	cfgFile string
	verbose bool
	quiet   bool
	jsonLog bool
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// first signal stops analysis at the next batch, the partial result is still reported
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger := logging.WithComponent("cli")
		logger.Warn().Str("signal", sig.String()).Msg("received signal, stopping")
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "highlightreel",
	Short:         "highlightreel - find and cut the most interesting moments of a video",
	Long:          "Scores every frame of a video by brightness, contrast, and edge density, then cuts the sustained high-interest runs into highlight clips.",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logging
		logging.Init(logging.Options{Verbose: verbose, Quiet: quiet, JSON: jsonLog})

		// Load config
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		// Store config in context
		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./highlightreel.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "log-json", false, "write logs as JSON lines")

	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "highlightreel", version)
	},
}
