package main

import (
	"github.com/keagan/highlightreel/internal/config"
	"github.com/keagan/highlightreel/internal/logging"
	"github.com/keagan/highlightreel/internal/pipeline"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	detectFlags  analysisFlags
	detectFormat string
	detectSave   string
)

var detectCmd = &cobra.Command{
	Use:   "detect [input video]",
	Short: "Score a video and list its highlights",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		if err := detectFlags.apply(cmd, cfg); err != nil {
			return err
		}

		logger := logging.WithComponent("cli")
		a, err := newApp(log.Logger, cfg, &detectFlags, false)
		if err != nil {
			return err
		}

		obs, done := a.observer(&detectFlags)
		result, err := a.pipeline.Analyze(cmd.Context(), args[0], pipeline.NewStats(), obs)
		done()
		if result == nil {
			return err
		}

		if detectSave != "" {
			if serr := saveResult(detectSave, result); serr != nil {
				logger.Error().Err(serr).Str("path", detectSave).Msg("failed to save result")
			} else {
				logger.Info().Str("path", detectSave).Msg("result saved")
			}
		}

		if werr := writeResult(cmd.OutOrStdout(), result, detectFormat); werr != nil {
			return werr
		}
		return err
	},
}

func init() {
	detectFlags.register(detectCmd)
	detectCmd.Flags().StringVarP(&detectFormat, "format", "f", "table", "output format (table, json, yaml)")
	detectCmd.Flags().StringVarP(&detectSave, "save", "o", "", "also write the result to this file (.json or .yaml)")
}
