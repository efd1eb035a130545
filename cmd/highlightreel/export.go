package main

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/keagan/highlightreel/internal/config"
	"github.com/keagan/highlightreel/internal/export"
	"github.com/keagan/highlightreel/internal/logging"
	"github.com/keagan/highlightreel/internal/pipeline"
	"github.com/keagan/highlightreel/internal/segment"
	"github.com/keagan/highlightreel/pkg/util"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	exportFlags    analysisFlags
	exportOut      string
	exportFrom     string
	exportRanges   []string
	exportPlaylist bool
	exportReel     bool
	exportThumbs   bool
	exportCopy     bool
)

var exportCmd = &cobra.Command{
	Use:   "export [input video]",
	Short: "Detect highlights and cut them into clips",
	Long: `Detect highlights and cut each one into its own clip.

Segments can also come from a saved detect result (--from) or be given
directly (--segment 01:30-03:00, repeatable), which skips analysis.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.FromContext(ctx)
		if err := exportFlags.apply(cmd, cfg); err != nil {
			return err
		}
		applyExportFlags(cmd, cfg)
		if exportFlags.framesDir {
			return fmt.Errorf("export needs a video input, --frames-dir is only supported by detect")
		}

		logger := logging.WithComponent("cli")
		a, err := newApp(log.Logger, cfg, &exportFlags, true)
		if err != nil {
			return err
		}

		input := ""
		if len(args) == 1 {
			input = args[0]
		}

		stats := pipeline.NewStats()
		result, err := resolveSegments(cmd, a, input, stats)
		if err != nil {
			return err
		}
		if len(result.Segments) == 0 {
			logger.Info().Str("input", result.Input).Msg("no highlights to export")
			return nil
		}

		outDir := filepath.Join(cfg.Export.OutputDir, util.BaseName(result.Input)+"_"+shortID(result.RunID))
		exporter := export.NewClipExporter(log.Logger, a.executor, cfg.ExportOptions(outDir))

		outcomes := a.pipeline.Export(ctx, result, exporter, stats)

		if cfg.Export.Playlist {
			path := filepath.Join(outDir, "highlights.m3u8")
			if perr := export.WritePlaylist(path, outcomes); perr != nil {
				logger.Warn().Err(perr).Msg("playlist not written")
			} else {
				logger.Info().Str("path", path).Msg("playlist written")
			}
		}
		if cfg.Export.Reel && ctx.Err() == nil {
			path := filepath.Join(outDir, "reel.mp4")
			if rerr := export.WriteReel(ctx, a.executor, outcomes, path, false); rerr != nil {
				logger.Warn().Err(rerr).Msg("reel not written")
			} else {
				logger.Info().Str("path", path).Msg("reel written")
			}
		}

		if err := saveResult(filepath.Join(outDir, "result.json"), result); err != nil {
			logger.Warn().Err(err).Msg("failed to save result")
		}

		fmt.Fprintln(cmd.OutOrStdout(), renderOutcomes(outcomes, stats.Snapshot()))
		return export.Err(outcomes)
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func applyExportFlags(cmd *cobra.Command, cfg *config.Config) {
	fs := cmd.Flags()
	if fs.Changed("out") {
		cfg.Export.OutputDir = exportOut
	}
	if fs.Changed("playlist") {
		cfg.Export.Playlist = exportPlaylist
	}
	if fs.Changed("reel") {
		cfg.Export.Reel = exportReel
	}
	if fs.Changed("thumbnails") {
		cfg.Export.Thumbnails = exportThumbs
	}
	if fs.Changed("copy") {
		cfg.FFmpeg.CopyCodec = exportCopy
	}
}

// resolveSegments picks manual ranges, a saved result, or a fresh analysis
func resolveSegments(cmd *cobra.Command, a *app, input string, stats *pipeline.Stats) (*pipeline.Result, error) {
	switch {
	case len(exportRanges) > 0:
		if input == "" {
			return nil, fmt.Errorf("an input video is required with --segment")
		}
		result := &pipeline.Result{RunID: uuid.NewString(), Input: input}
		for _, r := range exportRanges {
			start, end, err := util.ParseRange(r)
			if err != nil {
				return nil, err
			}
			result.Segments = append(result.Segments, segment.Segment{Start: start.Seconds(), End: end.Seconds()})
		}
		return result, nil

	case exportFrom != "":
		result, err := loadResult(exportFrom)
		if err != nil {
			return nil, err
		}
		if input != "" {
			result.Input = input
		}
		if result.Input == "" {
			return nil, fmt.Errorf("%s does not name an input video", exportFrom)
		}
		if result.RunID == "" {
			result.RunID = uuid.NewString()
		}
		if result.Partial {
			return nil, fmt.Errorf("%s holds an interrupted analysis", exportFrom)
		}
		return result, nil

	default:
		if input == "" {
			return nil, fmt.Errorf("an input video is required")
		}
		obs, done := a.observer(&exportFlags)
		result, err := a.pipeline.Analyze(cmd.Context(), input, stats, obs)
		done()
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

func init() {
	exportFlags.register(exportCmd)
	fs := exportCmd.Flags()
	fs.StringVar(&exportOut, "out", "", "output directory (default from config)")
	fs.StringVar(&exportFrom, "from", "", "export the segments of a saved detect result")
	fs.StringArrayVar(&exportRanges, "segment", nil, "export this START-END range instead of detecting (repeatable)")
	fs.BoolVar(&exportPlaylist, "playlist", true, "write an m3u8 playlist of the clips")
	fs.BoolVar(&exportReel, "reel", false, "also join the clips into a single reel")
	fs.BoolVar(&exportThumbs, "thumbnails", false, "write a JPEG thumbnail per clip")
	fs.BoolVar(&exportCopy, "copy", false, "stream copy instead of re-encoding (faster, cuts on keyframes)")
}
