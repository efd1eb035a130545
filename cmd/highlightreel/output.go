package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/keagan/highlightreel/internal/export"
	"github.com/keagan/highlightreel/internal/pipeline"
	"github.com/keagan/highlightreel/pkg/util"
	"gopkg.in/yaml.v3"
)

// Styling functions using lipgloss
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Bold(true).
			Padding(0, 2).
			MarginBottom(1)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(14)
)

// parseLength accepts Go durations (90s, 1m30s) and timestamps (01:30)
func parseLength(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	return util.ParseTimestamp(s)
}

// writeResult prints the analysis in the requested format
func writeResult(w io.Writer, result *pipeline.Result, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(result)
	case "", "table", "text":
		fmt.Fprintln(w, renderResult(result))
		return nil
	default:
		return fmt.Errorf("unknown output format %q (table, json, yaml)", format)
	}
}

func renderResult(result *pipeline.Result) string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("highlightreel " + filepath.Base(result.Input)))
	b.WriteString("\n")

	field := func(label, value string) {
		b.WriteString(labelStyle.Render(label) + infoStyle.Render(value) + "\n")
	}
	field("run", result.RunID)
	field("backend", result.Backend)
	field("frames", fmt.Sprintf("%d @ %.3f fps", result.Frames, result.FPS))
	field("duration", util.FormatDuration(result.Duration))
	field("raw scores", fmt.Sprintf("%.4f - %.4f", result.RawMin, result.RawMax))
	field("threshold", fmt.Sprintf("%.4f", result.Threshold))
	if result.Fallbacks > 0 {
		field("fallbacks", errorStyle.Render(strconv.Itoa(result.Fallbacks)))
	}
	field("mean/frame", result.Stats.MeanAnalysis.String())
	b.WriteString("\n")

	switch {
	case result.Partial:
		b.WriteString(errorStyle.Render("analysis interrupted, no highlights extracted"))
	case len(result.Segments) == 0:
		b.WriteString(infoStyle.Render("no highlights found"))
	default:
		title := fmt.Sprintf("%d highlights", len(result.Segments))
		if result.Windowed {
			title = fmt.Sprintf("%d fixed windows (no highlights stood out)", len(result.Segments))
		}
		b.WriteString(successStyle.Render(title) + "\n")
		b.WriteString(segmentTable(result))
	}
	return b.String()
}

func segmentTable(result *pipeline.Result) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("#", "START", "END", "LENGTH", "SCORE")

	for i, seg := range result.Segments {
		t.Row(
			strconv.Itoa(i+1),
			util.FormatDuration(seg.StartTime()),
			util.FormatDuration(seg.EndTime()),
			fmt.Sprintf("%.1fs", seg.Duration()),
			fmt.Sprintf("%.3f", seg.Score),
		)
	}
	return t.String()
}

func renderOutcomes(outcomes []export.Outcome, stats pipeline.StatsSnapshot) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("#", "RANGE", "CLIP", "TIME")

	for _, o := range outcomes {
		status := o.Path
		if !o.OK() {
			status = errorStyle.Render("failed: " + o.Err.Error())
		}
		t.Row(
			strconv.Itoa(o.Index+1),
			util.FormatDuration(o.Segment.StartTime())+" - "+util.FormatDuration(o.Segment.EndTime()),
			status,
			o.Elapsed.Round(time.Millisecond).String(),
		)
	}

	failed := len(export.Failed(outcomes))
	summary := successStyle.Render(fmt.Sprintf("%d clips exported", len(outcomes)-failed))
	if failed > 0 {
		summary += "  " + errorStyle.Render(fmt.Sprintf("%d failed", failed))
	}
	timing := infoStyle.Render(fmt.Sprintf("mean trim %s, mean export %s",
		stats.MeanTrim.Round(time.Millisecond), stats.MeanExport.Round(time.Millisecond)))

	return t.String() + "\n" + summary + "\n" + timing
}

// saveResult writes the result as JSON, or YAML for .yaml/.yml paths
func saveResult(path string, result *pipeline.Result) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(result)
	default:
		data, err = json.MarshalIndent(result, "", "  ")
	}
	if err != nil {
		return err
	}
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// loadResult reads a result written by saveResult
func loadResult(path string) (*pipeline.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	result := &pipeline.Result{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, result)
	default:
		err = json.Unmarshal(data, result)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for i, seg := range result.Segments {
		if err := seg.Validate(); err != nil {
			return nil, fmt.Errorf("%s: segment %d: %w", path, i, err)
		}
	}
	return result, nil
}
