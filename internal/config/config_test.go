package config

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/keagan/highlightreel/internal/scoring"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := load(filepath.Join(t.TempDir(), "missing.yaml"), "", noEnv)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	seg := cfg.SegmentConfig()
	if seg.Percentile != 75 || seg.MinDuration != 60*time.Second || seg.MaxDuration != 90*time.Second {
		t.Errorf("unexpected segment defaults %+v", seg)
	}
	if cfg.Scoring.Weights != scoring.DefaultWeights() {
		t.Errorf("unexpected weights %+v", cfg.Scoring.Weights)
	}
	if cfg.Export.Workers != 2 || cfg.PipelineConfig().ExportWorkers != 2 {
		t.Errorf("expected 2 export workers, got %d", cfg.Export.Workers)
	}
	if cfg.PipelineConfig().WindowLength != 90*time.Second {
		t.Errorf("unexpected window length %v", cfg.PipelineConfig().WindowLength)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
concurrency: 3
scoring:
  backend: accelerated
  weights:
    brightness: 0.2
    contrast: 0.5
    edges: 0.3
segments:
  percentile: 90
  min_duration: 30s
  max_duration: 2m
  top_n: 5
  fallback_windows: true
ffmpeg:
  copy_codec: true
export:
  output_dir: /tmp/out
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := load(path, "", noEnv)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Concurrency != 3 || cfg.Scoring.Backend != scoring.BackendAccelerated {
		t.Errorf("unexpected core settings %+v", cfg)
	}
	if cfg.ScoringOptions().Weights.Contrast != 0.5 {
		t.Errorf("unexpected weights %+v", cfg.Scoring.Weights)
	}
	seg := cfg.SegmentConfig()
	if seg.Percentile != 90 || seg.MinDuration != 30*time.Second || seg.MaxDuration != 2*time.Minute || seg.TopN != 5 {
		t.Errorf("unexpected segments %+v", seg)
	}
	if !cfg.PipelineConfig().FallbackWindows || !cfg.ExportOptions("x").CopyCodec {
		t.Error("expected booleans to load")
	}
	// untouched sections keep their defaults
	if cfg.FFmpeg.Preset != "medium" || cfg.Export.Workers != 2 {
		t.Errorf("defaults lost: %+v", cfg.FFmpeg)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"syntax", "scoring: ["},
		{"backend", "scoring:\n  backend: quantum\n"},
		{"percentile", "segments:\n  percentile: 150\n"},
		{"durations", "segments:\n  min_duration: 2m\n  max_duration: 1m\n"},
		{"weights", "scoring:\n  weights:\n    brightness: -1\n"},
		{"crf", "ffmpeg:\n  crf: 99\n"},
	}

	for _, tt := range tests {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte(tt.data), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := load(path, "", noEnv); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	env := envMap(map[string]string{
		"HIGHLIGHTREEL_BACKEND":          "gpu",
		"HIGHLIGHTREEL_PERCENTILE":       "80",
		"HIGHLIGHTREEL_MIN_DURATION":     "10s",
		"HIGHLIGHTREEL_FALLBACK_WINDOWS": "true",
		"HIGHLIGHTREEL_OUTPUT_DIR":       " /data/clips ",
		"HIGHLIGHTREEL_EXPORT_WORKERS":   "4",
		"HIGHLIGHTREEL_DECODE_FILTER":    "hqdn3d",
	})

	cfg, err := load(filepath.Join(t.TempDir(), "none.yaml"), "", env)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Scoring.Backend != "gpu" || cfg.Segments.Percentile != 80 || cfg.Segments.MinDuration != 10*time.Second {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if !cfg.Segments.FallbackWindows || cfg.Export.OutputDir != "/data/clips" || cfg.Export.Workers != 4 {
		t.Errorf("overrides not applied: %+v", cfg.Export)
	}
	if cfg.FrameOptions().Filter != "hqdn3d" {
		t.Errorf("decode filter not applied: %+v", cfg.FrameOptions())
	}

	_, err = load(filepath.Join(t.TempDir(), "none.yaml"), "", envMap(map[string]string{"HIGHLIGHTREEL_TOP_N": "many"}))
	if err == nil || !strings.Contains(err.Error(), "HIGHLIGHTREEL_TOP_N") {
		t.Errorf("expected error naming the variable, got %v", err)
	}
}

func TestDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	data := "HIGHLIGHTREEL_TOP_N=3\nHIGHLIGHTREEL_PERCENTILE=60\n"
	if err := os.WriteFile(envFile, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	// the process environment takes precedence over .env
	env := envMap(map[string]string{"HIGHLIGHTREEL_PERCENTILE": "95"})
	cfg, err := load(filepath.Join(dir, "none.yaml"), envFile, env)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Segments.TopN != 3 {
		t.Errorf("expected top_n from .env, got %d", cfg.Segments.TopN)
	}
	if cfg.Segments.Percentile != 95 {
		t.Errorf("expected environment to win, got %v", cfg.Segments.Percentile)
	}

	if _, err := load(filepath.Join(dir, "none.yaml"), filepath.Join(dir, "absent.env"), noEnv); err != nil {
		t.Errorf("missing .env should be ignored: %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Segments.MinDuration = 45 * time.Second
	cfg.Scoring.Backend = scoring.BackendAccelerated
	cfg.Export.Reel = true

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "min_duration: 45s") {
		t.Errorf("expected readable durations, got:\n%s", data)
	}

	loaded, err := load(path, "", noEnv)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Segments.MinDuration != 45*time.Second || loaded.Scoring.Backend != scoring.BackendAccelerated || !loaded.Export.Reel {
		t.Errorf("round trip lost values: %+v", loaded)
	}
}

func TestContext(t *testing.T) {
	if cfg := FromContext(context.Background()); cfg == nil || cfg.BatchSize != 64 {
		t.Error("expected defaults without a stored config")
	}

	cfg := Default()
	cfg.BatchSize = 7
	ctx := WithConfig(context.Background(), cfg)
	if FromContext(ctx).BatchSize != 7 {
		t.Error("expected stored config")
	}
}

func TestBackendWorkers(t *testing.T) {
	procs := runtime.GOMAXPROCS(0)
	tests := []struct {
		name        string
		concurrency int
		want        int
	}{
		{"one frame per CPU", 0, 1},
		{"serial frames get every CPU", 1, procs},
		{"more frames than CPUs", procs * 4, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Concurrency: tt.concurrency}
			got := cfg.BackendWorkers()
			if got != tt.want {
				t.Errorf("BackendWorkers() = %d, want %d", got, tt.want)
			}
			if got > 1 && got*cfg.Concurrency > procs {
				t.Errorf("%d frames x %d bands oversubscribes %d CPUs", cfg.Concurrency, got, procs)
			}
		})
	}
}
