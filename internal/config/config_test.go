package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/git-pkgs/licenses/internal/config"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("LICENSES_THRESHOLD", "")
	t.Setenv("LICENSES_CORPUS_DIR", "")
	t.Chdir(t.TempDir())
	return home
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	home := isolate(t)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if want := filepath.Join(home, ".config", "licenses", "config.toml"); resolved != want {
		t.Fatalf("resolved = %q, want %q", resolved, want)
	}
	if cfg.Matching.Threshold != 0.9 || cfg.Matching.ShingleSize != 2 {
		t.Fatalf("unexpected matching defaults: %+v", cfg.Matching)
	}
	if cfg.Engine.Workers != runtime.GOMAXPROCS(0) {
		t.Fatalf("workers = %d", cfg.Engine.Workers)
	}
	if want := filepath.Join(home, ".local", "share", "licenses", "corpus"); cfg.Corpus.Dir != want {
		t.Fatalf("corpus dir = %q, want %q", cfg.Corpus.Dir, want)
	}
	if want := filepath.Join(home, ".local", "share", "licenses", "licenses.db"); cfg.Store.Path != want {
		t.Fatalf("store path = %q, want %q", cfg.Store.Path, want)
	}
	if cfg.Registries.Enabled {
		t.Fatal("expected registry lookups disabled by default")
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadProjectFile(t *testing.T) {
	isolate(t)
	content := `
[matching]
threshold = 0.8

[engine]
workers = 4
ignore = [" tentris* ", ""]

[normalizer.comment_markers]
Lua = ["--"]

[logging]
format = "JSON"
level = "Debug"
`
	if err := os.WriteFile("licenses.toml", []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || filepath.Base(resolved) != "licenses.toml" {
		t.Fatalf("expected project file, got %q exists=%v", resolved, exists)
	}
	if cfg.Matching.Threshold != 0.8 || cfg.Engine.Workers != 4 {
		t.Fatalf("file values not applied: %+v %+v", cfg.Matching, cfg.Engine)
	}
	if len(cfg.Engine.Ignore) != 1 || cfg.Engine.Ignore[0] != "tentris*" {
		t.Fatalf("ignore = %q", cfg.Engine.Ignore)
	}
	if got := cfg.Normalizer.CommentMarkers["lua"]; len(got) != 1 || got[0] != "--" {
		t.Fatalf("comment markers = %v", cfg.Normalizer.CommentMarkers)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging not normalized: %+v", cfg.Logging)
	}
	// Unset fields keep their defaults.
	if cfg.Matching.ShingleSize != 2 || !cfg.Corpus.Builtin {
		t.Fatalf("defaults lost: %+v %+v", cfg.Matching, cfg.Corpus)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	home := isolate(t)
	t.Setenv("LICENSES_THRESHOLD", "0.75")
	t.Setenv("LICENSES_CORPUS_DIR", "~/spdx")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Matching.Threshold != 0.75 {
		t.Fatalf("threshold = %v", cfg.Matching.Threshold)
	}
	if want := filepath.Join(home, "spdx"); cfg.Corpus.Dir != want {
		t.Fatalf("corpus dir = %q, want %q", cfg.Corpus.Dir, want)
	}

	t.Setenv("LICENSES_THRESHOLD", "high")
	if _, _, _, err := config.Load(""); err == nil || !strings.Contains(err.Error(), "LICENSES_THRESHOLD") {
		t.Fatalf("expected env parse error, got %v", err)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"threshold above one", "[matching]\nthreshold = 1.5\n", "matching.threshold"},
		{"negative threshold", "[matching]\nthreshold = -0.1\n", "matching.threshold"},
		{"shingle size", "[matching]\nshingle_size = 9\n", "shingle size"},
		{"log format", "[logging]\nformat = \"xml\"\n", "logging.format"},
		{"log level", "[logging]\nlevel = \"loud\"\n", "logging.level"},
		{"ignore pattern", "[engine]\nignore = [\"[oops\"]\n", "engine.ignore"},
		{"unknown key", "[matching]\nthreshhold = 0.5\n", "parse config"},
		{"empty markers", "[normalizer.comment_markers]\nlua = []\n", "normalizer.comment_markers.lua"},
		{"overlap ratio", "[matching]\noverlap_ratio = 1.5\n", "overlap ratio"},
		{"accepted license", "[licenses]\naccepted = [\"NOASSERTION\"]\n", "licenses.accepted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, _, _, err := config.Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestThresholdBoundaryAccepted(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[matching]\nthreshold = 1.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil || !exists {
		t.Fatalf("Load(%q) = exists %v, err %v", path, exists, err)
	}
	if opts := cfg.MatchOptions(); opts.Threshold != 1.0 {
		t.Fatalf("MatchOptions threshold = %v", opts.Threshold)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil || !exists {
		t.Fatalf("sample does not load: exists %v, err %v", exists, err)
	}
	if cfg.Corpus.SPDXBaseURL != config.Default().Corpus.SPDXBaseURL {
		t.Fatalf("spdx base url = %q", cfg.Corpus.SPDXBaseURL)
	}
}

func TestEncode(t *testing.T) {
	cfg := config.Default()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "threshold = 0.9") {
		t.Fatalf("encoded config missing threshold:\n%s", data)
	}
}

func TestLoggingOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.File = "/tmp/licenses.log"
	opts := cfg.LoggingOptions()
	if opts.Level != "info" || opts.Format != "console" || opts.File != "/tmp/licenses.log" {
		t.Fatalf("LoggingOptions = %+v", opts)
	}
}

func TestAcceptedLicensePolicy(t *testing.T) {
	isolate(t)

	cfg := config.Default()
	if cfg.Matching.OverlapRatio != 0 {
		t.Fatalf("overlap suppression should be off by default, got %v", cfg.Matching.OverlapRatio)
	}
	if p, err := cfg.Policy(); p != nil || err != nil {
		t.Fatalf("default Policy = %v, %v; want none", p, err)
	}

	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[matching]\noverlap_ratio = 0.5\n\n[licenses]\naccepted = [\" MIT \", \"Apache-2.0\", \"MIT\", \"\"]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	loaded, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := loaded.Licenses.Accepted; len(got) != 2 || got[0] != "MIT" || got[1] != "Apache-2.0" {
		t.Fatalf("accepted = %q", got)
	}
	if loaded.MatchOptions().OverlapRatio != 0.5 {
		t.Fatalf("overlap ratio = %v", loaded.MatchOptions().OverlapRatio)
	}
	p, err := loaded.Policy()
	if err != nil || p == nil {
		t.Fatalf("Policy = %v, %v", p, err)
	}
	if got := p.Accepted(); len(got) != 2 || got[0] != "MIT" {
		t.Errorf("policy accepted = %v", got)
	}
}
