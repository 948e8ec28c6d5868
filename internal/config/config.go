// Package config loads the TOML configuration shared by the CLI commands.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Matching contains matcher tuning.
type Matching struct {
	Threshold    float64 `toml:"threshold"`
	ShingleSize  int     `toml:"shingle_size"`
	OverlapRatio float64 `toml:"overlap_ratio"`
	MaxTokens    int     `toml:"max_tokens"`
}

// Normalizer contains text normalization settings.
type Normalizer struct {
	// CommentMarkers maps a scrape source type to the line-leading markers
	// stripped from its texts. Empty uses the built-in table.
	CommentMarkers map[string][]string `toml:"comment_markers"`
}

// Licenses contains the accepted license policy.
type Licenses struct {
	// Accepted lists the licenses a package may be used under, most
	// preferred first. Empty disables minimization.
	Accepted []string `toml:"accepted"`
}

// Engine contains run settings.
type Engine struct {
	Workers int `toml:"workers"`
	// Ignore lists name globs for dependencies left out of every run.
	Ignore []string `toml:"ignore"`
}

// Corpus contains reference corpus settings.
type Corpus struct {
	Dir               string `toml:"dir"`
	Builtin           bool   `toml:"builtin"`
	SPDXBaseURL       string `toml:"spdx_base_url"`
	IncludeDeprecated bool   `toml:"include_deprecated"`
	SyncConcurrency   int    `toml:"sync_concurrency"`
}

// Registries contains package registry lookup settings.
type Registries struct {
	Enabled        bool   `toml:"enabled"`
	Concurrency    int    `toml:"concurrency"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`
	UserAgent      string `toml:"user_agent"`
}

// Store contains run history and override database settings.
type Store struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// Config encapsulates all configuration values.
//
// Sections:
//   - Matching: confidence threshold and fingerprint settings
//   - Normalizer: comment markers per scrape source type
//   - Licenses: accepted license policy for minimized views
//   - Engine: worker count and ignore list
//   - Corpus: reference text location and SPDX sync source
//   - Registries: declared license lookups for PURL-only dependencies
//   - Store: SQLite database for overrides and run history
//   - Logging: log format, level and optional file
type Config struct {
	Matching   Matching   `toml:"matching"`
	Normalizer Normalizer `toml:"normalizer"`
	Licenses   Licenses   `toml:"licenses"`
	Engine     Engine     `toml:"engine"`
	Corpus     Corpus     `toml:"corpus"`
	Registries Registries `toml:"registries"`
	Store      Store      `toml:"store"`
	Logging    Logging    `toml:"logging"`
}

const defaultConfigPath = "~/.config/licenses/config.toml"

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. A missing file
// is not an error: defaults are returned with exists set to false.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("licenses.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	var b strings.Builder
	enc := toml.NewEncoder(&b)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return []byte(b.String()), nil
}
