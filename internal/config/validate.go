package config

import (
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/git-pkgs/licenses/internal/logging"
	"github.com/git-pkgs/licenses/internal/match"
	"github.com/git-pkgs/licenses/internal/policy"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateMatching(); err != nil {
		return err
	}
	if err := c.validateNormalizer(); err != nil {
		return err
	}
	if err := c.validateLicenses(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateCorpus(); err != nil {
		return err
	}
	if err := c.validateRegistries(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateMatching() error {
	if c.Matching.Threshold <= 0 || c.Matching.Threshold > 1 {
		return fmt.Errorf("matching.threshold must be in (0, 1], got %v", c.Matching.Threshold)
	}
	if err := c.MatchOptions().Validate(); err != nil {
		return fmt.Errorf("matching: %w", err)
	}
	return nil
}

func (c *Config) validateNormalizer() error {
	for sourceType, markers := range c.Normalizer.CommentMarkers {
		if sourceType == "" {
			return errors.New("normalizer.comment_markers keys must not be empty")
		}
		if len(markers) == 0 {
			return fmt.Errorf("normalizer.comment_markers.%s must list at least one marker", sourceType)
		}
	}
	return nil
}

func (c *Config) validateLicenses() error {
	if len(c.Licenses.Accepted) == 0 {
		return nil
	}
	if _, err := c.Policy(); err != nil {
		return fmt.Errorf("licenses.accepted: %w", err)
	}
	return nil
}

// Policy builds the accepted license policy, nil when none is configured.
func (c *Config) Policy() (*policy.Policy, error) {
	if len(c.Licenses.Accepted) == 0 {
		return nil, nil
	}
	return policy.New(c.Licenses.Accepted)
}

func (c *Config) validateEngine() error {
	if c.Engine.Workers < 1 {
		return errors.New("engine.workers must be at least 1")
	}
	for _, pattern := range c.Engine.Ignore {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("engine.ignore %q: %w", pattern, err)
		}
	}
	return nil
}

func (c *Config) validateCorpus() error {
	if !c.Corpus.Builtin && c.Corpus.Dir == "" {
		return errors.New("corpus.dir must be set when corpus.builtin is false")
	}
	return nil
}

func (c *Config) validateRegistries() error {
	if !c.Registries.Enabled {
		return nil
	}
	if c.Registries.Concurrency < 1 {
		return errors.New("registries.concurrency must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be one of console or json, got %q", c.Logging.Format)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// MatchOptions converts the matching section to matcher options.
func (c *Config) MatchOptions() match.Options {
	return match.Options{
		Threshold:    c.Matching.Threshold,
		ShingleSize:  c.Matching.ShingleSize,
		OverlapRatio: c.Matching.OverlapRatio,
		MaxTokens:    c.Matching.MaxTokens,
	}
}

// LoggingOptions converts the logging section to logger options.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		File:   c.Logging.File,
	}
}

// RegistryTimeout returns the per-request registry timeout.
func (c *Config) RegistryTimeout() time.Duration {
	return time.Duration(c.Registries.TimeoutSeconds) * time.Second
}
