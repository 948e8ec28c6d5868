package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/git-pkgs/licenses/internal/aggregate"
	"github.com/git-pkgs/licenses/internal/config"
	"github.com/git-pkgs/licenses/internal/corpus"
	"github.com/git-pkgs/licenses/internal/logging"
	"github.com/git-pkgs/licenses/internal/normalize"
	"github.com/git-pkgs/licenses/internal/store"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*c.logLevelFlag))
			if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
				c.configErr = fmt.Errorf("--log-level: %w", err)
				return
			}
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.New(cfg.LoggingOptions())
	})
	return c.logger, c.loggerErr
}

// loadCorpus merges the embedded corpus with the configured directory. A
// missing directory is tolerated while the builtin corpus is enabled.
func (c *commandContext) loadCorpus() (*corpus.Corpus, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}

	var base *corpus.Corpus
	if cfg.Corpus.Builtin {
		base, err = corpus.Builtin()
		if err != nil {
			return nil, err
		}
	}

	if cfg.Corpus.Dir == "" {
		return base, nil
	}
	dir, err := corpus.LoadDir(cfg.Corpus.Dir,
		corpus.WithDeprecated(cfg.Corpus.IncludeDeprecated),
		corpus.WithShingleSize(cfg.Matching.ShingleSize),
	)
	switch {
	case err == nil:
	case base != nil && errors.Is(err, fs.ErrNotExist):
		logger.Debug("corpus directory not found, using builtin corpus", "dir", cfg.Corpus.Dir)
		return base, nil
	default:
		return nil, err
	}
	if base == nil {
		return dir, nil
	}
	return corpus.Merge(base, dir)
}

func (c *commandContext) newEngine() (*aggregate.Engine, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	refs, err := c.loadCorpus()
	if err != nil {
		return nil, err
	}
	accepted, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	opts := []aggregate.Option{
		aggregate.WithWorkers(cfg.Engine.Workers),
		aggregate.WithMatchOptions(cfg.MatchOptions()),
		aggregate.WithNormalizer(normalize.New(cfg.Normalizer.CommentMarkers)),
		aggregate.WithLogger(logger),
	}
	if accepted != nil {
		opts = append(opts, aggregate.WithPolicy(accepted))
	}
	return aggregate.New(refs, opts...)
}

func (c *commandContext) withStore(ctx context.Context, fn func(*store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if !cfg.Store.Enabled {
		return errors.New("store is disabled; set store.enabled = true in the configuration")
	}
	st, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
