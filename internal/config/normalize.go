package config

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeMatching(); err != nil {
		return err
	}
	c.normalizeNormalizer()
	c.normalizeLicenses()
	c.normalizeEngine()
	if err := c.normalizeCorpus(); err != nil {
		return err
	}
	c.normalizeRegistries()
	if err := c.normalizeStore(); err != nil {
		return err
	}
	return c.normalizeLogging()
}

func (c *Config) normalizeMatching() error {
	if value, ok := os.LookupEnv("LICENSES_THRESHOLD"); ok && strings.TrimSpace(value) != "" {
		threshold, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("LICENSES_THRESHOLD: %w", err)
		}
		c.Matching.Threshold = threshold
	}
	if c.Matching.Threshold == 0 {
		c.Matching.Threshold = defaultThreshold
	}
	if c.Matching.ShingleSize == 0 {
		c.Matching.ShingleSize = defaultShingleSize
	}
	return nil
}

func (c *Config) normalizeLicenses() {
	seen := make(map[string]struct{}, len(c.Licenses.Accepted))
	var accepted []string
	for _, id := range c.Licenses.Accepted {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		accepted = append(accepted, id)
	}
	c.Licenses.Accepted = accepted
}

func (c *Config) normalizeNormalizer() {
	if len(c.Normalizer.CommentMarkers) == 0 {
		return
	}
	markers := make(map[string][]string, len(c.Normalizer.CommentMarkers))
	for sourceType, list := range c.Normalizer.CommentMarkers {
		key := strings.ToLower(strings.TrimSpace(sourceType))
		var cleaned []string
		for _, m := range list {
			if m = strings.TrimSpace(m); m != "" {
				cleaned = append(cleaned, m)
			}
		}
		markers[key] = append(markers[key], cleaned...)
	}
	c.Normalizer.CommentMarkers = markers
}

func (c *Config) normalizeEngine() {
	if c.Engine.Workers <= 0 {
		c.Engine.Workers = runtime.GOMAXPROCS(0)
	}
	var ignore []string
	for _, pattern := range c.Engine.Ignore {
		if pattern = strings.TrimSpace(pattern); pattern != "" {
			ignore = append(ignore, pattern)
		}
	}
	sort.Strings(ignore)
	c.Engine.Ignore = ignore
}

func (c *Config) normalizeCorpus() error {
	if value, ok := os.LookupEnv("LICENSES_CORPUS_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Corpus.Dir = strings.TrimSpace(value)
	}
	var err error
	if c.Corpus.Dir, err = expandPath(c.Corpus.Dir); err != nil {
		return fmt.Errorf("corpus.dir: %w", err)
	}
	c.Corpus.SPDXBaseURL = strings.TrimRight(strings.TrimSpace(c.Corpus.SPDXBaseURL), "/")
	if c.Corpus.SPDXBaseURL == "" {
		c.Corpus.SPDXBaseURL = defaultSPDXBaseURL
	}
	if c.Corpus.SyncConcurrency <= 0 {
		c.Corpus.SyncConcurrency = defaultSyncConcurrency
	}
	return nil
}

func (c *Config) normalizeRegistries() {
	if c.Registries.Concurrency <= 0 {
		c.Registries.Concurrency = defaultRegistryWorkers
	}
	if c.Registries.TimeoutSeconds <= 0 {
		c.Registries.TimeoutSeconds = defaultRegistryTimeout
	}
	if c.Registries.MaxRetries < 0 {
		c.Registries.MaxRetries = 0
	}
	c.Registries.UserAgent = strings.TrimSpace(c.Registries.UserAgent)
	if c.Registries.UserAgent == "" {
		c.Registries.UserAgent = defaultRegistryUserAgent
	}
}

func (c *Config) normalizeStore() error {
	if strings.TrimSpace(c.Store.Path) == "" {
		c.Store.Path = defaultStorePath
	}
	var err error
	if c.Store.Path, err = expandPath(c.Store.Path); err != nil {
		return fmt.Errorf("store.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.File != "" {
		var err error
		if c.Logging.File, err = expandPath(c.Logging.File); err != nil {
			return fmt.Errorf("logging.file: %w", err)
		}
	}
	return nil
}
