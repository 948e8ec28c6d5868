package config

import "runtime"

const (
	defaultThreshold         = 0.9
	defaultShingleSize       = 2
	defaultCorpusDir         = "~/.local/share/licenses/corpus"
	defaultSPDXBaseURL       = "https://raw.githubusercontent.com/spdx/license-list-data/main/json"
	defaultSyncConcurrency   = 8
	defaultRegistryWorkers   = 15
	defaultRegistryTimeout   = 30
	defaultRegistryRetries   = 5
	defaultRegistryUserAgent = "licenses/dev"
	defaultStorePath         = "~/.local/share/licenses/licenses.db"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Matching: Matching{
			Threshold:   defaultThreshold,
			ShingleSize: defaultShingleSize,
		},
		Engine: Engine{
			Workers: runtime.GOMAXPROCS(0),
		},
		Corpus: Corpus{
			Dir:             defaultCorpusDir,
			Builtin:         true,
			SPDXBaseURL:     defaultSPDXBaseURL,
			SyncConcurrency: defaultSyncConcurrency,
		},
		Registries: Registries{
			Enabled:        false,
			Concurrency:    defaultRegistryWorkers,
			TimeoutSeconds: defaultRegistryTimeout,
			MaxRetries:     defaultRegistryRetries,
			UserAgent:      defaultRegistryUserAgent,
		},
		Store: Store{
			Enabled: true,
			Path:    defaultStorePath,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
