package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/git-pkgs/licenses/fetch"
)

func newCorpusCommand(ctx *commandContext) *cobra.Command {
	corpusCmd := &cobra.Command{
		Use:   "corpus",
		Short: "Inspect and sync the reference license corpus",
	}

	corpusCmd.AddCommand(newCorpusListCommand(ctx))
	corpusCmd.AddCommand(newCorpusSyncCommand(ctx))

	return corpusCmd
}

type corpusEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Variants int    `json:"variants"`
}

func newCorpusListCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the licenses the matcher can identify",
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := resolveFormat(cmd, format)
			if err != nil {
				return err
			}
			refs, err := ctx.loadCorpus()
			if err != nil {
				return err
			}

			entries := make([]corpusEntry, 0, refs.Len())
			for _, e := range refs.Entries() {
				entries = append(entries, corpusEntry{ID: e.ID.String(), Name: e.Name, Variants: len(e.Texts)})
			}
			if outFormat == formatJSON {
				return writeJSON(cmd, entries)
			}

			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Corpus is empty")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{e.ID, e.Name, strconv.Itoa(e.Variants)})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"License", "Name", "Texts"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatAuto, "Output format: auto, json or table")
	return cmd
}

func newCorpusSyncCommand(ctx *commandContext) *cobra.Command {
	var (
		dirFlag           string
		baseURL           string
		includeDeprecated bool
		lockTimeout       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sync [license-id]...",
		Short: "Download license texts from the SPDX license list",
		Long: `Sync downloads the SPDX license index and the detail document of every
listed license (or only the given identifiers) into the corpus directory.
Unchanged documents are skipped using their ETags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			dir := strings.TrimSpace(dirFlag)
			if dir == "" {
				dir = cfg.Corpus.Dir
			}
			if dir == "" {
				return fmt.Errorf("no corpus directory: set corpus.dir or pass --dir")
			}
			if baseURL == "" {
				baseURL = cfg.Corpus.SPDXBaseURL
			}

			getter := fetch.NewCircuitBreakerFetcher(fetch.NewFetcher(
				fetch.WithUserAgent(cfg.Registries.UserAgent),
				fetch.WithMaxRetries(cfg.Registries.MaxRetries),
				fetch.WithLogger(logger),
			))
			report, err := fetch.Sync(cmd.Context(), getter, dir, args, fetch.SyncOptions{
				Resolver:          fetch.NewResolver(baseURL),
				IncludeDeprecated: includeDeprecated || cfg.Corpus.IncludeDeprecated,
				Concurrency:       cfg.Corpus.SyncConcurrency,
				LockTimeout:       lockTimeout,
				Logger:            logger,
			})
			if report != nil {
				printSyncReport(cmd, dir, report)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&dirFlag, "dir", "", "Corpus directory (default corpus.dir)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "SPDX license-list-data JSON base URL (default corpus.spdx_base_url)")
	cmd.Flags().BoolVar(&includeDeprecated, "include-deprecated", false, "Also download deprecated license identifiers")
	cmd.Flags().DurationVar(&lockTimeout, "lock-timeout", 30*time.Second, "How long to wait for the corpus directory lock")
	return cmd
}

func printSyncReport(cmd *cobra.Command, dir string, report *fetch.SyncReport) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "SPDX license list %s -> %s\n", report.ListVersion, dir)
	fmt.Fprintf(w, "Written: %d  Unchanged: %d  Failed: %d\n", len(report.Written), len(report.Unchanged), len(report.Failed))

	failed := make([]string, 0, len(report.Failed))
	for id := range report.Failed {
		failed = append(failed, id)
	}
	sort.Strings(failed)
	for _, id := range failed {
		fmt.Fprintf(w, "  failed %s: %v\n", id, report.Failed[id])
	}
}
