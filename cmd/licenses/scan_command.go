package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	_ "github.com/git-pkgs/licenses/all"
	"github.com/git-pkgs/licenses/internal/core"
	"github.com/git-pkgs/licenses/internal/ingest"
	"github.com/git-pkgs/licenses/internal/store"
)

type scanOutput struct {
	RunID    string         `json:"run_id,omitempty"`
	Packages []core.Package `json:"packages"`
	Summary  core.Summary   `json:"summary"`
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	var (
		format           string
		noRecord         bool
		registries       bool
		failOnUnresolved bool
		failOnRejected   bool
	)

	cmd := &cobra.Command{
		Use:   "scan <dependency-file>...",
		Short: "Identify the licenses of every dependency in the given files",
		Long: `Scan reads manifest package lists (JSON arrays) and scraper dumps (JSON
objects), matches raw license texts against the reference corpus and prints
one record per dependency. With licenses.accepted configured, each record also
carries the minimized license set the accepted policy allows.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			outFormat, err := resolveFormat(cmd, format)
			if err != nil {
				return err
			}

			var (
				deps   []core.Dependency
				inputs []string
			)
			for _, arg := range args {
				path, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("resolve %s: %w", arg, err)
				}
				read, err := ingest.ReadFile(path, logger)
				if err != nil {
					return err
				}
				deps = append(deps, read...)
				inputs = append(inputs, path)
			}

			var st *store.Store
			if cfg.Store.Enabled {
				st, err = store.Open(cmd.Context(), cfg.Store.Path)
				if err != nil {
					return err
				}
				defer st.Close()
			}

			var overrides []ingest.Override
			if st != nil {
				overrides, err = st.IngestOverrides(cmd.Context())
				if err != nil {
					return err
				}
			}
			filter, err := ingest.NewFilter(cfg.Engine.Ignore, overrides, logger)
			if err != nil {
				return err
			}
			deps, report := filter.Apply(deps)
			if len(report.Ignored) > 0 || len(report.Overridden) > 0 {
				logger.Info("dependency filter applied",
					"ignored", len(report.Ignored),
					"overridden", len(report.Overridden),
				)
			}

			if cfg.Registries.Enabled || registries {
				client := core.NewClient(
					core.WithTimeout(cfg.RegistryTimeout()),
					core.WithMaxRetries(cfg.Registries.MaxRetries),
				).WithUserAgent(cfg.Registries.UserAgent)
				resolver := ingest.RegistryResolver{Client: client, Concurrency: cfg.Registries.Concurrency}
				deps, err = ingest.Enrich(cmd.Context(), deps, resolver, logger)
				if err != nil {
					return err
				}
			}

			engine, err := ctx.newEngine()
			if err != nil {
				return err
			}
			result, err := engine.Run(cmd.Context(), deps)
			if err != nil {
				return err
			}

			out := scanOutput{Packages: result.Packages, Summary: result.Summary}
			if st != nil && !noRecord {
				run, err := st.RecordRun(cmd.Context(), store.RunMeta{
					Threshold:  engine.Matcher().Options().Threshold,
					CorpusSize: engine.Corpus().Len(),
					Inputs:     inputs,
				}, result)
				if err != nil {
					return err
				}
				out.RunID = run.ID
			}

			if outFormat == formatJSON {
				if err := writeJSON(cmd, out); err != nil {
					return err
				}
			} else {
				printScanTable(cmd, out)
			}

			if failOnUnresolved && result.Summary.UnresolvedCount() > 0 {
				return fmt.Errorf("%d unresolved packages", result.Summary.UnresolvedCount())
			}
			if failOnRejected && result.Summary.RejectedCount() > 0 {
				return fmt.Errorf("%d packages outside the accepted licenses", result.Summary.RejectedCount())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatAuto, "Output format: auto, json or table")
	cmd.Flags().BoolVar(&noRecord, "no-record", false, "Do not save this run to the store")
	cmd.Flags().BoolVar(&registries, "registries", false, "Look up declared licenses for PURL-only dependencies")
	cmd.Flags().BoolVar(&failOnUnresolved, "fail-on-unresolved", false, "Exit non-zero when any package is unresolved")
	cmd.Flags().BoolVar(&failOnRejected, "fail-on-rejected", false, "Exit non-zero when any package is outside licenses.accepted")
	return cmd
}

func printScanTable(cmd *cobra.Command, out scanOutput) {
	w := cmd.OutOrStdout()
	minimized := false
	for _, pkg := range out.Packages {
		if pkg.Minimized != nil || pkg.Rejected {
			minimized = true
			break
		}
	}

	headers := []string{"Package", "Version", "Licenses", "Status"}
	if minimized {
		headers = []string{"Package", "Version", "Licenses", "Minimized", "Status"}
	}
	rows := make([][]string, 0, len(out.Packages))
	for _, pkg := range out.Packages {
		row := []string{pkg.Name, pkg.Version, joinIdentifiers(pkg.Licenses)}
		if minimized {
			row = append(row, joinIdentifiers(pkg.Minimized))
		}
		rows = append(rows, append(row, packageStatus(pkg)))
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "No packages")
	} else {
		fmt.Fprint(w, renderTable(headers, rows, nil))
	}

	printSummary(cmd, out.Summary)
	if out.RunID != "" {
		fmt.Fprintf(w, "Run: %s\n", out.RunID)
	}
}

func printSummary(cmd *cobra.Command, s core.Summary) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Packages: %d  Unresolved: %d  Skipped: %d\n", s.Total, s.UnresolvedCount(), s.SkippedCount())
	for _, u := range s.Unresolved {
		fmt.Fprintf(w, "  unresolved %s: %s\n", u.PackageRef, strings.Join(u.Texts, ", "))
	}
	for _, sk := range s.Skipped {
		fmt.Fprintf(w, "  skipped %s: %s\n", sk.PackageRef, sk.Reason)
	}
	for _, r := range s.Rejected {
		fmt.Fprintf(w, "  rejected %s\n", r)
	}
}

func packageStatus(pkg core.Package) string {
	switch {
	case pkg.Unresolved:
		return "unresolved"
	case pkg.Rejected:
		return "rejected"
	default:
		return "ok"
	}
}

func joinIdentifiers(ids []core.Identifier) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ", ")
}
