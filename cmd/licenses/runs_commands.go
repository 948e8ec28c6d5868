package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/git-pkgs/licenses/internal/core"
	"github.com/git-pkgs/licenses/internal/store"
)

type runOutput struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Threshold  float64   `json:"threshold"`
	CorpusSize int       `json:"corpus_size"`
	Total      int       `json:"total"`
	Unresolved int       `json:"unresolved"`
	Skipped    int       `json:"skipped"`
	Inputs     []string  `json:"inputs,omitempty"`
}

type issueOutput struct {
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Detail  string `json:"detail,omitempty"`
}

type runDetailOutput struct {
	runOutput
	Packages []core.Package `json:"packages"`
	Issues   []issueOutput  `json:"issues"`
}

func newRunsCommand(ctx *commandContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded scan runs",
	}

	runsCmd.AddCommand(newRunsListCommand(ctx))
	runsCmd.AddCommand(newRunsShowCommand(ctx))
	runsCmd.AddCommand(newRunsPruneCommand(ctx))

	return runsCmd
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var (
		format string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := resolveFormat(cmd, format)
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(st *store.Store) error {
				runs, err := st.Runs(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if outFormat == formatJSON {
					out := make([]runOutput, 0, len(runs))
					for _, r := range runs {
						out = append(out, toRunOutput(r))
					}
					return writeJSON(cmd, out)
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, r := range runs {
					rows = append(rows, []string{
						shortID(r.ID),
						r.StartedAt.Local().Format(time.DateTime),
						r.Duration.Round(time.Millisecond).String(),
						strconv.Itoa(r.Total),
						strconv.Itoa(r.Unresolved),
						strconv.Itoa(r.Skipped),
						fmt.Sprintf("%.2f", r.Threshold),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Started", "Duration", "Packages", "Unresolved", "Skipped", "Threshold"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatAuto, "Output format: auto, json or table")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list (0 for all)")
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the packages and issues of a run",
		Long:  "Show a recorded run. Any unambiguous prefix of the run id is accepted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := resolveFormat(cmd, format)
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(st *store.Store) error {
				run, err := st.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if run == nil {
					return fmt.Errorf("run %s not found", args[0])
				}
				packages, err := st.RunPackages(cmd.Context(), run.ID)
				if err != nil {
					return err
				}
				issues, err := st.RunIssues(cmd.Context(), run.ID)
				if err != nil {
					return err
				}

				if outFormat == formatJSON {
					detail := runDetailOutput{
						runOutput: toRunOutput(*run),
						Packages:  packages,
						Issues:    make([]issueOutput, 0, len(issues)),
					}
					if detail.Packages == nil {
						detail.Packages = []core.Package{}
					}
					for _, issue := range issues {
						detail.Issues = append(detail.Issues, issueOutput(issue))
					}
					return writeJSON(cmd, detail)
				}
				printRunDetail(cmd, run, packages, issues)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatAuto, "Output format: auto, json or table")
	return cmd
}

func newRunsPruneCommand(ctx *commandContext) *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if keep < 0 {
				return fmt.Errorf("--keep must be zero or more, got %d", keep)
			}
			return ctx.withStore(cmd.Context(), func(st *store.Store) error {
				removed, err := st.PruneRuns(cmd.Context(), keep)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d run(s), kept up to %d\n", removed, keep)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 50, "Number of newest runs to keep")
	return cmd
}

func printRunDetail(cmd *cobra.Command, run *store.Run, packages []core.Package, issues []store.Issue) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:        %s\n", run.ID)
	fmt.Fprintf(out, "Started:    %s\n", run.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(out, "Duration:   %s\n", run.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "Threshold:  %.2f\n", run.Threshold)
	fmt.Fprintf(out, "Corpus:     %d license(s)\n", run.CorpusSize)
	if len(run.Inputs) > 0 {
		fmt.Fprintf(out, "Inputs:     %s\n", strings.Join(run.Inputs, ", "))
	}
	fmt.Fprintln(out)

	if len(packages) > 0 {
		rows := make([][]string, 0, len(packages))
		for _, pkg := range packages {
			rows = append(rows, []string{pkg.Name, pkg.Version, joinIdentifiers(pkg.Licenses), packageStatus(pkg)})
		}
		fmt.Fprint(out, renderTable([]string{"Package", "Version", "Licenses", "Status"}, rows, nil))
	}

	if len(issues) > 0 {
		rows := make([][]string, 0, len(issues))
		for _, issue := range issues {
			rows = append(rows, []string{issue.Kind, issue.Name, issue.Version, issue.Detail})
		}
		fmt.Fprint(out, renderTable([]string{"Issue", "Package", "Version", "Detail"}, rows, nil))
	}

	fmt.Fprintf(out, "Packages: %d  Unresolved: %d  Skipped: %d\n", run.Total, run.Unresolved, run.Skipped)
}

func toRunOutput(r store.Run) runOutput {
	return runOutput{
		ID:         r.ID,
		StartedAt:  r.StartedAt,
		DurationMS: r.Duration.Milliseconds(),
		Threshold:  r.Threshold,
		CorpusSize: r.CorpusSize,
		Total:      r.Total,
		Unresolved: r.Unresolved,
		Skipped:    r.Skipped,
		Inputs:     r.Inputs,
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
