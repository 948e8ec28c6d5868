package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/git-pkgs/licenses/internal/core"
	"github.com/git-pkgs/licenses/internal/store"
)

type overrideOutput struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Licenses  []core.Identifier `json:"licenses"`
	Note      string            `json:"note,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func newOverrideCommand(ctx *commandContext) *cobra.Command {
	overrideCmd := &cobra.Command{
		Use:   "override",
		Short: "Manage manual license classifications",
		Long: `Overrides record a human classification for a package whose license texts
the matcher cannot identify. They replace the package's evidence on every
later scan.`,
	}

	overrideCmd.AddCommand(newOverrideSetCommand(ctx))
	overrideCmd.AddCommand(newOverrideListCommand(ctx))
	overrideCmd.AddCommand(newOverrideRemoveCommand(ctx))

	return overrideCmd
}

func newOverrideSetCommand(ctx *commandContext) *cobra.Command {
	var version, note string

	cmd := &cobra.Command{
		Use:   "set <package> <license-expression>",
		Short: "Classify a package manually",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := core.ParseExpression(args[1])
			if err != nil {
				return fmt.Errorf("license expression %q: %w", args[1], err)
			}
			if len(ids) == 0 {
				return fmt.Errorf("license expression is empty")
			}
			return ctx.withStore(cmd.Context(), func(st *store.Store) error {
				saved, err := st.SetOverride(cmd.Context(), store.Override{
					Name:        args[0],
					Version:     version,
					Identifiers: ids,
					Note:        note,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Override saved: %s %s -> %s\n", saved.Name, saved.Version, joinIdentifiers(saved.Identifiers))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "Package version (default every version)")
	cmd.Flags().StringVar(&note, "note", "", "Why this classification was made")
	return cmd
}

func newOverrideListCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List manual classifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := resolveFormat(cmd, format)
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(st *store.Store) error {
				overrides, err := st.Overrides(cmd.Context())
				if err != nil {
					return err
				}
				if outFormat == formatJSON {
					out := make([]overrideOutput, 0, len(overrides))
					for _, o := range overrides {
						out = append(out, overrideOutput{
							Name:      o.Name,
							Version:   o.Version,
							Licenses:  o.Identifiers,
							Note:      o.Note,
							UpdatedAt: o.UpdatedAt,
						})
					}
					return writeJSON(cmd, out)
				}
				if len(overrides) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No overrides")
					return nil
				}
				rows := make([][]string, 0, len(overrides))
				for _, o := range overrides {
					rows = append(rows, []string{
						o.Name,
						o.Version,
						joinIdentifiers(o.Identifiers),
						o.Note,
						o.UpdatedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Package", "Version", "Licenses", "Note", "Updated"}, rows, nil))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatAuto, "Output format: auto, json or table")
	return cmd
}

func newOverrideRemoveCommand(ctx *commandContext) *cobra.Command {
	var version string

	cmd := &cobra.Command{
		Use:     "rm <package>",
		Aliases: []string{"remove"},
		Short:   "Remove a manual classification",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(st *store.Store) error {
				removed, err := st.RemoveOverride(cmd.Context(), strings.TrimSpace(args[0]), strings.TrimSpace(version))
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("no override for %s", describeOverride(args[0], version))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Override removed: %s\n", describeOverride(args[0], version))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "Package version (default the every-version override)")
	return cmd
}

func describeOverride(name, version string) string {
	if strings.TrimSpace(version) == "" {
		return name + " (all versions)"
	}
	return name + " " + version
}
