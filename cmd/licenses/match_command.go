package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/git-pkgs/licenses/internal/core"
	"github.com/git-pkgs/licenses/internal/normalize"
)

// sourceTypes guesses a comment-marker source type from a file extension.
var sourceTypes = map[string]string{
	".c":    "c",
	".h":    "c",
	".cc":   "cpp",
	".cpp":  "cpp",
	".hpp":  "cpp",
	".go":   "go",
	".java": "java",
	".js":   "js",
	".ts":   "js",
	".rs":   "rust",
	".py":   "python",
	".rb":   "ruby",
	".sh":   "shell",
	".html": "html",
	".xml":  "xml",
	".el":   "lisp",
	".sql":  "sql",
}

type matchScore struct {
	Identifier core.Identifier `json:"identifier"`
	Confidence float64         `json:"confidence"`
}

type matchOutput struct {
	File       string                `json:"file"`
	SourceType string                `json:"source_type,omitempty"`
	Threshold  float64               `json:"threshold"`
	Candidates []core.MatchCandidate `json:"candidates"`
	Nearest    float64               `json:"nearest"`
	Truncated  bool                  `json:"truncated,omitempty"`
	Scores     []matchScore          `json:"scores,omitempty"`
}

func newMatchCommand(ctx *commandContext) *cobra.Command {
	var (
		format     string
		sourceType string
		allScores  bool
	)

	cmd := &cobra.Command{
		Use:   "match <file>",
		Short: "Match a single license file against the corpus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			outFormat, err := resolveFormat(cmd, format)
			if err != nil {
				return err
			}

			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			if sourceType == "" {
				sourceType = sourceTypes[strings.ToLower(filepath.Ext(path))]
			}

			engine, err := ctx.newEngine()
			if err != nil {
				return err
			}
			text := core.LicenseText{Label: path, Content: string(data), SourceType: sourceType}
			outcome := engine.Analyze(text)
			if outcome.Err != nil {
				return outcome.Err
			}

			out := matchOutput{
				File:       path,
				SourceType: sourceType,
				Threshold:  engine.Matcher().Options().Threshold,
				Candidates: outcome.Candidates,
				Nearest:    outcome.Nearest,
				Truncated:  outcome.Truncated,
			}
			if allScores {
				normalized, err := normalize.New(cfg.Normalizer.CommentMarkers).Normalize(text)
				if err != nil {
					return err
				}
				for _, id := range engine.Corpus().IDs() {
					score, _ := engine.Matcher().Score(normalized.Text, id)
					if score > 0 {
						out.Scores = append(out.Scores, matchScore{Identifier: id, Confidence: score})
					}
				}
				sort.SliceStable(out.Scores, func(i, j int) bool {
					return out.Scores[i].Confidence > out.Scores[j].Confidence
				})
			}

			if outFormat == formatJSON {
				return writeJSON(cmd, out)
			}
			printMatchTable(cmd, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatAuto, "Output format: auto, json or table")
	cmd.Flags().StringVarP(&sourceType, "type", "t", "", "Source type selecting the comment markers to strip (default from extension)")
	cmd.Flags().BoolVar(&allScores, "scores", false, "Show the score of every corpus entry sharing text with the file")
	return cmd
}

func printMatchTable(cmd *cobra.Command, out matchOutput) {
	w := cmd.OutOrStdout()
	if len(out.Candidates) == 0 {
		fmt.Fprintf(w, "No license matched at threshold %.2f (best score %.3f)\n", out.Threshold, out.Nearest)
	} else {
		rows := make([][]string, 0, len(out.Candidates))
		for _, c := range out.Candidates {
			span := "-"
			if c.Span != nil {
				span = fmt.Sprintf("%d-%d", c.Span.Start, c.Span.End)
			}
			rows = append(rows, []string{c.Identifier.String(), fmt.Sprintf("%.3f", c.Confidence), span})
		}
		fmt.Fprint(w, renderTable([]string{"License", "Confidence", "Span"}, rows, []columnAlignment{alignLeft, alignRight, alignRight}))
	}
	if out.Truncated {
		fmt.Fprintln(w, "Text was truncated to matching.max_tokens before matching")
	}
	if len(out.Scores) > 0 {
		rows := make([][]string, 0, len(out.Scores))
		for _, s := range out.Scores {
			rows = append(rows, []string{s.Identifier.String(), fmt.Sprintf("%.3f", s.Confidence)})
		}
		fmt.Fprint(w, renderTable([]string{"Corpus entry", "Score"}, rows, []columnAlignment{alignLeft, alignRight}))
	}
}
