package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/git-pkgs/licenses/internal/aggregate"
	"github.com/git-pkgs/licenses/internal/core"
)

// Issue kinds recorded in run_issues.
const (
	IssueUnresolved = "unresolved"
	IssueSkipped    = "skipped"
	IssueRejected   = "rejected"
)

// ErrAmbiguousRun is returned when a run id prefix matches more than one run.
var ErrAmbiguousRun = errors.New("run id prefix is ambiguous")

// RunMeta describes the settings a scan ran with.
type RunMeta struct {
	Threshold  float64
	CorpusSize int
	Inputs     []string
}

// Run is a stored scan summary.
type Run struct {
	ID         string
	StartedAt  time.Time
	Duration   time.Duration
	Threshold  float64
	CorpusSize int
	Total      int
	Unresolved int
	Skipped    int
	Inputs     []string
}

// Issue is one unresolved, skipped or rejected dependency from a stored run.
type Issue struct {
	Kind    string
	Name    string
	Version string
	Detail  string
}

// RecordRun stores a finished scan with its packages and issues and returns
// the new run.
func (s *Store) RecordRun(ctx context.Context, meta RunMeta, result *aggregate.Result) (*Run, error) {
	if result == nil {
		return nil, errors.New("run result is nil")
	}
	sum := result.Summary
	run := &Run{
		ID:         uuid.NewString(),
		StartedAt:  sum.StartedAt.UTC(),
		Duration:   sum.Duration,
		Threshold:  meta.Threshold,
		CorpusSize: meta.CorpusSize,
		Total:      sum.Total,
		Unresolved: sum.UnresolvedCount(),
		Skipped:    sum.SkippedCount(),
		Inputs:     append([]string(nil), meta.Inputs...),
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (id, started_at, duration_ms, threshold, corpus_size, total, unresolved, skipped, inputs)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, formatTime(run.StartedAt), run.Duration.Milliseconds(), run.Threshold,
			run.CorpusSize, run.Total, run.Unresolved, run.Skipped,
			nullableString(strings.Join(run.Inputs, "\n")),
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		pkgStmt, err := tx.PrepareContext(ctx,
			`INSERT INTO run_packages (run_id, name, version, purl, licenses, unresolved) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare package insert: %w", err)
		}
		defer pkgStmt.Close()
		for _, p := range result.Packages {
			licenses, err := encodeIdentifiers(p.Licenses)
			if err != nil {
				return err
			}
			if _, err := pkgStmt.ExecContext(ctx, run.ID, p.Name, p.Version, nullableString(p.PURL), licenses, boolToInt(p.Unresolved)); err != nil {
				return fmt.Errorf("insert package %s: %w", p.Key(), err)
			}
		}

		issueStmt, err := tx.PrepareContext(ctx,
			`INSERT INTO run_issues (run_id, kind, name, version, detail) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare issue insert: %w", err)
		}
		defer issueStmt.Close()
		for _, u := range sum.Unresolved {
			if _, err := issueStmt.ExecContext(ctx, run.ID, IssueUnresolved, u.Name, u.Version, nullableString(strings.Join(u.Texts, "\n"))); err != nil {
				return fmt.Errorf("insert issue %s: %w", u.PackageRef, err)
			}
		}
		for _, sk := range sum.Skipped {
			if _, err := issueStmt.ExecContext(ctx, run.ID, IssueSkipped, sk.Name, sk.Version, nullableString(sk.Reason)); err != nil {
				return fmt.Errorf("insert issue %s: %w", sk.PackageRef, err)
			}
		}
		for _, p := range result.Packages {
			if !p.Rejected {
				continue
			}
			detail := make([]string, len(p.Licenses))
			for i, id := range p.Licenses {
				detail[i] = id.String()
			}
			if _, err := issueStmt.ExecContext(ctx, run.ID, IssueRejected, p.Name, p.Version, nullableString(strings.Join(detail, " AND "))); err != nil {
				return fmt.Errorf("insert issue %s: %w", p.Key(), err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

const runColumns = "id, started_at, duration_ms, threshold, corpus_size, total, unresolved, skipped, inputs"

// Runs lists stored runs, newest first. A limit of zero or less returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// GetRun returns the run whose id starts with idPrefix, or nil when none
// matches.
func (s *Store) GetRun(ctx context.Context, idPrefix string) (*Run, error) {
	idPrefix = strings.TrimSpace(idPrefix)
	if idPrefix == "" {
		return nil, errors.New("run id is required")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE substr(id, 1, ?) = ? ORDER BY id LIMIT 2`,
		len(idPrefix), idPrefix,
	)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	defer rows.Close()

	var found []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousRun, idPrefix)
	}
}

// RunPackages returns the packages recorded for a run in result order.
func (s *Store) RunPackages(ctx context.Context, runID string) ([]core.Package, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, version, purl, licenses, unresolved FROM run_packages WHERE run_id = ? ORDER BY name, version`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list run packages: %w", err)
	}
	defer rows.Close()

	var out []core.Package
	for rows.Next() {
		var (
			p          core.Package
			purl       sql.NullString
			licenses   string
			unresolved int
		)
		if err := rows.Scan(&p.Name, &p.Version, &purl, &licenses, &unresolved); err != nil {
			return nil, fmt.Errorf("scan run package: %w", err)
		}
		if p.Licenses, err = decodeIdentifiers(licenses); err != nil {
			return nil, err
		}
		p.PURL = purl.String
		p.Unresolved = unresolved != 0
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run packages: %w", err)
	}
	return out, nil
}

// RunIssues returns the unresolved, skipped and rejected dependencies of a
// run.
func (s *Store) RunIssues(ctx context.Context, runID string) ([]Issue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, name, version, detail FROM run_issues WHERE run_id = ? ORDER BY kind DESC, name, version, id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list run issues: %w", err)
	}
	defer rows.Close()

	var out []Issue
	for rows.Next() {
		var (
			issue  Issue
			detail sql.NullString
		)
		if err := rows.Scan(&issue.Kind, &issue.Name, &issue.Version, &detail); err != nil {
			return nil, fmt.Errorf("scan run issue: %w", err)
		}
		issue.Detail = detail.String
		out = append(out, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run issues: %w", err)
	}
	return out, nil
}

// PruneRuns deletes all but the newest keep runs and returns how many were removed.
func (s *Store) PruneRuns(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.execWithRetry(ctx,
		`DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY started_at DESC, id LIMIT ?)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		r          Run
		startedRaw string
		durationMS int64
		inputs     sql.NullString
	)
	if err := scanner.Scan(&r.ID, &startedRaw, &durationMS, &r.Threshold, &r.CorpusSize,
		&r.Total, &r.Unresolved, &r.Skipped, &inputs); err != nil {
		return nil, err
	}
	started, err := parseTime(startedRaw)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	r.StartedAt = started
	r.Duration = time.Duration(durationMS) * time.Millisecond
	if inputs.String != "" {
		r.Inputs = strings.Split(inputs.String, "\n")
	}
	return &r, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
