// Package aggregate runs the license pipeline over a dependency set: every
// dependency is normalized, matched and reconciled on a bounded worker pool,
// then the records are merged and ordered.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/git-pkgs/licenses/internal/core"
	"github.com/git-pkgs/licenses/internal/corpus"
	"github.com/git-pkgs/licenses/internal/logging"
	"github.com/git-pkgs/licenses/internal/match"
	"github.com/git-pkgs/licenses/internal/normalize"
	"github.com/git-pkgs/licenses/internal/policy"
	"github.com/git-pkgs/licenses/internal/reconcile"
)

// Engine owns the shared read-only state of a run: corpus, matcher and
// normalizer. One engine can serve many runs.
type Engine struct {
	corpus     *corpus.Corpus
	matcher    *match.Matcher
	normalizer *normalize.Normalizer
	matchOpts  match.Options
	threshold  *float64
	policy     *policy.Policy
	workers    int
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds the number of dependencies processed concurrently.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithNormalizer replaces the default normalizer.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(e *Engine) {
		if n != nil {
			e.normalizer = n
		}
	}
}

// WithMatchOptions sets matcher options.
func WithMatchOptions(o match.Options) Option {
	return func(e *Engine) { e.matchOpts = o }
}

// WithThreshold sets the minimum match confidence on top of whatever matcher
// options are in effect. Values outside (0, 1] make New fail.
func WithThreshold(threshold float64) Option {
	return func(e *Engine) { e.threshold = &threshold }
}

// WithPolicy attaches an accepted license policy. Every package then carries
// a minimized license view alongside its full set.
func WithPolicy(p *policy.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithLogger sets the logger used for per-dependency warnings and the run summary.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New builds an engine over c. A nil or empty corpus fails with
// *core.CorpusLoadError before anything else happens.
func New(c *corpus.Corpus, opts ...Option) (*Engine, error) {
	if c.Len() == 0 {
		return nil, &core.CorpusLoadError{}
	}
	e := &Engine{
		corpus:     c,
		normalizer: normalize.New(nil),
		matchOpts:  match.DefaultOptions(),
		workers:    runtime.GOMAXPROCS(0),
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.threshold != nil {
		if t := *e.threshold; t <= 0 || t > 1 {
			return nil, fmt.Errorf("threshold must be in (0, 1], got %v", t)
		}
		e.matchOpts.Threshold = *e.threshold
	}
	m, err := match.New(c, e.matchOpts)
	if err != nil {
		return nil, err
	}
	e.matcher = m
	e.matchOpts = m.Options()
	e.logger = logging.Component(e.logger, "engine")
	return e, nil
}

// Corpus returns the corpus the engine matches against.
func (e *Engine) Corpus() *corpus.Corpus { return e.corpus }

// Matcher returns the engine's matcher.
func (e *Engine) Matcher() *match.Matcher { return e.matcher }

// Result is the output of a run.
type Result struct {
	Packages []core.Package `json:"packages"`
	Summary  core.Summary   `json:"summary"`
}

// Run is New followed by Engine.Run.
func Run(ctx context.Context, c *corpus.Corpus, deps []core.Dependency, opts ...Option) (*Result, error) {
	e, err := New(c, opts...)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, deps)
}

type slot struct {
	pkg core.Package
	err error
}

// Run processes deps and returns one package per distinct (name, version),
// ordered by name then version. Malformed dependencies are skipped and listed
// in the summary; the only errors returned are context cancellation.
func (e *Engine) Run(ctx context.Context, deps []core.Dependency) (*Result, error) {
	started := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slots := make([]slot, len(deps))
	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup

	for i := range deps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				slots[i].err = ctx.Err()
				return
			}
			if err := ctx.Err(); err != nil {
				slots[i].err = err
				return
			}
			slots[i].pkg, slots[i].err = e.process(ctx, deps[i])
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := gather(deps, slots)
	if e.policy != nil {
		e.applyPolicy(res)
	}
	res.Summary.StartedAt = started
	res.Summary.Duration = time.Since(started)

	for _, s := range res.Summary.Skipped {
		e.logger.Warn("skipped malformed dependency", "package", s.PackageRef.String(), "reason", s.Reason)
	}
	e.logger.Info("license scan complete",
		"packages", res.Summary.Total,
		"unresolved", res.Summary.UnresolvedCount(),
		"skipped", res.Summary.SkippedCount(),
		"rejected", res.Summary.RejectedCount(),
		"duration", res.Summary.Duration,
	)
	return res, nil
}

// applyPolicy fills the minimized view of every package. Packages no accepted
// choice satisfies are marked rejected and listed in the summary.
func (e *Engine) applyPolicy(res *Result) {
	for i := range res.Packages {
		pkg := &res.Packages[i]
		minimized, ok := e.policy.Minimize(*pkg)
		pkg.Minimized = minimized
		pkg.Rejected = !ok
		if !ok {
			res.Summary.Rejected = append(res.Summary.Rejected, pkg.Key())
			e.logger.Warn("license not accepted", "package", pkg.Key().String(), "licenses", pkg.Licenses)
		}
	}
}

func gather(deps []core.Dependency, slots []slot) *Result {
	res := &Result{}
	merged := make(map[core.PackageRef]core.Package, len(slots))
	var order []core.PackageRef

	for i, s := range slots {
		if s.err != nil {
			res.Summary.Skipped = append(res.Summary.Skipped, core.SkippedDependency{
				PackageRef: core.PackageRef{Name: deps[i].Name, Version: deps[i].Version},
				Reason:     s.err.Error(),
			})
			continue
		}
		key := s.pkg.Key()
		if existing, ok := merged[key]; ok {
			merged[key] = reconcile.Merge(existing, s.pkg)
			continue
		}
		merged[key] = s.pkg
		order = append(order, key)
	}

	sort.Slice(order, func(i, j int) bool { return order[i].Less(order[j]) })
	res.Packages = make([]core.Package, 0, len(order))
	for _, key := range order {
		pkg := merged[key]
		res.Packages = append(res.Packages, pkg)
		if pkg.Unresolved {
			res.Summary.Unresolved = append(res.Summary.Unresolved, core.UnresolvedPackage{
				PackageRef: key,
				Texts:      pkg.UnresolvedTexts,
			})
		}
	}
	sort.SliceStable(res.Summary.Skipped, func(i, j int) bool {
		a, b := res.Summary.Skipped[i], res.Summary.Skipped[j]
		if a.PackageRef != b.PackageRef {
			return a.PackageRef.Less(b.PackageRef)
		}
		return a.Reason < b.Reason
	})
	res.Summary.Total = len(res.Packages)
	return res
}

func (e *Engine) process(ctx context.Context, dep core.Dependency) (core.Package, error) {
	if err := dep.Validate(); err != nil {
		return core.Package{}, err
	}
	ref := core.PackageRef{Name: dep.Name, Version: dep.Version}.String()

	outcomes := make([]reconcile.Outcome, 0, len(dep.RawTexts))
	for _, text := range dep.RawTexts {
		if err := ctx.Err(); err != nil {
			return core.Package{}, err
		}
		o := e.Analyze(text)
		switch {
		case o.Err != nil:
			e.logger.Warn("license text is empty", "package", ref, "file", text.Label)
		case len(o.Candidates) == 0:
			e.logger.Warn("low confidence license detection",
				"package", ref, "file", text.Label, "score", o.Nearest, "threshold", e.matchOpts.Threshold)
		}
		if o.Truncated {
			e.logger.Warn("license text truncated", "package", ref, "file", text.Label, "max_tokens", e.matchOpts.MaxTokens)
		}
		outcomes = append(outcomes, o)
	}

	for _, id := range dep.KnownIdentifiers {
		if id.IsUnknown() {
			e.logger.Warn("package has unknown license", "package", ref)
			break
		}
	}

	return reconcile.Reconcile(dep, outcomes)
}

// Analyze normalizes and matches a single text.
func (e *Engine) Analyze(text core.LicenseText) reconcile.Outcome {
	o := reconcile.Outcome{Text: text}
	n, err := e.normalizer.Normalize(text)
	if err != nil {
		o.Err = err
		return o
	}
	a := e.matcher.Analyze(n.Text)
	o.Candidates = a.Candidates
	o.Truncated = a.Truncated
	if a.Nearest != nil {
		o.Nearest = a.Nearest.Confidence
	}
	return o
}
