package ingest

import (
	"context"
	"log/slog"

	"github.com/git-pkgs/licenses/internal/core"
	"github.com/git-pkgs/licenses/internal/logging"
)

// Resolver looks up the license expression each versioned PURL declares in
// its package registry.
type Resolver interface {
	DeclaredLicenses(ctx context.Context, purls []string) (map[string]string, map[string]error)
}

// RegistryResolver resolves through the registered ecosystem clients.
type RegistryResolver struct {
	Client      *core.Client
	Concurrency int
}

// DeclaredLicenses implements Resolver.
func (r RegistryResolver) DeclaredLicenses(ctx context.Context, purls []string) (map[string]string, map[string]error) {
	return core.BulkDeclaredLicensesWithConcurrency(ctx, purls, r.Client, r.Concurrency)
}

// Enrich fills known identifiers for dependencies that have a PURL but no
// declared license. Lookup failures are logged and leave the dependency as it
// was; only context cancellation is returned.
func Enrich(ctx context.Context, deps []core.Dependency, resolver Resolver, logger *slog.Logger) ([]core.Dependency, error) {
	logger = logging.Component(logger, "registry")

	var purls []string
	seen := make(map[string]struct{})
	for _, d := range deps {
		if d.PURL == "" || len(d.KnownIdentifiers) > 0 {
			continue
		}
		if _, ok := seen[d.PURL]; ok {
			continue
		}
		seen[d.PURL] = struct{}{}
		purls = append(purls, d.PURL)
	}
	if len(purls) == 0 {
		return deps, nil
	}

	declared, failures := resolver.DeclaredLicenses(ctx, purls)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for purl, err := range failures {
		logger.Warn("registry lookup failed", "purl", purl, "error", err)
	}

	out := make([]core.Dependency, len(deps))
	copy(out, deps)
	for i, d := range out {
		if d.PURL == "" || len(d.KnownIdentifiers) > 0 {
			continue
		}
		expr, ok := declared[d.PURL]
		if !ok {
			continue
		}
		ids, err := core.ParseExpression(expr)
		if err != nil {
			logger.Warn("unparseable declared license", "purl", d.PURL, "expression", expr, "error", err)
			continue
		}
		out[i].KnownIdentifiers = ids
		out[i].Expression = expr
		logger.Debug("declared license from registry", "purl", d.PURL, "licenses", ids)
	}
	return out, nil
}
