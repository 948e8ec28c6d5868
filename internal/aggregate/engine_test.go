package aggregate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/git-pkgs/licenses/internal/core"
	"github.com/git-pkgs/licenses/internal/corpus"
	"github.com/git-pkgs/licenses/internal/logging"
	"github.com/git-pkgs/licenses/internal/match"
	"github.com/git-pkgs/licenses/internal/normalize"
)

func builtinText(t testing.TB, id string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "corpus", "builtin", id+".txt"))
	if err != nil {
		t.Fatalf("read builtin %s: %v", id, err)
	}
	return string(data)
}

func builtinCorpus(t testing.TB) *corpus.Corpus {
	t.Helper()
	c, err := corpus.Builtin()
	if err != nil {
		t.Fatalf("load builtin corpus: %v", err)
	}
	return c
}

func sampleDeps(t testing.TB) []core.Dependency {
	t.Helper()
	var deps []core.Dependency
	texts := []string{"MIT", "Apache-2.0", "BSD-3-Clause", "ISC", "Zlib"}
	for i := 0; i < 40; i++ {
		id := texts[i%len(texts)]
		deps = append(deps, core.Dependency{
			Name:     fmt.Sprintf("dep-%02d", (i*7)%40),
			Version:  "1.0.0",
			Source:   core.ScrapedRaw,
			RawTexts: []core.LicenseText{{Label: "LICENSE", Content: builtinText(t, id)}},
		})
	}
	deps = append(deps,
		core.Dependency{Name: "serde", Version: "1.0.197", KnownIdentifiers: []core.Identifier{"MIT", "Apache-2.0"}},
		core.Dependency{Name: "mystery", Version: "0.1.0", RawTexts: []core.LicenseText{{Label: "LICENSE", Content: "All use requires written consent from the vendor."}}},
		core.Dependency{Name: "broken", Version: "0.0.1"},
	)
	return deps
}

func TestRunDeterministicAcrossWorkerCounts(t *testing.T) {
	c := builtinCorpus(t)
	deps := sampleDeps(t)

	var outputs [][]byte
	for _, workers := range []int{1, 3, 16} {
		res, err := Run(context.Background(), c, deps, WithWorkers(workers))
		if err != nil {
			t.Fatalf("Run(workers=%d) failed: %v", workers, err)
		}
		b, err := json.Marshal(res.Packages)
		if err != nil {
			t.Fatal(err)
		}
		outputs = append(outputs, b)
	}
	for i := 1; i < len(outputs); i++ {
		if !bytes.Equal(outputs[0], outputs[i]) {
			t.Fatalf("run %d differs from run 0", i)
		}
	}
}

func TestRunOrdering(t *testing.T) {
	res, err := Run(context.Background(), builtinCorpus(t), sampleDeps(t))
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(res.Packages); i++ {
		if !res.Packages[i-1].Key().Less(res.Packages[i].Key()) {
			t.Fatalf("packages out of order at %d: %v then %v", i, res.Packages[i-1].Key(), res.Packages[i].Key())
		}
	}
	if res.Summary.Total != len(res.Packages) {
		t.Errorf("Total = %d, want %d", res.Summary.Total, len(res.Packages))
	}
}

func TestRunUnion(t *testing.T) {
	deps := []core.Dependency{{
		Name:             "dual",
		Version:          "2.0.0",
		KnownIdentifiers: []core.Identifier{"MIT"},
		RawTexts:         []core.LicenseText{{Label: "LICENSE-APACHE", Content: builtinText(t, "Apache-2.0")}},
	}}
	res, err := Run(context.Background(), builtinCorpus(t), deps)
	if err != nil {
		t.Fatal(err)
	}
	want := []core.Identifier{"Apache-2.0", "MIT"}
	if len(res.Packages) != 1 || !reflect.DeepEqual(res.Packages[0].Licenses, want) {
		t.Fatalf("Packages = %+v, want licenses %v", res.Packages, want)
	}
	if res.Packages[0].Unresolved {
		t.Error("package should be resolved")
	}
}

func TestRunDeduplicates(t *testing.T) {
	deps := []core.Dependency{{
		Name:             "left-pad",
		Version:          "1.3.0",
		KnownIdentifiers: []core.Identifier{"MIT"},
		RawTexts:         []core.LicenseText{{Label: "LICENSE", Content: builtinText(t, "MIT")}},
	}}
	res, err := Run(context.Background(), builtinCorpus(t), deps)
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Packages[0].Licenses; !reflect.DeepEqual(got, []core.Identifier{"MIT"}) {
		t.Errorf("Licenses = %v, want [MIT]", got)
	}
}

func TestRunMultiLicenseBlob(t *testing.T) {
	deps := []core.Dependency{{
		Name:     "vendored",
		Version:  "0.3.0",
		RawTexts: []core.LicenseText{{Label: "COPYING", Content: builtinText(t, "MIT") + "\n\n" + builtinText(t, "BSD-3-Clause")}},
	}}
	res, err := Run(context.Background(), builtinCorpus(t), deps)
	if err != nil {
		t.Fatal(err)
	}
	want := []core.Identifier{"BSD-3-Clause", "MIT"}
	if got := res.Packages[0].Licenses; !reflect.DeepEqual(got, want) {
		t.Errorf("Licenses = %v, want %v", got, want)
	}
}

func TestRunSkipsMalformed(t *testing.T) {
	deps := []core.Dependency{
		{Name: "ok", Version: "1.0.0", KnownIdentifiers: []core.Identifier{"MIT"}},
		{Name: "broken", Version: "0.0.1"},
	}
	res, err := Run(context.Background(), builtinCorpus(t), deps)
	if err != nil {
		t.Fatal(err)
	}
	if res.Summary.SkippedCount() != 1 {
		t.Fatalf("SkippedCount = %d, want 1", res.Summary.SkippedCount())
	}
	if res.Summary.Skipped[0].Name != "broken" || res.Summary.Skipped[0].Version != "0.0.1" {
		t.Errorf("skipped = %+v", res.Summary.Skipped[0])
	}
	for _, p := range res.Packages {
		if p.Name == "broken" {
			t.Error("malformed dependency must not produce a package")
		}
	}
	if len(res.Packages) != 1 {
		t.Errorf("expected 1 package, got %d", len(res.Packages))
	}
}

func TestRunUnresolvedSummary(t *testing.T) {
	deps := []core.Dependency{
		{Name: "mystery", Version: "0.1.0", RawTexts: []core.LicenseText{{Label: "LICENSE.txt", Content: "Proprietary. Do not redistribute."}}},
		{Name: "blank", Version: "2.0.0", KnownIdentifiers: []core.Identifier{"ISC"}, RawTexts: []core.LicenseText{{Label: "NOTICE", Content: "\n\n"}}},
		{Name: "declared", Version: "3.0.0", KnownIdentifiers: []core.Identifier{core.Unknown}},
	}
	res, err := Run(context.Background(), builtinCorpus(t), deps)
	if err != nil {
		t.Fatal(err)
	}
	if res.Summary.UnresolvedCount() != 3 {
		t.Fatalf("UnresolvedCount = %d, want 3: %+v", res.Summary.UnresolvedCount(), res.Summary.Unresolved)
	}
	got := res.Summary.Unresolved[1]
	if got.Name != "declared" || got.Version != "3.0.0" {
		t.Errorf("unresolved entries should be ordered by name, got %+v", res.Summary.Unresolved)
	}
	mystery := res.Summary.Unresolved[2]
	if !reflect.DeepEqual(mystery.Texts, []string{"LICENSE.txt"}) {
		t.Errorf("mystery texts = %v", mystery.Texts)
	}
}

func TestRunMergesSources(t *testing.T) {
	deps := []core.Dependency{
		{Name: "zlib", Version: "1.3.1", Source: core.ManifestDeclared, KnownIdentifiers: []core.Identifier{"Zlib"}},
		{Name: "zlib", Version: "1.3.1", Source: core.ScrapedRaw, PURL: "pkg:generic/zlib@1.3.1",
			RawTexts: []core.LicenseText{{Label: "LICENSE", Content: builtinText(t, "Zlib")}, {Label: "contrib/LICENSE", Content: builtinText(t, "MIT")}}},
		{Name: "zlib", Version: "1.2.13", KnownIdentifiers: []core.Identifier{"Zlib"}},
	}
	res, err := Run(context.Background(), builtinCorpus(t), deps)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Packages) != 2 {
		t.Fatalf("expected 2 packages, got %+v", res.Packages)
	}
	p := res.Packages[1]
	if p.Version != "1.3.1" || !reflect.DeepEqual(p.Licenses, []core.Identifier{"MIT", "Zlib"}) {
		t.Errorf("merged package = %+v", p)
	}
	if p.PURL != "pkg:generic/zlib@1.3.1" {
		t.Errorf("PURL = %q", p.PURL)
	}
}

func TestRunThresholdBoundary(t *testing.T) {
	c := builtinCorpus(t)
	content := strings.Replace(builtinText(t, "ISC"), "modify, and/or distribute", "modify or redistribute", 1)

	n, err := normalize.New(nil).Normalize(core.LicenseText{Content: content})
	if err != nil {
		t.Fatal(err)
	}
	scorer, err := match.New(c, match.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	score, _ := scorer.Score(n.Text, "ISC")
	if score >= 1 || score <= 0.5 {
		t.Fatalf("edited ISC should score strictly between 0.5 and 1, got %v", score)
	}

	deps := []core.Dependency{{Name: "edge", Version: "1.0.0", RawTexts: []core.LicenseText{{Label: "LICENSE", Content: content}}}}

	res, err := Run(context.Background(), c, deps, WithMatchOptions(match.Options{Threshold: score}))
	if err != nil {
		t.Fatal(err)
	}
	if p := res.Packages[0]; p.Unresolved || !p.HasLicense("ISC") {
		t.Errorf("at threshold: %+v", p)
	}

	res, err = Run(context.Background(), c, deps, WithMatchOptions(match.Options{Threshold: math.Nextafter(score, 1)}))
	if err != nil {
		t.Fatal(err)
	}
	if p := res.Packages[0]; !p.Unresolved || p.HasLicense("ISC") {
		t.Errorf("just above threshold: %+v", p)
	}
}

func TestEmptyCorpus(t *testing.T) {
	deps := []core.Dependency{{Name: "a", KnownIdentifiers: []core.Identifier{"MIT"}}}

	_, err := Run(context.Background(), nil, deps)
	var loadErr *core.CorpusLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected CorpusLoadError, got %v", err)
	}

	if _, err := New(&corpus.Corpus{}); !core.IsCorpusLoad(err) {
		t.Errorf("zero corpus: expected CorpusLoadError, got %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, builtinCorpus(t), sampleDeps(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunLogsWarnings(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "warn", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}
	deps := []core.Dependency{
		{Name: "mystery", Version: "0.1.0", RawTexts: []core.LicenseText{{Label: "LICENSE", Content: "Proprietary terms."}}},
		{Name: "declared", Version: "1.0.0", KnownIdentifiers: []core.Identifier{core.Unknown}},
	}
	if _, err := Run(context.Background(), builtinCorpus(t), deps, WithLogger(logger)); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"low confidence license detection", "package has unknown license", "engine:"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in log output:\n%s", want, out)
		}
	}
}

func BenchmarkRun(b *testing.B) {
	c := builtinCorpus(b)
	deps := sampleDeps(b)
	e, err := New(c)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Run(context.Background(), deps); err != nil {
			b.Fatal(err)
		}
	}
}
