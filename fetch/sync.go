package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/git-pkgs/licenses/internal/corpus"
	"github.com/git-pkgs/licenses/internal/logging"
)

// etagFileName caches detail ETags between syncs. Dotfiles are ignored by
// the corpus loader.
const etagFileName = ".licenses.etags"

// DefaultSyncConcurrency bounds parallel detail downloads.
const DefaultSyncConcurrency = 8

// SyncOptions configures Sync.
type SyncOptions struct {
	Resolver          *Resolver // nil uses DefaultBaseURL
	IncludeDeprecated bool
	Concurrency       int
	LockTimeout       time.Duration // zero waits until ctx is done
	Logger            *slog.Logger
}

// SyncReport summarises a sync.
type SyncReport struct {
	ListVersion string
	Written     []string
	Unchanged   []string
	Failed      map[string]error
}

// Sync downloads the SPDX index and the detail documents for ids (every
// listed license when ids is empty) into dir, in the layout corpus.LoadDir
// reads. It holds the corpus directory lock exclusively while writing, and
// each file is replaced atomically. Per-license failures are collected in the
// report; Sync fails only when the index cannot be fetched, no detail could
// be stored, or ctx ends.
func Sync(ctx context.Context, g Getter, dir string, ids []string, opts SyncOptions) (*SyncReport, error) {
	logger := logging.Component(opts.Logger, "sync")
	resolver := opts.Resolver
	if resolver == nil {
		resolver = NewResolver("")
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultSyncConcurrency
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create corpus directory: %w", err)
	}

	unlock, err := lockDir(ctx, dir, opts.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer unlock()

	index, raw, err := resolver.FetchIndex(ctx, g)
	if err != nil {
		return nil, err
	}
	entries, err := resolver.Select(index, ids, opts.IncludeDeprecated)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(dir, corpus.IndexFileName, raw); err != nil {
		return nil, err
	}
	logger.Info("syncing license texts",
		"list_version", index.Version,
		"licenses", len(entries),
		"source", resolver.BaseURL(),
	)

	etags := loadETags(dir)
	report := &SyncReport{ListVersion: index.Version, Failed: make(map[string]error)}
	var mu sync.Mutex

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)
	for _, entry := range entries {
		group.Go(func() error {
			id := entry.LicenseID
			etag := ""
			if _, err := os.Stat(filepath.Join(dir, id+".json")); err == nil {
				mu.Lock()
				etag = etags[id]
				mu.Unlock()
			}

			newTag, err := syncDetails(gctx, g, resolver, dir, id, etag)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrNotModified):
				report.Unchanged = append(report.Unchanged, id)
			case err != nil:
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				report.Failed[id] = err
				logger.Warn("license details not synced", "license", id, "error", err)
			default:
				report.Written = append(report.Written, id)
				if newTag != "" {
					etags[id] = newTag
				} else {
					delete(etags, id)
				}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(report.Written)
	sort.Strings(report.Unchanged)
	if err := saveETags(dir, etags); err != nil {
		logger.Warn("etag cache not saved", "error", err)
	}

	if len(report.Written)+len(report.Unchanged) == 0 {
		return report, fmt.Errorf("no license details stored in %s (%d failed)", dir, len(report.Failed))
	}
	logger.Info("license sync complete",
		"written", len(report.Written),
		"unchanged", len(report.Unchanged),
		"failed", len(report.Failed),
	)
	return report, nil
}

func syncDetails(ctx context.Context, g Getter, resolver *Resolver, dir, id, etag string) (string, error) {
	doc, err := g.FetchIfChanged(ctx, resolver.DetailsURL(id), etag)
	if err != nil {
		return "", err
	}
	defer func() { _ = doc.Body.Close() }()

	data, err := io.ReadAll(doc.Body)
	if err != nil {
		return "", fmt.Errorf("read details: %w", err)
	}
	var details corpus.Details
	if err := json.Unmarshal(data, &details); err != nil {
		return "", fmt.Errorf("decode details: %w", err)
	}
	if strings.TrimSpace(details.LicenseText) == "" {
		return "", errors.New("details carry no license text")
	}
	if err := writeFileAtomic(dir, id+".json", data); err != nil {
		return "", err
	}
	return doc.ETag, nil
}

func lockDir(ctx context.Context, dir string, timeout time.Duration) (func(), error) {
	lock := flock.New(filepath.Join(dir, corpus.LockFileName))
	lockCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	locked, err := lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("lock corpus directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("lock corpus directory %s: held by another process", dir)
	}
	return func() { _ = lock.Unlock() }, nil
}

// writeFileAtomic replaces dir/name through a temporary file in dir.
func writeFileAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

func loadETags(dir string) map[string]string {
	etags := make(map[string]string)
	data, err := os.ReadFile(filepath.Join(dir, etagFileName))
	if err != nil {
		return etags
	}
	_ = json.Unmarshal(data, &etags)
	return etags
}

func saveETags(dir string, etags map[string]string) error {
	data, err := json.MarshalIndent(etags, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(dir, etagFileName, data)
}
