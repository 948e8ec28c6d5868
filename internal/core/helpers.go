package core

import (
	"context"
	"sync"
)

const defaultConcurrency = 15

// BulkDeclaredLicenses looks up declared licenses for multiple versioned PURLs in parallel.
// Individual lookup errors are collected per PURL rather than failing the batch.
// Returns a map of PURL to declared license expression and a map of PURL to error.
func BulkDeclaredLicenses(ctx context.Context, purls []string, client *Client) (map[string]string, map[string]error) {
	return BulkDeclaredLicensesWithConcurrency(ctx, purls, client, defaultConcurrency)
}

// BulkDeclaredLicensesWithConcurrency is BulkDeclaredLicenses with a custom concurrency limit.
func BulkDeclaredLicensesWithConcurrency(ctx context.Context, purls []string, client *Client, concurrency int) (map[string]string, map[string]error) {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	results := make(map[string]string)
	failures := make(map[string]error)
	var mu sync.Mutex
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, purl := range purls {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				failures[p] = ctx.Err()
				mu.Unlock()
				return
			}

			lic, err := DeclaredLicenseFromPURL(ctx, p, client)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[p] = err
				return
			}
			if lic != "" {
				results[p] = lic
			}
		}(purl)
	}

	wg.Wait()
	return results, failures
}
