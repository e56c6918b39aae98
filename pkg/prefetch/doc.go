// Package prefetch fetches a list of URLs in parallel with a bounded worker pool.
//
// It backs the all-or-nothing store seeding used at install time and by the
// CACHE_URLS message: every URL is fetched and fully read before anything is
// written, and the first failure cancels the remaining fetches.
//
// # Usage
//
//	fetcher := prefetch.NewBatchFetcher(networkClient, prefetch.DefaultConfig())
//	results, err := fetcher.FetchAll(ctx, []string{
//		"http://localhost:8080/",
//		"http://localhost:8080/index.html",
//	})
//	if err != nil {
//		var uerr *prefetch.URLError
//		if errors.As(err, &uerr) {
//			log.Printf("install aborted by %s", uerr.URL)
//		}
//	}
//
// Results are returned in the order of the input list.
package prefetch
