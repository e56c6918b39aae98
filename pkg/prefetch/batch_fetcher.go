package prefetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrBadStatus indicates a fetch completed with a non-2xx status.
var ErrBadStatus = errors.New("unsuccessful status")

// Config holds batch fetcher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel fetches.
	MaxConcurrency int

	// Timeout per URL fetch.
	Timeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
	}
}

// Doer performs a single HTTP request.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result is one fully read response.
type Result struct {
	URL    string
	Status int
	Header http.Header
	Body   []byte
}

// URLError reports which URL aborted a batch.
type URLError struct {
	URL string
	Err error
}

func (e *URLError) Error() string {
	return fmt.Sprintf("prefetch %s: %v", e.URL, e.Err)
}

func (e *URLError) Unwrap() error {
	return e.Err
}

type job struct {
	index int
	url   string
}

type outcome struct {
	index  int
	result Result
	err    error
}

// BatchFetcher fetches URL lists with a worker pool.
type BatchFetcher struct {
	doer   Doer
	config Config
}

// NewBatchFetcher creates a new batch fetcher.
func NewBatchFetcher(doer Doer, config Config) *BatchFetcher {
	if doer == nil {
		panic("doer cannot be nil")
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &BatchFetcher{
		doer:   doer,
		config: config,
	}
}

// FetchAll fetches every URL and returns the results in input order.
// A transport error or a non-2xx status on any URL cancels the remaining
// fetches and returns a *URLError; no partial results are returned.
func (bf *BatchFetcher) FetchAll(ctx context.Context, urls []string) ([]Result, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan job, len(urls))
	outcomes := make(chan outcome, len(urls))

	for i, u := range urls {
		jobs <- job{index: i, url: u}
	}
	close(jobs)

	workers := bf.config.MaxConcurrency
	if workers > len(urls) {
		workers = len(urls)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go bf.worker(ctx, jobs, outcomes, &wg, i)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	results := make([]Result, len(urls))
	var firstErr error
	firstIndex := len(urls)
	fetched := 0

	for o := range outcomes {
		if o.err != nil {
			// report the earliest failing URL in list order
			if o.index < firstIndex {
				firstIndex = o.index
				firstErr = &URLError{URL: urls[o.index], Err: o.err}
			}
			cancel()
			continue
		}
		results[o.index] = o.result
		fetched++
	}

	if firstErr == nil && fetched < len(urls) {
		// workers stopped on parent context cancellation
		firstErr = ctx.Err()
	}
	if firstErr != nil {
		log.Warn().
			Err(firstErr).
			Int("fetched", fetched).
			Int("total", len(urls)).
			Msg("Prefetch aborted")
		return nil, firstErr
	}

	log.Debug().
		Int("urls", len(urls)).
		Dur("duration", time.Since(start)).
		Msg("Prefetch complete")

	return results, nil
}

// worker processes URLs from the queue.
func (bf *BatchFetcher) worker(ctx context.Context, jobs <-chan job, outcomes chan<- outcome, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for j := range jobs {
		select {
		case <-ctx.Done():
			log.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		res, err := bf.fetch(ctx, j.url)
		outcomes <- outcome{index: j.index, result: res, err: err}
	}
}

func (bf *BatchFetcher) fetch(ctx context.Context, url string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := bf.doer.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	return Result{
		URL:    url,
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}, nil
}
