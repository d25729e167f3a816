package pagination

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/katscan/pkg/collection"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Config holds batch fetcher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel page requests.
	MaxConcurrency int

	// Timeout per page fetch.
	Timeout time.Duration

	// OnProgress, if set, is called after each page with the number of
	// pages fetched so far and the total. It may be called concurrently.
	OnProgress func(fetched, total int)
}

// DefaultConfig returns a configuration suited to the public API.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        30 * time.Second,
	}
}

// Result is a fully fetched collection.
type Result struct {
	Items []collection.Item
	Info  *collection.Info

	// Meta is the metadata of page 1.
	Meta collection.PageMeta

	// Pages is the number of pages fetched.
	Pages int
}

// BatchFetcher fetches all pages of a collection from a PageDataSource.
type BatchFetcher struct {
	source collection.PageDataSource
	config Config
	logger zerolog.Logger
}

// NewBatchFetcher creates a new batch fetcher.
func NewBatchFetcher(source collection.PageDataSource, config Config) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &BatchFetcher{
		source: source,
		config: config,
		logger: log.With().Str("component", "batch-fetcher").Logger(),
	}
}

// WithSource returns a fetcher with the same configuration over source.
func (bf *BatchFetcher) WithSource(source collection.PageDataSource) *BatchFetcher {
	clone := *bf
	clone.source = source
	return &clone
}

// FetchAll fetches every page of tick with filters applied. The first error
// cancels the remaining fetches and is returned.
func (bf *BatchFetcher) FetchAll(ctx context.Context, tick string, filters collection.Filters) (*Result, error) {
	start := time.Now()

	first, err := bf.fetchPage(ctx, tick, 1, filters)
	if err != nil {
		batchFetchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch first page: %w", err)
	}

	totalPages := first.Meta.TotalPages
	if totalPages < 1 {
		totalPages = 1
	}

	bf.logger.Info().
		Str("tick", tick).
		Int("total_pages", totalPages).
		Msg("Starting parallel page fetch")

	pages := make([][]collection.Item, totalPages)
	pages[0] = first.Items

	var fetched atomic.Int32
	fetched.Store(1)
	bf.progress(1, totalPages)

	if totalPages > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(bf.config.MaxConcurrency)

		for page := 2; page <= totalPages; page++ {
			g.Go(func() error {
				p, err := bf.fetchPage(gctx, tick, page, filters)
				if err != nil {
					return fmt.Errorf("fetch page %d: %w", page, err)
				}
				pages[page-1] = p.Items

				n := int(fetched.Add(1))
				bf.progress(n, totalPages)
				if n%50 == 0 {
					bf.logger.Info().
						Int("fetched", n).
						Int("total", totalPages).
						Float64("progress_pct", float64(n)/float64(totalPages)*100).
						Msg("Fetch progress")
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			bf.logger.Warn().Err(err).Str("tick", tick).Msg("Batch fetch failed")
			batchFetchesTotal.WithLabelValues("error").Inc()
			return nil, err
		}
	}

	total := 0
	for _, items := range pages {
		total += len(items)
	}
	all := make([]collection.Item, 0, total)
	for _, items := range pages {
		all = append(all, items...)
	}

	batchFetchesTotal.WithLabelValues("success").Inc()
	batchPagesTotal.Add(float64(totalPages))
	batchDuration.Observe(time.Since(start).Seconds())

	bf.logger.Info().
		Str("tick", tick).
		Int("pages", totalPages).
		Int("items", len(all)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return &Result{
		Items: all,
		Info:  first.Info,
		Meta:  first.Meta,
		Pages: totalPages,
	}, nil
}

func (bf *BatchFetcher) fetchPage(ctx context.Context, tick string, page int, filters collection.Filters) (collection.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()
	return bf.source.FetchPage(ctx, tick, page, filters)
}

func (bf *BatchFetcher) progress(fetched, total int) {
	if bf.config.OnProgress != nil {
		bf.config.OnProgress(fetched, total)
	}
}
