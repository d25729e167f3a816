// Package pagination fetches every page of a collection in parallel.
//
// Page 1 is fetched first to learn the page count; pages 2..N are then
// fetched by a bounded pool of goroutines, each with its own timeout. Items
// are assembled in page order and any page failure fails the whole batch.
//
// # Usage
//
//	fetcher := pagination.NewBatchFetcher(client, pagination.DefaultConfig())
//	result, err := fetcher.FetchAll(ctx, "KASPUNKS", nil)
//	if err != nil {
//		return err
//	}
//	fmt.Println(len(result.Items), "items in", result.Pages, "pages")
//
// # Tuning
//
// MaxConcurrency bounds parallel page requests. Upstream pacing still
// applies per request through the client's rate limiter, so raising it
// beyond the limiter's burst only queues goroutines.
package pagination
