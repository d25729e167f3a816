package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/katscan/pkg/collection"
	"github.com/Sternrassler/katscan/pkg/pagination"
	"github.com/Sternrassler/katscan/pkg/store"
)

func (a *app) exportCmd() *cobra.Command {
	var (
		sqlitePath string
		asJSON     bool
		quiet      bool
		filters    map[string]string
	)

	cmd := &cobra.Command{
		Use:   "export <tick>",
		Short: "Fetch every page of a collection into SQLite or as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sqlitePath == "" && !asJSON {
				return fmt.Errorf("one of --sqlite or --json is required")
			}
			ctx := cmd.Context()
			tick := args[0]
			stderr := cmd.ErrOrStderr()

			batchCfg := a.cfg.BatchConfig()
			if !quiet {
				batchCfg.OnProgress = progressPrinter(stderr)
			}
			result, err := pagination.NewBatchFetcher(a.api, batchCfg).FetchAll(ctx, tick, collection.Filters(filters))
			if !quiet {
				fmt.Fprintln(stderr)
			}
			if err != nil {
				return fmt.Errorf("export %s: %w", tick, err)
			}

			if sqlitePath != "" {
				st, err := store.Open(sqlitePath)
				if err != nil {
					return err
				}
				defer st.Close()

				info := collection.Info{Tick: tick}
				if result.Info != nil {
					info = *result.Info
				}
				if err := st.SaveCollection(ctx, info, result.Items); err != nil {
					return err
				}
				fmt.Fprintf(stderr, "saved %d items of %s to %s\n", len(result.Items), tick, sqlitePath)
			}

			if asJSON {
				items := result.Items
				if items == nil {
					items = []collection.Item{}
				}
				return writeJSON(cmd.OutOrStdout(), items)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sqlitePath, "sqlite", "", "write a snapshot to this SQLite database")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the items as JSON on stdout")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print progress")
	cmd.Flags().StringToStringVar(&filters, "filter", nil, "trait filter, e.g. --filter Background=Teal")
	return cmd
}

// progressPrinter returns a batch progress callback. The fetcher calls it
// from several goroutines.
func progressPrinter(w io.Writer) func(fetched, total int) {
	var mu sync.Mutex
	return func(fetched, total int) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "\rfetched %d/%d pages", fetched, total)
	}
}
