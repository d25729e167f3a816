package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/katscan/pkg/collection"
)

func (a *app) facetsCmd() *cobra.Command {
	var (
		pages   int
		filters map[string]string
	)

	cmd := &cobra.Command{
		Use:   "facets <tick>",
		Short: "Print the trait values found in the first pages of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if pages < 1 {
				return fmt.Errorf("--pages must be >= 1 (got %d)", pages)
			}
			ctx := cmd.Context()
			tick := args[0]

			p := collection.New(a.api, collection.WithLogger(a.logger))
			p.Initialize(ctx, tick)
			if len(filters) > 0 && p.State().FetchState == collection.Idle {
				known := p.KnownTraits()
				for trait := range filters {
					if !slices.Contains(known, trait) {
						return fmt.Errorf("unknown trait %q (known: %s)", trait, strings.Join(known, ", "))
					}
				}
				p.SetFilters(ctx, collection.Filters(filters))
			}
			for loaded := 1; loaded < pages; loaded++ {
				if st := p.State(); st.FetchState != collection.Idle || !st.HasMore() {
					break
				}
				p.LoadMore(ctx)
			}

			st := p.State()
			if st.FetchState == collection.Error {
				return fmt.Errorf("load %s: %s", tick, st.LastError)
			}

			out := cmd.OutOrStdout()
			loadedPages, totalPages := 0, 0
			if st.Pagination != nil {
				loadedPages, totalPages = st.Pagination.CurrentPage, st.Pagination.TotalPages
			}
			fmt.Fprintf(out, "%s: %d items from %d of %d pages\n", tick, len(st.Items), loadedPages, totalPages)
			for _, f := range p.Facets() {
				fmt.Fprintf(out, "%s (%d): %s\n", f.Trait, len(f.Values), strings.Join(f.Values, ", "))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&pages, "pages", 1, "number of pages to load")
	cmd.Flags().StringToStringVar(&filters, "filter", nil, "trait filter, e.g. --filter Background=Teal")
	return cmd
}
