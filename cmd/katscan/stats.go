package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/katscan/pkg/store"
)

func (a *app) statsCmd() *cobra.Command {
	var sqlitePath string

	cmd := &cobra.Command{
		Use:   "stats [tick]",
		Short: "Show exported snapshots, or the trait value counts of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sqlitePath == "" {
				sqlitePath = a.cfg.Store.Path
			}
			st, err := store.Open(sqlitePath)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				snaps, err := st.Collections(ctx)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(snaps))
				for _, s := range snaps {
					rows = append(rows, []string{s.Info.Tick, strconv.Itoa(s.ItemCount), s.SavedAt.Format("2006-01-02 15:04:05")})
				}
				fmt.Fprintln(out, table.New().Border(lipgloss.NormalBorder()).Headers("TICK", "ITEMS", "SAVED").Rows(rows...).Render())
				return nil
			}

			tick := args[0]
			snap, err := st.Collection(ctx, tick)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no snapshot of %s in %s, run export first", tick, sqlitePath)
			}
			if err != nil {
				return err
			}
			counts, err := st.TraitCounts(ctx, tick)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "%s: %d items, saved %s\n", tick, snap.ItemCount, snap.SavedAt.Format("2006-01-02 15:04:05"))
			rows := make([][]string, 0, len(counts))
			for _, c := range counts {
				rows = append(rows, []string{c.Trait, c.Value, strconv.Itoa(c.Count)})
			}
			fmt.Fprintln(out, table.New().Border(lipgloss.NormalBorder()).Headers("TRAIT", "VALUE", "COUNT").Rows(rows...).Render())
			return nil
		},
	}

	cmd.Flags().StringVar(&sqlitePath, "sqlite", "", "snapshot database (default store.path from config)")
	return cmd
}
