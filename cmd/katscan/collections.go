package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

func (a *app) collectionsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "collections",
		Short: "List the collections KatAPI knows about",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := a.api.ListCollections(cmd.Context())
			if err != nil {
				return fmt.Errorf("list collections: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), infos)
			}

			rows := make([][]string, 0, len(infos))
			for _, info := range infos {
				rows = append(rows, []string{
					info.Tick,
					strconv.Itoa(info.Minted),
					strconv.Itoa(info.Max),
					info.State,
				})
			}
			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("TICK", "MINTED", "MAX", "STATE").
				Rows(rows...)
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
