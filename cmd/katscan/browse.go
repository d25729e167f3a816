package main

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/katscan/internal/tui"
	"github.com/Sternrassler/katscan/pkg/collection"
)

func (a *app) browseCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "browse <tick>",
		Short:       "Scroll through a collection, loading pages as you reach the end",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{annotationTUI: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p := collection.New(a.api, collection.WithLogger(a.logger))

			prog := tea.NewProgram(
				tui.NewModel(ctx, p, args[0]),
				tea.WithAltScreen(),
				tea.WithContext(ctx),
			)
			_, err := prog.Run()
			if errors.Is(err, tea.ErrProgramKilled) && errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return err
		},
	}
}
