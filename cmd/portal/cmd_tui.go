package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mmcdole/portal/internal/tui"
)

var errNoTerminal = errors.New(`the interactive browser needs a terminal; try "portal list" instead`)

// isTerminal is swapped out by tests
var isTerminal = func(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// runTUI starts the interactive browser
func runTUI(cmd *cobra.Command, opts *rootOptions) error {
	if !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
		return errNoTerminal
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	model := tui.NewModel(
		a.catalog,
		tui.CatalogCollections(a.catalog),
		tui.Options{PrefetchDistance: a.cfg.UI.PrefetchDistance},
		a.logger,
	)

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	a.logger.Info("starting TUI")

	final, err := p.Run()
	if m, ok := final.(tui.Model); ok {
		m.Close()
	} else {
		model.Close()
	}
	if err != nil {
		a.logger.Error("TUI error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}

	a.logger.Info("shutting down")
	return nil
}
