package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mmcdole/portal/internal/domain"
	"github.com/mmcdole/portal/internal/store"
)

func newCacheCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the local cache",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "path",
			Short: "Print the cache database path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := root.loadConfig()
				if err != nil {
					return err
				}
				path := store.Path(cfg.StoreOptions())
				if path == "" {
					path = "(memory)"
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
				return err
			},
		},
		&cobra.Command{
			Use:   "info",
			Short: "Show what each collection holds and how fresh it is",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, root, func(ctx context.Context, a *app) error {
					rows := make([][]string, 0, len(domain.Kinds()))
					for _, kind := range domain.Kinds() {
						items, err := a.catalog.Queries.CachedItems(ctx, kind)
						if err != nil {
							return err
						}
						part, ok, err := a.catalog.Queries.Partition(ctx, kind)
						if err != nil {
							return err
						}
						filter, updated, fresh := "-", "never", "no"
						if ok {
							filter = part.FilterKey
							if filter == "" {
								filter = "all"
							}
							if !part.UpdatedAt.IsZero() {
								updated = humanize.Time(part.UpdatedAt)
							}
							if part.IsFresh(part.FilterKey, a.cfg.Cache.Timeout, time.Now()) {
								fresh = "yes"
							}
						}
						rows = append(rows, []string{kind.Title(), strconv.Itoa(len(items)), filter, updated, fresh})
					}
					_, err := fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"COLLECTION", "ITEMS", "FILTER", "UPDATED", "FRESH"}, rows))
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Delete every cached page, cursor and detail record",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, root, func(ctx context.Context, a *app) error {
					if err := a.catalog.ClearCache(ctx); err != nil {
						return err
					}
					_, err := fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
					return err
				})
			},
		},
	)
	return cmd
}
