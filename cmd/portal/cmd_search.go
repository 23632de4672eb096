package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd(root *rootOptions) *cobra.Command {
	var (
		limit  int
		output string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Fuzzy search names across the cached collections",
		Long: `Searches only what is already cached, without touching the network.
Run "portal sync" or browse first to populate the cache.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(output); err != nil {
				return err
			}
			query := strings.Join(args, " ")

			return withApp(cmd, root, func(ctx context.Context, a *app) error {
				results, err := a.catalog.Queries.Search(ctx, query, limit)
				if err != nil {
					return err
				}

				if output != formatTable {
					type hit struct {
						Kind  string `json:"kind"`
						ID    int    `json:"id"`
						Name  string `json:"name"`
						Score int    `json:"score"`
					}
					hits := make([]hit, len(results))
					for i, r := range results {
						hits[i] = hit{Kind: string(r.Item.GetKind()), ID: r.Item.GetID(), Name: itemName(r.Item), Score: r.Score}
					}
					return writeValue(cmd.OutOrStdout(), output, hits)
				}

				if len(results) == 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "no cached matches for %q\n", query)
					return nil
				}
				rows := make([][]string, len(results))
				for i, r := range results {
					rows[i] = []string{
						string(r.Item.GetKind()),
						strconv.Itoa(r.Item.GetID()),
						itemName(r.Item),
						r.Item.GetDescription(),
					}
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"KIND", "ID", "NAME", "DETAILS"}, rows))
				return err
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of results")
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	return cmd
}
