package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mmcdole/portal/internal/domain"
	"github.com/mmcdole/portal/internal/library"
	"github.com/mmcdole/portal/internal/paging"
)

// filterFlags holds the server-side filter fields of every kind
type filterFlags struct {
	name      string
	status    string
	species   string
	typ       string
	gender    string
	dimension string
	episode   string
}

func (f *filterFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.name, "name", "", "name contains")
	fs.StringVar(&f.status, "status", "", "character status: "+strings.Join(domain.CharacterStatuses, ", "))
	fs.StringVar(&f.species, "species", "", "character species")
	fs.StringVar(&f.typ, "type", "", "character or location type")
	fs.StringVar(&f.gender, "gender", "", "character gender: "+strings.Join(domain.CharacterGenders, ", "))
	fs.StringVar(&f.dimension, "dimension", "", "location dimension")
	fs.StringVar(&f.episode, "episode", "", "episode code or prefix, e.g. S01")
}

// values returns the non-empty fields keyed by filter field name
func (f *filterFlags) values() map[string]string {
	all := map[string]string{
		"name":      f.name,
		"status":    f.status,
		"species":   f.species,
		"type":      f.typ,
		"gender":    f.gender,
		"dimension": f.dimension,
		"episode":   f.episode,
	}
	out := make(map[string]string)
	for k, v := range all {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// validFor rejects fields the kind's filter does not have
func (f *filterFlags) validFor(kind domain.Kind) error {
	var fields []domain.FilterField
	switch kind {
	case domain.KindCharacter:
		fields = domain.CharacterFilter{}.Fields()
	case domain.KindLocation:
		fields = domain.LocationFilter{}.Fields()
	default:
		fields = domain.EpisodeFilter{}.Fields()
	}
	allowed := make(map[string]bool, len(fields))
	for _, field := range fields {
		allowed[field.Name] = true
	}

	var bad []string
	for name := range f.values() {
		if !allowed[name] {
			bad = append(bad, "--"+name)
		}
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return fmt.Errorf("%w: %s not supported for %s", domain.ErrInvalidFilter, strings.Join(bad, ", "), kind.Plural())
	}
	return nil
}

type listOptions struct {
	filters filterFlags
	pages   int
	reload  bool
	output  string
}

func newListCmd(root *rootOptions) *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list <character|location|episode>",
		Short: "List a collection, page by page",
		Long: `Lists a collection through the local cache. A fresh cache for the same
filter is served without a network call; otherwise the first page is
fetched and further pages are appended up to --pages.

Example:
  portal list character --status alive --name rick --pages 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseKind(args[0])
			if err != nil {
				return err
			}
			if err := opts.validate(kind); err != nil {
				return err
			}
			return withApp(cmd, root, func(ctx context.Context, a *app) error {
				res, err := listKind(ctx, a.catalog, kind, opts.filters.values(), opts.pages, opts.reload)
				if err != nil {
					return err
				}
				if err := writeItems(cmd.OutOrStdout(), opts.output, res.items); err != nil {
					return err
				}
				if opts.output == formatTable {
					fmt.Fprintln(cmd.ErrOrStderr(), res.summary(kind))
				}
				return nil
			})
		},
	}

	opts.filters.register(cmd.Flags())
	cmd.Flags().IntVar(&opts.pages, "pages", 1, "minimum number of pages to load")
	cmd.Flags().BoolVar(&opts.reload, "reload", false, "refetch from the first page even when the cache is fresh")
	cmd.Flags().StringVarP(&opts.output, "output", "o", formatTable, "output format: table, json or yaml")
	return cmd
}

func (o *listOptions) validate(kind domain.Kind) error {
	if o.pages < 1 {
		return fmt.Errorf("--pages must be at least 1")
	}
	if err := validateFormat(o.output); err != nil {
		return err
	}
	return o.filters.validFor(kind)
}

// listResult is the loaded sequence of one collection
type listResult struct {
	items  []domain.Item
	filter string
	end    bool
}

func (r listResult) summary(kind domain.Kind) string {
	more := "more available, raise --pages"
	if r.end {
		more = "end of data"
	}
	return fmt.Sprintf("%d %s (filter: %s, %s)", len(r.items), kind.Plural(), r.filter, more)
}

// listKind applies the filter to the kind's pager and loads pages
func listKind(ctx context.Context, c *library.Catalog, kind domain.Kind, values map[string]string, pages int, reload bool) (listResult, error) {
	switch kind {
	case domain.KindCharacter:
		f, err := domain.CharacterFilterFrom(values)
		if err != nil {
			return listResult{}, err
		}
		return loadPages(ctx, c.Characters, f, pages, reload)
	case domain.KindLocation:
		return loadPages(ctx, c.Locations, domain.LocationFilterFrom(values), pages, reload)
	default:
		return loadPages(ctx, c.Episodes, domain.EpisodeFilterFrom(values), pages, reload)
	}
}

func loadPages[T domain.Item, F domain.Filter](ctx context.Context, p *paging.Pager[T, F], filter F, pages int, reload bool) (listResult, error) {
	if _, err := p.SwitchFilter(ctx, filter); err != nil {
		return listResult{}, err
	}

	start := p.Start
	if reload {
		start = p.Reload
	}
	if err := start(ctx); err != nil {
		return listResult{}, err
	}

	// A fresh cache may already hold more than one page
	for loaded := 1; loaded < pages; loaded++ {
		if p.Snapshot().AppendEnd {
			break
		}
		if err := p.Append(ctx); err != nil {
			return listResult{}, err
		}
	}

	snap := p.Snapshot()
	items := make([]domain.Item, len(snap.Items))
	for i, item := range snap.Items {
		items[i] = item
	}
	return listResult{
		items:  items,
		filter: domain.DescribeFilter(filter),
		end:    snap.AppendEnd,
	}, nil
}
