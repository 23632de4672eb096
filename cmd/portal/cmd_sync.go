package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mmcdole/portal/internal/domain"
	"github.com/mmcdole/portal/internal/library"
)

type syncOptions struct {
	filters     filterFlags
	metricsAddr string
	quiet       bool
}

func newSyncCmd(root *rootOptions) *cobra.Command {
	opts := &syncOptions{}

	cmd := &cobra.Command{
		Use:   "sync [character|location|episode]...",
		Short: "Walk every page of one or more collections into the cache",
		Long: `Reloads each collection from the first page and appends until the last
page, so later browsing and "portal search" work offline. Without
arguments every collection is synced concurrently.

Example:
  portal sync character --status dead --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := domain.Kinds()
			if len(args) > 0 {
				kinds = nil
				for _, arg := range args {
					kind, err := domain.ParseKind(arg)
					if err != nil {
						return err
					}
					kinds = append(kinds, kind)
				}
			}
			if len(kinds) == 1 {
				if err := opts.filters.validFor(kinds[0]); err != nil {
					return err
				}
			}

			return withApp(cmd, root, func(ctx context.Context, a *app) error {
				addr := opts.metricsAddr
				if addr == "" {
					addr = a.cfg.Metrics.Addr
				}
				if addr != "" {
					bound, stop, err := serveMetrics(addr, a.logger)
					if err != nil {
						return err
					}
					defer stop()
					fmt.Fprintf(cmd.ErrOrStderr(), "serving metrics on http://%s/metrics\n", bound)
				}

				progress := cmd.ErrOrStderr()
				if opts.quiet {
					progress = io.Discard
				}
				results, err := syncKinds(ctx, a.catalog, kinds, opts.filters.values(), progress)
				writeSyncResults(cmd.OutOrStdout(), results)
				return err
			})
		},
	}

	opts.filters.register(cmd.Flags())
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while syncing")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "suppress per-page progress")
	return cmd
}

// syncKinds walks each collection concurrently. Filter fields a kind does
// not have are ignored.
func syncKinds(ctx context.Context, c *library.Catalog, kinds []domain.Kind, values map[string]string, progress io.Writer) ([]library.SyncResult, error) {
	var mu sync.Mutex
	report := func(kind domain.Kind) library.ProgressFunc {
		return func(pages, items int) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(progress, "%s: page %d, %d items\n", kind.Plural(), pages, items)
		}
	}

	results := make([]library.SyncResult, len(kinds))
	g, ctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			var (
				res library.SyncResult
				err error
			)
			switch kind {
			case domain.KindCharacter:
				f, ferr := domain.CharacterFilterFrom(values)
				if ferr != nil {
					return ferr
				}
				if _, err = c.Characters.SwitchFilter(ctx, f); err == nil {
					res, err = library.SyncAll(ctx, c.Characters, report(kind))
				}
			case domain.KindLocation:
				if _, err = c.Locations.SwitchFilter(ctx, domain.LocationFilterFrom(values)); err == nil {
					res, err = library.SyncAll(ctx, c.Locations, report(kind))
				}
			default:
				if _, err = c.Episodes.SwitchFilter(ctx, domain.EpisodeFilterFrom(values)); err == nil {
					res, err = library.SyncAll(ctx, c.Episodes, report(kind))
				}
			}
			res.Kind = kind
			results[i] = res
			if err != nil {
				return fmt.Errorf("sync %s: %w", kind.Plural(), err)
			}
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

func writeSyncResults(w io.Writer, results []library.SyncResult) {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		if r.Kind == "" {
			continue
		}
		rows = append(rows, []string{r.Kind.Title(), strconv.Itoa(r.Pages), strconv.Itoa(r.Items)})
	}
	if len(rows) > 0 {
		fmt.Fprintln(w, renderTable([]string{"COLLECTION", "PAGES", "ITEMS"}, rows))
	}
}

// serveMetrics exposes the Prometheus registry until stop is called and
// returns the address it listens on
func serveMetrics(addr string, logger *slog.Logger) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return ln.Addr().String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
