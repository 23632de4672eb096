package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmcdole/portal/internal/adapter"
	"github.com/mmcdole/portal/internal/api"
	"github.com/mmcdole/portal/internal/domain"
	"github.com/mmcdole/portal/internal/library"
	"github.com/mmcdole/portal/internal/paging"
	"github.com/mmcdole/portal/internal/store"
)

// rootOptions holds the persistent flags. Set flags override the config file.
type rootOptions struct {
	configFile  string
	baseURL     string
	cacheDriver string
	cacheDir    string
	noCache     bool
	logLevel    string
	timeout     time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "portal",
		Short: "Browse the Rick and Morty catalog from the terminal",
		Long: `portal pages through the characters, locations and episodes of the
Rick and Morty API, keeping a local cache so browsing works offline and
repeat visits skip the network.

Run without arguments to start the interactive browser.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default: ~/.config/portal/config.yaml)")
	flags.StringVar(&opts.baseURL, "base-url", "", "catalog API root")
	flags.StringVar(&opts.cacheDriver, "cache-driver", "", "cache backend: bolt, sqlite or memory")
	flags.StringVar(&opts.cacheDir, "cache-dir", "", "cache directory")
	flags.BoolVar(&opts.noCache, "no-cache", false, "keep the cache in memory for this run")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall timeout for one-shot commands")

	root.AddCommand(
		newListCmd(opts),
		newShowCmd(opts),
		newSearchCmd(opts),
		newSyncCmd(opts),
		newCacheCmd(opts),
		newConfigCmd(opts),
		newCheckCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the config file and applies flag overrides
func (o *rootOptions) loadConfig() (*adapter.Config, error) {
	cfg, err := adapter.LoadConfig(o.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.baseURL != "" {
		cfg.API.BaseURL = o.baseURL
	}
	if o.cacheDriver != "" {
		cfg.Cache.Driver = o.cacheDriver
	}
	if o.cacheDir != "" {
		cfg.Cache.Dir = o.cacheDir
	}
	if o.noCache {
		cfg.Cache.Driver = store.DriverMemory
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg, nil
}

// app is the wired object graph shared by every command
type app struct {
	cfg     *adapter.Config
	logger  *slog.Logger
	store   domain.Store
	client  *api.Client
	catalog *library.Catalog

	closeLog func() error
}

// openApp loads config, sets up logging and opens the cache
func openApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := adapter.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger, closeLog = adapter.NullLogger(), func() error { return nil }
	}
	slog.SetDefault(logger)

	st, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	client := api.NewClient(cfg.API.BaseURL, cfg.APIOptions(), logger)
	catalog := library.NewCatalog(client, st, paging.Options{CacheTimeout: cfg.Cache.Timeout}, logger)

	logger.Info("starting portal",
		"version", Version,
		"base_url", client.BaseURL(),
		"cache_driver", cfg.Cache.Driver,
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		client:   client,
		catalog:  catalog,
		closeLog: closeLog,
	}, nil
}

// Close releases the cache and the log file
func (a *app) Close() error {
	err := a.store.Close()
	if cerr := a.closeLog(); err == nil {
		err = cerr
	}
	return err
}

// withApp runs fn against a freshly opened app bounded by the timeout flag
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		a.logger.Error("command failed", "command", cmd.Name(), "error", err)
		return userError(err)
	}
	return nil
}

// userError keeps the chain for errors.Is but leads with the rendered message
func userError(err error) error {
	msg := domain.UserMessage(err)
	if msg == err.Error() {
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}
