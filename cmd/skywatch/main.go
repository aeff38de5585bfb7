package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/star/skywatch/internal/catalog"
	"github.com/star/skywatch/internal/config"
	"github.com/star/skywatch/internal/ephem"
	"github.com/star/skywatch/internal/registry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	logFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "skywatch",
		Short:         "Announce rises, transits, sets and satellite passes as they happen",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("SKYWATCH_CONFIG"), "TOML configuration file")
	cmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "write JSON logs here instead of stderr")

	cmd.AddCommand(
		newWatchCmd(opts),
		newEventsCmd(opts),
		newSkyCmd(opts),
		newPassesCmd(opts),
		newCatalogCmd(opts),
	)
	return cmd
}

// newLogger builds the JSON logger every command uses.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// app is everything a command needs once configuration is loaded.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	observer  *ephem.Observer
	registry  *registry.Registry
	store     *catalog.Store
	refresher *catalog.Refresher
	closeLog  func()
}

// setup loads configuration and builds the observer, registry and catalog
// refresher. Catalogs are not loaded yet; see app.loadCatalogs. quiet sends
// logs nowhere unless --log-file is set.
func setup(opts *rootOptions, quiet bool) (*app, error) {
	var w io.Writer = os.Stderr
	closeLog := func() {}
	switch {
	case opts.logFile != "":
		f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closeLog = func() { f.Close() }
	case quiet:
		w = io.Discard
	}

	// Configuration problems are reported before the configured level is known.
	boot := newLogger(w, slog.LevelInfo)
	cfg, err := config.Load(opts.configPath, boot)
	if err != nil {
		closeLog()
		return nil, err
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := newLogger(w, level)

	obs, err := ephem.NewObserver(cfg.Observer.Name, cfg.Observer.Lat, cfg.Observer.Lon, cfg.Observer.Elevation)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("observer: %w", err)
	}

	reg := registry.New(logger)
	if err := reg.LoadStatic(cfg.VSOP87Dir, cfg.Stars); err != nil {
		closeLog()
		return nil, fmt.Errorf("loading static bodies: %w", err)
	}

	sources, err := cfg.CatalogSources()
	if err != nil {
		closeLog()
		return nil, err
	}
	store := catalog.NewStore()
	ref := catalog.NewRefresher(sources, cfg.CatalogConfig(), store, reg, logger)

	logger.Info("configuration loaded",
		"observer", obs.Name,
		"lat", obs.Lat,
		"lon", obs.Lon,
		"bodies", len(cfg.Bodies),
		"catalogs", len(sources),
		"vsop87", cfg.VSOP87Dir != "",
	)

	return &app{
		cfg:       cfg,
		logger:    logger,
		observer:  obs,
		registry:  reg,
		store:     store,
		refresher: ref,
		closeLog:  closeLog,
	}, nil
}

func (a *app) loadCatalogs(ctx context.Context) error {
	start := time.Now()
	if err := a.refresher.Load(ctx); err != nil {
		return err
	}
	a.logger.Info("catalogs loaded",
		"registry_bodies", a.registry.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// parseAt reads an optional RFC3339 --at flag value.
func parseAt(v string) (time.Time, error) {
	if v == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at must be RFC3339: %w", err)
	}
	return t, nil
}
