package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/star/skywatch/internal/ephem"
	"github.com/star/skywatch/internal/metrics"
)

const (
	DefaultMaxAge        = 5 * 24 * time.Hour
	DefaultCheckInterval = time.Hour
)

// GroupReplacer receives a catalog's targets whenever they change. The whole
// group is replaced; nothing is merged.
type GroupReplacer interface {
	ReplaceGroup(group string, targets []ephem.Target)
}

// Config controls caching and refresh cadence.
type Config struct {
	Dir           string
	MaxAge        time.Duration // refetch when Last-Modified is older than this
	CheckInterval time.Duration
}

// Refresher loads catalogs from their caches, refetches stale ones and
// publishes every successful load to the store and the registry.
type Refresher struct {
	sources  []Source
	caches   map[string]*Cache
	fetchers map[string]*Fetcher
	store    *Store
	registry GroupReplacer
	config   Config
	logger   *slog.Logger

	onReplace []func(group string)
	now       func() time.Time
}

// NewRefresher wires a refresher for the given sources.
func NewRefresher(sources []Source, config Config, store *Store, registry GroupReplacer, logger *slog.Logger) *Refresher {
	if config.MaxAge <= 0 {
		config.MaxAge = DefaultMaxAge
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultCheckInterval
	}
	r := &Refresher{
		sources:  sources,
		caches:   make(map[string]*Cache, len(sources)),
		fetchers: make(map[string]*Fetcher, len(sources)),
		store:    store,
		registry: registry,
		config:   config,
		logger:   logger.With("component", "catalog"),
		now:      time.Now,
	}
	for _, src := range sources {
		r.caches[src.Name] = NewCache(config.Dir, src.Name)
		r.fetchers[src.Name] = NewFetcher(src.URL, r.logger, src.ExtraURLs...)
	}
	return r
}

// OnReplace registers fn to run after a catalog group has been replaced.
// Register before Load.
func (r *Refresher) OnReplace(fn func(group string)) {
	r.onReplace = append(r.onReplace, fn)
}

// Sources returns the configured catalogs.
func (r *Refresher) Sources() []Source {
	return r.sources
}

// Load publishes every cached catalog, then runs one Check so missing or
// stale catalogs are fetched. It fails only if a required catalog ends up
// with no data.
func (r *Refresher) Load(ctx context.Context) error {
	for _, src := range r.sources {
		p, err := r.caches[src.Name].Load()
		switch {
		case errors.Is(err, fs.ErrNotExist):
			r.logger.Info("no cached catalog", "catalog", src.Name)
			continue
		case err != nil:
			r.logger.Warn("ignoring unreadable catalog cache", "catalog", src.Name, "error", err)
			continue
		}
		ds, err := Build(src, p, r.logger)
		if err != nil {
			r.logger.Warn("ignoring unusable catalog cache", "catalog", src.Name, "error", err)
			continue
		}
		r.publish(ds)
	}

	r.Check(ctx)

	for _, src := range r.sources {
		if src.Required && r.store.Get(src.Name) == nil {
			return fmt.Errorf("required catalog %s: no cached copy and download failed", src.Name)
		}
	}
	return nil
}

// Check refetches every catalog that is missing or older than MaxAge. Each
// stale catalog gets exactly one download attempt per call; a failure keeps
// the current data and is retried on the next check.
func (r *Refresher) Check(ctx context.Context) {
	now := r.now()
	for _, src := range r.sources {
		current := r.store.Get(src.Name)
		if current != nil {
			age := current.Age(now)
			metrics.SetCatalogAge(src.Name, age)
			if age <= r.config.MaxAge {
				continue
			}
			r.logger.Info("catalog stale", "catalog", src.Name, "age_hours", int(age.Hours()))
		}

		if err := r.refresh(ctx, src, current); err != nil {
			r.logger.Warn("catalog refresh failed, keeping current data",
				"catalog", src.Name,
				"error", err,
			)
		}
	}
}

// Refresh unconditionally downloads the named catalog.
func (r *Refresher) Refresh(ctx context.Context, name string) error {
	for _, src := range r.sources {
		if src.Name == name {
			return r.refresh(ctx, src, nil)
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownCatalog, name)
}

// RefreshAll unconditionally downloads every catalog and returns the first error.
func (r *Refresher) RefreshAll(ctx context.Context) error {
	var first error
	for _, src := range r.sources {
		if err := r.refresh(ctx, src, nil); err != nil {
			r.logger.Warn("catalog refresh failed", "catalog", src.Name, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// refresh performs one download. current, when set, makes the request
// conditional on its Last-Modified date.
func (r *Refresher) refresh(ctx context.Context, src Source, current *Dataset) error {
	r.store.Lock()
	defer r.store.Unlock()

	var since time.Time
	if current != nil {
		since = current.LastModified
	}

	start := time.Now()
	p, err := r.fetchers[src.Name].Fetch(ctx, since)
	if errors.Is(err, ErrNotModified) {
		metrics.IncCatalogFetches(src.Name, "not_modified")
		r.logger.Info("catalog not modified upstream", "catalog", src.Name)
		return nil
	}
	if err != nil {
		metrics.IncCatalogFetches(src.Name, "error")
		return fmt.Errorf("fetching %s: %w", src.Name, err)
	}

	ds, err := Build(src, p, r.logger)
	if err != nil {
		metrics.IncCatalogFetches(src.Name, "parse_error")
		return fmt.Errorf("parsing %s: %w", src.Name, err)
	}

	if err := r.caches[src.Name].Write(p); err != nil {
		r.logger.Warn("could not write catalog cache", "catalog", src.Name, "error", err)
	}

	metrics.IncCatalogFetches(src.Name, "ok")
	r.logger.Info("catalog fetched",
		"catalog", src.Name,
		"bodies", len(ds.Targets),
		"skipped", ds.Skipped,
		"last_modified", ds.LastModified.Format(time.RFC3339),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	r.publish(ds)
	return nil
}

func (r *Refresher) publish(ds *Dataset) {
	r.store.Set(ds)
	metrics.SetCatalogBodies(ds.Source.Name, len(ds.Targets))
	metrics.SetCatalogAge(ds.Source.Name, ds.Age(r.now()))
	if r.registry != nil {
		r.registry.ReplaceGroup(ds.Source.Name, ds.Targets)
	}
	for _, fn := range r.onReplace {
		fn(ds.Source.Name)
	}
}

// Run checks the catalogs every CheckInterval until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("catalog refresher stopped")
			return
		case <-ticker.C:
			r.Check(ctx)
		}
	}
}
