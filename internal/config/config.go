// Package config loads skywatch settings from a TOML file and SKYWATCH_*
// environment variables. Environment values override the file; invalid
// environment values are logged and ignored.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/naoina/toml"
	"github.com/star/skywatch/internal/catalog"
	"github.com/star/skywatch/internal/event"
)

// Duration is a time.Duration written as a Go duration string such as "90m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the complete runtime configuration.
type Config struct {
	LogLevel  string   `toml:"log_level"`
	VSOP87Dir string   `toml:"vsop87_dir"` // empty uses built-in planetary elements
	Stars     []string `toml:"stars"`      // stars loaded into the registry
	Bodies    []string `toml:"bodies"`     // names the scheduler tracks
	Kinds     []string `toml:"kinds"`

	Observer Observer `toml:"observer"`
	Schedule Schedule `toml:"schedule"`
	Catalogs Catalogs `toml:"catalogs"`
	Server   Server   `toml:"server"`
	Stream   Stream   `toml:"stream"`
}

type Observer struct {
	Name      string  `toml:"name"`
	Lat       float64 `toml:"lat"`
	Lon       float64 `toml:"lon"` // degrees east
	Elevation float64 `toml:"elevation"`
}

type Schedule struct {
	MaxSleep         Duration `toml:"max_sleep"`
	RescheduleOffset Duration `toml:"reschedule_offset"`
	Workers          int      `toml:"workers"`
}

type Catalogs struct {
	Dir           string   `toml:"dir"`
	MaxAge        Duration `toml:"max_age"`
	CheckInterval Duration `toml:"check_interval"`
	Sources       []Source `toml:"source"`
}

type Source struct {
	Name      string   `toml:"name"`
	URL       string   `toml:"url"`
	Format    string   `toml:"format"`
	Required  bool     `toml:"required"`
	ExtraURLs []string `toml:"extra_urls"`
}

type Server struct {
	Addr        string `toml:"addr"` // empty disables the HTTP server
	AuthEnabled bool   `toml:"auth_enabled"`
	AuthToken   string `toml:"auth_token"`
	PublicReads bool   `toml:"public_reads"` // with auth on, only POST needs a token
	TrustProxy  bool   `toml:"trust_proxy"`
}

type Stream struct {
	MaxConcurrentPerIP int      `toml:"max_concurrent_per_ip"`
	MaxConcurrent      int      `toml:"max_concurrent"`
	KeepaliveInterval  Duration `toml:"keepalive_interval"`
	Buffer             int      `toml:"buffer"`
}

// Stars followed by the watcher out of the box.
var defaultStars = []string{
	"Spica", "Antares", "Aldebaran", "Pollux",
	"Regulus", "Nunki", "Alcyone", "Elnath",
}

// Default returns the built-in configuration: Columbus, Ohio, the sun, moon,
// planets, a handful of ecliptic stars, two comets and the ISS.
func Default() Config {
	bodies := []string{"Sun", "Moon", "Mercury", "Venus", "Mars", "Jupiter", "Saturn", "Uranus", "Neptune"}
	bodies = append(bodies, defaultStars...)
	bodies = append(bodies, "12P/Pons-Brooks", "C/2024 G3 (ATLAS)", "ISS (ZARYA)")

	var sources []Source
	for _, s := range catalog.DefaultSources() {
		sources = append(sources, Source{
			Name:      s.Name,
			URL:       s.URL,
			Format:    string(s.Format),
			Required:  s.Required,
			ExtraURLs: s.ExtraURLs,
		})
	}

	return Config{
		LogLevel: "info",
		Stars:    append([]string(nil), defaultStars...),
		Bodies:   bodies,
		Kinds:    []string{"rise", "transit", "set", "pass_rise", "pass_transit", "pass_set"},
		Observer: Observer{
			Name:      "Columbus",
			Lat:       39.9612,
			Lon:       -82.9988,
			Elevation: 275,
		},
		Schedule: Schedule{
			MaxSleep:         Duration{10 * time.Second},
			RescheduleOffset: Duration{time.Minute},
		},
		Catalogs: Catalogs{
			Dir:           "/tmp/skywatch/catalogs",
			MaxAge:        Duration{catalog.DefaultMaxAge},
			CheckInterval: Duration{catalog.DefaultCheckInterval},
			Sources:       sources,
		},
		Stream: Stream{
			MaxConcurrentPerIP: 10,
			MaxConcurrent:      256,
			KeepaliveInterval:  Duration{30 * time.Second},
			Buffer:             32,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string, logger *slog.Logger) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		defaults := cfg.Catalogs.Sources
		cfg.Catalogs.Sources = nil
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
		if len(cfg.Catalogs.Sources) == 0 {
			cfg.Catalogs.Sources = defaults
		}
	}
	cfg.applyEnv(logger)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(logger *slog.Logger) {
	if v := os.Getenv("SKYWATCH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("SKYWATCH_HTTP_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("SKYWATCH_AUTH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid SKYWATCH_AUTH_ENABLED value, ignoring", "value", v)
		} else {
			c.Server.AuthEnabled = enabled
		}
	}
	if v := os.Getenv("SKYWATCH_AUTH_TOKEN"); v != "" {
		c.Server.AuthToken = v
	}
	if v := os.Getenv("SKYWATCH_AUTH_PUBLIC_READS"); v != "" {
		public, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid SKYWATCH_AUTH_PUBLIC_READS value, ignoring", "value", v)
		} else {
			c.Server.PublicReads = public
		}
	}
	if v := os.Getenv("SKYWATCH_VSOP87_DIR"); v != "" {
		c.VSOP87Dir = v
	}
	if v := os.Getenv("SKYWATCH_CATALOG_DIR"); v != "" {
		c.Catalogs.Dir = v
	}
	if v := os.Getenv("SKYWATCH_CATALOG_MAX_AGE"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds < 1 {
			logger.Warn("invalid SKYWATCH_CATALOG_MAX_AGE value, using default", "value", v, "default", c.Catalogs.MaxAge.String())
		} else {
			c.Catalogs.MaxAge = Duration{time.Duration(seconds) * time.Second}
		}
	}
	if v := os.Getenv("SKYWATCH_BODIES"); v != "" {
		c.Bodies = splitList(v)
	}
	if v := os.Getenv("SKYWATCH_KINDS"); v != "" {
		c.Kinds = splitList(v)
	}
	envFloat(logger, "SKYWATCH_OBSERVER_LAT", &c.Observer.Lat)
	envFloat(logger, "SKYWATCH_OBSERVER_LON", &c.Observer.Lon)
	envFloat(logger, "SKYWATCH_OBSERVER_ELEVATION", &c.Observer.Elevation)
	if v := os.Getenv("SKYWATCH_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SKYWATCH_WORKERS value, using default", "value", v)
		} else {
			c.Schedule.Workers = n
		}
	}
}

func envFloat(logger *slog.Logger, key string, dst *float64) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logger.Warn("invalid "+key+" value, using default", "value", v, "default", *dst)
		return
	}
	*dst = f
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks values that would otherwise fail deep inside a component.
func (c Config) Validate() error {
	var errs []error
	if c.Observer.Lat < -90 || c.Observer.Lat > 90 {
		errs = append(errs, fmt.Errorf("observer.lat %v out of range", c.Observer.Lat))
	}
	if c.Observer.Lon < -180 || c.Observer.Lon > 360 {
		errs = append(errs, fmt.Errorf("observer.lon %v out of range", c.Observer.Lon))
	}
	if len(c.Bodies) == 0 {
		errs = append(errs, errors.New("no bodies configured"))
	}
	if _, err := c.EventKinds(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.CatalogSources(); err != nil {
		errs = append(errs, err)
	}
	if c.Server.AuthEnabled && c.Server.AuthToken == "" {
		errs = append(errs, errors.New("server.auth_token is required when auth is enabled"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// EventKinds parses the configured kinds.
func (c Config) EventKinds() ([]event.Kind, error) {
	kinds := make([]event.Kind, 0, len(c.Kinds))
	for _, s := range c.Kinds {
		k, err := event.ParseKind(s)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// CatalogSources converts the configured sources.
func (c Config) CatalogSources() ([]catalog.Source, error) {
	seen := make(map[string]bool, len(c.Catalogs.Sources))
	out := make([]catalog.Source, 0, len(c.Catalogs.Sources))
	for _, s := range c.Catalogs.Sources {
		if s.Name == "" || s.URL == "" {
			return nil, fmt.Errorf("catalog source needs a name and url: %+v", s)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate catalog source %q", s.Name)
		}
		seen[s.Name] = true
		f, err := catalog.ParseFormat(s.Format)
		if err != nil {
			return nil, fmt.Errorf("catalog %s: %w", s.Name, err)
		}
		out = append(out, catalog.Source{
			Name:      s.Name,
			URL:       s.URL,
			Format:    f,
			Required:  s.Required,
			ExtraURLs: s.ExtraURLs,
		})
	}
	return out, nil
}

// CatalogConfig returns the refresher settings.
func (c Config) CatalogConfig() catalog.Config {
	return catalog.Config{
		Dir:           c.Catalogs.Dir,
		MaxAge:        c.Catalogs.MaxAge.Duration,
		CheckInterval: c.Catalogs.CheckInterval.Duration,
	}
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
